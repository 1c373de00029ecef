package logger

import (
	"fmt"
	"io"
)

// Format 编码格式
type Format string

const (
	JSONFormat    Format = "json"
	ConsoleFormat Format = "console"
)

func (f Format) String() string { return string(f) }

func (f Format) IsValid() bool {
	return f == JSONFormat || f == ConsoleFormat
}

// ParseFormat 空字符串视为 json
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return JSONFormat, nil
	}
	if f := Format(s); f.IsValid() {
		return f, nil
	}
	return "", fmt.Errorf("logger: unknown format %q", s)
}

// Config 日志配置，没有任何输出时写到 stdout
type Config struct {
	Level  Level
	Format Format

	Console bool
	File    string        // 不轮转的文件
	Rotate  *RotateConfig // lumberjack 轮转
	Writer  io.Writer     // 测试或自定义收集

	// Sampling 为 nil 不采样；广播路径上的丢弃日志量可能很大
	Sampling *SamplingConfig

	EnableCaller     bool
	EnableStacktrace bool // Error 及以上
}

// RotateConfig 文件轮转，大小单位 MB
type RotateConfig struct {
	Filename   string
	MaxSize    int // 默认 100
	MaxAge     int // 天，默认 30
	MaxBackups int // 默认 10
	LocalTime  bool
	Compress   bool
}

// SamplingConfig 每秒前 Initial 条必记，之后每 Thereafter 条记 1 条
type SamplingConfig struct {
	Initial    int
	Thereafter int
}

func (c *Config) setDefaults() {
	if c.Format == "" {
		c.Format = JSONFormat
	}
	if !c.Console && c.File == "" && c.Rotate == nil && c.Writer == nil {
		c.Console = true
	}
	if c.Rotate != nil {
		c.Rotate.setDefaults()
	}
	if c.Sampling != nil {
		c.Sampling.setDefaults()
	}
}

func (r *RotateConfig) setDefaults() {
	r.MaxSize = orDefault(r.MaxSize, 100)
	r.MaxAge = orDefault(r.MaxAge, 30)
	r.MaxBackups = orDefault(r.MaxBackups, 10)
}

func (s *SamplingConfig) setDefaults() {
	s.Initial = orDefault(s.Initial, 100)
	s.Thereafter = orDefault(s.Thereafter, 100)
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
