package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

// TestNew 测试创建 Logger
func TestNew(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name:    "nil config",
			config:  nil,
			wantErr: false,
		},
		{
			name: "console output",
			config: &Config{
				Level:   InfoLevel,
				Format:  JSONFormat,
				Console: true,
			},
			wantErr: false,
		},
		{
			name: "file output",
			config: &Config{
				Level:  InfoLevel,
				Format: JSONFormat,
				File:   filepath.Join(dir, "test.log"),
			},
			wantErr: false,
		},
		{
			name: "rotate output",
			config: &Config{
				Level:  InfoLevel,
				Format: JSONFormat,
				Rotate: &RotateConfig{
					Filename: filepath.Join(dir, "test-rotate.log"),
				},
			},
			wantErr: false,
		},
		{
			name: "invalid format",
			config: &Config{
				Format:  Format("xml"),
				Console: true,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if logger != nil {
				defer logger.Sync()
			}
		})
	}
}

// TestNewWithOptions 测试使用 Options 创建 Logger
func TestNewWithOptions(t *testing.T) {
	logger, err := NewWithOptions(
		WithLevel(DebugLevel),
		WithFormat(ConsoleFormat),
		WithConsoleOutput(),
		WithCaller(true),
	)
	if err != nil {
		t.Fatalf("NewWithOptions() error = %v", err)
	}
	defer logger.Sync()

	if logger.Level() != DebugLevel {
		t.Errorf("Level() = %v, want %v", logger.Level(), DebugLevel)
	}
}

// TestNewProduction 测试创建生产环境 Logger
func TestNewProduction(t *testing.T) {
	logger, err := NewProduction()
	if err != nil {
		t.Fatalf("NewProduction() error = %v", err)
	}
	defer logger.Sync()

	if logger.Level() != InfoLevel {
		t.Errorf("Level() = %v, want %v", logger.Level(), InfoLevel)
	}
}

// TestNewDevelopment 测试创建开发环境 Logger
func TestNewDevelopment(t *testing.T) {
	logger, err := NewDevelopment()
	if err != nil {
		t.Fatalf("NewDevelopment() error = %v", err)
	}
	defer logger.Sync()

	if logger.Level() != DebugLevel {
		t.Errorf("Level() = %v, want %v", logger.Level(), DebugLevel)
	}
}

// TestContextFields 测试从 Context 提取连接与身份字段
func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithOptions(
		WithLevel(InfoLevel),
		WithFormat(JSONFormat),
		WithWriter(&buf),
	)
	if err != nil {
		t.Fatalf("NewWithOptions() error = %v", err)
	}

	ctx := WithTraceID(context.Background(), "trace-123")
	ctx = WithConnID(ctx, "c-1")
	ctx = WithPrincipalID(ctx, "alice")
	logger.InfoContext(ctx, "frame received", zap.String("kind", "room.message"))
	_ = logger.Sync()

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v (%s)", err, buf.String())
	}
	want := map[string]string{
		"trace_id":     "trace-123",
		"conn_id":      "c-1",
		"principal_id": "alice",
		"kind":         "room.message",
		"msg":          "frame received",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("field %s = %v, want %v", k, entry[k], v)
		}
	}
}

// TestWithContext 测试子 Logger 携带 Context 字段
func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithOptions(WithWriter(&buf))
	if err != nil {
		t.Fatalf("NewWithOptions() error = %v", err)
	}

	child := logger.WithContext(WithConnID(context.Background(), "c-9"))
	child.Info("closed")
	_ = logger.Sync()

	if !strings.Contains(buf.String(), `"conn_id":"c-9"`) {
		t.Errorf("log line missing conn_id: %s", buf.String())
	}
}

// TestSetLevel 测试动态调整级别
func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithOptions(
		WithLevel(InfoLevel),
		WithWriter(&buf),
	)
	if err != nil {
		t.Fatalf("NewWithOptions() error = %v", err)
	}

	child := logger.With(zap.String("module", "ws"))
	child.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug written before SetLevel: %s", buf.String())
	}

	logger.SetLevel(DebugLevel)
	if logger.Level() != DebugLevel {
		t.Errorf("Level() = %v, want %v", logger.Level(), DebugLevel)
	}
	child.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("child logger did not pick up new level: %s", buf.String())
	}
}

// TestNop 测试空 Logger
func TestNop(t *testing.T) {
	l := Nop()
	l.Info("nothing")
	l.With(zap.Int("n", 1)).Named("x").Warn("nothing")
}

// TestConfigDefaults 轮转与采样的零值补默认
func TestConfigDefaults(t *testing.T) {
	cfg := &Config{
		Rotate:   &RotateConfig{Filename: "huddle.log"},
		Sampling: &SamplingConfig{Thereafter: 10},
	}
	cfg.setDefaults()

	if !cfg.Console || cfg.Format != JSONFormat {
		t.Errorf("Console = %v, Format = %v", cfg.Console, cfg.Format)
	}
	config := cfg.Rotate

	if config.MaxSize != 100 {
		t.Errorf("MaxSize = %v, want 100", config.MaxSize)
	}
	if config.MaxAge != 30 {
		t.Errorf("MaxAge = %v, want 30", config.MaxAge)
	}
	if config.MaxBackups != 10 {
		t.Errorf("MaxBackups = %v, want 10", config.MaxBackups)
	}
	if cfg.Sampling.Initial != 100 || cfg.Sampling.Thereafter != 10 {
		t.Errorf("Sampling = %+v", *cfg.Sampling)
	}
}

// TestSampling 同一条消息超过 Initial 后按 Thereafter 抽样
func TestSampling(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithOptions(
		WithWriter(&buf),
		WithSampling(&SamplingConfig{Initial: 2, Thereafter: 3}),
	)
	if err != nil {
		t.Fatalf("NewWithOptions() error = %v", err)
	}
	for i := 0; i < 8; i++ {
		l.Warn("send queue full")
	}
	// 1, 2 必记；之后第 3、6 条（总第 5、8 条）
	if got := strings.Count(buf.String(), "send queue full"); got != 4 {
		t.Errorf("logged %d lines, want 4", got)
	}
}

// TestLevel 测试日志级别
func TestLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{DebugLevel, "debug"},
		{InfoLevel, "info"},
		{WarnLevel, "warn"},
		{ErrorLevel, "error"},
		{DPanicLevel, "dpanic"},
		{PanicLevel, "panic"},
		{FatalLevel, "fatal"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
			parsed, err := ParseLevel(tt.want)
			if err != nil || parsed != tt.level {
				t.Errorf("ParseLevel(%q) = %v, %v", tt.want, parsed, err)
			}
		})
	}

	if l, err := ParseLevel(" WARNING "); err != nil || l != WarnLevel {
		t.Errorf("ParseLevel(WARNING) = %v, %v", l, err)
	}
	if l, err := ParseLevel(""); err != nil || l != InfoLevel {
		t.Errorf("ParseLevel(\"\") = %v, %v", l, err)
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("ParseLevel(verbose) expected error")
	}
}

// TestFormat 测试日志格式
func TestFormat(t *testing.T) {
	tests := []struct {
		format  Format
		isValid bool
	}{
		{JSONFormat, true},
		{ConsoleFormat, true},
		{Format("invalid"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if got := tt.format.IsValid(); got != tt.isValid {
				t.Errorf("Format.IsValid() = %v, want %v", got, tt.isValid)
			}
		})
	}

	if f, err := ParseFormat(""); err != nil || f != JSONFormat {
		t.Errorf("ParseFormat(\"\") = %v, %v", f, err)
	}
}

// TestFileOutput 测试文件输出
func TestFileOutput(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "huddle-"+time.Now().Format("20060102150405")+".log")

	logger, err := NewWithOptions(
		WithLevel(InfoLevel),
		WithFormat(JSONFormat),
		WithFileOutput(tmpFile),
	)
	if err != nil {
		t.Fatalf("NewWithOptions() error = %v", err)
	}
	defer logger.Sync()

	logger.Info("test file output", zap.String("key", "value"))

	if _, err := os.Stat(tmpFile); os.IsNotExist(err) {
		t.Error("Log file was not created")
	}
}
