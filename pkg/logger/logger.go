package logger

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 日志接口
type Logger interface {
	// 基础日志方法
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	DPanic(msg string, fields ...zap.Field)
	Panic(msg string, fields ...zap.Field)
	Fatal(msg string, fields ...zap.Field)

	// 带 Context 的日志方法（自动提取 trace_id、span_id、conn_id、principal_id）
	DebugContext(ctx context.Context, msg string, fields ...zap.Field)
	InfoContext(ctx context.Context, msg string, fields ...zap.Field)
	WarnContext(ctx context.Context, msg string, fields ...zap.Field)
	ErrorContext(ctx context.Context, msg string, fields ...zap.Field)

	// 工具方法
	With(fields ...zap.Field) Logger        // 创建子 Logger
	WithContext(ctx context.Context) Logger // 创建带 Context 的子 Logger
	Named(name string) Logger               // 创建带名称的子 Logger
	Zap() *zap.Logger                       // 获取底层 zap.Logger
	Sync() error                            // 刷新缓冲区
	SetLevel(level Level)                   // 动态调整级别（对所有子 Logger 生效）
	Level() Level                           // 获取当前级别
}

// logger 日志实现
type logger struct {
	zap   *zap.Logger
	level zap.AtomicLevel
}

// New 创建 Logger（使用 Config）
func New(config *Config) (Logger, error) {
	if config == nil {
		config = &Config{}
	}
	config.setDefaults()
	if !config.Format.IsValid() {
		return nil, fmt.Errorf("logger: unknown format %q", config.Format)
	}

	encoder := buildEncoder(config)

	writers, err := buildWriters(config)
	if err != nil {
		return nil, err
	}
	if len(writers) == 0 {
		return nil, fmt.Errorf("no output configured")
	}

	level := zap.NewAtomicLevelAt(config.Level)
	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(writers...), level)

	if config.Sampling != nil {
		core = zapcore.NewSamplerWithOptions(
			core,
			time.Second,
			config.Sampling.Initial,
			config.Sampling.Thereafter,
		)
	}

	opts := []zap.Option{}
	if config.EnableCaller {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}
	if config.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	return &logger{
		zap:   zap.New(core, opts...),
		level: level,
	}, nil
}

// NewWithOptions 创建 Logger（使用 Options 模式）
func NewWithOptions(opts ...Option) (Logger, error) {
	config := &Config{}
	for _, opt := range opts {
		opt(config)
	}
	return New(config)
}

// Default 创建默认 Logger（开发环境配置）
func Default() Logger {
	l, _ := NewDevelopment()
	return l
}

// Nop 返回丢弃所有输出的 Logger
func Nop() Logger {
	return &logger{
		zap:   zap.NewNop(),
		level: zap.NewAtomicLevelAt(zapcore.InfoLevel),
	}
}

// NewProduction 创建生产环境 Logger
func NewProduction() (Logger, error) {
	return NewWithOptions(
		WithLevel(InfoLevel),
		WithFormat(JSONFormat),
		WithConsoleOutput(),
		WithCaller(false),
		WithStacktrace(true),
	)
}

// NewDevelopment 创建开发环境 Logger
func NewDevelopment() (Logger, error) {
	return NewWithOptions(
		WithLevel(DebugLevel),
		WithFormat(ConsoleFormat),
		WithConsoleOutput(),
		WithCaller(true),
		WithStacktrace(true),
	)
}

// buildEncoder 构建 Encoder
func buildEncoder(config *Config) zapcore.Encoder {
	ec := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if config.Format == ConsoleFormat {
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	return zapcore.NewJSONEncoder(ec)
}

// buildWriters 构建 WriteSyncer
func buildWriters(config *Config) ([]zapcore.WriteSyncer, error) {
	var writers []zapcore.WriteSyncer

	if config.Console {
		writers = append(writers, zapcore.Lock(os.Stdout))
	}

	if config.File != "" {
		writer, _, err := zap.Open(config.File)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.File, err)
		}
		writers = append(writers, writer)
	}

	if config.Rotate != nil {
		writers = append(writers, zapcore.AddSync(&lumberjack.Logger{
			Filename:   config.Rotate.Filename,
			MaxSize:    config.Rotate.MaxSize,
			MaxAge:     config.Rotate.MaxAge,
			MaxBackups: config.Rotate.MaxBackups,
			LocalTime:  config.Rotate.LocalTime,
			Compress:   config.Rotate.Compress,
		}))
	}

	if config.Writer != nil {
		writers = append(writers, zapcore.AddSync(config.Writer))
	}

	return writers, nil
}

func (l *logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, fields...)
}

func (l *logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, fields...)
}

func (l *logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, fields...)
}

func (l *logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, fields...)
}

func (l *logger) DPanic(msg string, fields ...zap.Field) {
	l.zap.DPanic(msg, fields...)
}

func (l *logger) Panic(msg string, fields ...zap.Field) {
	l.zap.Panic(msg, fields...)
}

func (l *logger) Fatal(msg string, fields ...zap.Field) {
	l.zap.Fatal(msg, fields...)
}

func (l *logger) DebugContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Debug(msg, append(ContextFields(ctx), fields...)...)
}

func (l *logger) InfoContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Info(msg, append(ContextFields(ctx), fields...)...)
}

func (l *logger) WarnContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Warn(msg, append(ContextFields(ctx), fields...)...)
}

func (l *logger) ErrorContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.zap.Error(msg, append(ContextFields(ctx), fields...)...)
}

// With 创建子 Logger，共享级别
func (l *logger) With(fields ...zap.Field) Logger {
	return &logger{
		zap:   l.zap.With(fields...),
		level: l.level,
	}
}

// WithContext 创建带 Context 字段的子 Logger
func (l *logger) WithContext(ctx context.Context) Logger {
	return l.With(ContextFields(ctx)...)
}

func (l *logger) Named(name string) Logger {
	return &logger{
		zap:   l.zap.Named(name),
		level: l.level,
	}
}

func (l *logger) Zap() *zap.Logger {
	return l.zap
}

func (l *logger) Sync() error {
	return l.zap.Sync()
}

func (l *logger) SetLevel(level Level) {
	l.level.SetLevel(level)
}

func (l *logger) Level() Level {
	return l.level.Level()
}
