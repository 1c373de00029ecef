package logger

import "io"

// Option 用于 NewWithOptions
type Option func(*Config)

func WithLevel(level Level) Option {
	return func(c *Config) { c.Level = level }
}

func WithFormat(format Format) Option {
	return func(c *Config) { c.Format = format }
}

func WithConsoleOutput() Option {
	return func(c *Config) { c.Console = true }
}

func WithFileOutput(filename string) Option {
	return func(c *Config) { c.File = filename }
}

func WithRotateOutput(r *RotateConfig) Option {
	return func(c *Config) { c.Rotate = r }
}

// WithWriter 追加输出目标，可与其他输出并存
func WithWriter(w io.Writer) Option {
	return func(c *Config) { c.Writer = w }
}

func WithSampling(s *SamplingConfig) Option {
	return func(c *Config) { c.Sampling = s }
}

func WithCaller(enable bool) Option {
	return func(c *Config) { c.EnableCaller = enable }
}

func WithStacktrace(enable bool) Option {
	return func(c *Config) { c.EnableStacktrace = enable }
}
