package tracing

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig 配置错误
var ErrInvalidConfig = errors.New("tracing: invalid config")

// Exporter 导出器类型
type Exporter string

const (
	ExporterOTLP     Exporter = "otlp" // 等同 otlp-http
	ExporterOTLPHTTP Exporter = "otlp-http"
	ExporterOTLPGRPC Exporter = "otlp-grpc"
	ExporterStdout   Exporter = "stdout"
	ExporterNoop     Exporter = "noop"
)

// Sampling 采样策略
type Sampling string

const (
	SamplingAlways      Sampling = "always"
	SamplingNever       Sampling = "never"
	SamplingRatio       Sampling = "ratio"
	SamplingParentBased Sampling = "parent_based"
)

// Config 链路追踪配置
type Config struct {
	ServiceName    string // 必填
	ServiceVersion string
	Environment    string // development, staging, production
	InstanceID     string // 多实例部署时区分节点，空则随机生成

	// Enabled 为 false 时不导出，span 仍会创建以便日志关联 trace_id
	Enabled bool

	Exporter Exporter
	Endpoint string            // 空则由 OTEL_EXPORTER_OTLP_ENDPOINT 决定
	Headers  map[string]string // 如认证头
	Insecure bool

	// 设置 OTEL_TRACES_SAMPLER 时以环境变量为准
	Sampling     Sampling
	SamplingRate float64

	// Attributes 额外的资源属性
	Attributes map[string]string

	BatchTimeout       time.Duration
	MaxExportBatchSize int
	MaxQueueSize       int
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ServiceName:        "huddle",
		ServiceVersion:     "dev",
		Environment:        "development",
		Exporter:           ExporterStdout,
		Sampling:           SamplingParentBased,
		SamplingRate:       1.0,
		Enabled:            true,
		BatchTimeout:       5 * time.Second,
		MaxExportBatchSize: 512,
		MaxQueueSize:       2048,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("%w: service name is required", ErrInvalidConfig)
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("%w: sampling rate must be between 0 and 1", ErrInvalidConfig)
	}
	if c.BatchTimeout < 0 || c.MaxExportBatchSize < 0 || c.MaxQueueSize < 0 {
		return fmt.Errorf("%w: batch settings must not be negative", ErrInvalidConfig)
	}

	switch c.Exporter {
	case ExporterOTLP, ExporterOTLPHTTP, ExporterOTLPGRPC, ExporterStdout, ExporterNoop:
	default:
		return fmt.Errorf("%w: unsupported exporter %q", ErrInvalidConfig, c.Exporter)
	}
	switch c.Sampling {
	case SamplingAlways, SamplingNever, SamplingRatio, SamplingParentBased, "":
	default:
		return fmt.Errorf("%w: unsupported sampling %q", ErrInvalidConfig, c.Sampling)
	}
	return nil
}
