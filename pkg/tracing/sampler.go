package tracing

import (
	"os"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// newSampler 设置了 OTEL_TRACES_SAMPLER 时返回 nil，由 SDK 读取环境变量
func newSampler(cfg *Config) sdktrace.Sampler {
	if os.Getenv("OTEL_TRACES_SAMPLER") != "" {
		return nil
	}

	ratio := sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	switch cfg.Sampling {
	case SamplingAlways:
		return sdktrace.AlwaysSample()
	case SamplingNever:
		return sdktrace.NeverSample()
	case SamplingRatio:
		return ratio
	default:
		// 上游已采样的请求继续采样，握手等根 span 按比例
		return sdktrace.ParentBased(ratio)
	}
}
