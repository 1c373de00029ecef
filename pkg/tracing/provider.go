package tracing

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

var (
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
)

// NewTracerProvider 按配置创建 TracerProvider，并设为全局 Provider 与 W3C Propagator
func NewTracerProvider(ctx context.Context, cfg *Config) (*sdktrace.TracerProvider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: resource: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if !cfg.Enabled || cfg.Exporter == ExporterNoop {
		opts = append(opts, sdktrace.WithSampler(sdktrace.NeverSample()))
	} else {
		exp, err := newExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("tracing: exporter %s: %w", cfg.Exporter, err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp,
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatchSize),
			sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
		))
		if sampler := newSampler(cfg); sampler != nil {
			opts = append(opts, sdktrace.WithSampler(sampler))
		}
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	mu.Lock()
	provider = tp
	mu.Unlock()
	return tp, nil
}

// newResource 服务信息 + 自定义属性，OTEL_RESOURCE_ATTRIBUTES 覆盖同名配置
func newResource(ctx context.Context, cfg *Config) (*resource.Resource, error) {
	instance := cfg.InstanceID
	if instance == "" {
		instance = uuid.NewString()
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		semconv.ServiceInstanceIDKey.String(instance),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentKey.String(cfg.Environment))
	}
	for k, v := range cfg.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	return resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
}

// Shutdown 导出剩余 span 并关闭全局 Provider，未初始化时直接返回
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp := provider
	provider = nil
	mu.Unlock()

	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// Provider 当前由 NewTracerProvider 安装的 Provider
func Provider() *sdktrace.TracerProvider {
	mu.Lock()
	defer mu.Unlock()
	return provider
}
