package persist

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const tracerName = "huddle.persist"

// tracedStore 链路追踪装饰器
type tracedStore struct {
	Store
	driver Driver
	tracer trace.Tracer
}

// NewTracing 为 Store 的写入创建 span
func NewTracing(s Store, driver Driver) Store {
	return &tracedStore{
		Store:  s,
		driver: driver,
		tracer: otel.Tracer(tracerName),
	}
}

// Save 记录 persist.save span
func (t *tracedStore) Save(ctx context.Context, r Record) error {
	ctx, span := t.tracer.Start(ctx, "persist.save",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("persist.driver", string(t.driver)),
			attribute.String("room.id", r.RoomID),
		),
	)
	defer span.End()

	err := t.Store.Save(ctx, r)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// tracingPlugin 只关心插入
type tracingPlugin struct{}

func newTracingPlugin() *tracingPlugin { return &tracingPlugin{} }

// Name 插件名称
func (p *tracingPlugin) Name() string {
	return "huddle:otel"
}

// Initialize 注册 create 回调
func (p *tracingPlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Create().Before("gorm:create").Register("huddle:before_create", p.before); err != nil {
		return fmt.Errorf("failed to register callbacks: %w", err)
	}
	if err := db.Callback().Create().After("gorm:create").Register("huddle:after_create", p.after); err != nil {
		return fmt.Errorf("failed to register callbacks: %w", err)
	}
	return nil
}

func (p *tracingPlugin) before(db *gorm.DB) {
	ctx := db.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	// 每次回调时获取 tracer，避免 Provider 后初始化导致使用 noop
	ctx, _ = otel.Tracer(tracerName).Start(ctx, "gorm.Create",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("db.operation", "insert")),
	)
	db.Statement.Context = ctx
}

func (p *tracingPlugin) after(db *gorm.DB) {
	span := trace.SpanFromContext(db.Statement.Context)
	if !span.IsRecording() {
		return
	}
	defer span.End()

	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.table", db.Statement.Table))
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))
	if db.Error != nil {
		span.RecordError(db.Error)
		span.SetStatus(codes.Error, db.Error.Error())
	}
}
