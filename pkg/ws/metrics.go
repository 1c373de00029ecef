package ws

import "time"

// Metrics 监控接口
type Metrics interface {
	// 连接指标
	IncrementConnections()
	DecrementConnections()
	IncrementHandshakeRejected(reason string)

	// 事件指标
	IncrementEvents(kind Kind)
	IncrementRejected(kind Kind, code int)
	RecordFanout(kind Kind, recipients int, duration time.Duration)
	IncrementDropped(kind Kind)

	// 房间指标
	SetRoomCount(count int)

	// 错误指标
	IncrementReadErrors()
	IncrementWriteErrors()
	IncrementInvalidFrames()
}

// NoopMetrics 空实现（默认）
type NoopMetrics struct{}

func (m *NoopMetrics) IncrementConnections()                                   {}
func (m *NoopMetrics) DecrementConnections()                                   {}
func (m *NoopMetrics) IncrementHandshakeRejected(reason string)                {}
func (m *NoopMetrics) IncrementEvents(kind Kind)                               {}
func (m *NoopMetrics) IncrementRejected(kind Kind, code int)                   {}
func (m *NoopMetrics) RecordFanout(kind Kind, recipients int, d time.Duration) {}
func (m *NoopMetrics) IncrementDropped(kind Kind)                              {}
func (m *NoopMetrics) SetRoomCount(count int)                                  {}
func (m *NoopMetrics) IncrementReadErrors()                                    {}
func (m *NoopMetrics) IncrementWriteErrors()                                   {}
func (m *NoopMetrics) IncrementInvalidFrames()                                 {}
