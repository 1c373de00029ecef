package ws

import (
	"sync"
	"sync/atomic"
	"time"
)

// LifecycleType 生命周期事件类型
type LifecycleType string

const (
	// LifecycleConnOpened 连接通过握手并完成注册
	LifecycleConnOpened LifecycleType = "connection.opened"
	// LifecycleConnClosed 连接完成拆除
	LifecycleConnClosed LifecycleType = "connection.closed"
	// LifecycleRoomJoined 加入房间
	LifecycleRoomJoined LifecycleType = "room.joined"
	// LifecycleRoomLeft 离开房间
	LifecycleRoomLeft LifecycleType = "room.left"
	// LifecycleEventRejected 上行帧被拒绝
	LifecycleEventRejected LifecycleType = "event.rejected"
)

// LifecycleEvent 生命周期事件
type LifecycleEvent struct {
	Type        LifecycleType
	ConnID      string
	PrincipalID string
	RoomID      string
	Kind        Kind  // event.rejected 时的帧类型
	Err         error // event.rejected 时的原因
	Time        time.Time
}

// LifecycleHandler 生命周期事件处理器
type LifecycleHandler func(LifecycleEvent)

// LifecycleBus 生命周期事件总线
// 处理器在固定数量的 worker 中异步执行，队列满时丢弃
type LifecycleBus struct {
	handlers map[LifecycleType][]LifecycleHandler
	mu       sync.RWMutex
	workerCh chan func()
	stopCh   chan struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool
	dropped  atomic.Int64
}

// NewLifecycleBus 创建事件总线
func NewLifecycleBus(workers, queueSize int) *LifecycleBus {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	b := &LifecycleBus{
		handlers: make(map[LifecycleType][]LifecycleHandler),
		workerCh: make(chan func(), queueSize),
		stopCh:   make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

func (b *LifecycleBus) worker() {
	defer b.wg.Done()
	for {
		select {
		case task := <-b.workerCh:
			task()
		case <-b.stopCh:
			return
		}
	}
}

// Subscribe 订阅事件
func (b *LifecycleBus) Subscribe(t LifecycleType, handler LifecycleHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], handler)
}

// Publish 发布事件（异步，不阻塞调用方）
func (b *LifecycleBus) Publish(e LifecycleEvent) {
	if b.closed.Load() {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	handlers := b.handlers[e.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		select {
		case b.workerCh <- func() { h(e) }:
		default:
			b.dropped.Add(1)
		}
	}
}

// Close 关闭事件总线，未执行的事件被丢弃
func (b *LifecycleBus) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	close(b.stopCh)
	b.wg.Wait()
}

// Dropped 返回丢弃的事件数量
func (b *LifecycleBus) Dropped() int64 {
	return b.dropped.Load()
}
