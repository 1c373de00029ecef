package persist

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/huddle/pkg/logger"
)

// Async 有界队列 + 固定 worker，调用方永不阻塞
type Async struct {
	store   Store
	queue   chan Record
	timeout time.Duration
	log     logger.Logger

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAsync 启动 worker
func NewAsync(store Store, cfg *Config, log logger.Logger) *Async {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.Nop()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 1024
	}
	timeout := cfg.SaveTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	a := &Async{
		store:   store,
		queue:   make(chan Record, size),
		timeout: timeout,
		log:     log.Named("persist"),
	}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
	return a
}

func (a *Async) worker() {
	defer a.wg.Done()
	for r := range a.queue {
		a.save(r)
	}
}

func (a *Async) save(r Record) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.store.Save(ctx, r); err != nil {
		a.failed.Add(1)
		a.log.Warn("archive message failed",
			zap.String("room_id", r.RoomID),
			zap.String("message_id", r.ID),
			zap.Error(err),
		)
	}
}

// Submit 入队，队列满或已关闭时丢弃并返回 false
func (a *Async) Submit(r Record) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.dropped.Add(1)
		return false
	}
	select {
	case a.queue <- r:
		return true
	default:
		a.dropped.Add(1)
		a.log.Warn("archive queue full, message dropped",
			zap.String("room_id", r.RoomID),
			zap.String("message_id", r.ID),
		)
		return false
	}
}

// Close 停止接收，写完队列中剩余记录后关闭存储
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()
	return a.store.Close()
}

// Dropped 因队列满或已关闭而丢弃的数量
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Failed 写入失败的数量
func (a *Async) Failed() int64 {
	return a.failed.Load()
}
