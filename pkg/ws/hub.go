package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/huddle/pkg/auth"
	"github.com/tokmz/huddle/pkg/logger"
)

// Hub 实时核心的组合根
type Hub struct {
	config     *Config
	registry   *Registry
	rooms      *RoomManager
	dispatcher *Dispatcher
	gate       *Gate
	upgrader   *websocket.Upgrader
	events     *LifecycleBus
	metrics    Metrics
	log        logger.Logger

	// mu 使注册与 Shutdown 互斥：Shutdown 置位 closing 之后不会再有连接注册，
	// 之前注册的连接都已计入 wg
	mu      sync.Mutex
	wg      sync.WaitGroup
	closing atomic.Bool
}

// Stats 运行统计
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
}

// NewHub 创建 Hub
func NewHub(verifier auth.Verifier, opts ...Option) (*Hub, error) {
	if verifier == nil {
		return nil, errors.New("ws: verifier is required")
	}

	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	log := config.Logger.Named("ws")
	config.Logger = log

	rooms := NewRoomManager(config.RoomConfig)
	registry := NewRegistry(config.MaxConnections, rooms.LeaveAll, log)
	events := NewLifecycleBus(4, 4096)

	h := &Hub{
		config:     config,
		registry:   registry,
		rooms:      rooms,
		dispatcher: newDispatcher(registry, rooms, events, config),
		gate:       NewGate(verifier, config.HandshakeTimeout, config.Metrics, log),
		upgrader:   newUpgrader(config.UpgraderConfig),
		events:     events,
		metrics:    config.Metrics,
		log:        log,
	}
	h.setupEventHandlers()
	return h, nil
}

// ServeHTTP 处理握手：认证 → 升级 → 注册 → 加入私有房间 → 读写循环
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.closing.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	principal, err := h.gate.Authenticate(r)
	if err != nil {
		h.gate.reject(w, r, h.upgrader, err)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade failed", zap.Error(err))
		return
	}

	c := newConn(ws, *principal, h.config.SendQueueSize, h.log)
	h.mu.Lock()
	err = h.attach(c)
	if err == nil {
		h.wg.Add(1)
	}
	h.mu.Unlock()
	if err != nil {
		code, reason := CloseTryAgainLater, err.Error()
		var e *Error
		if errors.As(err, &e) {
			code, reason = e.Code, e.Message
		}
		h.log.Warn("connection not registered", zap.String("principal_id", principal.ID), zap.Error(err))
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline(h.config.WriteWait))
		_ = ws.Close()
		return
	}

	go func() {
		defer h.wg.Done()
		h.serve(c)
	}()
}

// attach 注册连接并静默加入私有房间，调用方持有 h.mu
func (h *Hub) attach(c *Conn) error {
	if h.closing.Load() {
		return ErrShuttingDown
	}
	if err := h.registry.Register(c); err != nil {
		return err
	}
	if _, err := h.rooms.Join(c, PrincipalRoom(c.principal.ID)); err != nil {
		h.registry.Unregister(c.id)
		return err
	}
	h.metrics.IncrementConnections()
	h.events.Publish(LifecycleEvent{Type: LifecycleConnOpened, ConnID: c.id, PrincipalID: c.principal.ID})
	return nil
}

func (h *Hub) serve(c *Conn) {
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		c.writeLoop(h)
	}()

	code, reason := c.readLoop(h)
	h.teardown(c, code, reason)
	<-writeDone
}

// teardown 拆除连接
// 先标记关闭，再注销并离开全部房间，最后通知仍在房间里的成员
func (h *Hub) teardown(c *Conn, code int, reason string) {
	if !c.markClosed(code, reason) {
		return
	}

	rooms := h.registry.Unregister(c.id)
	for _, roomID := range rooms {
		if IsPrincipalRoom(roomID) {
			continue
		}
		h.events.Publish(LifecycleEvent{Type: LifecycleRoomLeft, ConnID: c.id, PrincipalID: c.principal.ID, RoomID: roomID})
		h.dispatcher.presence(c.ctx, KindPresenceLeft, c, roomID)
	}

	h.metrics.DecrementConnections()
	h.events.Publish(LifecycleEvent{Type: LifecycleConnClosed, ConnID: c.id, PrincipalID: c.principal.ID})
}

// Notify 向身份的所有连接投递 principal.notify
func (h *Hub) Notify(ctx context.Context, from auth.Principal, principalID, typ string, data json.RawMessage) (int, error) {
	return h.dispatcher.Notify(ctx, from, principalID, typ, data)
}

// Announce 向所有连接投递 broadcast.announce
func (h *Hub) Announce(ctx context.Context, from auth.Principal, typ string, data json.RawMessage) (int, error) {
	return h.dispatcher.Announce(ctx, from, typ, data)
}

// Registry 连接注册表
func (h *Hub) Registry() *Registry { return h.registry }

// Rooms 房间管理器
func (h *Hub) Rooms() *RoomManager { return h.rooms }

// Subscribe 订阅生命周期事件
func (h *Hub) Subscribe(t LifecycleType, handler LifecycleHandler) {
	h.events.Subscribe(t, handler)
}

// Stats 当前连接数与房间数
func (h *Hub) Stats() Stats {
	return Stats{
		Connections: h.registry.Count(),
		Rooms:       h.rooms.Count(),
	}
}

// Shutdown 优雅关闭，所有连接以 1001 关闭
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing.Store(true)
	h.mu.Unlock()

	h.registry.Range(func(c *Conn) bool {
		h.teardown(c, CloseGoingAway, closeReasonShutdown)
		return true
	})

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	defer h.events.Close()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// setupEventHandlers 日志与房间数指标
func (h *Hub) setupEventHandlers() {
	h.events.Subscribe(LifecycleConnOpened, func(e LifecycleEvent) {
		h.log.Info("connection opened", zap.String("conn_id", e.ConnID), zap.String("principal_id", e.PrincipalID))
	})
	h.events.Subscribe(LifecycleConnClosed, func(e LifecycleEvent) {
		h.log.Info("connection closed", zap.String("conn_id", e.ConnID), zap.String("principal_id", e.PrincipalID))
		h.metrics.SetRoomCount(h.rooms.Count())
	})
	h.events.Subscribe(LifecycleRoomJoined, func(e LifecycleEvent) {
		h.metrics.SetRoomCount(h.rooms.Count())
	})
	h.events.Subscribe(LifecycleRoomLeft, func(e LifecycleEvent) {
		h.metrics.SetRoomCount(h.rooms.Count())
	})
	h.events.Subscribe(LifecycleEventRejected, func(e LifecycleEvent) {
		h.log.Debug("frame rejected",
			zap.String("conn_id", e.ConnID),
			zap.String("kind", string(e.Kind)),
			zap.String("room_id", e.RoomID),
			zap.Error(e.Err),
		)
	})
}
