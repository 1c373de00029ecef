package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/huddle/pkg/auth"
	"github.com/tokmz/huddle/pkg/logger"
)

// Conn 一个已认证的长连接
// 身份在连接存续期间不变
type Conn struct {
	id            string
	principal     auth.Principal
	establishedAt time.Time
	remoteAddr    string

	ws   *websocket.Conn
	send chan []byte

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
	done        chan struct{} // markClosed 时关闭

	invalidFrames int // 只在读协程中访问

	ctx context.Context
	log logger.Logger
}

// newConn 创建连接，ws 为空时仅用于测试和内部投递
func newConn(ws *websocket.Conn, principal auth.Principal, queueSize int, log logger.Logger) *Conn {
	id := uuid.NewString()
	c := &Conn{
		id:            id,
		principal:     principal,
		establishedAt: time.Now().UTC(),
		ws:            ws,
		send:          make(chan []byte, queueSize),
		done:          make(chan struct{}),
	}
	if ws != nil {
		c.remoteAddr = ws.RemoteAddr().String()
	}
	ctx := logger.WithConnID(context.Background(), id)
	c.ctx = logger.WithPrincipalID(ctx, principal.ID)
	c.log = log.WithContext(c.ctx)
	return c
}

// ID 连接 ID（UUIDv4，不复用）
func (c *Conn) ID() string { return c.id }

// Principal 连接绑定的身份
func (c *Conn) Principal() auth.Principal { return c.principal }

// EstablishedAt 建立时间
func (c *Conn) EstablishedAt() time.Time { return c.establishedAt }

// RemoteAddr 远端地址
func (c *Conn) RemoteAddr() string { return c.remoteAddr }

// IsClosed 是否已进入拆除流程
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// enqueue 非阻塞写入发送队列
// 与 markClosed 共用一把锁，拆除开始后不会再有事件入队
func (c *Conn) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// markClosed 标记关闭，只有第一次调用返回 true
func (c *Conn) markClosed(code int, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.done)
	return true
}

// sendError 给发送方回一个错误帧
func (c *Conn) sendError(err error, ref *Frame) {
	var e *Error
	if !errors.As(err, &e) {
		e = ErrValidation.WithMessage(err.Error())
	}
	p := ErrorPayload{Code: e.Code, Message: e.Message}
	if ref != nil {
		p.RefKind = ref.Kind
		p.RoomID = ref.RoomID
	}
	payload, merr := json.Marshal(p)
	if merr != nil {
		c.log.Error("encode error payload failed", zap.Error(merr))
		return
	}
	data, merr := json.Marshal(&Event{
		ID:        uuid.NewString(),
		Kind:      KindError,
		SenderID:  c.principal.ID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
	if merr != nil {
		c.log.Error("encode error frame failed", zap.Error(merr))
		return
	}
	if err := c.enqueue(data); err != nil {
		c.log.Debug("error frame not delivered", zap.Error(err))
	}
}

// readLoop 读协程，返回时连接需要拆除
func (c *Conn) readLoop(h *Hub) (code int, reason string) {
	c.ws.SetReadLimit(h.config.MaxMessageSize)
	_ = c.ws.SetReadDeadline(deadline(h.config.HeartbeatTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(deadline(h.config.HeartbeatTimeout))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			switch {
			case errors.Is(err, websocket.ErrReadLimit):
				return CloseFrameTooLarge, ErrFrameTooBig.Message
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				return CloseNormal, ""
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNoStatusReceived) && !c.IsClosed() {
					h.metrics.IncrementReadErrors()
					c.log.Debug("read failed", zap.Error(err))
				}
				return closeAbnormal, ""
			}
		}
		if c.IsClosed() {
			// 拆除开始后到达的帧直接丢弃
			return CloseNormal, ""
		}

		var f Frame
		if msgType != websocket.TextMessage {
			err = ErrValidation.WithMessage("text frames only")
		} else if jerr := json.Unmarshal(data, &f); jerr != nil || f.Kind == "" {
			err = ErrValidation.WithMessage(msgMalformed)
		} else {
			err = h.dispatcher.Handle(c, &f)
		}

		if err == nil {
			c.invalidFrames = 0
			continue
		}
		if errors.Is(err, ErrValidation) {
			h.metrics.IncrementInvalidFrames()
			c.invalidFrames++
			if c.invalidFrames > h.config.MaxInvalidFrames {
				return CloseInvalidFrames, closeReasonTooInvalid
			}
		}
		c.sendError(err, &f)
	}
}

// writeLoop 写协程，独占 websocket 写权限
func (c *Conn) writeLoop(h *Hub) {
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.mu.Lock()
			code, reason := c.closeCode, c.closeReason
			c.mu.Unlock()
			if code != closeAbnormal {
				msg := websocket.FormatCloseMessage(code, reason)
				_ = c.ws.WriteControl(websocket.CloseMessage, msg, deadline(h.config.WriteWait))
			}
			return

		case data := <-c.send:
			if c.IsClosed() {
				continue
			}
			_ = c.ws.SetWriteDeadline(deadline(h.config.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				h.metrics.IncrementWriteErrors()
				c.log.Debug("write failed", zap.Error(err))
				h.teardown(c, closeAbnormal, "")
				return
			}

		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline(h.config.WriteWait)); err != nil {
				h.metrics.IncrementWriteErrors()
				h.teardown(c, closeAbnormal, "")
				return
			}
		}
	}
}

// deadline 距现在 d 之后的读写期限
func deadline(d time.Duration) time.Time {
	return time.Now().Add(d)
}
