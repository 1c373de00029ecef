package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tokmz/huddle/pkg/auth"
	"github.com/tokmz/huddle/pkg/logger"
	"github.com/tokmz/huddle/pkg/tracing"
)

// Gate 握手认证，唯一的鉴权检查点
// 在任何其他组件看到连接之前完成接受或拒绝
type Gate struct {
	verifier auth.Verifier
	timeout  time.Duration
	metrics  Metrics
	log      logger.Logger
}

// NewGate 创建握手认证
func NewGate(verifier auth.Verifier, timeout time.Duration, metrics Metrics, log logger.Logger) *Gate {
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Gate{
		verifier: verifier,
		timeout:  timeout,
		metrics:  metrics,
		log:      log,
	}
}

// Authenticate 从握手请求中提取并校验凭证
// 返回的错误一定是 auth.ErrNoCredential、auth.ErrInvalidCredential 或 auth.ErrHandshakeTimeout 之一
func (g *Gate) Authenticate(r *http.Request) (*auth.Principal, error) {
	ctx, span := tracing.StartSpan(r.Context(), "ws.handshake")
	defer span.End()

	p, err := g.authenticate(ctx, auth.CredentialFromRequest(r))
	if err != nil {
		tracing.RecordError(span, err)
		g.metrics.IncrementHandshakeRejected(rejectReason(err))
		g.log.InfoContext(ctx, "handshake rejected",
			zap.String("remote", r.RemoteAddr),
			zap.Error(err),
		)
		return nil, err
	}
	span.SetAttributes(tracing.AttrPrincipalID.String(p.ID))
	return p, nil
}

func (g *Gate) authenticate(ctx context.Context, credential string) (*auth.Principal, error) {
	if credential == "" {
		return nil, auth.ErrNoCredential
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		p   *auth.Principal
		err error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := g.verifier.Verify(ctx, credential)
		ch <- result{p, err}
	}()

	// 校验器不响应 ctx 时也不会拖住握手
	select {
	case res := <-ch:
		switch {
		case res.err == nil && res.p != nil && res.p.ID != "":
			return res.p, nil
		case res.err == nil:
			return nil, auth.ErrInvalidCredential
		case errors.Is(res.err, auth.ErrNoCredential), errors.Is(res.err, auth.ErrHandshakeTimeout):
			return nil, res.err
		case errors.Is(res.err, context.DeadlineExceeded):
			return nil, auth.ErrHandshakeTimeout.WithError(res.err)
		case errors.Is(res.err, auth.ErrInvalidCredential):
			return nil, res.err
		default:
			return nil, auth.ErrInvalidCredential.WithError(res.err)
		}
	case <-ctx.Done():
		return nil, auth.ErrHandshakeTimeout.WithError(ctx.Err())
	}
}

// reject 升级后立即发送 4401 关闭帧，原因即错误信息
func (g *Gate) reject(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader, err error) {
	conn, uerr := upgrader.Upgrade(w, r, nil)
	if uerr != nil {
		// Upgrade 已经写入了 HTTP 错误响应
		return
	}
	defer conn.Close()

	reason := auth.ErrInvalidCredential.Message
	var e *Error
	if errors.As(err, &e) {
		reason = e.Message
	}
	msg := websocket.FormatCloseMessage(CloseUnauthenticated, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline(time.Second))
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrNoCredential):
		return "no_credential"
	case errors.Is(err, auth.ErrHandshakeTimeout):
		return "timeout"
	default:
		return "invalid_credential"
	}
}
