package huddle

import (
	"encoding/json"
	"strings"

	"github.com/tokmz/huddle/pkg/auth"
	"github.com/tokmz/huddle/pkg/errors"
	"github.com/tokmz/huddle/pkg/ws"
)

// APIConfig 路由挂载配置
type APIConfig struct {
	// WSPath WebSocket 入口，默认 /ws
	WSPath string

	// Verifier 校验 /api/v1 的 Bearer 凭证，调用方必须拥有 service 角色
	Verifier auth.Verifier

	// WSMiddlewares 挂在 WebSocket 入口上的中间件（限流等）
	WSMiddlewares []HandlerFunc

	// APIMiddlewares 挂在 /api/v1 上的中间件（CORS、追踪等），先于认证执行
	APIMiddlewares []HandlerFunc
}

// NotifyRequest POST /api/v1/notify
type NotifyRequest struct {
	PrincipalID string          `json:"principalId" binding:"required"`
	Type        string          `json:"type" binding:"required"`
	Data        json.RawMessage `json:"data"`
}

// AnnounceRequest POST /api/v1/announce
type AnnounceRequest struct {
	Type string          `json:"type" binding:"required"`
	Data json.RawMessage `json:"data"`
}

// DeliveryResult 投递结果
type DeliveryResult struct {
	Delivered int `json:"delivered"`
}

// Member 房间成员
type Member struct {
	ConnID      string `json:"connId"`
	PrincipalID string `json:"principalId"`
	Name        string `json:"name,omitempty"`
}

// RoomMembers GET /api/v1/rooms/:roomId/members
type RoomMembers struct {
	RoomID  string   `json:"roomId"`
	Members []Member `json:"members"`
}

// PrincipalConnections GET /api/v1/principals/:principalId/connections
type PrincipalConnections struct {
	PrincipalID string   `json:"principalId"`
	Connections []string `json:"connections"`
}

// relayAPI 服务端中继接口，供打分、上传等内部服务调用
type relayAPI struct {
	hub *ws.Hub
}

// RegisterRoutes 挂载 /healthz、WebSocket 入口和 /api/v1 中继接口
func RegisterRoutes(e *Engine, hub *ws.Hub, cfg APIConfig) {
	if cfg.WSPath == "" {
		cfg.WSPath = "/ws"
	}
	if cfg.Verifier == nil {
		panic("huddle: api verifier cannot be nil")
	}

	api := &relayAPI{hub: hub}
	root := e.RouterGroup()

	root.GET("/healthz", api.health)
	root.GET(cfg.WSPath, FromHTTP(hub), cfg.WSMiddlewares...)

	middlewares := append(append([]HandlerFunc{}, cfg.APIMiddlewares...), RequireRole(cfg.Verifier, auth.RoleService))
	v1 := root.Group("/api/v1", middlewares...)
	Handle[NotifyRequest, DeliveryResult](v1.POST, "/notify", api.notify)
	Handle[AnnounceRequest, DeliveryResult](v1.POST, "/announce", api.announce)
	HandleOnly[RoomMembers](v1.GET, "/rooms/:roomId/members", api.members)
	HandleOnly[PrincipalConnections](v1.GET, "/principals/:principalId/connections", api.connections)
	HandleOnly[ws.Stats](v1.GET, "/stats", api.stats)
}

func (a *relayAPI) health(c *Context) {
	c.Success(map[string]string{"status": "ok"})
}

func (a *relayAPI) notify(c *Context, req *NotifyRequest) (*DeliveryResult, error) {
	p, _ := GetContextPrincipal(c)
	n, err := a.hub.Notify(c.RequestContext(), *p, req.PrincipalID, req.Type, req.Data)
	if err != nil {
		return nil, err
	}
	return &DeliveryResult{Delivered: n}, nil
}

func (a *relayAPI) announce(c *Context, req *AnnounceRequest) (*DeliveryResult, error) {
	p, _ := GetContextPrincipal(c)
	n, err := a.hub.Announce(c.RequestContext(), *p, req.Type, req.Data)
	if err != nil {
		return nil, err
	}
	return &DeliveryResult{Delivered: n}, nil
}

func (a *relayAPI) members(c *Context) (*RoomMembers, error) {
	roomID := c.Param("roomId")
	if strings.TrimSpace(roomID) == "" {
		return nil, errors.ErrBadRequest.WithMessage("roomId is required")
	}

	resp := &RoomMembers{RoomID: roomID, Members: []Member{}}
	registry := a.hub.Registry()
	for _, connID := range a.hub.Rooms().MembersOf(roomID) {
		p, ok := registry.PrincipalOf(connID)
		if !ok {
			// 连接正在拆除
			continue
		}
		resp.Members = append(resp.Members, Member{ConnID: connID, PrincipalID: p.ID, Name: p.Name})
	}
	return resp, nil
}

func (a *relayAPI) connections(c *Context) (*PrincipalConnections, error) {
	principalID := c.Param("principalId")
	return &PrincipalConnections{
		PrincipalID: principalID,
		Connections: a.hub.Registry().ConnectionsOf(principalID),
	}, nil
}

func (a *relayAPI) stats(c *Context) (*ws.Stats, error) {
	s := a.hub.Stats()
	return &s, nil
}

// RequireRole 校验 Bearer 凭证并要求指定角色，身份写入上下文
func RequireRole(verifier auth.Verifier, role string) HandlerFunc {
	return func(c *Context) {
		p, err := verifier.Verify(c.Request().Context(), auth.CredentialFromRequest(c.Request()))
		if err != nil {
			// 只返回认证错误本身的信息，jwt 解析细节不外泄
			msg := errors.ErrUnauthorized.Message
			var e *errors.Error
			if errors.As(err, &e) {
				msg = e.Message
			}
			_ = c.ctx.Error(err)
			c.AbortWithError(errors.ErrUnauthorized.WithMessage(msg))
			return
		}
		if !p.HasRole(role) {
			c.AbortWithError(errors.ErrForbidden.WithMessage("role " + role + " required"))
			return
		}
		SetContextPrincipal(c, p)
		c.Next()
	}
}
