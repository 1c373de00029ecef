package ws

import (
	"context"

	"github.com/tokmz/huddle/pkg/auth"
)

// SystemPrincipal 服务端自身产生的事件使用的发送方
var SystemPrincipal = auth.Principal{ID: "system", Name: "huddle", Roles: []string{auth.RoleService}}

// Archiver room.message 归档钩子
// 在投递完成后同步调用，实现必须立即返回，失败自行记录
type Archiver interface {
	Archive(ctx context.Context, ev *Event, text string)
}

// ArchiverFunc 函数适配器
type ArchiverFunc func(ctx context.Context, ev *Event, text string)

// Archive 实现 Archiver
func (f ArchiverFunc) Archive(ctx context.Context, ev *Event, text string) {
	f(ctx, ev, text)
}

// JoinPolicy 决定身份能否加入某个房间，返回错误即拒绝
// 核心本身不做房间级 ACL
type JoinPolicy interface {
	AllowJoin(ctx context.Context, p auth.Principal, roomID string) error
}

// JoinPolicyFunc 函数适配器
type JoinPolicyFunc func(ctx context.Context, p auth.Principal, roomID string) error

// AllowJoin 实现 JoinPolicy
func (f JoinPolicyFunc) AllowJoin(ctx context.Context, p auth.Principal, roomID string) error {
	return f(ctx, p, roomID)
}

// AllowAll 默认策略
var AllowAll JoinPolicy = JoinPolicyFunc(func(context.Context, auth.Principal, string) error { return nil })
