package ws

import (
	"encoding/json"
	"strings"
	"time"
)

// Kind 事件类型，封闭集合
type Kind string

const (
	KindRoomMessage     Kind = "room.message"
	KindRoomTyping      Kind = "room.typing"
	KindRoomReaction    Kind = "room.reaction"
	KindPresenceJoined  Kind = "room.presence.joined"
	KindPresenceLeft    Kind = "room.presence.left"
	KindWhiteboard      Kind = "whiteboard.update"
	KindPrincipalNotify Kind = "principal.notify"
	KindAnnounce        Kind = "broadcast.announce"

	// 控制帧，不广播
	KindJoinRoom  Kind = "join_room"
	KindLeaveRoom Kind = "leave_room"

	// 仅发给出错的发送方
	KindError Kind = "error"
)

// PrincipalRoomPrefix 私有房间前缀，客户端不能加入或离开
const PrincipalRoomPrefix = "principal:"

// PrincipalRoom 返回身份的私有房间 ID
func PrincipalRoom(principalID string) string {
	return PrincipalRoomPrefix + principalID
}

// IsPrincipalRoom 是否为私有房间
func IsPrincipalRoom(roomID string) bool {
	return strings.HasPrefix(roomID, PrincipalRoomPrefix)
}

// scope 受众范围
type scope uint8

const (
	scopeRoom scope = iota + 1
	scopePrincipal
	scopeAll
)

// kindSpec 每种事件的受众规则与载荷结构
type kindSpec struct {
	scope         scope
	excludeSender bool
	serverOnly    bool       // 只能由服务端产生
	serviceOnly   bool       // 客户端发送需要 service 角色
	payload       func() any // nil 表示不透明 JSON
}

var kinds = map[Kind]kindSpec{
	KindRoomMessage:     {scope: scopeRoom, payload: func() any { return new(MessagePayload) }},
	KindRoomTyping:      {scope: scopeRoom, excludeSender: true, payload: func() any { return new(TypingPayload) }},
	KindRoomReaction:    {scope: scopeRoom, payload: func() any { return new(ReactionPayload) }},
	KindPresenceJoined:  {scope: scopeRoom, excludeSender: true, serverOnly: true},
	KindPresenceLeft:    {scope: scopeRoom, excludeSender: true, serverOnly: true},
	KindWhiteboard:      {scope: scopeRoom, excludeSender: true},
	KindPrincipalNotify: {scope: scopePrincipal, serviceOnly: true, payload: func() any { return new(NotifyPayload) }},
	KindAnnounce:        {scope: scopeAll, serviceOnly: true, payload: func() any { return new(AnnouncePayload) }},
}

// Known 是否为可广播的事件类型
func (k Kind) Known() bool {
	_, ok := kinds[k]
	return ok
}

// RoomScoped 是否按房间路由
func (k Kind) RoomScoped() bool {
	return kinds[k].scope == scopeRoom
}

// Frame 客户端上行帧
type Frame struct {
	Kind    Kind            `json:"kind"`
	RoomID  string          `json:"roomId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event 下行事件
type Event struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	SenderID   string          `json:"senderId"`
	SenderName string          `json:"senderName,omitempty"`
	RoomID     string          `json:"roomId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`

	senderConn string
}

// SenderConn 发送方连接 ID，服务端事件为空
func (e *Event) SenderConn() string {
	return e.senderConn
}

// MessagePayload room.message
type MessagePayload struct {
	Text string `json:"text" validate:"required,max=4000"`
}

// TypingPayload room.typing
type TypingPayload struct {
	IsTyping *bool `json:"isTyping" validate:"required"`
}

// ReactionPayload room.reaction
type ReactionPayload struct {
	MessageID string `json:"messageId" validate:"required,max=128"`
	Reaction  string `json:"reaction" validate:"required,max=32"`
}

// NotifyPayload principal.notify
type NotifyPayload struct {
	PrincipalID string          `json:"principalId" validate:"required"`
	Type        string          `json:"type" validate:"required,max=64"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// AnnouncePayload broadcast.announce
type AnnouncePayload struct {
	Type string          `json:"type" validate:"required,max=64"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload 错误帧载荷
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	RefKind Kind   `json:"refKind,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}
