package ws

import (
	"github.com/gorilla/websocket"

	"github.com/tokmz/huddle/pkg/errors"
)

// Error 核心错误类型，Code 即错误帧中的 code
type Error = errors.Error

// WebSocket 关闭码
const (
	// CloseUnauthenticated 握手认证失败
	CloseUnauthenticated = 4401
	// CloseInvalidFrames 连续非法帧
	CloseInvalidFrames = 4400
	// CloseFrameTooLarge 单帧超限，gorilla 读取时自行发送
	CloseFrameTooLarge = websocket.CloseMessageTooBig

	CloseTryAgainLater = websocket.CloseTryAgainLater
	CloseGoingAway     = websocket.CloseGoingAway
	CloseNormal        = websocket.CloseNormalClosure
	closeAbnormal      = websocket.CloseAbnormalClosure

	closeReasonShutdown   = "server shutting down"
	closeReasonTooInvalid = "too many invalid frames"
)

// 错误帧使用的错误码，同时是 Code 字段
var (
	ErrValidation   = errors.New(4400, "invalid frame", 400)
	ErrForbidden    = errors.New(4403, "forbidden", 403)
	ErrFrameTooBig  = errors.New(4413, "frame too large", 413)
	ErrRoomFull     = errors.New(4429, "room is full", 429)
	ErrTooManyRooms = errors.New(4430, "too many rooms for this connection", 429)

	ErrTooManyConnections = errors.New(CloseTryAgainLater, "too many connections", 503)
	ErrShuttingDown       = errors.New(CloseGoingAway, closeReasonShutdown, 503)
	ErrConnIDExists       = errors.New(4409, "connection id already exists", 409)
	ErrConnClosed         = errors.New(4410, "connection closed", 410)
	ErrQueueFull          = errors.New(4503, "send queue full", 503)
)

// 常用错误信息
const (
	msgUnknownKind     = "unknown event kind"
	msgServerKind      = "event kind is server-generated"
	msgRoomRequired    = "roomId is required"
	msgPayloadRequired = "payload is required"
	msgMalformed       = "malformed frame"
	msgNotMember       = "not a member of room"
	msgServiceOnly     = "event kind requires service role"
	msgReservedRoom    = "room id is reserved"
	msgJoinDenied      = "join denied"
)
