package auth

import "github.com/tokmz/huddle/pkg/errors"

// 认证错误，握手阶段统一以 4401 关闭，Message 即关闭原因
var (
	ErrNoCredential      = errors.New(1101, "Unauthenticated: no credential supplied", 401)
	ErrInvalidCredential = errors.New(1102, "Unauthenticated: invalid credential", 401)
	ErrHandshakeTimeout  = errors.New(1103, "Unauthenticated: handshake timed out", 401)
)
