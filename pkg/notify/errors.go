package notify

import "github.com/tokmz/huddle/pkg/errors"

// 预定义错误
var (
	ErrInvalidConfig  = errors.New(3201, "notify invalid config")
	ErrMalformed      = errors.New(3202, "notify malformed message", 400)
	ErrUnknownRouting = errors.New(3203, "notify unknown routing key", 400)
)
