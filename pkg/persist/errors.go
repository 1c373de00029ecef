package persist

import "github.com/tokmz/huddle/pkg/errors"

// 预定义错误
var (
	ErrInvalidConfig = errors.New(3101, "persist invalid config")
	ErrConnection    = errors.New(3102, "persist connection failed")
	ErrSave          = errors.New(3103, "persist save failed")
	ErrClosed        = errors.New(3104, "persist store closed")
)
