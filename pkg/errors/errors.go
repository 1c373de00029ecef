package errors

import (
	"errors"
	"net/http"
)

// Error 带错误码的错误。Code 同时用于 HTTP 响应体、WebSocket 错误帧和关闭码，
// Status 只在 HTTP 响应时使用。预定义错误是共享的，修改请用 WithX 派生副本。
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

// New status 缺省为 500
func New(code int, message string, status ...int) *Error {
	e := &Error{Code: code, Message: message, Status: http.StatusInternalServerError}
	if len(status) > 0 {
		e.Status = status[0]
	}
	return e
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is 同为 *Error 时按 Code 比较，否则查原因链
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return errors.Is(e.Err, target)
}

// WithError 派生一个带原因的副本
func (e *Error) WithError(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// WithMessage 派生一个替换了 Message 的副本，原因保留
func (e *Error) WithMessage(message string) *Error {
	c := *e
	c.Message = message
	return &c
}

// As 同标准库 errors.As
func As(err error, target any) bool { return errors.As(err, target) }

// Is 同标准库 errors.Is
func Is(err, target error) bool { return errors.Is(err, target) }

// CodeOf 错误链上第一个 *Error 的 Code，没有则为 ErrServer.Code
func CodeOf(err error) int {
	if e, ok := lookup(err); ok {
		return e.Code
	}
	return ErrServer.Code
}

// StatusOf 错误链上第一个 *Error 的 HTTP 状态，没有则为 500
func StatusOf(err error) int {
	if e, ok := lookup(err); ok {
		return e.Status
	}
	return ErrServer.Status
}

func lookup(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
