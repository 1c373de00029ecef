package errors

import "net/http"

// 通用错误码 1000-1099；各包在自己的 errors.go 里从其他号段分配
var (
	ErrServer          = New(1000, "服务器异常", http.StatusInternalServerError)
	ErrBadRequest      = New(1001, "请求异常", http.StatusBadRequest)
	ErrUnauthorized    = New(1002, "授权异常", http.StatusUnauthorized)
	ErrForbidden       = New(1003, "禁止访问", http.StatusForbidden)
	ErrNotFound        = New(1004, "资源不存在", http.StatusNotFound)
	ErrTooManyRequests = New(1005, "请求过于频繁", http.StatusTooManyRequests)
	ErrUnavailable     = New(1006, "服务不可用", http.StatusServiceUnavailable)
)
