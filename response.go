package huddle

import "net/http"

// CodeOK 成功响应的 code，错误响应使用 pkg/errors 的错误码
const CodeOK = http.StatusOK

// Response relay API 响应体
type Response struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

func NewResponse(code int, data any, message string) *Response {
	return &Response{Code: code, Data: data, Message: message}
}

// Success 成功响应体
func Success(data any) *Response {
	return NewResponse(CodeOK, data, "success")
}
