package auth

import (
	"net/http"
	"strings"
)

// CredentialFromRequest 读取握手请求中的凭证
// 先看 Authorization: Bearer，再看 ?token=（浏览器无法为 WebSocket 设置请求头）
func CredentialFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
