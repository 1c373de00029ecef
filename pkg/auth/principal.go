// Package auth 负责把客户端凭证换成经过校验的 Principal
package auth

import "slices"

// RoleService 服务身份，允许发送 principal.notify / broadcast.announce
const RoleService = "service"

// Principal 已认证的身份，连接存续期间不可变
type Principal struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// HasRole 检查是否拥有指定角色
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	return slices.Contains(p.Roles, role)
}
