package auth

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier 校验凭证并返回身份
// 实现必须响应 ctx 取消，调用方依赖它实现握手超时
type Verifier interface {
	Verify(ctx context.Context, credential string) (*Principal, error)
}

// VerifierFunc 函数适配器
type VerifierFunc func(ctx context.Context, credential string) (*Principal, error)

// Verify 实现 Verifier
func (f VerifierFunc) Verify(ctx context.Context, credential string) (*Principal, error) {
	return f(ctx, credential)
}

// Claims JWT 载荷
type Claims struct {
	Name  string   `json:"name,omitempty"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTConfig JWT 校验配置
type JWTConfig struct {
	Secret   string        // HS256 密钥
	Issuer   string        // 期望的 iss，空则不校验
	Audience string        // 期望的 aud，空则不校验
	Leeway   time.Duration // 时钟偏差容忍
}

// JWTVerifier 基于 HS256 的凭证校验器
type JWTVerifier struct {
	key    []byte
	parser *jwt.Parser
}

// NewJWTVerifier 创建 JWT 校验器
func NewJWTVerifier(cfg JWTConfig) *JWTVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &JWTVerifier{
		key:    []byte(cfg.Secret),
		parser: jwt.NewParser(opts...),
	}
}

// Verify 解析并校验凭证
func (v *JWTVerifier) Verify(ctx context.Context, credential string) (*Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, ErrHandshakeTimeout.WithError(err)
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrNoCredential
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(credential, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, ErrInvalidCredential.WithError(err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidCredential
	}

	return &Principal{
		ID:    claims.Subject,
		Name:  claims.Name,
		Email: claims.Email,
		Roles: claims.Roles,
	}, nil
}
