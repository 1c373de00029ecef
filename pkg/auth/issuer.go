package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer 签发 HS256 凭证，用于开发工具和测试
type Issuer struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewIssuer 创建签发器，ttl<=0 时默认 24 小时
func NewIssuer(cfg JWTConfig, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{
		key:      []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Issue 为 Principal 签发凭证
func (i *Issuer) Issue(p Principal) (string, error) {
	now := i.now()
	claims := &Claims{
		Name:  p.Name,
		Email: p.Email,
		Roles: p.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
}
