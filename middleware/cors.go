package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tokmz/huddle"
)

// CORSConfig relay API 跨域配置，零值字段使用默认值
type CORSConfig struct {
	// AllowOrigins 精确源或 "https://*.example.com" 形式的子域通配，"*" 允许所有
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool // 不能与 "*" 同时使用
	MaxAge           time.Duration
}

// DefaultCORSConfig 返回默认配置
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "Traceparent"},
		ExposeHeaders: []string{"Traceparent"},
		MaxAge:        12 * time.Hour,
	}
}

// CORS 创建跨域中间件，不允许的源照常处理但不带 CORS 头
func CORS(cfgs ...*CORSConfig) huddle.HandlerFunc {
	cfg := DefaultCORSConfig()
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = withCORSDefaults(cfgs[0], cfg)
	}

	origins := newOriginMatcher(cfg.AllowOrigins)
	if cfg.AllowCredentials && origins.any {
		panic(`huddle/middleware: CORS AllowCredentials cannot be used with AllowOrigins ["*"]`)
	}

	preflight := map[string]string{
		"Access-Control-Allow-Methods": strings.Join(cfg.AllowMethods, ", "),
		"Access-Control-Allow-Headers": strings.Join(cfg.AllowHeaders, ", "),
		"Access-Control-Max-Age":       strconv.Itoa(int(cfg.MaxAge / time.Second)),
	}
	expose := strings.Join(cfg.ExposeHeaders, ", ")

	return func(c *huddle.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" || !origins.match(origin) {
			c.Next()
			return
		}

		if origins.any {
			c.Header("Access-Control-Allow-Origin", "*")
		} else {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		if cfg.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		if expose != "" {
			c.Header("Access-Control-Expose-Headers", expose)
		}

		if c.Request().Method == http.MethodOptions {
			for k, v := range preflight {
				c.Header(k, v)
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func withCORSDefaults(cfg, def *CORSConfig) *CORSConfig {
	out := *cfg
	if len(out.AllowOrigins) == 0 {
		out.AllowOrigins = def.AllowOrigins
	}
	if len(out.AllowMethods) == 0 {
		out.AllowMethods = def.AllowMethods
	}
	if len(out.AllowHeaders) == 0 {
		out.AllowHeaders = def.AllowHeaders
	}
	if out.ExposeHeaders == nil {
		out.ExposeHeaders = def.ExposeHeaders
	}
	if out.MaxAge <= 0 {
		out.MaxAge = def.MaxAge
	}
	return &out
}

// originMatcher 精确匹配 + 单个 "*" 子域通配
type originMatcher struct {
	any       bool
	exact     map[string]struct{}
	wildcards [][2]string // prefix, suffix
}

func newOriginMatcher(origins []string) *originMatcher {
	m := &originMatcher{exact: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		if o == "*" {
			m.any = true
			continue
		}
		if prefix, suffix, ok := strings.Cut(o, "*"); ok {
			m.wildcards = append(m.wildcards, [2]string{prefix, suffix})
			continue
		}
		m.exact[o] = struct{}{}
	}
	return m
}

func (m *originMatcher) match(origin string) bool {
	if m.any {
		return true
	}
	if _, ok := m.exact[origin]; ok {
		return true
	}
	for _, w := range m.wildcards {
		if !strings.HasPrefix(origin, w[0]) || !strings.HasSuffix(origin, w[1]) {
			continue
		}
		// 通配部分必须是非空的主机名片段
		label := origin[len(w[0]) : len(origin)-len(w[1])]
		if label != "" && !strings.ContainsAny(label, "/:") {
			return true
		}
	}
	return false
}
