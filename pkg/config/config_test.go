package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

const testYAML = `
server:
  addr: ":9090"
  mode: debug
ws:
  max_connections: 100
  handshake_timeout: 2s
  allowed_origins:
    - https://study.example.com
auth:
  secret: "0123456789abcdef0123456789abcdef"
  issuer: study-hub
persist:
  driver: redis
  redis:
    addr: redis:6379
    max_len: 500
log:
  level: warn
`

func writeTestConfig(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HUDDLE_AUTH_SECRET", testSecret)

	s, err := New(WithConfigName("missing"), WithConfigPaths(t.TempDir()), WithOptional(true)).Load()
	require.NoError(t, err)

	want := DefaultSettings()
	assert.Equal(t, want.Server.Addr, s.Server.Addr)
	assert.Equal(t, want.WS.MaxConnections, s.WS.MaxConnections)
	assert.Equal(t, 5*time.Second, s.WS.HandshakeTimeout)
	assert.Equal(t, int64(64*1024), s.WS.MaxMessageSize)
	assert.Equal(t, "none", s.Persist.Driver)
	assert.Equal(t, []string{"*"}, s.CORS.AllowOrigins)
	assert.Equal(t, []string{"localhost:9092"}, s.Persist.Kafka.Brokers)
	assert.InDelta(t, 1.0, s.Tracing.SamplingRate, 1e-9)
	assert.Equal(t, testSecret, s.Auth.Secret)
	assert.Equal(t, "user:s3cret@tcp(db2)/huddle", s.Persist.SQL.Sources[0])
}

func TestLoadFile(t *testing.T) {
	path := writeTestConfig(t, t.TempDir(), "huddle.yaml", testYAML)

	c := New(WithConfigFile(path))
	s, err := c.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", s.Server.Addr)
	assert.Equal(t, "debug", s.Server.Mode)
	assert.Equal(t, 100, s.WS.MaxConnections)
	assert.Equal(t, 2*time.Second, s.WS.HandshakeTimeout)
	assert.Equal(t, []string{"https://study.example.com"}, s.WS.AllowedOrigins)
	assert.Equal(t, "study-hub", s.Auth.Issuer)
	assert.Equal(t, "redis", s.Persist.Driver)
	assert.Equal(t, "redis:6379", s.Persist.Redis.Addr)
	assert.Equal(t, int64(500), s.Persist.Redis.MaxLen)
	assert.Equal(t, "warn", s.Log.Level)
	// 未出现在文件中的键保持默认值
	assert.Equal(t, 256, s.WS.SendQueueSize)
	assert.Equal(t, "huddle:room:", s.Persist.Redis.StreamPrefix)

	assert.Same(t, s, c.Settings())
	assert.Equal(t, path, c.ConfigFileUsed())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeTestConfig(t, t.TempDir(), "huddle.yaml", testYAML)
	t.Setenv("HUDDLE_WS_MAX_CONNECTIONS", "7")
	t.Setenv("HUDDLE_WS_HANDSHAKE_TIMEOUT", "750ms")
	t.Setenv("HUDDLE_PERSIST_DRIVER", "kafka")

	s, err := New(WithConfigFile(path)).Load()
	require.NoError(t, err)

	assert.Equal(t, 7, s.WS.MaxConnections)
	assert.Equal(t, 750*time.Millisecond, s.WS.HandshakeTimeout)
	assert.Equal(t, "kafka", s.Persist.Driver)
}

func TestLoadErrors(t *testing.T) {
	_, err := New(WithConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))).Load()
	assert.True(t, errors.Is(err, ErrConfigNotFound), "got %v", err)

	_, err = New(WithConfigName("nope"), WithConfigType("yaml"), WithConfigPaths(t.TempDir())).Load()
	assert.True(t, errors.Is(err, ErrConfigNotFound), "got %v", err)

	bad := writeTestConfig(t, t.TempDir(), "bad.yaml", "server: [unclosed")
	_, err = New(WithConfigFile(bad)).Load()
	assert.True(t, errors.Is(err, ErrConfigReadFailed), "got %v", err)

	// 缺少密钥
	noSecret := writeTestConfig(t, t.TempDir(), "huddle.yaml", "server:\n  addr: \":1\"\n")
	_, err = New(WithConfigFile(noSecret)).Load()
	assert.True(t, errors.Is(err, ErrConfigInvalid), "got %v", err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"valid", func(*Settings) {}, false},
		{"short secret", func(s *Settings) { s.Auth.Secret = "short" }, true},
		{"no addr", func(s *Settings) { s.Server.Addr = "" }, true},
		{"bad mode", func(s *Settings) { s.Server.Mode = "prod" }, true},
		{"relative ws path", func(s *Settings) { s.WS.Path = "ws" }, true},
		{"bad ratelimit", func(s *Settings) { s.RateLimit.Burst = 0 }, true},
		{"ratelimit disabled", func(s *Settings) { s.RateLimit = RateLimitSettings{} }, false},
		{"bad persist driver", func(s *Settings) { s.Persist.Driver = "mongo" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			s.Auth.Secret = testSecret
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrConfigInvalid), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestYAMLRedactsSecrets(t *testing.T) {
	s := DefaultSettings()
	s.Auth.Secret = testSecret
	s.Persist.Redis.Password = "hunter2"
	s.Persist.SQL.Sources = []string{"user:s3cret@tcp(db2)/huddle"}

	out, err := s.YAML()
	require.NoError(t, err)
	text := string(out)

	assert.NotContains(t, text, testSecret)
	assert.NotContains(t, text, "hunter2")
	assert.NotContains(t, text, "s3cret")
	assert.Contains(t, text, redacted)
	assert.Contains(t, text, "handshake_timeout: 5s")
	// 原配置不受影响
	assert.Equal(t, testSecret, s.Auth.Secret)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := writeTestConfig(t, dir, "huddle.yaml", testYAML)

	changed := make(chan *Settings, 4)
	c := New(
		WithConfigFile(path),
		WithOnChange(func(s *Settings) {
			select {
			case changed <- s:
			default:
			}
		}),
	)
	_, err := c.Load()
	require.NoError(t, err)
	require.NoError(t, c.Watch())
	defer c.StopWatch()

	updated := strings.Replace(testYAML, "level: warn", "level: debug", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))

	select {
	case s := <-changed:
		assert.Equal(t, "debug", s.Log.Level)
		assert.Equal(t, "debug", c.Settings().Log.Level)
	case <-time.After(3 * time.Second):
		t.Fatal("onChange callback was not triggered within timeout")
	}
}

func TestWatchWithoutFile(t *testing.T) {
	t.Setenv("HUDDLE_AUTH_SECRET", testSecret)
	c := New()
	_, err := c.Load()
	require.NoError(t, err)
	assert.True(t, errors.Is(c.Watch(), ErrConfigNotFound))
}
