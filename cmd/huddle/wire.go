package main

import (
	"context"
	"slices"

	"github.com/tokmz/huddle"
	"github.com/tokmz/huddle/middleware"
	"github.com/tokmz/huddle/pkg/auth"
	"github.com/tokmz/huddle/pkg/config"
	"github.com/tokmz/huddle/pkg/logger"
	"github.com/tokmz/huddle/pkg/notify"
	"github.com/tokmz/huddle/pkg/persist"
	"github.com/tokmz/huddle/pkg/tracing"
	"github.com/tokmz/huddle/pkg/ws"
)

// loggerConfig 日志配置映射
func loggerConfig(s config.LogSettings) (*logger.Config, error) {
	level, err := logger.ParseLevel(s.Level)
	if err != nil {
		return nil, err
	}
	format, err := logger.ParseFormat(s.Format)
	if err != nil {
		return nil, err
	}

	cfg := &logger.Config{
		Level:            level,
		Format:           format,
		Console:          true,
		EnableCaller:     true,
		EnableStacktrace: true,
	}
	switch {
	case s.File != "" && s.Rotate:
		cfg.Rotate = &logger.RotateConfig{
			Filename:   s.File,
			MaxSize:    s.MaxSize,
			MaxAge:     s.MaxAge,
			MaxBackups: s.MaxBackups,
			Compress:   s.Compress,
		}
	case s.File != "":
		cfg.File = s.File
	}
	if s.SampleInitial > 0 {
		cfg.Sampling = &logger.SamplingConfig{Initial: s.SampleInitial, Thereafter: s.SampleThereafter}
	}
	return cfg, nil
}

// tracingConfig 链路追踪配置映射
func tracingConfig(s config.TracingSettings) *tracing.Config {
	cfg := tracing.DefaultConfig()
	cfg.ServiceVersion = huddle.Version
	cfg.Enabled = s.Enabled
	cfg.Exporter = tracing.Exporter(s.Exporter)
	cfg.Endpoint = s.Endpoint
	cfg.Insecure = s.Insecure
	cfg.Sampling = tracing.Sampling(s.SamplingType)
	cfg.SamplingRate = s.SamplingRate
	cfg.Environment = s.Environment
	return cfg
}

func jwtConfig(s config.AuthSettings) auth.JWTConfig {
	return auth.JWTConfig{
		Secret:   s.Secret,
		Issuer:   s.Issuer,
		Audience: s.Audience,
		Leeway:   s.Leeway,
	}
}

// persistConfig 归档配置映射，只填充所选驱动的子配置
func persistConfig(s config.PersistSettings) *persist.Config {
	cfg := &persist.Config{
		Driver:      persist.Driver(s.Driver),
		Workers:     s.Workers,
		QueueSize:   s.QueueSize,
		SaveTimeout: s.SaveTimeout,
	}
	switch cfg.Driver {
	case persist.DriverRedis:
		r := persist.DefaultRedisConfig()
		r.Addr = s.Redis.Addr
		r.Addrs = s.Redis.Addrs
		r.Mode = persist.RedisMode(s.Redis.Mode)
		r.MasterName = s.Redis.MasterName
		r.Username = s.Redis.Username
		r.Password = s.Redis.Password
		r.DB = s.Redis.DB
		r.PoolSize = s.Redis.PoolSize
		r.StreamPrefix = s.Redis.StreamPrefix
		r.MaxLen = s.Redis.MaxLen
		cfg.Redis = r
	case persist.DriverKafka:
		k := persist.DefaultKafkaConfig()
		k.Brokers = s.Kafka.Brokers
		k.Topic = s.Kafka.Topic
		k.ClientID = s.Kafka.ClientID
		k.Version = s.Kafka.Version
		cfg.Kafka = k
	case persist.DriverSQL:
		q := persist.DefaultSQLConfig()
		q.Type = persist.DBType(s.SQL.Type)
		q.DSN = s.SQL.DSN
		q.Sources = s.SQL.Sources
		q.Policy = s.SQL.Policy
		q.MaxIdleConns = s.SQL.MaxIdleConns
		q.MaxOpenConns = s.SQL.MaxOpenConns
		q.AutoMigrate = s.SQL.AutoMigrate
		cfg.SQL = q
	}
	return cfg
}

func notifyConfig(s config.NotifySettings) *notify.Config {
	cfg := notify.DefaultConfig()
	cfg.URL = s.URL
	cfg.Exchange = s.Exchange
	cfg.Queue = s.Queue
	cfg.Prefetch = s.Prefetch
	return cfg
}

// hubOptions 实时核心配置映射
func hubOptions(s config.WSSettings, log logger.Logger, archiver ws.Archiver) []ws.Option {
	opts := []ws.Option{
		ws.WithMaxConnections(s.MaxConnections),
		ws.WithHandshakeTimeout(s.HandshakeTimeout),
		ws.WithHeartbeat(s.HeartbeatInterval, s.HeartbeatTimeout),
		ws.WithMessageSizeLimit(s.MaxMessageSize),
		ws.WithSendQueueSize(s.SendQueueSize),
		ws.WithMaxInvalidFrames(s.MaxInvalidFrames),
		ws.WithRoomLimits(s.MaxRoomSize, s.MaxRoomsPerConn),
		ws.WithEnableCompression(s.EnableCompression),
		ws.WithLogger(log),
	}
	switch {
	case slices.Contains(s.AllowedOrigins, "*"):
		opts = append(opts, ws.WithAllowAllOrigins())
	case len(s.AllowedOrigins) > 0:
		opts = append(opts, ws.WithCheckOriginWhitelist(s.AllowedOrigins))
	}
	if archiver != nil {
		opts = append(opts, ws.WithArchiver(archiver))
	}
	return opts
}

// archiver 把 room.message 交给异步归档队列，不阻塞广播
func archiver(async *persist.Async) ws.Archiver {
	return ws.ArchiverFunc(func(_ context.Context, ev *ws.Event, text string) {
		async.Submit(persist.Record{
			ID:         ev.ID,
			RoomID:     ev.RoomID,
			SenderID:   ev.SenderID,
			SenderName: ev.SenderName,
			Text:       text,
			CreatedAt:  ev.Timestamp,
		})
	})
}

// apiConfig 路由中间件：WebSocket 入口限流，/api/v1 追踪与 CORS
func apiConfig(s *config.Settings, verifier auth.Verifier, log logger.Logger) (huddle.APIConfig, func()) {
	cfg := huddle.APIConfig{
		WSPath:   s.WS.Path,
		Verifier: verifier,
		APIMiddlewares: []huddle.HandlerFunc{
			middleware.Tracing(),
			middleware.CORS(&middleware.CORSConfig{
				AllowOrigins: s.CORS.AllowOrigins,
				MaxAge:       s.CORS.MaxAge,
			}),
		},
	}

	stop := func() {}
	if s.RateLimit.Enabled {
		rl := middleware.NewRateLimiter(&middleware.RateLimiterConfig{
			RequestsPerSecond: s.RateLimit.RequestsPerSecond,
			Burst:             s.RateLimit.Burst,
			Logger:            log,
		})
		cfg.WSMiddlewares = append(cfg.WSMiddlewares, rl.Handler())
		stop = rl.Stop
	}
	return cfg, stop
}
