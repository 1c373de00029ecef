package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// streamClient redisStore 用到的命令子集
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// redisStore 每个房间一个 stream，XADD 时近似裁剪
type redisStore struct {
	client streamClient
	prefix string
	maxLen int64
}

// newRedisStore 创建 Redis 存储
func newRedisStore(cfg *RedisConfig) (*redisStore, error) {
	client, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	return &redisStore{client: client, prefix: cfg.StreamPrefix, maxLen: cfg.MaxLen}, nil
}

// newRedisClient 根据模式创建客户端
func newRedisClient(cfg *RedisConfig) (redis.UniversalClient, error) {
	switch cfg.Mode {
	case RedisStandalone, "":
		return redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  cfg.DialTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}), nil
	case RedisCluster:
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addrs,
			Username:     cfg.Username,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			DialTimeout:  cfg.DialTimeout,
			WriteTimeout: cfg.WriteTimeout,
		}), nil
	case RedisSentinel:
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.Addrs,
			Username:      cfg.Username,
			Password:      cfg.Password,
			DB:            cfg.DB,
			PoolSize:      cfg.PoolSize,
			DialTimeout:   cfg.DialTimeout,
			WriteTimeout:  cfg.WriteTimeout,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unsupported redis mode: %s", ErrInvalidConfig, cfg.Mode)
	}
}

// Save 追加到房间 stream
func (s *redisStore) Save(ctx context.Context, r Record) error {
	args := &redis.XAddArgs{
		Stream: s.prefix + r.RoomID,
		Values: map[string]any{
			"id":         r.ID,
			"senderId":   r.SenderID,
			"senderName": r.SenderName,
			"text":       r.Text,
			"createdAt":  r.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSave, err)
	}
	return nil
}

// Close 关闭连接
func (s *redisStore) Close() error {
	return s.client.Close()
}
