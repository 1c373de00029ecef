// Package persist 聊天消息归档
//
// 广播路径只调用 Async.Submit，存储失败只记录日志，不影响投递。
package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/tokmz/huddle/pkg/logger"
)

// Record 一条待归档的房间消息
type Record struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"roomId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store 存储后端
type Store interface {
	Save(ctx context.Context, r Record) error
	Close() error
}

// nopStore 丢弃所有记录
type nopStore struct{}

func (nopStore) Save(context.Context, Record) error { return nil }
func (nopStore) Close() error                       { return nil }

// Nop 返回不做任何事的 Store
func Nop() Store { return nopStore{} }

// New 根据驱动创建 Store，返回值已带链路追踪
func New(cfg *Config, log logger.Logger) (Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.Nop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case DriverNone, "":
		return Nop(), nil
	case DriverRedis:
		store, err = newRedisStore(cfg.Redis)
	case DriverKafka:
		store, err = newKafkaStore(cfg.Kafka, log)
	case DriverSQL:
		store, err = newSQLStore(cfg.SQL, log)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return NewTracing(store, cfg.Driver), nil
}
