// Package notify 从 RabbitMQ 消费积分/上传等服务发出的通知，转交给 Hub 投递
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/tokmz/huddle/pkg/auth"
	"github.com/tokmz/huddle/pkg/logger"
)

// Relay 投递目标，由 ws.Hub 实现
type Relay interface {
	Notify(ctx context.Context, from auth.Principal, principalID, typ string, data json.RawMessage) (int, error)
	Announce(ctx context.Context, from auth.Principal, typ string, data json.RawMessage) (int, error)
}

// Message 消息体
type Message struct {
	PrincipalID string          `json:"principalId,omitempty"`
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data,omitempty"`
}

var errDeliveriesClosed = errors.New("deliveries channel closed")

// Consumer AMQP 消费者，断线后按指数退避重连
type Consumer struct {
	cfg    *Config
	relay  Relay
	from   auth.Principal
	dedupe *dedupe
	log    logger.Logger
}

// NewConsumer 创建消费者，from 作为投递事件的发送方
func NewConsumer(cfg *Config, relay Relay, from auth.Principal, log logger.Logger) (*Consumer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if relay == nil {
		return nil, fmt.Errorf("%w: relay is required", ErrInvalidConfig)
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Consumer{
		cfg:    cfg,
		relay:  relay,
		from:   from,
		dedupe: newDedupe(cfg.DedupeCapacity, cfg.DedupeFPRate),
		log:    log.Named("notify"),
	}, nil
}

// Run 阻塞消费直到 ctx 结束
func (c *Consumer) Run(ctx context.Context) error {
	backoff := c.cfg.ReconnectMin
	for {
		connected, err := c.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if connected {
			backoff = c.cfg.ReconnectMin
		}
		c.log.Warn("amqp consumer disconnected",
			zap.Error(err),
			zap.Duration("retry_in", backoff),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, c.cfg.ReconnectMax)
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

// consume 建立连接并处理投递，connected 表示拓扑声明已成功
func (c *Consumer) consume(ctx context.Context) (connected bool, err error) {
	props := amqp091.NewConnectionProperties()
	props.SetClientConnectionName("huddle-notify")
	conn, err := amqp091.DialConfig(c.cfg.URL, amqp091.Config{
		Heartbeat:  10 * time.Second,
		Properties: props,
	})
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return false, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	deliveries, err := c.declare(ch)
	if err != nil {
		return false, err
	}
	closed := conn.NotifyClose(make(chan *amqp091.Error, 1))

	c.log.Info("amqp consumer started",
		zap.String("exchange", c.cfg.Exchange),
		zap.String("queue", c.cfg.Queue),
	)

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case e := <-closed:
			if e == nil {
				return true, errDeliveriesClosed
			}
			return true, e
		case d, ok := <-deliveries:
			if !ok {
				return true, errDeliveriesClosed
			}
			c.handle(ctx, d)
		}
	}
}

// declare 声明 topic 交换机和持久队列并绑定两个路由键
func (c *Consumer) declare(ch *amqp091.Channel) (<-chan amqp091.Delivery, error) {
	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	for _, key := range []string{RoutingNotify, RoutingAnnounce} {
		if err := ch.QueueBind(q.Name, key, c.cfg.Exchange, false, nil); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	if c.cfg.Prefetch > 0 {
		if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("qos: %w", err)
		}
	}
	deliveries, err := ch.Consume(q.Name, c.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

// handle 处理单条投递
// 格式错误和投递被拒绝的消息不重新入队，重复消息直接确认
func (c *Consumer) handle(ctx context.Context, d amqp091.Delivery) {
	log := c.log.With(
		zap.String("routing_key", d.RoutingKey),
		zap.String("message_id", d.MessageId),
	)

	if d.MessageId != "" && c.dedupe.Seen(d.MessageId) {
		log.Debug("duplicate delivery dropped")
		c.ack(log, d)
		return
	}

	delivered, err := c.relayMessage(ctx, d.RoutingKey, d.Body)
	if err != nil {
		log.Warn("notification rejected", zap.Error(err))
		if rerr := d.Reject(false); rerr != nil {
			log.Error("reject failed", zap.Error(rerr))
		}
		return
	}

	if d.MessageId != "" {
		c.dedupe.Add(d.MessageId)
	}
	log.Debug("notification relayed", zap.Int("delivered", delivered))
	c.ack(log, d)
}

func (c *Consumer) ack(log logger.Logger, d amqp091.Delivery) {
	if err := d.Ack(false); err != nil {
		log.Error("ack failed", zap.Error(err))
	}
}

// relayMessage 解析消息并按路由键交给 Relay
func (c *Consumer) relayMessage(ctx context.Context, routingKey string, body []byte) (int, error) {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return 0, ErrMalformed.WithError(err)
	}
	if strings.TrimSpace(msg.Type) == "" {
		return 0, ErrMalformed.WithMessage("notify message type is required")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.RelayTimeout)
	defer cancel()

	switch routingKey {
	case RoutingNotify:
		if strings.TrimSpace(msg.PrincipalID) == "" {
			return 0, ErrMalformed.WithMessage("notify message principalId is required")
		}
		return c.relay.Notify(ctx, c.from, msg.PrincipalID, msg.Type, msg.Data)
	case RoutingAnnounce:
		return c.relay.Announce(ctx, c.from, msg.Type, msg.Data)
	default:
		return 0, ErrUnknownRouting.WithMessage("notify unknown routing key: " + routingKey)
	}
}
