package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/tokmz/huddle/pkg/logger"
)

// kafkaStore 异步生产者，投递失败在 Errors 通道上异步报告
type kafkaStore struct {
	producer sarama.AsyncProducer
	topic    string
	log      logger.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// newKafkaStore 连接 broker 并创建生产者
func newKafkaStore(cfg *KafkaConfig, log logger.Logger) (*kafkaStore, error) {
	sc, err := newSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}
	producer, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	return newKafkaStoreWithProducer(producer, cfg.Topic, log), nil
}

// newSaramaConfig 转换为 sarama 配置
func newSaramaConfig(cfg *KafkaConfig) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	if cfg.ClientID != "" {
		sc.ClientID = cfg.ClientID
	}
	if cfg.Version != "" {
		v, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		sc.Version = v
	}
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Producer.Return.Successes = false
	sc.Producer.Return.Errors = true
	return sc, nil
}

func newKafkaStoreWithProducer(producer sarama.AsyncProducer, topic string, log logger.Logger) *kafkaStore {
	s := &kafkaStore{
		producer: producer,
		topic:    topic,
		log:      log.Named("persist.kafka"),
		done:     make(chan struct{}),
	}
	go s.drainErrors()
	return s
}

// drainErrors 必须持续读取 Errors，否则生产者会阻塞
func (s *kafkaStore) drainErrors() {
	defer close(s.done)
	for perr := range s.producer.Errors() {
		var room string
		if perr.Msg != nil {
			if k, err := perr.Msg.Key.Encode(); err == nil {
				room = string(k)
			}
		}
		s.log.Warn("kafka produce failed",
			zap.String("topic", s.topic),
			zap.String("room_id", room),
			zap.Error(perr.Err),
		)
	}
}

// Save 放入生产者输入队列，键为房间 ID 以保证同房间有序
func (s *kafkaStore) Save(ctx context.Context, r Record) error {
	value, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSave, err)
	}
	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(r.RoomID),
		Value: sarama.ByteEncoder(value),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrSave, ctx.Err())
	}
}

// Close 关闭生产者并等待错误通道排空
func (s *kafkaStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.producer.AsyncClose()
	<-s.done
	return nil
}
