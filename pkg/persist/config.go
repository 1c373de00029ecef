package persist

import (
	"fmt"
	"time"
)

// Driver 存储驱动
type Driver string

const (
	DriverNone  Driver = "none"
	DriverRedis Driver = "redis"
	DriverKafka Driver = "kafka"
	DriverSQL   Driver = "sql"
)

// RedisMode Redis 模式
type RedisMode string

const (
	RedisStandalone RedisMode = "standalone"
	RedisCluster    RedisMode = "cluster"
	RedisSentinel   RedisMode = "sentinel"
)

// DBType 数据库类型
type DBType string

const (
	MySQL      DBType = "mysql"
	PostgreSQL DBType = "postgres"
	SQLite     DBType = "sqlite"
	SQLServer  DBType = "sqlserver"
)

// Config 归档配置
type Config struct {
	Driver Driver

	// 异步队列
	Workers     int           // worker 数量
	QueueSize   int           // 队列长度，满了直接丢弃
	SaveTimeout time.Duration // 单次写入超时

	Redis *RedisConfig
	Kafka *KafkaConfig
	SQL   *SQLConfig
}

// RedisConfig 写入 Redis Stream，每个房间一个 stream
type RedisConfig struct {
	Addr         string        // 地址（单机）
	Addrs        []string      // 地址列表（集群/哨兵）
	Mode         RedisMode     // standalone, cluster, sentinel
	MasterName   string        // 哨兵主节点名称
	Username     string        // 用户名（Redis 6.0+）
	Password     string        // 密码
	DB           int           // 数据库编号
	PoolSize     int           // 连接池大小
	DialTimeout  time.Duration // 连接超时
	WriteTimeout time.Duration // 写超时

	StreamPrefix string // stream 键前缀，完整键为 prefix + roomId
	MaxLen       int64  // 每个 stream 近似保留条数，0 不裁剪
}

// KafkaConfig 写入 Kafka topic，key 为房间 ID
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
	Version  string // 如 3.6.0，空则使用 sarama 默认
}

// SQLConfig 写入 chat_messages 表
type SQLConfig struct {
	Type DBType
	DSN  string

	// Sources 额外写库 DSN，非空时与主库一起按 Policy 分摊写入
	Sources []string
	Policy  string // random（默认）, round_robin

	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration

	LogLevel      int           // 1:Silent 2:Error 3:Warn 4:Info
	SlowThreshold time.Duration // 慢查询阈值
	AutoMigrate   bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Driver:      DriverNone,
		Workers:     2,
		QueueSize:   1024,
		SaveTimeout: 3 * time.Second,
	}
}

// DefaultRedisConfig 默认 Redis 配置
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		Mode:         RedisStandalone,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		WriteTimeout: 3 * time.Second,
		StreamPrefix: "huddle:room:",
		MaxLen:       10000,
	}
}

// DefaultKafkaConfig 默认 Kafka 配置
func DefaultKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers:  []string{"localhost:9092"},
		Topic:    "huddle.messages",
		ClientID: "huddle",
	}
}

// DefaultSQLConfig 默认数据库配置
func DefaultSQLConfig() *SQLConfig {
	return &SQLConfig{
		Type:            MySQL,
		MaxIdleConns:    10,
		MaxOpenConns:    50,
		ConnMaxLifetime: time.Hour,
		LogLevel:        3,
		SlowThreshold:   200 * time.Millisecond,
		AutoMigrate:     true,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Workers < 0 || c.QueueSize < 0 || c.SaveTimeout < 0 {
		return fmt.Errorf("%w: queue settings must not be negative", ErrInvalidConfig)
	}

	switch c.Driver {
	case DriverNone, "":
		return nil
	case DriverRedis:
		if c.Redis == nil {
			return fmt.Errorf("%w: redis config is required", ErrInvalidConfig)
		}
		if c.Redis.Mode != RedisStandalone && c.Redis.Mode != "" && len(c.Redis.Addrs) == 0 {
			return fmt.Errorf("%w: %s mode requires addrs", ErrInvalidConfig, c.Redis.Mode)
		}
		if c.Redis.Mode == RedisSentinel && c.Redis.MasterName == "" {
			return fmt.Errorf("%w: sentinel mode requires master name", ErrInvalidConfig)
		}
		if c.Redis.MaxLen < 0 {
			return fmt.Errorf("%w: redis max len must not be negative", ErrInvalidConfig)
		}
	case DriverKafka:
		if c.Kafka == nil {
			return fmt.Errorf("%w: kafka config is required", ErrInvalidConfig)
		}
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("%w: kafka brokers are required", ErrInvalidConfig)
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("%w: kafka topic is required", ErrInvalidConfig)
		}
	case DriverSQL:
		if c.SQL == nil {
			return fmt.Errorf("%w: sql config is required", ErrInvalidConfig)
		}
		if c.SQL.DSN == "" {
			return fmt.Errorf("%w: sql dsn is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, c.Driver)
	}
	return nil
}
