package persist

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"

	"github.com/tokmz/huddle/pkg/logger"
)

// message chat_messages 表结构
type message struct {
	ID         string    `gorm:"primaryKey;size:36"`
	RoomID     string    `gorm:"size:191;not null;index:idx_room_created,priority:1"`
	SenderID   string    `gorm:"size:191;not null"`
	SenderName string    `gorm:"size:191"`
	Text       string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"not null;index:idx_room_created,priority:2"`
}

// TableName 表名
func (message) TableName() string {
	return "chat_messages"
}

// sqlStore gorm 存储
type sqlStore struct {
	db *gorm.DB
}

// newSQLStore 打开数据库并按需迁移
// 迁移只作用于主库，额外的 Sources 需预先建表
func newSQLStore(cfg *SQLConfig, log logger.Logger) (*sqlStore, error) {
	db, err := openDB(cfg, log)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&message{}); err != nil {
			return nil, fmt.Errorf("%w: migrate: %w", ErrConnection, err)
		}
	}
	if err := useSources(db, cfg); err != nil {
		return nil, err
	}
	return &sqlStore{db: db}, nil
}

// useSources 注册额外写库，归档写入按策略分摊到主库和各 source
func useSources(db *gorm.DB, cfg *SQLConfig) error {
	if len(cfg.Sources) == 0 {
		return nil
	}

	sources := make([]gorm.Dialector, 0, len(cfg.Sources)+1)
	for _, dsn := range append([]string{cfg.DSN}, cfg.Sources...) {
		d, err := getDialector(cfg.Type, dsn)
		if err != nil {
			return err
		}
		sources = append(sources, d)
	}

	resolver := dbresolver.Register(dbresolver.Config{
		Sources: sources,
		Policy:  sourcePolicy(cfg.Policy),
	})
	if err := db.Use(resolver); err != nil {
		return fmt.Errorf("%w: resolver: %w", ErrConnection, err)
	}
	if cfg.MaxIdleConns > 0 {
		resolver.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		resolver.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		resolver.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return nil
}

// sourcePolicy 写库负载均衡策略
func sourcePolicy(policy string) dbresolver.Policy {
	switch policy {
	case "round_robin":
		return dbresolver.RoundRobinPolicy()
	default:
		return dbresolver.RandomPolicy{}
	}
}

// openDB 创建 gorm 实例并配置连接池
func openDB(cfg *SQLConfig, log logger.Logger) (*gorm.DB, error) {
	dialector, err := getDialector(cfg.Type, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		Logger:                 newGormLogger(cfg, log),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	if err := db.Use(newTracingPlugin()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// getDialector 根据数据库类型返回对应的 Dialector
func getDialector(dbType DBType, dsn string) (gorm.Dialector, error) {
	switch dbType {
	case MySQL, "":
		return mysql.Open(dsn), nil
	case PostgreSQL:
		return postgres.Open(dsn), nil
	case SQLite:
		return sqlite.Open(dsn), nil
	case SQLServer:
		return sqlserver.Open(dsn), nil
	default:
		return nil, fmt.Errorf("%w: unsupported database type: %s", ErrInvalidConfig, dbType)
	}
}

// gormWriter 将 gorm 日志转到 zap
type gormWriter struct {
	log logger.Logger
}

func (w gormWriter) Printf(format string, args ...any) {
	w.log.Warn(fmt.Sprintf(format, args...))
}

// newGormLogger 创建 GORM 日志记录器
func newGormLogger(cfg *SQLConfig, log logger.Logger) gormlogger.Interface {
	level := gormlogger.LogLevel(cfg.LogLevel)
	if level == 0 {
		level = gormlogger.Warn
	}
	return gormlogger.New(
		gormWriter{log: log.Named("persist.sql")},
		gormlogger.Config{
			SlowThreshold:             cfg.SlowThreshold,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// Save 插入一行
func (s *sqlStore) Save(ctx context.Context, r Record) error {
	row := &message{
		ID:         r.ID,
		RoomID:     r.RoomID,
		SenderID:   r.SenderID,
		SenderName: r.SenderName,
		Text:       r.Text,
		CreatedAt:  r.CreatedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("%w: %w", ErrSave, err)
	}
	return nil
}

// Close 关闭连接池
func (s *sqlStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
