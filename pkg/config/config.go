// Package config 基于 viper 加载 huddle 配置
//
// 优先级：环境变量（HUDDLE_ 前缀，. 替换为 _） > 配置文件 > 默认值。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/spf13/viper"
)

// DefaultEnvPrefix 环境变量前缀
const DefaultEnvPrefix = "HUDDLE"

// Config 配置管理器
type Config struct {
	viper *viper.Viper // viper 实例
	mu    sync.RWMutex // 并发保护锁

	// 配置文件相关
	configFile  string   // 配置文件完整路径
	configName  string   // 配置文件名（不含扩展名）
	configType  string   // 配置文件类型
	configPaths []string // 配置文件搜索路径
	optional    bool     // 找不到配置文件时仅使用默认值和环境变量

	envPrefix string // 环境变量前缀

	// 监控相关
	watching bool
	onChange func(*Settings)
	onError  func(error)

	settings *Settings // 最近一次校验通过的配置
}

// New 创建新的配置管理器
func New(opts ...Option) *Config {
	c := &Config{
		viper:     viper.New(),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load 读取配置并校验
func (c *Config) Load() (*Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := setDefaults(c.viper, DefaultSettings()); err != nil {
		return nil, err
	}

	if c.envPrefix != "" {
		c.viper.SetEnvPrefix(c.envPrefix)
	}
	c.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.viper.AutomaticEnv()

	if c.configFile != "" {
		c.viper.SetConfigFile(c.configFile)
	} else {
		c.viper.SetConfigName(c.configName)
		if c.configType != "" {
			c.viper.SetConfigType(c.configType)
		}
		for _, path := range c.configPaths {
			c.viper.AddConfigPath(path)
		}
	}

	if c.configFile != "" || c.configName != "" {
		if err := c.viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
			switch {
			case missing && c.optional:
			case missing:
				return nil, ErrConfigNotFound.WithError(err)
			default:
				return nil, ErrConfigReadFailed.WithError(err)
			}
		}
	}

	s, err := c.decode()
	if err != nil {
		return nil, err
	}
	c.settings = s
	return s, nil
}

// decode 反序列化并校验，调用方持有锁
func (c *Config) decode() (*Settings, error) {
	s := &Settings{}
	if err := c.viper.Unmarshal(s); err != nil {
		return nil, ErrConfigReadFailed.WithError(err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Settings 最近一次加载成功的配置
func (c *Config) Settings() *Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// ConfigFileUsed 实际读取的配置文件
func (c *Config) ConfigFileUsed() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viper.ConfigFileUsed()
}

// Viper 获取底层 viper 实例
// 注意：直接操作 viper 实例不受 Config 的并发锁保护
func (c *Config) Viper() *viper.Viper {
	return c.viper
}

// setDefaults 把默认配置展开成 viper 的点分键
// 每个键都需要注册默认值，AutomaticEnv 才能在 Unmarshal 时覆盖它
func setDefaults(v *viper.Viper, s *Settings) error {
	raw, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("unmarshal defaults: %w", err)
	}
	flatten("", tree, func(key string, value any) {
		v.SetDefault(key, value)
	})
	return nil
}

func flatten(prefix string, tree map[string]any, set func(string, any)) {
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok && len(sub) > 0 {
			flatten(key, sub, set)
			continue
		}
		set(key, val)
	}
}
