package config

import (
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
)

// Watch 监控配置文件，变更后重新加载并回调
// 校验失败时保留旧配置并调用 onError
func (c *Config) Watch() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.watching {
		return nil
	}
	if c.viper.ConfigFileUsed() == "" {
		return fmt.Errorf("%w: no config file to watch", ErrConfigNotFound)
	}

	c.viper.OnConfigChange(func(fsnotify.Event) {
		c.reload()
	})
	c.viper.WatchConfig()
	c.watching = true
	return nil
}

// StopWatch 停止回调
// 注意：viper 未提供停止底层 fsnotify watcher 的方法，此方法仅使回调不再生效
func (c *Config) StopWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watching = false
}

// reload viper 已重新读取文件，这里只做反序列化和校验
func (c *Config) reload() {
	c.mu.Lock()
	if !c.watching {
		c.mu.Unlock()
		return
	}
	s, err := c.decode()
	if err == nil {
		c.settings = s
	}
	onChange, onError := c.onChange, c.onError
	c.mu.Unlock()

	// 释放锁后回调，避免回调中读取配置导致死锁
	if err != nil {
		c.reportError(err, onError)
		return
	}
	if onChange != nil {
		onChange(s)
	}
}

// reportError 优先使用 onError 回调，否则输出到 stderr
func (c *Config) reportError(err error, onError func(error)) {
	if onError != nil {
		onError(err)
		return
	}
	fmt.Fprintf(os.Stderr, "[config] %v\n", err)
}
