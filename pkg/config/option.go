package config

// Option 配置选项函数
type Option func(*Config)

// WithConfigFile 指定配置文件完整路径
func WithConfigFile(path string) Option {
	return func(c *Config) {
		c.configFile = path
	}
}

// WithConfigName 设置配置文件名（不含扩展名）
func WithConfigName(name string) Option {
	return func(c *Config) {
		c.configName = name
	}
}

// WithConfigType 设置配置文件类型（如 yaml, json, toml）
func WithConfigType(typ string) Option {
	return func(c *Config) {
		c.configType = typ
	}
}

// WithConfigPaths 设置配置文件搜索路径
func WithConfigPaths(paths ...string) Option {
	return func(c *Config) {
		c.configPaths = paths
	}
}

// WithOptional 找不到配置文件时不报错
func WithOptional(optional bool) Option {
	return func(c *Config) {
		c.optional = optional
	}
}

// WithEnvPrefix 设置环境变量前缀，空字符串表示不加前缀
func WithEnvPrefix(prefix string) Option {
	return func(c *Config) {
		c.envPrefix = prefix
	}
}

// WithOnChange 配置文件变更且校验通过后回调
func WithOnChange(fn func(*Settings)) Option {
	return func(c *Config) {
		c.onChange = fn
	}
}

// WithOnError 配置文件变更后读取或校验失败时回调
func WithOnError(fn func(error)) Option {
	return func(c *Config) {
		c.onError = fn
	}
}
