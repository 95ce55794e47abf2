package config

import (
	"errors"
	"fmt"
)

// 配置校验相关错误
var (
	// ErrNegativeDuration 时长为负
	ErrNegativeDuration = errors.New("duration must not be negative")
	// ErrInvalidTransport TCP 世界配置无效
	ErrInvalidTransport = errors.New("invalid transport config")
)

// ValidateAll 验证整个配置的有效性
//
// 这是 Config.Validate() 的别名，提供更明确的语义。
// 它会递归验证所有子配置。
func ValidateAll(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}

// MustValidate 验证配置，如果失败则 panic
//
// 仅用于初始化阶段或测试代码。
// 生产代码应使用 Validate() 并处理错误。
func MustValidate(c *Config) {
	if err := ValidateAll(c); err != nil {
		panic(fmt.Sprintf("config validation failed: %v", err))
	}
}
