// Package config 提供统一的配置管理
package config

import "time"

// ExchangeConfig 交换配置
//
// 控制查询/应答交换轮的可观测性行为。协议本身没有超时与重试：
// 停滞告警只写日志，取消交换的唯一途径是调用方的 context。
type ExchangeConfig struct {
	// StallWarning 停滞告警阈值
	// 该时长内没有任何完成事件时记录一次告警。
	// 0 表示关闭监视。
	// 默认值: 30s
	StallWarning Duration `json:"stall_warning"`
}

// DefaultExchangeConfig 返回默认的交换配置
func DefaultExchangeConfig() ExchangeConfig {
	return ExchangeConfig{
		StallWarning: Duration(30 * time.Second),
	}
}

// Validate 验证交换配置的有效性
func (c *ExchangeConfig) Validate() error {
	if c.StallWarning < 0 {
		return ErrNegativeDuration
	}
	return nil
}
