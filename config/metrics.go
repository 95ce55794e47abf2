// Package config 提供统一的配置管理
package config

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否启用指标采集
	// 默认值: true
	Enabled bool `json:"enabled"`
}

// DefaultMetricsConfig 返回默认的指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled: true,
	}
}

// Validate 验证指标配置的有效性
func (c *MetricsConfig) Validate() error {
	return nil
}
