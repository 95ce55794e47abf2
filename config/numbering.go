// Package config 提供统一的配置管理
package config

// NumberingConfig 编号配置
//
// 控制除单元中心外启用哪些节点层级。层级决定每单元的槽位数，
// 进而决定槽位数组的跨距。
type NumberingConfig struct {
	// FaceNodes 是否在面中点放置节点
	// 默认值: true
	FaceNodes bool `json:"face_nodes"`

	// CornerNodes 是否在单元角点放置节点
	// 默认值: false
	CornerNodes bool `json:"corner_nodes"`
}

// DefaultNumberingConfig 返回默认的编号配置
func DefaultNumberingConfig() NumberingConfig {
	return NumberingConfig{
		FaceNodes:   true,
		CornerNodes: false,
	}
}

// Validate 验证编号配置的有效性
func (c *NumberingConfig) Validate() error {
	// 任意层级组合都是合法布局
	return nil
}
