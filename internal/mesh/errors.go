package mesh

import "errors"

// 森林构建相关错误
var (
	// ErrBadSpec 构建描述非法
	ErrBadSpec = errors.New("invalid forest spec")
)
