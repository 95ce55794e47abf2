package collective

import "errors"

// 偏移聚合相关错误
var (
	// ErrBadCount 拥有数非法或世界计数不符
	ErrBadCount = errors.New("bad owned count")
)
