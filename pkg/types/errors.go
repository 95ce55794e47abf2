package types

import "errors"

// 公共错误定义
var (
	// ErrInvalidRank 无效的进程秩
	ErrInvalidRank = errors.New("invalid rank")

	// ErrInvalidPosition 无效的槽位位置
	ErrInvalidPosition = errors.New("invalid slot position")

	// ErrInvalidCategory 无效的消息类别
	ErrInvalidCategory = errors.New("invalid message category")

	// ErrInvalidOffsets 无效的全局偏移表
	ErrInvalidOffsets = errors.New("invalid offset table")
)
