package numbering

import "errors"

var (
	// ErrSlotConflict 槽位被重复赋值
	ErrSlotConflict = errors.New("numbering: slot assigned twice")

	// ErrTraversalOrder 遍历事件违反相位或升序契约
	ErrTraversalOrder = errors.New("numbering: traversal order violation")

	// ErrInvalidEvent 事件携带非法数据（侧数、索引越界、缺少本地侧）
	ErrInvalidEvent = errors.New("numbering: invalid traversal event")

	// ErrCountMismatch 计数器与注册表不一致
	ErrCountMismatch = errors.New("numbering: count mismatch")

	// ErrOverflow 索引计数器溢出
	ErrOverflow = errors.New("numbering: index counter overflow")
)
