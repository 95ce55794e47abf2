package inproc

import "errors"

// 进程内通信器相关错误
var (
	// ErrBadWorld 世界参数非法或聚合轮次被错误使用
	ErrBadWorld = errors.New("invalid in-process world")
	// ErrBadAddress 目标秩越界、指向自身或类别非法
	ErrBadAddress = errors.New("invalid message address")
	// ErrClosed 通信器已关闭
	ErrClosed = errors.New("communicator closed")
	// ErrNoPending 没有任何待决操作可等待
	ErrNoPending = errors.New("no pending operations")
)
