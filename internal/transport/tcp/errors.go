package tcp

import "errors"

// TCP 通信器相关错误
var (
	// ErrBadWorld 世界配置非法
	ErrBadWorld = errors.New("invalid tcp world")
	// ErrBadAddress 目标秩越界、指向自身或类别非法
	ErrBadAddress = errors.New("invalid message address")
	// ErrNotStarted 通信器尚未建立全网格连接
	ErrNotStarted = errors.New("transport not started")
	// ErrClosed 通信器已关闭
	ErrClosed = errors.New("transport closed")
	// ErrNoPending 没有任何待决操作可等待
	ErrNoPending = errors.New("no pending operations")
	// ErrHandshake 握手失败
	ErrHandshake = errors.New("handshake failed")
	// ErrBadFrame 帧格式损坏
	ErrBadFrame = errors.New("malformed frame")
)
