// Package interfaces 定义 MeshDOF 公共接口
//
// 本文件定义 Communicator 接口：交换协议消耗的全部消息原语。
package interfaces

import (
	"context"

	"github.com/meshdof/go-meshdof/pkg/types"
)

// Communicator 定义秩间消息接口
//
// 提供交换协议所需的三种原语：非阻塞点对点收发、
// 对所有未决操作的"等待任意完成"、以及单整数 Allgather 集合。
//
// 实现必须保证：同一 (对端, 类别) 上的报文按发送顺序送达；
// 完成事件经由 WaitAny 串行交付，调用方无需加锁。
type Communicator interface {
	// Rank 返回本进程的秩
	Rank() types.Rank

	// Size 返回世界大小（参与的秩数）
	Size() int

	// Isend 发起非阻塞发送
	//
	// payload 的所有权移交实现，完成前调用方不得修改。
	// 返回的 Operation 用于在 WaitAny 完成事件中识别该操作。
	Isend(ctx context.Context, to types.Rank, category types.Category, payload []byte) (Operation, error)

	// Irecv 发起非阻塞接收
	//
	// 匹配来自 from 的下一条 category 类别报文。
	Irecv(ctx context.Context, from types.Rank, category types.Category) (Operation, error)

	// WaitAny 阻塞直到任意未决操作完成
	//
	// 无未决操作时立即返回错误。ctx 取消时返回 ctx 错误；
	// 协议本身没有超时，取消是调用方唯一的逃逸通道。
	WaitAny(ctx context.Context) (Completion, error)

	// Allgather 收集每秩一个整数
	//
	// 集合操作：所有秩各贡献一个值，返回按秩序排列的全表。
	// 所有秩必须各调用恰好一次。
	Allgather(ctx context.Context, value uint64) ([]uint64, error)

	// Close 关闭通信器并释放资源
	Close() error
}

// ============================================================================
//                              操作与完成事件
// ============================================================================

// OpKind 非阻塞操作种类
type OpKind int

const (
	// OpSend 发送操作
	OpSend OpKind = iota
	// OpRecv 接收操作
	OpRecv
)

// String 返回操作种类的字符串表示
func (k OpKind) String() string {
	switch k {
	case OpSend:
		return "send"
	case OpRecv:
		return "recv"
	default:
		return "unknown"
	}
}

// Operation 一次未决的非阻塞操作的标识
type Operation struct {
	// ID 通信器内唯一的操作序号
	ID uint64

	// Kind 操作种类
	Kind OpKind

	// Peer 对端秩
	Peer types.Rank

	// Category 消息类别
	Category types.Category
}

// Completion 一次操作的完成事件
type Completion struct {
	// Op 完成的操作
	Op Operation

	// Payload 接收完成时为收到的报文载荷；发送完成时为 nil
	Payload []byte

	// Err 操作失败原因；成功时为 nil
	Err error
}
