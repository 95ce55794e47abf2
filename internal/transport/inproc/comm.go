package inproc

import (
	"context"
	"fmt"
	"sync"

	"github.com/meshdof/go-meshdof/pkg/interfaces"
	"github.com/meshdof/go-meshdof/pkg/types"
)

// mailKey 入站报文的匹配键
type mailKey struct {
	from types.Rank
	cat  types.Category
}

// pendingRecv 已挂起但未匹配到报文的接收
type pendingRecv struct {
	op interfaces.Operation
}

// ============================================================================
//                              Comm 单秩通信器
// ============================================================================

// Comm 进程内世界中一个秩的通信器
//
// 发送即时完成（报文直接入对端队列）；接收在匹配报文到达时
// 完成。完成事件经 WaitAny 串行交付。
type Comm struct {
	world *World
	rank  types.Rank

	mu     sync.Mutex
	closed bool
	nextID uint64

	// inbox 每 (发送方, 类别) 的报文 FIFO
	inbox map[mailKey][][]byte

	// recvQ 未匹配的已挂起接收，FIFO
	recvQ []pendingRecv

	// ready 待交付的完成事件，FIFO
	ready []interfaces.Completion

	// notify 在 ready 增长时置位
	notify chan struct{}
}

var _ interfaces.Communicator = (*Comm)(nil)

// Rank 返回本通信器的秩
func (c *Comm) Rank() types.Rank { return c.rank }

// Size 返回世界大小
func (c *Comm) Size() int { return c.world.size }

// Isend 发起非阻塞发送
//
// 报文直接进入对端队列，发送立即完成。
func (c *Comm) Isend(_ context.Context, to types.Rank, cat types.Category, payload []byte) (interfaces.Operation, error) {
	if !cat.IsValid() {
		return interfaces.Operation{}, fmt.Errorf("%w: category %d", ErrBadAddress, cat)
	}
	if to < 0 || int(to) >= c.world.size || to == c.rank {
		return interfaces.Operation{}, fmt.Errorf("%w: send to rank %d", ErrBadAddress, to)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return interfaces.Operation{}, ErrClosed
	}
	op := interfaces.Operation{ID: c.nextID, Kind: interfaces.OpSend, Peer: to, Category: cat}
	c.nextID++
	c.ready = append(c.ready, interfaces.Completion{Op: op})
	c.signal()
	c.mu.Unlock()

	c.world.comms[to].deliver(c.rank, cat, payload)
	return op, nil
}

// Irecv 发起非阻塞接收
func (c *Comm) Irecv(_ context.Context, from types.Rank, cat types.Category) (interfaces.Operation, error) {
	if !cat.IsValid() {
		return interfaces.Operation{}, fmt.Errorf("%w: category %d", ErrBadAddress, cat)
	}
	if from < 0 || int(from) >= c.world.size || from == c.rank {
		return interfaces.Operation{}, fmt.Errorf("%w: receive from rank %d", ErrBadAddress, from)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return interfaces.Operation{}, ErrClosed
	}

	op := interfaces.Operation{ID: c.nextID, Kind: interfaces.OpRecv, Peer: from, Category: cat}
	c.nextID++

	// 报文先到：立即完成
	key := mailKey{from: from, cat: cat}
	if q := c.inbox[key]; len(q) > 0 {
		payload := q[0]
		if len(q) == 1 {
			delete(c.inbox, key)
		} else {
			c.inbox[key] = q[1:]
		}
		c.ready = append(c.ready, interfaces.Completion{Op: op, Payload: payload})
		c.signal()
		return op, nil
	}

	c.recvQ = append(c.recvQ, pendingRecv{op: op})
	return op, nil
}

// WaitAny 阻塞直到任意未决操作完成
func (c *Comm) WaitAny(ctx context.Context) (interfaces.Completion, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return interfaces.Completion{}, ErrClosed
		}
		if len(c.ready) > 0 {
			comp := c.ready[0]
			c.ready = c.ready[1:]
			c.mu.Unlock()
			return comp, nil
		}
		if len(c.recvQ) == 0 {
			c.mu.Unlock()
			return interfaces.Completion{}, ErrNoPending
		}
		c.mu.Unlock()

		select {
		case <-c.notify:
		case <-ctx.Done():
			return interfaces.Completion{}, ctx.Err()
		}
	}
}

// Allgather 收集每秩一个整数
func (c *Comm) Allgather(ctx context.Context, value uint64) ([]uint64, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.mu.Unlock()
	return c.world.allgather(ctx, c.rank, value)
}

// Close 关闭通信器
//
// 幂等。关闭后所有操作返回 ErrClosed，阻塞中的 WaitAny 被唤醒。
func (c *Comm) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.inbox = nil
	c.recvQ = nil
	c.ready = nil
	c.signal()
	return nil
}

// deliver 对端投递入站报文（由发送方 goroutine 调用）
func (c *Comm) deliver(from types.Rank, cat types.Category, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	// 匹配最早挂起的同键接收
	for i, pr := range c.recvQ {
		if pr.op.Peer == from && pr.op.Category == cat {
			c.recvQ = append(c.recvQ[:i], c.recvQ[i+1:]...)
			c.ready = append(c.ready, interfaces.Completion{Op: pr.op, Payload: payload})
			c.signal()
			return
		}
	}

	key := mailKey{from: from, cat: cat}
	c.inbox[key] = append(c.inbox[key], payload)
}

// signal 置位完成通知（调用方持锁）
func (c *Comm) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}
