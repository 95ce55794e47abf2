// Package inproc 提供进程内通信器
//
// 一个 World 承载 N 个秩，全部运行在同一进程内，报文经内存
// 队列直达。用于测试与演示：N 个 goroutine 各持一个 Comm，
// 行为与跨进程通信器完全一致（非阻塞收发、WaitAny、Allgather）。
package inproc

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/meshdof/go-meshdof/internal/util/logger"
	"github.com/meshdof/go-meshdof/pkg/types"
)

// 包级别日志实例
var log = logger.Logger("inproc")

// ============================================================================
//                              World 世界
// ============================================================================

// World 进程内世界：固定成员，创建后不增减
type World struct {
	size  int
	comms []*Comm

	// Allgather 轮次状态
	gmu  sync.Mutex
	gcur *gatherRound
}

// NewWorld 创建 size 个秩的进程内世界
func NewWorld(size int) (*World, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrBadWorld, size)
	}
	w := &World{size: size}
	w.comms = make([]*Comm, size)
	for r := 0; r < size; r++ {
		w.comms[r] = &Comm{
			world:  w,
			rank:   types.Rank(r),
			inbox:  make(map[mailKey][][]byte),
			notify: make(chan struct{}, 1),
		}
	}
	log.Debug("进程内世界就绪", "size", size)
	return w, nil
}

// Size 返回世界大小
func (w *World) Size() int { return w.size }

// Comm 返回秩 r 的通信器
func (w *World) Comm(r types.Rank) *Comm {
	return w.comms[r]
}

// Close 关闭全部通信器
func (w *World) Close() error {
	var err error
	for _, c := range w.comms {
		err = multierr.Append(err, c.Close())
	}
	return err
}

// ============================================================================
//                              Allgather 轮次
// ============================================================================

// gatherRound 一轮 Allgather 的聚合状态
type gatherRound struct {
	values []uint64
	seen   []bool
	got    int
	done   chan struct{}
}

// allgather 世界级集合：所有秩各贡献一值，凑齐后同时放行
func (w *World) allgather(ctx context.Context, rank types.Rank, value uint64) ([]uint64, error) {
	w.gmu.Lock()
	r := w.gcur
	if r == nil {
		r = &gatherRound{
			values: make([]uint64, w.size),
			seen:   make([]bool, w.size),
			done:   make(chan struct{}),
		}
		w.gcur = r
	}
	if r.seen[rank] {
		w.gmu.Unlock()
		return nil, fmt.Errorf("%w: rank %d joined the round twice", ErrBadWorld, rank)
	}
	r.seen[rank] = true
	r.values[rank] = value
	r.got++
	if r.got == w.size {
		w.gcur = nil
		close(r.done)
	}
	w.gmu.Unlock()

	select {
	case <-r.done:
		out := make([]uint64, w.size)
		copy(out, r.values)
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
