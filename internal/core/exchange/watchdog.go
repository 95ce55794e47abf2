package exchange

import (
	"context"
	"sync/atomic"
)

// watchProgress 事件循环进展计数
//
// 事件循环写、监视 goroutine 读，原子即可。
type watchProgress struct {
	n atomic.Uint64
}

func (w *watchProgress) bump()        { w.n.Add(1) }
func (w *watchProgress) load() uint64 { return w.n.Load() }

// watch 停滞监视
//
// 每个告警间隔检查一次进展计数，计数未变时记录一次告警。
// 监视只写日志与计数器，从不取消交换：协议没有超时，
// 调用方的 context 是唯一的逃逸通道。
func (se *session) watch(ctx context.Context, done <-chan struct{}) {
	t := se.svc.clk.Ticker(se.svc.stallAfter)
	defer t.Stop()

	last := se.progress.load()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-t.C:
			cur := se.progress.load()
			if cur == last {
				se.svc.counters.LogStall()
				log.Warn("交换停滞",
					"session", se.id,
					"rank", se.svc.comm.Rank(),
					"completions", cur,
					"threshold", se.svc.stallAfter)
			}
			last = cur
		}
	}
}
