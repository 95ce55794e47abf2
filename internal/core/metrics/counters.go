package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/meshdof/go-meshdof/pkg/types"
)

// Counters 交换流量计数器
//
// 跟踪本秩在编号交换中发送和接收的消息。
// 使用原子操作实现并发安全的计数器：会话事件循环与
// 传输层的内部 goroutine 可以同时记录。
type Counters struct {
	// 全局计数器（使用 atomic）
	bytesIn  atomic.Int64
	bytesOut atomic.Int64
	msgsIn   atomic.Int64
	msgsOut  atomic.Int64

	// 构造调用级计数器
	exchanges atomic.Int64
	stalls    atomic.Int64

	// 类别级计数器
	catMu  sync.RWMutex
	catIn  map[types.Category]*atomic.Int64
	catOut map[types.Category]*atomic.Int64

	// 对端级计数器
	peerMu  sync.RWMutex
	peerIn  map[types.Rank]*atomic.Int64
	peerOut map[types.Rank]*atomic.Int64
}

// Stats 计数器快照
type Stats struct {
	BytesIn   int64
	BytesOut  int64
	MsgsIn    int64
	MsgsOut   int64
	Exchanges int64
	Stalls    int64
}

// NewCounters 创建新的 Counters
func NewCounters() *Counters {
	return &Counters{
		catIn:   make(map[types.Category]*atomic.Int64),
		catOut:  make(map[types.Category]*atomic.Int64),
		peerIn:  make(map[types.Rank]*atomic.Int64),
		peerOut: make(map[types.Rank]*atomic.Int64),
	}
}

// LogSentMessage 记录发往对端的一条出站消息
func (c *Counters) LogSentMessage(to types.Rank, cat types.Category, size int64) {
	c.bytesOut.Add(size)
	c.msgsOut.Add(1)

	c.catMu.Lock()
	counter := c.catOut[cat]
	if counter == nil {
		counter = &atomic.Int64{}
		c.catOut[cat] = counter
	}
	c.catMu.Unlock()
	counter.Add(size)

	c.peerMu.Lock()
	peerCounter := c.peerOut[to]
	if peerCounter == nil {
		peerCounter = &atomic.Int64{}
		c.peerOut[to] = peerCounter
	}
	c.peerMu.Unlock()
	peerCounter.Add(size)
}

// LogRecvMessage 记录来自对端的一条入站消息
func (c *Counters) LogRecvMessage(from types.Rank, cat types.Category, size int64) {
	c.bytesIn.Add(size)
	c.msgsIn.Add(1)

	c.catMu.Lock()
	counter := c.catIn[cat]
	if counter == nil {
		counter = &atomic.Int64{}
		c.catIn[cat] = counter
	}
	c.catMu.Unlock()
	counter.Add(size)

	c.peerMu.Lock()
	peerCounter := c.peerIn[from]
	if peerCounter == nil {
		peerCounter = &atomic.Int64{}
		c.peerIn[from] = peerCounter
	}
	c.peerMu.Unlock()
	peerCounter.Add(size)
}

// LogExchange 记录一次完成的交换轮
func (c *Counters) LogExchange() {
	c.exchanges.Add(1)
}

// LogStall 记录一次停滞告警
func (c *Counters) LogStall() {
	c.stalls.Add(1)
}

// GetStats 返回全局统计快照
func (c *Counters) GetStats() Stats {
	return Stats{
		BytesIn:   c.bytesIn.Load(),
		BytesOut:  c.bytesOut.Load(),
		MsgsIn:    c.msgsIn.Load(),
		MsgsOut:   c.msgsOut.Load(),
		Exchanges: c.exchanges.Load(),
		Stalls:    c.stalls.Load(),
	}
}

// GetStatsForCategory 返回指定类别的入站/出站字节数
func (c *Counters) GetStatsForCategory(cat types.Category) (in, out int64) {
	c.catMu.RLock()
	defer c.catMu.RUnlock()
	if counter := c.catIn[cat]; counter != nil {
		in = counter.Load()
	}
	if counter := c.catOut[cat]; counter != nil {
		out = counter.Load()
	}
	return in, out
}

// GetStatsForPeer 返回指定对端的入站/出站字节数
func (c *Counters) GetStatsForPeer(rank types.Rank) (in, out int64) {
	c.peerMu.RLock()
	defer c.peerMu.RUnlock()
	if counter := c.peerIn[rank]; counter != nil {
		in = counter.Load()
	}
	if counter := c.peerOut[rank]; counter != nil {
		out = counter.Load()
	}
	return in, out
}

// Peers 返回记录过流量的对端秩集合
func (c *Counters) Peers() []types.Rank {
	c.peerMu.RLock()
	defer c.peerMu.RUnlock()
	seen := make(map[types.Rank]struct{}, len(c.peerIn)+len(c.peerOut))
	for r := range c.peerIn {
		seen[r] = struct{}{}
	}
	for r := range c.peerOut {
		seen[r] = struct{}{}
	}
	ranks := make([]types.Rank, 0, len(seen))
	for r := range seen {
		ranks = append(ranks, r)
	}
	return ranks
}

// Reset 清零全部计数器
func (c *Counters) Reset() {
	c.bytesIn.Store(0)
	c.bytesOut.Store(0)
	c.msgsIn.Store(0)
	c.msgsOut.Store(0)
	c.exchanges.Store(0)
	c.stalls.Store(0)

	c.catMu.Lock()
	c.catIn = make(map[types.Category]*atomic.Int64)
	c.catOut = make(map[types.Category]*atomic.Int64)
	c.catMu.Unlock()

	c.peerMu.Lock()
	c.peerIn = make(map[types.Rank]*atomic.Int64)
	c.peerOut = make(map[types.Rank]*atomic.Int64)
	c.peerMu.Unlock()
}
