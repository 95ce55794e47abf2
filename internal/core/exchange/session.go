// Package exchange 实现两阶段查询/应答索引交换
//
// 遍历结束后每个共享占位都指向一个属主槽位：本包把占位批量
// 翻译为属主局部索引。每对端恰好一轮交换，方向由秩序决定
// （查询只从高秩流向低秩），全部进展由单一事件循环驱动：
//
//	发布阶段  属主侧挂接收，询问侧发查询
//	等待阶段  循环 WaitAny，按对端状态机推进直至全部 Done
//
// 协议没有超时与重试；任何校验失败或传输故障都中止整次构造。
package exchange

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/meshdof/go-meshdof/internal/core/metrics"
	"github.com/meshdof/go-meshdof/internal/core/peering"
	"github.com/meshdof/go-meshdof/internal/util/logger"
	"github.com/meshdof/go-meshdof/pkg/interfaces"
	"github.com/meshdof/go-meshdof/pkg/types"
)

// 包级别日志实例
var log = logger.Logger("exchange")

// ============================================================================
//                              Service 交换服务
// ============================================================================

// Service 查询/应答交换服务
//
// 无状态：每次 Exchange 调用建立一个独立会话。
type Service struct {
	comm       interfaces.Communicator
	clk        clock.Clock
	counters   *metrics.Counters
	stallAfter time.Duration
}

// NewService 创建交换服务
//
// stallAfter 为停滞告警阈值，0 表示关闭监视。
func NewService(comm interfaces.Communicator, clk clock.Clock, counters *metrics.Counters, stallAfter time.Duration) *Service {
	return &Service{
		comm:       comm,
		clk:        clk,
		counters:   counters,
		stallAfter: stallAfter,
	}
}

// Inputs 一轮交换的输入
//
// 全部来自同一次编号遍历。Slots 在属主侧只读（查询翻译）；
// 占位回填写入 Result，不触碰 Slots。
type Inputs struct {
	// Registry 遍历期间填充的对端注册表
	Registry *peering.Registry

	// Layout 槽位布局
	Layout types.SlotLayout

	// ElementCount 本地单元数
	ElementCount int64

	// Slots 本秩的槽位数组
	Slots []types.NodeSlot

	// OwnedCount 本秩拥有节点数
	OwnedCount int32

	// SharedCount 本秩共享占位数
	SharedCount int32
}

// Result 交换结果
//
// 两个数组按共享占位索引对齐：占位 p 的属主秩与属主局部索引。
// 全局索引由调用方结合偏移表计算（offset[OwnerRank] + OwnerLocal）。
type Result struct {
	// OwnerRank 每占位的属主秩
	OwnerRank []types.Rank

	// OwnerLocal 每占位在属主分区内的局部拥有索引
	OwnerLocal []types.LocalNodeIndex
}

// Exchange 执行一轮完整交换
//
// 阻塞直至本秩与全部对端完成，或任一错误中止。
func (s *Service) Exchange(ctx context.Context, in Inputs) (*Result, error) {
	if err := validateInputs(&in); err != nil {
		return nil, err
	}
	se := &session{
		id:  uuid.New(),
		svc: s,
		in:  in,
	}
	return se.run(ctx)
}

// validateInputs 校验输入自洽
func validateInputs(in *Inputs) error {
	if in.Registry == nil {
		return fmt.Errorf("%w: nil registry", ErrBadInputs)
	}
	want := in.ElementCount * int64(in.Layout.SlotsPerElement())
	if int64(len(in.Slots)) != want {
		return fmt.Errorf("%w: %d slots for %d elements",
			ErrBadInputs, len(in.Slots), in.ElementCount)
	}
	if int(in.SharedCount) != in.Registry.TotalQueries() {
		return fmt.Errorf("%w: %d placeholders vs %d queued queries",
			ErrBadInputs, in.SharedCount, in.Registry.TotalQueries())
	}
	return nil
}

// ============================================================================
//                              session 单轮会话
// ============================================================================

// session 一轮交换的全部状态
//
// 只被一个 goroutine 触碰（事件循环）；监视 goroutine 仅读
// progress 计数。
type session struct {
	id  uuid.UUID
	svc *Service
	in  Inputs

	result    *Result
	remaining int

	// progress 完成事件计数，供停滞监视读取
	progress watchProgress
}

// run 执行会话
func (se *session) run(ctx context.Context) (*Result, error) {
	self := se.svc.comm.Rank()
	reg := se.in.Registry

	se.result = &Result{
		OwnerRank:  make([]types.Rank, se.in.SharedCount),
		OwnerLocal: make([]types.LocalNodeIndex, se.in.SharedCount),
	}
	for i := range se.result.OwnerRank {
		se.result.OwnerRank[i] = types.InvalidRank
	}

	if reg.Count() == 0 {
		se.svc.counters.LogExchange()
		return se.result, nil
	}

	log.Debug("交换开始",
		"session", se.id,
		"rank", self,
		"peers", reg.Count(),
		"queries", reg.TotalQueries())

	if se.svc.stallAfter > 0 {
		done := make(chan struct{})
		defer close(done)
		go se.watch(ctx, done)
	}

	if err := se.post(ctx, self); err != nil {
		return nil, err
	}

	for se.remaining > 0 {
		comp, err := se.svc.comm.WaitAny(ctx)
		if err != nil {
			return nil, fmt.Errorf("wait for completion: %w", err)
		}
		if comp.Err != nil {
			return nil, fmt.Errorf("%s %s with rank %d failed: %w",
				comp.Op.Kind, comp.Op.Category, comp.Op.Peer, comp.Err)
		}
		if err := se.dispatch(ctx, comp); err != nil {
			return nil, err
		}
		se.progress.bump()
	}

	se.svc.counters.LogExchange()
	log.Debug("交换完成", "session", se.id, "rank", self)
	return se.result, nil
}

// post 发布阶段
//
// 每个注册对端恰好进入一条状态机路径：
// 高秩对端（本秩为属主）挂查询接收，低秩对端（本秩为询问方）
// 发出查询列表。
func (se *session) post(ctx context.Context, self types.Rank) error {
	reg := se.in.Registry
	for _, rank := range reg.Ranks() {
		p, _ := reg.Lookup(rank)
		switch {
		case rank > self && p.ExpectedQueries > 0:
			if err := p.Advance(peering.StateAwaitingIncomingQuery); err != nil {
				return err
			}
			if _, err := se.svc.comm.Irecv(ctx, rank, types.CategoryQuery); err != nil {
				return fmt.Errorf("post query receive for rank %d: %w", rank, err)
			}

		case rank < self && p.QueryCount() > 0:
			if err := p.Advance(peering.StateSendingQuery); err != nil {
				return err
			}
			values := make([]uint64, len(p.QueryPositions))
			for i, gpos := range p.QueryPositions {
				values[i] = uint64(gpos)
			}
			payload, err := EncodeMessage(types.CategoryQuery, values)
			if err != nil {
				return err
			}
			if _, err := se.svc.comm.Isend(ctx, rank, types.CategoryQuery, payload); err != nil {
				return fmt.Errorf("post query send to rank %d: %w", rank, err)
			}
			se.svc.counters.LogSentMessage(rank, types.CategoryQuery, int64(len(payload)))

		default:
			return fmt.Errorf("%w: rank %d", ErrIdlePeer, rank)
		}
		se.remaining++
	}
	return nil
}

// dispatch 按完成事件推进对端状态机
func (se *session) dispatch(ctx context.Context, comp interfaces.Completion) error {
	p, ok := se.in.Registry.Lookup(comp.Op.Peer)
	if !ok {
		return fmt.Errorf("%w: unknown peer rank %d", ErrBadCompletion, comp.Op.Peer)
	}

	switch {
	// 属主侧：查询到达，翻译并回发应答
	case comp.Op.Kind == interfaces.OpRecv && comp.Op.Category == types.CategoryQuery:
		return se.handleQuery(ctx, p, comp.Payload)

	// 属主侧：应答送达，对端完成
	case comp.Op.Kind == interfaces.OpSend && comp.Op.Category == types.CategoryReply:
		if err := p.Advance(peering.StateDone); err != nil {
			return err
		}
		se.remaining--
		return nil

	// 询问侧：查询送达，挂应答接收
	case comp.Op.Kind == interfaces.OpSend && comp.Op.Category == types.CategoryQuery:
		if err := p.Advance(peering.StateAwaitingReply); err != nil {
			return err
		}
		if _, err := se.svc.comm.Irecv(ctx, p.Rank, types.CategoryReply); err != nil {
			return fmt.Errorf("post reply receive for rank %d: %w", p.Rank, err)
		}
		return nil

	// 询问侧：应答到达，回填占位
	case comp.Op.Kind == interfaces.OpRecv && comp.Op.Category == types.CategoryReply:
		return se.handleReply(p, comp.Payload)

	default:
		return fmt.Errorf("%w: %s %s with rank %d",
			ErrBadCompletion, comp.Op.Kind, comp.Op.Category, comp.Op.Peer)
	}
}

// handleQuery 属主侧：校验查询、原地翻译、回发应答
func (se *session) handleQuery(ctx context.Context, p *peering.Peer, payload []byte) error {
	if err := p.Advance(peering.StateSendingReply); err != nil {
		return err
	}
	se.svc.counters.LogRecvMessage(p.Rank, types.CategoryQuery, int64(len(payload)))

	cat, values, err := DecodeMessage(payload)
	if err != nil {
		return fmt.Errorf("query from rank %d: %w", p.Rank, err)
	}
	if cat != types.CategoryQuery {
		return fmt.Errorf("%w: %s payload on query receive from rank %d",
			ErrBadMessage, cat, p.Rank)
	}
	if len(values) != int(p.ExpectedQueries) {
		return fmt.Errorf("%w: rank %d sent %d queries, registered %d",
			ErrCountMismatch, p.Rank, len(values), p.ExpectedQueries)
	}

	// 原地翻译：全局位置 → 拥有索引
	for i, v := range values {
		idx, err := se.translate(int64(v))
		if err != nil {
			return fmt.Errorf("query %d from rank %d: %w", i, p.Rank, err)
		}
		values[i] = uint64(idx)
	}

	reply, err := EncodeMessage(types.CategoryReply, values)
	if err != nil {
		return err
	}
	if _, err := se.svc.comm.Isend(ctx, p.Rank, types.CategoryReply, reply); err != nil {
		return fmt.Errorf("post reply send to rank %d: %w", p.Rank, err)
	}
	se.svc.counters.LogSentMessage(p.Rank, types.CategoryReply, int64(len(reply)))
	return nil
}

// translate 把属主槽位数组内的全局位置翻译为拥有索引
//
// 拒绝：越界位置、不可查询的位置（单元中心）、未持有
// 拥有索引的槽位、越出拥有区间的索引。
func (se *session) translate(gpos int64) (types.LocalNodeIndex, error) {
	if gpos < 0 || !se.in.Layout.ValidGlobalPos(gpos, se.in.ElementCount) {
		return 0, fmt.Errorf("%w: position %d out of range", ErrBadQuery, gpos)
	}
	_, pos := se.in.Layout.SplitGlobalPos(gpos)
	if !se.in.Layout.QueryEligible(pos) {
		return 0, fmt.Errorf("%w: position %d not query eligible", ErrBadQuery, gpos)
	}
	slot := se.in.Slots[gpos]
	if slot.Kind() != types.SlotOwned {
		return 0, fmt.Errorf("%w: position %d holds %s", ErrBadQuery, gpos, slot)
	}
	idx := slot.OwnedIndex()
	if int32(idx) >= se.in.OwnedCount {
		return 0, fmt.Errorf("%w: index %d outside owned range %d",
			ErrBadQuery, idx, se.in.OwnedCount)
	}
	return idx, nil
}

// handleReply 询问侧：校验应答并把属主索引散布进占位表
func (se *session) handleReply(p *peering.Peer, payload []byte) error {
	if err := p.Advance(peering.StateDone); err != nil {
		return err
	}
	se.svc.counters.LogRecvMessage(p.Rank, types.CategoryReply, int64(len(payload)))

	cat, values, err := DecodeMessage(payload)
	if err != nil {
		return fmt.Errorf("reply from rank %d: %w", p.Rank, err)
	}
	if cat != types.CategoryReply {
		return fmt.Errorf("%w: %s payload on reply receive from rank %d",
			ErrBadMessage, cat, p.Rank)
	}
	if len(values) != p.QueryCount() {
		return fmt.Errorf("%w: rank %d replied %d entries to %d queries",
			ErrCountMismatch, p.Rank, len(values), p.QueryCount())
	}

	for i, v := range values {
		if v > math.MaxInt32 {
			return fmt.Errorf("%w: index %d from rank %d", ErrBadReply, v, p.Rank)
		}
		ph := p.Placeholders[i]
		if ph < 0 || ph >= se.in.SharedCount {
			return fmt.Errorf("%w: placeholder %d of %d", ErrBadReply, ph, se.in.SharedCount)
		}
		se.result.OwnerRank[ph] = p.Rank
		se.result.OwnerLocal[ph] = types.LocalNodeIndex(v)
	}
	se.remaining--
	return nil
}
