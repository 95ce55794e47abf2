// Package numbering 实现本地编号引擎与所有权裁决
//
// 引擎消费一次网格遍历（体/面/角事件），为每个被本地单元触及的
// 节点位置赋槽位值：本秩拥有的节点获得顺序递增的局部索引，
// 他秩拥有的共享节点获得负编码占位，同时在对端注册表中排队
// 跨进程查询与预期应答。
//
// 所有权规则：共享节点归全部参与秩中最小者所有。
// 秩互不相同，平局不存在。
//
// 遍历相位契约：体事件按单元索引升序全部触发后才允许面事件，
// 面事件全部触发后才允许角事件。该契约使"下一个顺序拥有索引"
// 恰好给中心节点铺出 [0, 单元数) 的稠密区间。
package numbering

import (
	"context"
	"fmt"
	"math"

	"github.com/meshdof/go-meshdof/internal/core/peering"
	"github.com/meshdof/go-meshdof/internal/util/logger"
	"github.com/meshdof/go-meshdof/pkg/interfaces"
	"github.com/meshdof/go-meshdof/pkg/types"
)

// 包级别日志实例
var log = logger.Logger("numbering")

// 遍历相位，只允许单调推进
type phase int

const (
	phaseVolume phase = iota
	phaseFace
	phaseCorner
)

// Engine 本地编号引擎
//
// 一次构造调用创建一个引擎，Run 之后即丢弃；
// 引擎内全部可变状态都是调用内私有的，从不提升为进程级状态。
type Engine struct {
	self   types.Rank
	layout types.SlotLayout
	mesh   interfaces.Mesh
	ghost  interfaces.GhostLayer

	elemCount int64
	slots     []types.NodeSlot

	numOwned  int32
	numShared int32

	reg *peering.Registry

	// sharers 本秩拥有节点的共享秩表（仅跨秩共享的节点有条目）
	sharers map[types.LocalNodeIndex][]types.Rank

	// sharedSharers 本秩占位节点的参与秩表（含属主，不含本秩）
	sharedSharers map[int32][]types.Rank

	// 相位与升序校验
	phase      phase
	nextVolume int64
}

// 接口实现检查
var _ interfaces.Visitor = (*Engine)(nil)

// NewEngine 创建编号引擎并分配槽位数组
//
// 槽位数组大小为 本地单元数 × 每单元槽位数，全部初始化为未赋值。
// ghost 可为 nil：此时任何幽灵侧事件都是不变量违反。
func NewEngine(self types.Rank, layout types.SlotLayout, mesh interfaces.Mesh, ghost interfaces.GhostLayer) (*Engine, error) {
	if mesh == nil {
		return nil, fmt.Errorf("%w: nil mesh", ErrInvalidEvent)
	}
	if !self.IsValid() {
		return nil, fmt.Errorf("%w: rank %d", types.ErrInvalidRank, self)
	}

	elemCount := mesh.LocalElementCount()
	if elemCount < 0 {
		return nil, fmt.Errorf("%w: element count %d", ErrInvalidEvent, elemCount)
	}

	slots := make([]types.NodeSlot, elemCount*int64(layout.SlotsPerElement()))
	for i := range slots {
		slots[i] = types.UnsetSlot
	}

	return &Engine{
		self:          self,
		layout:        layout,
		mesh:          mesh,
		ghost:         ghost,
		elemCount:     elemCount,
		slots:         slots,
		reg:           peering.NewRegistry(self),
		sharers:       make(map[types.LocalNodeIndex][]types.Rank),
		sharedSharers: make(map[int32][]types.Rank),
	}, nil
}

// Run 执行一次完整的本地编号遍历
//
// 返回的 Pass 携带槽位数组、计数器、对端注册表与共享者表，
// 供交换与集合阶段消费。
func (e *Engine) Run(ctx context.Context) (*Pass, error) {
	if err := e.mesh.Traverse(ctx, e); err != nil {
		return nil, err
	}
	if e.nextVolume != e.elemCount {
		return nil, fmt.Errorf("%w: %d of %d volume events fired",
			ErrTraversalOrder, e.nextVolume, e.elemCount)
	}
	if int(e.numShared) != e.reg.TotalQueries() {
		return nil, fmt.Errorf("%w: %d placeholders vs %d queued queries",
			ErrCountMismatch, e.numShared, e.reg.TotalQueries())
	}

	log.Debug("local pass complete",
		"rank", e.self,
		"elements", e.elemCount,
		"owned", e.numOwned,
		"shared", e.numShared,
		"peers", e.reg.Count())

	return &Pass{
		Layout:        e.layout,
		ElementCount:  e.elemCount,
		Slots:         e.slots,
		OwnedCount:    e.numOwned,
		SharedCount:   e.numShared,
		Registry:      e.reg,
		Sharers:       e.sharers,
		SharedSharers: e.sharedSharers,
	}, nil
}

// ============================================================================
//                              体事件
// ============================================================================

// Volume 体事件：为单元中心槽位赋下一个顺序拥有索引
func (e *Engine) Volume(element int64) error {
	if e.phase != phaseVolume {
		return fmt.Errorf("%w: volume event after phase %d", ErrTraversalOrder, e.phase)
	}
	if element != e.nextVolume {
		return fmt.Errorf("%w: volume event for element %d, expected %d",
			ErrTraversalOrder, element, e.nextVolume)
	}
	e.nextVolume++

	idx, err := e.nextOwned()
	if err != nil {
		return err
	}
	return e.setSlot(element, e.layout.PosCenter(), types.OwnedSlot(idx))
}

// ============================================================================
//                              内部辅助
// ============================================================================

// enterPhase 推进遍历相位
//
// 相位只能单调前进；离开体相位时要求全部体事件已触发。
func (e *Engine) enterPhase(p phase) error {
	if p < e.phase {
		return fmt.Errorf("%w: phase %d after phase %d", ErrTraversalOrder, p, e.phase)
	}
	if e.phase == phaseVolume && p > phaseVolume && e.nextVolume != e.elemCount {
		return fmt.Errorf("%w: %d of %d volume events before phase %d",
			ErrTraversalOrder, e.nextVolume, e.elemCount, p)
	}
	e.phase = p
	return nil
}

// nextOwned 分配下一个拥有索引
func (e *Engine) nextOwned() (types.LocalNodeIndex, error) {
	if e.numOwned == math.MaxInt32 {
		return 0, fmt.Errorf("%w: owned index", ErrOverflow)
	}
	idx := types.LocalNodeIndex(e.numOwned)
	e.numOwned++
	return idx, nil
}

// nextShared 分配下一个共享占位索引
func (e *Engine) nextShared() (int32, error) {
	if e.numShared >= types.MaxSharedPlaceholder {
		return 0, fmt.Errorf("%w: shared placeholder", ErrOverflow)
	}
	ph := e.numShared
	e.numShared++
	return ph, nil
}

// setSlot 写入槽位，重复写入即不变量违反
func (e *Engine) setSlot(element int64, pos int32, v types.NodeSlot) error {
	if element < 0 || element >= e.elemCount {
		return fmt.Errorf("%w: element %d of %d", ErrInvalidEvent, element, e.elemCount)
	}
	if !e.layout.ValidPosition(pos) {
		return fmt.Errorf("%w: position %d", types.ErrInvalidPosition, pos)
	}
	i := e.layout.GlobalPos(element, pos)
	if e.slots[i].IsSet() {
		return fmt.Errorf("%w: element %d position %d already %s",
			ErrSlotConflict, element, pos, e.slots[i])
	}
	e.slots[i] = v
	return nil
}

// insertRank 升序去重插入，参与方最多 NumCorners 个，线性即可
func insertRank(list []types.Rank, rank types.Rank) []types.Rank {
	pos := len(list)
	for i, r := range list {
		if r == rank {
			return list
		}
		if r > rank {
			pos = i
			break
		}
	}
	list = append(list, 0)
	copy(list[pos+1:], list[pos:])
	list[pos] = rank
	return list
}
