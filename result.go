package meshdof

import (
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
	"lukechampine.com/blake3"

	"github.com/meshdof/go-meshdof/internal/core/exchange"
	"github.com/meshdof/go-meshdof/internal/core/numbering"
	"github.com/meshdof/go-meshdof/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              Numbering 编号结果
// ════════════════════════════════════════════════════════════════════════════

// Numbering 一次构造调用的最终产物
//
// 字段只读：结果归调用方所有，库在返回后不再触碰。
// 槽位数组保持遍历期间的带符号编码（拥有索引或占位），
// 占位到全局索引的解析在 SharedGlobal 中，GlobalIndex 合并两者。
type Numbering struct {
	// Rank 产出本结果的秩
	Rank types.Rank

	// Layout 槽位布局
	Layout types.SlotLayout

	// ElementCount 本地单元数
	ElementCount int64

	// Slots 槽位数组，跨距 Layout.SlotsPerElement()
	Slots []types.NodeSlot

	// OwnedCount 本秩拥有的节点数
	OwnedCount int32

	// SharedCount 本秩的共享占位数
	SharedCount int32

	// Offsets 全局偏移表，长度 世界大小+1
	Offsets types.OffsetTable

	// SharedGlobal 按占位索引对齐的全局索引解析表
	SharedGlobal []types.GlobalNodeIndex

	// Sharers 本秩拥有节点的共享秩表，升序（仅跨秩节点有条目）
	Sharers map[types.LocalNodeIndex][]types.Rank

	// SharedSharers 本秩占位节点的参与秩表，升序（含属主，不含本秩）
	SharedSharers map[int32][]types.Rank

	// fingerprint 构造指纹，newNumbering 一次算定
	fingerprint string
}

// newNumbering 合并遍历产物、交换解析与偏移表
//
// 占位解析换算为全局索引时校验属主局部索引落在属主的拥有
// 区间内，越界即计数不一致。
func newNumbering(self types.Rank, pass *numbering.Pass, resolved *exchange.Result, offsets types.OffsetTable) (*Numbering, error) {
	if offsets.OwnedOf(self) != int64(pass.OwnedCount) {
		return nil, fmt.Errorf("%w: offset table has %d owned for rank %d, pass counted %d",
			ErrCountMismatch, offsets.OwnedOf(self), self, pass.OwnedCount)
	}
	if len(resolved.OwnerRank) != int(pass.SharedCount) {
		return nil, fmt.Errorf("%w: %d resolutions for %d placeholders",
			ErrCountMismatch, len(resolved.OwnerRank), pass.SharedCount)
	}

	shared := make([]types.GlobalNodeIndex, pass.SharedCount)
	for p := range shared {
		owner := resolved.OwnerRank[p]
		local := resolved.OwnerLocal[p]
		if int64(local) >= offsets.OwnedOf(owner) {
			return nil, fmt.Errorf("%w: placeholder %d resolved to index %d of %d owned on rank %d",
				ErrCountMismatch, p, local, offsets.OwnedOf(owner), owner)
		}
		shared[p] = offsets.GlobalIndex(owner, local)
	}

	n := &Numbering{
		Rank:          self,
		Layout:        pass.Layout,
		ElementCount:  pass.ElementCount,
		Slots:         pass.Slots,
		OwnedCount:    pass.OwnedCount,
		SharedCount:   pass.SharedCount,
		Offsets:       offsets,
		SharedGlobal:  shared,
		Sharers:       pass.Sharers,
		SharedSharers: pass.SharedSharers,
	}
	n.fingerprint = n.computeFingerprint()
	return n, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              查询方法
// ════════════════════════════════════════════════════════════════════════════

// GlobalIndex 返回本地单元 element 位置 pos 的节点全局索引
//
// 拥有槽位换算为 偏移[本秩]+局部索引，占位槽位查解析表。
// 未赋值槽位（当前布局下该位置没有节点，如悬挂中点处的角槽位）
// 返回 ErrSlotUnset。
func (n *Numbering) GlobalIndex(element int64, pos int32) (types.GlobalNodeIndex, error) {
	if element < 0 || element >= n.ElementCount {
		return 0, fmt.Errorf("%w: element %d of %d", ErrInvalidPosition, element, n.ElementCount)
	}
	if !n.Layout.ValidPosition(pos) {
		return 0, fmt.Errorf("%w: position %d", ErrInvalidPosition, pos)
	}

	s := n.Slots[n.Layout.GlobalPos(element, pos)]
	switch s.Kind() {
	case types.SlotOwned:
		return n.Offsets.GlobalIndex(n.Rank, s.OwnedIndex()), nil
	case types.SlotShared:
		return n.SharedGlobal[s.SharedIndex()], nil
	default:
		return 0, fmt.Errorf("%w: element %d position %d", ErrSlotUnset, element, pos)
	}
}

// Total 返回全网节点总数
func (n *Numbering) Total() types.GlobalNodeIndex {
	return n.Offsets.Total()
}

// OwnedRange 返回本秩拥有节点的全局索引区间 [lo, hi)
func (n *Numbering) OwnedRange() (lo, hi types.GlobalNodeIndex) {
	lo = n.Offsets.GlobalIndex(n.Rank, 0)
	return lo, lo + types.GlobalNodeIndex(n.OwnedCount)
}

// Fingerprint 返回构造指纹
//
// 覆盖布局、槽位数组、偏移表与占位解析的 blake3 摘要，base58
// 渲染。同秩同输入的重复构造产出相同指纹；不同秩的指纹覆盖
// 各自的本地视角，不可互比。
func (n *Numbering) Fingerprint() string {
	return n.fingerprint
}

// computeFingerprint 计算构造指纹
func (n *Numbering) computeFingerprint() string {
	h := blake3.New(32, nil)
	var buf [8]byte

	binary.BigEndian.PutUint32(buf[:4], uint32(n.Layout.SlotsPerElement()))
	h.Write(buf[:4])
	binary.BigEndian.PutUint64(buf[:], uint64(n.ElementCount))
	h.Write(buf[:])
	for _, s := range n.Slots {
		binary.BigEndian.PutUint32(buf[:4], uint32(s))
		h.Write(buf[:4])
	}
	for _, off := range n.Offsets {
		binary.BigEndian.PutUint64(buf[:], uint64(off))
		h.Write(buf[:])
	}
	for _, gi := range n.SharedGlobal {
		binary.BigEndian.PutUint64(buf[:], uint64(gi))
		h.Write(buf[:])
	}

	return base58.Encode(h.Sum(nil))
}
