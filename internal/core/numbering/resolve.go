package numbering

import (
	"fmt"

	"github.com/meshdof/go-meshdof/pkg/interfaces"
	"github.com/meshdof/go-meshdof/pkg/types"
)

// storeRef 共享节点解析中的一个存储引用
//
// 一侧解析后的形态：该侧的秩、单元索引与槽位位置。
// local 为真时 element 是本地单元索引，否则是属主分区内的
// 远程单元索引（已经过幽灵层换算）。
type storeRef struct {
	rank    types.Rank
	local   bool
	element int64
	pos     int32
}

// ============================================================================
//                              面事件
// ============================================================================

// Face 面事件分派
//
// 侧数决定情形：1 侧域边界、2 侧协调面、3 侧悬挂面。
// 面节点层级未启用时事件被忽略。
func (e *Engine) Face(ev interfaces.FaceEvent) error {
	if err := e.enterPhase(phaseFace); err != nil {
		return err
	}
	if !e.layout.FaceNodes {
		return nil
	}

	switch {
	case !ev.Hanging && (len(ev.Sides) == 1 || len(ev.Sides) == 2):
		return e.fullFace(ev.Sides)
	case ev.Hanging && len(ev.Sides) == 3:
		return e.hangingFace(ev.Sides)
	default:
		return fmt.Errorf("%w: face event with %d sides (hanging=%v)",
			ErrInvalidEvent, len(ev.Sides), ev.Hanging)
	}
}

// fullFace 处理边界面与协调面
//
// 面中点节点由每侧的 PosFaceFull 槽位存储。边界面退化为
// 单参与方：直接成为本秩拥有节点，无跨进程交互。
func (e *Engine) fullFace(sides []interfaces.FaceSide) error {
	refs := make([]storeRef, 0, 2)
	for _, s := range sides {
		ref, err := e.faceRef(s, false)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}
	return e.resolveSharedNode(refs)
}

// hangingFace 处理悬挂面（粗侧在前，两细侧在后）
//
// 三个节点参与：每个细侧自身的半面节点（PosFaceFull，仅该细秩
// 引用，本地即拥有），以及粗面中点节点（粗侧 PosFaceFull 加两
// 细侧 PosFaceHanging，参与方最多三个秩，按最小秩规则解析）。
func (e *Engine) hangingFace(sides []interfaces.FaceSide) error {
	coarse, fines := sides[0], sides[1:]

	// 细侧半面节点：本地细侧直接获得拥有索引
	for _, f := range fines {
		if f.IsGhost {
			continue
		}
		ref, err := e.faceRef(f, false)
		if err != nil {
			return err
		}
		idx, err := e.nextOwned()
		if err != nil {
			return err
		}
		if err := e.setSlot(ref.element, ref.pos, types.OwnedSlot(idx)); err != nil {
			return err
		}
	}

	// 悬挂中点节点
	refs := make([]storeRef, 0, 3)
	cref, err := e.faceRef(coarse, false)
	if err != nil {
		return err
	}
	refs = append(refs, cref)
	for _, f := range fines {
		fref, err := e.faceRef(f, true)
		if err != nil {
			return err
		}
		refs = append(refs, fref)
	}
	return e.resolveSharedNode(refs)
}

// faceRef 把面事件的一侧解析为存储引用
//
// hangingRef 为真时取悬挂引用槽位（细侧引用粗面中点），
// 否则取面中点槽位。
func (e *Engine) faceRef(s interfaces.FaceSide, hangingRef bool) (storeRef, error) {
	if s.Face < 0 || s.Face >= types.NumFaces {
		return storeRef{}, fmt.Errorf("%w: face index %d", ErrInvalidEvent, s.Face)
	}
	pos := e.layout.PosFaceFull(s.Face)
	if hangingRef {
		pos = e.layout.PosFaceHanging(s.Face)
	}
	return e.resolveRef(s.Element, s.Ghost, s.IsGhost, pos)
}

// ============================================================================
//                              角事件
// ============================================================================

// Corner 角事件：真角点节点，所有触及单元各以 PosCorner 槽位存储
//
// 角节点层级未启用时事件被忽略。
func (e *Engine) Corner(ev interfaces.CornerEvent) error {
	if err := e.enterPhase(phaseCorner); err != nil {
		return err
	}
	if !e.layout.CornerNodes {
		return nil
	}
	if len(ev.Sides) == 0 || len(ev.Sides) > types.NumCorners {
		return fmt.Errorf("%w: corner event with %d sides", ErrInvalidEvent, len(ev.Sides))
	}

	refs := make([]storeRef, 0, len(ev.Sides))
	for _, s := range ev.Sides {
		if s.Corner < 0 || s.Corner >= types.NumCorners {
			return fmt.Errorf("%w: corner index %d", ErrInvalidEvent, s.Corner)
		}
		ref, err := e.resolveRef(s.Element, s.Ghost, s.IsGhost, e.layout.PosCorner(s.Corner))
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}
	return e.resolveSharedNode(refs)
}

// ============================================================================
//                              所有权裁决
// ============================================================================

// resolveRef 把一侧解析为存储引用并校验事件数据
func (e *Engine) resolveRef(element, ghost int64, isGhost bool, pos int32) (storeRef, error) {
	if !isGhost {
		if element < 0 || element >= e.elemCount {
			return storeRef{}, fmt.Errorf("%w: local element %d of %d",
				ErrInvalidEvent, element, e.elemCount)
		}
		return storeRef{rank: e.self, local: true, element: element, pos: pos}, nil
	}

	if e.ghost == nil {
		return storeRef{}, fmt.Errorf("%w: ghost side without ghost layer", ErrInvalidEvent)
	}
	if ghost < 0 || ghost >= e.ghost.Count() {
		return storeRef{}, fmt.Errorf("%w: ghost index %d of %d",
			ErrInvalidEvent, ghost, e.ghost.Count())
	}
	r := e.ghost.OwnerRank(ghost)
	if !r.IsValid() || r == e.self {
		return storeRef{}, fmt.Errorf("%w: ghost %d resolves to rank %d at rank %d",
			ErrInvalidEvent, ghost, r, e.self)
	}
	remote := e.ghost.RemoteElement(ghost)
	if remote < 0 {
		return storeRef{}, fmt.Errorf("%w: ghost %d remote element %d",
			ErrInvalidEvent, ghost, remote)
	}
	return storeRef{rank: r, local: false, element: remote, pos: pos}, nil
}

// resolveSharedNode 以最小秩规则解析一个节点
//
// refs 列出节点的全部存储引用。属主为引用秩集合的最小者；
// 本秩属主时写入新拥有索引并为每个非属主参与秩登记预期查询，
// 否则写入共享占位并向属主排队一条查询。查询位置取属主的首个
// 存储引用：事件侧序确定，因此属主双方对同一位置达成一致。
//
// 全部引用同秩（纯本地节点）时退化为无通信的拥有节点，
// 同一索引写入每个引用槽位。
func (e *Engine) resolveSharedNode(refs []storeRef) error {
	if len(refs) == 0 {
		return fmt.Errorf("%w: node without storing sides", ErrInvalidEvent)
	}

	owner := refs[0].rank
	anyLocal := false
	for _, r := range refs {
		if r.rank < owner {
			owner = r.rank
		}
		anyLocal = anyLocal || r.local
	}
	if !anyLocal {
		return fmt.Errorf("%w: event without local side", ErrInvalidEvent)
	}

	if owner == e.self {
		idx, err := e.nextOwned()
		if err != nil {
			return err
		}
		var remotes []types.Rank
		for _, r := range refs {
			if !r.local {
				remotes = insertRank(remotes, r.rank)
				continue
			}
			if err := e.setSlot(r.element, r.pos, types.OwnedSlot(idx)); err != nil {
				return err
			}
		}
		for _, p := range remotes {
			if err := e.reg.AddReply(p); err != nil {
				return err
			}
		}
		if len(remotes) > 0 {
			e.sharers[idx] = remotes
		}
		return nil
	}

	// 他秩属主：占位 + 直接向属主查询
	ph, err := e.nextShared()
	if err != nil {
		return err
	}
	var others []types.Rank
	var ownerRef *storeRef
	for i := range refs {
		r := &refs[i]
		if r.rank != e.self {
			others = insertRank(others, r.rank)
		}
		if r.rank == owner && ownerRef == nil {
			ownerRef = r
		}
		if !r.local {
			continue
		}
		if err := e.setSlot(r.element, r.pos, types.SharedSlot(ph)); err != nil {
			return err
		}
	}
	e.sharedSharers[ph] = others

	gpos := e.layout.GlobalPos(ownerRef.element, ownerRef.pos)
	return e.reg.AddQuery(owner, gpos, ph)
}
