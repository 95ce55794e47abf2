package mesh

import (
	"context"
	"sort"

	"github.com/meshdof/go-meshdof/pkg/interfaces"
	"github.com/meshdof/go-meshdof/pkg/types"
)

// 全局事件侧：以全局叶索引表达，投影前与秩无关
type (
	gFaceSide struct {
		leaf int64
		face int32
	}
	gFaceEvent struct {
		sides   []gFaceSide
		hanging bool
	}
	gCornerSide struct {
		leaf   int64
		corner int32
	}
)

// ============================================================================
//                              邻接分析
// ============================================================================

// analyze 生成本秩的遍历事件与幽灵层
//
// 先在全局叶序列上枚举每个面与真角点各一次（协调面由较小叶号
// 一侧代表，悬挂面由粗侧代表），筛出触及本地分区的事件，再把
// 远程侧投影为幽灵索引。各秩对同一事件产出相同的侧序，跨进程
// 查询位置因此对齐。
func (f *Forest) analyze() {
	lo, hi := f.parts[f.rank], f.parts[f.rank+1]
	local := func(leaf int64) bool { return leaf >= lo && leaf < hi }

	var faces []gFaceEvent
	for i := int64(0); i < int64(len(f.leaves)); i++ {
		for face := int32(0); face < types.NumFaces; face++ {
			ev, ok := f.faceEventAt(i, face)
			if !ok {
				continue
			}
			for _, s := range ev.sides {
				if local(s.leaf) {
					faces = append(faces, ev)
					break
				}
			}
		}
	}

	var corners [][]gCornerSide
	for _, sides := range f.cornerEventSides() {
		for _, s := range sides {
			if local(s.leaf) {
				corners = append(corners, sides)
				break
			}
		}
	}

	// 事件引用的全部远程叶构成幽灵层，按全局叶号升序编号
	remote := make(map[int64]struct{})
	for _, ev := range faces {
		for _, s := range ev.sides {
			if !local(s.leaf) {
				remote[s.leaf] = struct{}{}
			}
		}
	}
	for _, sides := range corners {
		for _, s := range sides {
			if !local(s.leaf) {
				remote[s.leaf] = struct{}{}
			}
		}
	}
	ids := make([]int64, 0, len(remote))
	for id := range remote {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	ghostIdx := make(map[int64]int64, len(ids))
	f.ghosts = &GhostLayer{
		owners:  make([]types.Rank, len(ids)),
		remotes: make([]int64, len(ids)),
	}
	for k, id := range ids {
		ghostIdx[id] = int64(k)
		owner := f.ownerOf(id)
		f.ghosts.owners[k] = owner
		f.ghosts.remotes[k] = id - f.parts[owner]
	}

	f.faceEvents = make([]interfaces.FaceEvent, len(faces))
	for k, ev := range faces {
		out := interfaces.FaceEvent{
			Hanging: ev.hanging,
			Sides:   make([]interfaces.FaceSide, len(ev.sides)),
		}
		for n, s := range ev.sides {
			if local(s.leaf) {
				out.Sides[n] = interfaces.FaceSide{Element: s.leaf - lo, Face: s.face}
			} else {
				out.Sides[n] = interfaces.FaceSide{Ghost: ghostIdx[s.leaf], Face: s.face, IsGhost: true}
			}
		}
		f.faceEvents[k] = out
	}

	f.cornerEvents = make([]interfaces.CornerEvent, len(corners))
	for k, sides := range corners {
		out := interfaces.CornerEvent{Sides: make([]interfaces.CornerSide, len(sides))}
		for n, s := range sides {
			if local(s.leaf) {
				out.Sides[n] = interfaces.CornerSide{Element: s.leaf - lo, Corner: s.corner}
			} else {
				out.Sides[n] = interfaces.CornerSide{Ghost: ghostIdx[s.leaf], Corner: s.corner, IsGhost: true}
			}
		}
		f.cornerEvents[k] = out
	}
}

// faceEventAt 生成叶 i 的面 face 所代表的全局面事件
//
// 返回假表示该面不由本叶代表：协调面只由较小叶号一侧生成，
// 悬挂面只由粗侧生成。事件内的侧按全局叶号升序（悬挂面粗侧
// 恒在首位，两细侧按叶号升序）。
func (f *Forest) faceEventAt(i int64, face int32) (gFaceEvent, bool) {
	x, y, size := f.leaves[i].box()

	var px, py int64
	switch face {
	case 0:
		if x == 0 {
			return gFaceEvent{sides: []gFaceSide{{leaf: i, face: face}}}, true
		}
		px, py = x-1, y
	case 1:
		if x+size == f.width {
			return gFaceEvent{sides: []gFaceSide{{leaf: i, face: face}}}, true
		}
		px, py = x+size, y
	case 2:
		if y == 0 {
			return gFaceEvent{sides: []gFaceSide{{leaf: i, face: face}}}, true
		}
		px, py = x, y-1
	case 3:
		if y+size == rootLen {
			return gFaceEvent{sides: []gFaceSide{{leaf: i, face: face}}}, true
		}
		px, py = x, y+size
	}

	j := f.leafAt(px, py)
	opp := face ^ 1

	switch {
	case f.leaves[j].Level == f.leaves[i].Level:
		// 协调面：较小叶号一侧代表
		if j < i {
			return gFaceEvent{}, false
		}
		return gFaceEvent{sides: []gFaceSide{
			{leaf: i, face: face},
			{leaf: j, face: opp},
		}}, true

	case f.leaves[j].Level < f.leaves[i].Level:
		// 本叶是细侧，悬挂面由粗侧代表
		return gFaceEvent{}, false

	default:
		// 本叶是粗侧：对侧恰为两个细叶，带中点的第二叶在后
		var j2 int64
		if face >= 2 {
			j2 = f.leafAt(px+size/2, py)
		} else {
			j2 = f.leafAt(px, py+size/2)
		}
		return gFaceEvent{
			hanging: true,
			sides: []gFaceSide{
				{leaf: i, face: face},
				{leaf: j, face: opp},
				{leaf: j2, face: opp},
			},
		}, true
	}
}

// cornerEventSides 枚举全部真角点，每点一组按叶号升序的侧
//
// 候选点取所有叶的角点并集；一个点只要落在任何相邻叶的面
// 内部（即悬挂中点）就被整体剔除，由悬挂面事件处理。
func (f *Forest) cornerEventSides() [][]gCornerSide {
	type point struct{ x, y int64 }

	seen := make(map[point]struct{})
	var pts []point
	for i := range f.leaves {
		for c := int32(0); c < types.NumCorners; c++ {
			px, py := f.leaves[i].cornerPoint(c)
			p := point{x: px, y: py}
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				pts = append(pts, p)
			}
		}
	}
	sort.Slice(pts, func(a, b int) bool {
		if pts[a].y != pts[b].y {
			return pts[a].y < pts[b].y
		}
		return pts[a].x < pts[b].x
	})

	var events [][]gCornerSide
	for _, p := range pts {
		sides, ok := f.cornerSidesAt(p.x, p.y)
		if ok {
			events = append(events, sides)
		}
	}
	return events
}

// cornerSidesAt 收集触及点 (px, py) 的全部叶侧
//
// 返回假表示该点是悬挂中点，不构成角事件。
func (f *Forest) cornerSidesAt(px, py int64) ([]gCornerSide, bool) {
	cells := [4][2]int64{
		{px - 1, py - 1},
		{px, py - 1},
		{px - 1, py},
		{px, py},
	}

	var leaves []int64
	for _, cell := range cells {
		if cell[0] < 0 || cell[0] >= f.width || cell[1] < 0 || cell[1] >= rootLen {
			continue
		}
		j := f.leafAt(cell[0], cell[1])
		dup := false
		for _, seen := range leaves {
			if seen == j {
				dup = true
				break
			}
		}
		if !dup {
			leaves = append(leaves, j)
		}
	}

	sides := make([]gCornerSide, 0, len(leaves))
	for _, j := range leaves {
		c, ok := f.cornerIndexOf(j, px, py)
		if !ok {
			return nil, false
		}
		sides = append(sides, gCornerSide{leaf: j, corner: c})
	}
	sort.Slice(sides, func(a, b int) bool { return sides[a].leaf < sides[b].leaf })
	return sides, true
}

// cornerIndexOf 返回点 (px, py) 在叶 j 中的角索引
//
// 点不是该叶的角点（落在面内部）时返回假。
func (f *Forest) cornerIndexOf(j int64, px, py int64) (int32, bool) {
	x, y, size := f.leaves[j].box()

	var c int32
	switch px {
	case x:
	case x + size:
		c |= 1
	default:
		return 0, false
	}
	switch py {
	case y:
	case y + size:
		c |= 2
	default:
		return 0, false
	}
	return c, true
}

// ============================================================================
//                              遍历
// ============================================================================

// Traverse 依序触发体、面、角三个相位的事件
func (f *Forest) Traverse(ctx context.Context, v interfaces.Visitor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for e := int64(0); e < f.LocalElementCount(); e++ {
		if err := v.Volume(e); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	for _, ev := range f.faceEvents {
		if err := v.Face(ev); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	for _, ev := range f.cornerEvents {
		if err := v.Corner(ev); err != nil {
			return err
		}
	}
	return nil
}
