// Package numbering 所有权裁决测试：协调面、悬挂面、角点
package numbering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshdof/go-meshdof/pkg/interfaces"
	"github.com/meshdof/go-meshdof/pkg/types"
)

func TestBoundaryFace(t *testing.T) {
	layout := types.NewSlotLayout(true, false)
	events := volumeEvents(1)
	events = append(events, faceEvent(interfaces.FaceEvent{
		Sides: []interfaces.FaceSide{{Element: 0, Face: 2}},
	}))
	mesh := &scriptMesh{elements: 1, events: events}

	pass, err := runEngine(t, 0, layout, mesh, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(2), pass.OwnedCount)
	assert.Equal(t, int32(0), pass.SharedCount)
	assert.Equal(t, 0, pass.Registry.Count())

	slot := pass.Slots[layout.GlobalPos(0, layout.PosFaceFull(2))]
	require.Equal(t, types.SlotOwned, slot.Kind())
	assert.Equal(t, types.LocalNodeIndex(1), slot.OwnedIndex())
}

func TestConformingFace(t *testing.T) {
	layout := types.NewSlotLayout(true, false)

	t.Run("本地两侧共享同一索引", func(t *testing.T) {
		events := volumeEvents(2)
		events = append(events, faceEvent(interfaces.FaceEvent{
			Sides: []interfaces.FaceSide{
				{Element: 0, Face: 1},
				{Element: 1, Face: 3},
			},
		}))
		mesh := &scriptMesh{elements: 2, events: events}

		pass, err := runEngine(t, 0, layout, mesh, nil)
		require.NoError(t, err)

		assert.Equal(t, int32(3), pass.OwnedCount)
		left := pass.Slots[layout.GlobalPos(0, layout.PosFaceFull(1))]
		right := pass.Slots[layout.GlobalPos(1, layout.PosFaceFull(3))]
		require.Equal(t, types.SlotOwned, left.Kind())
		assert.Equal(t, left, right)
		assert.Empty(t, pass.Sharers)
	})

	t.Run("本秩为属主方", func(t *testing.T) {
		ghost := &fakeGhost{owners: []types.Rank{1}, remotes: []int64{7}}
		events := volumeEvents(1)
		events = append(events, faceEvent(interfaces.FaceEvent{
			Sides: []interfaces.FaceSide{
				{Element: 0, Face: 1},
				{Ghost: 0, Face: 3, IsGhost: true},
			},
		}))
		mesh := &scriptMesh{elements: 1, events: events}

		pass, err := runEngine(t, 0, layout, mesh, ghost)
		require.NoError(t, err)

		assert.Equal(t, int32(2), pass.OwnedCount)
		assert.Equal(t, int32(0), pass.SharedCount)

		slot := pass.Slots[layout.GlobalPos(0, layout.PosFaceFull(1))]
		require.Equal(t, types.SlotOwned, slot.Kind())
		assert.Equal(t, types.LocalNodeIndex(1), slot.OwnedIndex())
		assert.Equal(t, []types.Rank{1}, pass.Sharers[1])

		peer, ok := pass.Registry.Lookup(1)
		require.True(t, ok)
		assert.Equal(t, int32(1), peer.ExpectedQueries)
		assert.Zero(t, peer.QueryCount())
	})

	t.Run("本秩为询问方", func(t *testing.T) {
		ghost := &fakeGhost{owners: []types.Rank{0}, remotes: []int64{5}}
		events := volumeEvents(1)
		events = append(events, faceEvent(interfaces.FaceEvent{
			Sides: []interfaces.FaceSide{
				{Element: 0, Face: 1},
				{Ghost: 0, Face: 3, IsGhost: true},
			},
		}))
		mesh := &scriptMesh{elements: 1, events: events}

		pass, err := runEngine(t, 1, layout, mesh, ghost)
		require.NoError(t, err)

		assert.Equal(t, int32(1), pass.OwnedCount)
		assert.Equal(t, int32(1), pass.SharedCount)

		slot := pass.Slots[layout.GlobalPos(0, layout.PosFaceFull(1))]
		require.Equal(t, types.SlotShared, slot.Kind())
		assert.Equal(t, int32(0), slot.SharedIndex())
		assert.Equal(t, []types.Rank{0}, pass.SharedSharers[0])

		// 查询位置指向属主槽位数组内的全局位置
		peer, ok := pass.Registry.Lookup(0)
		require.True(t, ok)
		want := layout.GlobalPos(5, layout.PosFaceFull(3))
		assert.Equal(t, []int64{want}, peer.QueryPositions)
		assert.Equal(t, []int32{0}, peer.Placeholders)
		assert.Zero(t, peer.ExpectedQueries)
	})
}

func TestHangingFace(t *testing.T) {
	layout := types.NewSlotLayout(true, false)

	t.Run("本秩为粗侧属主", func(t *testing.T) {
		ghost := &fakeGhost{owners: []types.Rank{1, 1}, remotes: []int64{7, 8}}
		events := volumeEvents(1)
		events = append(events, faceEvent(interfaces.FaceEvent{
			Hanging: true,
			Sides: []interfaces.FaceSide{
				{Element: 0, Face: 1},
				{Ghost: 0, Face: 3, IsGhost: true},
				{Ghost: 1, Face: 3, IsGhost: true},
			},
		}))
		mesh := &scriptMesh{elements: 1, events: events}

		pass, err := runEngine(t, 0, layout, mesh, ghost)
		require.NoError(t, err)

		// 中点节点：幽灵细侧不产生本地半面节点
		assert.Equal(t, int32(2), pass.OwnedCount)
		slot := pass.Slots[layout.GlobalPos(0, layout.PosFaceFull(1))]
		require.Equal(t, types.SlotOwned, slot.Kind())
		assert.Equal(t, []types.Rank{1}, pass.Sharers[slot.OwnedIndex()])

		// 两个细侧同秩：预期查询去重为一条
		peer, ok := pass.Registry.Lookup(1)
		require.True(t, ok)
		assert.Equal(t, int32(1), peer.ExpectedQueries)
	})

	t.Run("本秩为细侧询问方", func(t *testing.T) {
		ghost := &fakeGhost{owners: []types.Rank{0}, remotes: []int64{2}}
		events := volumeEvents(2)
		events = append(events, faceEvent(interfaces.FaceEvent{
			Hanging: true,
			Sides: []interfaces.FaceSide{
				{Ghost: 0, Face: 0, IsGhost: true},
				{Element: 0, Face: 2},
				{Element: 1, Face: 2},
			},
		}))
		mesh := &scriptMesh{elements: 2, events: events}

		pass, err := runEngine(t, 1, layout, mesh, ghost)
		require.NoError(t, err)

		// 半面节点本地拥有，中点占位共享
		assert.Equal(t, int32(4), pass.OwnedCount)
		assert.Equal(t, int32(1), pass.SharedCount)

		half0 := pass.Slots[layout.GlobalPos(0, layout.PosFaceFull(2))]
		half1 := pass.Slots[layout.GlobalPos(1, layout.PosFaceFull(2))]
		require.Equal(t, types.SlotOwned, half0.Kind())
		require.Equal(t, types.SlotOwned, half1.Kind())
		assert.Equal(t, types.LocalNodeIndex(2), half0.OwnedIndex())
		assert.Equal(t, types.LocalNodeIndex(3), half1.OwnedIndex())

		mid0 := pass.Slots[layout.GlobalPos(0, layout.PosFaceHanging(2))]
		mid1 := pass.Slots[layout.GlobalPos(1, layout.PosFaceHanging(2))]
		require.Equal(t, types.SlotShared, mid0.Kind())
		assert.Equal(t, mid0, mid1)
		assert.Equal(t, []types.Rank{0}, pass.SharedSharers[mid0.SharedIndex()])

		// 查询指向粗侧远程单元的面中点槽位
		peer, ok := pass.Registry.Lookup(0)
		require.True(t, ok)
		want := layout.GlobalPos(2, layout.PosFaceFull(0))
		assert.Equal(t, []int64{want}, peer.QueryPositions)
		assert.Equal(t, []int32{mid0.SharedIndex()}, peer.Placeholders)
	})

	t.Run("全本地悬挂面退化为无通信", func(t *testing.T) {
		events := volumeEvents(3)
		events = append(events, faceEvent(interfaces.FaceEvent{
			Hanging: true,
			Sides: []interfaces.FaceSide{
				{Element: 0, Face: 1},
				{Element: 1, Face: 3},
				{Element: 2, Face: 3},
			},
		}))
		mesh := &scriptMesh{elements: 3, events: events}

		pass, err := runEngine(t, 0, layout, mesh, nil)
		require.NoError(t, err)

		// 3 中心 + 2 半面 + 1 中点
		assert.Equal(t, int32(6), pass.OwnedCount)
		assert.Equal(t, int32(0), pass.SharedCount)
		assert.Equal(t, 0, pass.Registry.Count())

		mid := pass.Slots[layout.GlobalPos(0, layout.PosFaceFull(1))]
		require.Equal(t, types.SlotOwned, mid.Kind())
		assert.Equal(t, mid, pass.Slots[layout.GlobalPos(1, layout.PosFaceHanging(3))])
		assert.Equal(t, mid, pass.Slots[layout.GlobalPos(2, layout.PosFaceHanging(3))])
	})
}

func TestCornerResolution(t *testing.T) {
	layout := types.NewSlotLayout(true, true)

	t.Run("四秩参与时向最小秩查询", func(t *testing.T) {
		ghost := &fakeGhost{
			owners:  []types.Rank{0, 1, 3},
			remotes: []int64{4, 9, 2},
		}
		events := volumeEvents(1)
		events = append(events, cornerEvent(interfaces.CornerEvent{
			Sides: []interfaces.CornerSide{
				{Element: 0, Corner: 3},
				{Ghost: 0, Corner: 0, IsGhost: true},
				{Ghost: 1, Corner: 1, IsGhost: true},
				{Ghost: 2, Corner: 2, IsGhost: true},
			},
		}))
		mesh := &scriptMesh{elements: 1, events: events}

		pass, err := runEngine(t, 2, layout, mesh, ghost)
		require.NoError(t, err)

		assert.Equal(t, int32(1), pass.SharedCount)
		slot := pass.Slots[layout.GlobalPos(0, layout.PosCorner(3))]
		require.Equal(t, types.SlotShared, slot.Kind())

		// 共享者表列出除本秩外的全部参与方，升序
		assert.Equal(t, []types.Rank{0, 1, 3}, pass.SharedSharers[slot.SharedIndex()])

		// 只向属主查询：高于本秩的参与方不进入注册表
		assert.Equal(t, []types.Rank{0}, pass.Registry.Ranks())
		peer, _ := pass.Registry.Lookup(0)
		want := layout.GlobalPos(4, layout.PosCorner(0))
		assert.Equal(t, []int64{want}, peer.QueryPositions)
	})

	t.Run("本秩属主时逐对端登记预期查询", func(t *testing.T) {
		ghost := &fakeGhost{
			owners:  []types.Rank{2, 1},
			remotes: []int64{4, 9},
		}
		events := volumeEvents(1)
		events = append(events, cornerEvent(interfaces.CornerEvent{
			Sides: []interfaces.CornerSide{
				{Element: 0, Corner: 0},
				{Ghost: 0, Corner: 1, IsGhost: true},
				{Ghost: 1, Corner: 2, IsGhost: true},
			},
		}))
		mesh := &scriptMesh{elements: 1, events: events}

		pass, err := runEngine(t, 0, layout, mesh, ghost)
		require.NoError(t, err)

		slot := pass.Slots[layout.GlobalPos(0, layout.PosCorner(0))]
		require.Equal(t, types.SlotOwned, slot.Kind())
		assert.Equal(t, []types.Rank{1, 2}, pass.Sharers[slot.OwnedIndex()])

		assert.Equal(t, []types.Rank{1, 2}, pass.Registry.Ranks())
		for _, r := range []types.Rank{1, 2} {
			peer, ok := pass.Registry.Lookup(r)
			require.True(t, ok)
			assert.Equal(t, int32(1), peer.ExpectedQueries)
		}
	})

	t.Run("角层级未启用时事件被忽略", func(t *testing.T) {
		faceOnly := types.NewSlotLayout(true, false)
		events := volumeEvents(1)
		events = append(events, cornerEvent(interfaces.CornerEvent{
			Sides: []interfaces.CornerSide{{Element: 0, Corner: 0}},
		}))
		mesh := &scriptMesh{elements: 1, events: events}

		pass, err := runEngine(t, 0, faceOnly, mesh, nil)
		require.NoError(t, err)
		assert.Equal(t, int32(1), pass.OwnedCount)
	})
}
