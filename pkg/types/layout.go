package types

// ============================================================================
//                              SlotLayout - 槽位布局
// ============================================================================

// 2D 四叉树单元的几何常量
const (
	// NumFaces 每单元的面数
	NumFaces = 4
	// NumCorners 每单元的角数
	NumCorners = 4
)

// SlotLayout 单元槽位布局
//
// 每个本地单元拥有一段定长槽位，布局由启用的节点层级决定：
//
//	位置 0:                     单元中心节点（始终存在）
//	位置 1+2f, 2+2f (f=0..3):   面 f 的槽位对（启用面节点时）
//	位置 base+c (c=0..3):       角 c 的槽位（启用角节点时）
//
// 面槽位对的角色：
//   - PosFaceFull(f): 本侧面中点节点。协调面上即共享面节点；
//     悬挂面的细侧为自身半面节点，粗侧为悬挂中点节点。
//   - PosFaceHanging(f): 仅悬挂面的细侧使用，引用粗面中点节点；
//     其余情况保持未赋值。
//
// 全局位置 gpos = 单元索引 × SlotsPerElement() + 位置，
// 用于跨进程查询报文中定位属主数组内的槽位。
type SlotLayout struct {
	// FaceNodes 是否启用面中点节点
	FaceNodes bool

	// CornerNodes 是否启用角节点
	CornerNodes bool
}

// NewSlotLayout 创建槽位布局
func NewSlotLayout(faceNodes, cornerNodes bool) SlotLayout {
	return SlotLayout{FaceNodes: faceNodes, CornerNodes: cornerNodes}
}

// SlotsPerElement 返回每单元的槽位数
func (l SlotLayout) SlotsPerElement() int32 {
	n := int32(1)
	if l.FaceNodes {
		n += 2 * NumFaces
	}
	if l.CornerNodes {
		n += NumCorners
	}
	return n
}

// PosCenter 返回中心节点位置
func (l SlotLayout) PosCenter() int32 {
	return 0
}

// PosFaceFull 返回面 face 的面中点槽位位置
//
// 前置条件：FaceNodes 启用且 0 <= face < NumFaces。
func (l SlotLayout) PosFaceFull(face int32) int32 {
	return 1 + 2*face
}

// PosFaceHanging 返回面 face 的悬挂引用槽位位置
//
// 前置条件：FaceNodes 启用且 0 <= face < NumFaces。
func (l SlotLayout) PosFaceHanging(face int32) int32 {
	return 2 + 2*face
}

// PosCorner 返回角 corner 的槽位位置
//
// 前置条件：CornerNodes 启用且 0 <= corner < NumCorners。
func (l SlotLayout) PosCorner(corner int32) int32 {
	base := int32(1)
	if l.FaceNodes {
		base += 2 * NumFaces
	}
	return base + corner
}

// ValidPosition 检查位置是否在布局范围内
func (l SlotLayout) ValidPosition(pos int32) bool {
	return pos >= 0 && pos < l.SlotsPerElement()
}

// QueryEligible 检查位置是否可作为跨进程查询目标
//
// 只有面/角槽位可被查询；中心节点永远不跨进程共享。
func (l SlotLayout) QueryEligible(pos int32) bool {
	return pos > 0 && pos < l.SlotsPerElement()
}

// GlobalPos 计算单元内位置的全局位置
func (l SlotLayout) GlobalPos(element int64, pos int32) int64 {
	return element*int64(l.SlotsPerElement()) + int64(pos)
}

// SplitGlobalPos 将全局位置拆分为（单元索引, 单元内位置）
func (l SlotLayout) SplitGlobalPos(gpos int64) (element int64, pos int32) {
	spe := int64(l.SlotsPerElement())
	return gpos / spe, int32(gpos % spe)
}

// ValidGlobalPos 检查全局位置是否落在 elementCount 个单元的范围内
func (l SlotLayout) ValidGlobalPos(gpos, elementCount int64) bool {
	return gpos >= 0 && gpos < elementCount*int64(l.SlotsPerElement())
}
