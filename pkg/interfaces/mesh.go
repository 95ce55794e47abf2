// Package interfaces 定义 MeshDOF 公共接口
//
// 本文件定义 Mesh 遍历驱动接口与 GhostLayer 幽灵层接口，
// 二者都是外部协作者：编号引擎只消费事件，不构造网格。
package interfaces

import (
	"context"

	"github.com/meshdof/go-meshdof/pkg/types"
)

// Mesh 定义分区网格的遍历驱动接口
//
// 驱动按固定相位顺序触发回调：先按单元索引升序触发全部体事件，
// 然后触发全部面事件，最后触发全部角事件。引擎校验该顺序。
// 每个事件至少包含一个本地单元；纯远程的邻接关系不在本秩触发。
//
// 前置条件：分区满足面相邻 2:1 平衡（任一共享面两侧细化层级差
// 不超过 1），否则面事件的情形分析不完备。
type Mesh interface {
	// LocalElementCount 返回本秩的叶单元数
	LocalElementCount() int64

	// IsBalanced 报告分区是否满足 2:1 面平衡不变量
	IsBalanced() bool

	// Traverse 执行一次完整遍历，依序触发 v 的回调
	//
	// 任一回调返回错误即中止遍历并原样返回该错误。
	Traverse(ctx context.Context, v Visitor) error
}

// Visitor 遍历事件回调
type Visitor interface {
	// Volume 体事件：每个本地单元触发一次，按索引升序
	Volume(element int64) error

	// Face 面事件：每个触及本地单元的面触发一次
	Face(ev FaceEvent) error

	// Corner 角事件：每个触及本地单元的真角点触发一次
	//
	// 悬挂中点不属于角事件（由悬挂面事件处理）；未启用角节点
	// 层级的引擎忽略角事件。
	Corner(ev CornerEvent) error
}

// ============================================================================
//                              面事件
// ============================================================================

// FaceEvent 一次面邻接事件
//
// 侧数决定面的种类：
//   - 1 侧: 域边界面
//   - 2 侧: 协调面（两侧同尺寸）
//   - 3 侧: 悬挂面（Hanging 为 true，Sides[0] 为粗侧，其余为细侧）
type FaceEvent struct {
	// Sides 参与的侧
	Sides []FaceSide

	// Hanging 是否为悬挂面
	Hanging bool
}

// FaceSide 面事件中的一侧
type FaceSide struct {
	// Element 本地单元索引；IsGhost 时无效
	Element int64

	// Ghost 幽灵镜像索引，供 GhostLayer 查询；仅 IsGhost 时有效
	Ghost int64

	// Face 本侧单元内的面索引，范围 [0, types.NumFaces)
	Face int32

	// IsGhost 本侧是否为远程单元的镜像
	IsGhost bool
}

// ============================================================================
//                              角事件
// ============================================================================

// CornerEvent 一次角点邻接事件
//
// 包含触及该角点的全部单元侧（本地与幽灵），最多 types.NumCorners 个。
type CornerEvent struct {
	// Sides 参与的侧
	Sides []CornerSide
}

// CornerSide 角事件中的一侧
type CornerSide struct {
	// Element 本地单元索引；IsGhost 时无效
	Element int64

	// Ghost 幽灵镜像索引；仅 IsGhost 时有效
	Ghost int64

	// Corner 本侧单元内的角索引，范围 [0, types.NumCorners)
	Corner int32

	// IsGhost 本侧是否为远程单元的镜像
	IsGhost bool
}

// ============================================================================
//                              幽灵层
// ============================================================================

// GhostLayer 定义幽灵层接口
//
// 幽灵层是远程边界单元的只读镜像表，由外部协作者构造。
// 编号引擎只读取属主秩与远程单元索引，从不修改。
type GhostLayer interface {
	// Count 返回幽灵镜像数
	Count() int64

	// OwnerRank 返回镜像 ghost 所属的远程秩
	OwnerRank(ghost int64) types.Rank

	// RemoteElement 返回镜像 ghost 在属主分区内的单元索引
	//
	// 用于计算指向属主槽位数组的全局位置。
	RemoteElement(ghost int64) int64
}
