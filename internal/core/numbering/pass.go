package numbering

import (
	"github.com/meshdof/go-meshdof/internal/core/peering"
	"github.com/meshdof/go-meshdof/pkg/types"
)

// Pass 一次本地编号遍历的产物
//
// 交换阶段消费 Registry 与 Slots（属主侧翻译查询位置），
// 集合阶段消费 OwnedCount，编排器合并两者得到最终编号结构。
// Registry 在交换完成后即丢弃，其余字段并入持久结果。
type Pass struct {
	// Layout 槽位布局
	Layout types.SlotLayout

	// ElementCount 本地单元数
	ElementCount int64

	// Slots 槽位数组，步长 = Layout.SlotsPerElement()
	Slots []types.NodeSlot

	// OwnedCount 本秩拥有的节点数
	OwnedCount int32

	// SharedCount 本秩的共享占位数
	SharedCount int32

	// Registry 对端注册表（仅存活到交换完成）
	Registry *peering.Registry

	// Sharers 本秩拥有节点的共享秩表，升序（仅跨秩节点有条目）
	Sharers map[types.LocalNodeIndex][]types.Rank

	// SharedSharers 本秩占位节点的参与秩表，升序（含属主，不含本秩）
	SharedSharers map[int32][]types.Rank
}
