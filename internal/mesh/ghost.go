package mesh

import (
	"github.com/meshdof/go-meshdof/pkg/interfaces"
	"github.com/meshdof/go-meshdof/pkg/types"
)

// ============================================================================
//                              GhostLayer 幽灵层
// ============================================================================

// GhostLayer 本秩事件引用的远程叶镜像表
//
// 镜像按全局叶号升序编号，属主秩与属主分区内索引在构建时
// 一次换算完成。只读。
type GhostLayer struct {
	owners  []types.Rank
	remotes []int64
}

var _ interfaces.GhostLayer = (*GhostLayer)(nil)

// Count 返回幽灵镜像数
func (g *GhostLayer) Count() int64 {
	return int64(len(g.owners))
}

// OwnerRank 返回镜像 ghost 所属的远程秩
func (g *GhostLayer) OwnerRank(ghost int64) types.Rank {
	return g.owners[ghost]
}

// RemoteElement 返回镜像 ghost 在属主分区内的单元索引
func (g *GhostLayer) RemoteElement(ghost int64) int64 {
	return g.remotes[ghost]
}
