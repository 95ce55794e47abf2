// Package mesh 提供确定性的四叉树测试网格
//
// Forest 在每个秩上复制构建同一片 2:1 平衡四叉树森林：若干根单元
// 排成一行，按回调细分，叶单元以（树号，Morton 键）全序排列，
// 连续切分给各秩。面与角的邻接分析同样全局复制，据此派生本秩
// 幽灵层并按相位顺序触发遍历事件。
//
// 它是 interfaces.Mesh 与 interfaces.GhostLayer 的参考实现，
// 服务于测试与演示；生产调用方以自己的网格驱动对接同一接口。
package mesh

import (
	"fmt"

	"github.com/meshdof/go-meshdof/internal/util/logger"
	"github.com/meshdof/go-meshdof/pkg/interfaces"
	"github.com/meshdof/go-meshdof/pkg/types"
)

// 包级别日志实例
var log = logger.Logger("mesh")

// 细分几何常量
const (
	// MaxRefineLevel 细分深度硬上限
	MaxRefineLevel = 24

	// MaxTrees 根单元数上限
	MaxTrees = 64

	// rootLen 一棵树的标度边长
	rootLen = int64(1) << MaxRefineLevel

	// treeKeyShift 叶键中树号的位移量（树内键占 2×MaxRefineLevel 位）
	treeKeyShift = 2 * MaxRefineLevel
)

// ============================================================================
//                              Quad 叶单元
// ============================================================================

// Quad 森林中的一个单元
//
// X、Y 是单元在其层级网格内的树内整数坐标，范围 [0, 2^Level)。
type Quad struct {
	// Tree 所属根单元
	Tree int32

	// Level 细分层级，根为 0
	Level int32

	// X, Y 树内坐标
	X, Y int32
}

// box 返回全局标度包围盒（左下角与边长）
func (q Quad) box() (x, y, size int64) {
	s := uint(MaxRefineLevel - q.Level)
	return int64(q.Tree)*rootLen + int64(q.X)<<s, int64(q.Y) << s, int64(1) << s
}

// key 返回（树号，树内 Morton 键）合成的全序键
func (q Quad) key() uint64 {
	s := uint(MaxRefineLevel - q.Level)
	return uint64(q.Tree)<<treeKeyShift | mortonKey(int64(q.X)<<s, int64(q.Y)<<s)
}

// children 返回 z 序的四个子单元
func (q Quad) children() [4]Quad {
	l, x, y := q.Level+1, q.X*2, q.Y*2
	return [4]Quad{
		{Tree: q.Tree, Level: l, X: x, Y: y},
		{Tree: q.Tree, Level: l, X: x + 1, Y: y},
		{Tree: q.Tree, Level: l, X: x, Y: y + 1},
		{Tree: q.Tree, Level: l, X: x + 1, Y: y + 1},
	}
}

// cornerPoint 返回角 c 的全局标度坐标
func (q Quad) cornerPoint(c int32) (int64, int64) {
	x, y, size := q.box()
	if c&1 != 0 {
		x += size
	}
	if c&2 != 0 {
		y += size
	}
	return x, y
}

// ============================================================================
//                              Spec 构建描述
// ============================================================================

// Spec 描述一片森林的构建
type Spec struct {
	// Trees 根单元数，排成一行，相邻根以竖直面相接；0 视为 1
	Trees int32

	// MaxLevel 细分深度上限
	MaxLevel int32

	// Refine 决定一个单元是否继续细分；nil 表示不细分
	Refine func(q Quad) bool
}

// ============================================================================
//                              Forest 森林
// ============================================================================

// Forest 全局复制的分区森林
type Forest struct {
	rank types.Rank
	size int

	// leaves 全局叶序列，(树号, Morton) 升序
	leaves []Quad

	// keys 与 leaves 对齐的全序键
	keys []uint64

	// parts 长度 size+1 的连续分区边界
	parts []int64

	// width 全域标度宽度（Trees × rootLen）
	width int64

	ghosts       *GhostLayer
	faceEvents   []interfaces.FaceEvent
	cornerEvents []interfaces.CornerEvent
}

var _ interfaces.Mesh = (*Forest)(nil)

// New 构建秩 rank 视角下的森林
//
// 所有秩以同一 Spec 调用得到同一片全局森林与同一分区，
// 仅事件的本地/幽灵投影不同。
func New(rank types.Rank, size int, spec Spec) (*Forest, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: world size %d", ErrBadSpec, size)
	}
	if rank < 0 || int(rank) >= size {
		return nil, fmt.Errorf("%w: rank %d of %d", ErrBadSpec, rank, size)
	}
	trees := spec.Trees
	if trees == 0 {
		trees = 1
	}
	if trees < 1 || trees > MaxTrees {
		return nil, fmt.Errorf("%w: %d trees", ErrBadSpec, spec.Trees)
	}
	if spec.MaxLevel < 0 || spec.MaxLevel > MaxRefineLevel {
		return nil, fmt.Errorf("%w: max level %d", ErrBadSpec, spec.MaxLevel)
	}

	f := &Forest{
		rank:  rank,
		size:  size,
		width: int64(trees) * rootLen,
	}
	f.refine(trees, spec)
	f.balance()
	f.partition()
	f.analyze()

	log.Debug("森林就绪",
		"rank", rank,
		"leaves", len(f.leaves),
		"local", f.LocalElementCount(),
		"ghosts", f.ghosts.Count(),
		"faces", len(f.faceEvents),
		"corners", len(f.cornerEvents))
	return f, nil
}

// NewUniform 构建单树均匀细分的森林
func NewUniform(rank types.Rank, size int, level int32) (*Forest, error) {
	return New(rank, size, Spec{
		MaxLevel: level,
		Refine:   func(Quad) bool { return true },
	})
}

// ============================================================================
//                              构建阶段
// ============================================================================

// refine 深度优先细分，z 序递归天然产出 Morton 升序的叶序列
func (f *Forest) refine(trees int32, spec Spec) {
	var walk func(q Quad)
	walk = func(q Quad) {
		if q.Level < spec.MaxLevel && spec.Refine != nil && spec.Refine(q) {
			for _, ch := range q.children() {
				walk(ch)
			}
			return
		}
		f.leaves = append(f.leaves, q)
	}
	for t := int32(0); t < trees; t++ {
		walk(Quad{Tree: t})
	}
	f.rebuildKeys()
}

// rebuildKeys 重建与叶序列对齐的键表
func (f *Forest) rebuildKeys() {
	f.keys = make([]uint64, len(f.leaves))
	for i, q := range f.leaves {
		f.keys[i] = q.key()
	}
}

// balance 细分粗单元直到任意共享面两侧层级差不超过 1
//
// 子单元按 z 序原位替换父单元，叶序列的全序保持不变。
func (f *Forest) balance() {
	for {
		split := make([]bool, len(f.leaves))
		marked := 0
		for i, q := range f.leaves {
			neighborMax := int32(-1)
			for face := int32(0); face < types.NumFaces; face++ {
				f.walkFaceStrip(int64(i), face, func(j int64) {
					if l := f.leaves[j].Level; l > neighborMax {
						neighborMax = l
					}
				})
			}
			if neighborMax > q.Level+1 {
				split[i] = true
				marked++
			}
		}
		if marked == 0 {
			return
		}

		next := make([]Quad, 0, len(f.leaves)+3*marked)
		for i, q := range f.leaves {
			if split[i] {
				ch := q.children()
				next = append(next, ch[:]...)
			} else {
				next = append(next, q)
			}
		}
		f.leaves = next
		f.rebuildKeys()
	}
}

// partition 连续均分叶序列
func (f *Forest) partition() {
	n := int64(len(f.leaves))
	f.parts = make([]int64, f.size+1)
	for r := 0; r <= f.size; r++ {
		f.parts[r] = n * int64(r) / int64(f.size)
	}
}

// walkFaceStrip 枚举叶 i 的面 face 对侧的全部叶
//
// 对侧更粗时只有一叶（覆盖整条带），同尺寸一叶，更细两叶。
// 域边界上不枚举任何叶。
func (f *Forest) walkFaceStrip(i int64, face int32, visit func(j int64)) {
	x, y, size := f.leaves[i].box()

	var px, py int64
	switch face {
	case 0:
		if x == 0 {
			return
		}
		px, py = x-1, y
	case 1:
		if x+size == f.width {
			return
		}
		px, py = x+size, y
	case 2:
		if y == 0 {
			return
		}
		px, py = x, y-1
	case 3:
		if y+size == rootLen {
			return
		}
		px, py = x, y+size
	}

	alongX := face >= 2
	for off := int64(0); off < size; {
		var j int64
		if alongX {
			j = f.leafAt(px+off, py)
		} else {
			j = f.leafAt(px, py+off)
		}
		visit(j)
		_, _, nsize := f.leaves[j].box()
		if nsize >= size {
			return
		}
		off += nsize
	}
}

// ============================================================================
//                              Mesh 接口实现
// ============================================================================

// LocalElementCount 返回本秩的叶单元数
func (f *Forest) LocalElementCount() int64 {
	return f.parts[f.rank+1] - f.parts[f.rank]
}

// IsBalanced 校验 2:1 面平衡不变量
//
// 构建阶段已强制平衡，这里做实际校验而非直接返回真。
func (f *Forest) IsBalanced() bool {
	for i, q := range f.leaves {
		balanced := true
		for face := int32(0); face < types.NumFaces && balanced; face++ {
			f.walkFaceStrip(int64(i), face, func(j int64) {
				d := f.leaves[j].Level - q.Level
				if d > 1 || d < -1 {
					balanced = false
				}
			})
		}
		if !balanced {
			return false
		}
	}
	return true
}

// ============================================================================
//                              查询辅助
// ============================================================================

// GlobalElementCount 返回全局叶单元数
func (f *Forest) GlobalElementCount() int64 {
	return int64(len(f.leaves))
}

// Partition 返回连续分区边界表的副本
func (f *Forest) Partition() []int64 {
	out := make([]int64, len(f.parts))
	copy(out, f.parts)
	return out
}

// Leaf 返回本地单元 local 的几何描述
func (f *Forest) Leaf(local int64) Quad {
	return f.leaves[f.parts[f.rank]+local]
}

// Ghosts 返回派生的幽灵层
func (f *Forest) Ghosts() *GhostLayer {
	return f.ghosts
}

// ownerOf 返回全局叶的属主秩
func (f *Forest) ownerOf(leaf int64) types.Rank {
	lo, hi := 0, f.size-1
	for lo < hi {
		mid := (lo + hi) / 2
		if f.parts[mid+1] > leaf {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return types.Rank(lo)
}
