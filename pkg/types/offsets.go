package types

import "fmt"

// ============================================================================
//                              OffsetTable - 全局偏移表
// ============================================================================

// OffsetTable 各秩拥有数的独占前缀和
//
// 长度为 WorldSize+1：offset[0] == 0，offset[r+1] == offset[r] + owned[r]。
// 秩 r 的局部拥有索引 i 对应全局索引 offset[r] + i；
// 末项 offset[WorldSize] 即全网节点总数。
type OffsetTable []GlobalNodeIndex

// GlobalIndex 计算属主局部索引对应的全局索引
func (t OffsetTable) GlobalIndex(owner Rank, local LocalNodeIndex) GlobalNodeIndex {
	return t[owner] + GlobalNodeIndex(local)
}

// OwnedOf 返回秩 r 的拥有节点数
func (t OffsetTable) OwnedOf(r Rank) int64 {
	return int64(t[r+1] - t[r])
}

// Total 返回全网节点总数
func (t OffsetTable) Total() GlobalNodeIndex {
	if len(t) == 0 {
		return 0
	}
	return t[len(t)-1]
}

// Validate 校验偏移表的结构不变量
func (t OffsetTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("%w: empty offset table", ErrInvalidOffsets)
	}
	if t[0] != 0 {
		return fmt.Errorf("%w: offset[0] = %d", ErrInvalidOffsets, t[0])
	}
	for r := 1; r < len(t); r++ {
		if t[r] < t[r-1] {
			return fmt.Errorf("%w: offset[%d]=%d < offset[%d]=%d",
				ErrInvalidOffsets, r, t[r], r-1, t[r-1])
		}
	}
	return nil
}
