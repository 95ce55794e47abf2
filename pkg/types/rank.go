package types

import "strconv"

// ============================================================================
//                              Rank - 进程秩
// ============================================================================

// Rank 参与方的进程秩
//
// 秩是 [0, WorldSize) 内互不相同的整数，用作所有权裁决的唯一依据：
// 共享节点永远归参与各方中秩最小者所有。秩相等的情况不存在。
type Rank int32

// InvalidRank 无效秩哨兵
const InvalidRank Rank = -1

// IsValid 检查秩是否有效（非负）
func (r Rank) IsValid() bool {
	return r >= 0
}

// String 返回秩的字符串表示
func (r Rank) String() string {
	return strconv.FormatInt(int64(r), 10)
}

// ============================================================================
//                              节点索引
// ============================================================================

// LocalNodeIndex 本秩拥有节点的稠密局部索引
//
// 每个秩独立从 0 开始顺序分配；与全局偏移相加得到全局索引。
type LocalNodeIndex int32

// GlobalNodeIndex 全网唯一的节点全局索引
//
// 计算方式：offset[owner] + local，其中 offset 为各秩拥有数的
// 前缀和（见 OffsetTable）。
type GlobalNodeIndex int64
