package types

import (
	"math"
	"strconv"
)

// ============================================================================
//                              NodeSlot - 节点槽位
// ============================================================================

// NodeSlot 节点槽位的紧凑带符号编码
//
// 这是槽位数组的存储/交换格式：
//   - 值 >= 0: 本秩拥有的节点，值即局部索引
//   - 值 <  0: 共享节点占位，占位索引解码为 -1 - 值
//   - UnsetSlot: 未赋值哨兵
//
// 零是合法的拥有索引（第一个节点），因此哨兵取 math.MinInt32 而非零。
// 共享占位索引必须小于 math.MaxInt32，否则与哨兵编码冲突。
type NodeSlot int32

// UnsetSlot 未赋值槽位哨兵
const UnsetSlot NodeSlot = math.MinInt32

// MaxSharedPlaceholder 共享占位索引的上界（不含）
const MaxSharedPlaceholder = math.MaxInt32

// OwnedSlot 构造拥有槽位
//
// 前置条件：index >= 0。
func OwnedSlot(index LocalNodeIndex) NodeSlot {
	return NodeSlot(index)
}

// SharedSlot 构造共享占位槽位
//
// 前置条件：0 <= placeholder < MaxSharedPlaceholder。
func SharedSlot(placeholder int32) NodeSlot {
	return NodeSlot(-1 - placeholder)
}

// Kind 返回槽位的标签视图种类
func (s NodeSlot) Kind() SlotKind {
	switch {
	case s == UnsetSlot:
		return SlotUnset
	case s >= 0:
		return SlotOwned
	default:
		return SlotShared
	}
}

// IsSet 检查槽位是否已赋值
func (s NodeSlot) IsSet() bool {
	return s != UnsetSlot
}

// OwnedIndex 返回拥有槽位的局部索引
//
// 仅当 Kind() == SlotOwned 时有意义。
func (s NodeSlot) OwnedIndex() LocalNodeIndex {
	return LocalNodeIndex(s)
}

// SharedIndex 返回共享槽位的占位索引
//
// 仅当 Kind() == SlotShared 时有意义。
func (s NodeSlot) SharedIndex() int32 {
	return int32(-1 - s)
}

// String 返回槽位的字符串表示
func (s NodeSlot) String() string {
	switch s.Kind() {
	case SlotOwned:
		return "owned(" + strconv.FormatInt(int64(s), 10) + ")"
	case SlotShared:
		return "shared(" + strconv.FormatInt(int64(s.SharedIndex()), 10) + ")"
	default:
		return "unset"
	}
}

// ============================================================================
//                              SlotKind - 槽位种类
// ============================================================================

// SlotKind 槽位种类
type SlotKind int

const (
	// SlotUnset 未赋值
	SlotUnset SlotKind = iota
	// SlotOwned 本秩拥有
	SlotOwned
	// SlotShared 共享占位
	SlotShared
)

// String 返回槽位种类的字符串表示
func (k SlotKind) String() string {
	switch k {
	case SlotUnset:
		return "unset"
	case SlotOwned:
		return "owned"
	case SlotShared:
		return "shared"
	default:
		return "unknown"
	}
}
