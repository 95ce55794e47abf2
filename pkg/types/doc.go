// Package types 定义 MeshDOF 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他 meshdof 内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 职能
//
// pkg/types 的职能是定义 **Go 内部数据结构**：
//   - 模块间数据传递（秩、槽位、布局、偏移表）
//   - API 参数/返回值
//   - 枚举类型（槽位种类、消息类别）
//
// # 文件组织
//
// 基础类型:
//   - rank.go     - Rank, LocalNodeIndex, GlobalNodeIndex
//   - slot.go     - NodeSlot 紧凑编码与 SlotKind 标签视图
//   - layout.go   - SlotLayout 槽位布局与位置计算
//   - category.go - Category 消息类别
//   - offsets.go  - OffsetTable 全局偏移表
//   - errors.go   - 公共错误定义
//
// # 编码约定
//
// NodeSlot 采用带符号紧凑编码（存储/交换格式）：
//   - 值 >= 0: 本秩拥有的节点局部索引
//   - 值 <  0: 共享占位索引，解码为 -1 - 值
//   - math.MinInt32: 未赋值哨兵（零是合法的拥有索引，不可复用作哨兵）
//
// API 边界通过 Kind()/OwnedIndex()/SharedIndex() 暴露标签视图，
// 紧凑编码仅作为存储格式保留。
package types
