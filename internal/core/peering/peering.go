// Package peering 提供每对端的交换簿记
//
// 遍历阶段由编号引擎填充注册表：本秩作为询问方排队的出站查询、
// 本秩作为属主方预期的入站查询数。交换阶段由通信管理器驱动
// 每对端的状态机直至全部完成。
//
// 注册表与其中的 Peer 记录只存活于一次构造调用内，
// 调用结束即丢弃；只有编号结果出参存活。
package peering

import (
	"fmt"
	"sort"

	"github.com/meshdof/go-meshdof/pkg/types"
)

// ============================================================================
//                              State - 对端状态机
// ============================================================================

// State 对端交换状态
//
// 状态机（每对端恰好走一条路径）：
//
//	Idle → AwaitingIncomingQuery → SendingReply   → Done   （本秩为属主方）
//	Idle → SendingQuery          → AwaitingReply  → Done   （本秩为询问方）
type State int

const (
	// StateIdle 未开始
	StateIdle State = iota
	// StateAwaitingIncomingQuery 属主方：等待入站查询
	StateAwaitingIncomingQuery
	// StateSendingQuery 询问方：查询发送中
	StateSendingQuery
	// StateSendingReply 属主方：应答发送中
	StateSendingReply
	// StateAwaitingReply 询问方：等待应答
	StateAwaitingReply
	// StateDone 交换完成
	StateDone
)

// String 返回状态的字符串表示
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingIncomingQuery:
		return "awaiting_incoming_query"
	case StateSendingQuery:
		return "sending_query"
	case StateSendingReply:
		return "sending_reply"
	case StateAwaitingReply:
		return "awaiting_reply"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Terminal 检查状态是否为终态
func (s State) Terminal() bool {
	return s == StateDone
}

// canTransition 检查状态迁移是否合法
func (s State) canTransition(to State) bool {
	switch s {
	case StateIdle:
		return to == StateAwaitingIncomingQuery || to == StateSendingQuery
	case StateAwaitingIncomingQuery:
		return to == StateSendingReply
	case StateSendingQuery:
		return to == StateAwaitingReply
	case StateSendingReply, StateAwaitingReply:
		return to == StateDone
	default:
		return false
	}
}

// ============================================================================
//                              Peer - 对端记录
// ============================================================================

// Peer 一个远程秩的交换簿记记录
//
// 角色由秩序决定：共享节点永远归最小参与秩所有，因此查询只会
// 从高秩流向低秩。对端秩低于本秩时本秩是询问方（QueryPositions
// 非空），高于本秩时本秩是属主方（ExpectedQueries 非零）。
type Peer struct {
	// Rank 对端秩
	Rank types.Rank

	// State 当前交换状态
	State State

	// QueryPositions 出站查询：属主槽位数组内的全局位置（本秩为询问方）
	QueryPositions []int64

	// Placeholders 与 QueryPositions 平行的本地共享占位索引
	Placeholders []int32

	// ExpectedQueries 预期入站查询数（本秩为属主方）
	ExpectedQueries int32
}

// Advance 推进对端状态机
//
// 非法迁移返回错误；交换协议中任何非法迁移都是不变量违反，
// 调用方应中止整次构造。
func (p *Peer) Advance(to State) error {
	if !p.State.canTransition(to) {
		return fmt.Errorf("%w: peer %d %s -> %s",
			ErrBadTransition, p.Rank, p.State, to)
	}
	p.State = to
	return nil
}

// QueryCount 返回出站查询数
func (p *Peer) QueryCount() int {
	return len(p.QueryPositions)
}

// ============================================================================
//                              Registry - 对端注册表
// ============================================================================

// Registry 按秩索引的对端注册表
//
// 显式 map 查找，没有"零即缺席"的重载约定；
// 不存在的对端在首次注册时创建。
type Registry struct {
	self  types.Rank
	peers map[types.Rank]*Peer
}

// NewRegistry 创建空注册表
func NewRegistry(self types.Rank) *Registry {
	return &Registry{
		self:  self,
		peers: make(map[types.Rank]*Peer),
	}
}

// Self 返回本秩
func (r *Registry) Self() types.Rank {
	return r.self
}

// Lookup 查找对端记录，不创建
func (r *Registry) Lookup(rank types.Rank) (*Peer, bool) {
	p, ok := r.peers[rank]
	return p, ok
}

// peer 获取或创建对端记录
func (r *Registry) peer(rank types.Rank) *Peer {
	p, ok := r.peers[rank]
	if !ok {
		p = &Peer{Rank: rank, State: StateIdle}
		r.peers[rank] = p
	}
	return p
}

// AddQuery 排队一条发往属主 owner 的出站查询
//
// gpos 是属主槽位数组内的全局位置，placeholder 是应答到达后
// 要回填的本地共享占位索引。
// 前置条件：owner < 本秩（属主永远是最小参与秩）。
func (r *Registry) AddQuery(owner types.Rank, gpos int64, placeholder int32) error {
	if owner >= r.self || !owner.IsValid() {
		return fmt.Errorf("%w: query to rank %d from rank %d",
			ErrBadPeerRank, owner, r.self)
	}
	p := r.peer(owner)
	p.QueryPositions = append(p.QueryPositions, gpos)
	p.Placeholders = append(p.Placeholders, placeholder)
	return nil
}

// AddReply 登记一条来自 from 的预期入站查询
//
// 前置条件：from > 本秩（只有高秩会向本秩查询）。
func (r *Registry) AddReply(from types.Rank) error {
	if from <= r.self {
		return fmt.Errorf("%w: expected query from rank %d at rank %d",
			ErrBadPeerRank, from, r.self)
	}
	p := r.peer(from)
	p.ExpectedQueries++
	return nil
}

// Count 返回注册表中的对端数
func (r *Registry) Count() int {
	return len(r.peers)
}

// Ranks 返回全部对端秩，升序
func (r *Registry) Ranks() []types.Rank {
	ranks := make([]types.Rank, 0, len(r.peers))
	for rank := range r.peers {
		ranks = append(ranks, rank)
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i] < ranks[j] })
	return ranks
}

// TotalQueries 返回全部对端的出站查询总数
//
// 等于本秩的共享占位总数：每个占位恰好经一条查询解析。
func (r *Registry) TotalQueries() int {
	n := 0
	for _, p := range r.peers {
		n += p.QueryCount()
	}
	return n
}
