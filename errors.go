package meshdof

import (
	"errors"

	"github.com/meshdof/go-meshdof/internal/core/numbering"
	"github.com/meshdof/go-meshdof/pkg/types"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 前置条件与生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNilMesh 未提供网格
	ErrNilMesh = errors.New("nil mesh")

	// ErrUnbalanced 分区不满足 2:1 面平衡
	ErrUnbalanced = errors.New("mesh partition not 2:1 balanced")

	// ErrNoWorld 既未注入通信器也未配置 TCP 成员表
	ErrNoWorld = errors.New("no communicator world configured")

	// ErrClosed 节点已关闭
	ErrClosed = errors.New("node closed")

	// ────────────────────────────────────────────────────────────────────────
	// 编号不变量错误（内部哨兵的再导出，errors.Is 可直接判别）
	// ────────────────────────────────────────────────────────────────────────

	// ErrSlotConflict 槽位被重复赋值
	ErrSlotConflict = numbering.ErrSlotConflict

	// ErrTraversalOrder 遍历事件违反相位或升序契约
	ErrTraversalOrder = numbering.ErrTraversalOrder

	// ErrCountMismatch 计数器之间不一致
	ErrCountMismatch = numbering.ErrCountMismatch

	// ErrInvalidPosition 槽位位置越界或在当前布局下不存在
	ErrInvalidPosition = types.ErrInvalidPosition

	// ────────────────────────────────────────────────────────────────────────
	// 阶段失败错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrExchangeFailed 查询/应答交换中止
	ErrExchangeFailed = errors.New("numbering exchange failed")

	// ErrCollectiveFailed 偏移聚合中止
	ErrCollectiveFailed = errors.New("offset collective failed")

	// ErrSlotUnset 槽位未被任何遍历事件赋值
	ErrSlotUnset = errors.New("slot not assigned")
)
