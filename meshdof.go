package meshdof

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"

	"github.com/meshdof/go-meshdof/config"
	"github.com/meshdof/go-meshdof/internal/core/collective"
	"github.com/meshdof/go-meshdof/internal/core/exchange"
	"github.com/meshdof/go-meshdof/internal/core/metrics"
	"github.com/meshdof/go-meshdof/internal/core/numbering"
	"github.com/meshdof/go-meshdof/internal/util/logger"
	"github.com/meshdof/go-meshdof/pkg/interfaces"
	"github.com/meshdof/go-meshdof/pkg/types"
)

// 包级别日志实例
var log = logger.Logger("meshdof")

// ════════════════════════════════════════════════════════════════════════════
//                              版本信息
// ════════════════════════════════════════════════════════════════════════════

// Version 当前版本
const Version = "v0.1.0"

// BuildInfo 构建信息（通过 ldflags 注入）
var (
	// GitCommit Git 提交哈希
	GitCommit string

	// BuildDate 构建日期
	BuildDate string
)

// VersionInfo 返回完整版本信息字符串
func VersionInfo() string {
	info := "MeshDOF " + Version
	if GitCommit != "" {
		info += " (" + GitCommit[:min(8, len(GitCommit))] + ")"
	}
	if BuildDate != "" {
		info += " built " + BuildDate
	}
	return info
}

// 启动与停止超时
const (
	// startTimeout 组件启动超时（含 TCP 世界全互联建立）
	startTimeout = 30 * time.Second

	// stopTimeout 组件停止超时
	stopTimeout = 15 * time.Second
)

// ════════════════════════════════════════════════════════════════════════════
//                              Node 节点
// ════════════════════════════════════════════════════════════════════════════

// Node 绑定一个秩的编号节点
//
// Node 是库的主入口，聚合通信器、交换服务与偏移聚合。
// 一个 Node 对应通信世界中的一个成员；构造即启动，
// Close 释放全部组件。
type Node struct {
	// cfg 节点配置
	cfg *config.Config

	// app Fx 应用
	app *fx.App

	// 核心组件（由 Fx 注入）
	comm       interfaces.Communicator
	exchange   *exchange.Service
	collective *collective.Service
	counters   *metrics.Counters
	collector  *metrics.Collector

	mu     sync.Mutex
	closed bool
}

// New 创建并启动节点
//
// 按选项装配组件并阻塞到通信世界就绪：TCP 世界在此期间完成
// 全互联建立。任何装配或启动错误都返回 nil 节点。
func New(opts ...Option) (*Node, error) {
	o := newOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	n := &Node{cfg: o.cfg}
	app, err := buildFxApp(o, n)
	if err != nil {
		return nil, err
	}
	n.app = app

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, fmt.Errorf("start components: %w", err)
	}

	log.Debug("节点就绪", "rank", n.comm.Rank(), "size", n.comm.Size())
	return n, nil
}

// Close 关闭节点并释放全部组件
//
// 幂等。进行中的 Number 调用会随通信器关闭而中止。
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	return n.app.Stop(ctx)
}

// Rank 返回本节点的秩
func (n *Node) Rank() types.Rank {
	return n.comm.Rank()
}

// Size 返回通信世界大小
func (n *Node) Size() int {
	return n.comm.Size()
}

// ════════════════════════════════════════════════════════════════════════════
//                              构造调用
// ════════════════════════════════════════════════════════════════════════════

// Number 执行一次完整的编号构造
//
// 流程：校验 2:1 平衡前置条件，遍历网格完成本地编号，
// 并行执行查询/应答交换与偏移聚合，合并两者为最终结果。
// 全部瞬态对端状态在返回前释放，返回的 Numbering 归调用方所有。
//
// ghosts 在单秩世界或无跨秩邻接时可为 nil；一旦遍历触发
// 幽灵侧事件而 ghosts 为 nil，调用以不变量违反中止。
//
// 世界内全体成员必须各自恰好调用一次，任何成员的失败或缺席
// 都会使其余成员阻塞，直至其 ctx 取消或通信器关闭。
func (n *Node) Number(ctx context.Context, mesh interfaces.Mesh, ghosts interfaces.GhostLayer) (*Numbering, error) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, ErrClosed
	}
	n.mu.Unlock()

	if mesh == nil {
		return nil, ErrNilMesh
	}
	if !mesh.IsBalanced() {
		return nil, ErrUnbalanced
	}

	self := n.comm.Rank()
	layout := types.NewSlotLayout(n.cfg.Numbering.FaceNodes, n.cfg.Numbering.CornerNodes)

	engine, err := numbering.NewEngine(self, layout, mesh, ghosts)
	if err != nil {
		return nil, err
	}
	pass, err := engine.Run(ctx)
	if err != nil {
		return nil, err
	}

	// 交换与偏移聚合无数据依赖，并行推进；任一失败中止另一方
	var (
		resolved *exchange.Result
		offsets  types.OffsetTable
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := n.exchange.Exchange(gctx, exchange.Inputs{
			Registry:     pass.Registry,
			Layout:       pass.Layout,
			ElementCount: pass.ElementCount,
			Slots:        pass.Slots,
			OwnedCount:   pass.OwnedCount,
			SharedCount:  pass.SharedCount,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", ErrExchangeFailed, err)
		}
		resolved = r
		return nil
	})
	g.Go(func() error {
		t, err := n.collective.Offsets(gctx, int64(pass.OwnedCount))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCollectiveFailed, err)
		}
		offsets = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 注册表只存活到交换完成
	pass.Registry = nil

	num, err := newNumbering(self, pass, resolved, offsets)
	if err != nil {
		return nil, err
	}

	log.Debug("编号完成",
		"rank", self,
		"owned", num.OwnedCount,
		"shared", num.SharedCount,
		"total", num.Total(),
		"fingerprint", num.Fingerprint())
	return num, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              可观测性
// ════════════════════════════════════════════════════════════════════════════

// Stats 交换流量统计快照
type Stats struct {
	// BytesIn, BytesOut 收发字节数
	BytesIn, BytesOut int64

	// MsgsIn, MsgsOut 收发消息数
	MsgsIn, MsgsOut int64

	// Exchanges 完成的交换轮数
	Exchanges int64

	// Stalls 停滞告警次数
	Stalls int64
}

// Stats 返回节点至今的交换流量统计
func (n *Node) Stats() Stats {
	s := n.counters.GetStats()
	return Stats{
		BytesIn:   s.BytesIn,
		BytesOut:  s.BytesOut,
		MsgsIn:    s.MsgsIn,
		MsgsOut:   s.MsgsOut,
		Exchanges: s.Exchanges,
		Stalls:    s.Stalls,
	}
}

// MetricsCollector 返回 prometheus 采集器
//
// 采集器不自动注册，调用方决定接入哪个 Registry。
// 指标关闭（WithMetrics(false)）时返回 nil。
func (n *Node) MetricsCollector() prometheus.Collector {
	if n.collector == nil {
		return nil
	}
	return n.collector
}
