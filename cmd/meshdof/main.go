// Package main 提供 meshdof 命令行入口
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	meshdof "github.com/meshdof/go-meshdof"
	"github.com/meshdof/go-meshdof/config"
	"github.com/meshdof/go-meshdof/internal/mesh"
	"github.com/meshdof/go-meshdof/internal/transport/inproc"
	"github.com/meshdof/go-meshdof/internal/util/logger"
	"github.com/meshdof/go-meshdof/pkg/types"
)

var log = logger.Logger("meshdof/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
// 两种运行模式：
//
//	--local N     在本进程内跑一个 N 秩世界（演示与验证）
//	--rank/--peers 作为 TCP 世界的一个秩参与（每秩一个进程）
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	// ─────────────────────────────────────────────────────────────────────
	// 世界参数
	// ─────────────────────────────────────────────────────────────────────
	localSize  = flag.Int("local", 0, "进程内世界的秩数（0 = TCP 模式）")
	rank       = flag.Int("rank", 0, "本进程的秩（TCP 模式）")
	peerList   = flag.String("peers", "", "世界全部监听地址，逗号分隔，下标即秩（TCP 模式）")
	worldID    = flag.String("world-id", "", "世界标识，各秩必须一致（TCP 模式）")
	configFile = flag.String("config", "", "JSON 配置文件路径")

	// ─────────────────────────────────────────────────────────────────────
	// 网格参数
	// ─────────────────────────────────────────────────────────────────────
	trees   = flag.Int("trees", 1, "砖块连通的根单元数")
	level   = flag.Int("level", 2, "细化层级")
	hanging = flag.Bool("hanging", false, "构造含悬挂面的示例网格")

	// ─────────────────────────────────────────────────────────────────────
	// 节点层级
	// ─────────────────────────────────────────────────────────────────────
	faceNodes   = flag.Bool("faces", true, "编号面中点节点")
	cornerNodes = flag.Bool("corners", false, "编号角点节点")
	stall       = flag.Duration("stall", 30*time.Second, "交换停滞告警阈值（0 = 关闭）")

	// ─────────────────────────────────────────────────────────────────────
	// 信息显示
	// ─────────────────────────────────────────────────────────────────────
	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(meshdof.VersionInfo())
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *localSize > 0 {
		return runLocal(ctx, *localSize)
	}
	return runTCP(ctx)
}

// ═══════════════════════════════════════════════════════════════════════════
// 进程内模式
// ═══════════════════════════════════════════════════════════════════════════

// runLocal 在单进程内跑完整世界，每秩一个 goroutine
func runLocal(ctx context.Context, size int) error {
	fmt.Printf("📦 %s\n", meshdof.VersionInfo())
	fmt.Printf("进程内世界: %d 秩\n\n", size)

	world, err := inproc.NewWorld(size)
	if err != nil {
		return err
	}
	defer func() { _ = world.Close() }()

	results := make([]*meshdof.Numbering, size)
	stats := make([]meshdof.Stats, size)

	g, gctx := errgroup.WithContext(ctx)
	for r := 0; r < size; r++ {
		rk := types.Rank(r)
		g.Go(func() error {
			opts, err := buildOptions(meshdof.WithCommunicator(world.Comm(rk)))
			if err != nil {
				return err
			}
			node, err := meshdof.New(opts...)
			if err != nil {
				return err
			}
			defer func() { _ = node.Close() }()

			num, err := numberOnce(gctx, node, rk, size)
			if err != nil {
				return err
			}
			results[rk] = num
			stats[rk] = node.Stats()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for r, num := range results {
		printSummary(types.Rank(r), num, stats[r])
	}
	fmt.Printf("\n全网节点总数: %d\n", results[0].Total())
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// TCP 模式
// ═══════════════════════════════════════════════════════════════════════════

// runTCP 作为 TCP 世界的单个秩参与一次编号
func runTCP(ctx context.Context) error {
	peers := splitPeers(*peerList)
	if len(peers) < 2 {
		return fmt.Errorf("TCP 模式需要 --peers 给出至少 2 个地址（或用 --local N）")
	}
	if *rank < 0 || *rank >= len(peers) {
		return fmt.Errorf("秩 %d 越界（世界大小 %d）", *rank, len(peers))
	}

	fmt.Printf("📦 %s\n", meshdof.VersionInfo())
	fmt.Printf("TCP 世界: 秩 %d/%d, 监听 %s\n\n", *rank, len(peers), peers[*rank])
	log.Info("启动编号进程",
		"rank", *rank,
		"size", len(peers),
		"version", meshdof.Version)

	opts, err := buildOptions(meshdof.WithTCPWorld(int32(*rank), peers...))
	if err != nil {
		return err
	}
	if *worldID != "" {
		opts = append(opts, meshdof.WithWorldID(*worldID))
	}

	node, err := meshdof.New(opts...)
	if err != nil {
		return fmt.Errorf("建立世界失败: %w", err)
	}
	defer func() { _ = node.Close() }()

	num, err := numberOnce(ctx, node, types.Rank(*rank), len(peers))
	if err != nil {
		return err
	}
	printSummary(types.Rank(*rank), num, node.Stats())
	fmt.Printf("\n全网节点总数: %d\n", num.Total())
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 公共部分
// ═══════════════════════════════════════════════════════════════════════════

// buildOptions 合成选项：配置文件在先，命令行覆盖在后
func buildOptions(extra ...meshdof.Option) ([]meshdof.Option, error) {
	var opts []meshdof.Option

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件: %w", err)
		}
		cfg, err := config.FromJSON(data)
		if err != nil {
			return nil, fmt.Errorf("解析配置文件: %w", err)
		}
		opts = append(opts, meshdof.WithConfig(cfg))
	}

	opts = append(opts,
		meshdof.WithFaceNodes(*faceNodes),
		meshdof.WithCornerNodes(*cornerNodes),
		meshdof.WithStallWarning(*stall),
	)
	return append(opts, extra...), nil
}

// buildForest 按命令行参数构造本秩的网格分区
func buildForest(rank types.Rank, size int) (*mesh.Forest, error) {
	if *hanging {
		return mesh.New(rank, size, mesh.Spec{
			MaxLevel: int32(*level),
			Trees:    int32(*trees),
			Refine: func(q mesh.Quad) bool {
				return q.Level == 0 || (q.X == 0 && q.Y == 0)
			},
		})
	}
	if *trees > 1 {
		lv := int32(*level)
		return mesh.New(rank, size, mesh.Spec{
			MaxLevel: lv,
			Trees:    int32(*trees),
			Refine:   func(q mesh.Quad) bool { return q.Level < lv },
		})
	}
	return mesh.NewUniform(rank, size, int32(*level))
}

// numberOnce 构造网格并执行一轮全局编号
func numberOnce(ctx context.Context, node *meshdof.Node, rank types.Rank, size int) (*meshdof.Numbering, error) {
	forest, err := buildForest(rank, size)
	if err != nil {
		return nil, fmt.Errorf("构造网格: %w", err)
	}
	num, err := node.Number(ctx, forest, forest.Ghosts())
	if err != nil {
		return nil, fmt.Errorf("编号失败: %w", err)
	}
	return num, nil
}

// printSummary 打印单秩结果摘要
func printSummary(rank types.Rank, num *meshdof.Numbering, st meshdof.Stats) {
	lo, hi := num.OwnedRange()
	fmt.Printf("秩 %d: 单元 %d | 拥有 %d [%d, %d) | 占位 %d | 消息 %d 入 / %d 出\n",
		rank, num.ElementCount, num.OwnedCount, lo, hi, num.SharedCount,
		st.MsgsIn, st.MsgsOut)
	fmt.Printf("       指纹 %s\n", num.Fingerprint())
}

// splitPeers 解析逗号分隔的地址表
func splitPeers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
