package meshdof

import (
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/meshdof/go-meshdof/config"
	"github.com/meshdof/go-meshdof/pkg/interfaces"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
type options struct {
	// cfg 统一配置，从默认值出发被各选项修改
	cfg *config.Config

	// comm 外部注入的通信器（进程内世界等）
	comm interfaces.Communicator

	// fxOptions 用户自定义 fx 选项
	fxOptions []fx.Option
}

// newOptions 创建默认选项
func newOptions() *options {
	return &options{
		cfg: config.NewConfig(),
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置选项
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 整体替换配置
//
// 与其他选项混用时按调用顺序生效：位于其后的选项
// 在替换后的配置上继续修改。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return fmt.Errorf("nil config")
		}
		o.cfg = cfg
		return nil
	}
}

// WithFaceNodes 设置是否在面中点放置节点
func WithFaceNodes(enable bool) Option {
	return func(o *options) error {
		o.cfg.Numbering.FaceNodes = enable
		return nil
	}
}

// WithCornerNodes 设置是否在单元角点放置节点
func WithCornerNodes(enable bool) Option {
	return func(o *options) error {
		o.cfg.Numbering.CornerNodes = enable
		return nil
	}
}

// WithStallWarning 设置交换停滞告警阈值
//
// 该时长内没有任何完成事件时记录一次告警日志；0 关闭监视。
func WithStallWarning(d time.Duration) Option {
	return func(o *options) error {
		if d < 0 {
			return fmt.Errorf("negative stall warning %v", d)
		}
		o.cfg.Exchange.StallWarning = config.Duration(d)
		return nil
	}
}

// WithMetrics 设置是否构造 prometheus 采集器
//
// 关闭时流量计数器照常工作，仅不提供采集器。
func WithMetrics(enable bool) Option {
	return func(o *options) error {
		o.cfg.Metrics.Enabled = enable
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              通信世界选项
// ════════════════════════════════════════════════════════════════════════════

// WithCommunicator 注入已构造的通信器
//
// 注入后节点不再按 Transport 配置建立 TCP 世界。
// 通信器的关闭由节点生命周期接管：Close 时一并关闭。
func WithCommunicator(comm interfaces.Communicator) Option {
	return func(o *options) error {
		if comm == nil {
			return fmt.Errorf("nil communicator")
		}
		o.comm = comm
		return nil
	}
}

// WithTCPWorld 配置 TCP 世界
//
// peers 是按秩排列的全体成员监听地址，peers[rank] 为本进程自己。
func WithTCPWorld(rank int32, peers ...string) Option {
	return func(o *options) error {
		if len(peers) == 0 {
			return fmt.Errorf("empty peer table")
		}
		o.cfg.Transport.Rank = rank
		o.cfg.Transport.Peers = append([]string(nil), peers...)
		return nil
	}
}

// WithWorldID 设置握手校验的世界标识
//
// 同一作业的全体成员必须一致；为空时不校验。
func WithWorldID(id string) Option {
	return func(o *options) error {
		o.cfg.Transport.WorldID = id
		return nil
	}
}

// WithCompression 设置帧载荷压缩阈值（字节）
//
// 超过该大小的载荷以 zstd 压缩传输；0 关闭压缩。
// 仅对 TCP 世界生效。
func WithCompression(threshold int) Option {
	return func(o *options) error {
		if threshold < 0 {
			return fmt.Errorf("negative compression threshold %d", threshold)
		}
		o.cfg.Transport.CompressionThreshold = threshold
		return nil
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              扩展选项
// ════════════════════════════════════════════════════════════════════════════

// WithFxOption 追加自定义 fx 选项
//
// 测试替换组件（mock 时钟等）或旁挂观察者时使用。
func WithFxOption(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}
