package meshdof

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/meshdof/go-meshdof/internal/core/collective"
	"github.com/meshdof/go-meshdof/internal/core/exchange"
	"github.com/meshdof/go-meshdof/internal/core/metrics"
	"github.com/meshdof/go-meshdof/internal/transport/tcp"
	"github.com/meshdof/go-meshdof/pkg/interfaces"
)

// buildFxApp 构建 Fx 应用
//
// 装配顺序（按依赖）：
//  1. 配置注入
//  2. 通信器：注入实例（进程内世界）或按 Transport 配置建立 TCP 世界
//  3. 指标：计数器始终加载，prometheus 采集器按配置加载
//  4. 交换与集合服务
//  5. 用户扩展与 Node 组件回填
func buildFxApp(o *options, node *Node) (*fx.App, error) {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 配置验证（前置）
	// ════════════════════════════════════════════════════════════════════════
	if err := o.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if o.comm == nil && len(o.cfg.Transport.Peers) == 0 {
		return nil, ErrNoWorld
	}

	modules := []fx.Option{
		// 配置注入
		fx.Supply(o.cfg),
	}

	// ════════════════════════════════════════════════════════════════════════
	// 2. 通信器（二选一）
	// ════════════════════════════════════════════════════════════════════════
	if o.comm != nil {
		modules = append(modules, fx.Provide(provideCommunicator(o.comm)))
	} else {
		modules = append(modules, tcp.Module())
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 指标（采集器条件加载）
	// ════════════════════════════════════════════════════════════════════════
	if o.cfg.Metrics.Enabled {
		modules = append(modules, metrics.Module)
	} else {
		modules = append(modules, fx.Provide(metrics.NewCounters))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 4. 交换与集合服务
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		exchange.Module(),
		collective.Module,
	)

	// ════════════════════════════════════════════════════════════════════════
	// 5. 用户扩展（Fx Options）
	// ════════════════════════════════════════════════════════════════════════
	if len(o.fxOptions) > 0 {
		modules = append(modules, o.fxOptions...)
	}

	// ════════════════════════════════════════════════════════════════════════
	// 6. Node 组件注入
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules, fx.Invoke(injectNodeComponents(node)))

	// ════════════════════════════════════════════════════════════════════════
	// 7. Fx 配置
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		// 禁用 Fx 日志输出（避免干扰用户日志）
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: zap.NewNop()}
		}),
		fx.NopLogger,
	)

	return fx.New(modules...), nil
}

// ════════════════════════════════════════════════════════════════════════════
// 组件注入辅助函数
// ════════════════════════════════════════════════════════════════════════════

// provideCommunicator 把外部通信器纳入生命周期管理
func provideCommunicator(comm interfaces.Communicator) func(fx.Lifecycle) interfaces.Communicator {
	return func(lc fx.Lifecycle) interfaces.Communicator {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return comm.Close()
			},
		})
		return comm
	}
}

// nodeComponents Node 组件注入参数
type nodeComponents struct {
	fx.In

	// Comm 通信器
	Comm interfaces.Communicator

	// Exchange 查询/应答交换服务
	Exchange *exchange.Service

	// Collective 偏移聚合服务
	Collective *collective.Service

	// Counters 交换流量计数器
	Counters *metrics.Counters

	// Collector prometheus 采集器（指标关闭时缺席）
	Collector *metrics.Collector `optional:"true"`
}

// injectNodeComponents 把容器内组件回填到 Node
func injectNodeComponents(node *Node) func(nodeComponents) {
	return func(c nodeComponents) {
		node.comm = c.Comm
		node.exchange = c.Exchange
		node.collective = c.Collective
		node.counters = c.Counters
		node.collector = c.Collector
	}
}
