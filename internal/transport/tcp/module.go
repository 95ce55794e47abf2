package tcp

import (
	"context"

	"go.uber.org/fx"

	"github.com/meshdof/go-meshdof/config"
	"github.com/meshdof/go-meshdof/pkg/interfaces"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// Config 统一配置
	Config *config.Config

	// Lifecycle fx 生命周期
	Lifecycle fx.Lifecycle
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// Comm 通信器
	Comm interfaces.Communicator
}

// ============================================================================
//                              服务提供
// ============================================================================

// ProvideServices 提供模块服务
//
// 连接的建立与拆除挂在 fx 生命周期上：OnStart 建成全网格，
// OnStop 关闭通信器。
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	transport, err := New(&input.Config.Transport)
	if err != nil {
		return ModuleOutput{}, err
	}

	input.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return transport.Start(ctx)
		},
		OnStop: func(context.Context) error {
			return transport.Close()
		},
	})

	return ModuleOutput{Comm: transport}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("tcp",
		fx.Provide(ProvideServices),
	)
}

// ============================================================================
//                              模块元信息
// ============================================================================

// 模块元信息常量
const (
	Version     = "1.0.0"
	Name        = "tcp"
	Description = "跨进程帧式 TCP 通信器，低秩监听高秩拨入的全网格世界"
)
