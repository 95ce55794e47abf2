package exchange

import (
	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/meshdof/go-meshdof/config"
	"github.com/meshdof/go-meshdof/internal/core/metrics"
	"github.com/meshdof/go-meshdof/pkg/interfaces"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	// Comm 通信器
	Comm interfaces.Communicator

	// Counters 交换计数器
	Counters *metrics.Counters

	// Config 统一配置（可选）
	Config *config.Config `optional:"true"`

	// Clock 时钟（可选，测试注入 mock）
	Clock clock.Clock `optional:"true"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// Service 交换服务
	Service *Service
}

// ============================================================================
//                              服务提供
// ============================================================================

// ProvideServices 提供模块服务
func ProvideServices(input ModuleInput) (ModuleOutput, error) {
	cfg := config.NewConfig()
	if input.Config != nil {
		cfg = input.Config
	}
	clk := input.Clock
	if clk == nil {
		clk = clock.New()
	}

	service := NewService(input.Comm, clk, input.Counters, cfg.Exchange.StallWarning.Duration())

	return ModuleOutput{
		Service: service,
	}, nil
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("exchange",
		fx.Provide(ProvideServices),
	)
}

// ============================================================================
//                              模块元信息
// ============================================================================

// 模块元信息常量
const (
	Version     = "1.0.0"
	Name        = "exchange"
	Description = "查询/应答交换模块，把共享占位翻译为属主局部索引"
)
