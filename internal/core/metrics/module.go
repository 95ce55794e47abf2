package metrics

import (
	"go.uber.org/fx"
)

// Module 是 metrics 的 Fx 模块
//
// 提供全局 Counters 与其 prometheus 采集器。采集器不自动注册，
// 调用方决定是否接入自己的 Registry。
var Module = fx.Module("metrics",
	fx.Provide(
		NewCounters,
		NewCollector,
	),
)
