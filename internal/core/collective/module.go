package collective

import (
	"go.uber.org/fx"
)

// Module 是 collective 的 Fx 模块
var Module = fx.Module("collective",
	fx.Provide(
		NewService,
	),
)
