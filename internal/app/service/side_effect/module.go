package side_effect

import "go.uber.org/fx"

// Module exposes the post-commit effect queue via Fx.
var Module = fx.Options(
	fx.Provide(NewDispatcher),
	fx.Provide(NewFactory),
)
