package webhook_handler

import "go.uber.org/fx"

// Module exposes the webhook pipeline via Fx.
var Module = fx.Options(
	fx.Provide(New),
)
