package account

import "go.uber.org/fx"

// Module exposes the account resolver via Fx.
var Module = fx.Options(
	fx.Provide(NewResolver),
)
