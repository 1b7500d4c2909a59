package catalog

import "go.uber.org/fx"

// Module exposes the product-to-course mapper via Fx.
var Module = fx.Options(
	fx.Provide(NewMapper),
)
