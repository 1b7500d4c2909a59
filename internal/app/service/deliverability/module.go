package deliverability

import "go.uber.org/fx"

// Module exposes the deliverability gate via Fx.
var Module = fx.Options(
	fx.Provide(
		NewCache,
		fx.Annotate(NewSuggester, fx.As(new(Suggester))),
		NewGate,
	),
)
