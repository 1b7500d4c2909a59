package enrollment

import "go.uber.org/fx"

// Module exposes the enrollment orchestrator via Fx.
var Module = fx.Options(
	fx.Provide(NewOrchestrator),
)
