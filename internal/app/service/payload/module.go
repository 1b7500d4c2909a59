package payload

import (
	"go.uber.org/fx"

	"github.com/fatflowers/funnelhook/pkg/config"
)

func newNormalizer(cfg *config.Config) *Normalizer {
	return NewNormalizer(cfg.DefaultCurrency)
}

// Module exposes the payload normalizer via Fx.
var Module = fx.Options(
	fx.Provide(newNormalizer),
)
