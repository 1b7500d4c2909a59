package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/funnelhook/internal/app/api/server"
	"github.com/fatflowers/funnelhook/internal/app/service/account"
	"github.com/fatflowers/funnelhook/internal/app/service/bounce"
	"github.com/fatflowers/funnelhook/internal/app/service/catalog"
	"github.com/fatflowers/funnelhook/internal/app/service/deliverability"
	"github.com/fatflowers/funnelhook/internal/app/service/enrollment"
	"github.com/fatflowers/funnelhook/internal/app/service/payload"
	"github.com/fatflowers/funnelhook/internal/app/service/side_effect"
	"github.com/fatflowers/funnelhook/internal/app/service/statistics"
	"github.com/fatflowers/funnelhook/internal/app/service/webhook_handler"
	"github.com/fatflowers/funnelhook/internal/app/service/webhook_log"
	"github.com/fatflowers/funnelhook/internal/platform/cache"
	"github.com/fatflowers/funnelhook/internal/platform/conversion"
	"github.com/fatflowers/funnelhook/internal/platform/db"
	"github.com/fatflowers/funnelhook/internal/platform/mailer"
	"github.com/fatflowers/funnelhook/internal/platform/stream"
	"github.com/fatflowers/funnelhook/internal/platform/verifier"
	"github.com/fatflowers/funnelhook/pkg/config"
	"github.com/fatflowers/funnelhook/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// Core is everything except the HTTP server; the admin CLI runs on it.
var Core = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	cache.Module,
	stream.Module,
	verifier.Module,
	conversion.Module,
	mailer.Module,
	payload.Module,
	catalog.Module,
	account.Module,
	enrollment.Module,
	deliverability.Module,
	side_effect.Module,
	webhook_log.Module,
	webhook_handler.Module,
	bounce.Module,
	statistics.Module,
)

var Module = fx.Options(
	Core,
	server.Module,
)
