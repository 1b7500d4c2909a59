package side_effect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fatflowers/funnelhook/pkg/config"
	"github.com/fatflowers/funnelhook/pkg/logctx"
	"github.com/fatflowers/funnelhook/pkg/metrics"
)

// ErrSkipped is returned by effects whose fence says they already ran.
var ErrSkipped = errors.New("side effect skipped")

const (
	EffectWelcomeEmail = "welcome_email"
	EffectAdConversion = "ad_conversion"
	EffectTags         = "tags"
	EffectEventStream  = "event_stream"
)

// Effect is one post-commit action. Failures are recorded, never propagated.
type Effect interface {
	Name() string
	Run(ctx context.Context) error
}

type Outcome struct {
	Effect     string `json:"effect"`
	OK         bool   `json:"ok"`
	Skipped    bool   `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

type Outcomes []Outcome

// Flags maps effect name to success; skipped effects count as successful.
func (o Outcomes) Flags() map[string]bool {
	out := make(map[string]bool, len(o))
	for _, it := range o {
		out[it.Effect] = it.OK
	}
	return out
}

type Dispatcher struct {
	log      *zap.SugaredLogger
	timeouts map[string]time.Duration
	fallback time.Duration
}

func NewDispatcher(cfg *config.Config, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		log: log,
		timeouts: map[string]time.Duration{
			EffectWelcomeEmail: cfg.Timeouts.Email,
			EffectAdConversion: cfg.Timeouts.Conversion,
			EffectEventStream:  cfg.Timeouts.Publish,
		},
		fallback: 5 * time.Second,
	}
}

// Run executes effects concurrently, each with its own timeout, and returns
// their outcomes in input order.
func (d *Dispatcher) Run(ctx context.Context, effects []Effect) Outcomes {
	out := make(Outcomes, len(effects))
	var wg sync.WaitGroup
	for i, e := range effects {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = d.runOne(ctx, e)
		}()
	}
	wg.Wait()
	return out
}

func (d *Dispatcher) runOne(ctx context.Context, e Effect) (o Outcome) {
	log := logctx.FromCtx(ctx, d.log)
	start := time.Now()
	o.Effect = e.Name()

	timeout := d.timeouts[e.Name()]
	if timeout <= 0 {
		timeout = d.fallback
	}
	// effects outlive a cancelled request context; only the timeout bounds them
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			o.OK, o.Skipped, o.Error = false, false, fmt.Sprintf("panic: %v", r)
			log.Errorf("side effect panicked: effect=%s panic=%v", o.Effect, r)
		}
		o.DurationMs = time.Since(start).Milliseconds()
		metrics.ObserveSideEffect(o.Effect, outcomeLabel(o))
		metrics.ObserveStage("side_effect", o.Effect, start)
	}()

	err := e.Run(ectx)
	switch {
	case err == nil:
		o.OK = true
		log.Infow("side_effect_done", "effect", o.Effect)
	case errors.Is(err, ErrSkipped):
		o.OK, o.Skipped = true, true
		log.Debugw("side_effect_skipped", "effect", o.Effect, "reason", err.Error())
	default:
		o.Error = err.Error()
		log.Warnw("side_effect_failed", "effect", o.Effect, "err", err)
	}
	return o
}

func outcomeLabel(o Outcome) string {
	switch {
	case o.Skipped:
		return "skipped"
	case o.OK:
		return "ok"
	default:
		return "failed"
	}
}
