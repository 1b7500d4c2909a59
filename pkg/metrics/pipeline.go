package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const pipelineSubsystem = "funnelhook"

var metricWebhookEvents = &Metric{
	ID:          "webhookEvents",
	Name:        "webhook_events_total",
	Description: "Webhook deliveries partitioned by provider, event kind and outcome.",
	Type:        "counter_vec",
	Args:        []string{"provider", "kind", "outcome"},
}

var metricSideEffects = &Metric{
	ID:          "sideEffects",
	Name:        "side_effects_total",
	Description: "Post-commit side effects partitioned by effect and outcome.",
	Type:        "counter_vec",
	Args:        []string{"effect", "outcome"},
}

var MetricsBusinessProcess = &Metric{
	ID:          "bpDur",
	Name:        "bp_dur",
	Description: "process latency in milliseconds",
	Type:        "histogram_vec",
	Args:        []string{"type", "subtype"},
}

var (
	webhookEvents = NewMetric(metricWebhookEvents, pipelineSubsystem).(*prometheus.CounterVec)
	sideEffects   = NewMetric(metricSideEffects, pipelineSubsystem).(*prometheus.CounterVec)
	bpDur         = NewMetric(MetricsBusinessProcess, pipelineSubsystem).(*prometheus.HistogramVec)
)

func init() {
	prometheus.MustRegister(webhookEvents, sideEffects, bpDur)
}

// ObserveWebhook counts one delivery outcome, e.g. "processed", "duplicate", "invalid", "error".
func ObserveWebhook(provider, kind, outcome string) {
	webhookEvents.WithLabelValues(provider, kind, outcome).Inc()
}

// ObserveSideEffect counts one effect outcome: "ok", "skipped" or "failed".
func ObserveSideEffect(effect, outcome string) {
	sideEffects.WithLabelValues(effect, outcome).Inc()
}

// ObserveStage records the latency of a pipeline stage since start.
func ObserveStage(stage, subtype string, start time.Time) {
	bpDur.WithLabelValues(stage, subtype).Observe(MillisecondsSince(start))
}
