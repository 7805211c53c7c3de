// Package metrics exposes WaveLink runtime metrics as a Prometheus
// collector. All values are gathered from their providers at scrape time;
// nothing is pushed.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wavelink/wavelink/internal/call"
)

// CallStateProvider exposes the current call-session snapshot.
type CallStateProvider interface {
	State() call.Snapshot
}

// SignalingStatusProvider reports whether the signaling channel is up.
type SignalingStatusProvider interface {
	Connected() bool
}

// OutcomeCounter returns recorded call counts grouped by outcome.
type OutcomeCounter interface {
	CountByOutcome(ctx context.Context) (map[call.Outcome]int64, error)
}

// Collector is a prometheus.Collector gathering WaveLink metrics at scrape
// time. Any provider may be nil if unavailable.
type Collector struct {
	calls     CallStateProvider
	signaling SignalingStatusProvider
	history   OutcomeCounter
	startTime time.Time

	// Metric descriptors.
	callActiveDesc         *prometheus.Desc
	callDurationDesc       *prometheus.Desc
	callsTotalDesc         *prometheus.Desc
	signalingConnectedDesc *prometheus.Desc
	uptimeDesc             *prometheus.Desc
}

// NewCollector creates a new metrics collector.
func NewCollector(
	calls CallStateProvider,
	signaling SignalingStatusProvider,
	history OutcomeCounter,
	startTime time.Time,
) *Collector {
	return &Collector{
		calls:     calls,
		signaling: signaling,
		history:   history,
		startTime: startTime,

		callActiveDesc: prometheus.NewDesc(
			"wavelink_call_active",
			"Whether a call session is currently active (1) or not (0)",
			[]string{"kind", "role"}, nil,
		),
		callDurationDesc: prometheus.NewDesc(
			"wavelink_call_duration_seconds",
			"Elapsed duration of the active call, 0 when idle",
			nil, nil,
		),
		callsTotalDesc: prometheus.NewDesc(
			"wavelink_calls_total",
			"Total number of recorded calls by outcome",
			[]string{"outcome"}, nil,
		),
		signalingConnectedDesc: prometheus.NewDesc(
			"wavelink_signaling_connected",
			"Whether the signaling channel is connected (1) or not (0)",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"wavelink_uptime_seconds",
			"Seconds since the WaveLink process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.callActiveDesc
	ch <- c.callDurationDesc
	ch <- c.callsTotalDesc
	ch <- c.signalingConnectedDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at
// scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Active-call gauge with kind/role labels, plus the duration gauge.
	if c.calls != nil {
		snap := c.calls.State()
		active := 0.0
		kind, role := "none", "none"
		if snap.State == call.StateActive {
			active = 1.0
			kind = string(snap.Kind)
			role = string(snap.Role)
		}
		ch <- prometheus.MustNewConstMetric(
			c.callActiveDesc, prometheus.GaugeValue, active, kind, role,
		)
		ch <- prometheus.MustNewConstMetric(
			c.callDurationDesc, prometheus.GaugeValue, snap.Duration.Seconds(),
		)
	}

	// Signaling connectivity gauge.
	if c.signaling != nil {
		val := 0.0
		if c.signaling.Connected() {
			val = 1.0
		}
		ch <- prometheus.MustNewConstMetric(
			c.signalingConnectedDesc, prometheus.GaugeValue, val,
		)
	}

	// Call volume counters by outcome.
	if c.history != nil {
		counts, err := c.history.CountByOutcome(ctx)
		if err != nil {
			slog.Error("metrics: failed to count calls by outcome", "error", err)
		} else {
			for _, outcome := range []call.Outcome{call.OutcomeCompleted, call.OutcomeMissed, call.OutcomeRejected} {
				ch <- prometheus.MustNewConstMetric(
					c.callsTotalDesc, prometheus.CounterValue,
					float64(counts[outcome]), string(outcome),
				)
			}
		}
	}

	// Uptime.
	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
