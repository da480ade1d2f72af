// Package metrics holds the prometheus collectors exported on /metrics.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "myanus"

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

type Recorder struct {
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	rateLimitHits  *prometheus.CounterVec
	chatTurns      *prometheus.CounterVec
	deductions     *prometheus.CounterVec
	redemptions    *prometheus.CounterVec
	sandboxRuns    *prometheus.CounterVec
}

// New registers the collectors with reg. Collectors already registered by an
// earlier Recorder are reused.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),
		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "rate_limit_hits_total",
			Help:      "Number of rate-limited responses",
		}, []string{"route"}),
		chatTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat turns by outcome",
		}, []string{"result"}),
		deductions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "credit_deductions_total",
			Help:      "Credit deduction attempts by outcome",
		}, []string{"result"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invites",
			Name:      "redemptions_total",
			Help:      "Invite redemption attempts by outcome",
		}, []string{"result"}),
		sandboxRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "runs_total",
			Help:      "Finished sandbox runs by status",
		}, []string{"status"}),
	}
	r.requestTotal = registerCounter(reg, r.requestTotal)
	r.rateLimitHits = registerCounter(reg, r.rateLimitHits)
	r.chatTurns = registerCounter(reg, r.chatTurns)
	r.deductions = registerCounter(reg, r.deductions)
	r.redemptions = registerCounter(reg, r.redemptions)
	r.sandboxRuns = registerCounter(reg, r.sandboxRuns)
	if err := reg.Register(r.requestLatency); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if v, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				r.requestLatency = v
			}
		}
	}
	return r
}

func registerCounter(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if v, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return v
			}
		}
	}
	return c
}

func (r *Recorder) ObserveRequest(method, route string, status int, d time.Duration) {
	if r == nil {
		return
	}
	labels := prometheus.Labels{"method": method, "route": route, "status": strconv.Itoa(status)}
	r.requestTotal.With(labels).Inc()
	r.requestLatency.With(labels).Observe(d.Seconds())
}

func (r *Recorder) RateLimitHit(route string) {
	if r == nil {
		return
	}
	r.rateLimitHits.WithLabelValues(route).Inc()
}

func (r *Recorder) ChatTurn(result string) {
	if r == nil {
		return
	}
	r.chatTurns.WithLabelValues(result).Inc()
}

func (r *Recorder) CreditDeduction(result string) {
	if r == nil {
		return
	}
	r.deductions.WithLabelValues(result).Inc()
}

func (r *Recorder) Redemption(result string) {
	if r == nil {
		return
	}
	r.redemptions.WithLabelValues(result).Inc()
}

func (r *Recorder) SandboxRun(status string) {
	if r == nil {
		return
	}
	r.sandboxRuns.WithLabelValues(status).Inc()
}
