// Package metrics exposes Prometheus counters for the watcher.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat_watcher"

// Message outcomes.
const (
	OutcomeEmpty      = "empty"
	OutcomeCommand    = "command"
	OutcomeSession    = "session"
	OutcomeNotWatched = "not_watched"
	OutcomeIgnored    = "ignored"
	OutcomeNoMatch    = "no_match"
	OutcomeMatched    = "matched"
)

// Session events.
const (
	SessionStarted   = "started"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
	SessionExpired   = "expired"
)

// Metrics holds the watcher's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	messages *prometheus.CounterVec
	matches  *prometheus.CounterVec
	appends  *prometheus.CounterVec
	sessions *prometheus.CounterVec
	rules    prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages received, by routing outcome.",
		}, []string{"outcome"}),
		matches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_matches_total",
			Help:      "Messages matched, by rule label.",
		}, []string{"rule"}),
		appends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_appends_total",
			Help:      "Record deliveries, by sink and status.",
		}, []string{"sink", "status"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authoring_sessions_total",
			Help:      "Rule authoring session transitions.",
		}, []string{"event"}),
		rules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rules",
			Help:      "Number of loaded watch rules.",
		}),
	}

	for _, c := range []prometheus.Collector{m.messages, m.matches, m.appends, m.sessions, m.rules} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metric: %w", err)
		}
	}
	return m, nil
}

// Message counts one routed message.
func (m *Metrics) Message(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

// Match counts one rule hit.
func (m *Metrics) Match(rule string) {
	if m == nil {
		return
	}
	m.matches.WithLabelValues(rule).Inc()
}

// SinkResult counts one delivery attempt to sink.
func (m *Metrics) SinkResult(sink string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.appends.WithLabelValues(sink, status).Inc()
}

// Session counts one authoring session event.
func (m *Metrics) Session(event string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(event).Inc()
}

// SetRules records the current rule count.
func (m *Metrics) SetRules(n int) {
	if m == nil {
		return
	}
	m.rules.Set(float64(n))
}

// Serve exposes g on addr at /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
