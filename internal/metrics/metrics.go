// Package metrics exposes scanner counters on a private Prometheus registry.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Fetch failure kinds.
const (
	KindQuote = "quote"
	KindChart = "chart"
)

// Push results.
const (
	PushSent       = "sent"
	PushFailed     = "failed"
	PushSuppressed = "suppressed"
)

// Metrics holds the scanner collectors.
type Metrics struct {
	registry *prometheus.Registry

	Cycles          prometheus.Counter
	CycleDuration   prometheus.Histogram
	FetchFailures   *prometheus.CounterVec // labels: kind
	RuleFires       *prometheus.CounterVec // labels: rule
	Pushes          *prometheus.CounterVec // labels: result
	UniverseSymbols prometheus.Gauge
}

// New builds and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "twscan_cycles_total",
			Help: "Completed scan cycles",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "twscan_cycle_duration_seconds",
			Help:    "Wall time spent processing one batch",
			Buckets: []float64{1, 5, 10, 30, 60, 90, 120, 300},
		}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twscan_fetch_failures_total",
			Help: "Failed quote chunks and chart refreshes",
		}, []string{"kind"}),
		RuleFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twscan_rule_fires_total",
			Help: "Rule evaluations that fired, before deduplication",
		}, []string{"rule"}),
		Pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twscan_pushes_total",
			Help: "Notification outcomes",
		}, []string{"result"}),
		UniverseSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "twscan_universe_symbols",
			Help: "Resolved symbols in the scan rotation",
		}),
	}

	m.registry.MustRegister(
		m.Cycles,
		m.CycleDuration,
		m.FetchFailures,
		m.RuleFires,
		m.Pushes,
		m.UniverseSymbols,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Server exposes /metrics and /healthz on its own listener.
type Server struct {
	srv    *http.Server
	logger zerolog.Logger
}

// NewServer creates a metrics server bound to addr.
func NewServer(addr string, m *Metrics, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics_server").Logger(),
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("metrics server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("metrics server error")
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
