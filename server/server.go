// Package server wires the PSI-SUM protocol's ambient production layer: a
// chi HTTP reference transport, a Postgres session ledger, an in-memory
// live-session cache, a cron expiry sweep, and Prometheus metrics. None of
// this package holds protocol secrets beyond the TTL of a live session; the
// psi package's types remain the only place key material exists.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/psiproto/ddh-psi-sum/config"
	"github.com/psiproto/ddh-psi-sum/psi"
	dbstats "github.com/psiproto/ddh-psi-sum/utils/metrics"
)

// Server holds everything the HTTP reference transport needs to run a
// fleet of server-side (Party2) PSI-SUM sessions.
type Server struct {
	cfg      config.Config
	logger   *zerolog.Logger
	ledger   *Ledger
	sessions *LiveSessions
	metrics  *Metrics
	registry *prometheus.Registry
	cron     *cron.Cron
}

// New constructs a Server from cfg. If cfg.DatabaseURL is empty the session
// ledger is left nil and bookkeeping is skipped — the in-memory cache alone
// still drives the protocol, just without durable audit history or the
// GET /v1/psi/sessions/{id} status endpoint.
func New(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	s.registry = reg
	s.metrics = NewMetrics(reg)

	if cfg.DatabaseURL != "" {
		if err := RunMigrations(cfg.MigrationsPath, cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		ledger, err := NewLedger(cfg.DatabaseURL, cfg.MaxDBConns)
		if err != nil {
			return nil, fmt.Errorf("connecting to session ledger: %w", err)
		}
		s.ledger = ledger
		reg.MustRegister(dbstats.NewStatsCollector("sessions", ledger.db))
	}

	s.sessions = NewLiveSessions(cfg.SessionTTL, func(key string, value any) {
		if p2, ok := value.(*psi.Party2); ok {
			p2.Close()
		}
		s.metrics.LiveSessionsGauge.Set(float64(s.sessions.Len()))
		logger.Debug().Str("session_id", key).Msg("evicted idle session")
	})

	return s, nil
}

// ListenAndServe starts the HTTP reference transport on cfg.ListenAddr.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.ListenAddr, Handler: s.Router()}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	return srv.ListenAndServe()
}

// ServeMetrics starts a second listener exposing Prometheus metrics, the
// same split the teacher's metrics.RegisterAndListen serves on its own
// port away from the main API traffic.
func (s *Server) ServeMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: s.cfg.MetricsAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	return srv.ListenAndServe()
}

// Close stops the cron scheduler and closes the session ledger.
func (s *Server) Close() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ledger != nil {
		_ = s.ledger.Close()
	}
}

// SetupLogger builds the zerolog logger every entrypoint uses: stderr output
// with timestamps and caller, at debug level unless ENV is "production".
// Unlike the teacher's server.SetupLogger it does not redirect the standard
// library's log package or attach the logger to a context.
func SetupLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if os.Getenv("ENV") != "production" {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Caller().Logger().Level(level)
	return logger
}
