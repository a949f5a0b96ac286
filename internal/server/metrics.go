package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/teemow/inboxpanel/internal/instrumentation"
)

const (
	DefaultMetricsAddr = ":9090"

	DefaultMetricsReadTimeout  = 10 * time.Second
	DefaultMetricsWriteTimeout = 10 * time.Second
	DefaultMetricsIdleTimeout  = 60 * time.Second

	// DefaultShutdownTimeout bounds graceful shutdown of either listener.
	DefaultShutdownTimeout = 30 * time.Second
)

type MetricsServerConfig struct {
	// Addr defaults to DefaultMetricsAddr.
	Addr     string
	Provider *instrumentation.Provider
	Logger   *slog.Logger
}

// MetricsServer serves /metrics on its own listener so scrape traffic never
// shares a port with user traffic.
type MetricsServer struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewMetricsServer fails unless the provider exports through Prometheus.
func NewMetricsServer(config MetricsServerConfig) (*MetricsServer, error) {
	if config.Addr == "" {
		config.Addr = DefaultMetricsAddr
	}
	if config.Provider == nil {
		return nil, errors.New("instrumentation provider is required for metrics server")
	}
	handler := config.Provider.PrometheusHandler()
	if handler == nil {
		return nil, errors.New("instrumentation provider does not export prometheus metrics")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &MetricsServer{
		httpServer: &http.Server{
			Addr:              config.Addr,
			Handler:           mux,
			ReadHeaderTimeout: DefaultMetricsReadTimeout,
			WriteTimeout:      DefaultMetricsWriteTimeout,
			IdleTimeout:       DefaultMetricsIdleTimeout,
		},
		logger: logger,
	}, nil
}

// Handler exposes the mux, mainly for tests.
func (s *MetricsServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve blocks serving on l until Shutdown.
func (s *MetricsServer) Serve(l net.Listener) error {
	s.logger.Info("starting metrics server", slog.String("addr", l.Addr().String()))
	if err := s.httpServer.Serve(l); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens on the configured address and blocks until Shutdown.
func (s *MetricsServer) Start() error {
	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down metrics server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *MetricsServer) Addr() string {
	return s.httpServer.Addr
}
