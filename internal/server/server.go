package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/teemow/inboxpanel/internal/instrumentation"
	"github.com/teemow/inboxpanel/internal/model"
)

const (
	DefaultAddr              = ":8080"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
)

// Linker drives the Gmail link lifecycle for one application user.
type Linker interface {
	Connect(redirectURI string) (string, error)
	Callback(ctx context.Context, userID, code, redirectURI string) error
	Disconnect(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) model.Status
}

// Syncer pulls the user's inbox into the store.
type Syncer interface {
	Sync(ctx context.Context, userID string) (int, error)
}

// MessageLister reads stored messages newest first.
type MessageLister interface {
	ListMessages(ctx context.Context, userID string, limit int) ([]model.Message, error)
}

// EventSource opens a per-user notification stream.
type EventSource interface {
	Watch(ctx context.Context, userID string) <-chan model.Event
}

// Options wires the HTTP surface to the application services.
type Options struct {
	Addr string

	Linker   Linker
	Syncer   Syncer
	Messages MessageLister
	Events   EventSource
	Sessions *SessionManager
	Health   *HealthChecker

	// CallbackURL is the redirect URI registered with Google.
	CallbackURL string
	// DashboardURL and LoginURL are the browser redirect targets used by
	// the OAuth callback.
	DashboardURL string
	LoginURL     string
	MessageLimit int
	// SyncLimiter throttles manual syncs per user. Nil disables it.
	SyncLimiter *RateLimiter

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// Server is the public HTTP server.
type Server struct {
	opts       Options
	router     *gin.Engine
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *instrumentation.Metrics

	// base is the parent of every request context. Cancelling it on
	// shutdown ends open event streams.
	base       context.Context
	cancelBase context.CancelFunc
	stopOnce   sync.Once
}

// New builds the HTTP server and its routes from opts.
func New(opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = DefaultAddr
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Health == nil {
		opts.Health = NewHealthChecker(nil)
	}
	if opts.MessageLimit <= 0 {
		opts.MessageLimit = 50
	}

	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:       opts,
		logger:     opts.Logger.With(slog.String("component", "http")),
		metrics:    opts.Metrics,
		base:       base,
		cancelBase: cancel,
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return s.base },
	}
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), s.httpMetrics())

	s.opts.Health.Register(r)

	api := r.Group("/api/gmail")
	// The callback handles a missing session itself with a redirect.
	api.GET("/callback", s.handleCallback)

	authed := api.Group("", s.requireSession())
	authed.GET("/connect", s.handleConnect)
	authed.POST("/disconnect", s.handleDisconnect)
	authed.GET("/status", s.handleStatus)
	authed.POST("/sync", s.rateLimit(s.opts.SyncLimiter), s.handleSync)
	authed.GET("/messages", s.handleMessages)
	authed.GET("/events", s.handleEvents)

	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on l until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", slog.String("addr", l.Addr().String()))
		if err := s.httpServer.Serve(l); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Shutdown fails readiness, closes event streams and drains requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.opts.Health.SetShuttingDown()
	s.stopOnce.Do(s.cancelBase)
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
