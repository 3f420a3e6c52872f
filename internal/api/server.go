// internal/api/server.go
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scribe-cli/internal/config"
	"github.com/xkilldash9x/scribe-cli/internal/publisher"
)

const (
	shutdownWait      = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
	maxRequestBytes   = 1 << 20
)

// Server exposes a publisher.Service over HTTP. Every workflow holds one
// browser session, so the number of workflows running at once is capped
// and bursts of requests are smoothed by a token bucket.
type Server struct {
	cfg      config.Interface
	service  publisher.Service
	logger   *zap.Logger
	sessions *semaphore.Weighted
	limiter  *rate.Limiter
	router   *mux.Router
}

// NewServer wires the routes for service.
func NewServer(cfg config.Interface, service publisher.Service, logger *zap.Logger) *Server {
	sc := cfg.Server()
	maxSessions := int64(sc.MaxSessions)
	if maxSessions < 1 {
		maxSessions = 1
	}
	s := &Server{
		cfg:      cfg,
		service:  service,
		logger:   logger.Named("api"),
		sessions: semaphore.NewWeighted(maxSessions),
		limiter:  rate.NewLimiter(rate.Limit(sc.RatePerMinute/60), max(sc.Burst, 1)),
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.logRequests)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.Use(s.rateLimit)
	v1.HandleFunc("/chapters", s.handleSubmit).Methods(http.MethodPost)
	v1.HandleFunc("/works/list", s.handleListWorks).Methods(http.MethodPost)
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server().Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Server().Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       s.cfg.Server().ReadTimeout,
		ErrorLog:          zap.NewStdLog(s.logger),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening.", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("Shutting down HTTP server.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		<-errCh
		return nil
	}
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "60")
			s.respondWithError(w, http.StatusTooManyRequests, "", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// acquire reserves a browser session slot, waiting at most AcquireWait.
func (s *Server) acquire(ctx context.Context) bool {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.Server().AcquireWait)
	defer cancel()
	return s.sessions.Acquire(waitCtx, 1) == nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("Request handled.",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)))
	})
}
