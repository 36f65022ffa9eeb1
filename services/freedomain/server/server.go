// Package server exposes the voucher service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"starkvoucher/crypto"
	"starkvoucher/observability"
	"starkvoucher/voucher"
)

const (
	routeFreeDomain = "/campaigns/get_free_domain"
	routePublicKey  = "/campaigns/free_domain/pubkey"
	routeHealth     = "/healthz"
	routeMetrics    = "/metrics"
)

// Config wires the HTTP surface.
type Config struct {
	RateLimit RateLimit
	// Gatherer backs /metrics; nil uses the default Prometheus registry.
	Gatherer prometheus.Gatherer
	Metrics  *observability.VoucherMetrics
	Logger   *slog.Logger
}

// Server serves voucher requests.
type Server struct {
	svc      *voucher.Service
	pub      *crypto.PublicKey
	limiter  *RateLimiter
	metrics  *observability.VoucherMetrics
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// New constructs the HTTP server around svc. pub is published so verifiers can
// pin the signer.
func New(svc *voucher.Service, pub *crypto.PublicKey, cfg Config) (*Server, error) {
	if svc == nil {
		return nil, errors.New("voucher service required")
	}
	if pub == nil {
		return nil, errors.New("signer public key required")
	}
	limiter, err := NewRateLimiter(cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	s := &Server{
		svc:      svc,
		pub:      pub,
		limiter:  limiter,
		metrics:  cfg.Metrics,
		gatherer: cfg.Gatherer,
		logger:   cfg.Logger,
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.limiter != nil {
		s.limiter.onReject = s.metrics.RecordThrottle
	}
	return s, nil
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get(routeHealth, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle(routeMetrics, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Use(s.observe)
		r.Get(routeFreeDomain, s.handleGetFreeDomain)
		r.Get(routePublicKey, s.handlePublicKey)
	})
	return otelhttp.NewHandler(r, "freedomaind")
}

// Run serves on addr until ctx is cancelled, then drains for up to
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen and serve: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.ObserveRequest(r.URL.Path, rec.status)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
