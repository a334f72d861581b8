package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServerConfig holds listener settings for the API and metrics servers.
type ServerConfig struct {
	Host        string
	Port        int
	MetricsPort int
	// ReadHeaderTimeout bounds how long a client may take to send request
	// headers. Defaults to 5s.
	ReadHeaderTimeout time.Duration
	// ShutdownTimeout bounds Shutdown when the caller passes no context.
	ShutdownTimeout time.Duration
}

// Server runs the chat API and, on its own port, the Prometheus scrape
// endpoint. The API server sets only a header read timeout: a write deadline
// would cut long event streams, and turn duration is already bounded by the
// orchestrator.
type Server struct {
	config  ServerConfig
	logger  *slog.Logger
	api     *http.Server
	metrics *http.Server

	apiListener     net.Listener
	metricsListener net.Listener
}

// NewServer wires handler into a server. A metrics port of zero disables the
// metrics listener.
func NewServer(cfg ServerConfig, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	s := &Server{
		config: cfg,
		logger: logger,
		api: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
	}

	if cfg.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.metrics = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		}
	}

	return s
}

// Start binds both listeners and begins serving. It returns once the
// listeners are bound; serving continues in the background.
func (s *Server) Start() error {
	apiListener, err := net.Listen("tcp", s.api.Addr)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}

	if s.metrics != nil {
		metricsListener, err := net.Listen("tcp", s.metrics.Addr)
		if err != nil {
			apiListener.Close()
			return fmt.Errorf("metrics listen: %w", err)
		}
		s.metricsListener = metricsListener
	}
	s.apiListener = apiListener

	go func() {
		if err := s.api.Serve(apiListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", "error", err)
		}
	}()
	s.logger.Info("api server listening", "addr", apiListener.Addr().String())

	if s.metrics != nil {
		go func() {
			if err := s.metrics.Serve(s.metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("metrics server error", "error", err)
			}
		}()
		s.logger.Info("metrics server listening", "addr", s.metricsListener.Addr().String())
	}

	return nil
}

// Addr reports the bound API address, useful when the configured port was 0.
func (s *Server) Addr() string {
	if s.apiListener != nil {
		return s.apiListener.Addr().String()
	}
	return s.api.Addr
}

// Shutdown drains both servers. A nil context gets the configured fallback
// timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if err := s.api.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("api shutdown: %w", err))
	}
	if s.metrics != nil {
		if err := s.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
