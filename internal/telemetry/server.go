// Package telemetry serves process metrics and a health probe over HTTP.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// DefaultListenAddress is used when no listen address is configured.
	DefaultListenAddress   = ":9090"
	defaultShutdownTimeout = 5 * time.Second
)

// HealthCheck reports whether the process is able to serve traffic.
type HealthCheck func(ctx context.Context) error

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(server *Server) {
		if logger != nil {
			server.logger = logger
		}
	}
}

// WithGatherer replaces the default Prometheus registry exposed on /metrics.
func WithGatherer(gatherer prometheus.Gatherer) Option {
	return func(server *Server) {
		if gatherer != nil {
			server.gatherer = gatherer
		}
	}
}

// WithHealthCheck adds one probe evaluated by /healthz.
func WithHealthCheck(check HealthCheck) Option {
	return func(server *Server) {
		if check != nil {
			server.checks = append(server.checks, check)
		}
	}
}

// WithShutdownTimeout bounds graceful shutdown after the run context ends.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(server *Server) {
		if timeout > 0 {
			server.shutdownTimeout = timeout
		}
	}
}

// Server exposes /metrics and /healthz.
type Server struct {
	app             *fiber.App
	listen          string
	logger          *slog.Logger
	gatherer        prometheus.Gatherer
	checks          []HealthCheck
	shutdownTimeout time.Duration

	readyOnce sync.Once
	ready     chan struct{}
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// New creates a telemetry server bound to listen once Run is called.
func New(listen string, options ...Option) *Server {
	if listen == "" {
		listen = DefaultListenAddress
	}
	server := &Server{
		listen:          listen,
		logger:          slog.Default(),
		gatherer:        prometheus.DefaultGatherer,
		shutdownTimeout: defaultShutdownTimeout,
		ready:           make(chan struct{}),
	}
	for _, option := range options {
		option(server)
	}

	app := fiber.New(fiber.Config{
		AppName:               "subroll-telemetry",
		DisableStartupMessage: true,
	})
	app.Hooks().OnListen(func(fiber.ListenData) error {
		server.readyOnce.Do(func() { close(server.ready) })
		return nil
	})
	app.Get("/healthz", server.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(server.gatherer, promhttp.HandlerOpts{})))
	server.app = app

	return server
}

// Listen returns the configured listen address.
func (s *Server) Listen() string {
	return s.listen
}

// Run serves until ctx ends, then shuts the listener down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.listen)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("telemetry listen %s: %w", s.listen, err)
		}
		return nil
	case <-s.ready:
		s.logger.InfoContext(ctx, "telemetry server listening", "listen", s.listen)
	case <-ctx.Done():
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("telemetry listen %s: %w", s.listen, err)
		}
		return nil
	case <-ctx.Done():
	}

	return s.shutdown(errCh)
}

func (s *Server) shutdown(errCh <-chan error) error {
	// Listen may still be starting; shutting down before it binds would leave it serving.
	select {
	case <-s.ready:
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("telemetry listen %s: %w", s.listen, err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		shutdownErr = fmt.Errorf("telemetry shutdown: %w", err)
	}
	if err := <-errCh; err != nil {
		shutdownErr = errors.Join(shutdownErr, fmt.Errorf("telemetry listen %s: %w", s.listen, err))
	}
	s.logger.Info("telemetry server stopped", "listen", s.listen)

	return shutdownErr
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	for _, check := range s.checks {
		if err := check(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(healthResponse{
				Status: "unavailable",
				Error:  err.Error(),
			})
		}
	}

	return c.JSON(healthResponse{Status: "ok"})
}
