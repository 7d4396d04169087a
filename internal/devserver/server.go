package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/edusync/edusync/internal/config"
	"github.com/edusync/edusync/internal/metrics"
	"github.com/edusync/edusync/internal/ratelimit"
)

// shutdownTimeout bounds how long in-flight requests may drain.
const shutdownTimeout = 10 * time.Second

// Server is a ready-to-run reference backend.
type Server struct {
	Store   *Store
	Tokens  *Tokens
	Metrics *metrics.Metrics

	cfg    config.DevServerConfig
	logger *slog.Logger
	http   *http.Server
}

// New builds a server from cfg and seeds the admin account.
func New(ctx context.Context, cfg config.DevServerConfig, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store := NewStore(0)
	if err := Seed(ctx, store, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return nil, err
	}

	s := &Server{
		Store:   store,
		Tokens:  NewTokens(cfg.JWTSecret, cfg.TokenTTL),
		Metrics: metrics.New(),
		cfg:     cfg,
		logger:  logger,
	}
	var limiter *ratelimit.Limiter
	if cfg.LoginRateLimit > 0 {
		limiter = ratelimit.New(cfg.LoginRateLimit, cfg.LoginRateWindow)
	}
	s.http = &http.Server{
		Addr: net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		Handler: NewRouter(RouterDeps{
			Store:   s.Store,
			Tokens:  s.Tokens,
			Metrics: s.Metrics,
			Logger:  logger,

			LoginLimiter: limiter,
		}),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Handler returns the HTTP handler, for use with httptest.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// Seed creates the admin account unless a user with that email exists.
func Seed(ctx context.Context, store *Store, email, password string) error {
	if email == "" || password == "" {
		return errors.New("admin email and password are required")
	}
	if _, err := store.GetByEmail(ctx, email); err == nil {
		return nil
	}
	if _, err := store.Create(ctx, CreateUserInput{
		Name:     "Administrator",
		Email:    email,
		Password: password,
		Role:     RoleAdmin,
	}); err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}
	return nil
}
