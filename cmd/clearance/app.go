package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nkiryanov/clearance/internal/apperrors"
	"github.com/nkiryanov/clearance/internal/clock"
	"github.com/nkiryanov/clearance/internal/db"
	"github.com/nkiryanov/clearance/internal/handlers"
	"github.com/nkiryanov/clearance/internal/logger"
	"github.com/nkiryanov/clearance/internal/metrics"
	"github.com/nkiryanov/clearance/internal/models"
	"github.com/nkiryanov/clearance/internal/repository"
	"github.com/nkiryanov/clearance/internal/repository/memory"
	"github.com/nkiryanov/clearance/internal/repository/postgres"
	"github.com/nkiryanov/clearance/internal/service/auth"
	"github.com/nkiryanov/clearance/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/clearance/internal/service/credentials"
	"github.com/nkiryanov/clearance/internal/service/employee"
	"github.com/nkiryanov/clearance/internal/service/janitor"
	"github.com/nkiryanov/clearance/internal/service/ratelimit"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	janitor *janitor.Janitor
	logger  logger.Logger

	// Release storage resources
	close func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	storage, closeStorage, err := openStorage(ctx, c, logger)
	if err != nil {
		return nil, err
	}

	// Own registry, so tests may start several apps in one process
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	sysClock := clock.System{}
	hasher := auth.BcryptHasher{}

	// Initialize services
	tokenManager, err := tokenmanager.New(tokenmanager.Config{
		SecretKey:  c.SecretKey,
		AccessTTL:  c.AccessTokenTTL,
		RefreshTTL: c.RefreshTokenTTL,
		Clock:      sysClock,
	})
	if err != nil {
		closeStorage()
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		MaxAttempts: c.LoginMaxAttempts,
		Window:      c.LoginWindow,
		Clock:       sysClock,
	})

	authService, err := auth.NewService(auth.Config{
		Hasher:               hasher,
		PasswordExpiryMonths: c.PasswordExpiryMonths,
		CookieSecure:         c.CookieSecure,
		Clock:                sysClock,
		Logger:               logger.With("component", "auth"),
		Metrics:              m,
	}, storage, tokenManager, limiter)
	if err != nil {
		closeStorage()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	if c.AdminName != "" {
		if err := ensureAdmin(ctx, employee.NewService(hasher, storage, sysClock), c, logger); err != nil {
			closeStorage()
			return nil, err
		}
	}

	j := janitor.New(janitor.Config{
		Interval:   c.SweepInterval,
		StaleAfter: 2 * c.LoginWindow,
		Clock:      sysClock,
		Logger:     logger.With("component", "janitor"),
		Metrics:    m,
	}, credentials.New(storage.Refresh(), hasher, sysClock), limiter)

	mux := handlers.NewRouter(
		authService,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		logger,
	)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		janitor:    j,
		logger:     logger,
		close:      closeStorage,
	}, nil
}

// openStorage connects to postgres and runs migrations or falls back to memory storage when dsn is empty
func openStorage(ctx context.Context, c *Config, logger logger.Logger) (repository.Storage, func(), error) {
	if c.DatabaseDSN == "" {
		logger.Warn("Database is not set, using in memory storage. Data will be lost on restart")
		return memory.NewStorage(), func() {}, nil
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	return postgres.NewStorage(pool), pool.Close, nil
}

func ensureAdmin(ctx context.Context, employees *employee.EmployeeService, c *Config, logger logger.Logger) error {
	_, err := employees.Create(ctx, employee.CreateParams{
		Name:       c.AdminName,
		Department: c.AdminDepartment,
		Role:       models.RoleAdmin,
		Password:   c.AdminPassword,
	})
	switch {
	case err == nil:
		logger.Info("Admin created", "name", c.AdminName)
		return nil
	case errors.Is(err, apperrors.ErrEmployeeAlreadyExists):
		return nil
	default:
		return fmt.Errorf("error while creating admin. Err: %w", err)
	}
}

// Run starts http server and janitor, closes both gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	janitorStopped := s.janitor.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-janitorStopped

	return err
}
