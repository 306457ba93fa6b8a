// Package app assembles the process: storage, providers, services, the HTTP
// API and the scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Mouaddiguoug/feetflight/internal/auth"
	"github.com/Mouaddiguoug/feetflight/internal/config"
	"github.com/Mouaddiguoug/feetflight/internal/graphdb"
	"github.com/Mouaddiguoug/feetflight/internal/httpapi"
	"github.com/Mouaddiguoug/feetflight/internal/idempotency"
	"github.com/Mouaddiguoug/feetflight/internal/jobs"
	"github.com/Mouaddiguoug/feetflight/internal/logging"
	"github.com/Mouaddiguoug/feetflight/internal/mailer"
	"github.com/Mouaddiguoug/feetflight/internal/media"
	"github.com/Mouaddiguoug/feetflight/internal/metrics"
	"github.com/Mouaddiguoug/feetflight/internal/middleware"
	"github.com/Mouaddiguoug/feetflight/internal/payments"
	"github.com/Mouaddiguoug/feetflight/internal/push"
	"github.com/Mouaddiguoug/feetflight/internal/repository"
	"github.com/Mouaddiguoug/feetflight/internal/repository/memory"
	"github.com/Mouaddiguoug/feetflight/internal/services/admin"
	authsvc "github.com/Mouaddiguoug/feetflight/internal/services/auth"
	"github.com/Mouaddiguoug/feetflight/internal/services/checkout"
	"github.com/Mouaddiguoug/feetflight/internal/services/notifications"
	"github.com/Mouaddiguoug/feetflight/internal/services/posts"
	"github.com/Mouaddiguoug/feetflight/internal/services/sellers"
	"github.com/Mouaddiguoug/feetflight/internal/services/users"
	"github.com/Mouaddiguoug/feetflight/internal/services/wallet"
)

// App is a fully wired process.
type App struct {
	Config    *config.Config
	Logger    *logging.Logger
	Metrics   *metrics.Metrics
	API       *httpapi.API
	Scheduler *jobs.Scheduler
	Hub       *push.Hub

	health  func(ctx context.Context) error
	closers []func(ctx context.Context) error
}

// OpenGraph connects to Neo4j and verifies the connection. The caller owns
// the returned executor.
func OpenGraph(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*graphdb.Neo4jExecutor, error) {
	exec, err := graphdb.NewNeo4jExecutor(graphdb.Config{
		URI:      cfg.Neo4j.URI,
		Username: cfg.Neo4j.Username,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := exec.Verify(ctx); err != nil {
		_ = exec.Close(ctx)
		return nil, fmt.Errorf("could not connect to database %q: %w", cfg.Neo4j.Database, err)
	}
	return exec, nil
}

// New builds the application. On error, everything opened so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	stores, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}
	events, err := a.openEvents(ctx)
	if err != nil {
		return nil, err
	}
	storage, err := media.NewLocalStore(cfg.MediaDir, cfg.PublicURL)
	if err != nil {
		return nil, err
	}
	mail, err := mailer.New(cfg.MailFrom, mailer.NewLogSender(logger))
	if err != nil {
		return nil, err
	}
	processor := a.processor()
	tokens := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.TTL)

	a.Hub = push.NewHub(logger, originChecker(cfg.AllowedOrigins()))
	a.closers = append(a.closers, func(context.Context) error { a.Hub.Close(); return nil })

	notes := notifications.NewService(stores.Notifications, stores.Users, a.Hub, push.NewLogDeviceSender(logger), logger)
	checkoutSvc := checkout.NewService(checkout.Deps{
		Stores:    stores,
		Processor: processor,
		Events:    events,
		Pusher:    notes,
		Mail:      mail,
		Metrics:   a.Metrics,
		Logger:    logger,
	}, checkout.Config{
		WebhookSecret: cfg.Payments.WebhookSecret,
		SuccessURL:    strings.TrimRight(cfg.FrontendURL, "/") + "/checkout/success",
		CancelURL:     strings.TrimRight(cfg.FrontendURL, "/") + "/checkout/cancel",
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	a.API = httpapi.New(httpapi.Options{
		Services: httpapi.Services{
			Auth: authsvc.NewService(stores.Users, processor, tokens, mail, logger, authsvc.Config{
				PublicURL: cfg.PublicURL,
				Admins:    cfg.Admins(),
			}),
			Users:         users.NewService(stores.Users, stores.Posts, stores.Subscriptions, storage),
			Posts:         posts.NewService(stores.Posts, stores.Sellers, stores.Subscriptions, stores.Categories, storage),
			Sellers:       sellers.NewService(stores.Sellers, stores.Posts, stores.Subscriptions, processor, storage),
			Wallet:        wallet.NewService(stores.Wallets),
			Checkout:      checkoutSvc,
			Notifications: notes,
			Admin:         admin.NewService(stores, notes, mail, logger),
		},
		Tokens:         tokens,
		Stream:         a.Hub,
		Media:          storage.Handler(),
		Metrics:        a.Metrics,
		Limiter:        limiter,
		Logger:         logger,
		Health:         a.Health,
		AllowedOrigins: cfg.AllowedOrigins(),
		ExposeErrors:   cfg.IsDevelopment(),
		SecureCookies:  !cfg.IsDevelopment(),
		MaxUploadBytes: cfg.MaxUploadMB << 20,
	})

	a.Scheduler = jobs.NewScheduler(logger, a.Metrics)
	maintenance := jobs.Maintenance{
		Subscriptions:  checkoutSvc,
		Limiter:        limiter,
		ExpirySchedule: cfg.ExpirySchedule,
	}
	if sweeper, ok := events.(jobs.EventSweeper); ok {
		maintenance.Events = sweeper
	}
	if err := jobs.RegisterMaintenance(a.Scheduler, maintenance); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) openStores(ctx context.Context) (*repository.Stores, error) {
	if a.Config.StoreDriver == config.StoreMemory {
		a.Logger.WithContext(ctx).Warn("using the in-memory store; data is lost on exit")
		return memory.New().Stores(), nil
	}

	exec, err := OpenGraph(ctx, a.Config, a.Logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, exec.Close)
	exec.OnQuery(a.Metrics.ObserveQuery)
	a.health = exec.Verify
	if err := graphdb.EnsureSchema(ctx, exec); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repository.NewNeo4jStores(exec)
}

func (a *App) openEvents(ctx context.Context) (idempotency.Store, error) {
	if a.Config.RedisURL == "" {
		return idempotency.NewMemoryStore(), nil
	}
	store, err := idempotency.NewRedisStore(a.Config.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return store, nil
}

func (a *App) processor() payments.Processor {
	if a.Config.Payments.SecretKey == "" {
		a.Logger.WithContext(context.Background()).Warn("PAYMENTS_SECRET_KEY not set; checkout sessions are simulated")
		return payments.NewLocalProcessor(a.Config.PublicURL)
	}
	return payments.NewClient(payments.ClientConfig{
		BaseURL:   a.Config.Payments.APIURL,
		SecretKey: a.Config.Payments.SecretKey,
		Currency:  a.Config.Payments.Currency,
		Timeout:   15 * time.Second,
	})
}

// Health reports whether the graph database is reachable.
func (a *App) Health(ctx context.Context) error {
	if a.health == nil {
		return nil
	}
	return a.health(ctx)
}

// Run serves HTTP and runs the scheduler until ctx is cancelled, then shuts
// both down within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.HTTPAddr,
		Handler:           a.API.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	a.Scheduler.Start()
	errCh := make(chan error, 1)
	go func() {
		a.Logger.WithContext(ctx).WithField("addr", srv.Addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			_ = a.Scheduler.Stop(context.Background())
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.Logger.WithContext(ctx).Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	a.Hub.Close()
	err := srv.Shutdown(shutdownCtx)
	if stopErr := a.Scheduler.Stop(shutdownCtx); err == nil {
		err = stopErr
	}
	return err
}

// Close releases every opened resource, most recent first.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// originChecker admits websocket upgrades from the configured origins, and
// from clients that send no Origin header.
func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
