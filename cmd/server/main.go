package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/your-org/contentd/internal/authz"
	"github.com/your-org/contentd/internal/cache"
	"github.com/your-org/contentd/internal/config"
	"github.com/your-org/contentd/internal/domain"
	"github.com/your-org/contentd/internal/handlers"
	"github.com/your-org/contentd/internal/integrity"
	"github.com/your-org/contentd/internal/middleware"
	"github.com/your-org/contentd/internal/navigation"
	"github.com/your-org/contentd/internal/repositories"
	"github.com/your-org/contentd/internal/usecases"
	"github.com/your-org/contentd/pkg/logger"
)

const (
	// Store startup checks. The database gets a little time to wake up
	// before we give up.
	storeConnectRetries    = 5
	storeConnectRetryDelay = 2 * time.Second

	shutdownTimeout = 30 * time.Second
)

// contentStore is what the app needs from whichever backend the config
// selects: reads, health checks, and a way to close it.
type contentStore interface {
	domain.ContentRepository
	domain.HealthChecker
	Close() error
}

// App holds every component of the running service so lifecycle management
// (start/stop) stays in one place instead of scattered globals.
type App struct {
	config     *config.Config
	logger     *zap.Logger
	store      contentStore
	cache      *cache.ShardedCache
	verifier   *integrity.Verifier
	navigation *navigation.Provider
	pageUC     *usecases.PageUsecase
	elementUC  *usecases.ElementUsecase
	server     *http.Server

	initOnce sync.Once
	initErr  error

	// Background-task lifetime. Cancelling the context stops them all.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	shutdownOnce sync.Once
}

// NewApp creates an empty application shell; Initialize does the real work.
func NewApp() *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Initialize sets up every component, all-or-nothing.
func (a *App) Initialize() error {
	a.initOnce.Do(func() {
		a.initErr = a.doInitialize()
	})
	return a.initErr
}

// doInitialize assembles the app. Order matters: logger and config first,
// then the layers bottom-up (store -> cache -> verifier -> usecases -> HTTP).
func (a *App) doInitialize() error {
	if err := logger.Init("info", true); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger.Get()

	configPath := os.Getenv("APP_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// A missing config file is fine: defaults plus environment variables
	// are enough to run.
	if err := config.Load(configPath); err != nil {
		a.logger.Warn("failed to load config file, falling back to defaults and environment",
			zap.String("path", configPath),
			zap.Error(err),
		)
		if err := config.Load(""); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
	}

	a.config = config.Get()
	a.logger.Info("configuration loaded",
		zap.String("server_host", a.config.Server.Host),
		zap.Int("server_port", a.config.Server.Port),
		zap.String("store_backend", a.config.Store.Backend),
	)

	if err := a.initializeStore(); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	a.cache = cache.NewShardedCache(
		a.config.Cache.Shards,
		time.Duration(a.config.Cache.TTL)*time.Second,
	)
	a.cache.StartCleanupWorker()

	a.verifier = integrity.NewVerifier(
		a.store,
		a.config.Concurrency.VerifierWorkers,
		64,
		logger.Named("integrity"),
	)
	a.verifier.Start()

	a.navigation = navigation.NewProvider(a.config.Navigation.MenuPath, logger.Named("navigation"))
	if err := a.navigation.Load(); err != nil {
		return fmt.Errorf("failed to load navigation menu: %w", err)
	}
	if a.config.Navigation.Watch && a.config.Navigation.MenuPath != "" {
		if err := a.navigation.Watch(); err != nil {
			a.logger.Warn("menu file watching unavailable", zap.Error(err))
		}
	}

	authorizer := authz.NewRuleAuthorizer()
	a.pageUC = usecases.NewPageUsecase(
		a.store,
		a.cache,
		authorizer,
		a.verifier,
		a.logger,
		a.config.Concurrency.HTTPMaxWorkers,
		a.config.Serializer.MaxDepth,
		a.config.Content.DefaultLocale,
	)
	a.elementUC = usecases.NewElementUsecase(
		a.store,
		a.cache,
		authorizer,
		a.verifier,
		a.logger,
		a.config.Concurrency.HTTPMaxWorkers,
		a.config.Serializer.MaxDepth,
	)

	if err := a.initializeServer(); err != nil {
		return fmt.Errorf("failed to set up server: %w", err)
	}

	a.logger.Info("application initialized")
	return nil
}

// initializeStore opens the configured backend. The reindexer backend
// retries: the database may start slower than the service.
func (a *App) initializeStore() error {
	switch a.config.Store.Backend {
	case config.BackendReindexer:
		return a.initializeReindexer()

	case config.BackendSQLite:
		repo, err := repositories.NewSQLiteRepository(a.config.Store.SQLite.Path, a.logger)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := repo.EnsureCollections(ctx); err != nil {
			repo.Close()
			return err
		}
		a.store = repo
		a.logger.Info("sqlite store ready", zap.String("path", a.config.Store.SQLite.Path))
		return nil

	case config.BackendMemory:
		a.store = repositories.NewMemoryRepository()
		a.logger.Info("in-memory store ready")
		return nil

	default:
		return fmt.Errorf("unknown store backend %q", a.config.Store.Backend)
	}
}

func (a *App) initializeReindexer() error {
	var err error

	for attempt := 0; attempt < storeConnectRetries; attempt++ {
		if attempt > 0 {
			a.logger.Info("retrying store connection",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", storeConnectRetryDelay),
			)
			time.Sleep(storeConnectRetryDelay)
		}

		repo, initErr := repositories.NewReindexerRepository(
			a.config.Store.Reindexer.DSN,
			a.config.Store.Reindexer.MaxConnections,
			a.logger,
		)
		if initErr != nil {
			err = initErr
			a.logger.Warn("failed to create store client",
				zap.Int("attempt", attempt+1),
				zap.Error(initErr),
			)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if checkErr := repo.CheckConnection(ctx); checkErr != nil {
			cancel()
			repo.Close()
			err = checkErr
			a.logger.Warn("store connection check failed",
				zap.Int("attempt", attempt+1),
				zap.Error(checkErr),
			)
			continue
		}
		cancel()

		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		if ensureErr := repo.EnsureCollections(ctx); ensureErr != nil {
			cancel()
			repo.Close()
			err = ensureErr
			a.logger.Warn("failed to ensure namespaces",
				zap.Int("attempt", attempt+1),
				zap.Error(ensureErr),
			)
			continue
		}
		cancel()

		a.store = repo
		a.logger.Info("store initialized",
			zap.Int("attempts", attempt+1),
			zap.String("dsn", a.config.Store.Reindexer.DSN),
		)
		return nil
	}

	return fmt.Errorf("failed to connect to store after %d attempts: %w", storeConnectRetries, err)
}

// initializeServer sets up routing and middleware.
func (a *App) initializeServer() error {
	pageHandler := handlers.NewPageHandler(a.pageUC, a.logger)
	elementHandler := handlers.NewElementHandler(a.elementUC, a.logger)
	navHandler := handlers.NewNavigationHandler(a.navigation, a.logger)

	r := chi.NewRouter()

	rateLimiter := middleware.NewRateLimiter(a.config.Concurrency.HTTPMaxWorkers, 1*time.Minute)
	resolveToken := a.tokenResolver()

	// Health stays outside the middleware chain so orchestrators get an
	// answer even when the limiter is saturated.
	r.Get("/health", a.healthCheckHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.LoggingMiddleware(a.logger))
		r.Use(middleware.RecoveryMiddleware(a.logger))
		r.Use(middleware.TimeoutMiddleware(30 * time.Second))
		r.Use(middleware.RateLimitMiddleware(rateLimiter, a.logger))
		r.Use(middleware.IdentityMiddleware(resolveToken, a.logger))

		r.Route("/elements", func(r chi.Router) {
			r.Get("/", elementHandler.ListElements)
			r.Get("/{id}", elementHandler.GetElement)
		})

		r.Route("/pages", func(r chi.Router) {
			r.Get("/", pageHandler.ListPages)
			r.Get("/nested", pageHandler.GetPageTree)
			r.Get("/{id_or_urlname}", pageHandler.GetPage)
			r.Get("/{page_id}/nested", pageHandler.GetPageTree)
		})

		r.Get("/navigation", navHandler.GetNavigation)
	})

	addr := fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port)
	a.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return nil
}

// tokenResolver builds the bearer-token lookup from the configured token
// table. Tokens without roles authenticate as plain members.
func (a *App) tokenResolver() middleware.TokenResolver {
	tokens := a.config.Auth.Tokens
	return func(token string) (domain.Identity, bool) {
		entry, ok := tokens[token]
		if !ok {
			return domain.Identity{}, false
		}
		roles := entry.Roles
		if len(roles) == 0 {
			roles = []string{domain.RoleMember}
		}
		return domain.Identity{Subject: entry.Subject, Roles: roles}, true
	}
}

// healthCheckHandler reports service health: store connectivity, cache
// effectiveness, and the outcome of the last integrity sweep.
func (a *App) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	}
	if a.cache != nil {
		health["cache"] = a.cache.GetStats()
	}
	if a.verifier != nil {
		if sweep := a.verifier.LastSweep(); sweep != nil {
			health["last_sweep"] = sweep
		}
	}

	w.Header().Set("Content-Type", "application/json")

	if a.store != nil {
		if err := a.store.CheckConnection(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			health["status"] = "unhealthy"
			health["error"] = err.Error()
			json.NewEncoder(w).Encode(health)
			return
		}
		health["store"] = "connected"
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(health)
}

// StartBackgroundJobs launches the periodic tasks.
func (a *App) StartBackgroundJobs() {
	a.wg.Add(1)
	go a.periodicHealthCheck()

	// First full integrity sweep runs in the background so a large content
	// tree does not delay startup.
	a.wg.Add(1)
	go a.startupSweep()
}

// startupSweep verifies every page once at boot, then leaves further sweeps
// to on-demand scheduling.
func (a *App) startupSweep() {
	defer a.wg.Done()

	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Minute)
	defer cancel()

	stats, err := a.verifier.SweepAll(ctx)
	if err != nil {
		a.logger.Warn("startup integrity sweep failed", zap.Error(err))
		return
	}
	a.logger.Info("startup integrity sweep finished",
		zap.Int("pages", stats.Pages),
		zap.Int("pages_with_issues", stats.PagesDirty),
		zap.Int("issues", stats.Issues),
	)
}

// periodicHealthCheck logs store connectivity every 30 seconds. Useful when
// chasing intermittent network problems.
func (a *App) periodicHealthCheck() {
	defer a.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			a.logger.Info("background health check stopped")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

			if a.store != nil {
				if err := a.store.CheckConnection(ctx); err != nil {
					a.logger.Warn("background check: store unreachable", zap.Error(err))
				} else {
					a.logger.Debug("background check: store healthy")
				}
			}

			cancel()
		}
	}
}

// Start initializes the app and begins serving requests. The server itself
// runs in its own goroutine so main can wait on OS signals.
func (a *App) Start() error {
	if err := a.Initialize(); err != nil {
		return err
	}

	a.StartBackgroundJobs()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.logger.Info("starting HTTP server",
			zap.String("addr", a.server.Addr),
		)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Fatal("server failed", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown stops the application gracefully, letting in-flight requests
// finish before resources are released.
func (a *App) Shutdown() error {
	var shutdownErr error

	a.shutdownOnce.Do(func() {
		a.logger.Info("shutting down...")

		// Tell the background tasks to stop.
		a.cancel()

		// Stop accepting new HTTP requests.
		if a.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := a.server.Shutdown(ctx); err != nil {
				a.logger.Error("server shutdown failed", zap.Error(err))
				shutdownErr = err
			}
			cancel()
		}

		if a.pageUC != nil {
			a.pageUC.Shutdown()
		}
		if a.elementUC != nil {
			a.elementUC.Shutdown()
		}

		if a.verifier != nil {
			a.verifier.Stop()
		}

		if a.navigation != nil {
			a.navigation.Close()
		}

		if a.cache != nil {
			a.cache.StopCleanupWorker()
		}

		if a.store != nil {
			if err := a.store.Close(); err != nil {
				a.logger.Error("failed to close store", zap.Error(err))
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}

		// Wait for the background goroutines to actually finish.
		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			a.logger.Info("all background tasks finished")
		case <-time.After(shutdownTimeout):
			a.logger.Warn("timed out waiting for background tasks")
		}

		if a.logger != nil {
			_ = a.logger.Sync()
		}

		a.logger.Info("shutdown complete")
	})

	return shutdownErr
}

func main() {
	app := NewApp()

	if err := app.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal initialization error: %v\n", err)
		os.Exit(1)
	}

	if err := app.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal startup error: %v\n", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := app.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
}
