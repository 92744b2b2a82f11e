// Package app wires the Taskboard server runtime: config, logging, storage,
// the session endpoints and the task API.
//
// It is intentionally small and deterministic to keep CI gates strict and behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"taskboard/cmd/identity"
	authapi "taskboard/cmd/internal/auth/api"
	"taskboard/cmd/internal/auth/token"
	"taskboard/cmd/internal/tasks"
	"taskboard/cmd/internal/web/csrf"
	"taskboard/cmd/security/password"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// App is the Taskboard server runtime: it owns HTTP server wiring and the
// lifecycle of DB and Redis connections.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool

	redisClient *redis.Client

	guard *csrf.Guard
	auth  *authapi.Handler
	tasks *tasks.Handler
}

// stores groups the persistence backends picked by newStores: either all
// Postgres-backed or all in-memory, never mixed.
type stores struct {
	users  identity.Store
	tokens token.Store
	tasks  tasks.Store
	resets authapi.ResetStore
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	st, dbPool, dbEnabled, err := newStores(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	tokenCfg, err := token.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	tokenMgr, err := token.NewManager(tokenCfg, st.tokens, nil)
	if err != nil {
		return nil, err
	}
	issuer, err := token.NewJWTIssuer(tokenCfg)
	if err != nil {
		return nil, err
	}

	csrfCfg, err := csrf.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	strategy, err := csrf.NewStrategy(csrfCfg)
	if err != nil {
		return nil, err
	}
	guard, err := csrf.NewGuard(csrfCfg, strategy, log)
	if err != nil {
		return nil, err
	}

	pwCfg, err := password.FromEnv()
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	opts := []authapi.HandlerOption{authapi.WithResetStore(st.resets)}
	authCfg := authapi.LoadConfigFromEnv()
	if cfg.RedisURL != "" {
		ropts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		redisClient = redis.NewClient(ropts)
		opts = append(opts, authapi.WithLoginLimiter(
			authapi.NewLoginLimiter(redisClient, authCfg.LoginIPMax, authCfg.LoginIPWindow)))
		log.Info("redis.enabled.login_throttle")
	}

	authHandler, err := authapi.NewHandler(log, authCfg, st.users,
		identity.NewHasherWithConfig(pwCfg), tokenMgr, issuer, guard, opts...)
	if err != nil {
		return nil, err
	}

	taskHandler, err := tasks.NewHandler(log, st.tasks, authHandler)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:         cfg,
		log:         log,
		dbPool:      dbPool,
		dbEnabled:   dbEnabled,
		redisClient: redisClient,
		guard:       guard,
		auth:        authHandler,
		tasks:       taskHandler,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.auth, a.tasks)

	var handler http.Handler = a.guard.Middleware(mux)
	handler = WithSecurityHeaders(handler)
	handler = WithCORS(handler, a.cfg, a.log)
	handler = WithRequestLogging(handler, a.log)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.close()
	a.log.Info("server.stopped")
	return nil
}

func (a *App) close() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("redis.close.fail", "err", err)
		}
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStores decides between Postgres-backed persistence and the in-memory
// dev stores.
func newStores(ctx context.Context, cfg Config, log Logger) (stores, *pgxpool.Pool, bool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return stores{
			users:  identity.NewMemoryStore(),
			tokens: token.NewMemoryStore(),
			tasks:  tasks.NewMemoryStore(),
			resets: authapi.NewMemoryResetStore(),
		}, nil, false, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return stores{}, nil, false, err
	}

	if cfg.MigrateOnStart {
		if err := MigrateUp(ctx, pool, log); err != nil {
			pool.Close()
			return stores{}, nil, false, err
		}
	}

	users, err := identity.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return stores{}, nil, false, err
	}
	tokenStore, err := token.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return stores{}, nil, false, err
	}
	taskStore, err := tasks.NewPostgresStore(pool)
	if err != nil {
		pool.Close()
		return stores{}, nil, false, err
	}

	log.Info("db.enabled.postgres_store")
	return stores{
		users:  users,
		tokens: tokenStore,
		tasks:  taskStore,
		resets: authapi.NewPostgresResetStore(pool),
	}, pool, true, nil
}
