// Package server wires configuration, storage, token issuance and the REST
// API into a runnable application with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/emes-auth/internal/logging"
	"github.com/dmitrijs2005/emes-auth/internal/server/auth"
	"github.com/dmitrijs2005/emes-auth/internal/server/config"
	"github.com/dmitrijs2005/emes-auth/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/emes-auth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/emes-auth/internal/server/rest"
	"github.com/dmitrijs2005/emes-auth/internal/server/services"
	"github.com/redis/go-redis/v9"
)

// purgeInterval is how often expired denylist rows are removed from Postgres.
const purgeInterval = time.Hour

// expiredPurger is implemented by denylists that need explicit cleanup.
type expiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	redis   *redis.Client
	revoked refreshtokens.Repository
	server  *rest.HTTPServer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}

	app.revoked, app.redis, err = newDenylist(ctx, c, rm, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	tokens, err := auth.NewTokenProvider([]byte(c.SecretKey), c.AccessTokenValidityDuration, c.RefreshTokenValidityDuration,
		auth.WithLogger(logger))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("token provider: %w", err)
	}

	hasher := auth.NewBcryptHasher(c.BcryptCost)
	accounts := rm.Accounts(db)

	authService := services.NewAuthService(accounts, app.revoked, tokens, hasher, c.MaxFailedLoginAttempts, logger)
	userService := services.NewUserService(repomanager.NewPostgresStore(db, rm), hasher, logger)

	app.server = rest.NewHTTPServer(c.EndpointAddrHTTP, logger, authService, userService, tokens)
	return app, nil
}

// newDenylist picks Redis for revoked refresh tokens when an address is
// configured and falls back to the Postgres table otherwise.
func newDenylist(ctx context.Context, c *config.Config, rm repomanager.RepositoryManager, db *sql.DB) (refreshtokens.Repository, *redis.Client, error) {
	if c.RedisAddr == "" {
		return rm.RefreshTokens(db), nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return refreshtokens.NewRedisRepository(client), client, nil
}

func (app *App) Close() {
	if app.redis != nil {
		_ = app.redis.Close()
	}
	if app.db != nil {
		_ = app.db.Close()
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// runPurger removes expired denylist rows at start and then every interval
// until ctx is done.
func (app *App) runPurger(ctx context.Context, interval time.Duration) {
	purger, ok := app.revoked.(expiredPurger)
	if !ok {
		return
	}

	purge := func() {
		n, err := purger.PurgeExpired(ctx)
		if err != nil {
			app.logger.Error(ctx, "purge revoked refresh tokens", "error", err)
			return
		}
		if n > 0 {
			app.logger.Info(ctx, "purged revoked refresh tokens", "count", n)
		}
	}

	purge()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purge()
		}
	}
}

// Run serves until a termination signal arrives or the server fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer app.Close()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.runPurger(ctx, purgeInterval)
	}()

	wg.Wait()

	app.logger.Info(ctx, "App stopped")
}
