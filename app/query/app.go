package query

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kenkoooo/AtCoderProblems-sub000/app/query/controller"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/postgres"
	statsdb "github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/postgres/stats"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/logging"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/rank"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/redis"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/utils"
	"go.uber.org/zap"
)

type App struct {
	Logger  *zap.Logger
	StatsDB *statsdb.DB
	Redis   *redis.Client
	Server  *http.Server
}

// Initialize wires the rank query server. RANK_BACKEND selects "postgres" (default) or the
// "redis" leaderboard cache.
func Initialize(ctx context.Context) *App {
	logger, err := logging.New("query")
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	app := &App{Logger: logger}
	var (
		store db.RankSnapshotter
		ping  func(context.Context) error
	)
	switch backend := utils.Env("RANK_BACKEND", "postgres"); backend {
	case "postgres":
		app.StatsDB, err = statsdb.NewWithPoolConfig(ctx, logger, utils.Env("POSTGRES_DB", "atcoder"),
			*postgres.GetPoolConfigForComponent("query"))
		if err != nil {
			logger.Fatal("Unable to initialize stats store", zap.Error(err))
		}
		store, ping = app.StatsDB, app.StatsDB.Ping
	case "redis":
		app.Redis, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Fatal("Unable to connect to redis", zap.Error(err))
		}
		store, ping = rank.NewCache(logger, app.Redis.Raw()), app.Redis.Health
	default:
		logger.Fatal("Unknown RANK_BACKEND", zap.String("backend", backend))
	}

	ctler := controller.NewController(logger, rank.NewService(logger, store), ping)
	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := utils.Env("ADDR", ":3001")
	app.Server = &http.Server{
		Addr:              addr,
		Handler:           controller.WithCORS(ctler.NewRouter()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("Starting server", zap.String("addr", addr))
	return app
}

// Start serves until ctx is canceled, then drains in-flight requests.
func (a *App) Start(ctx context.Context) {
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("Failed to shut down server", zap.Error(err))
	}
	if a.StatsDB != nil {
		a.StatsDB.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	a.Logger.Info("shutdown complete")
}
