package aggregator

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/kenkoooo/AtCoderProblems-sub000/app/aggregator/activity"
	"github.com/kenkoooo/AtCoderProblems-sub000/app/aggregator/workflow"
	agg "github.com/kenkoooo/AtCoderProblems-sub000/pkg/aggregator"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/postgres"
	crawldb "github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/postgres/crawl"
	statsdb "github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/postgres/stats"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/logging"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/rank"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/redis"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/temporal"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/utils"
	"github.com/robfig/cron/v3"
	"go.temporal.io/sdk/worker"
	temporalworkflow "go.temporal.io/sdk/workflow"
	"go.uber.org/zap"
)

// App consumes ingest events, schedules full rebuilds and, in temporal mode, runs the
// aggregation worker.
type App struct {
	Logger         *zap.Logger
	RawDB          *crawldb.DB
	StatsDB        *statsdb.DB
	Engine         *agg.Engine
	Redis          *redis.Client
	Consumer       *redis.IngestConsumer
	TemporalClient *temporal.Client
	Worker         worker.Worker
	Dispatcher     Dispatcher
	Cron           *cron.Cron
	CronSpec       string
	Refresh        bool
	Server         *http.Server
}

// Initialize wires the aggregator from the environment. AGGREGATE_EXECUTOR selects "temporal"
// (default) or "local" execution.
func Initialize(ctx context.Context) *App {
	logger, err := logging.New("aggregator")
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	dbName := utils.Env("POSTGRES_DB", "atcoder")
	rawDB, err := crawldb.NewWithPoolConfig(ctx, logger, dbName, *postgres.GetPoolConfigForComponent("aggregator"))
	if err != nil {
		logger.Fatal("Unable to initialize raw store", zap.Error(err))
	}
	statsDB, err := statsdb.NewWithPoolConfig(ctx, logger, dbName, *postgres.GetPoolConfigForComponent("aggregator"))
	if err != nil {
		logger.Fatal("Unable to initialize stats store", zap.Error(err))
	}

	redisClient, err := redis.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to connect to redis", zap.Error(err))
	}

	engine := agg.New(logger, rawDB, statsDB, utils.EnvInt("AGGREGATE_WORKERS", agg.DefaultWorkers))

	refresh := utils.EnvBool("RANK_CACHE_ENABLED", true)
	var leaderboard *rank.Cache
	if refresh {
		leaderboard = rank.NewCache(logger, redisClient.Raw())
	}

	app := &App{
		Logger:   logger,
		RawDB:    rawDB,
		StatsDB:  statsDB,
		Engine:   engine,
		Redis:    redisClient,
		CronSpec: utils.Env("AGGREGATE_FULL_CRON", "0 0 */6 * * *"),
		Refresh:  refresh,
	}

	switch executor := utils.Env("AGGREGATE_EXECUTOR", "temporal"); executor {
	case "local":
		app.Dispatcher = &LocalDispatcher{Engine: engine, Leaderboard: leaderboard, Rankings: statsDB, Logger: logger}
	case "temporal":
		app.TemporalClient, err = temporal.NewClient(ctx, logger)
		if err != nil {
			logger.Fatal("Unable to establish temporal connection", zap.Error(err))
		}
		app.Worker = newWorker(app.TemporalClient, &activity.Context{
			Logger:      logger,
			Engine:      engine,
			Leaderboard: leaderboard,
			Rankings:    statsDB,
		})
		app.Dispatcher = &TemporalDispatcher{Client: app.TemporalClient, Logger: logger}
	default:
		logger.Fatal("Unknown AGGREGATE_EXECUTOR", zap.String("executor", executor))
	}

	hostname, _ := os.Hostname()
	app.Consumer, err = redis.NewIngestConsumer(redisClient, logger, redis.IngestConsumerConfig{
		Group:           utils.Env("AGGREGATE_CONSUMER_GROUP", "aggregator"),
		Consumer:        utils.Env("AGGREGATE_CONSUMER_NAME", hostname),
		ReclaimInterval: utils.EnvDuration("AGGREGATE_RECLAIM_INTERVAL", 30*time.Second),
		MinIdle:         utils.EnvDuration("AGGREGATE_RECLAIM_MIN_IDLE", time.Minute),
		MaxDeliveries:   utils.EnvInt64("AGGREGATE_MAX_DELIVERIES", 20),
	})
	if err != nil {
		logger.Fatal("Unable to create ingest consumer", zap.Error(err))
	}

	app.Cron, err = SetupScheduler(ctx, logger, app.Dispatcher, app.CronSpec,
		utils.EnvDuration("AGGREGATE_FULL_TIMEOUT", time.Hour), refresh)
	if err != nil {
		logger.Fatal("Unable to schedule full rebuild", zap.Error(err), zap.String("cronSpec", app.CronSpec))
	}

	app.SetupServer()
	return app
}

func newWorker(tc *temporal.Client, activityContext *activity.Context) worker.Worker {
	workflowContext := workflow.Context{
		ActivityContext: activityContext,
		Config:          workflow.DefaultConfig(),
	}
	wkr := worker.New(
		tc.TClient,
		tc.AggregateQueue,
		worker.Options{
			MaxConcurrentWorkflowTaskPollers:   2,
			MaxConcurrentActivityTaskPollers:   4,
			MaxConcurrentActivityExecutionSize: len(stats.AllTables) * 2,
			WorkerStopTimeout:                  time.Minute,
		},
	)
	wkr.RegisterWorkflowWithOptions(
		workflowContext.AggregateWorkflow,
		temporalworkflow.RegisterOptions{Name: workflow.AggregateWorkflowName},
	)
	wkr.RegisterActivity(activityContext.RecomputeTable)
	wkr.RegisterActivity(activityContext.RefreshLeaderboard)
	return wkr
}

// SetupServer sets up the health endpoints.
func (a *App) SetupServer() {
	addr := utils.Env("ADDR", ":3011")

	r := mux.NewRouter()
	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })).Methods(http.MethodGet)
	r.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if a.Ready(req.Context()) {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})).Methods(http.MethodGet)
	r.Handle("/status", http.HandlerFunc(a.handleStatus)).Methods(http.MethodGet)

	a.Server = &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
}

// Ready reports whether postgres and redis answer.
func (a *App) Ready(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := a.StatsDB.Ping(ctx); err != nil {
		return false
	}
	return a.Redis.Health(ctx) == nil
}

// Start runs every component and blocks until the context is canceled.
func (a *App) Start(ctx context.Context) {
	if a.Worker != nil {
		if err := a.Worker.Start(); err != nil {
			a.Logger.Fatal("Unable to start worker", zap.Error(err))
		}
	}
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("health server stopped", zap.Error(err))
		}
	}()
	a.Cron.Start()
	a.Logger.Info("Full rebuild scheduled", zap.String("cronSpec", a.CronSpec))

	go func() {
		handler := IngestHandler(a.Logger, a.Dispatcher, a.Refresh)
		if err := a.Consumer.Run(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error("ingest consumer stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	a.Stop()
}

// Stop releases every component.
func (a *App) Stop() {
	a.Logger.Info("shutting down…")
	<-a.Cron.Stop().Done()
	_ = a.Server.Close()
	if a.Worker != nil {
		a.Worker.Stop()
	}
	if a.TemporalClient != nil {
		a.TemporalClient.Close()
	}
	a.Engine.Close()
	_ = a.Redis.Close()
	a.StatsDB.Close()
	a.RawDB.Close()
	a.Logger.Info("shutdown complete")
}
