package crawler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/gorilla/mux"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/crawler"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/clickhouse"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/postgres"
	crawldb "github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/postgres/crawl"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/logging"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/redis"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/source"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/utils"
	"go.uber.org/zap"
)

// Loop is one long-lived crawl loop.
type Loop struct {
	Name     string
	Interval time.Duration
	Cycle    func(context.Context) (crawler.CycleResult, error)
}

// Loops returns the crawl loops of a controller with their intervals read from the environment.
func Loops(c *crawler.Controller) []Loop {
	return []Loop{
		{Name: crawler.CycleDiscovery, Interval: utils.EnvDuration("CRAWL_DISCOVERY_INTERVAL", time.Hour), Cycle: c.DiscoveryCycle},
		{Name: crawler.CycleRecent, Interval: utils.EnvDuration("CRAWL_RECENT_INTERVAL", time.Minute), Cycle: c.RecentCycle},
		{Name: crawler.CycleOlder, Interval: utils.EnvDuration("CRAWL_OLDER_INTERVAL", 10*time.Minute), Cycle: c.OlderCycle},
		{Name: crawler.CycleVirtual, Interval: utils.EnvDuration("CRAWL_VIRTUAL_INTERVAL", 30*time.Second), Cycle: c.VirtualCycle},
	}
}

type App struct {
	Logger     *zap.Logger
	DB         *crawldb.DB
	Archive    *clickhouse.Archive
	Redis      *redis.Client
	Controller *crawler.Controller
	Loops      []Loop
	Server     *http.Server
}

// Initialize wires the crawler from the environment. The ClickHouse archive is enabled by
// setting CLICKHOUSE_ADDR.
func Initialize(ctx context.Context) *App {
	logger, err := logging.New("crawler")
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	db, err := crawldb.NewWithPoolConfig(ctx, logger, utils.Env("POSTGRES_DB", "atcoder"), *postgres.GetPoolConfigForComponent("crawler"))
	if err != nil {
		logger.Fatal("Unable to initialize raw store", zap.Error(err))
	}

	redisClient, err := redis.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to connect to redis", zap.Error(err))
	}

	fetcher := source.NewHTTPWithOpts(source.Opts{
		Endpoints:       strings.Split(utils.Env("SOURCE_BASE_URL", "https://atcoder.jp"), ","),
		Timeout:         utils.EnvDuration("SOURCE_TIMEOUT", 30*time.Second),
		RPS:             utils.EnvFloat("SOURCE_RPS", 2),
		Burst:           utils.EnvInt("SOURCE_BURST", 1),
		BreakerFailures: utils.EnvInt("SOURCE_BREAKER_FAILURES", 5),
		BreakerCooldown: utils.EnvDuration("SOURCE_BREAKER_COOLDOWN", 30*time.Second),
		UserAgent:       utils.Env("SOURCE_USER_AGENT", ""),
	})

	opts := []crawler.Option{crawler.WithPublisher(redisClient)}
	app := &App{Logger: logger, DB: db, Redis: redisClient}
	if utils.Env("CLICKHOUSE_ADDR", "") != "" {
		app.Archive, err = clickhouse.NewArchive(ctx, logger, utils.Env("CLICKHOUSE_DB", "atcoder"),
			clickhouse.GetPoolConfigForComponent("crawler"))
		if err != nil {
			logger.Fatal("Unable to initialize submission archive", zap.Error(err))
		}
		opts = append(opts, crawler.WithArchive(app.Archive))
	}

	app.Controller = crawler.New(logger, db, fetcher, crawler.ConfigFromEnv(), opts...)
	app.Loops = Loops(app.Controller)
	app.SetupServer()
	return app
}

// SetupServer sets up the health endpoints.
func (a *App) SetupServer() {
	addr := utils.Env("ADDR", ":3010")

	r := mux.NewRouter()
	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })).Methods(http.MethodGet)
	r.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if a.DB.Ping(ctx) == nil && a.Redis.Health(ctx) == nil {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})).Methods(http.MethodGet)

	a.Server = &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
}

// RunLoops runs every loop on its own worker until ctx is canceled.
func RunLoops(ctx context.Context, logger *zap.Logger, c *crawler.Controller, loops []Loop) {
	pool := pond.NewPool(len(loops))
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()
	for _, l := range loops {
		group.SubmitErr(func() error {
			return c.Loop(groupCtx, l.Name, l.Interval, l.Cycle)
		})
	}
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
		logger.Error("crawl loops stopped", zap.Error(err))
	}
}

// Start runs the loops and the health server, and blocks until ctx is canceled.
func (a *App) Start(ctx context.Context) {
	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("health server stopped", zap.Error(err))
		}
	}()

	RunLoops(ctx, a.Logger, a.Controller, a.Loops)
	a.Stop()
}

func (a *App) Stop() {
	a.Logger.Info("shutting down…")
	_ = a.Server.Close()
	if a.Archive != nil {
		_ = a.Archive.Close()
	}
	_ = a.Redis.Close()
	a.DB.Close()
	a.Logger.Info("shutdown complete")
}
