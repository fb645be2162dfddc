package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultStreamMaxLen caps the ingest stream; older events are trimmed approximately.
const DefaultStreamMaxLen = 10000

// Client carries ingest events between the crawler and the aggregator and backs the
// leaderboard cache.
type Client struct {
	rdb          *redis.Client
	logger       *zap.Logger
	streamMaxLen int64
}

// NewClient connects with the REDIS_HOST, REDIS_PORT, REDIS_PASSWORD and REDIS_DB variables.
// REDIS_STREAM_MAXLEN caps the ingest stream, 0 leaves it unbounded.
func NewClient(ctx context.Context, logger *zap.Logger) (*Client, error) {
	opts := &redis.Options{
		Addr:         net.JoinHostPort(utils.Env("REDIS_HOST", "localhost"), utils.Env("REDIS_PORT", "6379")),
		Password:     utils.Env("REDIS_PASSWORD", ""),
		DB:           utils.EnvInt("REDIS_DB", 0),
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	return Connect(ctx, logger, opts, utils.EnvInt64("REDIS_STREAM_MAXLEN", DefaultStreamMaxLen))
}

// Connect opens a client with explicit options and fails unless the server answers a ping.
func Connect(ctx context.Context, logger *zap.Logger, opts *redis.Options, streamMaxLen int64) (*Client, error) {
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}

	logger.Info("Connected to Redis",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.Int64("streamMaxLen", streamMaxLen))
	return &Client{rdb: rdb, logger: logger, streamMaxLen: streamMaxLen}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Raw exposes the go-redis client to the leaderboard cache.
func (c *Client) Raw() *redis.Client {
	return c.rdb
}

func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// IngestBacklog returns the number of entries retained in the ingest stream.
func (c *Client) IngestBacklog(ctx context.Context) (int64, error) {
	return c.rdb.XLen(ctx, IngestStream).Result()
}
