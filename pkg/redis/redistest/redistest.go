// Package redistest starts one throwaway Redis container per test binary.
package redistest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

const image = "redis:7-alpine"

var (
	once      sync.Once
	container *tcredis.RedisContainer
	connURL   string
	startErr  error
)

// Options returns client options for the shared container after flushing it, so every test
// starts from an empty keyspace. The test is skipped under -short or without a container runtime.
func Options(t *testing.T) *redis.Options {
	t.Helper()
	if testing.Short() {
		t.Skip("redis container tests are skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		container, startErr = tcredis.Run(ctx, image)
		if startErr != nil {
			startErr = fmt.Errorf("start redis container: %w", startErr)
			return
		}
		connURL, startErr = container.ConnectionString(ctx)
	})
	if startErr != nil {
		t.Fatalf("redis container: %v", startErr)
	}

	opts, err := redis.ParseURL(connURL)
	if err != nil {
		t.Fatalf("parse %s: %v", connURL, err)
	}
	rdb := redis.NewClient(opts)
	defer func() { _ = rdb.Close() }()
	if err := rdb.FlushAll(context.Background()).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return opts
}

// Terminate stops the shared container. Call it from TestMain after m.Run.
func Terminate() {
	if container != nil {
		_ = testcontainers.TerminateContainer(container)
	}
}
