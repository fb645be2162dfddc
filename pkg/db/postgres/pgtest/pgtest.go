// Package pgtest starts one throwaway PostgreSQL container per test binary for the store tests.
package pgtest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const image = "postgres:16-alpine"

var (
	once      sync.Once
	container *postgres.PostgresContainer
	connURL   string
	startErr  error
)

// URL returns the maintenance connection string of the shared container, starting it on first
// use. The test is skipped under -short or when no container runtime is reachable.
func URL(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests are skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		container, startErr = postgres.Run(ctx, image,
			postgres.WithDatabase("postgres"),
			postgres.WithUsername("postgres"),
			postgres.WithPassword("postgres"),
			postgres.BasicWaitStrategies(),
		)
		if startErr != nil {
			startErr = fmt.Errorf("start postgres container: %w", startErr)
			return
		}
		connURL, startErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	if startErr != nil {
		t.Fatalf("postgres container: %v", startErr)
	}
	return connURL
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9_]+`)

// DBName derives a database name unique to the running test.
func DBName(t *testing.T) string {
	name := "t_" + unsafeChars.ReplaceAllString(strings.ToLower(t.Name()), "_")
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

// Terminate stops the shared container. Call it from TestMain after m.Run.
func Terminate() {
	if container != nil {
		_ = testcontainers.TerminateContainer(container)
	}
}
