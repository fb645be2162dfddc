package crawler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/clock"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/crawler"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/memdb"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/source"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestLoopsCoverEveryCycle(t *testing.T) {
	c := crawler.New(zaptest.NewLogger(t), memdb.New(), source.NewHTTPWithOpts(source.Opts{}), crawler.DefaultConfig())
	names := make([]string, 0, 4)
	for _, l := range Loops(c) {
		names = append(names, l.Name)
		assert.Positive(t, l.Interval, l.Name)
		assert.NotNil(t, l.Cycle, l.Name)
	}
	assert.ElementsMatch(t, []string{crawler.CycleDiscovery, crawler.CycleRecent, crawler.CycleOlder, crawler.CycleVirtual}, names)
}

func TestRunLoopsRunsConcurrentlyUntilCanceled(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC))
	c := crawler.New(zaptest.NewLogger(t), memdb.New(), source.NewHTTPWithOpts(source.Opts{}), crawler.DefaultConfig(),
		crawler.WithClock(clk))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var a, b atomic.Int32
	counting := func(n *atomic.Int32) func(context.Context) (crawler.CycleResult, error) {
		return func(context.Context) (crawler.CycleResult, error) {
			if n.Add(1) == 3 {
				cancel()
			}
			return crawler.CycleResult{}, nil
		}
	}

	done := make(chan struct{})
	go func() {
		RunLoops(ctx, zaptest.NewLogger(t), c, []Loop{
			{Name: "a", Interval: time.Minute, Cycle: counting(&a)},
			{Name: "b", Interval: time.Minute, Cycle: counting(&b)},
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loops did not stop after cancel")
	}
	assert.GreaterOrEqual(t, a.Load()+b.Load(), int32(3))
}
