package rank

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/models/stats"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultCachePrefix = "atcoder:rank"
	// DefaultRetireAfter keeps a replaced version readable for snapshots still in flight.
	DefaultRetireAfter = 10 * time.Minute
	zaddChunk          = 1000
)

// ErrCacheEmpty is returned by reads before the first Refresh.
var ErrCacheEmpty = errors.New("leaderboard cache not populated")

// Cache mirrors the metric tables into Redis sorted sets. Each Refresh writes a new version
// of every set and then swaps the current-version pointer in one MULTI; readers resolve the
// pointer once per snapshot, so a snapshot never mixes versions.
//
// Scores are negated metric values so that ascending score order, with Redis' lexicographic
// member tie-break, is metric descending then user id ascending.
type Cache struct {
	Logger      *zap.Logger
	Client      *redis.Client
	Prefix      string
	RetireAfter time.Duration
}

var _ db.RankSnapshotter = (*Cache)(nil)

func NewCache(logger *zap.Logger, client *redis.Client) *Cache {
	return &Cache{Logger: logger, Client: client, Prefix: DefaultCachePrefix, RetireAfter: DefaultRetireAfter}
}

type keyspace struct {
	prefix  string
	version string
}

func (c *Cache) pointerKey() string { return c.Prefix + ":current" }

func (k keyspace) set(q stats.MetricQuery) string {
	if q.Table == stats.MetricLanguageCount {
		return fmt.Sprintf("%s:%s:%s:%s", k.prefix, k.version, q.Table, q.Language)
	}
	return fmt.Sprintf("%s:%s:%s", k.prefix, k.version, q.Table)
}

func (k keyspace) languages() string {
	return fmt.Sprintf("%s:%s:languages", k.prefix, k.version)
}

// scoreOf maps a metric value to its sorted-set score.
func scoreOf(value float64) float64 { return -value }

// greaterBound is the exclusive ZCOUNT upper bound selecting metrics strictly above value.
func greaterBound(value float64) string {
	return "(" + strconv.FormatFloat(scoreOf(value), 'f', -1, 64)
}

// RefreshResult reports what one Refresh published.
type RefreshResult struct {
	Version string `json:"version"`
	Sets    int    `json:"sets"`
	Rows    int    `json:"rows"`
}

// Refresh copies every ranking out of one snapshot of src and publishes it as the current version.
func (c *Cache) Refresh(ctx context.Context, src db.RankSnapshotter) (RefreshResult, error) {
	tables := make(map[stats.MetricQuery][]stats.MetricRow)
	var languages []string
	err := src.ReadSnapshot(ctx, func(r db.RankReader) error {
		var err error
		languages, err = r.Languages(ctx)
		if err != nil {
			return err
		}
		queries := []stats.MetricQuery{
			{Table: stats.MetricAcceptedCount},
			{Table: stats.MetricRatedPointSum},
			{Table: stats.MetricStreak},
		}
		for _, lang := range languages {
			queries = append(queries, stats.MetricQuery{Table: stats.MetricLanguageCount, Language: lang})
		}
		for _, q := range queries {
			rows, err := r.LoadRange(ctx, q, 0, 0)
			if err != nil {
				return err
			}
			tables[q] = rows
		}
		return nil
	})
	if err != nil {
		return RefreshResult{}, fmt.Errorf("read rankings: %w", err)
	}

	ks := keyspace{prefix: c.Prefix, version: uuid.NewString()}
	res := RefreshResult{Version: ks.version, Sets: len(tables)}

	previous, err := c.Client.Get(ctx, c.pointerKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return RefreshResult{}, fmt.Errorf("read current version: %w", err)
	}
	retired := make(map[string]struct{})
	if previous != "" {
		old := keyspace{prefix: c.Prefix, version: previous}
		retired[old.languages()] = struct{}{}
		for q := range tables {
			retired[old.set(q)] = struct{}{}
		}
		oldLanguages, err := c.Client.SMembers(ctx, old.languages()).Result()
		if err != nil {
			return RefreshResult{}, fmt.Errorf("read languages of %s: %w", previous, err)
		}
		for _, lang := range oldLanguages {
			retired[old.set(stats.MetricQuery{Table: stats.MetricLanguageCount, Language: lang})] = struct{}{}
		}
	}

	// Sets are filled outside the swap transaction; nothing reads a version before the pointer names it.
	for q, rows := range tables {
		res.Rows += len(rows)
		if err := c.fill(ctx, ks.set(q), rows); err != nil {
			return RefreshResult{}, err
		}
	}

	_, err = c.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, ks.languages())
		if len(languages) > 0 {
			members := make([]interface{}, len(languages))
			for i, l := range languages {
				members[i] = l
			}
			pipe.SAdd(ctx, ks.languages(), members...)
		}
		pipe.Set(ctx, c.pointerKey(), ks.version, 0)
		for key := range retired {
			pipe.Expire(ctx, key, c.RetireAfter)
		}
		return nil
	})
	if err != nil {
		return RefreshResult{}, fmt.Errorf("publish version %s: %w", ks.version, err)
	}

	c.Logger.Info("leaderboard cache refreshed",
		zap.String("version", ks.version),
		zap.Int("sets", res.Sets),
		zap.Int("rows", res.Rows))
	return res, nil
}

func (c *Cache) fill(ctx context.Context, key string, rows []stats.MetricRow) error {
	if err := c.Client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("reset %s: %w", key, err)
	}
	for start := 0; start < len(rows); start += zaddChunk {
		end := min(start+zaddChunk, len(rows))
		members := make([]redis.Z, 0, end-start)
		for _, row := range rows[start:end] {
			members = append(members, redis.Z{Score: scoreOf(row.Value), Member: row.UserID})
		}
		if err := c.Client.ZAdd(ctx, key, members...).Err(); err != nil {
			return fmt.Errorf("zadd %s: %w", key, err)
		}
	}
	return nil
}

// ReadSnapshot pins the current version and runs fn against it.
func (c *Cache) ReadSnapshot(ctx context.Context, fn func(db.RankReader) error) error {
	version, err := c.Client.Get(ctx, c.pointerKey()).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCacheEmpty
	}
	if err != nil {
		return fmt.Errorf("read current version: %w", err)
	}
	return fn(&cacheReader{client: c.Client, keys: keyspace{prefix: c.Prefix, version: version}})
}

type cacheReader struct {
	client *redis.Client
	keys   keyspace
}

func (r *cacheReader) CountGreater(ctx context.Context, q stats.MetricQuery, value float64) (int64, error) {
	n, err := r.client.ZCount(ctx, r.keys.set(q), "-inf", greaterBound(value)).Result()
	if err != nil {
		return 0, fmt.Errorf("zcount %s: %w", r.keys.set(q), err)
	}
	return n, nil
}

func (r *cacheReader) LoadRange(ctx context.Context, q stats.MetricQuery, offset, limit int) ([]stats.MetricRow, error) {
	start := int64(max(offset, 0))
	stop := int64(-1)
	if limit > 0 {
		stop = start + int64(limit) - 1
	}
	zs, err := r.client.ZRangeWithScores(ctx, r.keys.set(q), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange %s: %w", r.keys.set(q), err)
	}
	out := make([]stats.MetricRow, 0, len(zs))
	for _, z := range zs {
		user, _ := z.Member.(string)
		out = append(out, stats.MetricRow{UserID: user, Language: q.Language, Value: -z.Score})
	}
	return out, nil
}

func (r *cacheReader) ValueOf(ctx context.Context, q stats.MetricQuery, userID string) (float64, bool, error) {
	score, err := r.client.ZScore(ctx, r.keys.set(q), userID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("zscore %s: %w", r.keys.set(q), err)
	}
	return -score, true, nil
}

func (r *cacheReader) Languages(ctx context.Context) ([]string, error) {
	out, err := r.client.SMembers(ctx, r.keys.languages()).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", r.keys.languages(), err)
	}
	sort.Strings(out)
	return out, nil
}
