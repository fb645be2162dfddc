package stats

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/kenkoooo/AtCoderProblems-sub000/pkg/db/postgres"
)

// replaceTable swaps the whole content of table in one transaction. DELETE is used instead of
// TRUNCATE so snapshot readers keep seeing the old rows until commit.
func (db *DB) replaceTable(ctx context.Context, table string, columns []string, n int, row func(i int) []any) error {
	return db.BeginFunc(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := lockTable(ctx, tx, table); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM "+pgx.Identifier{table}.Sanitize()); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
		if n == 0 {
			return nil
		}
		copied, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromSlice(n, func(i int) ([]any, error) {
			return row(i), nil
		}))
		if err != nil {
			return fmt.Errorf("copy into %s: %w", table, err)
		}
		if copied != int64(n) {
			return fmt.Errorf("copy into %s: wrote %d of %d rows", table, copied, n)
		}
		return nil
	})
}

// upsertRows queues query once per row and sends the batch in one transaction.
func (db *DB) upsertRows(ctx context.Context, table, query string, n int, row func(i int) []any) error {
	if n == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := 0; i < n; i++ {
		batch.Queue(query, row(i)...)
	}
	return db.BeginFunc(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := postgres.ExecuteBatch(ctx, tx, batch); err != nil {
			return fmt.Errorf("upsert %s: %w", table, err)
		}
		return nil
	})
}

// replaceUserRows deletes every row of users from table and inserts rows in one transaction.
func (db *DB) replaceUserRows(ctx context.Context, table string, users []string, insert string, n int, row func(i int) []any) error {
	if len(users) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i := 0; i < n; i++ {
		batch.Queue(insert, row(i)...)
	}
	return db.BeginFunc(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := lockTable(ctx, tx, table); err != nil {
			return err
		}
		del := "DELETE FROM " + pgx.Identifier{table}.Sanitize() + " WHERE user_id = ANY($1)"
		if _, err := tx.Exec(ctx, del, users); err != nil {
			return fmt.Errorf("clear %d users of %s: %w", len(users), table, err)
		}
		if n == 0 {
			return nil
		}
		if err := postgres.ExecuteBatch(ctx, tx, batch); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
		return nil
	})
}

// lockTable takes a transaction-scoped advisory lock named after table, so full and scoped
// replaces of one table never interleave.
func lockTable(ctx context.Context, tx pgx.Tx, table string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, table); err != nil {
		return fmt.Errorf("lock %s: %w", table, err)
	}
	return nil
}
