// Package store is the relational facade (component D) used by the
// instances cache, the materializer's callers, and the alarm
// scheduler. It owns the single shared pgxpool.Pool and is the only
// package that issues SQL.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Facade wraps the shared connection pool. Every exported method
// either runs standalone against the pool or accepts a pgx.Tx so
// callers (instancecache in particular) can compose several calls
// inside one transaction (spec §4.4: "all mutations are performed
// inside a single database transaction").
type Facade struct {
	pool *pgxpool.Pool
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting a
// shared helper such as insertEvent run either standalone or inside a
// caller's transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New constructs a Facade over an already-configured pool.
func New(pool *pgxpool.Pool) *Facade {
	return &Facade{pool: pool}
}

// Pool exposes the underlying pool.
func (f *Facade) Pool() *pgxpool.Pool {
	return f.pool
}

// WithTx runs fn inside a single transaction, committing on success and
// rolling back on error or panic. acquireRange and ScheduleNext's
// per-pass work both go through this so the cache is never observed
// partially materialized (spec §4.4, §5).
func (f *Facade) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	tx, err := f.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	err = fn(ctx, tx)
	return err
}
