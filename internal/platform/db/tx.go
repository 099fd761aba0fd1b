package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRunner executes fn inside one transaction. The context handed to fn
// carries the transaction; repositories resolve it through TxFromContext.
// fn's error aborts the transaction and is returned classified.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type txScopeKey struct{}

// MarkTxScope flags ctx as running inside a transaction. Runners call it so
// that code requiring a transaction can check without knowing the runner.
func MarkTxScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, txScopeKey{}, true)
}

// HasTxScope reports whether ctx was produced by a TxRunner.
func HasTxScope(ctx context.Context) bool {
	v, _ := ctx.Value(txScopeKey{}).(bool)
	return v
}

const rollbackTimeout = 5 * time.Second

// PoolTxRunner runs transactions on the request connection, falling back to
// the pool when the context has none (CLI, background jobs).
type PoolTxRunner struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPoolTxRunner returns a runner that bounds row-lock waits by lockTimeout.
// A zero lockTimeout leaves the server default in place.
func NewPoolTxRunner(pool *pgxpool.Pool, lockTimeout time.Duration) *PoolTxRunner {
	return &PoolTxRunner{pool: pool, lockTimeout: lockTimeout}
}

func (r *PoolTxRunner) begin(ctx context.Context) (pgx.Tx, error) {
	if conn := ConnFromContext(ctx); conn != nil {
		return conn.Begin(ctx)
	}
	if r.pool == nil {
		return nil, errNoConn
	}
	return r.pool.Begin(ctx)
}

func (r *PoolTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if TxFromContext(ctx) != nil {
		// Already inside a transaction: join it.
		return fn(MarkTxScope(ctx))
	}

	tx, err := r.begin(ctx)
	if err != nil {
		return Classify(fmt.Errorf("begin transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			rollback(ctx, tx)
			panic(p)
		}
		if err != nil {
			rollback(ctx, tx)
		}
	}()

	if r.lockTimeout > 0 {
		ms := r.lockTimeout.Milliseconds()
		if ms < 1 {
			ms = 1
		}
		if _, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", ms)); err != nil {
			return Classify(fmt.Errorf("set lock_timeout: %w", err))
		}
	}

	txCtx := MarkTxScope(context.WithValue(ctx, DBTxKey, tx))
	if err = fn(txCtx); err != nil {
		return Classify(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return Classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// rollback must run even when the request context is already cancelled, so
// it detaches from ctx and applies its own bound.
func rollback(ctx context.Context, tx pgx.Tx) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	_ = tx.Rollback(rctx)
}
