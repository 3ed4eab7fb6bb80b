package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
)

type txCtxKey struct{}

// Tx is a transaction that repositories join through the context
type Tx interface {
	Executor
	IsOpen() bool
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction wraps sqlx.Tx. Commit and Rollback are idempotent; only the first
// one reaches the database.
type Transaction struct {
	*sqlx.Tx
	logger ectologger.Logger

	mu   sync.Mutex
	done bool
}

func NewTx(tx *sqlx.Tx, logger ectologger.Logger) *Transaction {
	return &Transaction{Tx: tx, logger: logger}
}

// WithTx returns a context carrying tx
func WithTx(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txCtxKey{}, tx)
}

// TxFromContext returns the open transaction carried by ctx, if any.
func TxFromContext(ctx context.Context) Tx {
	tx, ok := ctx.Value(txCtxKey{}).(Tx)
	if !ok || tx == nil || !tx.IsOpen() {
		return nil
	}
	return tx
}

// GetTx joins the transaction open in ctx or begins a new one. The returned
// context carries the transaction.
func GetTx(ctx context.Context, logger ectologger.Logger, db DB, opts *sql.TxOptions) (context.Context, Tx, error) {
	if tx := TxFromContext(ctx); tx != nil {
		return ctx, tx, nil
	}

	sqlxTx, err := db.BeginTxx(ctx, opts)
	if err != nil {
		logger.WithContext(ctx).WithError(err).Error("Failed to begin transaction")
		return ctx, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := NewTx(sqlxTx, logger)
	return WithTx(ctx, tx), tx, nil
}

// RunInTx runs fn inside the transaction open in ctx. Without one it begins a
// transaction, commits it when fn succeeds and rolls it back otherwise.
func RunInTx(ctx context.Context, logger ectologger.Logger, db DB, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	txCtx, tx, err := GetTx(ctx, logger, db, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(txCtx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (t *Transaction) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.done
}

func (t *Transaction) Commit(ctx context.Context) error {
	return t.finish(ctx, "commit", func() error { return t.Tx.Commit() })
}

func (t *Transaction) Rollback(ctx context.Context) error {
	return t.finish(ctx, "roll back", func() error { return t.Tx.Rollback() })
}

func (t *Transaction) finish(ctx context.Context, action string, end func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return nil
	}
	t.done = true

	if err := end(); err != nil {
		t.logger.WithContext(ctx).WithError(err).Errorf("Failed to %s transaction", action)
		return fmt.Errorf("failed to %s transaction: %w", action, err)
	}
	return nil
}
