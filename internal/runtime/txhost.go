package runtime

import (
	"context"
	"database/sql"
	"fmt"
)

// TransactionHost runs a portal handler inside an atomic execution scope.
// The transactional strategy refuses to run without one; handlers lacking
// the transactional marker never touch it.
type TransactionHost interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// TransactionHostFunc adapts a function to the TransactionHost interface.
type TransactionHostFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func (f TransactionHostFunc) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}

type txContextKey struct{}

// TxFromContext extracts the transaction opened by SQLTransactionHost for
// the current handler invocation. Backend handlers use it to enlist their
// statements in the surrounding transaction.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*sql.Tx)
	return tx, ok
}

// SQLTransactionHost implements TransactionHost on a database/sql handle.
// Each transactional handler runs inside one BeginTx/Commit scope; the open
// transaction is reachable via TxFromContext. Any handler error or panic
// rolls the transaction back.
type SQLTransactionHost struct {
	db   *sql.DB
	opts *sql.TxOptions
}

// NewSQLTransactionHost wraps db. opts may be nil for driver defaults.
func NewSQLTransactionHost(db *sql.DB, opts *sql.TxOptions) *SQLTransactionHost {
	if db == nil {
		panic("portalflow: sql transaction host requires a database handle")
	}
	return &SQLTransactionHost{db: db, opts: opts}
}

func (h *SQLTransactionHost) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := h.db.BeginTx(ctx, h.opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txContextKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %w: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
