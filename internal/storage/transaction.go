package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/multierr"
)

type ctxKey string

const txKey ctxKey = "tx"

// WithTransaction runs fn inside a transaction stored in the context, so
// wrapper calls made with that context join it. Nested calls reuse the
// outer transaction.
func (w *Wrapper) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	return w.inTx(ctx, func(tx *sqlx.Tx) error {
		return fn(context.WithValue(ctx, txKey, tx))
	})
}

func txFromContext(ctx context.Context) *sqlx.Tx {
	tx, _ := ctx.Value(txKey).(*sqlx.Tx)
	return tx
}

// inTx runs fn in the context's transaction if there is one, otherwise in a
// new transaction that is committed when fn succeeds and rolled back when it
// fails or panics.
func (w *Wrapper) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	if tx := txFromContext(ctx); tx != nil {
		return w.classify(fn(tx))
	}

	tx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ErrConnection, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			err = multierr.Append(err, fmt.Errorf("rollback transaction: %w", rbErr))
		}
		return w.classify(err)
	}

	if err := tx.Commit(); err != nil {
		return w.classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// classify tags engine constraint failures with ErrConstraint.
func (w *Wrapper) classify(err error) error {
	if err == nil || errors.Is(err, ErrConstraint) {
		return err
	}
	if w.dialect.IsConstraintViolation(err) {
		return fmt.Errorf("%w: %w", ErrConstraint, err)
	}
	return err
}
