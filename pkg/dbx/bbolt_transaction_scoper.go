package dbx

import (
	"context"
	"errors"

	"go.etcd.io/bbolt"
)

type contextKey struct{ name string }

var bboltTxKey = contextKey{name: "bboltTxKey"}

type bboltTransactionScoper struct {
	db *bbolt.DB
}

func NewBBoltTransactionScoper(db *bbolt.DB) TransactionScoper {
	return &bboltTransactionScoper{
		db: db,
	}
}

func (bts *bboltTransactionScoper) InTransactionScope(ctx context.Context, transactionScope func(ctx context.Context) error) error {
	_, err := InBBoltTransactionScopeWithResult(ctx, bts.db, func(ctx context.Context, _ *bbolt.Tx) (struct{}, error) {
		return struct{}{}, transactionScope(ctx)
	})
	return err
}

// InBBoltTransactionScopeWithResult runs transactionScope inside the writable
// transaction carried by ctx, or inside a new one that is committed when
// transactionScope succeeds and rolled back otherwise.
func InBBoltTransactionScopeWithResult[T any](ctx context.Context, db *bbolt.DB, transactionScope func(ctx context.Context, tx *bbolt.Tx) (T, error)) (result T, err error) {
	if tx := txFromContext(ctx); tx != nil {
		return transactionScope(ctx, tx)
	}

	tx, err := db.Begin(true)
	if err != nil {
		return result, err
	}
	defer func() {
		err = finish(tx, err)
	}()

	return transactionScope(context.WithValue(ctx, bboltTxKey, tx), tx)
}

// InBBoltViewScopeWithResult is the read-only counterpart. A transaction
// already carried by ctx is reused, so reads inside a write scope observe its
// uncommitted changes.
func InBBoltViewScopeWithResult[T any](ctx context.Context, db *bbolt.DB, viewScope func(tx *bbolt.Tx) (T, error)) (result T, err error) {
	if tx := txFromContext(ctx); tx != nil {
		return viewScope(tx)
	}

	err = db.View(func(tx *bbolt.Tx) error {
		result, err = viewScope(tx)
		return err
	})
	return result, err
}

func txFromContext(ctx context.Context) *bbolt.Tx {
	tx, _ := ctx.Value(bboltTxKey).(*bbolt.Tx)
	return tx
}

func finish(tx *bbolt.Tx, err error) error {
	if err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return errors.Join(err, rollbackErr)
		}
		return err
	}
	return tx.Commit()
}
