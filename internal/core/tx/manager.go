// Package tx defines the transaction contract domain services depend on.
// The PostgreSQL implementation lives in infrastructure/storage/postgres.
package tx

import (
	"context"
	"errors"
)

// ErrConflict marks a transaction that lost a serialization race or a
// deadlock and ran out of retries.
var ErrConflict = errors.New("transaction conflict")

// Manager runs functions inside database transactions.
type Manager interface {
	// RunInTransaction executes fn within a transaction. A transaction
	// already present in ctx is reused. fn's error rolls back.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// RunInSavepoint executes fn under a savepoint of the transaction in
	// ctx, so its failure rolls back only fn's writes. Without an
	// enclosing transaction it behaves like RunInTransaction.
	RunInSavepoint(ctx context.Context, fn func(ctx context.Context) error) error
}

// IsConflict reports whether err is a retry-exhausted transaction conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
