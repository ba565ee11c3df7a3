package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

type Tx interface{}

// TransactionManager provides a thin abstraction to execute a function within
// a database transaction, passing the underlying transaction handle via `qx`.
//
// Use-case interfaces stay clean of storage types; repository methods accept
// `qx Tx` and detect a live transaction implementation-side. Repositories
// MUST gracefully accept a nil qx (non-transactional path).
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, qx Tx) error) error
}
