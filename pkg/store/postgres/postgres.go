// Package postgres implements [store.TransactionalStore] on PostgreSQL via
// the platform postgres client.
//
// Flat, frequently-filtered fields map to scalar columns; nested blobs
// (token policies, auth method material, role lists) are stored as JSONB.
// Durations are stored as BIGINT nanoseconds.
//
// Every method works against a querier that is either the pooled client or
// a pgx transaction, so the same code serves both direct calls and
// [Store.RunInTransaction].
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	pgclient "github.com/secretforge/secretforge-core/pkg/clients/postgres"
	sferr "github.com/secretforge/secretforge-core/pkg/errors"
	"github.com/secretforge/secretforge-core/pkg/store"
)

// uniqueViolation is the PostgreSQL error code for unique constraint
// violations.
const uniqueViolation = "23505"

// querier is the subset of query operations shared by the pooled client
// and a pgx transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var (
	_ querier = (*pgclient.Client)(nil)
	_ querier = (pgx.Tx)(nil)
)

// Store is the PostgreSQL data access layer.
type Store struct {
	client *pgclient.Client
	q      querier
}

var (
	_ store.Store    = (*Store)(nil)
	_ store.TxRunner = (*Store)(nil)
)

// New creates a Store on top of a connected postgres client.
func New(client *pgclient.Client) *Store {
	return &Store{client: client, q: client}
}

// RunInTransaction runs fn against a transactional view of the store. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, st store.Store) error) error {
	tx, err := s.client.Begin(ctx)
	if err != nil {
		return err
	}
	// Rollback after a successful commit is a no-op in pgx.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &Store{client: s.client, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return sferr.Wrap(err, sferr.CodeInternalDatabase,
			"postgres store: commit failed")
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation, through any wrapping.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// dbErr normalizes an infrastructure error. Errors already classified by
// the client layer pass through; raw pgx errors (the transaction path) are
// wrapped as database errors.
func dbErr(err error, message string) error {
	if err == nil {
		return nil
	}
	var sfErr *sferr.Error
	if errors.As(err, &sfErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return sferr.Wrap(err, sferr.CodeTimeoutDatabase, message)
	}
	return sferr.Wrap(err, sferr.CodeInternalDatabase, message)
}
