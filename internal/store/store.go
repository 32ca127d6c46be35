package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// domainErrors pass through inTx unchanged.
var domainErrors = []error{
	ErrInsufficientBalance,
	ErrInvalidAmount,
	ErrNotFound,
	ErrUserNotFound,
	ErrRoundNotActive,
	ErrRoundNotDue,
	ErrLedgerWriteFailed,
}

// inTx runs fn in a read-committed transaction. Any failure other than a
// domain error is reported as ErrLedgerWriteFailed and nothing is kept.
func (s *Store) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrLedgerWriteFailed, err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(tx); err != nil {
		return ledgerError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrLedgerWriteFailed, err)
	}
	return nil
}

func ledgerError(err error) error {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
}

func isCheckViolation(err error) bool {
	return pgErrorCode(err) == "23514"
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return ""
	}
	return pgErr.Code
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
