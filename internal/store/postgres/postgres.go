// Package postgres is the pgx storage driver.
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/exam/internal/errors"
	"github.com/victornm/exam/internal/store"
)

const codeUniqueViolation = "23505"

// dbtx is satisfied by both the pool and a transaction.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	*queries

	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{
		queries: &queries{db: pool},
		pool:    pool,
	}
}

func (s *Store) WithTransaction(ctx context.Context, fn func(w store.Work) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !stderrors.Is(rbErr, pgx.ErrTxClosed) {
			err = stderrors.Join(err, rbErr)
		}
	}()

	if err = fn(&queries{db: tx}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

type queries struct {
	db dbtx
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

func alreadyExists(err error, format string, args ...any) error {
	return errors.New(errors.CodeAlreadyExists, errors.WithMessagef(format, args...), errors.WithCause(err))
}

func noRows(err error) bool {
	return stderrors.Is(err, pgx.ErrNoRows)
}
