package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnbalancedTransaction is returned when Commit or Rollback is called on a
// scope with no open transaction. It signals a programming error in the
// caller and should abort the request.
var ErrUnbalancedTransaction = errors.New("unbalanced transaction: no open scope")

// TxManager hands out transaction scopes, each bound to its own pooled
// connection. Scopes are never shared between requests.
type TxManager struct {
	pool *pgxpool.Pool
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

// TxScope emulates nested transactions over a single connection. The first
// Begin opens a real transaction; inner Begins create savepoints named after
// the nesting depth, so an inner Rollback undoes only the innermost scope's
// writes while the outer scope stays committable.
type TxScope struct {
	conn    Querier
	release func()
	depth   int
}

// NewTxScope wraps an existing connection in a scope. Used by tests and by
// code that already holds a dedicated connection.
func NewTxScope(conn Querier) *TxScope {
	return &TxScope{conn: conn}
}

// Acquire checks a dedicated connection out of the pool and wraps it in a
// fresh scope. The caller must call Release when done.
func (m *TxManager) Acquire(ctx context.Context) (*TxScope, error) {
	conn, err := m.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	return &TxScope{conn: conn, release: conn.Release}, nil
}

// Querier exposes the scope's connection so repositories can run their
// statements inside the transaction.
func (s *TxScope) Querier() Querier {
	return s.conn
}

// Depth reports the current nesting depth. Zero means no transaction is open.
func (s *TxScope) Depth() int {
	return s.depth
}

func (s *TxScope) Begin(ctx context.Context) error {
	var err error
	if s.depth == 0 {
		_, err = s.conn.Exec(ctx, "BEGIN")
	} else {
		_, err = s.conn.Exec(ctx, fmt.Sprintf("SAVEPOINT sp_%d", s.depth+1))
	}
	if err != nil {
		return fmt.Errorf("begin (depth %d): %w", s.depth, err)
	}
	s.depth++
	return nil
}

func (s *TxScope) Commit(ctx context.Context) error {
	if s.depth == 0 {
		return ErrUnbalancedTransaction
	}
	var err error
	if s.depth == 1 {
		_, err = s.conn.Exec(ctx, "COMMIT")
	} else {
		_, err = s.conn.Exec(ctx, fmt.Sprintf("RELEASE SAVEPOINT sp_%d", s.depth))
	}
	if err != nil {
		// Depth is left unchanged so a deferred Rollback still runs.
		return fmt.Errorf("commit (depth %d): %w", s.depth, err)
	}
	s.depth--
	return nil
}

func (s *TxScope) Rollback(ctx context.Context) error {
	if s.depth == 0 {
		return ErrUnbalancedTransaction
	}
	var err error
	if s.depth == 1 {
		_, err = s.conn.Exec(ctx, "ROLLBACK")
	} else {
		_, err = s.conn.Exec(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT sp_%d", s.depth))
	}
	if err != nil {
		return fmt.Errorf("rollback (depth %d): %w", s.depth, err)
	}
	s.depth--
	return nil
}

// Release returns the connection to the pool. If the scope still has an open
// transaction (error or cancellation path skipped Commit), it is rolled back
// first with a background context so an aborted request cannot leak an open
// transaction.
func (s *TxScope) Release() {
	if s.depth > 0 {
		_, _ = s.conn.Exec(context.Background(), "ROLLBACK")
		s.depth = 0
	}
	if s.release != nil {
		s.release()
	}
}

// WithinTx runs fn inside a transaction on a dedicated connection. The
// transaction commits when fn returns nil and rolls back otherwise, on every
// exit path. fn may open nested scopes on the passed TxScope.
func (m *TxManager) WithinTx(ctx context.Context, fn func(scope *TxScope) error) error {
	scope, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer scope.Release()

	if err := scope.Begin(ctx); err != nil {
		return err
	}
	if err := fn(scope); err != nil {
		if rbErr := scope.Rollback(ctx); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return scope.Commit(ctx)
}
