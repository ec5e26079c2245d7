package database

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxScope_NestedRollbackKeepsOuterWrites(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ctx := context.Background()
	scope := NewTxScope(mock)

	mock.ExpectExec("BEGIN").WillReturnResult(pgxmock.NewResult("BEGIN", 0))
	mock.ExpectExec("INSERT INTO items").WithArgs("r1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("SAVEPOINT sp_2").WillReturnResult(pgxmock.NewResult("SAVEPOINT", 0))
	mock.ExpectExec("INSERT INTO items").WithArgs("r2").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT sp_2").
		WillReturnResult(pgxmock.NewResult("ROLLBACK", 0))
	mock.ExpectExec("COMMIT").WillReturnResult(pgxmock.NewResult("COMMIT", 0))

	require.NoError(t, scope.Begin(ctx))
	_, err = scope.Querier().Exec(ctx, "INSERT INTO items (name) VALUES ($1)", "r1")
	require.NoError(t, err)

	require.NoError(t, scope.Begin(ctx))
	assert.Equal(t, 2, scope.Depth())
	_, err = scope.Querier().Exec(ctx, "INSERT INTO items (name) VALUES ($1)", "r2")
	require.NoError(t, err)

	// Inner rollback undoes r2 only; outer commit keeps r1.
	require.NoError(t, scope.Rollback(ctx))
	assert.Equal(t, 1, scope.Depth())
	require.NoError(t, scope.Commit(ctx))
	assert.Equal(t, 0, scope.Depth())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxScope_ThreeLevels(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ctx := context.Background()
	scope := NewTxScope(mock)

	mock.ExpectExec("BEGIN").WillReturnResult(pgxmock.NewResult("BEGIN", 0))
	mock.ExpectExec("SAVEPOINT sp_2").WillReturnResult(pgxmock.NewResult("SAVEPOINT", 0))
	mock.ExpectExec("SAVEPOINT sp_3").WillReturnResult(pgxmock.NewResult("SAVEPOINT", 0))
	mock.ExpectExec("RELEASE SAVEPOINT sp_3").WillReturnResult(pgxmock.NewResult("RELEASE", 0))
	mock.ExpectExec("ROLLBACK TO SAVEPOINT sp_2").WillReturnResult(pgxmock.NewResult("ROLLBACK", 0))
	mock.ExpectExec("COMMIT").WillReturnResult(pgxmock.NewResult("COMMIT", 0))

	require.NoError(t, scope.Begin(ctx))
	require.NoError(t, scope.Begin(ctx))
	require.NoError(t, scope.Begin(ctx))
	require.NoError(t, scope.Commit(ctx))
	require.NoError(t, scope.Rollback(ctx))
	require.NoError(t, scope.Commit(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxScope_UnbalancedCommitAndRollback(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ctx := context.Background()
	scope := NewTxScope(mock)

	// No expectations registered: neither call may touch storage.
	assert.ErrorIs(t, scope.Commit(ctx), ErrUnbalancedTransaction)
	assert.ErrorIs(t, scope.Rollback(ctx), ErrUnbalancedTransaction)
	assert.Equal(t, 0, scope.Depth())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxScope_ReleaseRollsBackOpenTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ctx := context.Background()
	scope := NewTxScope(mock)

	mock.ExpectExec("BEGIN").WillReturnResult(pgxmock.NewResult("BEGIN", 0))
	mock.ExpectExec("ROLLBACK").WillReturnResult(pgxmock.NewResult("ROLLBACK", 0))

	require.NoError(t, scope.Begin(ctx))
	scope.Release()
	assert.Equal(t, 0, scope.Depth())

	assert.NoError(t, mock.ExpectationsWereMet())
}
