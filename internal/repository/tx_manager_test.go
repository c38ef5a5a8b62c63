package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxManagerCommits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	manager := NewTxManager(db, sql.LevelSerializable)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE enrollments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := manager.WithTx(context.Background(), func(ctx context.Context, exec sqlx.ExtContext) error {
		_, err := exec.ExecContext(ctx, "UPDATE enrollments SET status = $1", "ACTIVE")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManagerRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	manager := NewTxManager(db, 0)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := manager.WithTx(context.Background(), func(ctx context.Context, exec sqlx.ExtContext) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManagerRollsBackOnPanic(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	manager := NewTxManager(db, sql.LevelRepeatableRead)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = manager.WithTx(context.Background(), func(ctx context.Context, exec sqlx.ExtContext) error {
			panic("unexpected")
		})
	})
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManagerCommitFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	manager := NewTxManager(db, sql.LevelSerializable)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("could not serialize access"))

	err := manager.WithTx(context.Background(), func(ctx context.Context, exec sqlx.ExtContext) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit transaction")
}
