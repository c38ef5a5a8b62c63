package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TxFunc runs inside a transaction using exec for every statement.
type TxFunc func(ctx context.Context, exec sqlx.ExtContext) error

// TxManager opens transactions at a fixed isolation level.
type TxManager struct {
	db        *sqlx.DB
	isolation sql.IsolationLevel
}

// NewTxManager constructs a TxManager. A zero isolation falls back to serializable.
func NewTxManager(db *sqlx.DB, isolation sql.IsolationLevel) *TxManager {
	if isolation == sql.LevelDefault {
		isolation = sql.LevelSerializable
	}
	return &TxManager{db: db, isolation: isolation}
}

// WithTx commits when fn returns nil and rolls back on error or panic.
func (m *TxManager) WithTx(ctx context.Context, fn TxFunc) (err error) {
	tx, err := m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: m.isolation})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
