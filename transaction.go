package ormion

import (
	"context"
	"database/sql"
	"time"
)

// Tx is a transaction on the primary.
type Tx struct {
	tx   *sql.Tx
	db   *DB
	done bool
}

// Begin starts a transaction on the primary.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	start := time.Now()
	tx, err := db.resolver.Primary().BeginTx(ctx, nil)
	db.metrics.observe("BEGIN", start, err)
	if err != nil {
		return nil, wrapQueryError("BEGIN", "", nil, err)
	}
	return &Tx{tx: tx, db: db}, nil
}

// Transaction runs fn inside a transaction. The transaction is committed when
// fn returns nil and rolled back when it returns an error or panics.
func (db *DB) Transaction(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// Commit commits the transaction.
func (tx *Tx) Commit() error {
	if tx.done {
		return sql.ErrTxDone
	}
	tx.done = true

	start := time.Now()
	err := tx.tx.Commit()
	tx.db.metrics.observe("COMMIT", start, err)
	if err != nil {
		return wrapQueryError("COMMIT", "", nil, err)
	}
	return nil
}

// Rollback aborts the transaction. Rolling back a finished transaction is a
// no-op.
func (tx *Tx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true

	start := time.Now()
	err := tx.tx.Rollback()
	tx.db.metrics.observe("ROLLBACK", start, err)
	if err != nil {
		tx.db.logger.Warn("rollback failed", "error", err)
		return wrapQueryError("ROLLBACK", "", nil, err)
	}
	return nil
}

// Exec runs a statement inside the transaction.
func (tx *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tx.session().exec(ctx, operationOf(query), query, args...)
}

// Query runs a query inside the transaction and buffers its rows.
func (tx *Tx) Query(ctx context.Context, query string, args ...any) (*Result, error) {
	return tx.session().query(ctx, operationOf(query), query, args...)
}

func (tx *Tx) session() session {
	return session{ex: tx.tx, db: tx.db}
}
