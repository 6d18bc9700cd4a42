// Package database holds the server's Postgres handle. It owns the users,
// auth_sessions and documents tables, applies the embedded migrations at
// startup and runs multi-statement writes such as registration in one
// transaction.
package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/staybook/hotel-server-go/internal/config"
)

var tracer = otel.Tracer("github.com/staybook/hotel-server-go/internal/database")

type DB struct {
	*sqlx.DB
}

// New wraps an open handle. Connect is the usual way in.
func New(db *sqlx.DB) *DB {
	return &DB{db}
}

// Connect opens the pool sized for the API server and checks that Postgres
// answers within config.DBPingTimeout.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(config.DBMaxOpenConns)
	db.SetMaxIdleConns(config.DBMaxIdleConns)
	db.SetConnMaxLifetime(config.DBConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, config.DBPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return New(db), nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// TxFunc does the work of one transaction. Repositories join it through
// their WithTx(tx) constructors.
type TxFunc func(tx *sqlx.Tx) error

// WithTx commits when fn succeeds and rolls back when it fails or panics.
func (db *DB) WithTx(ctx context.Context, fn TxFunc) (err error) {
	ctx, span := tracer.Start(ctx, "database.WithTx")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
