package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx and keeps documents in one table.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults and ensures the
// documents table exists.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	d := &DB{Client: db}
	if err := d.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

func (d *DB) migrate(ctx context.Context) error {
	_, err := d.Client.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS rollcall_documents (
			key        TEXT PRIMARY KEY,
			data       TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// Load returns the document stored under key.
func (d *DB) Load(ctx context.Context, key string) ([]byte, error) {
	var data string
	err := d.Client.QueryRowContext(ctx, `SELECT data FROM rollcall_documents WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

// Save upserts the document under key.
func (d *DB) Save(ctx context.Context, key string, data []byte) error {
	_, err := d.Client.ExecContext(ctx, `
		INSERT INTO rollcall_documents (key, data)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`, key, string(data))
	return err
}

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error {
	if d == nil || d.Client == nil {
		return errors.New("db not configured")
	}
	return d.Client.PingContext(ctx)
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
