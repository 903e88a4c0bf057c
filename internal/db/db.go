package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"doodlesync/internal/kv"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var log = logrus.WithField("component", "db")

// DB is a PostgreSQL-backed kv.Store.
type DB struct {
	conn *sql.DB
}

var _ kv.Store = (*DB)(nil)

func Connect(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	log.Info("connected to PostgreSQL")
	return &DB{conn: conn}, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) Ping() error {
	return d.conn.Ping()
}

func (d *DB) Migrate() error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations dir: %w", err)
	}

	for _, entry := range entries {
		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}
		if _, err := d.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", entry.Name(), err)
		}
		log.WithField("migration", entry.Name()).Info("applied migration")
	}
	return nil
}

func (d *DB) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := d.conn.QueryRowContext(ctx,
		`SELECT value FROM replica_state WHERE key = $1`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting %s: %w", key, err)
	}
	return value, nil
}

func (d *DB) Set(ctx context.Context, key string, value []byte) error {
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO replica_state (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

func (d *DB) Delete(ctx context.Context, key string) error {
	if _, err := d.conn.ExecContext(ctx, `DELETE FROM replica_state WHERE key = $1`, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}
