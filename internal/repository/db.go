package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool limits of the state store.
const (
	kvMaxConns = 10
	kvMinConns = 2
)

// OpenPostgresKV connects to databaseURL, brings the kv_entries schema up
// to date from schema and returns the store with its close func.
func OpenPostgresKV(ctx context.Context, databaseURL string, schema fs.FS) (*PostgresKV, func(), error) {
	cfg, err := kvPoolConfig(databaseURL)
	if err != nil {
		return nil, nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open state store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("reach state store: %w", err)
	}

	if err := migrateKV(databaseURL, schema); err != nil {
		pool.Close()
		return nil, nil, err
	}
	slog.Info("postgres state store ready", "max_conns", cfg.MaxConns)
	return NewPostgresKV(pool), pool.Close, nil
}

func kvPoolConfig(databaseURL string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse state store url: %w", err)
	}
	cfg.MaxConns = kvMaxConns
	cfg.MinConns = kvMinConns
	return cfg, nil
}

func migrateKV(databaseURL string, schema fs.FS) error {
	src, err := iofs.New(schema, ".")
	if err != nil {
		return fmt.Errorf("read kv schema: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("prepare kv schema migration: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate kv schema: %w", err)
	}

	version, dirty, _ := m.Version()
	slog.Info("kv schema up to date", "version", version, "dirty", dirty)
	return nil
}
