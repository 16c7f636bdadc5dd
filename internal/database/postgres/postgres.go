package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/reunite/internal/config"
	"github.com/kozaktomas/reunite/internal/geo"
	_ "github.com/lib/pq"
)

// Pool manages a PostgreSQL connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new PostgreSQL connection pool.
func NewPool(cfg *config.DatabaseConfig) (*Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Pool{db: db}, nil
}

// DB returns the underlying sql.DB for direct access.
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// Ping verifies the connection is alive.
func (p *Pool) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// QueryRow executes a query that returns a single row.
func (p *Pool) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return p.db.QueryRowContext(ctx, query, args...)
}

// Query executes a query that returns rows.
func (p *Pool) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// Exec executes a query that doesn't return rows.
func (p *Pool) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	return result, nil
}

// BeginTx starts a transaction.
func (p *Pool) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := p.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return tx, nil
}

// Open connects to PostgreSQL, applies pending migrations and returns a Store
// backed by the new pool.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Store, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}

	pool, err := NewPool(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if cfg.EmbeddingDim > 0 {
		if err := pool.PinEmbeddingDim(ctx, cfg.EmbeddingDim); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return NewStore(pool), nil
}

// PinEmbeddingDim declares the gallery vector column as vector(dim). It fails
// when stored entries have another dimension.
func (p *Pool) PinEmbeddingDim(ctx context.Context, dim int) error {
	var current int
	err := p.db.QueryRowContext(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = 'gallery_entries'::regclass AND attname = 'embedding'`).Scan(&current)
	if err != nil {
		return fmt.Errorf("read gallery vector dimension: %w", err)
	}
	if current == dim {
		return nil
	}
	stmt := fmt.Sprintf("ALTER TABLE gallery_entries ALTER COLUMN embedding TYPE vector(%d)", dim)
	if _, err := p.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("set gallery vector dimension to %d: %w", dim, err)
	}
	return nil
}

// nullablePoint splits an optional point into nullable columns.
func nullablePoint(p *geo.Point) (sql.NullFloat64, sql.NullFloat64) {
	if p == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: p.Lat, Valid: true}, sql.NullFloat64{Float64: p.Lon, Valid: true}
}

// pointFromNullable is the inverse of nullablePoint. Both columns must be set.
func pointFromNullable(lat, lon sql.NullFloat64) *geo.Point {
	if !lat.Valid || !lon.Valid {
		return nil
	}
	return &geo.Point{Lat: lat.Float64, Lon: lon.Float64}
}
