package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"candle-signals/internal/logging"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
	log  *logging.Logger
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	l := logging.WithComponent("database")
	l.Info("Connected to PostgreSQL", "database", cfg.Database)

	return &DB{Pool: pool, log: l}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.log.Info("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.log.Info("Running database migrations")

	migrations := []string{
		// One row per completed signal scan
		`CREATE TABLE IF NOT EXISTS signal_snapshots (
			id BIGSERIAL PRIMARY KEY,
			scan_id UUID NOT NULL UNIQUE,
			interval VARCHAR(4) NOT NULL,
			start_time BIGINT,
			end_time BIGINT,
			impact_filter TEXT[] NOT NULL DEFAULT '{}',
			symbols_scanned INTEGER NOT NULL,
			symbols_failed INTEGER NOT NULL DEFAULT 0,
			group_count INTEGER NOT NULL,
			duration_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_snapshots_interval_created ON signal_snapshots(interval, created_at DESC)`,

		// Pattern groups of a snapshot, in insertion order
		`CREATE TABLE IF NOT EXISTS signal_groups (
			id BIGSERIAL PRIMARY KEY,
			snapshot_id BIGINT NOT NULL REFERENCES signal_snapshots(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			pattern_id VARCHAR(16) NOT NULL,
			pattern VARCHAR(100) NOT NULL,
			future_potential VARCHAR(10) NOT NULL,
			impact VARCHAR(10) NOT NULL,
			matched_symbols TEXT[] NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signal_groups_snapshot ON signal_groups(snapshot_id, position)`,
	}

	for _, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	db.log.Info("Database migrations completed")
	return nil
}
