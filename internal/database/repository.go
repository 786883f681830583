package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrSnapshotNotFound is returned when no snapshot matches
var ErrSnapshotNotFound = errors.New("signal snapshot not found")

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// SaveSignalSnapshot saves a snapshot and its groups in a transaction
func (r *Repository) SaveSignalSnapshot(ctx context.Context, snap *SignalSnapshot) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO signal_snapshots (
			scan_id, interval, start_time, end_time, impact_filter,
			symbols_scanned, symbols_failed, group_count, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	err = tx.QueryRow(ctx, query,
		snap.ScanID, snap.Interval, snap.StartTime, snap.EndTime, snap.ImpactFilter,
		snap.SymbolsScanned, snap.SymbolsFailed, len(snap.Groups), snap.DurationMs,
	).Scan(&snap.ID, &snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert signal snapshot: %w", err)
	}
	snap.GroupCount = len(snap.Groups)

	if len(snap.Groups) > 0 {
		batch := &pgx.Batch{}
		for i, g := range snap.Groups {
			batch.Queue(`
				INSERT INTO signal_groups (
					snapshot_id, position, pattern_id, pattern, future_potential, impact, matched_symbols
				) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				snap.ID, i, g.PatternID, g.Pattern, g.FuturePotential, g.Impact, g.MatchedSymbols,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert signal groups: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListSignalSnapshots returns the newest snapshots for an interval, groups
// included. An empty interval lists all intervals.
func (r *Repository) ListSignalSnapshots(ctx context.Context, interval string, limit int) ([]SignalSnapshot, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, scan_id, interval, start_time, end_time, impact_filter,
		       symbols_scanned, symbols_failed, group_count, duration_ms, created_at
		FROM signal_snapshots
		WHERE ($1 = '' OR interval = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []SignalSnapshot
	for rows.Next() {
		var s SignalSnapshot
		if err := rows.Scan(
			&s.ID, &s.ScanID, &s.Interval, &s.StartTime, &s.EndTime, &s.ImpactFilter,
			&s.SymbolsScanned, &s.SymbolsFailed, &s.GroupCount, &s.DurationMs, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan signal snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range snapshots {
		groups, err := r.getSignalGroups(ctx, snapshots[i].ID)
		if err != nil {
			return nil, err
		}
		snapshots[i].Groups = groups
	}
	return snapshots, nil
}

// GetSignalSnapshot returns one snapshot by scan id
func (r *Repository) GetSignalSnapshot(ctx context.Context, scanID string) (*SignalSnapshot, error) {
	query := `
		SELECT id, scan_id, interval, start_time, end_time, impact_filter,
		       symbols_scanned, symbols_failed, group_count, duration_ms, created_at
		FROM signal_snapshots
		WHERE scan_id = $1
	`
	s := &SignalSnapshot{}
	err := r.db.Pool.QueryRow(ctx, query, scanID).Scan(
		&s.ID, &s.ScanID, &s.Interval, &s.StartTime, &s.EndTime, &s.ImpactFilter,
		&s.SymbolsScanned, &s.SymbolsFailed, &s.GroupCount, &s.DurationMs, &s.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get signal snapshot: %w", err)
	}

	s.Groups, err = r.getSignalGroups(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// PruneSignalSnapshots keeps the newest keep snapshots per interval
func (r *Repository) PruneSignalSnapshots(ctx context.Context, keep int) (int64, error) {
	query := `
		DELETE FROM signal_snapshots
		WHERE id IN (
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY interval ORDER BY created_at DESC) AS rn
				FROM signal_snapshots
			) ranked
			WHERE rn > $1
		)
	`
	tag, err := r.db.Pool.Exec(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune signal snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) getSignalGroups(ctx context.Context, snapshotID int64) ([]SignalGroupRecord, error) {
	query := `
		SELECT position, pattern_id, pattern, future_potential, impact, matched_symbols
		FROM signal_groups
		WHERE snapshot_id = $1
		ORDER BY position
	`
	rows, err := r.db.Pool.Query(ctx, query, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("failed to query signal groups: %w", err)
	}
	defer rows.Close()

	groups := []SignalGroupRecord{}
	for rows.Next() {
		var g SignalGroupRecord
		if err := rows.Scan(&g.Position, &g.PatternID, &g.Pattern, &g.FuturePotential, &g.Impact, &g.MatchedSymbols); err != nil {
			return nil, fmt.Errorf("failed to scan signal group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
