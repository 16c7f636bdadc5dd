package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/reunite/internal/database"
	"github.com/lib/pq"
)

// AlertRepository stores alert records and enforces the per-identity cooldown.
type AlertRepository struct {
	pool *Pool
}

// NewAlertRepository creates a new alert repository.
func NewAlertRepository(pool *Pool) *AlertRepository {
	return &AlertRepository{pool: pool}
}

const alertColumns = `id, identity_id, evidence_id, sent_at, reviewed, dismissed, dispatched_at`

// CreateIfCooledDown inserts the alert only when no alert of the same identity
// was sent within window before alert.SentAt. A transaction-scoped advisory lock
// keyed on the identity serializes concurrent callers, so the existence check
// and the insert observe the same state.
func (r *AlertRepository) CreateIfCooledDown(
	ctx context.Context, alert *database.AlertRecord, window time.Duration,
) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, alert.IdentityID); err != nil {
		return false, fmt.Errorf("lock identity %s: %w", alert.IdentityID, err)
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO alerts (identity_id, evidence_id, sent_at)
		SELECT $1, $2, $3
		WHERE NOT EXISTS (
			SELECT 1 FROM alerts
			WHERE identity_id = $1
			  AND sent_at > $3::timestamptz - make_interval(secs => $4)
		)
		RETURNING id
	`, alert.IdentityID, alert.EvidenceID, alert.SentAt, window.Seconds()).Scan(&alert.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit alert: %w", err)
	}
	return true, nil
}

// LatestAlert returns the most recent alert of an identity, nil if none.
func (r *AlertRepository) LatestAlert(ctx context.Context, identityID string) (*database.AlertRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE identity_id = $1
		ORDER BY sent_at DESC, id DESC
		LIMIT 1
	`, identityID)
	return scanOptionalAlert(row)
}

// GetAlert retrieves an alert by ID, including dismissed ones.
func (r *AlertRepository) GetAlert(ctx context.Context, id int64) (*database.AlertRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	return scanOptionalAlert(row)
}

// ListAlerts returns alerts of the given identities, newest first.
func (r *AlertRepository) ListAlerts(
	ctx context.Context, identityIDs []string, includeDismissed bool, limit int,
) ([]database.AlertRecord, error) {
	if len(identityIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE identity_id = ANY($1)
		  AND ($2 OR NOT dismissed)
		ORDER BY sent_at DESC, id DESC
		LIMIT $3
	`, pq.Array(identityIDs), includeDismissed, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// CountUnread counts alerts that are neither reviewed nor dismissed.
func (r *AlertRepository) CountUnread(ctx context.Context, identityIDs []string) (int, error) {
	if len(identityIDs) == 0 {
		return 0, nil
	}
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM alerts
		WHERE identity_id = ANY($1) AND NOT reviewed AND NOT dismissed
	`, pq.Array(identityIDs)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unread alerts: %w", err)
	}
	return n, nil
}

// SetReviewed flags an alert as reviewed.
func (r *AlertRepository) SetReviewed(ctx context.Context, id int64) error {
	return r.setFlag(ctx, id, `UPDATE alerts SET reviewed = TRUE WHERE id = $1`)
}

// SetDismissed soft-deletes an alert.
func (r *AlertRepository) SetDismissed(ctx context.Context, id int64) error {
	return r.setFlag(ctx, id, `UPDATE alerts SET dismissed = TRUE WHERE id = $1`)
}

func (r *AlertRepository) setFlag(ctx context.Context, id int64, query string) error {
	res, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return database.ErrNotFound
	}
	return nil
}

// MarkDispatched records delivery. Returns false when the alert was already marked
// or does not exist.
func (r *AlertRepository) MarkDispatched(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := r.pool.Exec(ctx,
		`UPDATE alerts SET dispatched_at = $2 WHERE id = $1 AND dispatched_at IS NULL`, id, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListUndispatched returns alerts never delivered, oldest first.
func (r *AlertRepository) ListUndispatched(ctx context.Context, limit int) ([]database.AlertRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+alertColumns+`
		FROM alerts
		WHERE dispatched_at IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query undispatched alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

func scanAlert(scanner interface{ Scan(...any) error }) (database.AlertRecord, error) {
	var a database.AlertRecord
	var dispatched sql.NullTime
	err := scanner.Scan(&a.ID, &a.IdentityID, &a.EvidenceID, &a.SentAt, &a.Reviewed, &a.Dismissed, &dispatched)
	if err != nil {
		return a, err
	}
	if dispatched.Valid {
		t := dispatched.Time
		a.DispatchedAt = &t
	}
	return a, nil
}

func scanOptionalAlert(row *sql.Row) (*database.AlertRecord, error) {
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}
	return &a, nil
}

func scanAlerts(rows *sql.Rows) ([]database.AlertRecord, error) {
	var alerts []database.AlertRecord
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}
