package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/reunite/internal/database"
	"github.com/lib/pq"
)

// EvidenceRepository stores evidence records. Rows are never updated.
type EvidenceRepository struct {
	pool *Pool
}

// NewEvidenceRepository creates a new evidence repository.
func NewEvidenceRepository(pool *Pool) *EvidenceRepository {
	return &EvidenceRepository{pool: pool}
}

const evidenceColumns = `id, identity_id, image_key, bbox, similarity, latitude, longitude, captured_at`

// AddEvidence appends a record and sets its ID.
func (r *EvidenceRepository) AddEvidence(ctx context.Context, record *database.EvidenceRecord) error {
	lat, lon := nullablePoint(record.Location)
	err := r.pool.QueryRow(ctx, `
		INSERT INTO evidence (identity_id, image_key, bbox, similarity, latitude, longitude, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, record.IdentityID, record.ImageKey, pq.Array(record.BBox.Slice()), record.Similarity,
		lat, lon, record.CapturedAt).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("insert evidence: %w", err)
	}
	return nil
}

// GetEvidence retrieves a record by ID, returns nil if not found.
func (r *EvidenceRepository) GetEvidence(ctx context.Context, id int64) (*database.EvidenceRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+evidenceColumns+` FROM evidence WHERE id = $1`, id)
	rec, err := scanEvidence(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListEvidence returns the newest records of one identity.
func (r *EvidenceRepository) ListEvidence(
	ctx context.Context, identityID string, limit int,
) ([]database.EvidenceRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+evidenceColumns+`
		FROM evidence
		WHERE identity_id = $1
		ORDER BY captured_at DESC, id DESC
		LIMIT $2
	`, identityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query evidence: %w", err)
	}
	defer rows.Close()

	var records []database.EvidenceRecord
	for rows.Next() {
		rec, err := scanEvidence(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence: %w", err)
	}
	return records, nil
}

// CountEvidence returns the number of records for one identity.
func (r *EvidenceRepository) CountEvidence(ctx context.Context, identityID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM evidence WHERE identity_id = $1`, identityID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count evidence: %w", err)
	}
	return n, nil
}

func scanEvidence(scanner interface{ Scan(...any) error }) (database.EvidenceRecord, error) {
	var rec database.EvidenceRecord
	var bbox pq.Float64Array
	var lat, lon sql.NullFloat64
	err := scanner.Scan(&rec.ID, &rec.IdentityID, &rec.ImageKey, &bbox, &rec.Similarity, &lat, &lon, &rec.CapturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scan evidence: %w", err)
	}
	rec.BBox = database.BBoxFromSlice(bbox)
	rec.Location = pointFromNullable(lat, lon)
	return rec, nil
}
