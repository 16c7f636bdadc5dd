package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/reunite/internal/database"
	"github.com/pgvector/pgvector-go"
)

// GalleryRepository stores enrollment embeddings in a pgvector column.
type GalleryRepository struct {
	pool *Pool
}

// NewGalleryRepository creates a new gallery repository.
func NewGalleryRepository(pool *Pool) *GalleryRepository {
	return &GalleryRepository{pool: pool}
}

const galleryColumns = `id, identity_id, embedding, provenance, image_count, failed_count, created_at`

// ListLatest returns the newest entry of every enrolled identity.
func (r *GalleryRepository) ListLatest(ctx context.Context) ([]database.GalleryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ON (identity_id) `+galleryColumns+`
		FROM gallery_entries
		ORDER BY identity_id, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query latest gallery entries: %w", err)
	}
	defer rows.Close()
	return scanGalleryEntries(rows)
}

// ListByIdentity returns all entries of one identity, newest first.
func (r *GalleryRepository) ListByIdentity(ctx context.Context, identityID string) ([]database.GalleryEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+galleryColumns+`
		FROM gallery_entries
		WHERE identity_id = $1
		ORDER BY id DESC
	`, identityID)
	if err != nil {
		return nil, fmt.Errorf("query gallery entries: %w", err)
	}
	defer rows.Close()
	return scanGalleryEntries(rows)
}

// Count returns the number of enrolled identities.
func (r *GalleryRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT identity_id) FROM gallery_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count gallery: %w", err)
	}
	return n, nil
}

// AddEntry appends a gallery entry.
func (r *GalleryRepository) AddEntry(ctx context.Context, entry *database.GalleryEntry) error {
	vec := pgvector.NewVector(entry.Embedding)
	err := r.pool.QueryRow(ctx, `
		INSERT INTO gallery_entries (identity_id, embedding, provenance, image_count, failed_count)
		VALUES ($1, $2::vector, $3, $4, $5)
		RETURNING id, created_at
	`, entry.IdentityID, vec, entry.Provenance, entry.ImageCount, entry.FailedCount).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert gallery entry: %w", err)
	}
	return nil
}

func scanGalleryEntries(rows *sql.Rows) ([]database.GalleryEntry, error) {
	var entries []database.GalleryEntry
	for rows.Next() {
		var e database.GalleryEntry
		var vec pgvector.Vector
		if err := rows.Scan(&e.ID, &e.IdentityID, &vec, &e.Provenance,
			&e.ImageCount, &e.FailedCount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan gallery entry: %w", err)
		}
		e.Embedding = vec.Slice()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gallery entries: %w", err)
	}
	return entries, nil
}
