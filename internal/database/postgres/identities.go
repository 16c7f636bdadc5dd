package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/reunite/internal/database"
)

// IdentityRepository provides PostgreSQL-backed identity storage.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

const identityColumns = `id, name, handler_email, contact_email, created_at`

// GetIdentity retrieves an identity by ID, returns nil if not found.
func (r *IdentityRepository) GetIdentity(ctx context.Context, id string) (*database.Identity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// ListIdentities returns all identities ordered by ID.
func (r *IdentityRepository) ListIdentities(ctx context.Context) ([]database.Identity, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()
	return scanIdentities(rows)
}

// ListIdentitiesByHandler returns identities assigned to one handler.
func (r *IdentityRepository) ListIdentitiesByHandler(
	ctx context.Context, handlerEmail string,
) ([]database.Identity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE LOWER(handler_email) = LOWER($1)
		ORDER BY id
	`, handlerEmail)
	if err != nil {
		return nil, fmt.Errorf("query identities by handler: %w", err)
	}
	defer rows.Close()
	return scanIdentities(rows)
}

// SaveIdentity inserts or updates an identity.
func (r *IdentityRepository) SaveIdentity(ctx context.Context, identity *database.Identity) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO identities (id, name, handler_email, contact_email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			handler_email = EXCLUDED.handler_email,
			contact_email = EXCLUDED.contact_email
		RETURNING created_at
	`, identity.ID, identity.Name, identity.HandlerEmail, identity.ContactEmail).Scan(&identity.CreatedAt)
	if err != nil {
		return fmt.Errorf("save identity %s: %w", identity.ID, err)
	}
	return nil
}

func scanIdentity(scanner interface{ Scan(...any) error }) (database.Identity, error) {
	var i database.Identity
	if err := scanner.Scan(&i.ID, &i.Name, &i.HandlerEmail, &i.ContactEmail, &i.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return i, err
		}
		return i, fmt.Errorf("scan identity: %w", err)
	}
	return i, nil
}

func scanIdentities(rows *sql.Rows) ([]database.Identity, error) {
	var identities []database.Identity
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", err)
	}
	return identities, nil
}
