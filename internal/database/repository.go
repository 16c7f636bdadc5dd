package database

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that require the record to exist.
var ErrNotFound = errors.New("record not found")

// IdentityReader provides read-only access to identity reference data
type IdentityReader interface {
	// GetIdentity retrieves an identity by ID, returns nil if not found
	GetIdentity(ctx context.Context, id string) (*Identity, error)
	// ListIdentities returns all identities ordered by ID
	ListIdentities(ctx context.Context) ([]Identity, error)
	// ListIdentitiesByHandler returns identities whose handler e-mail matches (case-insensitive)
	ListIdentitiesByHandler(ctx context.Context, handlerEmail string) ([]Identity, error)
}

// IdentityWriter provides write access to identity reference data
type IdentityWriter interface {
	IdentityReader

	// SaveIdentity inserts or updates an identity (upsert by ID)
	SaveIdentity(ctx context.Context, identity *Identity) error
}

// GalleryReader provides read-only access to enrolled embeddings
type GalleryReader interface {
	// ListLatest returns the newest gallery entry of every identity
	ListLatest(ctx context.Context) ([]GalleryEntry, error)
	// ListByIdentity returns all entries of one identity, newest first
	ListByIdentity(ctx context.Context, identityID string) ([]GalleryEntry, error)
	// Count returns the number of identities with at least one entry
	Count(ctx context.Context) (int, error)
}

// GalleryWriter provides write access to the gallery
type GalleryWriter interface {
	GalleryReader

	// AddEntry appends an entry and sets its ID and CreatedAt
	AddEntry(ctx context.Context, entry *GalleryEntry) error
}

// EvidenceStore persists evidence records
type EvidenceStore interface {
	// AddEvidence appends a record and sets its ID
	AddEvidence(ctx context.Context, record *EvidenceRecord) error
	// GetEvidence retrieves a record by ID, returns nil if not found
	GetEvidence(ctx context.Context, id int64) (*EvidenceRecord, error)
	// ListEvidence returns the records of one identity, newest first
	ListEvidence(ctx context.Context, identityID string, limit int) ([]EvidenceRecord, error)
	// CountEvidence returns the number of records for one identity
	CountEvidence(ctx context.Context, identityID string) (int, error)
}

// AlertStore persists alert records and implements the cooldown guard
type AlertStore interface {
	// CreateIfCooledDown atomically inserts alert unless another alert for the same
	// identity was sent within window before alert.SentAt. Returns true when inserted
	// (alert.ID is set). Concurrent calls for one identity are serialized.
	CreateIfCooledDown(ctx context.Context, alert *AlertRecord, window time.Duration) (bool, error)
	// LatestAlert returns the most recent alert of an identity, nil if none
	LatestAlert(ctx context.Context, identityID string) (*AlertRecord, error)
	// GetAlert retrieves an alert by ID, including dismissed ones; nil if not found
	GetAlert(ctx context.Context, id int64) (*AlertRecord, error)
	// ListAlerts returns alerts of the given identities, newest first
	ListAlerts(ctx context.Context, identityIDs []string, includeDismissed bool, limit int) ([]AlertRecord, error)
	// CountUnread counts alerts that are neither reviewed nor dismissed
	CountUnread(ctx context.Context, identityIDs []string) (int, error)
	// SetReviewed flags an alert as reviewed (ErrNotFound if missing)
	SetReviewed(ctx context.Context, id int64) error
	// SetDismissed soft-deletes an alert (ErrNotFound if missing)
	SetDismissed(ctx context.Context, id int64) error
	// MarkDispatched records successful delivery; returns false if it was already marked
	MarkDispatched(ctx context.Context, id int64, at time.Time) (bool, error)
	// ListUndispatched returns alerts never delivered, oldest first
	ListUndispatched(ctx context.Context, limit int) ([]AlertRecord, error)
}

// StationReader provides read-only access to notification stations
type StationReader interface {
	// ListStations returns all stations ordered by ID
	ListStations(ctx context.Context) ([]Station, error)
}

// StationWriter provides write access to stations
type StationWriter interface {
	StationReader

	// UpsertStation inserts or updates a station keyed by name; sets ID
	UpsertStation(ctx context.Context, station *Station) error
}

// Store bundles every repository used by the pipeline.
type Store interface {
	IdentityWriter
	GalleryWriter
	EvidenceStore
	AlertStore
	StationWriter
}
