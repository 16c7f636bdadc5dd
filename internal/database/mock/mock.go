// Package mock provides an in-memory implementation of database.Store for tests
// and for running the service without PostgreSQL.
package mock

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/reunite/internal/database"
)

// Store is an in-memory database.Store. All methods are safe for concurrent use;
// CreateIfCooledDown runs under the store mutex, which makes it atomic.
type Store struct {
	mu         sync.RWMutex
	identities map[string]database.Identity
	gallery    []database.GalleryEntry
	evidence   []database.EvidenceRecord
	alerts     []database.AlertRecord
	stations   []database.Station

	nextGalleryID  int64
	nextEvidenceID int64
	nextAlertID    int64
	nextStationID  int64

	// Error injection
	GetIdentityError   error
	ListLatestError    error
	AddEntryError      error
	AddEvidenceError   error
	CreateAlertError   error
	GetAlertError      error
	MarkDispatchError  error
	ListStationsError  error
	SaveIdentityError  error
	ListUndispatchErr  error
	LatestAlertError   error
	ListAlertsError    error
	SetFlagError       error
	UpsertStationError error
}

var _ database.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{identities: make(map[string]database.Identity)}
}

// GetIdentity retrieves an identity by ID, returns nil if not found
func (m *Store) GetIdentity(_ context.Context, id string) (*database.Identity, error) {
	if m.GetIdentityError != nil {
		return nil, m.GetIdentityError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.identities[id]
	if !ok {
		return nil, nil
	}
	return &i, nil
}

// ListIdentities returns all identities ordered by ID
func (m *Store) ListIdentities(_ context.Context) ([]database.Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.Identity, 0, len(m.identities))
	for _, i := range m.identities {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

// ListIdentitiesByHandler returns identities assigned to one handler
func (m *Store) ListIdentitiesByHandler(ctx context.Context, handlerEmail string) ([]database.Identity, error) {
	all, err := m.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	var out []database.Identity
	for _, i := range all {
		if strings.EqualFold(i.HandlerEmail, handlerEmail) {
			out = append(out, i)
		}
	}
	return out, nil
}

// SaveIdentity inserts or updates an identity
func (m *Store) SaveIdentity(_ context.Context, identity *database.Identity) error {
	if m.SaveIdentityError != nil {
		return m.SaveIdentityError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.identities[identity.ID]; ok {
		identity.CreatedAt = existing.CreatedAt
	} else if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now()
	}
	m.identities[identity.ID] = *identity
	return nil
}

// ListLatest returns the newest gallery entry of every identity
func (m *Store) ListLatest(_ context.Context) ([]database.GalleryEntry, error) {
	if m.ListLatestError != nil {
		return nil, m.ListLatestError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	latest := make(map[string]database.GalleryEntry)
	for _, e := range m.gallery {
		if cur, ok := latest[e.IdentityID]; !ok || e.ID > cur.ID {
			latest[e.IdentityID] = e
		}
	}
	out := make([]database.GalleryEntry, 0, len(latest))
	for _, e := range latest {
		out = append(out, e)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].IdentityID < out[b].IdentityID })
	return out, nil
}

// ListByIdentity returns all entries of one identity, newest first
func (m *Store) ListByIdentity(_ context.Context, identityID string) ([]database.GalleryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.GalleryEntry
	for i := len(m.gallery) - 1; i >= 0; i-- {
		if m.gallery[i].IdentityID == identityID {
			out = append(out, m.gallery[i])
		}
	}
	return out, nil
}

// Count returns the number of identities with at least one entry
func (m *Store) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, e := range m.gallery {
		seen[e.IdentityID] = struct{}{}
	}
	return len(seen), nil
}

// AddEntry appends a gallery entry
func (m *Store) AddEntry(_ context.Context, entry *database.GalleryEntry) error {
	if m.AddEntryError != nil {
		return m.AddEntryError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextGalleryID++
	entry.ID = m.nextGalleryID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	e := *entry
	e.Embedding = slices.Clone(entry.Embedding)
	m.gallery = append(m.gallery, e)
	return nil
}

// AddEvidence appends an evidence record
func (m *Store) AddEvidence(_ context.Context, record *database.EvidenceRecord) error {
	if m.AddEvidenceError != nil {
		return m.AddEvidenceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextEvidenceID++
	record.ID = m.nextEvidenceID
	m.evidence = append(m.evidence, *record)
	return nil
}

// GetEvidence retrieves a record by ID, returns nil if not found
func (m *Store) GetEvidence(_ context.Context, id int64) (*database.EvidenceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.evidence {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, nil
}

// ListEvidence returns the newest records of one identity
func (m *Store) ListEvidence(_ context.Context, identityID string, limit int) ([]database.EvidenceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.EvidenceRecord
	for i := len(m.evidence) - 1; i >= 0 && len(out) < limit; i-- {
		if m.evidence[i].IdentityID == identityID {
			out = append(out, m.evidence[i])
		}
	}
	return out, nil
}

// CountEvidence returns the number of records for one identity
func (m *Store) CountEvidence(_ context.Context, identityID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.evidence {
		if r.IdentityID == identityID {
			n++
		}
	}
	return n, nil
}

// CreateIfCooledDown inserts the alert unless one of the same identity was sent
// within window before alert.SentAt
func (m *Store) CreateIfCooledDown(_ context.Context, alert *database.AlertRecord, window time.Duration) (bool, error) {
	if m.CreateAlertError != nil {
		return false, m.CreateAlertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := alert.SentAt.Add(-window)
	for _, a := range m.alerts {
		if a.IdentityID == alert.IdentityID && a.SentAt.After(cutoff) {
			return false, nil
		}
	}
	m.nextAlertID++
	alert.ID = m.nextAlertID
	m.alerts = append(m.alerts, *alert)
	return true, nil
}

// LatestAlert returns the most recent alert of an identity, nil if none
func (m *Store) LatestAlert(_ context.Context, identityID string) (*database.AlertRecord, error) {
	if m.LatestAlertError != nil {
		return nil, m.LatestAlertError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *database.AlertRecord
	for i := range m.alerts {
		a := m.alerts[i]
		if a.IdentityID != identityID {
			continue
		}
		if latest == nil || a.SentAt.After(latest.SentAt) || (a.SentAt.Equal(latest.SentAt) && a.ID > latest.ID) {
			latest = &a
		}
	}
	return latest, nil
}

// GetAlert retrieves an alert by ID, including dismissed ones
func (m *Store) GetAlert(_ context.Context, id int64) (*database.AlertRecord, error) {
	if m.GetAlertError != nil {
		return nil, m.GetAlertError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i := m.alertIndex(id); i >= 0 {
		a := m.alerts[i]
		return &a, nil
	}
	return nil, nil
}

// ListAlerts returns alerts of the given identities, newest first
func (m *Store) ListAlerts(
	_ context.Context, identityIDs []string, includeDismissed bool, limit int,
) ([]database.AlertRecord, error) {
	if m.ListAlertsError != nil {
		return nil, m.ListAlertsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.AlertRecord
	for _, a := range m.alerts {
		if !slices.Contains(identityIDs, a.IdentityID) || (a.Dismissed && !includeDismissed) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].SentAt.After(out[j].SentAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountUnread counts alerts that are neither reviewed nor dismissed
func (m *Store) CountUnread(_ context.Context, identityIDs []string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, a := range m.alerts {
		if slices.Contains(identityIDs, a.IdentityID) && a.Unread() {
			n++
		}
	}
	return n, nil
}

// SetReviewed flags an alert as reviewed
func (m *Store) SetReviewed(_ context.Context, id int64) error {
	return m.update(id, func(a *database.AlertRecord) { a.Reviewed = true })
}

// SetDismissed soft-deletes an alert
func (m *Store) SetDismissed(_ context.Context, id int64) error {
	return m.update(id, func(a *database.AlertRecord) { a.Dismissed = true })
}

func (m *Store) update(id int64, fn func(*database.AlertRecord)) error {
	if m.SetFlagError != nil {
		return m.SetFlagError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.alertIndex(id)
	if i < 0 {
		return database.ErrNotFound
	}
	fn(&m.alerts[i])
	return nil
}

// MarkDispatched records delivery; false when already marked or missing
func (m *Store) MarkDispatched(_ context.Context, id int64, at time.Time) (bool, error) {
	if m.MarkDispatchError != nil {
		return false, m.MarkDispatchError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.alertIndex(id)
	if i < 0 || m.alerts[i].DispatchedAt != nil {
		return false, nil
	}
	t := at
	m.alerts[i].DispatchedAt = &t
	return true, nil
}

// ListUndispatched returns alerts never delivered, oldest first
func (m *Store) ListUndispatched(_ context.Context, limit int) ([]database.AlertRecord, error) {
	if m.ListUndispatchErr != nil {
		return nil, m.ListUndispatchErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []database.AlertRecord
	for _, a := range m.alerts {
		if a.DispatchedAt == nil && (limit <= 0 || len(out) < limit) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *Store) alertIndex(id int64) int {
	for i := range m.alerts {
		if m.alerts[i].ID == id {
			return i
		}
	}
	return -1
}

// ListStations returns all stations ordered by ID
func (m *Store) ListStations(_ context.Context) ([]database.Station, error) {
	if m.ListStationsError != nil {
		return nil, m.ListStationsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.stations), nil
}

// UpsertStation inserts or updates a station keyed by name
func (m *Store) UpsertStation(_ context.Context, station *database.Station) error {
	if m.UpsertStationError != nil {
		return m.UpsertStationError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.stations {
		if m.stations[i].Name == station.Name {
			station.ID = m.stations[i].ID
			m.stations[i] = *station
			return nil
		}
	}
	m.nextStationID++
	station.ID = m.nextStationID
	m.stations = append(m.stations, *station)
	return nil
}

// AlertCount returns the number of stored alerts, dismissed included.
func (m *Store) AlertCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.alerts)
}

// EvidenceCount returns the number of stored evidence records.
func (m *Store) EvidenceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.evidence)
}
