package postgres

import "github.com/kozaktomas/reunite/internal/database"

// Store aggregates the PostgreSQL repositories into a database.Store.
type Store struct {
	*IdentityRepository
	*GalleryRepository
	*EvidenceRepository
	*AlertRepository
	*StationRepository

	pool *Pool
}

var _ database.Store = (*Store)(nil)

// NewStore builds every repository on top of one pool.
func NewStore(pool *Pool) *Store {
	return &Store{
		IdentityRepository: NewIdentityRepository(pool),
		GalleryRepository:  NewGalleryRepository(pool),
		EvidenceRepository: NewEvidenceRepository(pool),
		AlertRepository:    NewAlertRepository(pool),
		StationRepository:  NewStationRepository(pool),
		pool:               pool,
	}
}

// Pool returns the underlying connection pool.
func (s *Store) Pool() *Pool {
	return s.pool
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
