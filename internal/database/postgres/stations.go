package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kozaktomas/reunite/internal/database"
)

// StationRepository stores notification stations.
type StationRepository struct {
	pool *Pool
}

// NewStationRepository creates a new station repository.
func NewStationRepository(pool *Pool) *StationRepository {
	return &StationRepository{pool: pool}
}

// ListStations returns all stations ordered by ID.
func (r *StationRepository) ListStations(ctx context.Context) ([]database.Station, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, email, latitude, longitude FROM stations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	var stations []database.Station
	for rows.Next() {
		var s database.Station
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &lat, &lon); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		s.Location = pointFromNullable(lat, lon)
		stations = append(stations, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stations: %w", err)
	}
	return stations, nil
}

// UpsertStation inserts or updates a station keyed by name.
func (r *StationRepository) UpsertStation(ctx context.Context, station *database.Station) error {
	lat, lon := nullablePoint(station.Location)
	err := r.pool.QueryRow(ctx, `
		INSERT INTO stations (name, email, latitude, longitude)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			email = EXCLUDED.email,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude
		RETURNING id
	`, station.Name, station.Email, lat, lon).Scan(&station.ID)
	if err != nil {
		return fmt.Errorf("upsert station %q: %w", station.Name, err)
	}
	return nil
}
