// Package stations manages the directory of notification stations: YAML
// import and nearest-station lookup for alert routing.
package stations

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/geo"
	"github.com/kozaktomas/reunite/internal/logging"
	"gopkg.in/yaml.v3"
)

// ErrInvalidStation is returned by Parse for entries that cannot be imported.
var ErrInvalidStation = errors.New("invalid station")

// Entry is one station in the import file.
type Entry struct {
	Name  string   `yaml:"name"`
	Email string   `yaml:"email"`
	Lat   *float64 `yaml:"lat"`
	Lon   *float64 `yaml:"lon"`
}

type file struct {
	Stations []Entry `yaml:"stations"`
}

// Parse reads a stations YAML document. Entries whose normalized names
// collide are merged, the later entry wins.
func Parse(r io.Reader) ([]database.Station, error) {
	var f file
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse stations: %w", err)
	}

	index := make(map[string]int, len(f.Stations))
	var out []database.Station
	for i, e := range f.Stations {
		s, err := e.station()
		if err != nil {
			return nil, fmt.Errorf("station #%d: %w", i+1, err)
		}
		key := NormalizeName(s.Name)
		if j, ok := index[key]; ok {
			out[j] = s
			continue
		}
		index[key] = len(out)
		out = append(out, s)
	}
	return out, nil
}

func (e Entry) station() (database.Station, error) {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return database.Station{}, fmt.Errorf("%w: missing name", ErrInvalidStation)
	}
	s := database.Station{Name: name, Email: strings.TrimSpace(e.Email)}

	switch {
	case e.Lat == nil && e.Lon == nil:
	case e.Lat == nil || e.Lon == nil:
		return s, fmt.Errorf("%w: %s has only one coordinate", ErrInvalidStation, name)
	default:
		p := geo.Point{Lat: *e.Lat, Lon: *e.Lon}
		if !p.Valid() {
			return s, fmt.Errorf("%w: %s has coordinates out of range", ErrInvalidStation, name)
		}
		s.Location = &p
	}
	return s, nil
}

// Import upserts stations one by one; progress, when set, is called after each.
// A station whose normalized name matches an existing one keeps the stored
// spelling, so re-imports with different diacritics or casing update in place.
func Import(
	ctx context.Context, w database.StationWriter, stations []database.Station, progress func(),
) (int, error) {
	existing, err := w.ListStations(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stations: %w", err)
	}
	stored := make(map[string]string, len(existing))
	for _, s := range existing {
		stored[NormalizeName(s.Name)] = s.Name
	}

	for i := range stations {
		if name, ok := stored[NormalizeName(stations[i].Name)]; ok {
			stations[i].Name = name
		}
		if err := w.UpsertStation(ctx, &stations[i]); err != nil {
			return i, err
		}
		if progress != nil {
			progress()
		}
	}
	return len(stations), nil
}

// Directory answers nearest-station queries over the station store.
type Directory struct {
	store database.StationReader
	log   *slog.Logger
}

// NewDirectory creates a directory over a station reader.
func NewDirectory(store database.StationReader, logger *slog.Logger) *Directory {
	return &Directory{store: store, log: logging.OrDiscard(logger)}
}

// Nearest returns up to k stations closest to origin that have both
// coordinates and an e-mail address, nearest first.
func (d *Directory) Nearest(ctx context.Context, origin geo.Point, k int) ([]geo.Ranked[database.Station], error) {
	all, err := d.store.ListStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	ranked := geo.Nearest(origin, all, k, database.Station.Locate, hasEmail)
	d.log.Debug("nearest stations", "origin", origin.String(), "candidates", len(all), "selected", len(ranked))
	return ranked, nil
}

func hasEmail(s database.Station) bool {
	return strings.TrimSpace(s.Email) != ""
}
