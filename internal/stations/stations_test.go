package stations

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/database/mock"
	"github.com/kozaktomas/reunite/internal/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
stations:
  - name: Shivajinagar Police Station
    email: shivajinagar@police.example
    lat: 18.5308
    lon: 73.8475
  - name: Kothrud Chowki
    email: ""
    lat: 18.5074
    lon: 73.8077
  - name: Control Room
    email: control@police.example
  - name: shivajinagar-police-station
    email: desk@police.example
    lat: 18.5308
    lon: 73.8475
`

func TestParse(t *testing.T) {
	got, err := Parse(strings.NewReader(sampleYAML))
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "shivajinagar-police-station", got[0].Name, "later duplicate wins")
	assert.Equal(t, "desk@police.example", got[0].Email)
	require.NotNil(t, got[0].Location)
	assert.InDelta(t, 18.5308, got[0].Location.Lat, 1e-9)

	assert.Equal(t, "Kothrud Chowki", got[1].Name)
	assert.Empty(t, got[1].Email)
	assert.Nil(t, got[2].Location)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing name", "stations:\n  - email: a@b.c\n"},
		{"single coordinate", "stations:\n  - name: X\n    lat: 10\n"},
		{"out of range", "stations:\n  - name: X\n    lat: 100\n    lon: 10\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidStation)
		})
	}

	_, err := Parse(strings.NewReader("stations:\n  - name: X\n    phone: 123\n"))
	assert.Error(t, err, "unknown fields are rejected")
}

func TestParse_Empty(t *testing.T) {
	got, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestImport(t *testing.T) {
	store := mock.NewStore()
	parsed, err := Parse(strings.NewReader(sampleYAML))
	require.NoError(t, err)

	calls := 0
	n, err := Import(context.Background(), store, parsed, func() { calls++ })
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, calls)

	// re-import is an update, not a duplicate
	n, err = Import(context.Background(), store, parsed, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	all, _ := store.ListStations(context.Background())
	assert.Len(t, all, 3)
}

func TestImport_MatchesStoredSpelling(t *testing.T) {
	store := mock.NewStore()
	ctx := context.Background()
	_, err := Import(ctx, store, []database.Station{{Name: "Praha 1 - Bartolomějská", Email: "old@police.example"}}, nil)
	require.NoError(t, err)

	_, err = Import(ctx, store, []database.Station{{Name: "praha 1 bartolomejska", Email: "new@police.example"}}, nil)
	require.NoError(t, err)

	all, err := store.ListStations(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Praha 1 - Bartolomějská", all[0].Name)
	assert.Equal(t, "new@police.example", all[0].Email)
}

func TestImport_ListError(t *testing.T) {
	store := mock.NewStore()
	store.ListStationsError = errors.New("db down")
	n, err := Import(context.Background(), store, []database.Station{{Name: "A"}}, nil)
	assert.Error(t, err)
	assert.Zero(t, n)
}

func TestImport_Error(t *testing.T) {
	store := mock.NewStore()
	store.UpsertStationError = errors.New("db down")
	n, err := Import(context.Background(), store, []database.Station{{Name: "A"}}, nil)
	assert.Error(t, err)
	assert.Zero(t, n)
}

func TestDirectory_Nearest(t *testing.T) {
	store := mock.NewStore()
	origin := geo.Point{Lat: 18.5204, Lon: 73.8567}
	for _, s := range []database.Station{
		{Name: "far", Email: "far@x", Location: &geo.Point{Lat: 19.0760, Lon: 72.8777}},
		{Name: "near-no-email", Location: &geo.Point{Lat: 18.5210, Lon: 73.8570}},
		{Name: "near", Email: "near@x", Location: &geo.Point{Lat: 18.5300, Lon: 73.8500}},
		{Name: "unlocated", Email: "u@x"},
		{Name: "mid", Email: "mid@x", Location: &geo.Point{Lat: 18.6000, Lon: 73.8000}},
	} {
		require.NoError(t, store.UpsertStation(context.Background(), &s))
	}

	got, err := NewDirectory(store, nil).Nearest(context.Background(), origin, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].Item.Name)
	assert.Equal(t, "mid", got[1].Item.Name)
	assert.Less(t, got[0].DistanceKm, got[1].DistanceKm)
}

func TestDirectory_Error(t *testing.T) {
	store := mock.NewStore()
	store.ListStationsError = errors.New("db down")
	_, err := NewDirectory(store, nil).Nearest(context.Background(), geo.Point{}, 2)
	assert.Error(t, err)
}
