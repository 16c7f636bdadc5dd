package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/database/mock"
	"github.com/kozaktomas/reunite/internal/geo"
	"github.com/kozaktomas/reunite/internal/stations"
)

func seedStations(t *testing.T) *mock.Store {
	t.Helper()
	store := mock.NewStore()
	for _, s := range []database.Station{
		{Name: "Old Town", Email: "oldtown@police.example", Location: &geo.Point{Lat: 50.0875, Lon: 14.4213}},
		{Name: "Smichov", Email: "smichov@police.example", Location: &geo.Point{Lat: 50.0703, Lon: 14.4030}},
		{Name: "Archive", Email: "archive@police.example"},
		{Name: "Brno", Email: "brno@police.example", Location: &geo.Point{Lat: 49.1951, Lon: 16.6068}},
	} {
		s := s
		if err := store.UpsertStation(context.Background(), &s); err != nil {
			t.Fatal(err)
		}
	}
	return store
}

func TestStations_List(t *testing.T) {
	store := seedStations(t)
	recorder := httptest.NewRecorder()
	NewStationsHandler(store, nil).List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/stations", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var list []StationResponse
	parseJSONResponse(t, recorder, &list)
	if len(list) != 4 {
		t.Fatalf("expected 4 stations, got %d", len(list))
	}
	if list[2].Lat != nil {
		t.Errorf("station without coordinates must omit lat, got %v", *list[2].Lat)
	}
}

func TestStations_Nearest(t *testing.T) {
	store := seedStations(t)
	h := NewStationsHandler(store, stations.NewDirectory(store, nil))

	recorder := httptest.NewRecorder()
	h.Nearest(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/stations/nearest?lat=50.0865&lon=14.4205", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var ranked []StationResponse
	parseJSONResponse(t, recorder, &ranked)
	if len(ranked) != 2 {
		t.Fatalf("expected 2 stations, got %d", len(ranked))
	}
	if ranked[0].Name != "Old Town" || ranked[1].Name != "Smichov" {
		t.Errorf("unexpected order %s, %s", ranked[0].Name, ranked[1].Name)
	}
	if ranked[0].DistanceKm == nil || *ranked[0].DistanceKm > *ranked[1].DistanceKm {
		t.Error("expected ascending distances")
	}
}

func TestStations_NearestValidation(t *testing.T) {
	store := seedStations(t)
	h := NewStationsHandler(store, stations.NewDirectory(store, nil))

	for _, target := range []string{
		"/api/v1/stations/nearest",
		"/api/v1/stations/nearest?lat=95&lon=14",
		"/api/v1/stations/nearest?lat=50&lon=14&k=0",
	} {
		recorder := httptest.NewRecorder()
		h.Nearest(recorder, httptest.NewRequest(http.MethodGet, target, nil))
		assertStatusCode(t, recorder, http.StatusBadRequest)
	}
}
