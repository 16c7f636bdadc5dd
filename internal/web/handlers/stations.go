package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/kozaktomas/reunite/internal/constants"
	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/geo"
)

// NearestFinder ranks stations by distance.
type NearestFinder interface {
	Nearest(ctx context.Context, origin geo.Point, k int) ([]geo.Ranked[database.Station], error)
}

// StationsHandler serves the station directory.
type StationsHandler struct {
	store     database.StationReader
	directory NearestFinder
}

// NewStationsHandler creates a new stations handler.
func NewStationsHandler(store database.StationReader, directory NearestFinder) *StationsHandler {
	return &StationsHandler{store: store, directory: directory}
}

// StationResponse is one station, with its distance for nearest queries.
type StationResponse struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	Email      string   `json:"email,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lon        *float64 `json:"lon,omitempty"`
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

func stationResponse(s database.Station) StationResponse {
	resp := StationResponse{ID: s.ID, Name: s.Name, Email: s.Email}
	if s.Location != nil {
		resp.Lat, resp.Lon = &s.Location.Lat, &s.Location.Lon
	}
	return resp
}

// List handles GET /stations.
func (h *StationsHandler) List(w http.ResponseWriter, r *http.Request) {
	stations, err := h.store.ListStations(r.Context())
	if err != nil {
		logger().Error("failed to list stations", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list stations")
		return
	}
	out := make([]StationResponse, 0, len(stations))
	for _, s := range stations {
		out = append(out, stationResponse(s))
	}
	respondJSON(w, http.StatusOK, out)
}

// Nearest handles GET /stations/nearest?lat=..&lon=..&k=..
func (h *StationsHandler) Nearest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	origin := geo.Point{Lat: lat, Lon: lon}
	if errLat != nil || errLon != nil || !origin.Valid() {
		respondError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}
	k := constants.NearestStationCount
	if s := q.Get("k"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid k")
			return
		}
		k = n
	}

	ranked, err := h.directory.Nearest(r.Context(), origin, k)
	if err != nil {
		logger().Error("nearest station lookup failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to rank stations")
		return
	}
	out := make([]StationResponse, 0, len(ranked))
	for _, rs := range ranked {
		resp := stationResponse(rs.Item)
		d := rs.DistanceKm
		resp.DistanceKm = &d
		out = append(out, resp)
	}
	respondJSON(w, http.StatusOK, out)
}
