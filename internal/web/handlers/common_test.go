package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/database/mock"
	"github.com/kozaktomas/reunite/internal/geo"
	"github.com/kozaktomas/reunite/internal/logging"
)

func TestRespondJSON(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		data     any
		wantBody string
	}{
		{"nil data writes no body", http.StatusOK, nil, ""},
		{"empty map", http.StatusCreated, map[string]string{}, "{}\n"},
		{"array", http.StatusOK, []int{1, 2}, "[1,2]\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondJSON(recorder, tc.status, tc.data)

			assertStatusCode(t, recorder, tc.status)
			assertContentType(t, recorder, "application/json")
			if recorder.Body.String() != tc.wantBody {
				t.Errorf("expected body %q, got %q", tc.wantBody, recorder.Body.String())
			}
		})
	}
}

func TestRespondError(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondError(recorder, http.StatusForbidden, "forbidden")

	assertStatusCode(t, recorder, http.StatusForbidden)
	assertJSONError(t, recorder, "forbidden")
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("cam-1\r\nFAKE log line"); got != "cam-1FAKE log line" {
		t.Errorf("sanitizeForLog() = %q", got)
	}
}

func TestDecodeJSON_RejectsOversizedBody(t *testing.T) {
	body := `{"image": "` + strings.Repeat("A", 64) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	recorder := httptest.NewRecorder()

	var dst IngestRequest
	if decodeJSON(recorder, req, 16, &dst) {
		t.Fatal("decodeJSON() accepted a body over the limit")
	}
	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, errInvalidRequestBody)
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		ready      func() bool
		wantStatus int
		wantBody   string
	}{
		{"no readiness check", nil, http.StatusOK, "ok"},
		{"model ready", func() bool { return true }, http.StatusOK, "ok"},
		{"model down", func() bool { return false }, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			NewHealthHandler(tc.ready).Check(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

			assertStatusCode(t, recorder, tc.wantStatus)
			var result map[string]string
			if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if result["status"] != tc.wantBody {
				t.Errorf("expected status %q, got %q", tc.wantBody, result["status"])
			}
		})
	}
}

type failingFinder struct{}

func (failingFinder) Nearest(context.Context, geo.Point, int) ([]geo.Ranked[database.Station], error) {
	return nil, errors.New("directory offline")
}

func TestHandlerLogsFollowSetup(t *testing.T) {
	var buf bytes.Buffer
	logging.Setup(&buf, "debug", "json")
	t.Cleanup(func() { logging.Setup(os.Stderr, "info", "text") })

	recorder := httptest.NewRecorder()
	NewStationsHandler(mock.NewStore(), failingFinder{}).
		Nearest(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/stations/nearest?lat=50&lon=14", nil))

	assertStatusCode(t, recorder, http.StatusInternalServerError)
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected one JSON log line in the configured sink, got %q: %v", buf.String(), err)
	}
	if entry["module"] != "web" || entry["error"] != "directory offline" {
		t.Errorf("unexpected log entry %v", entry)
	}
}
