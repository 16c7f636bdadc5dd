package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/reunite/internal/constants"
)

func TestCameraLimiter_PerCamera(t *testing.T) {
	l := NewCameraLimiter(0.001, 2)

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.Allow("a") {
		t.Error("third frame within the burst window should be limited")
	}
	if !l.Allow("b") {
		t.Error("another camera has its own bucket")
	}
}

func TestRateLimit_Middleware(t *testing.T) {
	limited := 0
	handler := RateLimit(NewCameraLimiter(0.001, 1), func() { limited++ })(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))

	send := func(camera string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", nil)
		if camera != "" {
			req.Header.Set(constants.CameraHeader, camera)
		}
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		return recorder.Code
	}

	if code := send("cam-1"); code != http.StatusOK {
		t.Errorf("first frame status = %d", code)
	}
	if code := send("cam-1"); code != http.StatusTooManyRequests {
		t.Errorf("second frame status = %d, want 429", code)
	}
	if code := send("cam-2"); code != http.StatusOK {
		t.Errorf("other camera status = %d", code)
	}
	// Without a camera header the client address is the key.
	if code := send(""); code != http.StatusOK {
		t.Errorf("anonymous frame status = %d", code)
	}
	if code := send(""); code != http.StatusTooManyRequests {
		t.Errorf("second anonymous frame status = %d, want 429", code)
	}
	if limited != 2 {
		t.Errorf("limited callback called %d times, want 2", limited)
	}
}

func TestCameraKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	if got := cameraKey(req); got != "addr:10.0.0.7" {
		t.Errorf("cameraKey() = %q", got)
	}
	req.Header.Set(constants.CameraHeader, "lobby")
	if got := cameraKey(req); got != "camera:lobby" {
		t.Errorf("cameraKey() = %q", got)
	}
}
