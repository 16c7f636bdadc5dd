package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/database/mock"
	"github.com/kozaktomas/reunite/internal/facematch"
	"github.com/kozaktomas/reunite/internal/surveillance"
)

type fakeEnroller struct {
	store  *mock.Store
	err    error
	images [][]byte
}

func (f *fakeEnroller) Enroll(ctx context.Context, id string, images [][]byte) (*database.GalleryEntry, error) {
	f.images = images
	if f.err != nil {
		return nil, f.err
	}
	entry := &database.GalleryEntry{
		IdentityID: id,
		Embedding:  []float32{1, 0},
		Provenance: fmt.Sprintf("aggregated from %d of %d images", len(images), len(images)),
		ImageCount: len(images),
	}
	return entry, f.store.AddEntry(ctx, entry)
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile("images", name)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(content))
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestIdentities_CreateAndGet(t *testing.T) {
	store := mock.NewStore()
	h := NewIdentitiesHandler(store, store, &fakeEnroller{store: store})

	body := `{"id": " MP-26-000001 ", "name": "Jana", "handler_email": "officer@police.example", "contact_email": "mum@example.org"}`
	recorder := httptest.NewRecorder()
	h.Create(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/identities", strings.NewReader(body)))

	assertStatusCode(t, recorder, http.StatusCreated)
	var created IdentityResponse
	parseJSONResponse(t, recorder, &created)
	if created.ID != "MP-26-000001" || created.Enrollments != 0 {
		t.Errorf("unexpected identity %+v", created)
	}

	req := requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/identities/MP-26-000001", nil),
		map[string]string{"id": "MP-26-000001"})
	recorder = httptest.NewRecorder()
	h.Get(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	req = requestWithChiParams(httptest.NewRequest(http.MethodGet, "/api/v1/identities/MP-404", nil),
		map[string]string{"id": "MP-404"})
	recorder = httptest.NewRecorder()
	h.Get(recorder, req)
	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestIdentities_CreateValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing id", `{"handler_email": "a@b.example"}`, "id is required"},
		{"missing handler", `{"id": "MP-1"}`, "handler_email is required"},
		{"bad handler", `{"id": "MP-1", "handler_email": "not-an-email"}`, "invalid handler_email: not-an-email"},
		{"bad contact", `{"id": "MP-1", "handler_email": "a@b.example", "contact_email": "nope"}`, "invalid contact_email: nope"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := mock.NewStore()
			recorder := httptest.NewRecorder()
			NewIdentitiesHandler(store, store, nil).Create(recorder,
				httptest.NewRequest(http.MethodPost, "/api/v1/identities", strings.NewReader(tc.body)))

			assertStatusCode(t, recorder, http.StatusBadRequest)
			assertJSONError(t, recorder, tc.wantErr)
		})
	}
}

func TestIdentities_List(t *testing.T) {
	store := mock.NewStore()
	ctx := context.Background()
	store.SaveIdentity(ctx, &database.Identity{ID: "MP-2", HandlerEmail: "a@b.example"})
	store.SaveIdentity(ctx, &database.Identity{ID: "MP-1", HandlerEmail: "a@b.example"})
	store.AddEntry(ctx, &database.GalleryEntry{IdentityID: "MP-1", Embedding: []float32{1}, Provenance: "old"})
	store.AddEntry(ctx, &database.GalleryEntry{IdentityID: "MP-1", Embedding: []float32{1}, Provenance: "new"})

	recorder := httptest.NewRecorder()
	NewIdentitiesHandler(store, store, nil).List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/identities", nil))

	assertStatusCode(t, recorder, http.StatusOK)
	var list []IdentityResponse
	parseJSONResponse(t, recorder, &list)
	if len(list) != 2 || list[0].ID != "MP-1" {
		t.Fatalf("unexpected list %+v", list)
	}
	if list[0].Enrollments != 2 || list[0].Latest == nil || list[0].Latest.Provenance != "new" {
		t.Errorf("expected newest enrollment first, got %+v", list[0])
	}
}

func TestIdentities_Enroll(t *testing.T) {
	store := mock.NewStore()
	enroller := &fakeEnroller{store: store}
	h := NewIdentitiesHandler(store, store, enroller)

	body, contentType := multipartBody(t, map[string]string{"a.jpg": "one", "b.jpg": "two"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/identities/MP-1/enroll", body)
	req.Header.Set("Content-Type", contentType)
	req = requestWithChiParams(req, map[string]string{"id": "MP-1"})
	recorder := httptest.NewRecorder()
	h.Enroll(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)
	var entry GalleryEntry
	parseJSONResponse(t, recorder, &entry)
	if entry.ImageCount != 2 || entry.Provenance != "aggregated from 2 of 2 images" {
		t.Errorf("unexpected entry %+v", entry)
	}
	if len(enroller.images) != 2 {
		t.Errorf("expected 2 images passed to enroller, got %d", len(enroller.images))
	}
}

func TestIdentities_EnrollErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unknown identity", fmt.Errorf("%w: MP-1", surveillance.ErrUnknownIdentity), http.StatusNotFound},
		{"no faces", facematch.ErrNoUsableImages, http.StatusUnprocessableEntity},
		{"model down", facematch.ErrModelUnavailable, http.StatusServiceUnavailable},
		{"storage", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := mock.NewStore()
			h := NewIdentitiesHandler(store, store, &fakeEnroller{store: store, err: tc.err})

			body, contentType := multipartBody(t, map[string]string{"a.jpg": "one"})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/identities/MP-1/enroll", body)
			req.Header.Set("Content-Type", contentType)
			req = requestWithChiParams(req, map[string]string{"id": "MP-1"})
			recorder := httptest.NewRecorder()
			h.Enroll(recorder, req)

			assertStatusCode(t, recorder, tc.wantStatus)
		})
	}
}

func TestIdentities_EnrollWithoutImages(t *testing.T) {
	store := mock.NewStore()
	body, contentType := multipartBody(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/identities/MP-1/enroll", body)
	req.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()

	NewIdentitiesHandler(store, store, &fakeEnroller{store: store}).Enroll(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "no images provided")
}
