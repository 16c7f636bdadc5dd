package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/reunite/internal/constants"
	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/facematch"
	"github.com/kozaktomas/reunite/internal/surveillance"
)

// Enroller builds a gallery entry from reference photos.
type Enroller interface {
	Enroll(ctx context.Context, identityID string, images [][]byte) (*database.GalleryEntry, error)
}

// IdentitiesHandler manages identity reference data and enrollment.
type IdentitiesHandler struct {
	store    database.IdentityWriter
	gallery  database.GalleryReader
	enroller Enroller
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(store database.IdentityWriter, gallery database.GalleryReader, enroller Enroller) *IdentitiesHandler {
	return &IdentitiesHandler{store: store, gallery: gallery, enroller: enroller}
}

// IdentityRequest creates or updates an identity.
type IdentityRequest struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	HandlerEmail string `json:"handler_email"`
	ContactEmail string `json:"contact_email"`
}

func (req *IdentityRequest) validate() error {
	req.ID = strings.TrimSpace(req.ID)
	req.HandlerEmail = strings.TrimSpace(req.HandlerEmail)
	req.ContactEmail = strings.TrimSpace(req.ContactEmail)
	if req.ID == "" {
		return errors.New("id is required")
	}
	if req.HandlerEmail == "" {
		return errors.New("handler_email is required")
	}
	if _, err := mail.ParseAddress(req.HandlerEmail); err != nil {
		return fmt.Errorf("invalid handler_email: %s", req.HandlerEmail)
	}
	if req.ContactEmail != "" {
		if _, err := mail.ParseAddress(req.ContactEmail); err != nil {
			return fmt.Errorf("invalid contact_email: %s", req.ContactEmail)
		}
	}
	return nil
}

// IdentityResponse is an identity with its enrollment state.
type IdentityResponse struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	HandlerEmail string        `json:"handler_email"`
	ContactEmail string        `json:"contact_email,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	Enrollments  int           `json:"enrollments"`
	Latest       *GalleryEntry `json:"latest,omitempty"`
}

// GalleryEntry summarizes one enrollment.
type GalleryEntry struct {
	ID          int64     `json:"id"`
	Provenance  string    `json:"provenance"`
	ImageCount  int       `json:"image_count"`
	FailedCount int       `json:"failed_count"`
	CreatedAt   time.Time `json:"created_at"`
}

func galleryEntryResponse(e *database.GalleryEntry) *GalleryEntry {
	return &GalleryEntry{
		ID:          e.ID,
		Provenance:  e.Provenance,
		ImageCount:  e.ImageCount,
		FailedCount: e.FailedCount,
		CreatedAt:   e.CreatedAt,
	}
}

func (h *IdentitiesHandler) response(ctx context.Context, identity *database.Identity) (IdentityResponse, error) {
	resp := IdentityResponse{
		ID:           identity.ID,
		Name:         identity.Name,
		HandlerEmail: identity.HandlerEmail,
		ContactEmail: identity.ContactEmail,
		CreatedAt:    identity.CreatedAt,
	}
	entries, err := h.gallery.ListByIdentity(ctx, identity.ID)
	if err != nil {
		return resp, err
	}
	resp.Enrollments = len(entries)
	if len(entries) > 0 {
		resp.Latest = galleryEntryResponse(&entries[0])
	}
	return resp, nil
}

// Create handles POST /identities (upsert by ID).
func (h *IdentitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req IdentityRequest
	if !decodeJSON(w, r, constants.MaxJSONBodySize, &req) {
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	identity := &database.Identity{
		ID:           req.ID,
		Name:         strings.TrimSpace(req.Name),
		HandlerEmail: req.HandlerEmail,
		ContactEmail: req.ContactEmail,
	}
	if err := h.store.SaveIdentity(r.Context(), identity); err != nil {
		logger().Error("failed to save identity", "identity_id", sanitizeForLog(req.ID), "error", err)
		respondError(w, http.StatusInternalServerError, "failed to save identity")
		return
	}

	resp, err := h.response(r.Context(), identity)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load gallery")
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

// List handles GET /identities.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	identities, err := h.store.ListIdentities(r.Context())
	if err != nil {
		logger().Error("failed to list identities", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list identities")
		return
	}
	out := make([]IdentityResponse, 0, len(identities))
	for i := range identities {
		resp, err := h.response(r.Context(), &identities[i])
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load gallery")
			return
		}
		out = append(out, resp)
	}
	respondJSON(w, http.StatusOK, out)
}

// Get handles GET /identities/{id}.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	identity, err := h.store.GetIdentity(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load identity")
		return
	}
	if identity == nil {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	resp, err := h.response(r.Context(), identity)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load gallery")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// readUploads reads every uploaded file of the "images" field.
func readUploads(files []*multipart.FileHeader) ([][]byte, error) {
	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		data, err := func() ([]byte, error) {
			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("failed to open file: %s", fh.Filename)
			}
			defer f.Close()
			return io.ReadAll(f)
		}()
		if err != nil {
			return nil, err
		}
		images = append(images, data)
	}
	return images, nil
}

// Enroll handles POST /identities/{id}/enroll with multipart "images" files.
func (h *IdentitiesHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no images provided")
		return
	}
	if len(files) > constants.MaxEnrollImages {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("too many images: %d (max %d)", len(files), constants.MaxEnrollImages))
		return
	}
	images, err := readUploads(files)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := chi.URLParam(r, "id")
	entry, err := h.enroller.Enroll(r.Context(), id, images)
	switch {
	case err == nil:
		respondJSON(w, http.StatusCreated, galleryEntryResponse(entry))
	case errors.Is(err, surveillance.ErrUnknownIdentity):
		respondError(w, http.StatusNotFound, "identity not found")
	case errors.Is(err, facematch.ErrNoUsableImages):
		respondError(w, http.StatusUnprocessableEntity, "no face found in any image")
	case errors.Is(err, facematch.ErrModelUnavailable):
		respondError(w, http.StatusServiceUnavailable, "face model unavailable")
	default:
		logger().Error("enrollment failed", "identity_id", sanitizeForLog(id), "error", err)
		respondError(w, http.StatusInternalServerError, "enrollment failed")
	}
}
