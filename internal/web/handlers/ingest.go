package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/kozaktomas/reunite/internal/constants"
	"github.com/kozaktomas/reunite/internal/geo"
	"github.com/kozaktomas/reunite/internal/surveillance"
)

const (
	statusMatchFound = "match_found"
	statusNoMatch    = "no_match"
)

var errEmptyImage = errors.New("no image data received")

// Ingester processes one surveillance frame.
type Ingester interface {
	Ingest(ctx context.Context, frame surveillance.Frame) []surveillance.Result
}

// IngestHandler accepts live frames from cameras.
type IngestHandler struct {
	pipeline Ingester
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(pipeline Ingester) *IngestHandler {
	return &IngestHandler{pipeline: pipeline}
}

// IngestRequest is a frame submitted by a camera client.
type IngestRequest struct {
	Image    string           `json:"image"` // base64 or data URL
	Location *LocationRequest `json:"location,omitempty"`
	CameraID string           `json:"camera_id,omitempty"`
}

// LocationRequest carries optional coordinates. A client without location
// permission omits the object or sends both fields as null.
type LocationRequest struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

var errInvalidLocation = errors.New("location needs both lat and lon within range")

// point returns the location, nil when none was sent.
func (l *LocationRequest) point() (*geo.Point, error) {
	if l == nil || (l.Lat == nil && l.Lon == nil) {
		return nil, nil
	}
	if l.Lat == nil || l.Lon == nil {
		return nil, errInvalidLocation
	}
	p := geo.Point{Lat: *l.Lat, Lon: *l.Lon}
	if !p.Valid() {
		return nil, errInvalidLocation
	}
	return &p, nil
}

// DetectionResponse is one matched face; Box is [x, y, width, height] normalized to the frame.
type DetectionResponse struct {
	IdentityID string    `json:"identity_id"`
	Similarity float64   `json:"similarity"`
	Box        []float64 `json:"box"`
}

// IngestResponse is returned for every processed frame.
type IngestResponse struct {
	Status     string              `json:"status"`
	Detections []DetectionResponse `json:"detections"`
}

// decodeImage accepts raw base64 or a data URL ("data:image/jpeg;base64,...").
func decodeImage(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		_, payload, ok := strings.Cut(s, ",")
		if !ok {
			return nil, errors.New("malformed data URL")
		}
		s = payload
	}
	if s == "" {
		return nil, errEmptyImage
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errEmptyImage
	}
	return data, nil
}

// Ingest handles POST /ingest. Frames that cannot be decoded as images or
// processed by the face model produce a no_match response, not an error.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if !decodeJSON(w, r, constants.MaxJSONBodySize, &req) {
		return
	}
	if req.Image == "" {
		respondError(w, http.StatusBadRequest, errEmptyImage.Error())
		return
	}
	image, err := decodeImage(req.Image)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid image encoding")
		return
	}
	if len(image) > constants.MaxFrameBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "frame too large")
		return
	}
	location, err := req.Location.point()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	cameraID := r.Header.Get(constants.CameraHeader)
	if cameraID == "" {
		cameraID = req.CameraID
	}

	results := h.pipeline.Ingest(r.Context(), surveillance.Frame{
		Image:    image,
		Location: location,
		CameraID: sanitizeForLog(cameraID),
	})

	resp := IngestResponse{Status: statusNoMatch, Detections: []DetectionResponse{}}
	for _, res := range results {
		resp.Detections = append(resp.Detections, DetectionResponse{
			IdentityID: res.IdentityID,
			Similarity: res.Similarity,
			Box:        res.BBox.Slice(),
		})
	}
	if len(resp.Detections) > 0 {
		resp.Status = statusMatchFound
	}
	respondJSON(w, http.StatusOK, resp)
}
