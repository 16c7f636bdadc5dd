package database

import (
	"time"

	"github.com/kozaktomas/reunite/internal/geo"
)

// Identity is the case reference data for one missing person.
// Case intake happens elsewhere; the pipeline only reads these records.
type Identity struct {
	ID           string // case reference, e.g. MP-26-000001
	Name         string
	HandlerEmail string // responsible handler, primary alert recipient
	ContactEmail string // registered contact (guardian), copied on alerts
	CreatedAt    time.Time
}

// BBox is a face bounding box in normalized [0,1] image coordinates.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Slice returns the box as [x, y, w, h].
func (b BBox) Slice() []float64 {
	return []float64{b.X, b.Y, b.Width, b.Height}
}

// BBoxFromSlice is the inverse of Slice. Short slices yield a zero box.
func BBoxFromSlice(s []float64) BBox {
	if len(s) != 4 {
		return BBox{}
	}
	return BBox{X: s[0], Y: s[1], Width: s[2], Height: s[3]}
}

// GalleryEntry is one aggregated enrollment embedding for an identity.
// Re-enrollment appends a new entry; matching consults only the newest one.
type GalleryEntry struct {
	ID          int64
	IdentityID  string
	Embedding   []float32
	Provenance  string // e.g. "aggregated from 2 of 3 images"
	ImageCount  int    // images that produced an embedding
	FailedCount int    // images dropped (no face or undecodable)
	CreatedAt   time.Time
}

// EvidenceRecord is a persisted detection. Append-only.
type EvidenceRecord struct {
	ID         int64
	IdentityID string
	ImageKey   string // key into the evidence image store
	BBox       BBox
	Similarity float64
	Location   *geo.Point
	CapturedAt time.Time
}

// AlertRecord is one admitted (non-throttled) alert. Never physically deleted;
// Dismissed is the soft-delete flag.
type AlertRecord struct {
	ID           int64
	IdentityID   string
	EvidenceID   int64
	SentAt       time.Time
	Reviewed     bool
	Dismissed    bool
	DispatchedAt *time.Time // set once a notification was delivered
}

// Unread reports whether the alert counts towards the unread badge.
func (a *AlertRecord) Unread() bool {
	return !a.Reviewed && !a.Dismissed
}

// Station is a notification endpoint with optional coordinates.
type Station struct {
	ID       int64
	Name     string
	Email    string
	Location *geo.Point
}

// Locate implements the geo ranking accessor. Stations without coordinates are not located.
func (s Station) Locate() (geo.Point, bool) {
	if s.Location == nil {
		return geo.Point{}, false
	}
	return *s.Location, true
}
