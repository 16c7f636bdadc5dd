package facematch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kozaktomas/reunite/internal/constants"
	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/geo"
	"github.com/kozaktomas/reunite/internal/logging"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// Index kinds accepted by EngineOptions.Index.
const (
	IndexLinear = "linear"
	IndexHNSW   = "hnsw"
)

const snapshotKey = "gallery"

// Detection is one matched face of a frame.
type Detection struct {
	IdentityID     string
	Similarity     float64
	BBox           database.BBox
	Location       *geo.Point
	GalleryEntryID int64
}

// EngineOptions configures an Engine. Zero values select defaults.
type EngineOptions struct {
	Threshold     float64
	CacheTTL      time.Duration
	Index         string
	HNSWCandidate int
	Logger        *slog.Logger
}

// Engine matches every face of a frame against the latest gallery entry of
// each identity.
type Engine struct {
	extractor *Extractor
	gallery   database.GalleryReader
	opts      EngineOptions
	cache     *cache.Cache
	loads     singleflight.Group
	log       *slog.Logger
}

// NewEngine creates a match engine.
func NewEngine(extractor *Extractor, gallery database.GalleryReader, opts EngineOptions) *Engine {
	if opts.Threshold <= 0 {
		opts.Threshold = constants.DefaultMatchThreshold
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = constants.DefaultGalleryCacheTTL
	}
	if opts.HNSWCandidate <= 0 {
		opts.HNSWCandidate = constants.DefaultHNSWCandidates
	}
	opts.Index = strings.ToLower(opts.Index)
	return &Engine{
		extractor: extractor,
		gallery:   gallery,
		opts:      opts,
		cache:     cache.New(opts.CacheTTL, 2*opts.CacheTTL),
		log:       logging.OrDiscard(opts.Logger),
	}
}

// Threshold returns the acceptance threshold.
func (e *Engine) Threshold() float64 {
	return e.opts.Threshold
}

// Invalidate drops the cached gallery snapshot so the next match reloads it.
func (e *Engine) Invalidate() {
	e.cache.Delete(snapshotKey)
}

// Match returns one Detection per face whose best gallery similarity reaches
// the threshold. Faces are not deduplicated by identity.
func (e *Engine) Match(ctx context.Context, imageData []byte, loc *geo.Point) ([]Detection, error) {
	extracted, err := e.extractor.ExtractAll(ctx, imageData)
	if err != nil {
		return nil, err
	}
	if len(extracted) == 0 {
		return nil, nil
	}

	index, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var detections []Detection
	for i := range extracted {
		face := &extracted[i]
		best, sim, ok := e.BestMatch(index, face.Embedding)
		if !ok || sim < e.opts.Threshold {
			continue
		}
		detections = append(detections, Detection{
			IdentityID:     best.IdentityID,
			Similarity:     sim,
			BBox:           face.BBox,
			Location:       loc,
			GalleryEntryID: best.ID,
		})
	}
	return detections, nil
}

// BestMatch scores query against the index candidates and returns the most
// similar entry. Corrupt entries are logged and skipped. Ties keep the first
// candidate.
func (e *Engine) BestMatch(index GalleryIndex, query []float32) (*database.GalleryEntry, float64, bool) {
	var best *database.GalleryEntry
	bestSim := -2.0
	for _, entry := range index.Candidates(query) {
		sim, err := CosineSimilarity(query, entry.Embedding)
		if err != nil {
			e.log.Warn("skipping corrupt gallery entry",
				"entry_id", entry.ID, "identity_id", entry.IdentityID, "error", err)
			continue
		}
		if sim > bestSim {
			best, bestSim = entry, sim
		}
	}
	return best, bestSim, best != nil
}

// snapshot returns the cached gallery index, loading it once when missing.
func (e *Engine) snapshot(ctx context.Context) (GalleryIndex, error) {
	if v, ok := e.cache.Get(snapshotKey); ok {
		return v.(GalleryIndex), nil
	}

	// the load is shared by every waiting frame, so one caller's cancellation must not abort it
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := e.loads.Do(snapshotKey, func() (any, error) {
		entries, err := e.gallery.ListLatest(loadCtx)
		if err != nil {
			return nil, fmt.Errorf("load gallery: %w", err)
		}
		var index GalleryIndex
		switch e.opts.Index {
		case IndexHNSW:
			index = NewHNSWIndex(entries, e.extractor.Dim(), e.opts.HNSWCandidate, e.log)
		case "", IndexLinear:
			index = NewLinearIndex(entries)
		default:
			return nil, errors.New("unknown gallery index " + e.opts.Index)
		}
		e.cache.SetDefault(snapshotKey, index)
		e.log.Debug("gallery snapshot loaded", "entries", index.Len(), "index", e.opts.Index)
		return index, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(GalleryIndex), nil
}
