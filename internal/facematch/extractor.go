// Package facematch turns frames into face embeddings and matches them
// against the enrolled gallery.
package facematch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/reunite/internal/constants"
	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/faces"
	"github.com/kozaktomas/reunite/internal/logging"
)

// ErrModelUnavailable is returned while the face model cannot serve requests.
// The extractor stays unavailable until Reload succeeds.
var ErrModelUnavailable = errors.New("face model unavailable")

// ExtractedFace is one usable face of a frame.
type ExtractedFace struct {
	Embedding []float32
	BBox      database.BBox
	DetScore  float64

	pixelArea float64
}

// ExtractorOptions configures an Extractor. Zero values select defaults.
type ExtractorOptions struct {
	Dim     int
	Timeout time.Duration
	Logger  *slog.Logger
}

// Extractor wraps a faces.Detector with frame decoding, bbox normalization,
// per-call timeouts and model availability tracking.
type Extractor struct {
	detector  faces.Detector
	dim       int
	timeout   time.Duration
	available atomic.Bool
	log       *slog.Logger
}

// NewExtractor creates an extractor. It starts unavailable; call Reload before use.
func NewExtractor(detector faces.Detector, opts ExtractorOptions) *Extractor {
	if opts.Dim <= 0 {
		opts.Dim = constants.EmbeddingDim
	}
	if opts.Timeout <= 0 {
		opts.Timeout = constants.DefaultEmbeddingTimeout
	}
	return &Extractor{
		detector: detector,
		dim:      opts.Dim,
		timeout:  opts.Timeout,
		log:      logging.OrDiscard(opts.Logger),
	}
}

// Reload checks the detector health and marks the extractor available on success.
func (e *Extractor) Reload(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.detector.Health(ctx); err != nil {
		e.available.Store(false)
		return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	if !e.available.Swap(true) {
		e.log.Info("face model available")
	}
	return nil
}

// Available reports whether the last health check or detection succeeded.
func (e *Extractor) Available() bool {
	return e.available.Load()
}

// Watch re-runs Reload every interval while the extractor is unavailable.
// It returns when ctx is done.
func (e *Extractor) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.Available() {
				continue
			}
			if err := e.Reload(ctx); err != nil {
				e.log.Warn("face model still unavailable", "error", err)
			}
		}
	}
}

// Dim returns the expected embedding dimension.
func (e *Extractor) Dim() int {
	return e.dim
}

// ExtractAll returns every usable face of the frame in detector order.
// A frame without faces yields an empty slice and no error, and so does a
// detector call that exceeds the timeout.
func (e *Extractor) ExtractAll(ctx context.Context, imageData []byte) ([]ExtractedFace, error) {
	width, height, err := faces.DecodeConfig(imageData)
	if err != nil {
		return nil, err
	}
	if !e.Available() {
		return nil, ErrModelUnavailable
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	detected, err := e.detector.DetectFaces(callCtx, imageData)
	switch {
	case err == nil:
	case errors.Is(err, faces.ErrUnavailable):
		if e.available.Swap(false) {
			e.log.Error("face model became unavailable", "error", err)
		}
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	case ctx.Err() == nil && callCtx.Err() != nil:
		e.log.Warn("face detection timed out, treating as no face", "timeout", e.timeout)
		return nil, nil
	default:
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	out := make([]ExtractedFace, 0, len(detected))
	for i := range detected {
		f := &detected[i]
		if len(f.Embedding) != e.dim {
			e.log.Warn("dropping face with unexpected embedding size",
				"face_index", f.Index, "dim", len(f.Embedding), "expected", e.dim)
			continue
		}
		if err := ValidateVector(f.Embedding, e.dim); err != nil {
			e.log.Warn("dropping face with corrupt embedding", "face_index", f.Index, "error", err)
			continue
		}
		box, ok := NormalizeBBox(f.BBox, width, height)
		if !ok {
			e.log.Warn("dropping face with malformed bbox", "face_index", f.Index, "bbox", f.BBox)
			continue
		}
		out = append(out, ExtractedFace{
			Embedding: f.Embedding,
			BBox:      box,
			DetScore:  f.DetScore,
			pixelArea: f.Area(),
		})
	}
	return out, nil
}

// Extract returns the largest face of the frame, or nil when there is none.
// Among equally large faces the first reported wins.
func (e *Extractor) Extract(ctx context.Context, imageData []byte) (*ExtractedFace, error) {
	all, err := e.ExtractAll(ctx, imageData)
	if err != nil || len(all) == 0 {
		return nil, err
	}

	best := 0
	for i := 1; i < len(all); i++ {
		if all[i].pixelArea > all[best].pixelArea {
			best = i
		}
	}
	return &all[best], nil
}
