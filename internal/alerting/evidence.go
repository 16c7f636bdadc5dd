package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/facematch"
	"github.com/kozaktomas/reunite/internal/logging"
	"github.com/kozaktomas/reunite/internal/metrics"
	"github.com/kozaktomas/reunite/internal/storage"
)

// EvidenceLogger persists every detection, independent of throttling.
type EvidenceLogger struct {
	store   database.EvidenceStore
	images  storage.ImageStore
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewEvidenceLogger creates an evidence logger.
func NewEvidenceLogger(
	store database.EvidenceStore, images storage.ImageStore, m *metrics.Metrics, logger *slog.Logger,
) *EvidenceLogger {
	return &EvidenceLogger{store: store, images: images, metrics: m, log: logging.OrDiscard(logger)}
}

// Log stores the frame and one evidence record for det.
func (l *EvidenceLogger) Log(
	ctx context.Context, image []byte, det facematch.Detection, capturedAt time.Time,
) (*database.EvidenceRecord, error) {
	records, err := l.LogFrame(ctx, image, []facematch.Detection{det}, capturedAt)
	if err != nil {
		return nil, err
	}
	return &records[0], nil
}

// LogFrame stores the frame once and appends one evidence record per detection,
// in order. Records written before a failure are returned with the error.
func (l *EvidenceLogger) LogFrame(
	ctx context.Context, image []byte, dets []facematch.Detection, capturedAt time.Time,
) ([]database.EvidenceRecord, error) {
	if len(dets) == 0 {
		return nil, nil
	}

	key, err := l.images.Put(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("store evidence frame: %w", err)
	}

	records := make([]database.EvidenceRecord, 0, len(dets))
	for _, det := range dets {
		rec := database.EvidenceRecord{
			IdentityID: det.IdentityID,
			ImageKey:   key,
			BBox:       det.BBox,
			Similarity: det.Similarity,
			Location:   det.Location,
			CapturedAt: capturedAt,
		}
		if err := l.store.AddEvidence(ctx, &rec); err != nil {
			return records, fmt.Errorf("log evidence for %s: %w", det.IdentityID, err)
		}
		l.metrics.RecordEvidence()
		l.log.Info("evidence logged",
			"evidence_id", rec.ID, "identity_id", rec.IdentityID,
			"similarity", fmt.Sprintf("%.4f", rec.Similarity), "image_key", key)
		records = append(records, rec)
	}
	return records, nil
}
