// Package surveillance runs frames and enrollments through the matching and
// alerting components.
package surveillance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/reunite/internal/alerting"
	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/events"
	"github.com/kozaktomas/reunite/internal/facematch"
	"github.com/kozaktomas/reunite/internal/faces"
	"github.com/kozaktomas/reunite/internal/geo"
	"github.com/kozaktomas/reunite/internal/logging"
	"github.com/kozaktomas/reunite/internal/metrics"
)

// ErrUnknownIdentity is returned when enrolling an identity that does not exist.
var ErrUnknownIdentity = errors.New("unknown identity")

// Enqueuer hands admitted alerts to the dispatcher.
type Enqueuer interface {
	Enqueue(alertID int64) bool
}

// Frame is one surveillance image with its capture context.
type Frame struct {
	Image      []byte
	Location   *geo.Point
	CameraID   string
	CapturedAt time.Time // defaults to the ingest time
}

// Result is one matched face returned to the ingest caller.
type Result struct {
	IdentityID string
	Similarity float64
	BBox       database.BBox
}

// Deps are the components a Pipeline drives.
type Deps struct {
	Identities database.IdentityReader
	Gallery    database.GalleryWriter
	Alerts     database.AlertStore
	Extractor  *facematch.Extractor
	Engine     *facematch.Engine
	Aggregator *facematch.Aggregator
	Evidence   *alerting.EvidenceLogger
	Throttle   *alerting.Throttle
	Queue      Enqueuer
	Events     events.Publisher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

// Pipeline is the detection and enrollment workflow.
type Pipeline struct {
	Deps
	log *slog.Logger
}

// New creates a pipeline. Events and Now are optional.
func New(d Deps) *Pipeline {
	if d.Events == nil {
		d.Events = events.Noop{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Pipeline{Deps: d, log: logging.OrDiscard(d.Logger)}
}

// Ready reports whether the face model can serve requests.
func (p *Pipeline) Ready() bool {
	return p.Extractor.Available()
}

// Ingest matches every face of the frame, logs evidence for each match,
// admits alerts through the cooldown and queues them for delivery. Decode,
// model and storage failures are logged and never returned; a frame that
// cannot be processed yields no results.
func (p *Pipeline) Ingest(ctx context.Context, frame Frame) []Result {
	start := p.Now()
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = start
	}
	log := p.log.With("camera_id", frame.CameraID)

	dets, err := p.Engine.Match(ctx, frame.Image, frame.Location)
	if err != nil {
		outcome := classify(err)
		log.Warn("frame not processed", "outcome", outcome, "error", err)
		p.Metrics.RecordFrame(outcome, p.Now().Sub(start))
		return nil
	}

	dets = p.knownOnly(ctx, dets, log)
	if len(dets) == 0 {
		p.Metrics.RecordFrame(metrics.OutcomeNoMatch, p.Now().Sub(start))
		return nil
	}

	results := make([]Result, 0, len(dets))
	for _, d := range dets {
		p.Metrics.RecordDetection(d.Similarity)
		results = append(results, Result{IdentityID: d.IdentityID, Similarity: d.Similarity, BBox: d.BBox})
	}

	records, err := p.Evidence.LogFrame(ctx, frame.Image, dets, frame.CapturedAt)
	if err != nil {
		log.Error("evidence logging failed", "logged", len(records), "detections", len(dets), "error", err)
	}
	for i := range records {
		p.raise(ctx, &records[i], frame, log)
	}

	p.Metrics.RecordFrame(metrics.OutcomeMatch, p.Now().Sub(start))
	return results
}

// raise admits and queues the alert for one logged detection and publishes
// the detection event.
func (p *Pipeline) raise(ctx context.Context, rec *database.EvidenceRecord, frame Frame, log *slog.Logger) {
	ev := events.DetectionEvent{
		IdentityID: rec.IdentityID,
		Similarity: rec.Similarity,
		BBox:       rec.BBox,
		Location:   rec.Location,
		EvidenceID: rec.ID,
		CameraID:   frame.CameraID,
		CapturedAt: rec.CapturedAt,
	}

	alert, ok, err := p.Throttle.Admit(ctx, rec.IdentityID, rec.ID, p.Now())
	switch {
	case err != nil:
		log.Error("alert admission failed", "identity_id", rec.IdentityID, "evidence_id", rec.ID, "error", err)
	case ok:
		ev.AlertID = alert.ID
		p.Queue.Enqueue(alert.ID)
	}

	if err := p.Events.PublishDetection(ctx, ev); err != nil {
		log.Warn("detection event not published", "identity_id", rec.IdentityID, "error", err)
	}
}

// knownOnly drops detections whose identity no longer exists.
func (p *Pipeline) knownOnly(ctx context.Context, dets []facematch.Detection, log *slog.Logger) []facematch.Detection {
	known := make(map[string]bool)
	out := dets[:0]
	for _, d := range dets {
		ok, seen := known[d.IdentityID]
		if !seen {
			identity, err := p.Identities.GetIdentity(ctx, d.IdentityID)
			if err != nil {
				log.Error("identity lookup failed", "identity_id", d.IdentityID, "error", err)
			}
			ok = err == nil && identity != nil
			if err == nil && identity == nil {
				log.Warn("match for unknown identity skipped", "identity_id", d.IdentityID)
			}
			known[d.IdentityID] = ok
		}
		if ok {
			out = append(out, d)
		}
	}
	return out
}

func classify(err error) string {
	switch {
	case errors.Is(err, faces.ErrDecode):
		return metrics.OutcomeDecodeError
	case errors.Is(err, facematch.ErrModelUnavailable):
		return metrics.OutcomeModelDown
	default:
		return metrics.OutcomeError
	}
}

// Enroll aggregates the images into one signature and appends it to the
// identity's gallery. The previous entries are kept; matching uses the newest.
func (p *Pipeline) Enroll(ctx context.Context, identityID string, images [][]byte) (*database.GalleryEntry, error) {
	identity, err := p.Identities.GetIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("load identity %s: %w", identityID, err)
	}
	if identity == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownIdentity, identityID)
	}

	enrollment, err := p.Aggregator.Aggregate(ctx, images)
	if err != nil {
		p.Metrics.RecordEnrollment(false)
		return nil, fmt.Errorf("enroll %s: %w", identityID, err)
	}

	entry := &database.GalleryEntry{
		IdentityID:  identityID,
		Embedding:   enrollment.Embedding,
		Provenance:  enrollment.Provenance(),
		ImageCount:  enrollment.Used,
		FailedCount: enrollment.Failed,
	}
	if err := p.Gallery.AddEntry(ctx, entry); err != nil {
		p.Metrics.RecordEnrollment(false)
		return nil, fmt.Errorf("save gallery entry for %s: %w", identityID, err)
	}
	p.Engine.Invalidate()
	p.Metrics.RecordEnrollment(true)

	p.log.Info("identity enrolled",
		"identity_id", identityID, "entry_id", entry.ID, "provenance", entry.Provenance)
	return entry, nil
}

// Redispatch queues alerts that were never delivered, oldest first, and
// returns how many were accepted by the queue.
func (p *Pipeline) Redispatch(ctx context.Context, limit int) (int, error) {
	pending, err := p.Alerts.ListUndispatched(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list undispatched alerts: %w", err)
	}
	n := 0
	for _, a := range pending {
		if p.Queue.Enqueue(a.ID) {
			n++
		}
	}
	p.log.Info("undispatched alerts queued", "pending", len(pending), "queued", n)
	return n, nil
}
