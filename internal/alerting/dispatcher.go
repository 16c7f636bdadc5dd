package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/reunite/internal/constants"
	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/geo"
	"github.com/kozaktomas/reunite/internal/logging"
	"github.com/kozaktomas/reunite/internal/metrics"
	"github.com/kozaktomas/reunite/internal/notify"
	"github.com/kozaktomas/reunite/internal/storage"
)

// StationFinder returns the stations nearest to a point.
type StationFinder interface {
	Nearest(ctx context.Context, origin geo.Point, k int) ([]geo.Ranked[database.Station], error)
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// Primary must succeed for an alert to count as delivered.
	Primary notify.Sender
	// Secondary channels are best effort and run once per delivered alert.
	Secondary       []notify.Sender
	NearestStations int
	Metrics         *metrics.Metrics
	Logger          *slog.Logger
	Now             func() time.Time
}

// Dispatcher delivers one admitted alert.
type Dispatcher struct {
	alerts     database.AlertStore
	identities database.IdentityReader
	evidence   database.EvidenceStore
	images     storage.ImageStore
	stations   StationFinder
	opts       DispatcherOptions
	inflight   *keyedMutex
	log        *slog.Logger
}

// NewDispatcher creates a dispatcher. stations may be nil, in which case only
// the handler and the contact are notified.
func NewDispatcher(
	alerts database.AlertStore,
	identities database.IdentityReader,
	evidence database.EvidenceStore,
	images storage.ImageStore,
	stations StationFinder,
	opts DispatcherOptions,
) *Dispatcher {
	if opts.NearestStations <= 0 {
		opts.NearestStations = constants.NearestStationCount
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dispatcher{
		alerts:     alerts,
		identities: identities,
		evidence:   evidence,
		images:     images,
		stations:   stations,
		opts:       opts,
		inflight:   newKeyedMutex(),
		log:        logging.OrDiscard(opts.Logger),
	}
}

// Dispatch delivers the alert unless it was already delivered. Errors wrapped
// with Permanent must not be retried.
func (d *Dispatcher) Dispatch(ctx context.Context, alertID int64) error {
	unlock := d.inflight.Lock(strconv.FormatInt(alertID, 10))
	defer unlock()

	alert, err := d.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return fmt.Errorf("load alert %d: %w", alertID, err)
	}
	if alert == nil {
		return Permanent(fmt.Errorf("alert %d: %w", alertID, ErrNotFound))
	}
	if alert.DispatchedAt != nil {
		d.log.Debug("alert already dispatched", "alert_id", alertID, "dispatched_at", alert.DispatchedAt)
		d.opts.Metrics.RecordDispatch(metrics.DispatchSkipped)
		return nil
	}
	if d.opts.Primary == nil {
		return Permanent(ErrNoChannel)
	}

	msg, err := d.compose(ctx, alert)
	if err != nil {
		return err
	}

	if err := d.opts.Primary.Send(ctx, msg); err != nil {
		d.opts.Metrics.RecordChannelFailure(d.opts.Primary.Name())
		if errors.Is(err, notify.ErrNoRecipients) {
			return Permanent(err)
		}
		return fmt.Errorf("send alert %d via %s: %w", alertID, d.opts.Primary.Name(), err)
	}

	for _, s := range d.opts.Secondary {
		if err := s.Send(ctx, msg); err != nil {
			d.opts.Metrics.RecordChannelFailure(s.Name())
			d.log.Warn("secondary channel failed", "alert_id", alertID, "channel", s.Name(), "error", err)
		}
	}

	marked, err := d.alerts.MarkDispatched(ctx, alertID, d.opts.Now())
	if err != nil {
		// The message is out; a retry would send it again.
		d.log.Error("failed to mark alert dispatched", "alert_id", alertID, "error", err)
		return Permanent(fmt.Errorf("mark alert %d dispatched: %w", alertID, err))
	}
	if !marked {
		d.log.Warn("alert was marked dispatched concurrently", "alert_id", alertID)
	}

	d.opts.Metrics.RecordDispatch(metrics.DispatchSent)
	d.log.Info("alert dispatched",
		"alert_id", alertID, "identity_id", alert.IdentityID,
		"to", msg.To, "cc", msg.Cc)
	return nil
}

// compose gathers everything the channels need for one alert.
func (d *Dispatcher) compose(ctx context.Context, alert *database.AlertRecord) (*notify.Alert, error) {
	identity, err := d.identities.GetIdentity(ctx, alert.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("load identity %s: %w", alert.IdentityID, err)
	}
	if identity == nil {
		return nil, Permanent(fmt.Errorf("alert %d references %s: %w", alert.ID, alert.IdentityID, ErrUnknownIdentity))
	}

	msg := &notify.Alert{
		AlertID:    alert.ID,
		CaseID:     identity.ID,
		Name:       identity.Name,
		CapturedAt: alert.SentAt,
	}

	ev, err := d.evidence.GetEvidence(ctx, alert.EvidenceID)
	if err != nil {
		return nil, fmt.Errorf("load evidence %d: %w", alert.EvidenceID, err)
	}
	if ev != nil {
		msg.Similarity = ev.Similarity
		msg.Location = ev.Location
		msg.CapturedAt = ev.CapturedAt
		d.attachImage(ctx, msg, ev.ImageKey)
	} else {
		d.log.Warn("alert evidence missing", "alert_id", alert.ID, "evidence_id", alert.EvidenceID)
	}

	cc := []string{identity.ContactEmail}
	cc = append(cc, d.stationEmails(ctx, msg.Location)...)
	msg.To, msg.Cc = recipients(identity.HandlerEmail, cc)
	return msg, nil
}

func (d *Dispatcher) attachImage(ctx context.Context, msg *notify.Alert, key string) {
	if key == "" {
		return
	}
	data, err := d.images.Get(ctx, key)
	if err != nil {
		d.log.Warn("evidence image unavailable, sending without it", "alert_id", msg.AlertID, "key", key, "error", err)
		return
	}
	msg.Image = data
	msg.ImageName = path.Base(key)
}

// stationEmails returns the addresses of the stations nearest to loc. Lookup
// failures degrade to no stations.
func (d *Dispatcher) stationEmails(ctx context.Context, loc *geo.Point) []string {
	if loc == nil || d.stations == nil {
		return nil
	}
	nearest, err := d.stations.Nearest(ctx, *loc, d.opts.NearestStations)
	if err != nil {
		d.log.Warn("station lookup failed", "location", loc.String(), "error", err)
		return nil
	}
	emails := make([]string, 0, len(nearest))
	for _, r := range nearest {
		emails = append(emails, r.Item.Email)
	}
	return emails
}

// recipients builds the To and Cc lists. Blank addresses are dropped and
// addresses are deduplicated case-insensitively, To taking precedence. When
// there is no handler the first copy recipient is promoted to To.
func recipients(handler string, cc []string) ([]string, []string) {
	seen := make(map[string]bool)
	var to, copies []string

	if h := strings.TrimSpace(handler); h != "" {
		to = append(to, h)
		seen[strings.ToLower(h)] = true
	}
	for _, addr := range cc {
		addr = strings.TrimSpace(addr)
		if addr == "" || seen[strings.ToLower(addr)] {
			continue
		}
		seen[strings.ToLower(addr)] = true
		copies = append(copies, addr)
	}
	if len(to) == 0 && len(copies) > 0 {
		to, copies = copies[:1], copies[1:]
	}
	return to, copies
}
