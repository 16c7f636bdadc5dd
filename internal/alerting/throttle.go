package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kozaktomas/reunite/internal/constants"
	"github.com/kozaktomas/reunite/internal/database"
	"github.com/kozaktomas/reunite/internal/logging"
	"github.com/kozaktomas/reunite/internal/metrics"
)

// Throttle is the per-identity cooldown gate. It is the only place that
// decides whether an alert is raised.
type Throttle struct {
	store   database.AlertStore
	window  time.Duration
	locks   *keyedMutex
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewThrottle creates a throttle with the given cooldown window.
func NewThrottle(store database.AlertStore, window time.Duration, m *metrics.Metrics, logger *slog.Logger) *Throttle {
	if window <= 0 {
		window = constants.DefaultAlertCooldown
	}
	return &Throttle{
		store:   store,
		window:  window,
		locks:   newKeyedMutex(),
		metrics: m,
		log:     logging.OrDiscard(logger),
	}
}

// Window returns the cooldown window.
func (t *Throttle) Window() time.Duration {
	return t.window
}

// Admit creates an alert for identityID unless the identity is cooling down.
// Calls for the same identity are serialized in-process and the store insert
// is itself conditional, so concurrent callers admit at most one alert per window.
func (t *Throttle) Admit(
	ctx context.Context, identityID string, evidenceID int64, now time.Time,
) (*database.AlertRecord, bool, error) {
	unlock := t.locks.Lock(identityID)
	defer unlock()

	alert := &database.AlertRecord{IdentityID: identityID, EvidenceID: evidenceID, SentAt: now}
	ok, err := t.store.CreateIfCooledDown(ctx, alert, t.window)
	if err != nil {
		return nil, false, fmt.Errorf("admit alert for %s: %w", identityID, err)
	}
	t.metrics.RecordThrottle(ok)

	if !ok {
		t.log.Info("alert suppressed during cooldown",
			"identity_id", identityID, "evidence_id", evidenceID, "window", t.window)
		return nil, false, nil
	}
	t.log.Info("alert admitted", "alert_id", alert.ID, "identity_id", identityID, "evidence_id", evidenceID)
	return alert, true, nil
}
