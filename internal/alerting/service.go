package alerting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kozaktomas/reunite/internal/constants"
	"github.com/kozaktomas/reunite/internal/database"
)

// Action is a handler's response to a notification.
type Action string

const (
	ActionMarkReviewed Action = "mark_reviewed"
	ActionDismiss      Action = "dismiss"
)

// ParseAction accepts the action names and the short aliases "read" and "delete".
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(ActionMarkReviewed), "read":
		return ActionMarkReviewed, nil
	case string(ActionDismiss), "delete":
		return ActionDismiss, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Notification is an alert as shown to its handler.
type Notification struct {
	database.AlertRecord
	CaseID     string
	Name       string
	Similarity float64
}

// Service exposes the handler-facing notification operations.
type Service struct {
	alerts     database.AlertStore
	identities database.IdentityReader
	evidence   database.EvidenceStore
}

// NewService creates a notification service.
func NewService(alerts database.AlertStore, identities database.IdentityReader, evidence database.EvidenceStore) *Service {
	return &Service{alerts: alerts, identities: identities, evidence: evidence}
}

// Act applies action to an alert owned by handlerEmail. Dismissed alerts are
// kept and remain retrievable through Get.
func (s *Service) Act(ctx context.Context, handlerEmail string, alertID int64, action Action) error {
	if _, err := s.authorize(ctx, handlerEmail, alertID); err != nil {
		return err
	}

	var err error
	switch action {
	case ActionMarkReviewed:
		err = s.alerts.SetReviewed(ctx, alertID)
	case ActionDismiss:
		err = s.alerts.SetDismissed(ctx, alertID)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if errors.Is(err, database.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%s alert %d: %w", action, alertID, err)
	}
	return nil
}

// Get returns one alert, dismissed or not, if handlerEmail owns it.
func (s *Service) Get(ctx context.Context, handlerEmail string, alertID int64) (*Notification, error) {
	alert, err := s.authorize(ctx, handlerEmail, alertID)
	if err != nil {
		return nil, err
	}
	n, err := s.view(ctx, *alert, nil)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// ListForHandler returns the non-dismissed alerts of every identity the
// handler is responsible for, newest first, plus the unread count.
func (s *Service) ListForHandler(ctx context.Context, handlerEmail string, limit int) ([]Notification, int, error) {
	identities, err := s.handlerIdentities(ctx, handlerEmail)
	if err != nil || len(identities) == 0 {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = constants.DefaultAlertListLimit
	}

	ids := make([]string, 0, len(identities))
	byID := make(map[string]*database.Identity, len(identities))
	for i := range identities {
		ids = append(ids, identities[i].ID)
		byID[identities[i].ID] = &identities[i]
	}

	alerts, err := s.alerts.ListAlerts(ctx, ids, false, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list alerts: %w", err)
	}
	unread, err := s.alerts.CountUnread(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("count unread: %w", err)
	}

	out := make([]Notification, 0, len(alerts))
	for _, a := range alerts {
		n, err := s.view(ctx, a, byID[a.IdentityID])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, n)
	}
	return out, unread, nil
}

// UnreadCount counts the handler's alerts that are neither reviewed nor dismissed.
func (s *Service) UnreadCount(ctx context.Context, handlerEmail string) (int, error) {
	identities, err := s.handlerIdentities(ctx, handlerEmail)
	if err != nil || len(identities) == 0 {
		return 0, err
	}
	ids := make([]string, 0, len(identities))
	for _, id := range identities {
		ids = append(ids, id.ID)
	}
	n, err := s.alerts.CountUnread(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return n, nil
}

func (s *Service) handlerIdentities(ctx context.Context, handlerEmail string) ([]database.Identity, error) {
	handlerEmail = strings.TrimSpace(handlerEmail)
	if handlerEmail == "" {
		return nil, ErrForbidden
	}
	identities, err := s.identities.ListIdentitiesByHandler(ctx, handlerEmail)
	if err != nil {
		return nil, fmt.Errorf("list identities for handler: %w", err)
	}
	return identities, nil
}

// authorize loads the alert and checks that handlerEmail is responsible for
// its identity.
func (s *Service) authorize(ctx context.Context, handlerEmail string, alertID int64) (*database.AlertRecord, error) {
	handlerEmail = strings.TrimSpace(handlerEmail)
	if handlerEmail == "" {
		return nil, ErrForbidden
	}
	alert, err := s.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("load alert %d: %w", alertID, err)
	}
	if alert == nil {
		return nil, ErrNotFound
	}
	identity, err := s.identities.GetIdentity(ctx, alert.IdentityID)
	if err != nil {
		return nil, fmt.Errorf("load identity %s: %w", alert.IdentityID, err)
	}
	if identity == nil || !strings.EqualFold(strings.TrimSpace(identity.HandlerEmail), handlerEmail) {
		return nil, ErrForbidden
	}
	return alert, nil
}

func (s *Service) view(ctx context.Context, a database.AlertRecord, identity *database.Identity) (Notification, error) {
	n := Notification{AlertRecord: a, CaseID: a.IdentityID}
	if identity == nil {
		var err error
		if identity, err = s.identities.GetIdentity(ctx, a.IdentityID); err != nil {
			return n, fmt.Errorf("load identity %s: %w", a.IdentityID, err)
		}
	}
	if identity != nil {
		n.Name = identity.Name
	}
	ev, err := s.evidence.GetEvidence(ctx, a.EvidenceID)
	if err != nil {
		return n, fmt.Errorf("load evidence %d: %w", a.EvidenceID, err)
	}
	if ev != nil {
		n.Similarity = ev.Similarity
	}
	return n, nil
}
