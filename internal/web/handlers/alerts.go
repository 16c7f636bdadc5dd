package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/reunite/internal/alerting"
	"github.com/kozaktomas/reunite/internal/constants"
	"github.com/kozaktomas/reunite/internal/web/middleware"
)

// AlertService is the handler-facing notification API.
type AlertService interface {
	ListForHandler(ctx context.Context, handlerEmail string, limit int) ([]alerting.Notification, int, error)
	Get(ctx context.Context, handlerEmail string, alertID int64) (*alerting.Notification, error)
	Act(ctx context.Context, handlerEmail string, alertID int64, action alerting.Action) error
}

// AlertsHandler serves a handler's notifications.
type AlertsHandler struct {
	service AlertService
}

// NewAlertsHandler creates a new alerts handler.
func NewAlertsHandler(service AlertService) *AlertsHandler {
	return &AlertsHandler{service: service}
}

// AlertResponse is one notification.
type AlertResponse struct {
	ID         int64      `json:"id"`
	CaseID     string     `json:"case_id"`
	Name       string     `json:"name,omitempty"`
	Similarity float64    `json:"similarity"`
	EvidenceID int64      `json:"evidence_id"`
	SentAt     time.Time  `json:"sent_at"`
	Reviewed   bool       `json:"reviewed"`
	Dismissed  bool       `json:"dismissed"`
	Dispatched *time.Time `json:"dispatched_at,omitempty"`
}

// AlertListResponse is the handler's inbox.
type AlertListResponse struct {
	Alerts []AlertResponse `json:"alerts"`
	Unread int             `json:"unread"`
}

// ActionRequest is a notification action.
type ActionRequest struct {
	Action string `json:"action"`
}

func alertResponse(n *alerting.Notification) AlertResponse {
	return AlertResponse{
		ID:         n.ID,
		CaseID:     n.CaseID,
		Name:       n.Name,
		Similarity: n.Similarity,
		EvidenceID: n.EvidenceID,
		SentAt:     n.SentAt,
		Reviewed:   n.Reviewed,
		Dismissed:  n.Dismissed,
		Dispatched: n.DispatchedAt,
	}
}

// respondAlertError maps service errors to status codes.
func respondAlertError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, alerting.ErrNotFound):
		respondError(w, http.StatusNotFound, "alert not found")
	case errors.Is(err, alerting.ErrForbidden):
		respondError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, alerting.ErrInvalidAction):
		respondError(w, http.StatusBadRequest, "invalid action")
	default:
		logger().Error("alert request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func alertID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid alert id")
		return 0, false
	}
	return id, true
}

// List handles GET /alerts.
func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	handler := middleware.MustGetHandler(r.Context(), w)
	if handler == "" {
		return
	}
	limit := constants.DefaultAlertListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	list, unread, err := h.service.ListForHandler(r.Context(), handler, limit)
	if err != nil {
		respondAlertError(w, err)
		return
	}
	resp := AlertListResponse{Alerts: make([]AlertResponse, 0, len(list)), Unread: unread}
	for i := range list {
		resp.Alerts = append(resp.Alerts, alertResponse(&list[i]))
	}
	respondJSON(w, http.StatusOK, resp)
}

// Get handles GET /alerts/{id}; dismissed alerts are returned too.
func (h *AlertsHandler) Get(w http.ResponseWriter, r *http.Request) {
	handler := middleware.MustGetHandler(r.Context(), w)
	if handler == "" {
		return
	}
	id, ok := alertID(w, r)
	if !ok {
		return
	}
	n, err := h.service.Get(r.Context(), handler, id)
	if err != nil {
		respondAlertError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, alertResponse(n))
}

// Action handles POST /alerts/{id}/action.
func (h *AlertsHandler) Action(w http.ResponseWriter, r *http.Request) {
	handler := middleware.MustGetHandler(r.Context(), w)
	if handler == "" {
		return
	}
	id, ok := alertID(w, r)
	if !ok {
		return
	}
	var req ActionRequest
	if !decodeJSON(w, r, constants.MaxJSONBodySize, &req) {
		return
	}
	action, err := alerting.ParseAction(req.Action)
	if err != nil {
		respondAlertError(w, err)
		return
	}
	if err := h.service.Act(r.Context(), handler, id, action); err != nil {
		respondAlertError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "action": string(action), "ok": true})
}
