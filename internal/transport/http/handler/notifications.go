package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-notify-nosql/internal/application/notification"
	"github.com/go-notify-nosql/internal/domain"
	"github.com/go-notify-nosql/internal/transport/http/middleware"
)

// NotificationHandler handles feed and ingestion endpoints.
type NotificationHandler struct {
	svc notification.Service
}

func NewNotificationHandler(svc notification.Service) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

type batchRequest struct {
	Notifications       []domain.Intent `json:"notifications"`
	BundleWindowMinutes int             `json:"bundle_window_minutes"`
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	page, perPage := parsePagination(r)
	p, err := h.svc.Fetch(r.Context(), claims.UserID, page, perPage)
	if err != nil {
		httpError(w, err)
		return
	}
	items := p.Notifications
	if items == nil {
		items = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, FeedEnvelope{
		Notifications: items,
		Pagination: PaginationEnvelope{
			CurrentPage: p.Page,
			TotalPages:  p.TotalPages,
			TotalCount:  p.TotalCount,
			HasMore:     p.HasMore,
			Limit:       p.PageSize,
		},
	})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	n, err := h.svc.MarkRead(r.Context(), chi.URLParam(r, "id"), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *NotificationHandler) BundleDetails(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	n, err := h.svc.GetBundleDetails(r.Context(), chi.URLParam(r, "id"), claims.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// Create ingests one event. A suppressed duplicate answers 200 with the
// existing record; anything persisted answers 201.
func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in domain.Intent
	if !decodeJSON(w, r, &in) {
		return
	}
	out, err := h.svc.CreateOne(r.Context(), in)
	if err != nil {
		httpError(w, err)
		return
	}
	status := http.StatusCreated
	if out.Action == domain.ActionSkipped {
		status = http.StatusOK
	}
	writeJSON(w, status, OutcomeView{Outcome: out})
}

func (h *NotificationHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	window := time.Duration(req.BundleWindowMinutes) * time.Minute
	outcomes, err := h.svc.CreateBatch(r.Context(), req.Notifications, window)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBatchEnvelope(len(req.Notifications), outcomes))
}

func (h *NotificationHandler) CreateBulk(w http.ResponseWriter, r *http.Request) {
	var req notification.BulkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	outcomes, err := h.svc.CreateBulk(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBatchEnvelope(len(req.RecipientIDs), outcomes))
}

func (h *NotificationHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.svc.ManualCleanup(r.Context(), chi.URLParam(r, "recipientID"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}
