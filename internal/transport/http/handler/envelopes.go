package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-notify-nosql/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PaginationEnvelope describes one feed page.
type PaginationEnvelope struct {
	CurrentPage int  `json:"current_page"`
	TotalPages  int  `json:"total_pages"`
	TotalCount  int  `json:"total_count"`
	HasMore     bool `json:"has_more"`
	Limit       int  `json:"limit"`
}

// FeedEnvelope wraps paginated notification responses.
type FeedEnvelope struct {
	Notifications []domain.Notification `json:"notifications"`
	Pagination    PaginationEnvelope    `json:"pagination"`
}

// OutcomeView is one ingestion outcome with its error flattened to text.
type OutcomeView struct {
	domain.Outcome
	Error string `json:"error,omitempty"`
}

// BatchSummary counts outcomes by action.
type BatchSummary struct {
	Total   int `json:"total"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// BatchEnvelope wraps batch and bulk ingestion responses.
type BatchEnvelope struct {
	Outcomes []OutcomeView `json:"outcomes"`
	Summary  BatchSummary  `json:"summary"`
}

func newBatchEnvelope(total int, outcomes []domain.Outcome) BatchEnvelope {
	env := BatchEnvelope{Outcomes: make([]OutcomeView, 0, len(outcomes)), Summary: BatchSummary{Total: total}}
	for _, o := range outcomes {
		v := OutcomeView{Outcome: o}
		switch {
		case !o.Success():
			v.Error = o.Err.Error()
			env.Summary.Failed++
		case o.Action == domain.ActionCreated:
			env.Summary.Created++
		case o.Action == domain.ActionUpdated:
			env.Summary.Updated++
		default:
			env.Summary.Skipped++
		}
		env.Outcomes = append(env.Outcomes, v)
	}
	return env
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps domain sentinel errors to status codes. Unclassified errors
// are logged and reported as 500 without detail.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// parsePagination reads page and per_page; zero means "use the default".
func parsePagination(r *http.Request) (page, perPage int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	perPage, _ = strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage < 0 {
		perPage = 0
	}
	return page, perPage
}
