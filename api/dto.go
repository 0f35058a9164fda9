/*
dto.go - Request/response data structures and JSON helpers

PURPOSE:
  Wire-format structs for the REST API plus the shared respond/error
  helpers. Handlers translate between these and the points domain
  types; domain types never cross the HTTP boundary directly.

ERROR ENVELOPE:
  All errors are returned as {"error": "..."} with a status mapped
  from the domain error taxonomy:
  - 400: invalid argument (bad user ID, bad amount, empty kind)
  - 404: unknown category, unknown user
  - 409: adjuster veto, duplicate unique metadata
  - 500: persistence failures
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/warp/points-engine/points"
)

// =============================================================================
// REQUESTS
// =============================================================================

type alterRequest struct {
	UserID   int64             `json:"user_id"`
	Category string            `json:"category"`
	Points   int64             `json:"points"`
	Kind     string            `json:"kind"`
	Metadata map[string]string `json:"metadata,omitempty"`
	LogText  string            `json:"log_text,omitempty"`
}

type setRequest struct {
	UserID   int64             `json:"user_id"`
	Category string            `json:"category"`
	Target   int64             `json:"target"`
	Kind     string            `json:"kind"`
	Metadata map[string]string `json:"metadata,omitempty"`
	LogText  string            `json:"log_text,omitempty"`
}

type createCategoryRequest struct {
	Slug  string `json:"slug,omitempty"`
	Name  string `json:"name"`
	Floor int64  `json:"floor,omitempty"`
}

type addUserRequest struct {
	UserID int64 `json:"user_id"`
}

type addMetaRequest struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Unique bool   `json:"unique,omitempty"`
}

type regenerateRequest struct {
	Category string `json:"category"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type alterResponse struct {
	// LogID is null when the mutation succeeded without a log record.
	LogID   *int64 `json:"log_id"`
	Balance int64  `json:"balance"`
}

type balanceResponse struct {
	UserID   int64  `json:"user_id"`
	Category string `json:"category"`
	Balance  int64  `json:"balance"`
}

type logResponse struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Category  string `json:"category"`
	Delta     int64  `json:"delta"`
	Kind      string `json:"kind"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	TenantID  string `json:"tenant_id,omitempty"`
}

type leaderboardResponse struct {
	Category string  `json:"category"`
	Users    []int64 `json:"users"`
}

type categoryResponse struct {
	Slug  string `json:"slug"`
	Name  string `json:"name"`
	Floor int64  `json:"floor"`
}

type regenerateResponse struct {
	Updated int               `json:"updated"`
	Touched []touchedResponse `json:"touched"`
}

type touchedResponse struct {
	UserID   int64  `json:"user_id"`
	Category string `json:"category"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// =============================================================================
// HELPERS
// =============================================================================

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func respondError(w http.ResponseWriter, err error) {
	respond(w, statusFor(err), errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, points.ErrInvalidCategory):
		return http.StatusNotFound
	case errors.Is(err, points.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, points.ErrAdjustmentRejected),
		errors.Is(err, points.ErrDuplicateMeta):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func toLogResponse(rec points.LogRecord) logResponse {
	return logResponse{
		ID:        int64(rec.ID),
		UserID:    int64(rec.UserID),
		Category:  string(rec.Category),
		Delta:     rec.Delta,
		Kind:      string(rec.Kind),
		Text:      rec.Text,
		Timestamp: rec.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		TenantID:  rec.TenantID,
	}
}
