/*
handlers.go - HTTP API handlers for the points engine

PURPOSE:
  Exposes the ledger service, transaction log, leaderboard cache, and
  user directory via REST. Handles HTTP request/response and JSON
  serialization, then delegates to domain logic.

ENDPOINTS:
  Points:
    POST   /api/points/alter           Apply a signed delta
    POST   /api/points/add             Award points (positive amount)
    POST   /api/points/subtract        Deduct points (positive amount)
    POST   /api/points/set             Set balance to a target value

  Users:
    POST   /api/users                  Add a user to the directory
    DELETE /api/users/{id}             Remove a user
    GET    /api/users/{id}/balance/{category}
    GET    /api/users/{id}/logs/{category}?limit=&offset=

  Leaderboard:
    GET    /api/leaderboard/{category}?n=

  Categories:
    GET    /api/categories
    POST   /api/categories
    DELETE /api/categories/{slug}

  Log metadata:
    POST   /api/logs/{id}/meta
    GET    /api/logs/{id}/meta
    DELETE /api/logs/{id}/meta?key=&value=

  Admin:
    POST   /api/admin/regenerate       Re-render log text for a category

SECURITY NOTE:
  No authentication middleware. All endpoints are public; front this
  service with your edge auth in production.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/warp/points-engine/points"
)

// Handler holds the API's dependencies.
type Handler struct {
	Service   *points.Service
	Top       *points.TopUsers
	Log       points.TransactionLog
	Directory points.UserDirectory
	Registry  points.CategoryRegistry
}

func NewHandler(svc *points.Service, top *points.TopUsers, log points.TransactionLog, dir points.UserDirectory) *Handler {
	return &Handler{
		Service:   svc,
		Top:       top,
		Log:       log,
		Directory: dir,
		Registry:  svc.Registry,
	}
}

// =============================================================================
// POINTS MUTATIONS
// =============================================================================

// mutateFn is the shared shape of Alter, Add, and Subtract.
type mutateFn func(ctx context.Context, user points.UserID, category points.Category, amount int64, kind points.Kind, meta map[string]string, logText string) (points.LogID, error)

func (h *Handler) AlterPoints(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.Service.Alter)
}

func (h *Handler) AddPoints(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.Service.Add)
}

func (h *Handler) SubtractPoints(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.Service.Subtract)
}

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op mutateFn) {
	var req alterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", points.ErrInvalidArgument, err))
		return
	}

	logID, err := op(r.Context(),
		points.UserID(req.UserID), points.Category(req.Category),
		req.Points, points.Kind(req.Kind), req.Metadata, req.LogText)
	if err != nil {
		respondError(w, err)
		return
	}
	h.respondAlter(w, r, points.UserID(req.UserID), points.Category(req.Category), logID)
}

func (h *Handler) SetPoints(w http.ResponseWriter, r *http.Request) {
	var req setRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", points.ErrInvalidArgument, err))
		return
	}

	logID, err := h.Service.Set(r.Context(),
		points.UserID(req.UserID), points.Category(req.Category),
		req.Target, points.Kind(req.Kind), req.Metadata, req.LogText)
	if err != nil {
		respondError(w, err)
		return
	}
	h.respondAlter(w, r, points.UserID(req.UserID), points.Category(req.Category), logID)
}

func (h *Handler) respondAlter(w http.ResponseWriter, r *http.Request, user points.UserID, category points.Category, logID points.LogID) {
	balance, err := h.Service.Balance(r.Context(), user, category)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := alterResponse{Balance: balance}
	if logID != 0 {
		id := int64(logID)
		resp.LogID = &id
	}
	respond(w, http.StatusOK, resp)
}

// =============================================================================
// READS
// =============================================================================

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	user, err := pathUserID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	category := points.Category(chi.URLParam(r, "category"))

	balance, err := h.Service.Balance(r.Context(), user, category)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, balanceResponse{
		UserID:   int64(user),
		Category: string(category),
		Balance:  balance,
	})
}

func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	user, err := pathUserID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	category := points.Category(chi.URLParam(r, "category"))
	if !h.Registry.Exists(category) {
		respondError(w, &points.UnknownCategoryError{Category: category})
		return
	}

	limit := queryInt(r, "limit", 25)
	offset := queryInt(r, "offset", 0)

	logs, err := h.Log.Logs(r.Context(), user, category, limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}

	out := make([]logResponse, 0, len(logs))
	for _, rec := range logs {
		out = append(out, toLogResponse(rec))
	}
	respond(w, http.StatusOK, out)
}

func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	category := points.Category(chi.URLParam(r, "category"))
	if !h.Registry.Exists(category) {
		respondError(w, &points.UnknownCategoryError{Category: category})
		return
	}
	n := queryInt(r, "n", 10)

	users, err := h.Top.Top(r.Context(), n, category)
	if err != nil {
		respondError(w, err)
		return
	}

	ids := make([]int64, 0, len(users))
	for _, id := range users {
		ids = append(ids, int64(id))
	}
	respond(w, http.StatusOK, leaderboardResponse{
		Category: string(category),
		Users:    ids,
	})
}

// =============================================================================
// USER DIRECTORY
// =============================================================================

func (h *Handler) AddUser(w http.ResponseWriter, r *http.Request) {
	var req addUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", points.ErrInvalidArgument, err))
		return
	}
	if req.UserID <= 0 {
		respondError(w, points.ErrInvalidUser)
		return
	}

	if err := h.Directory.AddUser(r.Context(), points.UserID(req.UserID)); err != nil {
		respondError(w, err)
		return
	}
	h.Service.Bus.Publish(points.Event{Type: points.EventUserAdded, User: points.UserID(req.UserID)})
	respond(w, http.StatusCreated, addUserRequest{UserID: req.UserID})
}

func (h *Handler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	user, err := pathUserID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := h.Directory.RemoveUser(r.Context(), user); err != nil {
		respondError(w, err)
		return
	}
	h.Service.Bus.Publish(points.Event{Type: points.EventUserRemoved, User: user})
	respond(w, http.StatusNoContent, nil)
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	out := []categoryResponse{}
	for _, slug := range h.Registry.Slugs() {
		settings, _ := h.Registry.Settings(slug)
		out = append(out, categoryResponse{
			Slug:  string(slug),
			Name:  settings.Name,
			Floor: settings.Floor,
		})
	}
	respond(w, http.StatusOK, out)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", points.ErrInvalidArgument, err))
		return
	}

	slug := points.Category(req.Slug)
	if slug == "" {
		slug = points.Slugify(req.Name)
	}
	if slug == "" {
		respondError(w, fmt.Errorf("%w: category name produced an empty slug", points.ErrInvalidArgument))
		return
	}

	name := req.Name
	if name == "" {
		name = string(slug)
	}
	if err := h.Registry.Register(slug, points.CategorySettings{Name: name, Floor: req.Floor}); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, categoryResponse{
		Slug:  string(slug),
		Name:  name,
		Floor: req.Floor,
	})
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	category := points.Category(chi.URLParam(r, "slug"))
	if err := h.Service.DeleteCategory(r.Context(), category); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

// =============================================================================
// LOG METADATA
// =============================================================================

func (h *Handler) AddLogMeta(w http.ResponseWriter, r *http.Request) {
	id, err := pathLogID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req addMetaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", points.ErrInvalidArgument, err))
		return
	}
	if req.Key == "" {
		respondError(w, fmt.Errorf("%w: metadata key is required", points.ErrInvalidArgument))
		return
	}

	if err := h.Log.AddMeta(r.Context(), id, req.Key, req.Value, req.Unique); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, req)
}

func (h *Handler) GetLogMeta(w http.ResponseWriter, r *http.Request) {
	id, err := pathLogID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	if key := r.URL.Query().Get("key"); key != "" {
		values, err := h.Log.Meta(r.Context(), id, key)
		if err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusOK, map[string][]string{key: values})
		return
	}

	all, err := h.Log.AllMeta(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, all)
}

func (h *Handler) DeleteLogMeta(w http.ResponseWriter, r *http.Request) {
	id, err := pathLogID(r)
	if err != nil {
		respondError(w, err)
		return
	}

	q := r.URL.Query()
	allMatching := q.Get("all") == "true"
	if err := h.Log.DeleteMeta(r.Context(), id, q.Get("key"), q.Get("value"), allMatching); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

// =============================================================================
// ADMIN
// =============================================================================

func (h *Handler) RegenerateLogText(w http.ResponseWriter, r *http.Request) {
	var req regenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", points.ErrInvalidArgument, err))
		return
	}
	category := points.Category(req.Category)
	if !h.Registry.Exists(category) {
		respondError(w, &points.UnknownCategoryError{Category: category})
		return
	}

	touched, updated, err := h.Service.RegenerateLogText(r.Context(), category)
	if err != nil {
		respondError(w, err)
		return
	}

	out := regenerateResponse{Updated: updated, Touched: []touchedResponse{}}
	for _, pair := range touched {
		out.Touched = append(out.Touched, touchedResponse{
			UserID:   int64(pair.User),
			Category: string(pair.Category),
		})
	}
	respond(w, http.StatusOK, out)
}

// =============================================================================
// PARAM HELPERS
// =============================================================================

func pathUserID(r *http.Request) (points.UserID, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, points.ErrInvalidUser
	}
	return points.UserID(id), nil
}

func pathLogID(r *http.Request) (points.LogID, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid log ID", points.ErrInvalidArgument)
	}
	return points.LogID(id), nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
