/*
handlers_test.go - HTTP-level tests for the REST API

Exercises the full router with an in-memory store: request decoding,
status mapping from the domain error taxonomy, and the JSON shapes.
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/warp/points-engine/api"
	"github.com/warp/points-engine/points"
	memstore "github.com/warp/points-engine/points/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (http.Handler, *points.Service, *memstore.Memory) {
	t.Helper()

	mem := memstore.NewMemory()
	registry := points.NewMemoryRegistry()
	if err := registry.Register("points", points.CategorySettings{Name: "Points", Floor: 0}); err != nil {
		t.Fatalf("registering category: %v", err)
	}

	svc := points.NewService(mem, mem, registry, nil)
	top := points.NewTopUsers(mem, nil)
	top.Bind(svc.Bus)

	h := api.NewHandler(svc, top, mem, mem)
	return api.NewRouter(h), svc, mem
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

func TestAPI_AddPoints(t *testing.T) {
	// GIVEN: A fresh user
	// WHEN: POSTing an award
	// THEN: 200 with the new balance and a log ID

	handler, _, _ := newTestServer(t)

	w := doJSON(t, handler, http.MethodPost, "/api/points/add", map[string]any{
		"user_id": 1, "category": "points", "points": 10, "kind": "bonus",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		LogID   *int64 `json:"log_id"`
		Balance int64  `json:"balance"`
	}
	decode(t, w, &resp)
	if resp.Balance != 10 {
		t.Errorf("expected balance 10, got %d", resp.Balance)
	}
	if resp.LogID == nil || *resp.LogID == 0 {
		t.Error("expected a log ID")
	}
}

func TestAPI_SubtractClampsToFloor(t *testing.T) {
	handler, _, _ := newTestServer(t)

	doJSON(t, handler, http.MethodPost, "/api/points/add", map[string]any{
		"user_id": 1, "category": "points", "points": 10, "kind": "bonus",
	})
	w := doJSON(t, handler, http.MethodPost, "/api/points/subtract", map[string]any{
		"user_id": 1, "category": "points", "points": 15, "kind": "penalty",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Balance int64 `json:"balance"`
	}
	decode(t, w, &resp)
	if resp.Balance != 0 {
		t.Errorf("expected clamped balance 0, got %d", resp.Balance)
	}
}

func TestAPI_SetPoints(t *testing.T) {
	handler, _, _ := newTestServer(t)

	w := doJSON(t, handler, http.MethodPost, "/api/points/set", map[string]any{
		"user_id": 1, "category": "points", "target": 25, "kind": "correction",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Balance int64 `json:"balance"`
	}
	decode(t, w, &resp)
	if resp.Balance != 25 {
		t.Errorf("expected balance 25, got %d", resp.Balance)
	}
}

func TestAPI_UnloggedMutationHasNullLogID(t *testing.T) {
	// GIVEN: Logging suppressed for a kind
	// WHEN: Mutating with that kind
	// THEN: 200 with "log_id": null

	handler, svc, _ := newTestServer(t)
	svc.ShouldLog = func(req points.AlterRequest, _ int64) bool {
		return req.Kind != "silent"
	}

	w := doJSON(t, handler, http.MethodPost, "/api/points/add", map[string]any{
		"user_id": 1, "category": "points", "points": 5, "kind": "silent",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		LogID   *int64 `json:"log_id"`
		Balance int64  `json:"balance"`
	}
	decode(t, w, &resp)
	if resp.LogID != nil {
		t.Errorf("expected null log_id, got %v", *resp.LogID)
	}
	if resp.Balance != 5 {
		t.Errorf("expected balance 5, got %d", resp.Balance)
	}
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_ErrorStatuses(t *testing.T) {
	handler, svc, _ := newTestServer(t)

	cases := []struct {
		name string
		body map[string]any
		want int
	}{
		{"unknown category", map[string]any{"user_id": 1, "category": "karma", "points": 5, "kind": "bonus"}, http.StatusNotFound},
		{"invalid user", map[string]any{"user_id": 0, "category": "points", "points": 5, "kind": "bonus"}, http.StatusBadRequest},
		{"missing kind", map[string]any{"user_id": 1, "category": "points", "points": 5}, http.StatusBadRequest},
		{"non-positive amount", map[string]any{"user_id": 1, "category": "points", "points": -5, "kind": "bonus"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		w := doJSON(t, handler, http.MethodPost, "/api/points/add", tc.body)
		if w.Code != tc.want {
			t.Errorf("%s: expected %d, got %d: %s", tc.name, tc.want, w.Code, w.Body.String())
		}
	}

	// Adjuster veto maps to 409.
	svc.Adjusters.Use(points.AdjusterFunc(func(int64, points.AlterRequest) (int64, error) {
		return 0, points.ErrAdjustmentRejected
	}))
	w := doJSON(t, handler, http.MethodPost, "/api/points/add", map[string]any{
		"user_id": 1, "category": "points", "points": 5, "kind": "bonus",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("veto: expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAPI_MalformedJSON(t *testing.T) {
	handler, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/points/add", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// =============================================================================
// READS
// =============================================================================

func TestAPI_GetBalanceAndLogs(t *testing.T) {
	handler, _, _ := newTestServer(t)

	doJSON(t, handler, http.MethodPost, "/api/points/add", map[string]any{
		"user_id": 7, "category": "points", "points": 10, "kind": "bonus", "log_text": "Welcome",
	})

	w := doJSON(t, handler, http.MethodGet, "/api/users/7/balance/points", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var bal struct {
		UserID   int64  `json:"user_id"`
		Category string `json:"category"`
		Balance  int64  `json:"balance"`
	}
	decode(t, w, &bal)
	if bal.UserID != 7 || bal.Category != "points" || bal.Balance != 10 {
		t.Errorf("unexpected balance response: %+v", bal)
	}

	w = doJSON(t, handler, http.MethodGet, "/api/users/7/logs/points", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var logs []struct {
		Delta int64  `json:"delta"`
		Text  string `json:"text"`
	}
	decode(t, w, &logs)
	if len(logs) != 1 || logs[0].Delta != 10 || logs[0].Text != "Welcome" {
		t.Errorf("unexpected logs: %+v", logs)
	}
}

func TestAPI_GetLogsUnknownCategory(t *testing.T) {
	handler, _, _ := newTestServer(t)
	w := doJSON(t, handler, http.MethodGet, "/api/users/7/logs/karma", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// =============================================================================
// LEADERBOARD
// =============================================================================

func TestAPI_Leaderboard(t *testing.T) {
	// GIVEN: Three directory users with balances
	// WHEN: Fetching the top 2
	// THEN: Ranked IDs, best first

	handler, _, _ := newTestServer(t)

	for _, id := range []int{1, 2, 3} {
		doJSON(t, handler, http.MethodPost, "/api/users", map[string]any{"user_id": id})
	}
	doJSON(t, handler, http.MethodPost, "/api/points/add", map[string]any{
		"user_id": 2, "category": "points", "points": 50, "kind": "bonus",
	})
	doJSON(t, handler, http.MethodPost, "/api/points/add", map[string]any{
		"user_id": 3, "category": "points", "points": 30, "kind": "bonus",
	})

	w := doJSON(t, handler, http.MethodGet, "/api/leaderboard/points?n=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Category string  `json:"category"`
		Users    []int64 `json:"users"`
	}
	decode(t, w, &resp)
	if resp.Category != "points" || len(resp.Users) != 2 || resp.Users[0] != 2 || resp.Users[1] != 3 {
		t.Errorf("unexpected leaderboard: %+v", resp)
	}
}

func TestAPI_LeaderboardUnknownCategory(t *testing.T) {
	handler, _, _ := newTestServer(t)
	w := doJSON(t, handler, http.MethodGet, "/api/leaderboard/karma", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// =============================================================================
// USERS
// =============================================================================

func TestAPI_UserLifecycle(t *testing.T) {
	handler, _, mem := newTestServer(t)

	w := doJSON(t, handler, http.MethodPost, "/api/users", map[string]any{"user_id": 5})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if has, _ := mem.HasUser(context.Background(), 5); !has {
		t.Error("expected user in the directory")
	}

	w = doJSON(t, handler, http.MethodDelete, "/api/users/5", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if has, _ := mem.HasUser(context.Background(), 5); has {
		t.Error("expected user removed")
	}
}

func TestAPI_AddUserInvalidID(t *testing.T) {
	handler, _, _ := newTestServer(t)
	w := doJSON(t, handler, http.MethodPost, "/api/users", map[string]any{"user_id": 0})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// =============================================================================
// CATEGORIES
// =============================================================================

func TestAPI_CategoryLifecycle(t *testing.T) {
	// GIVEN: A category created from a display name only
	// WHEN: Listing, then deleting it
	// THEN: The slug is derived; deletion cascades

	handler, svc, _ := newTestServer(t)

	w := doJSON(t, handler, http.MethodPost, "/api/categories", map[string]any{
		"name": "Monthly Points", "floor": -10,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		Slug  string `json:"slug"`
		Floor int64  `json:"floor"`
	}
	decode(t, w, &created)
	if created.Slug != "monthly-points" || created.Floor != -10 {
		t.Errorf("unexpected category: %+v", created)
	}

	w = doJSON(t, handler, http.MethodGet, "/api/categories", nil)
	var list []struct {
		Slug string `json:"slug"`
	}
	decode(t, w, &list)
	if len(list) != 2 { // "points" from setup plus the new one
		t.Errorf("expected 2 categories, got %+v", list)
	}

	w = doJSON(t, handler, http.MethodDelete, "/api/categories/monthly-points", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if svc.Registry.Exists("monthly-points") {
		t.Error("expected category gone")
	}

	w = doJSON(t, handler, http.MethodDelete, "/api/categories/monthly-points", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a second delete, got %d", w.Code)
	}
}

func TestAPI_CreateCategoryConflicts(t *testing.T) {
	handler, _, _ := newTestServer(t)

	// Duplicate slug.
	w := doJSON(t, handler, http.MethodPost, "/api/categories", map[string]any{"slug": "points"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for duplicate, got %d", w.Code)
	}

	// Unusable name.
	w = doJSON(t, handler, http.MethodPost, "/api/categories", map[string]any{"name": "!!!"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty slug, got %d", w.Code)
	}
}

// =============================================================================
// LOG METADATA
// =============================================================================

func TestAPI_LogMeta(t *testing.T) {
	handler, _, _ := newTestServer(t)

	w := doJSON(t, handler, http.MethodPost, "/api/points/add", map[string]any{
		"user_id": 1, "category": "points", "points": 5, "kind": "bonus",
	})
	var alter struct {
		LogID *int64 `json:"log_id"`
	}
	decode(t, w, &alter)
	if alter.LogID == nil {
		t.Fatal("expected a log ID")
	}
	logPath := "/api/logs/1/meta"

	w = doJSON(t, handler, http.MethodPost, logPath, map[string]any{"key": "post", "value": "42"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// Unique conflict.
	w = doJSON(t, handler, http.MethodPost, logPath, map[string]any{"key": "post", "value": "43", "unique": true})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}

	// Missing key.
	w = doJSON(t, handler, http.MethodPost, logPath, map[string]any{"value": "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}

	w = doJSON(t, handler, http.MethodGet, logPath, nil)
	var all map[string][]string
	decode(t, w, &all)
	if len(all["post"]) != 1 || all["post"][0] != "42" {
		t.Errorf("unexpected metadata: %v", all)
	}

	w = doJSON(t, handler, http.MethodDelete, logPath+"?key=post", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	w = doJSON(t, handler, http.MethodGet, logPath, nil)
	all = nil
	decode(t, w, &all)
	if len(all) != 0 {
		t.Errorf("expected empty metadata, got %v", all)
	}
}

// =============================================================================
// ADMIN
// =============================================================================

func TestAPI_Regenerate(t *testing.T) {
	handler, svc, _ := newTestServer(t)

	doJSON(t, handler, http.MethodPost, "/api/points/add", map[string]any{
		"user_id": 1, "category": "points", "points": 5, "kind": "bonus",
	})
	svc.Renderers.Register("bonus", func(points.AlterRequest, int64, string) string {
		return "Bonus awarded"
	})

	w := doJSON(t, handler, http.MethodPost, "/api/admin/regenerate", map[string]any{"category": "points"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Updated int `json:"updated"`
		Touched []struct {
			UserID int64 `json:"user_id"`
		} `json:"touched"`
	}
	decode(t, w, &resp)
	if resp.Updated != 1 || len(resp.Touched) != 1 || resp.Touched[0].UserID != 1 {
		t.Errorf("unexpected regenerate response: %+v", resp)
	}
}
