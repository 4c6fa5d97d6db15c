/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/friendsincode/skuld_planner/internal/audit"
	"github.com/friendsincode/skuld_planner/internal/breakdown"
	"github.com/friendsincode/skuld_planner/internal/calendar"
	"github.com/friendsincode/skuld_planner/internal/config"
	"github.com/friendsincode/skuld_planner/internal/events"
	"github.com/friendsincode/skuld_planner/internal/models"
	"github.com/friendsincode/skuld_planner/internal/planner"
	"github.com/friendsincode/skuld_planner/internal/scheduler"
)

var testSecret = []byte("test-jwt-secret")

// stubGateway serves an empty calendar and accepts every insert.
type stubGateway struct {
	inserted int
}

func (s *stubGateway) FetchBusy(ctx context.Context, userID string, timeMin, timeMax time.Time) ([]planner.Interval, error) {
	return nil, nil
}

func (s *stubGateway) InsertEvent(ctx context.Context, userID string, event calendar.Event) (string, error) {
	s.inserted++
	return fmt.Sprintf("evt_%d", s.inserted), nil
}

type testEnv struct {
	router chi.Router
	db     *gorm.DB
	gw     *stubGateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	bus := events.NewBus()
	logger := zerolog.Nop()

	// No API key: decomposition produces deterministic placeholder plans.
	breakdownSvc := breakdown.NewService(breakdown.Config{
		BaseURL: "http://unused",
		Model:   "test",
	}, logger)

	gw := &stubGateway{}
	schedulerSvc := scheduler.New(db, gw, bus, config.PolicyDefaults{}, time.UTC, false, logger)

	oauth := calendar.NewOAuthManager("client-id", "client-secret", "http://localhost/callback", db, logger)
	auditSvc := audit.NewService(db, bus, logger)

	a := New(db, testSecret, breakdownSvc, schedulerSvc, oauth, auditSvc, bus, logger)

	r := chi.NewRouter()
	a.Routes(r)

	return &testEnv{router: r, db: db, gw: gw}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

// register creates an account and returns its session token.
func (e *testEnv) register(t *testing.T, email string) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    email,
		"password": "hunter2-secure",
		"timezone": "UTC",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("register returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return resp.Token
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health returned %d", rec.Code)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	token := env.register(t, "alice@example.com")
	if token == "" {
		t.Fatal("expected a session token")
	}

	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "hunter2-secure",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login returned %d, want 401", rec.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"bad email", map[string]string{"email": "nope", "password": "longenough"}, http.StatusBadRequest},
		{"short password", map[string]string{"email": "a@b.com", "password": "short"}, http.StatusBadRequest},
		{"bad timezone", map[string]string{"email": "a@b.com", "password": "longenough", "timezone": "Mars/Olympus"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/auth/register", "", tt.body)
			if rec.Code != tt.want {
				t.Errorf("got %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestDuplicateEmailRejected(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "bob@example.com")
	rec := env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    "bob@example.com",
		"password": "hunter2-secure",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register returned %d, want 409", rec.Code)
	}
}

// A storage failure during registration is a server error, not a duplicate
// email.
func TestRegisterStorageFailureIsNotConflict(t *testing.T) {
	env := newTestEnv(t)

	sqlDB, err := env.db.DB()
	if err != nil {
		t.Fatalf("underlying db: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email":    "carol@example.com",
		"password": "hunter2-secure",
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("register against failed storage returned %d, want 500", rec.Code)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/goals/"},
		{http.MethodPost, "/api/v1/schedule/run"},
		{http.MethodGet, "/api/v1/auth/google"},
		{http.MethodGet, "/api/v1/audit"},
	}
	for _, p := range paths {
		rec := env.do(t, p.method, p.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s returned %d, want 401", p.method, p.path, rec.Code)
		}
	}
}

func TestGoalCreateAndSchedule(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "carol@example.com")

	deadline := time.Now().UTC().AddDate(0, 0, 5).Format("2006-01-02")
	rec := env.do(t, http.MethodPost, "/api/v1/goals/", token, map[string]any{
		"title":         "Learn guitar",
		"current_level": "medium",
		"target_level":  "advanced",
		"deadline":      deadline,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("goal create returned %d: %s", rec.Code, rec.Body.String())
	}

	var created goalResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode goal: %v", err)
	}
	if len(created.Tasks) == 0 {
		t.Fatal("expected decomposed tasks")
	}
	if !created.Fallback {
		t.Error("expected fallback plan without an LLM key")
	}

	rec = env.do(t, http.MethodPost, "/api/v1/schedule/run", token, map[string]any{
		"goal_id": created.ID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("schedule run returned %d: %s", rec.Code, rec.Body.String())
	}

	var result scheduler.RunResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode run result: %v", err)
	}
	if len(result.Scheduled) == 0 {
		t.Fatal("expected scheduled tasks")
	}
	if env.gw.inserted != len(result.Scheduled) {
		t.Errorf("gateway saw %d inserts, result reports %d", env.gw.inserted, len(result.Scheduled))
	}
}

func TestSchedulePreviewDoesNotInsert(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "dave@example.com")

	deadline := time.Now().UTC().AddDate(0, 0, 3).Format("2006-01-02")
	rec := env.do(t, http.MethodPost, "/api/v1/goals/", token, map[string]any{
		"title":    "Read a textbook",
		"deadline": deadline,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("goal create returned %d", rec.Code)
	}
	var created goalResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode goal: %v", err)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/schedule/preview", token, map[string]any{
		"goal_id": created.ID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("preview returned %d: %s", rec.Code, rec.Body.String())
	}
	if env.gw.inserted != 0 {
		t.Errorf("preview must not insert events, gateway saw %d", env.gw.inserted)
	}
}

func TestScheduleRunUnknownGoal(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "erin@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/schedule/run", token, map[string]any{
		"goal_id": "does-not-exist",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown goal returned %d, want 404", rec.Code)
	}
}

func TestGoalOwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice@example.com")
	mallory := env.register(t, "mallory@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/goals/", alice, map[string]any{
		"title":    "Private goal",
		"deadline": time.Now().UTC().AddDate(0, 0, 3).Format("2006-01-02"),
	})
	var created goalResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode goal: %v", err)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/goals/"+created.ID+"/", mallory, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign goal fetch returned %d, want 404", rec.Code)
	}
}

func TestGoalDelete(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "frank@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/goals/", token, map[string]any{
		"title":    "Ephemeral goal",
		"deadline": time.Now().UTC().AddDate(0, 0, 3).Format("2006-01-02"),
	})
	var created goalResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode goal: %v", err)
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/goals/"+created.ID+"/", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete returned %d", rec.Code)
	}

	var count int64
	env.db.Model(&models.GoalTask{}).Where("goal_id = ?", created.ID).Count(&count)
	if count != 0 {
		t.Errorf("expected tasks removed with the goal, %d remain", count)
	}
}

func TestGoogleConnectReturnsAuthURL(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "grace@example.com")

	rec := env.do(t, http.MethodGet, "/api/v1/auth/google", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("connect returned %d", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["auth_url"] == "" {
		t.Fatal("expected an auth URL")
	}
}

func TestGoogleCallbackRejectsBadState(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/auth/google/callback?code=abc&state=forged", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("forged state returned %d, want 400", rec.Code)
	}
}

func TestCalendarStatusDisconnected(t *testing.T) {
	env := newTestEnv(t)
	token := env.register(t, "heidi@example.com")

	rec := env.do(t, http.MethodGet, "/api/v1/calendar/status", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status returned %d", rec.Code)
	}
	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["connected"] {
		t.Error("expected calendar to be disconnected")
	}
}
