/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package breakdown

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// chatHandler builds an httptest handler that answers the complexity probe
// with score and the task request with tasksBody.
func chatHandler(t *testing.T, score int, tasksBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t.Helper()

		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("missing bearer token, got %q", auth)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode chat request: %v", err)
		}

		content := tasksBody
		if strings.Contains(req.Messages[1].Content, "Rate the difficulty") {
			content = fmt.Sprintf("%d", score)
		}

		resp := chatResponse{}
		resp.Choices = append(resp.Choices, struct {
			Message chatMessage `json:"message"`
		}{Message: chatMessage{Role: "assistant", Content: content}})

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func newTestService(srvURL string) *Service {
	svc := NewService(Config{
		BaseURL: srvURL,
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}, zerolog.Nop())
	svc.now = func() time.Time {
		return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestDecomposeParsesTasks(t *testing.T) {
	body := `[
		{"id": 1, "task": "Learn basic chords", "duration_hours": 2},
		{"id": 2, "task": "Practice strumming patterns", "duration_hours": 1.5},
		{"id": 3, "task": "Play a full song", "duration_hours": 3}
	]`
	srv := httptest.NewServer(chatHandler(t, 6, body))
	defer srv.Close()

	svc := newTestService(srv.URL)

	result := svc.Decompose(context.Background(), Request{
		Goal:         "Learn guitar",
		CurrentLevel: "medium",
		TargetLevel:  "advanced",
		Deadline:     "2026-03-09",
	})

	if result.Fallback {
		t.Fatal("expected a model-generated plan, got fallback")
	}
	if result.Complexity != 6 {
		t.Errorf("expected complexity 6, got %d", result.Complexity)
	}
	if len(result.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(result.Tasks))
	}
	if result.Tasks[1].Description != "Practice strumming patterns" {
		t.Errorf("unexpected task: %+v", result.Tasks[1])
	}
	if result.Tasks[2].DurationHours != 3 {
		t.Errorf("expected 3h duration, got %v", result.Tasks[2].DurationHours)
	}
}

func TestDecomposeRepairsMalformedJSON(t *testing.T) {
	// Trailing comma and a code fence, both common model mistakes.
	body := "```json\n[{\"id\": 1, \"task\": \"Read chapter one\", \"duration_hours\": 2,},]\n```"
	srv := httptest.NewServer(chatHandler(t, 3, body))
	defer srv.Close()

	svc := newTestService(srv.URL)

	result := svc.Decompose(context.Background(), Request{
		Goal:         "Read the textbook",
		CurrentLevel: "easy",
		TargetLevel:  "medium",
		Deadline:     "2026-03-05",
	})

	if result.Fallback {
		t.Fatal("expected repaired JSON to parse, got fallback")
	}
	if len(result.Tasks) != 1 || result.Tasks[0].Description != "Read chapter one" {
		t.Fatalf("unexpected tasks: %+v", result.Tasks)
	}
}

func TestDecomposeRenumbersAndDefaults(t *testing.T) {
	body := `[
		{"id": 9, "task": "First", "duration_hours": 0},
		{"id": 9, "task": "  ", "duration_hours": 2},
		{"id": 1, "task": "Second", "duration_hours": 2}
	]`
	srv := httptest.NewServer(chatHandler(t, 3, body))
	defer srv.Close()

	svc := newTestService(srv.URL)

	result := svc.Decompose(context.Background(), Request{
		Goal:         "Tidy the plan",
		CurrentLevel: "medium",
		TargetLevel:  "medium",
		Deadline:     "2026-03-09",
	})

	if len(result.Tasks) != 2 {
		t.Fatalf("expected blank task dropped, got %d tasks", len(result.Tasks))
	}
	if result.Tasks[0].ID != 1 || result.Tasks[1].ID != 2 {
		t.Errorf("expected sequential IDs, got %d and %d", result.Tasks[0].ID, result.Tasks[1].ID)
	}
	if result.Tasks[0].DurationHours != 1.0 {
		t.Errorf("expected zero duration defaulted to 1h, got %v", result.Tasks[0].DurationHours)
	}
}

func TestDecomposeFallsBackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := newTestService(srv.URL)

	result := svc.Decompose(context.Background(), Request{
		Goal:         "Learn guitar",
		CurrentLevel: "medium",
		TargetLevel:  "advanced",
		Deadline:     "2026-03-09", // 7 days out
	})

	if !result.Fallback {
		t.Fatal("expected fallback plan")
	}
	// Baseline for medium is one task per remaining day.
	if len(result.Tasks) != 7 {
		t.Fatalf("expected 7 placeholder tasks, got %d", len(result.Tasks))
	}
	if !strings.Contains(result.Tasks[0].Description, "placeholder") {
		t.Errorf("expected placeholder description, got %q", result.Tasks[0].Description)
	}
}

func TestDecomposeWithoutAPIKey(t *testing.T) {
	svc := NewService(Config{BaseURL: "http://unused", Model: "m"}, zerolog.Nop())
	svc.now = func() time.Time {
		return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	}

	result := svc.Decompose(context.Background(), Request{
		Goal:         "Learn guitar",
		CurrentLevel: "easy",
		TargetLevel:  "medium",
		Deadline:     "2026-03-12", // 10 days out
	})

	if !result.Fallback {
		t.Fatal("expected fallback without an API key")
	}
	// easy scales the 10-day baseline by 0.8.
	if len(result.Tasks) != 8 {
		t.Fatalf("expected 8 placeholder tasks, got %d", len(result.Tasks))
	}
}

func TestDecideTotalTasks(t *testing.T) {
	srv := httptest.NewServer(chatHandler(t, 9, "[]"))
	defer srv.Close()

	svc := newTestService(srv.URL)

	tests := []struct {
		name     string
		req      Request
		want     int
		wantCplx int
	}{
		{
			name:     "override wins",
			req:      Request{Goal: "g", CurrentLevel: "hard", Deadline: "2026-03-09", OverrideCount: 4},
			want:     4,
			wantCplx: 0,
		},
		{
			name: "complexity adjusts baseline",
			// 7 days * 1.0 + round(9/3) = 10
			req:      Request{Goal: "g", CurrentLevel: "medium", Deadline: "2026-03-09"},
			want:     10,
			wantCplx: 9,
		},
		{
			name: "malformed deadline defaults to a week",
			// 7 days * 1.2 = 8.4 → 8, plus round(9/3)
			req:      Request{Goal: "g", CurrentLevel: "hard", Deadline: "soon"},
			want:     11,
			wantCplx: 9,
		},
		{
			name: "past deadline clamps to one day",
			// 1 day * 1.0 + 3
			req:      Request{Goal: "g", CurrentLevel: "medium", Deadline: "2026-01-01"},
			want:     4,
			wantCplx: 9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, cplx := svc.DecideTotalTasks(context.Background(), tt.req)
			if got != tt.want {
				t.Errorf("total = %d, want %d", got, tt.want)
			}
			if cplx != tt.wantCplx {
				t.Errorf("complexity = %d, want %d", cplx, tt.wantCplx)
			}
		})
	}
}

func TestComplexityScoreClamped(t *testing.T) {
	srv := httptest.NewServer(chatHandler(t, 42, "[]"))
	defer srv.Close()

	svc := newTestService(srv.URL)

	score, err := svc.ComplexityScore(context.Background(), "g", "medium", "2026-03-09")
	if err != nil {
		t.Fatalf("ComplexityScore failed: %v", err)
	}
	if score != 10 {
		t.Errorf("expected score clamped to 10, got %d", score)
	}
}
