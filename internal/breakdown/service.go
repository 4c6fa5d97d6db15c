/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package breakdown decomposes a goal into sized tasks using an
// OpenAI-compatible chat completions endpoint.
package breakdown

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"github.com/rs/zerolog"

	"github.com/friendsincode/skuld_planner/internal/telemetry"
)

// Task is one decomposed step of a goal.
type Task struct {
	ID            int64   `json:"id"`
	Description   string  `json:"task"`
	DurationHours float64 `json:"duration_hours"`
}

// Request carries the goal to decompose.
type Request struct {
	Goal          string
	CurrentLevel  string
	TargetLevel   string
	Deadline      string // YYYY-MM-DD
	OverrideCount int    // 0 means no override
}

// Result is the outcome of a decomposition.
type Result struct {
	Tasks      []Task
	Complexity int  // 0 when the complexity probe was skipped or failed
	Fallback   bool // true when placeholder tasks were substituted
}

// Config configures the completions client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Service talks to an OpenAI-compatible chat completions API.
type Service struct {
	config     Config
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time
}

// NewService creates a decomposition service.
func NewService(cfg Config, logger zerolog.Logger) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Service{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With().Str("component", "breakdown").Logger(),
		now:        time.Now,
	}
}

// Enabled reports whether an API key is configured. Without one the service
// still works but only produces placeholder plans.
func (s *Service) Enabled() bool {
	return s.config.APIKey != ""
}

// daysLeft computes whole days until the deadline, minimum 1. Malformed
// deadlines fall back to a week out.
func (s *Service) daysLeft(deadline string) int {
	dl, err := time.Parse("2006-01-02", deadline)
	if err != nil {
		return 7
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	days := int(dl.Sub(today).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

// proficiencyMultiplier scales the one-task-per-day baseline.
func proficiencyMultiplier(level string) float64 {
	switch strings.ToLower(level) {
	case "easy":
		return 0.8
	case "hard":
		return 1.2
	default:
		return 1.0
	}
}

// DecideTotalTasks picks how many tasks to generate: an explicit override
// wins, otherwise a per-day baseline adjusted by the complexity probe.
func (s *Service) DecideTotalTasks(ctx context.Context, req Request) (int, int) {
	days := s.daysLeft(req.Deadline)
	baseCount := int(math.Round(float64(days) * proficiencyMultiplier(req.CurrentLevel)))

	if req.OverrideCount >= 1 {
		return req.OverrideCount, 0
	}

	if s.Enabled() {
		if complexity, err := s.ComplexityScore(ctx, req.Goal, req.CurrentLevel, req.Deadline); err == nil {
			total := baseCount + int(math.Round(float64(complexity)/3))
			if total < 1 {
				total = 1
			}
			return total, complexity
		}
	}

	if strings.EqualFold(req.CurrentLevel, "easy") {
		fallback := int(math.Round(float64(days) * 0.8))
		if fallback < 1 {
			fallback = 1
		}
		return fallback, 0
	}
	return days, 0
}

// ComplexityScore asks the model to rate the goal 1-10.
func (s *Service) ComplexityScore(ctx context.Context, goal, level, deadline string) (int, error) {
	raw, err := s.complete(ctx, complexityPrompt(goal, level, deadline), 10)
	if err != nil {
		return 0, err
	}

	score, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse complexity score %q: %w", raw, err)
	}
	if score < 1 {
		score = 1
	}
	if score > 10 {
		score = 10
	}
	return score, nil
}

// Decompose generates the task list for a goal. Any model or parse failure
// degrades to placeholder tasks rather than erroring; the caller always gets
// a plan.
func (s *Service) Decompose(ctx context.Context, req Request) Result {
	start := time.Now()
	defer func() {
		telemetry.BreakdownDuration.Observe(time.Since(start).Seconds())
	}()

	days := s.daysLeft(req.Deadline)
	total, complexity := s.DecideTotalTasks(ctx, req)

	s.logger.Debug().
		Str("goal", req.Goal).
		Int("days_left", days).
		Int("total_tasks", total).
		Int("complexity", complexity).
		Msg("decomposing goal")

	if s.Enabled() {
		prompt := taskPrompt(req.Goal, req.CurrentLevel, req.TargetLevel, req.Deadline, days, total)
		raw, err := s.complete(ctx, prompt, total*80)
		if err == nil {
			if tasks, perr := parseTasks(raw); perr == nil {
				telemetry.BreakdownRequestsTotal.WithLabelValues("ok").Inc()
				return Result{Tasks: tasks, Complexity: complexity}
			} else {
				s.logger.Warn().Err(perr).Msg("failed to parse model output")
			}
		} else {
			s.logger.Warn().Err(err).Msg("completion request failed")
		}
	}

	telemetry.BreakdownRequestsTotal.WithLabelValues("fallback").Inc()
	return Result{Tasks: placeholderTasks(total), Complexity: complexity, Fallback: true}
}

// parseTasks decodes the model's JSON array, repairing malformed output
// before giving up. Task IDs are renumbered sequentially so the model cannot
// produce gaps or duplicates.
func parseTasks(raw string) ([]Task, error) {
	raw = stripFences(raw)

	var tasks []Task
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(raw)
		if rerr != nil {
			return nil, fmt.Errorf("unmarshal tasks: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &tasks); err != nil {
			return nil, fmt.Errorf("unmarshal repaired tasks: %w", err)
		}
	}

	out := tasks[:0]
	for _, t := range tasks {
		t.Description = strings.TrimSpace(t.Description)
		if t.Description == "" {
			continue
		}
		if t.DurationHours <= 0 {
			t.DurationHours = 1.0
		}
		t.ID = int64(len(out) + 1)
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("model returned no usable tasks")
	}
	return out, nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON in
// one despite instructions.
func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}

// placeholderTasks builds the degraded plan: one generic 1-hour step per slot.
func placeholderTasks(total int) []Task {
	if total < 1 {
		total = 1
	}
	tasks := make([]Task, 0, total)
	for i := 1; i <= total; i++ {
		tasks = append(tasks, Task{
			ID:            int64(i),
			Description:   fmt.Sprintf("(Step %d placeholder)", i),
			DurationHours: 1.0,
		})
	}
	return tasks
}

// chat completions wire types

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// complete performs one non-streaming chat completion round trip.
func (s *Service) complete(ctx context.Context, userPrompt string, maxTokens int) (string, error) {
	reqBody := chatRequest{
		Model: s.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.7,
		MaxTokens:   maxTokens,
		Stream:      false,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := s.config.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		telemetry.BreakdownRequestsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		telemetry.BreakdownRequestsTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("completion status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("completion error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
