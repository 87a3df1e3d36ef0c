// Package api is the REST client for the match service. It covers the
// calls that need an immediate confirmed response rather than a
// broadcast: match lifecycle, authoritative answer scoring, power-up
// effects, and the on-demand state snapshot.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/odxplay/triviasync/internal/trivia"
)

// APIError is a structured error returned by the match service.
type APIError struct {
	StatusCode int                 `json:"-"`
	Code       string              `json:"code"`
	Message    string              `json:"message"`
	Details    map[string][]string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error %s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// response is the service-wide envelope wrapping every payload.
type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
	Error   *APIError       `json:"error,omitempty"`
}

// Client talks to the match service REST API.
type Client struct {
	baseURL string
	client  *http.Client
	token   string
}

// NewClient creates a REST client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetToken sets the bearer token attached to every request.
func (c *Client) SetToken(token string) {
	c.token = token
}

// SetTimeout overrides the default request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	var env response
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%s %s: status %d: decode response: %w", method, endpoint, resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		if env.Error != nil {
			env.Error.StatusCode = resp.StatusCode
			return env.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%s %s: decode data: %w", method, endpoint, err)
		}
	}
	return nil
}

// CreateMatchRequest configures a new match. Zero fields fall back to
// server defaults.
type CreateMatchRequest struct {
	CategoriesCount        int `json:"categories_count"`
	QuestionsPerCategory   int `json:"questions_per_category"`
	QuestionTimer          int `json:"question_timer"`
	CategorySelectionTimer int `json:"category_selection_timer"`
	BreakTimer             int `json:"break_timer"`
}

// CreateMatch creates a new match owned by the authenticated user.
func (c *Client) CreateMatch(ctx context.Context, cfg trivia.MatchConfig) (*trivia.Match, error) {
	def := trivia.DefaultMatchConfig()
	req := CreateMatchRequest{
		CategoriesCount:        cfg.CategoriesCount,
		QuestionsPerCategory:   cfg.QuestionsPerCategory,
		QuestionTimer:          cfg.QuestionTimer,
		CategorySelectionTimer: cfg.CategorySelectionTimer,
		BreakTimer:             cfg.BreakTimer,
	}
	if req.CategoriesCount == 0 {
		req.CategoriesCount = def.CategoriesCount
	}
	if req.QuestionsPerCategory == 0 {
		req.QuestionsPerCategory = def.QuestionsPerCategory
	}
	if req.QuestionTimer == 0 {
		req.QuestionTimer = def.QuestionTimer
	}
	if req.CategorySelectionTimer == 0 {
		req.CategorySelectionTimer = def.CategorySelectionTimer
	}
	if req.BreakTimer == 0 {
		req.BreakTimer = def.BreakTimer
	}

	var match trivia.Match
	if err := c.doRequest(ctx, http.MethodPost, "/matches", req, &match); err != nil {
		return nil, err
	}
	return &match, nil
}

// JoinMatch joins a match by its human-entered code.
func (c *Client) JoinMatch(ctx context.Context, code, username string) (*trivia.Match, error) {
	payload := struct {
		Code     string `json:"code"`
		Username string `json:"username,omitempty"`
	}{Code: code, Username: username}

	var match trivia.Match
	if err := c.doRequest(ctx, http.MethodPost, "/matches/join", payload, &match); err != nil {
		return nil, err
	}
	return &match, nil
}

// StartMatch moves a match out of the lobby. Host only.
func (c *Client) StartMatch(ctx context.Context, matchID string) (*trivia.Match, error) {
	payload := struct {
		MatchID string `json:"matchId"`
	}{MatchID: matchID}

	var match trivia.Match
	if err := c.doRequest(ctx, http.MethodPost, "/matches/start", payload, &match); err != nil {
		return nil, err
	}
	return &match, nil
}

// EndMatch ends a match for all players. Host only.
func (c *Client) EndMatch(ctx context.Context, matchID string) (*trivia.Match, error) {
	payload := struct {
		MatchID string `json:"matchId"`
	}{MatchID: matchID}

	var match trivia.Match
	if err := c.doRequest(ctx, http.MethodPost, "/matches/end", payload, &match); err != nil {
		return nil, err
	}
	return &match, nil
}

// SubmitAnswer submits an answer and returns the authoritative verdict.
func (c *Client) SubmitAnswer(ctx context.Context, matchID, questionID, answer string) (*trivia.AnswerResult, error) {
	payload := trivia.MatchAnswerPayload{
		MatchID:    matchID,
		QuestionID: questionID,
		Answer:     answer,
	}

	var result trivia.AnswerResult
	if err := c.doRequest(ctx, http.MethodPost, "/matches/answer", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PowerUpResult describes the server-applied effect of a power-up.
type PowerUpResult struct {
	Success bool   `json:"success"`
	Effect  string `json:"effect"`
}

// UsePowerUp activates a power-up. The effect is interpreted and
// applied server-side; the client only reflects the resulting state.
func (c *Client) UsePowerUp(ctx context.Context, matchID, powerUpID string, targetTeam trivia.TeamID) (*PowerUpResult, error) {
	payload := trivia.PowerUpUsePayload{
		MatchID:    matchID,
		PowerUpID:  powerUpID,
		TargetTeam: targetTeam,
	}

	var result PowerUpResult
	if err := c.doRequest(ctx, http.MethodPost, "/matches/powerups", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Snapshot fetches the full authoritative match document. Failures are
// surfaced to the caller as retryable errors; no partial document is
// ever returned.
func (c *Client) Snapshot(ctx context.Context, matchID string) (*trivia.MatchSnapshot, error) {
	var snap trivia.MatchSnapshot
	if err := c.doRequest(ctx, http.MethodGet, "/matches/"+matchID+"/snapshot", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
