package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/odxplay/triviasync/internal/trivia"
)

func envelope(t *testing.T, w http.ResponseWriter, status int, env response) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		t.Errorf("encode envelope: %v", err)
	}
}

func dataEnvelope(t *testing.T, w http.ResponseWriter, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	envelope(t, w, http.StatusOK, response{Success: true, Data: data})
}

func TestClient_SnapshotDecodesMatchDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != "/matches/m1/snapshot" {
			t.Errorf("path = %s, want /matches/m1/snapshot", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("authorization = %q, want bearer token", got)
		}
		dataEnvelope(t, w, trivia.MatchSnapshot{
			Match: trivia.Match{
				ID:          "m1",
				Status:      trivia.MatchStatusPlaying,
				CurrentTurn: trivia.TeamB,
				Config:      trivia.DefaultMatchConfig(),
			},
			Timestamp: 1724800000000,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetToken("tok-1")

	snap, err := c.Snapshot(context.Background(), "m1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Match.ID != "m1" || snap.Match.CurrentTurn != trivia.TeamB {
		t.Fatalf("unexpected snapshot match: %+v", snap.Match)
	}
	if snap.Timestamp != 1724800000000 {
		t.Fatalf("timestamp = %d", snap.Timestamp)
	}
}

func TestClient_StructuredErrorIsSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		envelope(t, w, http.StatusConflict, response{
			Success: false,
			Error: &APIError{
				Code:    "category_taken",
				Message: "category already selected",
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.SubmitAnswer(context.Background(), "m1", "q1", "Lima")
	if err == nil {
		t.Fatalf("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Code != "category_taken" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestClient_UnsuccessfulEnvelopeWithoutErrorObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		envelope(t, w, http.StatusOK, response{Success: false, Message: "match is full"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.JoinMatch(context.Background(), "ABCD", "nadia")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Message != "match is full" {
		t.Fatalf("message = %q", apiErr.Message)
	}
}

func TestClient_SubmitAnswerReturnsVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/matches/answer" {
			t.Errorf("path = %s, want /matches/answer", r.URL.Path)
		}
		var p trivia.MatchAnswerPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if p.MatchID != "m1" || p.QuestionID != "q1" || p.Answer != "Lima" {
			t.Errorf("unexpected request payload: %+v", p)
		}
		dataEnvelope(t, w, trivia.AnswerResult{IsCorrect: true, Points: 75})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	result, err := c.SubmitAnswer(context.Background(), "m1", "q1", "Lima")
	if err != nil {
		t.Fatalf("submit answer: %v", err)
	}
	if !result.IsCorrect || result.Points != 75 {
		t.Fatalf("verdict = %+v", result)
	}
}

func TestClient_CreateMatchFillsDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req CreateMatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		want := CreateMatchRequest{
			CategoriesCount:        6,
			QuestionsPerCategory:   6,
			QuestionTimer:          30,
			CategorySelectionTimer: 15,
			BreakTimer:             5,
		}
		if req != want {
			t.Errorf("request = %+v, want defaults %+v", req, want)
		}
		dataEnvelope(t, w, trivia.Match{ID: "m-new", Code: "WXYZ", Status: trivia.MatchStatusLobby})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	match, err := c.CreateMatch(context.Background(), trivia.MatchConfig{})
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	if match.ID != "m-new" || match.Code != "WXYZ" {
		t.Fatalf("match = %+v", match)
	}
}

func TestClient_UsePowerUpReturnsEffect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/matches/powerups" {
			t.Errorf("path = %s, want /matches/powerups", r.URL.Path)
		}
		dataEnvelope(t, w, PowerUpResult{Success: true, Effect: "double_points"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	result, err := c.UsePowerUp(context.Background(), "m1", "pu1", trivia.TeamB)
	if err != nil {
		t.Fatalf("use power-up: %v", err)
	}
	if !result.Success || result.Effect != "double_points" {
		t.Fatalf("result = %+v", result)
	}
}
