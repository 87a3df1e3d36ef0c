package trivia

import (
	"encoding/json"
	"time"
)

// EventType names a server-originated push event or a client action on
// the realtime channel.
type EventType string

// Inbound events broadcast by the server.
const (
	EventPlayerJoined     EventType = "player.joined"
	EventPlayerLeft       EventType = "player.left"
	EventTeamAssigned     EventType = "team.assigned"
	EventMatchState       EventType = "match.state"
	EventMatchStarted     EventType = "match.started"
	EventMatchTimer       EventType = "match.timer"
	EventCategorySelected EventType = "category.selected"
	EventQuestionNew      EventType = "question.new"
	EventAnswerSubmitted  EventType = "answer.submitted"
	EventPowerUpUsed      EventType = "powerup.used"
	EventMatchEnded       EventType = "match.ended"
	EventError            EventType = "error"
)

// Outbound fire-and-forget actions emitted by the client.
const (
	ActionLobbyJoin      EventType = "lobby.join"
	ActionLobbyLeave     EventType = "lobby.leave"
	ActionCategorySelect EventType = "category.select"
	ActionMatchAnswer    EventType = "match.answer"
	ActionPowerUpUse     EventType = "powerup.use"
	ActionTeamAssign     EventType = "team.assign"
)

// Envelope is the wire frame for every realtime event in both
// directions. Data carries the event-specific payload.
type Envelope struct {
	ID        string          `json:"id,omitempty"`
	Event     EventType       `json:"event"`
	MatchID   string          `json:"matchId,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data"`
}

// PlayerJoinedPayload announces a player entering the lobby.
type PlayerJoinedPayload struct {
	MatchID string `json:"matchId"`
	Player  Player `json:"player"`
}

// PlayerLeftPayload announces a player leaving the match.
type PlayerLeftPayload struct {
	MatchID  string `json:"matchId"`
	PlayerID string `json:"playerId"`
}

// TeamAssignedPayload moves a player onto a team.
type TeamAssignedPayload struct {
	MatchID  string `json:"matchId"`
	PlayerID string `json:"playerId"`
	Team     TeamID `json:"team"`
}

// MatchStatePayload carries a full authoritative match document.
type MatchStatePayload struct {
	Match Match `json:"match"`
}

// TimerPayload is a periodic authoritative timer update.
type TimerPayload struct {
	MatchID string    `json:"matchId"`
	Timer   int       `json:"timer"`
	Phase   GamePhase `json:"phase"`
}

// CategorySelectedPayload confirms a category pick for a team.
type CategorySelectedPayload struct {
	MatchID    string `json:"matchId"`
	CategoryID string `json:"categoryId"`
	Team       TeamID `json:"team"`
}

// QuestionNewPayload delivers the next question and its category.
type QuestionNewPayload struct {
	MatchID  string    `json:"matchId"`
	Question Question  `json:"question"`
	Category *Category `json:"category,omitempty"`
}

// AnswerSubmittedPayload is the authoritative verdict broadcast after a
// player's answer is scored.
type AnswerSubmittedPayload struct {
	MatchID       string `json:"matchId"`
	PlayerID      string `json:"playerId"`
	QuestionID    string `json:"questionId"`
	Answer        string `json:"answer"`
	IsCorrect     bool   `json:"isCorrect"`
	Points        int    `json:"points"`
	TimeRemaining int    `json:"timeRemaining"`
}

// PowerUpUsedPayload confirms a power-up consumption for a team.
type PowerUpUsedPayload struct {
	MatchID string  `json:"matchId"`
	Team    TeamID  `json:"team"`
	PowerUp PowerUp `json:"powerUp"`
	Effect  string  `json:"effect,omitempty"`
}

// MatchEndedPayload carries the final authoritative outcome.
type MatchEndedPayload struct {
	Match       Match       `json:"match"`
	Winner      string      `json:"winner"`
	FinalScores FinalScores `json:"finalScores"`
}

// ErrorPayload is a generic server-side error notification.
type ErrorPayload struct {
	Message string `json:"message"`
}

// LobbyActionPayload joins or leaves a match lobby.
type LobbyActionPayload struct {
	MatchID string `json:"matchId"`
}

// CategorySelectPayload requests a category pick.
type CategorySelectPayload struct {
	MatchID    string `json:"matchId"`
	CategoryID string `json:"categoryId"`
}

// MatchAnswerPayload submits an answer over the realtime channel.
type MatchAnswerPayload struct {
	MatchID    string `json:"matchId"`
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
}

// PowerUpUsePayload requests a power-up activation.
type PowerUpUsePayload struct {
	MatchID    string `json:"matchId"`
	PowerUpID  string `json:"powerUpId"`
	TargetTeam TeamID `json:"targetTeam,omitempty"`
}

// TeamAssignPayload asks the server to move a player onto a team.
// Host-only; authorization is enforced server-side.
type TeamAssignPayload struct {
	MatchID  string `json:"matchId"`
	PlayerID string `json:"playerId"`
	Team     TeamID `json:"team"`
}

// ParseEventPayload decodes the envelope data into the payload struct
// for the event type. Unknown event types return nil without error.
func ParseEventPayload(env *Envelope) (interface{}, error) {
	switch env.Event {
	case EventPlayerJoined:
		var p PlayerJoinedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	case EventPlayerLeft:
		var p PlayerLeftPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	case EventTeamAssigned:
		var p TeamAssignedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	case EventMatchState, EventMatchStarted:
		var p MatchStatePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	case EventMatchTimer:
		var p TimerPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	case EventCategorySelected:
		var p CategorySelectedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	case EventQuestionNew:
		var p QuestionNewPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	case EventAnswerSubmitted:
		var p AnswerSubmittedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	case EventPowerUpUsed:
		var p PowerUpUsedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	case EventMatchEnded:
		var p MatchEndedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	case EventError:
		var p ErrorPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, nil
	}
}
