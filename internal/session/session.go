// Package session wires the store, transport, REST client and phase
// machine into one match session and exposes the player-facing
// operations. Every operation applies local guards first: turn and
// eligibility violations are rejected locally without any network call.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/odxplay/triviasync/internal/api"
	"github.com/odxplay/triviasync/internal/phase"
	"github.com/odxplay/triviasync/internal/trivia"
	"github.com/odxplay/triviasync/internal/trivia/store"
)

var (
	ErrNoMatch            = errors.New("session: no match loaded")
	ErrNoQuestion         = errors.New("session: no active question")
	ErrWrongTurn          = errors.New("session: not your team's turn")
	ErrWrongPhase         = errors.New("session: action not allowed in current phase")
	ErrCategoryTaken      = errors.New("session: category already consumed")
	ErrAlreadySubmitted   = errors.New("session: answer already submitted this round")
	ErrPowerUpUnavailable = errors.New("session: power-up not eligible for use")
	ErrNotHost            = errors.New("session: host role required")
	ErrMatchFinished      = errors.New("session: match already finished")
)

// Realtime is the duplex event channel the session drives.
type Realtime interface {
	Connect(ctx context.Context, matchID string) error
	Disconnect()
	Connected() bool
	OnReconnect(fn func())
	OnStatusChange(fn func(connected bool))
	Subscribe(event trivia.EventType, h func(env trivia.Envelope)) int
	Unsubscribe(event trivia.EventType, token int)
	JoinLobby(matchID string) error
	LeaveLobby(matchID string) error
	SelectCategory(matchID, categoryID string) error
	AssignTeam(matchID, playerID string, team trivia.TeamID) error
}

// MatchAPI is the REST surface used where a confirmed response is
// required rather than a broadcast.
type MatchAPI interface {
	Snapshot(ctx context.Context, matchID string) (*trivia.MatchSnapshot, error)
	StartMatch(ctx context.Context, matchID string) (*trivia.Match, error)
	EndMatch(ctx context.Context, matchID string) (*trivia.Match, error)
	SubmitAnswer(ctx context.Context, matchID, questionID, answer string) (*trivia.AnswerResult, error)
	UsePowerUp(ctx context.Context, matchID, powerUpID string, targetTeam trivia.TeamID) (*api.PowerUpResult, error)
}

type subscription struct {
	event trivia.EventType
	token int
}

// Session is one player's live view of a match.
type Session struct {
	matchID string
	store   *store.Store
	rt      Realtime
	api     MatchAPI
	machine *phase.Machine

	subs []subscription
}

// New creates a session and wires the phase machine to the transport's
// event stream.
func New(matchID string, st *store.Store, rt Realtime, matchAPI MatchAPI, machine *phase.Machine) *Session {
	s := &Session{
		matchID: matchID,
		store:   st,
		rt:      rt,
		api:     matchAPI,
		machine: machine,
	}

	machine.OnQuestionTimeout(s.submitTimeoutAnswer)
	rt.OnReconnect(s.resync)

	s.subscribe(trivia.EventQuestionNew, s.handleQuestionNew)
	s.subscribe(trivia.EventMatchStarted, s.handleMatchStarted)
	s.subscribe(trivia.EventMatchTimer, s.handleTimer)
	s.subscribe(trivia.EventMatchEnded, s.handleMatchEnded)
	return s
}

func (s *Session) subscribe(event trivia.EventType, h func(env trivia.Envelope)) {
	token := s.rt.Subscribe(event, h)
	s.subs = append(s.subs, subscription{event: event, token: token})
}

// Start connects the realtime channel, joins the lobby and loads the
// initial snapshot.
func (s *Session) Start(ctx context.Context) error {
	if err := s.rt.Connect(ctx, s.matchID); err != nil {
		return fmt.Errorf("connect realtime channel: %w", err)
	}
	if err := s.rt.JoinLobby(s.matchID); err != nil {
		log.Warn().Err(err).Msg("lobby join emission failed")
	}
	return s.Sync(ctx)
}

// Close leaves the lobby, drops all event subscriptions and tears down
// the channel. The lobby leave pairs with the join emitted in Start so
// the server does not keep an orphaned subscription.
func (s *Session) Close() {
	if err := s.rt.LeaveLobby(s.matchID); err != nil {
		log.Debug().Err(err).Msg("lobby leave emission failed")
	}
	for _, sub := range s.subs {
		s.rt.Unsubscribe(sub.event, sub.token)
	}
	s.subs = nil
	s.rt.Disconnect()
}

// Sync fetches a fresh authoritative snapshot and replaces the mirror.
// Used on initial load, manual refresh and after reconnects; the
// snapshot always wins over any unconfirmed local state.
func (s *Session) Sync(ctx context.Context) error {
	snap, err := s.api.Snapshot(ctx, s.matchID)
	if err != nil {
		return fmt.Errorf("fetch match snapshot: %w", err)
	}
	s.store.ReplaceFromSnapshot(snap.Match)
	if snap.Match.Status == trivia.MatchStatusFinished {
		s.machine.Finish()
	}
	return nil
}

// resync repairs drift after an automatic reconnection. Events queued
// during the gap are not replayed, so the snapshot is the convergence
// mechanism.
func (s *Session) resync() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Sync(ctx); err != nil {
		log.Error().Err(err).Msg("post-reconnect snapshot sync failed")
	}
}

// Connected reports the connectivity-degraded signal for the UI.
func (s *Session) Connected() bool {
	return s.rt.Connected()
}

// Phase returns the current visible game phase.
func (s *Session) Phase() trivia.GamePhase {
	return s.machine.Phase()
}

// SelectCategory requests a category pick for the local team. The
// attempt is rejected locally, without a network call, when it is not
// the team's turn or the category is already consumed.
func (s *Session) SelectCategory(categoryID string) error {
	match := s.store.Match()
	if match == nil {
		return ErrNoMatch
	}
	if match.Status == trivia.MatchStatusFinished {
		return ErrMatchFinished
	}
	if s.machine.Phase() != trivia.PhaseCategorySelection {
		return ErrWrongPhase
	}
	myTeam := s.store.MyTeam()
	if myTeam == "" || match.CurrentTurn != myTeam {
		log.Warn().
			Str("current_turn", string(match.CurrentTurn)).
			Str("my_team", string(myTeam)).
			Msg("category selection attempted out of turn")
		return ErrWrongTurn
	}
	if match.CategoryTaken(categoryID) {
		return ErrCategoryTaken
	}

	if err := s.rt.SelectCategory(s.matchID, categoryID); err != nil {
		return fmt.Errorf("emit category selection: %w", err)
	}
	// Provisional local apply; the authoritative broadcast is absorbed
	// as a duplicate and the next snapshot reconciles any divergence.
	s.store.ApplyCategorySelected(categoryID, myTeam)
	return nil
}

// SubmitAnswer submits the local player's answer and resolves it with
// the authoritative verdict. Exactly one submission per round; an empty
// answer models a timeout submission.
func (s *Session) SubmitAnswer(ctx context.Context, answer string) error {
	if s.store.AnswerSubmitted() {
		return ErrAlreadySubmitted
	}
	question := s.store.CurrentQuestion()
	if question == nil {
		return ErrNoQuestion
	}

	s.store.SetSelectedAnswer(answer)

	result, err := s.api.SubmitAnswer(ctx, s.matchID, question.ID, answer)
	if err != nil {
		// Authoritative rejection: roll the optimistic selection back
		// and leave the round state untouched.
		s.store.SetSelectedAnswer("")
		return fmt.Errorf("submit answer: %w", err)
	}

	s.store.MarkAnswerSubmitted(*result)
	s.machine.Reveal()
	return nil
}

// submitTimeoutAnswer is invoked by the phase machine when the question
// countdown reaches zero without a submission.
func (s *Session) submitTimeoutAnswer() {
	if s.store.AnswerSubmitted() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.SubmitAnswer(ctx, ""); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
		log.Warn().Err(err).Msg("timeout answer submission failed")
	}
}

// UsePowerUp activates a power-up after local eligibility gating. The
// effect is applied server-side; only the authoritative powerup.used
// event marks it consumed.
func (s *Session) UsePowerUp(ctx context.Context, powerUpID string, targetTeam trivia.TeamID) (*api.PowerUpResult, error) {
	myTeam := s.store.MyTeam()
	if myTeam == "" {
		return nil, ErrNoMatch
	}
	if _, ok := s.store.EligiblePowerUp(s.machine.Phase(), myTeam, powerUpID); !ok {
		return nil, ErrPowerUpUnavailable
	}

	result, err := s.api.UsePowerUp(ctx, s.matchID, powerUpID, targetTeam)
	if err != nil {
		return nil, fmt.Errorf("use power-up: %w", err)
	}
	return result, nil
}

// AssignTeam moves a player onto a team. Locally gated to the host;
// the server enforces the same authorization.
func (s *Session) AssignTeam(playerID string, team trivia.TeamID) error {
	if !s.store.IsHost() {
		return ErrNotHost
	}
	if err := s.rt.AssignTeam(s.matchID, playerID, team); err != nil {
		return fmt.Errorf("emit team assignment: %w", err)
	}
	return nil
}

// StartMatch starts the match. Host only.
func (s *Session) StartMatch(ctx context.Context) error {
	if !s.store.IsHost() {
		return ErrNotHost
	}
	match, err := s.api.StartMatch(ctx, s.matchID)
	if err != nil {
		return fmt.Errorf("start match: %w", err)
	}
	s.store.ReplaceFromSnapshot(*match)
	s.machine.BeginCategorySelection()
	return nil
}

// EndMatch ends the match for all players. Host only; the terminal
// phase transition arrives with the authoritative match.ended event.
func (s *Session) EndMatch(ctx context.Context) error {
	if !s.store.IsHost() {
		return ErrNotHost
	}
	if _, err := s.api.EndMatch(ctx, s.matchID); err != nil {
		return fmt.Errorf("end match: %w", err)
	}
	return nil
}

func (s *Session) handleQuestionNew(env trivia.Envelope) {
	payload, err := trivia.ParseEventPayload(&env)
	if err != nil {
		return
	}
	if p, ok := payload.(trivia.QuestionNewPayload); ok {
		s.machine.BeginQuestion(p.Question)
	}
}

func (s *Session) handleMatchStarted(env trivia.Envelope) {
	s.machine.BeginCategorySelection()
}

func (s *Session) handleTimer(env trivia.Envelope) {
	payload, err := trivia.ParseEventPayload(&env)
	if err != nil {
		return
	}
	if p, ok := payload.(trivia.TimerPayload); ok {
		s.machine.HandleTimerEvent(p.Timer, p.Phase)
	}
}

func (s *Session) handleMatchEnded(env trivia.Envelope) {
	s.machine.Finish()
}
