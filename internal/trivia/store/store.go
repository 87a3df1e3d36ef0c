// Package store owns the in-memory mirror of a match. Every read by the
// UI and every write by the transport or dispatchers passes through it.
// All operations are pure state transitions: the store performs no
// network I/O and tolerates duplicate, stale or out-of-order events by
// absorbing them as no-ops.
package store

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/odxplay/triviasync/internal/trivia"
)

// answerKey dedupes authoritative scoring events. The server may resend
// an answer verdict after a reconnect; crediting is keyed per question
// and player so repeats never double-credit.
type answerKey struct {
	QuestionID string
	PlayerID   string
}

// Store is the sole owner of the local match mirror.
type Store struct {
	mu sync.RWMutex

	match           *trivia.Match
	currentQuestion *trivia.Question
	currentCategory *trivia.Category
	timer           int

	// Session identity
	myPlayerID string
	myTeam     trivia.TeamID
	isHost     bool

	// Per-round answer state
	selectedAnswer  string
	answerSubmitted bool
	lastResult      *trivia.AnswerResult

	// Players who joined the lobby but have no team assignment yet.
	unassigned []trivia.Player

	matchResult *trivia.MatchResult
	credited    map[answerKey]struct{}
}

// New creates an empty store.
func New() *Store {
	return &Store{
		credited: make(map[answerKey]struct{}),
	}
}

// SetIdentity records who the local session is within the match.
func (s *Store) SetIdentity(playerID string, team trivia.TeamID, isHost bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.myPlayerID = playerID
	s.myTeam = team
	s.isHost = isHost
}

// ReplaceFromSnapshot unconditionally overwrites the mirror with a
// freshly fetched authoritative document. Any optimistic change not yet
// confirmed by the server is discarded: the snapshot always wins.
func (s *Store) ReplaceFromSnapshot(doc trivia.Match) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := doc.Clone()
	s.match = &m
	s.currentQuestion = m.CurrentQuestion
	s.currentCategory = m.CurrentCategory
	s.timer = m.Timer
	s.unassigned = nil
	if m.Status != trivia.MatchStatusFinished {
		s.matchResult = nil
	}

	log.Debug().
		Str("match_id", m.ID).
		Str("status", string(m.Status)).
		Msg("mirror replaced from snapshot")
}

// Clear resets the store to its zero state, e.g. after leaving a match.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.match = nil
	s.currentQuestion = nil
	s.currentCategory = nil
	s.timer = 0
	s.myPlayerID = ""
	s.myTeam = ""
	s.isHost = false
	s.selectedAnswer = ""
	s.answerSubmitted = false
	s.lastResult = nil
	s.matchResult = nil
	s.unassigned = nil
	s.credited = make(map[answerKey]struct{})
}

// ApplyPlayerJoined inserts a player keyed by id. Joining a player that
// is already present is a no-op.
func (s *Store) ApplyPlayerJoined(player trivia.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.match == nil || s.finishedLocked() {
		return
	}
	if s.findPlayerLocked(player.ID) != nil {
		log.Debug().Str("player_id", player.ID).Msg("duplicate player join ignored")
		return
	}
	if team := s.match.Teams.Get(player.Team); team != nil {
		team.Players = append(team.Players, player)
		return
	}
	s.unassigned = append(s.unassigned, player)
}

// findPlayerLocked looks up a player across both teams and the
// unassigned lobby bucket.
func (s *Store) findPlayerLocked(playerID string) *trivia.Player {
	if p := s.match.FindPlayer(playerID); p != nil {
		return p
	}
	for i := range s.unassigned {
		if s.unassigned[i].ID == playerID {
			return &s.unassigned[i]
		}
	}
	return nil
}

// ApplyPlayerLeft removes a player by id. Removing an absent player is
// a no-op.
func (s *Store) ApplyPlayerLeft(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.match == nil || s.finishedLocked() {
		return
	}
	for _, team := range []*trivia.Team{&s.match.Teams.A, &s.match.Teams.B} {
		for i := range team.Players {
			if team.Players[i].ID == playerID {
				team.Players = append(team.Players[:i], team.Players[i+1:]...)
				return
			}
		}
	}
	for i := range s.unassigned {
		if s.unassigned[i].ID == playerID {
			s.unassigned = append(s.unassigned[:i], s.unassigned[i+1:]...)
			return
		}
	}
}

// ApplyTeamAssignment moves the player into the target team bucket.
// A no-op if the player is unknown or already on that team; never
// creates duplicate entries across teams.
func (s *Store) ApplyTeamAssignment(playerID string, team trivia.TeamID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.match == nil || s.finishedLocked() {
		return
	}
	target := s.match.Teams.Get(team)
	if target == nil {
		log.Warn().Str("team", string(team)).Msg("team assignment for unknown team ignored")
		return
	}

	var player *trivia.Player
	for _, t := range []*trivia.Team{&s.match.Teams.A, &s.match.Teams.B} {
		for i := range t.Players {
			if t.Players[i].ID != playerID {
				continue
			}
			if t.ID == team {
				// Already on the target team.
				t.Players[i].Team = team
				s.trackMyTeamLocked(playerID, team)
				return
			}
			p := t.Players[i]
			t.Players = append(t.Players[:i], t.Players[i+1:]...)
			player = &p
			break
		}
		if player != nil {
			break
		}
	}
	if player == nil {
		for i := range s.unassigned {
			if s.unassigned[i].ID == playerID {
				p := s.unassigned[i]
				s.unassigned = append(s.unassigned[:i], s.unassigned[i+1:]...)
				player = &p
				break
			}
		}
	}
	if player == nil {
		log.Debug().Str("player_id", playerID).Msg("team assignment for unknown player ignored")
		return
	}

	player.Team = team
	target.Players = append(target.Players, *player)
	s.trackMyTeamLocked(playerID, team)
}

func (s *Store) trackMyTeamLocked(playerID string, team trivia.TeamID) {
	if playerID == s.myPlayerID {
		s.myTeam = team
	}
}

// ApplyCategorySelected appends the category to the team's consumed
// list, unless either team already holds it. Defends against duplicate
// and out-of-order delivery.
func (s *Store) ApplyCategorySelected(categoryID string, team trivia.TeamID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.match == nil || s.finishedLocked() {
		return
	}
	if s.match.CategoryTaken(categoryID) {
		log.Debug().Str("category_id", categoryID).Msg("duplicate category selection ignored")
		return
	}
	target := s.match.Teams.Get(team)
	if target == nil {
		return
	}
	target.SelectedCategories = append(target.SelectedCategories, categoryID)
}

// ApplyNewQuestion replaces the current question and category pointers
// and clears per-round answer state. This is the single point where a
// new round is recognized.
func (s *Store) ApplyNewQuestion(question trivia.Question, category *trivia.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishedLocked() {
		return
	}
	q := question
	q.Options = append([]string(nil), question.Options...)
	s.currentQuestion = &q
	if category != nil {
		c := *category
		s.currentCategory = &c
	} else if s.match != nil {
		s.currentCategory = s.match.FindCategory(question.CategoryID)
	}
	if s.match != nil {
		s.match.CurrentQuestion = s.currentQuestion
		s.match.CurrentCategory = s.currentCategory
	}
	s.selectedAnswer = ""
	s.answerSubmitted = false
	s.lastResult = nil
}

// ApplyAnswerResult records the authoritative verdict for a submitted
// answer and credits the answering player's team when correct. Each
// credit is keyed by (question, player): a replayed event is a no-op.
func (s *Store) ApplyAnswerResult(playerID, questionID string, isCorrect bool, points int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.match == nil || s.finishedLocked() {
		return
	}

	key := answerKey{QuestionID: questionID, PlayerID: playerID}
	if _, seen := s.credited[key]; seen {
		log.Debug().
			Str("question_id", questionID).
			Str("player_id", playerID).
			Msg("replayed answer result ignored")
		return
	}
	s.credited[key] = struct{}{}

	if playerID == s.myPlayerID {
		s.answerSubmitted = true
		s.lastResult = &trivia.AnswerResult{IsCorrect: isCorrect, Points: points}
	}

	if !isCorrect {
		return
	}

	teamID := trivia.TeamID("")
	if p := s.match.FindPlayer(playerID); p != nil {
		teamID = p.Team
	} else if playerID == s.myPlayerID {
		teamID = s.myTeam
	}
	team := s.match.Teams.Get(teamID)
	if team == nil {
		log.Warn().Str("player_id", playerID).Msg("answer result for unassigned player, score not applied")
		return
	}
	team.Score += points
	if p := s.match.FindPlayer(playerID); p != nil {
		p.Score += points
	}
}

// ApplyPowerUpUsed marks the power-up consumed. A no-op if it is
// already used or unknown.
func (s *Store) ApplyPowerUpUsed(team trivia.TeamID, powerUpID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.match == nil || s.finishedLocked() {
		return
	}
	target := s.match.Teams.Get(team)
	if target == nil {
		return
	}
	for i := range target.PowerUps {
		if target.PowerUps[i].ID != powerUpID {
			continue
		}
		if target.PowerUps[i].IsUsed {
			log.Debug().Str("powerup_id", powerUpID).Msg("duplicate power-up use ignored")
			return
		}
		target.PowerUps[i].IsUsed = true
		return
	}
}

// ApplyMatchEnded freezes the match. No further mutation is accepted
// afterwards except ReplaceFromSnapshot and Clear.
func (s *Store) ApplyMatchEnded(result trivia.MatchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.match != nil {
		s.match.Status = trivia.MatchStatusFinished
	}
	r := result
	r.Match = result.Match.Clone()
	s.matchResult = &r
}

// UpdateTimer sets the authoritative timer value, overriding local
// countdown extrapolation.
func (s *Store) UpdateTimer(value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishedLocked() {
		return
	}
	if value < 0 {
		value = 0
	}
	s.timer = value
	if s.match != nil {
		s.match.Timer = value
	}
}

// SetSelectedAnswer records the locally chosen answer option before it
// is confirmed by the server.
func (s *Store) SetSelectedAnswer(answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedAnswer = answer
}

// MarkAnswerSubmitted records a locally resolved submission along with
// the authoritative verdict returned by the REST answer endpoint.
func (s *Store) MarkAnswerSubmitted(result trivia.AnswerResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answerSubmitted = true
	r := result
	s.lastResult = &r
}

// ResetAnswerState clears per-round transient state when a break ends.
func (s *Store) ResetAnswerState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedAnswer = ""
	s.answerSubmitted = false
	s.lastResult = nil
}

func (s *Store) finishedLocked() bool {
	return s.match != nil && s.match.Status == trivia.MatchStatusFinished
}

// Match returns a deep copy of the mirrored match, or nil if no match
// is loaded.
func (s *Store) Match() *trivia.Match {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.match == nil {
		return nil
	}
	m := s.match.Clone()
	return &m
}

// Players returns all players across both teams.
func (s *Store) Players() []trivia.Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.match == nil {
		return nil
	}
	out := make([]trivia.Player, 0, len(s.match.Teams.A.Players)+len(s.match.Teams.B.Players)+len(s.unassigned))
	out = append(out, s.match.Teams.A.Players...)
	out = append(out, s.match.Teams.B.Players...)
	out = append(out, s.unassigned...)
	return out
}

// CurrentQuestion returns a copy of the active question, or nil.
func (s *Store) CurrentQuestion() *trivia.Question {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentQuestion == nil {
		return nil
	}
	q := *s.currentQuestion
	q.Options = append([]string(nil), s.currentQuestion.Options...)
	return &q
}

// CurrentCategory returns a copy of the active category, or nil.
func (s *Store) CurrentCategory() *trivia.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.currentCategory == nil {
		return nil
	}
	c := *s.currentCategory
	return &c
}

// Timer returns the last authoritative timer value.
func (s *Store) Timer() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timer
}

// CurrentTurn returns which team currently holds the turn.
func (s *Store) CurrentTurn() trivia.TeamID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.match == nil {
		return ""
	}
	return s.match.CurrentTurn
}

// MyPlayerID returns the local session's player id.
func (s *Store) MyPlayerID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.myPlayerID
}

// MyTeam returns the local session's team assignment.
func (s *Store) MyTeam() trivia.TeamID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.myTeam
}

// IsHost reports whether the local session is the match host.
func (s *Store) IsHost() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isHost
}

// SelectedAnswer returns the locally chosen answer for this round.
func (s *Store) SelectedAnswer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectedAnswer
}

// AnswerSubmitted reports whether the local player already answered
// this round.
func (s *Store) AnswerSubmitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.answerSubmitted
}

// LastAnswerResult returns the verdict for the last submitted answer,
// or nil if none resolved this round.
func (s *Store) LastAnswerResult() *trivia.AnswerResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastResult == nil {
		return nil
	}
	r := *s.lastResult
	return &r
}

// MatchResult returns the final outcome once the match has ended.
func (s *Store) MatchResult() *trivia.MatchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.matchResult == nil {
		return nil
	}
	r := *s.matchResult
	r.Match = s.matchResult.Match.Clone()
	return &r
}

// Finished reports whether the mirrored match has ended.
func (s *Store) Finished() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finishedLocked()
}
