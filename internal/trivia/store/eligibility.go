package store

import "github.com/odxplay/triviasync/internal/trivia"

// PowerUpEligible reports whether a power-up may be activated in the
// current context. Eligibility is a pure function of phase, turn and
// power-up state so call sites cannot drift apart: the power-up must be
// unused, enabled, activated during the question phase, and it must be
// the acting team's turn. The server applies the actual effect.
func PowerUpEligible(phase trivia.GamePhase, myTurn bool, p trivia.PowerUp) bool {
	if p.IsUsed || !p.IsEnabled {
		return false
	}
	if phase != trivia.PhaseQuestion {
		return false
	}
	return myTurn
}

// EligiblePowerUp finds the power-up by id on the given team and checks
// its eligibility. Returns the power-up and true when it may be used.
func (s *Store) EligiblePowerUp(phase trivia.GamePhase, team trivia.TeamID, powerUpID string) (trivia.PowerUp, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.match == nil {
		return trivia.PowerUp{}, false
	}
	t := s.match.Teams.Get(team)
	if t == nil {
		return trivia.PowerUp{}, false
	}
	myTurn := s.match.CurrentTurn == team
	for _, p := range t.PowerUps {
		if p.ID == powerUpID {
			return p, PowerUpEligible(phase, myTurn, p)
		}
	}
	return trivia.PowerUp{}, false
}
