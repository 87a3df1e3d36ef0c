// Package phase drives the client-visible game phase state machine and
// the local countdown timer. Transitions are triggered by store events
// (new question, authoritative timer, match end) and by the countdown
// reaching zero; an authoritative match-ended event overrides any
// in-progress phase or timer.
package phase

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/odxplay/triviasync/internal/trivia"
	"github.com/odxplay/triviasync/internal/trivia/store"
)

// revealInterval is how long the answer reveal stays on screen before
// the break begins. Fixed; not user-cancellable.
const revealInterval = 3 * time.Second

// Machine holds the current visible phase and owns the countdown.
type Machine struct {
	store *store.Store
	clock clockwork.Clock

	mu        sync.Mutex
	phase     trivia.GamePhase
	revealGen int

	countdown *Countdown

	onPhaseChange     func(trivia.GamePhase)
	onQuestionTimeout func()
}

// NewMachine creates a phase machine starting in category selection.
func NewMachine(st *store.Store, clock clockwork.Clock) *Machine {
	m := &Machine{
		store:     st,
		clock:     clock,
		phase:     trivia.PhaseCategorySelection,
		countdown: NewCountdown(clock),
	}
	m.countdown.OnComplete(m.handleCountdownComplete)
	return m
}

// OnPhaseChange registers a callback invoked after every transition.
func (m *Machine) OnPhaseChange(fn func(trivia.GamePhase)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPhaseChange = fn
}

// OnQuestionTimeout registers the callback fired when the question
// countdown reaches zero, which must trigger an automatic timeout
// submission with an empty answer.
func (m *Machine) OnQuestionTimeout(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onQuestionTimeout = fn
}

// Phase returns the current visible phase.
func (m *Machine) Phase() trivia.GamePhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Countdown exposes the local countdown for UI rendering.
func (m *Machine) Countdown() *Countdown {
	return m.countdown
}

func (m *Machine) transition(next trivia.GamePhase) {
	m.mu.Lock()
	if m.phase == trivia.PhaseFinished && next != trivia.PhaseFinished {
		m.mu.Unlock()
		return
	}
	prev := m.phase
	m.phase = next
	m.revealGen++
	notify := m.onPhaseChange
	m.mu.Unlock()

	if prev != next {
		log.Debug().Str("from", string(prev)).Str("to", string(next)).Msg("phase transition")
		if notify != nil {
			notify(next)
		}
	}
}

// BeginCategorySelection enters the category selection phase and starts
// the selection countdown.
func (m *Machine) BeginCategorySelection() {
	m.transition(trivia.PhaseCategorySelection)
	m.countdown.Start(m.configTimer(func(c trivia.MatchConfig) int { return c.CategorySelectionTimer }))
}

// BeginQuestion enters the question phase for the given question and
// starts its countdown. Called when the store recognizes a new round.
func (m *Machine) BeginQuestion(q trivia.Question) {
	m.transition(trivia.PhaseQuestion)
	limit := q.TimeLimit
	if limit <= 0 {
		limit = m.configTimer(func(c trivia.MatchConfig) int { return c.QuestionTimer })
	}
	m.countdown.Start(limit)
}

// Reveal enters the answer reveal phase. The countdown never free-runs
// during reveal; after a fixed display interval the break begins
// automatically.
func (m *Machine) Reveal() {
	m.countdown.Stop()
	m.transition(trivia.PhaseAnswerReveal)

	m.mu.Lock()
	gen := m.revealGen
	m.mu.Unlock()

	go func() {
		<-m.clock.After(revealInterval)
		m.mu.Lock()
		stale := gen != m.revealGen || m.phase != trivia.PhaseAnswerReveal
		m.mu.Unlock()
		if stale {
			return
		}
		m.BeginBreak()
	}()
}

// BeginBreak enters the inter-round break. When its countdown reaches
// zero, per-round transient state resets and category selection starts.
func (m *Machine) BeginBreak() {
	m.transition(trivia.PhaseBreak)
	m.countdown.Start(m.configTimer(func(c trivia.MatchConfig) int { return c.BreakTimer }))
}

// Finish moves to the terminal phase, overriding any in-progress phase
// or timer. Triggered by the authoritative match-ended event.
func (m *Machine) Finish() {
	m.countdown.Stop()
	m.transition(trivia.PhaseFinished)
}

// HandleTimerEvent applies an authoritative timer value, overriding
// local countdown extrapolation.
func (m *Machine) HandleTimerEvent(value int, phase trivia.GamePhase) {
	m.mu.Lock()
	current := m.phase
	m.mu.Unlock()
	if current == trivia.PhaseFinished || current == trivia.PhaseAnswerReveal {
		return
	}
	m.countdown.Set(value)
}

// handleCountdownComplete routes a countdown expiry to the transition
// it triggers in the current phase.
func (m *Machine) handleCountdownComplete() {
	m.mu.Lock()
	current := m.phase
	timeout := m.onQuestionTimeout
	m.mu.Unlock()

	switch current {
	case trivia.PhaseQuestion:
		// Countdown hit zero before an answer: automatic timeout
		// submission, then reveal.
		if timeout != nil {
			timeout()
		}
		m.Reveal()
	case trivia.PhaseBreak:
		m.store.ResetAnswerState()
		m.BeginCategorySelection()
	case trivia.PhaseCategorySelection:
		// The server owns selection timeouts; the local countdown just
		// stops and waits for the authoritative next step.
		log.Debug().Msg("category selection countdown elapsed, awaiting server")
	}
}

func (m *Machine) configTimer(pick func(trivia.MatchConfig) int) int {
	def := trivia.DefaultMatchConfig()
	if match := m.store.Match(); match != nil {
		if v := pick(match.Config); v > 0 {
			return v
		}
	}
	return pick(def)
}
