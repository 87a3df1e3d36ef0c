package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/odxplay/triviasync/internal/api"
	"github.com/odxplay/triviasync/internal/phase"
	"github.com/odxplay/triviasync/internal/trivia"
	"github.com/odxplay/triviasync/internal/trivia/store"
)

type assignCall struct {
	playerID string
	team     trivia.TeamID
}

type fakeRealtime struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	connectCalls int
	joins        []string
	leaves       []string
	categories   []string
	assigns      []assignCall
	subscribes   int
	unsubscribes int
	onReconnect  func()
}

func (f *fakeRealtime) Connect(ctx context.Context, matchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeRealtime) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeRealtime) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeRealtime) OnReconnect(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onReconnect = fn
}

func (f *fakeRealtime) OnStatusChange(fn func(connected bool)) {}

func (f *fakeRealtime) Subscribe(event trivia.EventType, h func(env trivia.Envelope)) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	return f.subscribes
}

func (f *fakeRealtime) Unsubscribe(event trivia.EventType, token int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes++
}

func (f *fakeRealtime) JoinLobby(matchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joins = append(f.joins, matchID)
	return nil
}

func (f *fakeRealtime) LeaveLobby(matchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves = append(f.leaves, matchID)
	return nil
}

func (f *fakeRealtime) SelectCategory(matchID, categoryID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.categories = append(f.categories, categoryID)
	return nil
}

func (f *fakeRealtime) AssignTeam(matchID, playerID string, team trivia.TeamID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigns = append(f.assigns, assignCall{playerID: playerID, team: team})
	return nil
}

func (f *fakeRealtime) categorySelections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.categories)
}

type fakeAPI struct {
	mu            sync.Mutex
	snapshot      trivia.MatchSnapshot
	snapshotErr   error
	snapshotCalls int
	answerResult  trivia.AnswerResult
	answerErr     error
	answers       []string
	powerResult   api.PowerUpResult
	powerCalls    int
	startMatch    *trivia.Match
	endCalls      int
}

func (f *fakeAPI) Snapshot(ctx context.Context, matchID string) (*trivia.MatchSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotCalls++
	if f.snapshotErr != nil {
		return nil, f.snapshotErr
	}
	snap := f.snapshot
	return &snap, nil
}

func (f *fakeAPI) StartMatch(ctx context.Context, matchID string) (*trivia.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startMatch == nil {
		return nil, errors.New("no start match configured")
	}
	m := f.startMatch.Clone()
	return &m, nil
}

func (f *fakeAPI) EndMatch(ctx context.Context, matchID string) (*trivia.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.endCalls++
	return &trivia.Match{ID: matchID, Status: trivia.MatchStatusFinished}, nil
}

func (f *fakeAPI) SubmitAnswer(ctx context.Context, matchID, questionID, answer string) (*trivia.AnswerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answer)
	if f.answerErr != nil {
		return nil, f.answerErr
	}
	result := f.answerResult
	return &result, nil
}

func (f *fakeAPI) UsePowerUp(ctx context.Context, matchID, powerUpID string, targetTeam trivia.TeamID) (*api.PowerUpResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.powerCalls++
	result := f.powerResult
	return &result, nil
}

func (f *fakeAPI) answerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.answers)
}

func (f *fakeAPI) snapshots() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotCalls
}

func testMatch() trivia.Match {
	return trivia.Match{
		ID:          "m1",
		Code:        "ABCD",
		Status:      trivia.MatchStatusPlaying,
		Config:      trivia.DefaultMatchConfig(),
		CurrentTurn: trivia.TeamA,
		Categories: []trivia.Category{
			{ID: "cat-geo", Name: "Geography"},
			{ID: "cat-sci", Name: "Science"},
		},
		Teams: trivia.Teams{
			A: trivia.Team{
				ID: trivia.TeamA,
				Players: []trivia.Player{
					{ID: "p1", Username: "nadia", IsHost: true},
				},
				SelectedCategories: []string{"cat-sci"},
				PowerUps: []trivia.PowerUp{
					{ID: "pu1", Type: trivia.PowerUpDoublePoints, IsEnabled: true},
					{ID: "pu2", Type: trivia.PowerUpFiftyFifty, IsEnabled: true, IsUsed: true},
				},
			},
			B: trivia.Team{
				ID:      trivia.TeamB,
				Players: []trivia.Player{{ID: "p2", Username: "omar"}},
			},
		},
	}
}

type fixture struct {
	session *Session
	store   *store.Store
	rt      *fakeRealtime
	api     *fakeAPI
	machine *phase.Machine
	clock   *clockwork.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.New()
	st.ReplaceFromSnapshot(testMatch())
	st.SetIdentity("p1", trivia.TeamA, true)

	clock := clockwork.NewFakeClock()
	machine := phase.NewMachine(st, clock)
	rt := &fakeRealtime{}
	matchAPI := &fakeAPI{snapshot: trivia.MatchSnapshot{Match: testMatch()}}

	return &fixture{
		session: New("m1", st, rt, matchAPI, machine),
		store:   st,
		rt:      rt,
		api:     matchAPI,
		machine: machine,
		clock:   clock,
	}
}

func TestSession_StartConnectsJoinsAndSyncs(t *testing.T) {
	f := newFixture(t)

	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if f.rt.connectCalls != 1 || len(f.rt.joins) != 1 {
		t.Fatalf("connect/join not performed: %d connects, %d joins", f.rt.connectCalls, len(f.rt.joins))
	}
	if f.api.snapshots() != 1 {
		t.Fatalf("snapshot fetches = %d, want 1", f.api.snapshots())
	}
	if m := f.store.Match(); m == nil || m.ID != "m1" {
		t.Fatalf("store not populated from snapshot")
	}
}

func TestSession_SyncFinishedSnapshotEndsPhase(t *testing.T) {
	f := newFixture(t)
	ended := testMatch()
	ended.Status = trivia.MatchStatusFinished
	f.api.snapshot = trivia.MatchSnapshot{Match: ended}

	if err := f.session.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if got := f.session.Phase(); got != trivia.PhaseFinished {
		t.Fatalf("phase = %q, want finished", got)
	}
}

func TestSession_SelectCategoryOutOfTurnNeverTouchesNetwork(t *testing.T) {
	f := newFixture(t)
	f.store.SetIdentity("p2", trivia.TeamB, false)

	err := f.session.SelectCategory("cat-geo")
	if !errors.Is(err, ErrWrongTurn) {
		t.Fatalf("err = %v, want ErrWrongTurn", err)
	}
	if f.rt.categorySelections() != 0 {
		t.Fatalf("out-of-turn selection reached the transport")
	}
	if f.store.Match().CategoryTaken("cat-geo") {
		t.Fatalf("out-of-turn selection mutated the store")
	}
}

func TestSession_SelectCategoryRejectsConsumedCategory(t *testing.T) {
	f := newFixture(t)
	if err := f.session.SelectCategory("cat-sci"); !errors.Is(err, ErrCategoryTaken) {
		t.Fatalf("err = %v, want ErrCategoryTaken", err)
	}
	if f.rt.categorySelections() != 0 {
		t.Fatalf("consumed-category selection reached the transport")
	}
}

func TestSession_SelectCategoryRejectsWrongPhase(t *testing.T) {
	f := newFixture(t)
	f.machine.BeginQuestion(trivia.Question{ID: "q1", TimeLimit: 30})

	if err := f.session.SelectCategory("cat-geo"); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("err = %v, want ErrWrongPhase", err)
	}
}

func TestSession_SelectCategoryEmitsAndAppliesProvisionally(t *testing.T) {
	f := newFixture(t)

	if err := f.session.SelectCategory("cat-geo"); err != nil {
		t.Fatalf("select category: %v", err)
	}
	if f.rt.categorySelections() != 1 {
		t.Fatalf("selection not emitted")
	}
	if m := f.store.Match(); !m.CategoryTaken("cat-geo") {
		t.Fatalf("provisional selection not applied locally")
	}
}

func TestSession_SubmitAnswerOncePerRound(t *testing.T) {
	f := newFixture(t)
	f.store.ApplyNewQuestion(trivia.Question{ID: "q1", TimeLimit: 30}, nil)
	f.api.answerResult = trivia.AnswerResult{IsCorrect: true, Points: 50}

	if err := f.session.SubmitAnswer(context.Background(), "Lima"); err != nil {
		t.Fatalf("submit answer: %v", err)
	}
	if !f.store.AnswerSubmitted() {
		t.Fatalf("answer not marked submitted")
	}
	if got := f.session.Phase(); got != trivia.PhaseAnswerReveal {
		t.Fatalf("phase = %q, want answer_reveal after submission", got)
	}

	err := f.session.SubmitAnswer(context.Background(), "Quito")
	if !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("second submit err = %v, want ErrAlreadySubmitted", err)
	}
	if f.api.answerCount() != 1 {
		t.Fatalf("answer submissions = %d, want exactly 1", f.api.answerCount())
	}
}

func TestSession_SubmitAnswerRollsBackOnRejection(t *testing.T) {
	f := newFixture(t)
	f.store.ApplyNewQuestion(trivia.Question{ID: "q1", TimeLimit: 30}, nil)
	f.api.answerErr = errors.New("round already closed")

	if err := f.session.SubmitAnswer(context.Background(), "Lima"); err == nil {
		t.Fatalf("expected error from rejected submission")
	}
	if f.store.AnswerSubmitted() {
		t.Fatalf("rejected submission marked as submitted")
	}
	if got := f.store.SelectedAnswer(); got != "" {
		t.Fatalf("optimistic selection not rolled back: %q", got)
	}
}

func TestSession_SubmitAnswerWithoutQuestion(t *testing.T) {
	f := newFixture(t)
	if err := f.session.SubmitAnswer(context.Background(), "Lima"); !errors.Is(err, ErrNoQuestion) {
		t.Fatalf("err = %v, want ErrNoQuestion", err)
	}
}

func TestSession_QuestionTimeoutSubmitsEmptyAnswer(t *testing.T) {
	f := newFixture(t)
	f.store.ApplyNewQuestion(trivia.Question{ID: "q1"}, nil)
	f.machine.BeginQuestion(trivia.Question{ID: "q1", TimeLimit: 1})

	f.clock.BlockUntil(1)
	f.clock.Advance(time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for f.api.answerCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if f.api.answerCount() != 1 {
		t.Fatalf("timeout submission never reached the service")
	}
	f.api.mu.Lock()
	answer := f.api.answers[0]
	f.api.mu.Unlock()
	if answer != "" {
		t.Fatalf("timeout answer = %q, want empty", answer)
	}
}

func TestSession_UsePowerUpGatesLocally(t *testing.T) {
	f := newFixture(t)

	// Outside the question phase nothing reaches the service.
	if _, err := f.session.UsePowerUp(context.Background(), "pu1", trivia.TeamB); !errors.Is(err, ErrPowerUpUnavailable) {
		t.Fatalf("err = %v, want ErrPowerUpUnavailable", err)
	}

	f.machine.BeginQuestion(trivia.Question{ID: "q1", TimeLimit: 30})

	// A consumed power-up stays rejected.
	if _, err := f.session.UsePowerUp(context.Background(), "pu2", trivia.TeamB); !errors.Is(err, ErrPowerUpUnavailable) {
		t.Fatalf("err = %v, want ErrPowerUpUnavailable for used power-up", err)
	}
	if f.api.powerCalls != 0 {
		t.Fatalf("ineligible power-up reached the service")
	}

	f.api.powerResult = api.PowerUpResult{Success: true, Effect: "double_points"}
	result, err := f.session.UsePowerUp(context.Background(), "pu1", trivia.TeamB)
	if err != nil {
		t.Fatalf("use power-up: %v", err)
	}
	if result.Effect != "double_points" {
		t.Fatalf("effect = %q", result.Effect)
	}
	// Consumption is only marked by the authoritative broadcast.
	if m := f.store.Match(); m.Teams.A.PowerUps[0].IsUsed {
		t.Fatalf("power-up marked used before authoritative event")
	}
}

func TestSession_AssignTeamIsHostOnly(t *testing.T) {
	f := newFixture(t)
	f.store.SetIdentity("p2", trivia.TeamB, false)

	if err := f.session.AssignTeam("p2", trivia.TeamA); !errors.Is(err, ErrNotHost) {
		t.Fatalf("err = %v, want ErrNotHost", err)
	}
	if len(f.rt.assigns) != 0 {
		t.Fatalf("non-host assignment reached the transport")
	}

	f.store.SetIdentity("p1", trivia.TeamA, true)
	if err := f.session.AssignTeam("p2", trivia.TeamA); err != nil {
		t.Fatalf("assign team: %v", err)
	}
	if len(f.rt.assigns) != 1 || f.rt.assigns[0].playerID != "p2" {
		t.Fatalf("assignment not emitted: %+v", f.rt.assigns)
	}
}

func TestSession_StartMatchIsHostOnly(t *testing.T) {
	f := newFixture(t)
	started := testMatch()
	started.Status = trivia.MatchStatusPlaying
	f.api.startMatch = &started

	f.store.SetIdentity("p2", trivia.TeamB, false)
	if err := f.session.StartMatch(context.Background()); !errors.Is(err, ErrNotHost) {
		t.Fatalf("err = %v, want ErrNotHost", err)
	}

	f.store.SetIdentity("p1", trivia.TeamA, true)
	if err := f.session.StartMatch(context.Background()); err != nil {
		t.Fatalf("start match: %v", err)
	}
	if got := f.session.Phase(); got != trivia.PhaseCategorySelection {
		t.Fatalf("phase = %q, want category_selection after start", got)
	}
}

func TestSession_ReconnectHookResyncsFromSnapshot(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if f.rt.onReconnect == nil {
		t.Fatalf("reconnect hook not registered")
	}

	f.rt.onReconnect()
	if f.api.snapshots() != 2 {
		t.Fatalf("snapshot fetches = %d, want 2 after reconnect", f.api.snapshots())
	}
}

func TestSession_CloseLeavesAndUnsubscribes(t *testing.T) {
	f := newFixture(t)
	if err := f.session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.session.Close()
	if len(f.rt.leaves) != 1 {
		t.Fatalf("lobby leave not emitted on close")
	}
	if f.rt.unsubscribes != f.rt.subscribes {
		t.Fatalf("unsubscribes = %d, want %d", f.rt.unsubscribes, f.rt.subscribes)
	}
	if f.rt.Connected() {
		t.Fatalf("transport still connected after close")
	}
}
