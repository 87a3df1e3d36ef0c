package trivia

import "time"

// MatchStatus represents the lifecycle status of a match
type MatchStatus string

const (
	MatchStatusWaiting           MatchStatus = "waiting"
	MatchStatusLobby             MatchStatus = "lobby"
	MatchStatusCategorySelection MatchStatus = "category_selection"
	MatchStatusPlaying           MatchStatus = "playing"
	MatchStatusPaused            MatchStatus = "paused"
	MatchStatusFinished          MatchStatus = "finished"
)

// TeamID identifies one of the two teams in a match
type TeamID string

const (
	TeamA TeamID = "A"
	TeamB TeamID = "B"
)

// Other returns the opposing team id.
func (t TeamID) Other() TeamID {
	if t == TeamA {
		return TeamB
	}
	return TeamA
}

// GamePhase is the client-visible stage of a round
type GamePhase string

const (
	PhaseCategorySelection GamePhase = "category_selection"
	PhaseQuestion          GamePhase = "question"
	PhaseAnswerReveal      GamePhase = "answer_reveal"
	PhaseBreak             GamePhase = "break"
	PhaseFinished          GamePhase = "finished"
)

// Difficulty rates how hard a question is
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// PowerUpType enumerates the single-use team abilities
type PowerUpType string

const (
	PowerUpDoublePoints PowerUpType = "double_points"
	PowerUpSkipQuestion PowerUpType = "skip_question"
	PowerUpExtraTime    PowerUpType = "extra_time"
	PowerUpStealPoints  PowerUpType = "steal_points"
	PowerUpFiftyFifty   PowerUpType = "fifty_fifty"
)

// Category is one of the selectable question categories of a match.
// Immutable once the match is created.
type Category struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Icon          string `json:"icon,omitempty"`
	Color         string `json:"color,omitempty"`
	Description   string `json:"description,omitempty"`
	Badge         string `json:"badge,omitempty"`
	QuestionCount int    `json:"questionCount,omitempty"`
}

// Question is a single timed question belonging to a category.
// CorrectAnswer is empty until the server reveals it.
type Question struct {
	ID            string     `json:"id"`
	CategoryID    string     `json:"categoryId"`
	Text          string     `json:"text"`
	MediaURL      string     `json:"mediaUrl,omitempty"`
	MediaType     string     `json:"mediaType,omitempty"`
	Options       []string   `json:"options,omitempty"`
	CorrectAnswer string     `json:"correctAnswer,omitempty"`
	Difficulty    Difficulty `json:"difficulty"`
	Points        int        `json:"points"`
	TimeLimit     int        `json:"timeLimit"`
}

// Player is a participant in a match. Team is empty until the host
// assigns the player to a side.
type Player struct {
	ID       string `json:"id"`
	OdxID    string `json:"odxId,omitempty"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
	Team     TeamID `json:"team,omitempty"`
	IsHost   bool   `json:"isHost"`
	IsOnline bool   `json:"isOnline"`
	Score    int    `json:"score"`
	JoinedAt string `json:"joinedAt,omitempty"`
}

// PowerUp is a single-use, team-scoped ability. IsUsed flips one way;
// IsEnabled depends on the current context (phase, turn).
type PowerUp struct {
	ID          string      `json:"id"`
	Type        PowerUpType `json:"type"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Icon        string      `json:"icon,omitempty"`
	IsUsed      bool        `json:"isUsed"`
	IsEnabled   bool        `json:"isEnabled"`
}

// Team aggregates the players, score, consumed categories and power-ups
// of one side of the match.
type Team struct {
	ID                 TeamID    `json:"id"`
	Name               string    `json:"name"`
	Color              string    `json:"color,omitempty"`
	Players            []Player  `json:"players"`
	Score              int       `json:"score"`
	SelectedCategories []string  `json:"selectedCategories"`
	PowerUps           []PowerUp `json:"powerUps"`
}

// MatchConfig holds the tunable parameters of a match. All timers are
// in seconds.
type MatchConfig struct {
	CategoriesCount        int `json:"categoriesCount"`
	QuestionsPerCategory   int `json:"questionsPerCategory"`
	QuestionTimer          int `json:"questionTimer"`
	CategorySelectionTimer int `json:"categorySelectionTimer"`
	BreakTimer             int `json:"breakTimer"`
}

// DefaultMatchConfig returns the server-side defaults for a new match.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		CategoriesCount:        6,
		QuestionsPerCategory:   6,
		QuestionTimer:          30,
		CategorySelectionTimer: 15,
		BreakTimer:             5,
	}
}

// Teams holds the two fixed sides of a match.
type Teams struct {
	A Team `json:"A"`
	B Team `json:"B"`
}

// Get returns a pointer to the team with the given id, or nil.
func (t *Teams) Get(id TeamID) *Team {
	switch id {
	case TeamA:
		return &t.A
	case TeamB:
		return &t.B
	}
	return nil
}

// Match is the root aggregate mirrored from the authoritative server.
// It is continuously mutated by authoritative events until the status
// becomes finished.
type Match struct {
	ID              string      `json:"id"`
	Code            string      `json:"code"`
	HostID          string      `json:"hostId"`
	Status          MatchStatus `json:"status"`
	Config          MatchConfig `json:"config"`
	Teams           Teams       `json:"teams"`
	Categories      []Category  `json:"categories"`
	CurrentTurn     TeamID      `json:"currentTurn"`
	CurrentQuestion *Question   `json:"currentQuestion,omitempty"`
	CurrentCategory *Category   `json:"currentCategory,omitempty"`
	QuestionIndex   int         `json:"questionIndex"`
	RoundIndex      int         `json:"roundIndex"`
	Timer           int         `json:"timer"`
	CreatedAt       time.Time   `json:"createdAt"`
	StartedAt       *time.Time  `json:"startedAt,omitempty"`
	EndedAt         *time.Time  `json:"endedAt,omitempty"`
}

// CategoryTaken reports whether either team has already consumed the
// category. Categories are partitioned: once taken they are unavailable
// to both sides.
func (m *Match) CategoryTaken(categoryID string) bool {
	for _, id := range m.Teams.A.SelectedCategories {
		if id == categoryID {
			return true
		}
	}
	for _, id := range m.Teams.B.SelectedCategories {
		if id == categoryID {
			return true
		}
	}
	return false
}

// FindCategory returns the category with the given id, or nil.
func (m *Match) FindCategory(categoryID string) *Category {
	for i := range m.Categories {
		if m.Categories[i].ID == categoryID {
			return &m.Categories[i]
		}
	}
	return nil
}

// FindPlayer returns the player with the given id from either team, or nil.
func (m *Match) FindPlayer(playerID string) *Player {
	for _, team := range []*Team{&m.Teams.A, &m.Teams.B} {
		for i := range team.Players {
			if team.Players[i].ID == playerID {
				return &team.Players[i]
			}
		}
	}
	return nil
}

// MatchSnapshot is a full point-in-time copy of match state fetched on
// demand from the REST snapshot endpoint.
type MatchSnapshot struct {
	Match     Match `json:"match"`
	Timestamp int64 `json:"timestamp"`
}

// FinalScores holds the per-team totals reported with match end.
type FinalScores struct {
	A int `json:"A"`
	B int `json:"B"`
}

// MatchResult is the authoritative outcome of a finished match.
// Winner is "A", "B" or "draw".
type MatchResult struct {
	Match       Match       `json:"match"`
	Winner      string      `json:"winner"`
	FinalScores FinalScores `json:"finalScores"`
}

// AnswerResult is the authoritative verdict for a submitted answer.
type AnswerResult struct {
	IsCorrect bool `json:"isCorrect"`
	Points    int  `json:"points"`
}
