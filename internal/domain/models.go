package domain

import "time"

// DefaultBaseScore applies when catalog data omits a question's score.
const DefaultBaseScore = 10

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id" yaml:"id"`
	Text    string `json:"text" yaml:"text"`
	Correct bool   `json:"isCorrect" yaml:"correct"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID        string   `json:"id"`
	Statement string   `json:"statement"`
	BaseScore int      `json:"score"`
	Options   []Option `json:"options"`
}

// CatalogQuestion is the shape delivered by catalogs, where score is optional.
type CatalogQuestion struct {
	ID        string   `json:"id" yaml:"id"`
	Statement string   `json:"statement" yaml:"statement"`
	Score     *int     `json:"score,omitempty" yaml:"score,omitempty"`
	Options   []Option `json:"options" yaml:"options"`
}

// Question converts the catalog shape, defaulting a missing or negative score.
func (c CatalogQuestion) Question() Question {
	score := DefaultBaseScore
	if c.Score != nil && *c.Score >= 0 {
		score = *c.Score
	}
	options := make([]Option, len(c.Options))
	copy(options, c.Options)
	return Question{
		ID:        c.ID,
		Statement: c.Statement,
		BaseScore: score,
		Options:   options,
	}
}

// Questions converts a whole catalog page.
func Questions(catalog []CatalogQuestion) []Question {
	questions := make([]Question, 0, len(catalog))
	for _, c := range catalog {
		questions = append(questions, c.Question())
	}
	return questions
}

// DifficultyParameters is resolved once per session and never changes afterwards.
type DifficultyParameters struct {
	TimeLimitSeconds int `json:"timeLimitSeconds" yaml:"time_limit_seconds"`
	ScoreMultiplier  int `json:"scoreMultiplier" yaml:"multiplier"`
}

// StartedSession is what the scoring authority returns for a successful start.
type StartedSession struct {
	SessionID string
	StartedAt time.Time
	Questions []Question
}

// Status is the lifecycle state of a session.
type Status string

const (
	StatusLoading        Status = "loading"
	StatusAwaitingAnswer Status = "awaiting_answer"
	StatusAdvancing      Status = "advancing"
	StatusWon            Status = "won"
	StatusLost           Status = "lost"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusWon || s == StatusLost
}

// Reason explains why a session reached its current status.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonCompleted    Reason = "completed"
	ReasonWrongAnswer  Reason = "wrong_answer"
	ReasonTimeout      Reason = "timeout"
	ReasonEmptyCatalog Reason = "empty_catalog"
	ReasonStartFailed  Reason = "start_failed"
	ReasonAbandoned    Reason = "abandoned"
)

// Snapshot is emitted to observers on every state change.
// CurrentQuestion is nil while loading and when no questions are available.
type Snapshot struct {
	SessionID       string    `json:"sessionId,omitempty"`
	Status          Status    `json:"status"`
	Reason          Reason    `json:"reason,omitempty"`
	CurrentQuestion *Question `json:"currentQuestion"`
	TimeRemaining   int       `json:"timeRemaining"`
	Score           int       `json:"score"`
	QuestionIndex   int       `json:"questionIndex"`
	TotalQuestions  int       `json:"totalQuestions"`
}

// SyncResult reports the outcome of reporting a final score to the authority.
type SyncResult struct {
	SessionID  string `json:"sessionId"`
	FinalScore int    `json:"finalScore"`
	Err        error  `json:"-"`
}

// Warning renders a failed sync as a user-facing message.
func (r SyncResult) Warning() string {
	if r.Err == nil {
		return ""
	}
	return "score may not have been saved"
}
