package engine

import (
	"math/rand"

	"trivia-engine/internal/domain"
)

// Sequencer owns the session-shuffled question order and the current index.
// It is not safe for concurrent use; the Machine serializes access.
type Sequencer struct {
	rnd       *rand.Rand
	questions []domain.Question
	index     int
}

func NewSequencer(rnd *rand.Rand) *Sequencer {
	return &Sequencer{rnd: rnd}
}

// Load stores a random permutation of questions. Options are left untouched.
func (s *Sequencer) Load(questions []domain.Question) error {
	if len(questions) == 0 {
		return domain.ErrEmptyCatalog
	}

	shuffled := make([]domain.Question, len(questions))
	copy(shuffled, questions)
	s.rnd.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	s.questions = shuffled
	s.index = 0
	return nil
}

// Current returns the question at the current index, or false once exhausted.
func (s *Sequencer) Current() (domain.Question, bool) {
	if s.index >= len(s.questions) {
		return domain.Question{}, false
	}
	return s.questions[s.index], true
}

// Advance moves to the next question, saturating at the end.
func (s *Sequencer) Advance() {
	if s.index < len(s.questions) {
		s.index++
	}
}

func (s *Sequencer) HasMore() bool {
	return s.index < len(s.questions)
}

func (s *Sequencer) Index() int {
	return s.index
}

func (s *Sequencer) Len() int {
	return len(s.questions)
}
