package difficulty

import (
	"fmt"
	"sync"

	"trivia-engine/internal/domain"
)

// Default is used for any difficulty id missing from the table.
var Default = domain.DifficultyParameters{TimeLimitSeconds: 30, ScoreMultiplier: 1}

// DefaultTable is the observed easy/medium/hard policy.
func DefaultTable() map[int]domain.DifficultyParameters {
	return map[int]domain.DifficultyParameters{
		1: {TimeLimitSeconds: 30, ScoreMultiplier: 1},
		2: {TimeLimitSeconds: 20, ScoreMultiplier: 2},
		3: {TimeLimitSeconds: 10, ScoreMultiplier: 3},
	}
}

// Policy maps difficulty ids to time limits and score multipliers.
// The table may be replaced while sessions run; sessions keep the value they resolved.
type Policy struct {
	mu    sync.RWMutex
	table map[int]domain.DifficultyParameters
}

// NewPolicy validates table and returns a policy over a copy of it.
func NewPolicy(table map[int]domain.DifficultyParameters) (*Policy, error) {
	p := &Policy{}
	if err := p.Replace(table); err != nil {
		return nil, err
	}
	return p, nil
}

// DefaultPolicy returns a policy over DefaultTable.
func DefaultPolicy() *Policy {
	return &Policy{table: DefaultTable()}
}

// Resolve never fails: unknown ids yield Default.
func (p *Policy) Resolve(difficultyID int) domain.DifficultyParameters {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if params, ok := p.table[difficultyID]; ok {
		return params
	}
	return Default
}

// Replace swaps the whole table after validating every entry.
func (p *Policy) Replace(table map[int]domain.DifficultyParameters) error {
	next := make(map[int]domain.DifficultyParameters, len(table))
	for id, params := range table {
		if err := Validate(params); err != nil {
			return fmt.Errorf("difficulty %d: %w", id, err)
		}
		next[id] = params
	}

	p.mu.Lock()
	p.table = next
	p.mu.Unlock()
	return nil
}

// Validate checks time limit > 0 and multiplier >= 1.
func Validate(params domain.DifficultyParameters) error {
	if params.TimeLimitSeconds <= 0 {
		return fmt.Errorf("%w: time limit %d", domain.ErrInvalidDifficulty, params.TimeLimitSeconds)
	}
	if params.ScoreMultiplier < 1 {
		return fmt.Errorf("%w: multiplier %d", domain.ErrInvalidDifficulty, params.ScoreMultiplier)
	}
	return nil
}
