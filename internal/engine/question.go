package engine

import (
	"math/rand"

	"trivia-engine/internal/domain"
)

// normalizeOptions guarantees exactly one correct option when there is at least one.
// No correct option promotes the first; several keep only the first marked one.
// It reports whether the question had to be repaired.
func normalizeOptions(options []domain.Option) ([]domain.Option, bool) {
	out := make([]domain.Option, len(options))
	copy(out, options)
	if len(out) == 0 {
		return out, true
	}

	first := -1
	marked := 0
	for i := range out {
		if out[i].Correct {
			marked++
			if first < 0 {
				first = i
			}
		}
	}
	switch {
	case marked == 1:
		return out, false
	case marked == 0:
		out[0].Correct = true
	default:
		for i := range out {
			out[i].Correct = i == first
		}
	}
	return out, true
}

// presentQuestion repairs and shuffles a question's options once, when it becomes current.
func presentQuestion(q domain.Question, rnd *rand.Rand) (domain.Question, bool) {
	options, repaired := normalizeOptions(q.Options)
	rnd.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	q.Options = options
	return q, repaired
}

func findOption(q domain.Question, optionID string) (domain.Option, bool) {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return opt, true
		}
	}
	return domain.Option{}, false
}
