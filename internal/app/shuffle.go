package app

import (
	"math/rand"
	"sync"

	"trivia-service/internal/domain"
)

// Shuffler returns the presentation order of a question's answers.
type Shuffler func(q domain.Question) []string

// RandomShuffler uses the process-wide auto-seeded source, which is safe for concurrent use.
func RandomShuffler() Shuffler {
	return func(q domain.Question) []string {
		return ShuffleAnswers(q, rand.Shuffle)
	}
}

// SeededShuffler gives a reproducible order, for tests and demos.
func SeededShuffler(seed int64) Shuffler {
	var mu sync.Mutex
	rnd := rand.New(rand.NewSource(seed))
	return func(q domain.Question) []string {
		mu.Lock()
		defer mu.Unlock()
		return ShuffleAnswers(q, rnd.Shuffle)
	}
}

// ShuffleAnswers builds incorrect answers plus the correct one and permutes them with
// a Fisher-Yates shuffle. Duplicate strings are kept as separate entries.
func ShuffleAnswers(q domain.Question, shuffle func(n int, swap func(i, j int))) []string {
	answers := make([]string, 0, len(q.IncorrectAnswers)+1)
	answers = append(answers, q.IncorrectAnswers...)
	answers = append(answers, q.CorrectAnswer)
	shuffle(len(answers), func(i, j int) {
		answers[i], answers[j] = answers[j], answers[i]
	})
	return answers
}
