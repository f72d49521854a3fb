package app

import (
	"math"

	"trivia-service/internal/domain"
)

// MaxPossibleScore is the sum of all awards in a question set.
func MaxPossibleScore(questions []domain.Question) int {
	total := 0
	for _, q := range questions {
		total += q.Difficulty.Award()
	}
	return total
}

// Percentage returns round(100*part/whole), or 0 when whole is not positive.
func Percentage(part, whole int) int {
	if whole <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(part) / float64(whole)))
}
