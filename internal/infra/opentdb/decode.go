package opentdb

import (
	"golang.org/x/net/html"

	"trivia-service/internal/domain"
)

// decodeQuestions unescapes every text field; OpenTDB returns HTML-entity-encoded text by default.
func decodeQuestions(raw []rawQuestion) []domain.Question {
	out := make([]domain.Question, 0, len(raw))
	for _, r := range raw {
		incorrect := make([]string, 0, len(r.IncorrectAnswers))
		for _, a := range r.IncorrectAnswers {
			incorrect = append(incorrect, html.UnescapeString(a))
		}
		out = append(out, domain.Question{
			Type:             domain.QuestionType(r.Type),
			Difficulty:       domain.Difficulty(r.Difficulty),
			Category:         html.UnescapeString(r.Category),
			Question:         html.UnescapeString(r.Question),
			CorrectAnswer:    html.UnescapeString(r.CorrectAnswer),
			IncorrectAnswers: incorrect,
		})
	}
	return out
}

func decodeCategories(raw []domain.Category) []domain.Category {
	out := make([]domain.Category, 0, len(raw))
	for _, c := range raw {
		out = append(out, domain.Category{ID: c.ID, Name: html.UnescapeString(c.Name)})
	}
	return out
}
