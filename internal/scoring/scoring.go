// Package scoring grades submitted answers against a test's questions.
package scoring

import (
	"strconv"
	"strings"

	"github.com/stemsi/testplatform-backend/internal/model"
)

// Result is the outcome of grading one answer snapshot.
type Result struct {
	Score   float64         `json:"score"`
	Correct int             `json:"correct"`
	Total   int             `json:"total"`
	Details map[string]bool `json:"details"`
}

// Score grades answers keyed by question id. Every question carries equal
// weight; Question.Points is intentionally not applied. A test with no
// questions scores 0.
func Score(questions []model.Question, answers map[string]string) Result {
	res := Result{
		Total:   len(questions),
		Details: make(map[string]bool, len(questions)),
	}
	for _, q := range questions {
		key := strconv.FormatInt(q.ID, 10)
		ok := Matches(answers[key], q.CorrectAnswer)
		res.Details[key] = ok
		if ok {
			res.Correct++
		}
	}
	if res.Total == 0 {
		return res
	}
	res.Score = float64(res.Correct) / float64(res.Total) * 100
	return res
}

// Matches compares a submitted answer with the canonical one, ignoring case
// and surrounding whitespace. A blank submission never matches.
func Matches(submitted, correct string) bool {
	s := strings.TrimSpace(submitted)
	if s == "" {
		return false
	}
	return strings.EqualFold(s, strings.TrimSpace(correct))
}
