package model

import "time"

// Test is an authored set of questions taken under a time limit.
type Test struct {
	ID        int64  `json:"id"`
	TeacherID int64  `json:"teacher_id"`
	Subject   string `json:"subject"`
	Title     string `json:"title"`
	// TimeLimit is the session length in minutes.
	TimeLimit int       `json:"time_limit"`
	IsActive  bool      `json:"is_active"`
	IsPremium bool      `json:"is_premium"`
	StarPrice int       `json:"star_price"`
	CreatedAt time.Time `json:"created_at"`
}

// Duration returns the time limit as a time.Duration.
func (t *Test) Duration() time.Duration {
	return time.Duration(t.TimeLimit) * time.Minute
}

// QuestionType enumerates supported question formats.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
)

// Question is read-only input to scoring.
type Question struct {
	ID            int64        `json:"id"`
	TestID        int64        `json:"test_id"`
	Text          string       `json:"question_text"`
	Type          QuestionType `json:"question_type"`
	Options       []string     `json:"options"`
	CorrectAnswer string       `json:"-"`
	// Points is stored but not used by the percentage score.
	Points int `json:"points"`
}
