package model

import "time"

// TestAttempt is the permanent, scored record of a finished test.
type TestAttempt struct {
	ID          int64             `json:"id"`
	StudentID   int64             `json:"student_id"`
	TestID      int64             `json:"test_id"`
	Answers     map[string]string `json:"answers"`
	Score       float64           `json:"score"`
	SubmittedAt time.Time         `json:"submitted_at"`
	// TimeTaken is whole minutes.
	TimeTaken int `json:"time_taken"`
}

// StarReason labels a star ledger entry.
type StarReason string

const (
	StarReasonCompletionReward StarReason = "completion_reward"
	StarReasonTestRefund       StarReason = "test_refund"
)

// StarTransaction is one movement on a student's star balance.
type StarTransaction struct {
	ID        int64      `json:"id"`
	StudentID int64      `json:"student_id"`
	Amount    int        `json:"amount"`
	Reason    StarReason `json:"reason"`
	TestID    *int64     `json:"test_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
