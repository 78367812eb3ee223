package websocket

import "github.com/stemsi/testplatform-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave Action = "autosave"
	ActionWarning  Action = "warning"
	ActionSubmit   Action = "submit"
	ActionPing     Action = "ping"
)

// RequestPayload is the single frame shape the client sends. Which fields
// are read depends on Action.
type RequestPayload struct {
	Action Action `json:"action"`

	// autosave: either a single answer or a batch.
	QID     string            `json:"q_id,omitempty"`
	Answer  string            `json:"ans,omitempty"`
	Answers map[string]string `json:"answers,omitempty"`

	// warning
	WarningType    model.WarningType `json:"warning_type,omitempty"`
	WarningMessage string            `json:"warning_message,omitempty"`
}

// Delta returns the answers carried by an autosave frame.
func (p *RequestPayload) Delta() map[string]string {
	if len(p.Answers) > 0 {
		return p.Answers
	}
	if p.QID == "" {
		return nil
	}
	return map[string]string{p.QID: p.Answer}
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError      Event = "error"
	EventSaved      Event = "saved"
	EventWarning    Event = "warning_logged"
	EventEscalation Event = "escalation"
	EventGraded     Event = "graded"
	EventPong       Event = "pong"
)

type SavedResponse struct {
	Event            Event `json:"event"`
	AnsweredCount    int   `json:"answered_count"`
	RemainingSeconds int64 `json:"time_remaining"`
}

type WarningResponse struct {
	Event        Event `json:"event"`
	WarningCount int   `json:"warning_count"`
	// Escalation is true on the one warning that crossed the threshold.
	Escalation bool `json:"escalation_triggered"`
}

type GradedResponse struct {
	Event        Event   `json:"event"`
	AttemptID    int64   `json:"attempt_id"`
	Score        float64 `json:"score"`
	Correct      int     `json:"correct"`
	Total        int     `json:"total"`
	TimeTaken    int     `json:"time_taken"`
	WasExpired   bool    `json:"was_expired"`
	StarsAwarded int     `json:"stars_awarded"`
	StarsRefund  int     `json:"stars_refunded"`
	Message      string  `json:"message"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
