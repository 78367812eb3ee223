package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionEventType tags monitor events.
type SessionEventType string

const (
	EventSessionStarted   SessionEventType = "session_started"
	EventSessionCompleted SessionEventType = "session_completed"
	EventSessionExpired   SessionEventType = "session_expired"
	EventWarningLogged    SessionEventType = "warning_logged"
	EventEscalation       SessionEventType = "escalation"
)

// SessionEvent is published for live monitoring and for collaborators such as the ban action.
type SessionEvent struct {
	Type         SessionEventType `json:"type"`
	SessionID    uuid.UUID        `json:"session_id"`
	TestID       int64            `json:"test_id"`
	StudentID    int64            `json:"student_id"`
	Score        *float64         `json:"score,omitempty"`
	WarningCount int              `json:"warning_count,omitempty"`
	WarningType  WarningType      `json:"warning_type,omitempty"`
	At           time.Time        `json:"at"`
}
