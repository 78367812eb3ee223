package model

import (
	"time"

	"github.com/google/uuid"
)

// WarningType is an anti-cheat violation category reported by the client.
type WarningType string

const (
	WarningTabSwitch      WarningType = "tab_switch"
	WarningDevtools       WarningType = "f12_devtools"
	WarningPrintScreen    WarningType = "printscreen"
	WarningAltTab         WarningType = "alt_tab"
	WarningCmdTab         WarningType = "cmd_tab"
	WarningInspectElement WarningType = "inspect_element"
	WarningRightClick     WarningType = "right_click"
	WarningCopy           WarningType = "copy"
	WarningPaste          WarningType = "paste"
	WarningCut            WarningType = "cut"
	WarningWindowResize   WarningType = "window_resize"
	WarningUnknown        WarningType = "unknown"
)

// WarningLog is an append-only record of one violation.
type WarningLog struct {
	ID        int64       `json:"id"`
	SessionID uuid.UUID   `json:"session_id"`
	StudentID int64       `json:"student_id"`
	Type      WarningType `json:"warning_type"`
	Message   string      `json:"warning_message"`
	CreatedAt time.Time   `json:"created_at"`
}

// LogWarningRequest is the payload for reporting a violation.
type LogWarningRequest struct {
	Type    WarningType `json:"warning_type" binding:"required,warning_type"`
	Message string      `json:"warning_message" binding:"required,max=500"`
}

var knownWarningTypes = map[WarningType]struct{}{
	WarningTabSwitch: {}, WarningDevtools: {}, WarningPrintScreen: {}, WarningAltTab: {},
	WarningCmdTab: {}, WarningInspectElement: {}, WarningRightClick: {}, WarningCopy: {},
	WarningPaste: {}, WarningCut: {}, WarningWindowResize: {}, WarningUnknown: {},
}

// Valid reports whether t is one of the known violation categories.
func (t WarningType) Valid() bool {
	_, ok := knownWarningTypes[t]
	return ok
}
