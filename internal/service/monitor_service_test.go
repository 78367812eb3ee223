package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/repository/memory"
)

func TestMonitorSnapshot(t *testing.T) {
	h := newHarness(t, testSessionConfig())
	ctx := context.Background()
	monitor := NewMonitorService(memory.NewSessionStore(h.db), memory.NewTestStore(h.db), h.clock)

	first, err := h.sessions.StartSession(ctx, quizID, studentID)
	require.NoError(t, err)
	_, err = h.sessions.UpdateAnswers(ctx, first.ID, studentID, map[string]string{"101": "Paris", "102": "Nile"})
	require.NoError(t, err)
	_, err = h.warnings.LogWarning(ctx, first.ID, studentID, model.WarningCopy, "copy")
	require.NoError(t, err)

	second, err := h.sessions.StartSession(ctx, quizID, otherStudentID)
	require.NoError(t, err)
	_, err = h.completion.CompleteSession(ctx, second.ID, otherStudentID)
	require.NoError(t, err)

	snap, err := monitor.Snapshot(ctx, quizID)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.TotalQuestions)
	assert.Equal(t, MonitorStats{TotalJoined: 2, TotalActive: 1, TotalCompleted: 1, TotalWarnings: 1}, snap.Stats)

	rows := map[int64]MonitorRow{}
	for _, r := range snap.Sessions {
		rows[r.StudentID] = r
	}
	assert.Equal(t, 2, rows[studentID].AnsweredCount)
	assert.Equal(t, 30*60, rows[studentID].RemainingSeconds)
	assert.Equal(t, model.SessionStateCompleted, rows[otherStudentID].State)

	h.clock.Advance(31 * time.Minute)
	snap, err = monitor.Snapshot(ctx, quizID)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Stats.TotalExpired, "an overdue session is reported as expired")
	assert.Zero(t, snap.Stats.TotalActive)
}

func TestMonitorSnapshotUnknownTest(t *testing.T) {
	h := newHarness(t, testSessionConfig())
	monitor := NewMonitorService(memory.NewSessionStore(h.db), memory.NewTestStore(h.db), h.clock)

	_, err := monitor.Snapshot(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}
