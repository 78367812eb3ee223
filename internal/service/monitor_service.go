package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/repository"
)

// monitorSnapshotLimit caps how many sessions the initial snapshot carries.
const monitorSnapshotLimit = 1000

// MonitorService builds the live monitor view of a test.
type MonitorService struct {
	sessions repository.SessionStore
	tests    repository.TestStore
	clock    Clock
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(sessions repository.SessionStore, tests repository.TestStore, clock Clock) *MonitorService {
	return &MonitorService{sessions: sessions, tests: tests, clock: clock}
}

// MonitorStats aggregates session states for a test.
type MonitorStats struct {
	TotalJoined    int `json:"total_joined"`
	TotalActive    int `json:"total_active"`
	TotalExpired   int `json:"total_expired"`
	TotalCompleted int `json:"total_completed"`
	TotalWarnings  int `json:"total_warnings"`
}

// MonitorRow is one student's progress line.
type MonitorRow struct {
	SessionID        uuid.UUID          `json:"session_id"`
	StudentID        int64              `json:"student_id"`
	State            model.SessionState `json:"state"`
	AnsweredCount    int                `json:"answered_count"`
	WarningCount     int                `json:"warning_count"`
	UnbanPromptShown bool               `json:"unban_prompt_shown"`
	RemainingSeconds int                `json:"time_remaining"`
}

// MonitorSnapshot is the first event a monitor receives.
type MonitorSnapshot struct {
	Test           *model.Test  `json:"test"`
	TotalQuestions int          `json:"total_questions"`
	Stats          MonitorStats `json:"stats"`
	Sessions       []MonitorRow `json:"sessions"`
}

// Snapshot loads the test, its question count and its recent sessions concurrently.
func (s *MonitorService) Snapshot(ctx context.Context, testID int64) (*MonitorSnapshot, error) {
	var (
		test      *model.Test
		questions []model.Question
		sessions  []model.TestSession
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		test, err = s.tests.GetByID(gctx, testID)
		return notFound(err)
	})
	g.Go(func() error {
		var err error
		questions, err = s.tests.ListQuestions(gctx, testID)
		return err
	})
	g.Go(func() error {
		var err error
		sessions, err = s.sessions.ListByTest(gctx, testID, monitorSnapshotLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("monitor snapshot: %w", err)
	}

	now := s.clock.Now()
	snap := &MonitorSnapshot{
		Test:           test,
		TotalQuestions: len(questions),
		Sessions:       make([]MonitorRow, 0, len(sessions)),
	}

	for i := range sessions {
		sess := &sessions[i]
		state := sess.State()
		if state == model.SessionStateActive && sess.Elapsed(now) {
			state = model.SessionStateExpired
		}

		switch state {
		case model.SessionStateActive:
			snap.Stats.TotalActive++
		case model.SessionStateExpired:
			snap.Stats.TotalExpired++
		case model.SessionStateCompleted:
			snap.Stats.TotalCompleted++
		}
		snap.Stats.TotalWarnings += sess.WarningCount

		snap.Sessions = append(snap.Sessions, MonitorRow{
			SessionID:        sess.ID,
			StudentID:        sess.StudentID,
			State:            state,
			AnsweredCount:    len(sess.Answers),
			WarningCount:     sess.WarningCount,
			UnbanPromptShown: sess.UnbanPromptShown,
			RemainingSeconds: int(sess.TimeRemaining(now).Seconds()),
		})
	}
	snap.Stats.TotalJoined = len(sessions)

	return snap, nil
}
