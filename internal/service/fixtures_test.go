package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/testplatform-backend/internal/config"
	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/repository/memory"
)

const (
	studentID      int64 = 1
	otherStudentID int64 = 2
	premiumID      int64 = 3

	quizID     int64 = 10
	spareID    int64 = 11
	premiumQID int64 = 20
	paidID     int64 = 30
	inactiveID int64 = 40
)

var epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.SessionEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev model.SessionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) count(t model.SessionEventType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

type harness struct {
	db         *memory.DB
	clock      *fakeClock
	events     *recordingPublisher
	sessions   *SessionService
	completion *CompletionService
	warnings   *WarningService
}

func testSessionConfig() config.SessionConfig {
	cfg := config.DefaultSessionConfig()
	cfg.FinalizeBaseDelay = time.Millisecond
	cfg.SweepBatchSize = 2
	return cfg
}

func questionSet(n int, startID int64) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:            startID + int64(i),
			Type:          model.QuestionShortAnswer,
			CorrectAnswer: "answer",
			Points:        1,
		}
	}
	return qs
}

func newHarness(t *testing.T, cfg config.SessionConfig) *harness {
	t.Helper()

	db := memory.NewDB()
	db.PutUser(model.User{ID: studentID, Username: "siti", Role: model.RoleStudent})
	db.PutUser(model.User{ID: otherStudentID, Username: "budi", Role: model.RoleStudent})
	expiry := epoch.Add(30 * 24 * time.Hour)
	db.PutUser(model.User{ID: premiumID, Username: "dewi", Role: model.RoleStudent, IsPremium: true, PremiumExpiryDate: &expiry})

	db.PutTest(model.Test{ID: quizID, Title: "Geography", TimeLimit: 30, IsActive: true},
		model.Question{ID: 101, CorrectAnswer: "Paris"},
		model.Question{ID: 102, CorrectAnswer: "Nile"},
		model.Question{ID: 103, CorrectAnswer: "Everest"},
		model.Question{ID: 104, CorrectAnswer: "Pacific"},
	)
	db.PutTest(model.Test{ID: spareID, Title: "History", TimeLimit: 20, IsActive: true}, questionSet(2, 201)...)
	db.PutTest(model.Test{ID: premiumQID, Title: "Olympiad", TimeLimit: 60, IsActive: true, IsPremium: true}, questionSet(2, 301)...)
	db.PutTest(model.Test{ID: paidID, Title: "Mock exam", TimeLimit: 90, IsActive: true, StarPrice: 50}, questionSet(20, 401)...)
	db.PutTest(model.Test{ID: inactiveID, Title: "Draft", TimeLimit: 10})
	db.PutOwnedTest(model.OwnedTest{StudentID: studentID, TestID: paidID, PricePaid: 50, PurchasedAt: epoch})

	clock := &fakeClock{now: epoch}
	events := &recordingPublisher{}
	log := zerolog.New(io.Discard)

	sessions := memory.NewSessionStore(db)
	tests := memory.NewTestStore(db)
	attempts := memory.NewAttemptStore(db)
	users := memory.NewUserStore(db)

	completion := NewCompletionService(sessions, tests, attempts, events, clock, cfg, log)
	entitlement := NewEntitlementService(users, memory.NewQuotaCounter(), cfg.DailyTestQuota)

	return &harness{
		db:         db,
		clock:      clock,
		events:     events,
		completion: completion,
		sessions:   NewSessionService(sessions, tests, attempts, users, entitlement, completion, events, clock, log),
		warnings:   NewWarningService(sessions, memory.NewWarningStore(db), nil, events, clock, cfg.WarningThreshold, log),
	}
}

func (h *harness) user(t *testing.T, id int64) *model.User {
	t.Helper()
	u, err := memory.NewUserStore(h.db).GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get user %d: %v", id, err)
	}
	return u
}

func (h *harness) session(t *testing.T, s *model.TestSession) *model.TestSession {
	t.Helper()
	got, err := memory.NewSessionStore(h.db).GetByID(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("get session %s: %v", s.ID, err)
	}
	return got
}
