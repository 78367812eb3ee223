package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/testplatform-backend/internal/middleware"
	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/response"
	"github.com/stemsi/testplatform-backend/internal/service"
	"github.com/stemsi/testplatform-backend/internal/validator"
)

// SessionHandler handles the student-facing test session endpoints.
type SessionHandler struct {
	sessions   *service.SessionService
	completion *service.CompletionService
	warnings   *service.WarningService
	log        zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(
	sessions *service.SessionService,
	completion *service.CompletionService,
	warnings *service.WarningService,
	log zerolog.Logger,
) *SessionHandler {
	return &SessionHandler{
		sessions:   sessions,
		completion: completion,
		warnings:   warnings,
		log:        log.With().Str("component", "session_handler").Logger(),
	}
}

// StartSession godoc
// POST /api/v1/student/tests/:test_id/sessions
// Opens a session, or returns the one already running (idempotent).
func (h *SessionHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, ok := parseInt64Param(c, "test_id")
	if !ok {
		return
	}

	session, err := h.sessions.StartSession(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": h.sessions.View(session)})
}

// ListSessions godoc
// GET /api/v1/student/sessions?active=true
// Lists the caller's sessions that are still running.
func (h *SessionHandler) ListSessions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if active := c.DefaultQuery("active", "true"); active != "true" {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"active": "only active=true is supported"})
		return
	}

	sessions, err := h.sessions.ListActive(c.Request.Context(), claims.UserID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	views := make([]model.SessionView, 0, len(sessions))
	for i := range sessions {
		views = append(views, h.sessions.View(&sessions[i]))
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": views})
}

// GetSession godoc
// GET /api/v1/student/sessions/:session_id
// Returns a running session. An overdue session is expired on the spot and answers 410.
func (h *SessionHandler) GetSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	session, err := h.sessions.GetSession(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": h.sessions.View(session)})
}

// UpdateAnswers godoc
// PATCH /api/v1/student/sessions/:session_id/answers
// Merges the submitted answers into the session.
func (h *SessionHandler) UpdateAnswers(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	var req model.UpdateAnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.sessions.UpdateAnswers(c.Request.Context(), sessionID, claims.UserID, req.Answers)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": h.sessions.View(session)})
}

// CompleteSession godoc
// POST /api/v1/student/sessions/:session_id/complete
// Scores the session and records the attempt.
func (h *SessionHandler) CompleteSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	result, err := h.completion.CompleteSession(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, result)
}

// LogWarning godoc
// POST /api/v1/student/sessions/:session_id/warnings
// Records an anti-cheat violation.
func (h *SessionHandler) LogWarning(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	var req model.LogWarningRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.warnings.LogWarning(c.Request.Context(), sessionID, claims.UserID, req.Type, req.Message)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, result)
}

func parseSessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}
