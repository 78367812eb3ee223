package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/testplatform-backend/internal/middleware"
	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/response"
	"github.com/stemsi/testplatform-backend/internal/service"
)

// AdminHandler handles staff operations on sessions.
type AdminHandler struct {
	sessions   *service.SessionService
	completion *service.CompletionService
	warnings   *service.WarningService
	clock      service.Clock
	log        zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	sessions *service.SessionService,
	completion *service.CompletionService,
	warnings *service.WarningService,
	clock service.Clock,
	log zerolog.Logger,
) *AdminHandler {
	return &AdminHandler{
		sessions:   sessions,
		completion: completion,
		warnings:   warnings,
		clock:      clock,
		log:        log.With().Str("component", "admin_handler").Logger(),
	}
}

// SweepSessions godoc
// POST /api/v1/admin/sessions/sweep?dry_run=true
// Finalizes every overdue session. With dry_run the candidates are only counted.
func (h *AdminHandler) SweepSessions(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	dryRun, err := strconv.ParseBool(c.DefaultQuery("dry_run", "false"))
	if err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"dry_run": "dry_run must be a boolean"})
		return
	}

	ctx := c.Request.Context()
	now := h.clock.Now()

	var result *service.SweepResult
	if dryRun {
		result, err = h.completion.PreviewSweep(ctx, now)
	} else {
		result, err = h.completion.SweepExpiredSessions(ctx, now)
	}
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	h.log.Info().
		Int64("triggered_by", claims.UserID).
		Bool("dry_run", dryRun).
		Int("expired_count", result.ExpiredCount).
		Int("failed", result.Failed).
		Msg("Manual sweep finished")

	response.Success(c, http.StatusOK, result)
}

// ExpireSession godoc
// POST /api/v1/admin/sessions/:session_id/expire
// Flags a session as expired. Finalization is left to the sweep.
func (h *AdminHandler) ExpireSession(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	if err := h.sessions.MarkExpired(c.Request.Context(), sessionID); err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session_id": sessionID, "state": model.SessionStateExpired})
}

// ListWarnings godoc
// GET /api/v1/admin/sessions/:session_id/warnings
// Returns the violation log of a session, oldest first.
func (h *AdminHandler) ListWarnings(c *gin.Context) {
	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}

	logs, err := h.warnings.ListWarnings(c.Request.Context(), sessionID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	if logs == nil {
		logs = []model.WarningLog{}
	}

	response.Success(c, http.StatusOK, gin.H{"warnings": logs})
}
