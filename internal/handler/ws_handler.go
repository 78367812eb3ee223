package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/testplatform-backend/internal/middleware"
	"github.com/stemsi/testplatform-backend/internal/model"
	"github.com/stemsi/testplatform-backend/internal/response"
	"github.com/stemsi/testplatform-backend/internal/service"
	"github.com/stemsi/testplatform-backend/internal/validator"
	ws "github.com/stemsi/testplatform-backend/internal/websocket"
)

// actionTimeout bounds the work done for a single frame.
const actionTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler runs the in-test WebSocket channel: autosave, warnings and submit.
type WSHandler struct {
	sessions   *service.SessionService
	completion *service.CompletionService
	warnings   *service.WarningService
	log        zerolog.Logger
	upgrader   websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	sessions *service.SessionService,
	completion *service.CompletionService,
	warnings *service.WarningService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		sessions:   sessions,
		completion: completion,
		warnings:   warnings,
		log:        log.With().Str("component", "ws_handler").Logger(),
		upgrader:   buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/student/sessions/:session_id/stream?token=...
// The session is checked before the upgrade, so a dead session gets a plain
// HTTP error instead of a socket.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, ok := parseSessionID(c)
	if !ok {
		return
	}
	studentID := claims.UserID

	if _, err := h.sessions.GetSession(c.Request.Context(), sessionID, studentID); err != nil {
		failWith(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int64("student_id", studentID).
		Str("session_id", sessionID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		done := h.dispatch(ctx, conn, wsLog, sessionID, studentID, &msg)
		cancel()
		if done {
			ws.Close(conn, "session finished")
			return
		}
	}
}

// dispatch handles one frame and reports whether the stream should end.
func (h *WSHandler) dispatch(ctx context.Context, conn *websocket.Conn, log zerolog.Logger, sessionID uuid.UUID, studentID int64, msg *ws.RequestPayload) bool {
	switch msg.Action {
	case ws.ActionAutosave:
		h.handleAutosave(ctx, conn, log, sessionID, studentID, msg)
		return false
	case ws.ActionWarning:
		h.handleWarning(ctx, conn, log, sessionID, studentID, msg)
		return false
	case ws.ActionSubmit:
		return h.handleSubmit(ctx, conn, log, sessionID, studentID)
	case ws.ActionPing:
		_ = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		return false
	default:
		log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		_ = ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		return false
	}
}

// handleAutosave merges the frame's answers into the session.
func (h *WSHandler) handleAutosave(ctx context.Context, conn *websocket.Conn, log zerolog.Logger, sessionID uuid.UUID, studentID int64, msg *ws.RequestPayload) {
	req := model.UpdateAnswersRequest{Answers: msg.Delta()}
	if fields := validator.Struct(&req); fields != nil {
		_ = ws.WriteError(conn, string(response.ErrValidation), "q_id and ans are required")
		return
	}

	session, err := h.sessions.UpdateAnswers(ctx, sessionID, studentID, req.Answers)
	if err != nil {
		h.writeServiceError(conn, log, err)
		return
	}

	view := h.sessions.View(session)
	_ = ws.WriteTyped(conn, ws.SavedResponse{
		Event:            ws.EventSaved,
		AnsweredCount:    len(session.Answers),
		RemainingSeconds: view.RemainingSeconds,
	})
}

// handleWarning records a violation. The escalation flag is pushed to the
// client so it can show the unban prompt.
func (h *WSHandler) handleWarning(ctx context.Context, conn *websocket.Conn, log zerolog.Logger, sessionID uuid.UUID, studentID int64, msg *ws.RequestPayload) {
	req := model.LogWarningRequest{Type: msg.WarningType, Message: msg.WarningMessage}
	if fields := validator.Struct(&req); fields != nil {
		_ = ws.WriteError(conn, string(response.ErrValidation), "warning_type and warning_message are required")
		return
	}

	result, err := h.warnings.LogWarning(ctx, sessionID, studentID, req.Type, req.Message)
	if err != nil {
		h.writeServiceError(conn, log, err)
		return
	}

	event := ws.EventWarning
	if result.EscalationTriggered {
		event = ws.EventEscalation
	}
	_ = ws.WriteTyped(conn, ws.WarningResponse{
		Event:        event,
		WarningCount: result.WarningCount,
		Escalation:   result.EscalationTriggered,
	})
}

// handleSubmit completes the session. Returns true once the session is final.
func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, log zerolog.Logger, sessionID uuid.UUID, studentID int64) bool {
	result, err := h.completion.CompleteSession(ctx, sessionID, studentID)
	if err != nil {
		h.writeServiceError(conn, log, err)
		_, code := classify(err)
		return code == response.ErrTestAlreadyCompleted
	}

	log.Info().
		Float64("score", result.Score).
		Int("correct", result.Correct).
		Int("total", result.Total).
		Bool("was_expired", result.WasExpired).
		Msg("Test submitted and graded")

	_ = ws.WriteTyped(conn, ws.GradedResponse{
		Event:        ws.EventGraded,
		AttemptID:    result.AttemptID,
		Score:        result.Score,
		Correct:      result.Correct,
		Total:        result.Total,
		TimeTaken:    result.TimeTaken,
		WasExpired:   result.WasExpired,
		StarsAwarded: result.StarsAwarded,
		StarsRefund:  result.StarsRefunded,
		Message:      result.Message,
	})
	return true
}

func (h *WSHandler) writeServiceError(conn *websocket.Conn, log zerolog.Logger, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("WebSocket action failed")
	}
	_ = ws.WriteError(conn, string(code), response.GetMessage(code))
}
