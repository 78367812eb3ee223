package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/testplatform-backend/internal/config"
	"github.com/stemsi/testplatform-backend/internal/middleware"
	"github.com/stemsi/testplatform-backend/internal/response"
	"github.com/stemsi/testplatform-backend/internal/service"
)

const keepAliveInterval = 30 * time.Second

// MonitorHandler streams live session events of a test to staff.
type MonitorHandler struct {
	rdb       *redis.Client
	monitor   *service.MonitorService
	keepAlive time.Duration
	log       zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler. rdb may be nil, in which
// case the stream carries the snapshot and keep-alives only.
func NewMonitorHandler(rdb *redis.Client, monitor *service.MonitorService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:       rdb,
		monitor:   monitor,
		keepAlive: keepAliveInterval,
		log:       log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorTestSSE godoc
// GET /api/v1/admin/tests/:test_id/monitor
// Sends a snapshot, then forwards every session event published for the test.
func (h *MonitorHandler) MonitorTestSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, ok := parseInt64Param(c, "test_id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	snapshot, err := h.monitor.Snapshot(reqCtx, testID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	// Subscribe before the snapshot goes out so no event falls in between.
	var events <-chan *redis.Message
	if h.rdb != nil {
		pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.TestMonitorChannel(testID))
		defer pubsub.Close()
		if _, err := pubsub.Receive(reqCtx); err != nil {
			h.log.Error().Err(err).Int64("test_id", testID).Msg("Monitor subscribe failed")
			response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal)
			return
		}
		events = pubsub.Channel()
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.SSEvent("snapshot", snapshot)
	c.Writer.Flush()

	keepAliveTicker := time.NewTicker(h.keepAlive)
	defer keepAliveTicker.Stop()

	log := h.log.With().Int64("test_id", testID).Int64("user_id", claims.UserID).Logger()
	log.Info().Msg("Staff attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			log.Info().Msg("Staff detached from live monitor SSE")
			return

		case msg, open := <-events:
			if !open {
				return
			}
			// Payloads are already JSON; forward them untouched.
			_, _ = c.Writer.WriteString("event: session\ndata: " + msg.Payload + "\n\n")
			c.Writer.Flush()

		case <-keepAliveTicker.C:
			_, _ = c.Writer.WriteString(": ping\n\n")
			c.Writer.Flush()
		}
	}
}
