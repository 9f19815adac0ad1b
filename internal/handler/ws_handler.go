package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/provalia/cbt-backend/internal/engine"
	"github.com/provalia/cbt-backend/internal/middleware"
	"github.com/provalia/cbt-backend/internal/model"
	"github.com/provalia/cbt-backend/internal/service"
	ws "github.com/provalia/cbt-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
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

// WSHandler streams the authoritative countdown to connected candidates.
type WSHandler struct {
	attemptService *service.AttemptService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attemptService *service.AttemptService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attemptService: attemptService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ClockStream godoc
// WS /ws/v1/attempts/:attempt_id/clock
// Pushes the server-side remaining time on every timer tick. The client
// clock is presentation only; this stream is the source of truth.
func (h *WSHandler) ClockStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID, ok := parseAttemptID(c)
	if !ok {
		return
	}

	eng, err := h.attemptService.Engine(attemptID, claims.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no live session for this attempt"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("attempt_id", attemptID.String()).
		Int("candidate_id", claims.UserID).
		Logger()

	wsLog.Info().Msg("Candidate connected")

	frames, unsubscribe := eng.Subscribe()
	defer unsubscribe()

	// Gorilla connections allow one concurrent writer; the tick loop and
	// the reader both respond, so writes go through one guarded function.
	var writeMu sync.Mutex
	write := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return ws.WriteTyped(conn, v)
	}

	// Reader goroutine: control actions and connection liveness.
	done := make(chan struct{})
	go h.readLoop(conn, eng, write, wsLog, done)

	for {
		select {
		case <-done:
			wsLog.Debug().Msg("Connection closed")
			return
		case frame, open := <-frames:
			if !open {
				return
			}

			if err := write(ws.ClockPush{
				Event:            ws.EventClock,
				RemainingSeconds: frame.RemainingSeconds,
				SessionStatus:    string(frame.Status),
			}); err != nil {
				wsLog.Debug().Err(err).Msg("Write failed")
				return
			}

			if frame.Status == model.SessionStatusFinished {
				write(ws.FinishedPush{Event: ws.EventFinished, Via: string(model.SubmitViaAuto)})
				if err := h.attemptService.SealExpired(context.Background(), attemptID, claims.UserID); err != nil {
					wsLog.Warn().Err(err).Msg("Seal after expiry failed")
				}
				return
			}
		}
	}
}

// readLoop consumes client control frames until the connection drops.
func (h *WSHandler) readLoop(conn *websocket.Conn, eng *engine.Engine, write func(interface{}) error, wsLog zerolog.Logger, done chan struct{}) {
	defer close(done)

	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}

		switch msg.Action {
		case ws.ActionPing:
			write(ws.PongResponse{Event: ws.EventPong})
		case ws.ActionPause:
			if err := eng.Pause(); err != nil {
				write(ws.ErrorResponse{Event: ws.EventError, Error: err.Error()})
			}
		case ws.ActionResume:
			if err := eng.Resume(); err != nil {
				write(ws.ErrorResponse{Event: ws.EventError, Error: err.Error()})
			}
		default:
			write(ws.ErrorResponse{Event: ws.EventError, Error: "unknown action"})
		}
	}
}
