package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/mocktest-backend/internal/middleware"
	"github.com/stemsi/mocktest-backend/internal/response"
	"github.com/stemsi/mocktest-backend/internal/session"
	ws "github.com/stemsi/mocktest-backend/internal/websocket"
)

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

// WSHandler streams session events and accepts session actions over WebSocket.
type WSHandler struct {
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:session_id/stream
// Pushes phase, tick, answer and finished events. Accepts the same actions as
// the REST endpoints.
func (h *WSHandler) SessionStream(c *gin.Context) {
	runner := middleware.GetSession(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("session_id", runner.ID()).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe, err := runner.Subscribe(ctx)
	if err != nil {
		ws.WriteError(conn, "", string(response.ErrSessionNotFound), response.GetMessage(response.ErrSessionNotFound))
		return
	}
	defer unsubscribe()

	// gorilla allows one concurrent writer; everything goes through out.
	out := make(chan interface{}, 8)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// Unblock the reader once nothing more can be written.
		defer conn.Close()
		defer cancel()
		h.writeLoop(ctx, conn, wsLog, events, out)
	}()

	// Send the current state so a reconnecting client can render immediately.
	if snap, err := runner.Snapshot(ctx); err == nil {
		out <- ws.FromSessionEvent(session.Event{Type: session.EventPhase, Snapshot: snap})
	}

	wsLog.Info().Msg("Client connected")
	h.readLoop(ctx, conn, wsLog, runner, out)

	cancel()
	<-writerDone
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, log zerolog.Logger, events <-chan session.Event, out <-chan interface{}) {
	for {
		var msg interface{}
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				// Session closed underneath the stream.
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(time.Second))
				return
			}
			msg = ws.FromSessionEvent(ev)
		case msg = <-out:
		}

		if err := ws.WriteTyped(conn, msg); err != nil {
			log.Debug().Err(err).Msg("Write failed")
			return
		}
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, log zerolog.Logger, runner *session.Runner, out chan<- interface{}) {
	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected close")
			} else {
				log.Debug().Msg("Connection closed")
			}
			return
		}

		reply := h.handleAction(ctx, runner, msg)
		select {
		case out <- reply:
		case <-ctx.Done():
			return
		}
	}
}

// handleAction applies one client action and returns the reply to send.
func (h *WSHandler) handleAction(ctx context.Context, runner *session.Runner, msg ws.RequestPayload) interface{} {
	var err error
	switch msg.Action {
	case ws.ActionPing:
		return ws.PongResponse{Event: ws.EventPong}
	case ws.ActionChoice:
		if msg.OptionIndex == nil {
			return actionError(msg.Action, response.ErrValidation)
		}
		_, err = runner.SubmitChoice(ctx, *msg.OptionIndex)
	case ws.ActionText:
		_, err = runner.SubmitText(ctx, msg.Text)
	case ws.ActionAdvance:
		err = runner.Advance(ctx)
	case ws.ActionPause:
		err = runner.Pause(ctx)
	case ws.ActionResume:
		err = runner.Resume(ctx)
	case ws.ActionFinish:
		err = runner.FinishEarly(ctx)
	default:
		h.log.Debug().Str("action", string(msg.Action)).Msg("Unknown action")
		return actionError(msg.Action, response.ErrInvalidPayload)
	}

	if err != nil {
		_, code := sessionError(err)
		return actionError(msg.Action, code)
	}
	return ws.AckResponse{Event: ws.EventAck, Action: msg.Action}
}

func actionError(action ws.Action, code response.ErrCode) ws.ErrorResponse {
	return ws.ErrorResponse{
		Event:  ws.EventError,
		Action: action,
		Code:   string(code),
		Error:  response.GetMessage(code),
	}
}
