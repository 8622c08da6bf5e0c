// Package ws streams chat answers over a websocket connection.
package ws

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/agentcore/agentcore/session"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	ChatPath     = "/ws/chat"
	writeTimeout = 10 * time.Second
)

// Chatter is the session surface the handler drives.
type Chatter interface {
	Chat(ctx context.Context, sessionID, message string, opts session.ChatOptions) (<-chan session.AnswerChunk, error)
}

// Request is one inbound chat frame.
type Request struct {
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
	session.ChatOptions
}

// Frame is one outbound chunk, tagged with the request it answers.
type Frame struct {
	RequestID string `json:"request_id"`
	SessionID string `json:"session_id"`
	session.AnswerChunk
}

// Handler upgrades /ws/chat requests and serves chat frames until the
// client disconnects. Requests on one connection are answered in order.
type Handler struct {
	chat     Chatter
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler creates a handler. An empty origin list or "*" accepts every
// origin; requests without an Origin header are always accepted.
func NewHandler(chat Chatter, allowedOrigins []string, logger zerolog.Logger) *Handler {
	return &Handler{
		chat:   chat,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.ContainsFunc(allowed, func(a string) bool {
			return strings.EqualFold(strings.TrimSuffix(a, "/"), origin)
		})
	}
}

// NewMux mounts the handler on ChatPath next to a health endpoint.
func NewMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(ChatPath, h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// A connection without a session id gets its own session.
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger := h.logger.With().Str("session_id", sessionID).Str("remote", r.RemoteAddr).Logger()
	logger.Debug().Msg("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	requests := make(chan []byte)
	go func() {
		defer close(requests)
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn().Err(err).Msg("websocket read failed")
				}
				return
			}
			select {
			case requests <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	for data := range requests {
		if err := h.serveRequest(ctx, conn, sessionID, data, logger); err != nil {
			logger.Warn().Err(err).Msg("websocket write failed")
			return
		}
	}
	logger.Debug().Msg("websocket closed")
}

// serveRequest answers one frame. Only write failures are returned.
func (h *Handler) serveRequest(ctx context.Context, conn *websocket.Conn, sessionID string, data []byte, logger zerolog.Logger) error {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		// Plain text frames are treated as a bare message.
		req = Request{Message: string(data)}
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.SessionID == "" {
		req.SessionID = sessionID
	}
	reply := func(c session.AnswerChunk) error {
		return writeFrame(conn, Frame{RequestID: req.RequestID, SessionID: req.SessionID, AnswerChunk: c})
	}

	if strings.TrimSpace(req.Message) == "" {
		return reply(session.AnswerChunk{Done: true, Error: "message is required"})
	}

	chunks, err := h.chat.Chat(ctx, req.SessionID, req.Message, req.ChatOptions)
	if err != nil {
		logger.Warn().Err(err).Str("request_id", req.RequestID).Msg("chat rejected")
		return reply(session.AnswerChunk{Done: true, Error: err.Error()})
	}
	for c := range chunks {
		if err := reply(c); err != nil {
			// Keep draining so the session is released.
			for range chunks {
			}
			return err
		}
	}
	return nil
}

func writeFrame(conn *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
