package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	apperrors "live-quiz-service/internal/errors"
	"live-quiz-service/internal/realtime"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 30 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// WSHandler serves the realtime channel of a session. Lecturers connect without a
// participant id and only watch; students connect with the id they joined under and may
// also answer over the socket.
type WSHandler struct {
	engine   Engine
	upgrader websocket.Upgrader

	// open counts sockets per session participant; a student with two tabs leaves only
	// when the last one closes.
	mu   sync.Mutex
	open map[connKey]int
}

type connKey struct {
	sessionID     string
	participantID string
}

func NewWSHandler(engine Engine) *WSHandler {
	return &WSHandler{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		open: make(map[connKey]int),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionIndex int           `json:"questionIndex"`
	Answer        domain.Answer `json:"answer"`
}

// reply is addressed to the connection that sent the request; it never goes through the
// session fan-out and carries no sequence number.
type reply struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type ackPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	Accepted      bool   `json:"accepted"`
	Reason        string `json:"reason,omitempty"`
}

// ServeWS subscribes before upgrading so unknown sessions and strangers get a plain HTTP
// error instead of a socket.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	participantID := r.URL.Query().Get("participantId")
	if sessionID == "" {
		http.Error(w, "missing sessionId", http.StatusBadRequest)
		return
	}

	sub, err := h.engine.Subscribe(r.Context(), sessionID, participantID)
	if err != nil {
		e := apperrors.Convert(err)
		http.Error(w, e.Message, e.HTTPStatusCode())
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "ws: upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()

	if participantID != "" {
		key := connKey{sessionID: sessionID, participantID: participantID}
		h.attach(key)
		defer func() {
			if h.detach(key) {
				h.engine.Leave(context.Background(), sessionID, participantID)
			}
		}()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	replies := make(chan reply, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close()
		h.writeLoop(ctx, conn, sub, replies)
	}()

	send := func(msg reply) {
		select {
		case replies <- msg:
		case <-writerDone:
		}
	}

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in inboundMessage
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.DebugContext(ctx, "ws: read failed", "session_id", sessionID, "error", err)
			}
			break
		}

		switch in.Type {
		case "resync":
			if err := h.engine.Resync(ctx, sub); err != nil {
				send(errorReply(err))
			}
		case "answer":
			send(h.answer(ctx, sessionID, participantID, in.Payload))
		default:
			send(reply{Type: "error", Payload: apperrors.New(apperrors.CodeInvalidArgument, apperrors.WithMessagef("unsupported message type %q", in.Type))})
		}
	}

	cancel()
	<-writerDone
}

func (h *WSHandler) attach(key connKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.open[key]++
}

// detach reports whether key has no sockets left.
func (h *WSHandler) detach(key connKey) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.open[key]--
	if h.open[key] > 0 {
		return false
	}
	delete(h.open, key)
	return true
}

func (h *WSHandler) answer(ctx context.Context, sessionID, participantID string, raw json.RawMessage) reply {
	if participantID == "" {
		return reply{Type: "error", Payload: apperrors.New(apperrors.CodeInvalidArgument, apperrors.WithMessagef("observers cannot answer"))}
	}
	var p answerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return reply{Type: "error", Payload: apperrors.New(apperrors.CodeInvalidArgument, apperrors.WithMessagef("invalid answer payload"))}
	}

	_, err := h.engine.Submit(ctx, app.SubmitRequest{
		SessionID:     sessionID,
		ParticipantID: participantID,
		QuestionIndex: p.QuestionIndex,
		Answer:        p.Answer,
	})
	switch {
	case errors.Is(err, domain.ErrStaleSubmission):
		return reply{Type: "answer_ack", Payload: ackPayload{QuestionIndex: p.QuestionIndex, Reason: string(apperrors.CodeStaleSubmission)}}
	case err != nil:
		return errorReply(err)
	}
	return reply{Type: "answer_ack", Payload: ackPayload{QuestionIndex: p.QuestionIndex, Accepted: true}}
}

// writeLoop owns every write to conn. It ends when the reader is gone, a write fails or the
// broadcaster evicts the subscription for falling behind.
func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *realtime.Subscription, replies <-chan reply) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case msg, ok := <-sub.Events():
			if !ok {
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow, reconnect"))
				return
			}
			env, err := realtime.Encode(msg.Seq, msg.Event)
			if err != nil {
				slog.ErrorContext(ctx, "ws: encode event", "session_id", sub.SessionID(), "error", err)
				continue
			}
			if err := write(env); err != nil {
				return
			}

		case msg := <-replies:
			if err := write(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func errorReply(err error) reply {
	return reply{Type: "error", Payload: apperrors.Convert(err)}
}
