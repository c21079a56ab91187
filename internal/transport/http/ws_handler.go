package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/identity"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10

	msgSubmitAnswer = "submit_answer"
)

// TokenVerifier resolves account tokens.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

type WSHandler struct {
	service  *app.SessionService
	verifier TokenVerifier
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService, verifier TokenVerifier) *WSHandler {
	return &WSHandler{
		service:  service,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServeWS upgrades GET /ws/rooms/{code} and wires the connection into the room.
// Accounts authenticate with ?token=, guests reconnect with ?guest=; a bare
// request is issued a fresh guest token in the welcome message.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	code := mux.Vars(r)["code"]
	if code == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}
	who, err := h.resolveIdentity(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	sub, err := h.service.Connect(ctx, code, who)
	if err != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(errorEvent(err))
		return
	}
	defer h.service.Leave(context.Background(), sub.Membership)
	defer sub.Close()

	replies := make(chan domain.Event, 16)
	done := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		// unblocks the reader when a write fails
		defer conn.Close()
		h.writePump(conn, sub, replies, done)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("participant", sub.Participant.ID).Msg("ws read")
			}
			break
		}
		var inbound inboundMessage
		reply, ok := domain.Event{Type: domain.EventError, Payload: domain.ErrorPayload{
			Code: domain.CodeValidation, Message: "malformed message",
		}}, true
		if err := json.Unmarshal(data, &inbound); err == nil {
			reply, ok = h.dispatch(ctx, sub.Membership, inbound)
		}
		if !ok {
			continue
		}
		select {
		case replies <- reply:
		case <-writerDone:
		}
	}

	close(done)
	<-writerDone
}

// dispatch runs one inbound message. It returns the event to send back to the
// sender, if any.
func (h *WSHandler) dispatch(ctx context.Context, m app.Membership, inbound inboundMessage) (domain.Event, bool) {
	switch {
	case inbound.Type == msgSubmitAnswer:
		var sub domain.AnswerSubmission
		if err := json.Unmarshal(inbound.Payload, &sub); err != nil || sub.QuestionID == "" {
			return domain.Event{Type: domain.EventError, Payload: domain.ErrorPayload{
				Code: domain.CodeValidation, Message: "invalid submit_answer payload",
			}}, true
		}
		result, err := h.service.Submit(ctx, m, sub)
		if err != nil {
			return errorEvent(err), true
		}
		if result.Duplicate {
			return domain.Event{}, false
		}
		return domain.Event{Type: domain.EventAnswerAccepted, Payload: domain.AnswerAccepted{QuestionID: sub.QuestionID}}, true

	case domain.IsControlAction(inbound.Type):
		if err := h.service.Control(ctx, m, domain.ControlAction(inbound.Type)); err != nil {
			return errorEvent(err), true
		}
		return domain.Event{}, false

	default:
		return domain.Event{Type: domain.EventError, Payload: domain.ErrorPayload{
			Code: domain.CodeValidation, Message: "unsupported message type " + inbound.Type,
		}}, true
	}
}

// writePump is the only writer on conn: welcome first, then replies, room events and pings.
func (h *WSHandler) writePump(conn *websocket.Conn, sub *app.Subscription, replies <-chan domain.Event, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	write := func(ev domain.Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			log.Debug().Err(err).Str("participant", sub.Participant.ID).Msg("ws write")
			return false
		}
		return true
	}

	if !write(domain.Event{Type: domain.EventWelcome, Payload: sub.Welcome}) {
		return
	}
	for {
		select {
		case ev := <-replies:
			if !write(ev) {
				return
			}
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			if !write(ev) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (h *WSHandler) resolveIdentity(r *http.Request) (domain.Identity, error) {
	q := r.URL.Query()
	if token := q.Get("token"); token != "" {
		if h.verifier == nil {
			return domain.Identity{}, identity.ErrNoSecret
		}
		return h.verifier.Verify(token)
	}
	if guest := q.Get("guest"); guest != "" {
		return domain.GuestIdentity(guest), nil
	}
	return domain.GuestIdentity(identity.NewGuestToken()), nil
}

func errorEvent(err error) domain.Event {
	code := domain.ErrorCode(err)
	message := err.Error()
	if code == domain.CodeInternal {
		log.Error().Err(err).Msg("request failed")
		message = "internal error"
	}
	return domain.Event{Type: domain.EventError, Payload: domain.ErrorPayload{Code: code, Message: message}}
}
