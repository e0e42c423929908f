// Package http exposes the quiz session over WebSocket: a player endpoint
// that joins a room and answers questions, and a host endpoint that drives
// the room lifecycle. Push events are treated as invalidation signals; every
// payload sent downstream comes from a reconciling read.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quizroom-service/internal/app"
	"quizroom-service/internal/broadcast"
	"quizroom-service/internal/domain"
)

// autoSubmitGrace pads the server-side countdown past the client timer so a
// timely client submission always wins the race against the auto-submit.
const autoSubmitGrace = 2 * time.Second

// SessionStore persists rejoin sessions and room liveness markers. Optional;
// a nil store disables both.
type SessionStore interface {
	Save(ctx context.Context, identityKey string, sess domain.PlayerSession) error
	Get(ctx context.Context, roomCode, identityKey string) (domain.PlayerSession, bool, error)
	MarkRoomLive(ctx context.Context, roomID string)
}

type Handler struct {
	rooms    *app.RoomService
	players  *app.PlayerService
	broker   *broadcast.Broker
	sessions SessionStore
	identity app.IdentityKey
	log      *zap.SugaredLogger
	upgrader websocket.Upgrader
}

func NewHandler(rooms *app.RoomService, players *app.PlayerService, broker *broadcast.Broker, sessions SessionStore, identity app.IdentityKey, log *zap.SugaredLogger) *Handler {
	if identity == nil {
		identity = app.NameKey
	}
	return &Handler{
		rooms:    rooms,
		players:  players,
		broker:   broker,
		sessions: sessions,
		identity: identity,
		log:      log,
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

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type answerPayload struct {
	QuestionID    string `json:"questionId"`
	SelectedIndex int    `json:"selectedIndex"`
	TimeLeft      int    `json:"timeLeft"`
}

// questionView is what players see: everything but the correct answer.
type questionView struct {
	ID            string              `json:"id"`
	Text          string              `json:"text"`
	Type          domain.QuestionType `json:"type"`
	Options       []string            `json:"options"`
	QuestionIndex int                 `json:"questionIndex"`
	TimeLimit     int                 `json:"timeLimit"`
}

func viewOf(q domain.Question) questionView {
	return questionView{
		ID:            q.ID,
		Text:          q.Text,
		Type:          q.Type,
		Options:       q.Options,
		QuestionIndex: q.OrderIndex,
		TimeLimit:     q.TimeLimit,
	}
}

// ServePlayerWS upgrades a player connection: join (or rejoin), subscribe,
// reconcile, then relay question broadcasts and answer submissions until the
// socket closes. Disconnecting flips liveness but keeps the player's score.
func (h *Handler) ServePlayerWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	name := r.URL.Query().Get("name")
	userID := r.URL.Query().Get("userId")
	if code == "" || name == "" {
		http.Error(w, "missing code or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	player, err := h.players.Join(ctx, code, userID, name)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: joinErrorMessage(err)}})
		return
	}
	h.saveSession(ctx, code, userID, player)

	// Subscribe before the reconcile read so no update can fall in the gap.
	sub := h.broker.Subscribe(player.RoomID)
	defer sub.Close()
	defer func() {
		if err := h.players.Disconnect(context.Background(), player.RoomID, player.ID); err != nil {
			h.log.Warnw("disconnect failed", "player", player.ID, "err", err)
		}
	}()

	snap, err := h.players.Snapshot(ctx, player.RoomID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "room state unavailable"}})
		return
	}

	send := make(chan outboundMessage[any], 16)
	autoResults := make(chan domain.AnswerResult, 4)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	timer := &app.QuestionTimer{}
	defer timer.Stop()

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debugw("ws write error", "player", player.ID, "err", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				h.handlePlayerEvent(player, ev, send, closeSignals, autoResults, timer)
			case res := <-autoResults:
				select {
				case send <- outboundMessage[any]{Type: "timeUp", Payload: res}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "joined", Payload: player}
	send <- outboundMessage[any]{Type: "stateSync", Payload: snap}
	if snap.CurrentQuestion != nil && snap.Room.Status == domain.RoomActive {
		h.pushQuestion(player, snap.CurrentQuestion, send, closeSignals, autoResults, timer)
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
				continue
			}
			result, err := h.players.SubmitAnswer(context.Background(), player.RoomID, player.ID, payload.QuestionID, payload.SelectedIndex, payload.TimeLeft)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "answer not accepted"}}
				continue
			}
			// Duplicates acknowledge silently with the original verdict.
			send <- outboundMessage[any]{Type: "answerResult", Payload: result}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// handlePlayerEvent performs the reconciling read for one notification and
// forwards the confirmed state.
func (h *Handler) handlePlayerEvent(player domain.Player, ev broadcast.Event, send chan outboundMessage[any], closeSignals chan struct{}, autoResults chan domain.AnswerResult, timer *app.QuestionTimer) {
	ctx := context.Background()
	switch ev.Kind {
	case broadcast.KindQuestion:
		snap, err := h.players.Snapshot(ctx, player.RoomID)
		if err != nil || snap.CurrentQuestion == nil {
			return
		}
		h.pushQuestion(player, snap.CurrentQuestion, send, closeSignals, autoResults, timer)
	case broadcast.KindRoom:
		snap, err := h.players.Snapshot(ctx, player.RoomID)
		if err != nil {
			return
		}
		if snap.Room.Status == domain.RoomFinished {
			timer.Stop()
		}
		select {
		case send <- outboundMessage[any]{Type: "room", Payload: snap.Room}:
		case <-closeSignals:
		}
	case broadcast.KindPlayers:
		lb, err := h.players.Leaderboard(ctx, player.RoomID)
		if err != nil {
			return
		}
		select {
		case send <- outboundMessage[any]{Type: "leaderboard", Payload: lb}:
		case <-closeSignals:
		}
	}
}

// pushQuestion sends the live question and re-arms the auto-submit timer.
// Arming replaces any countdown from the previous question.
func (h *Handler) pushQuestion(player domain.Player, ptr *domain.CurrentQuestion, send chan outboundMessage[any], closeSignals chan struct{}, autoResults chan domain.AnswerResult, timer *app.QuestionTimer) {
	question, err := h.questionByID(player.RoomID, ptr.QuestionID)
	if err != nil {
		h.log.Warnw("live question missing", "room", player.RoomID, "question", ptr.QuestionID, "err", err)
		return
	}

	select {
	case send <- outboundMessage[any]{Type: "question", Payload: viewOf(question)}:
	case <-closeSignals:
		return
	}

	deadline := time.Duration(question.TimeLimit)*time.Second + autoSubmitGrace
	timer.Arm(question.ID, deadline, func(questionID string) {
		result, err := h.players.SubmitAnswer(context.Background(), player.RoomID, player.ID, questionID, domain.NoAnswer, 0)
		if err != nil || result.Duplicate {
			return
		}
		select {
		case autoResults <- result:
		default:
		}
	})
}

func (h *Handler) questionByID(roomID, questionID string) (domain.Question, error) {
	questions, err := h.players.Questions(context.Background(), roomID)
	if err != nil {
		return domain.Question{}, err
	}
	for _, q := range questions {
		if q.ID == questionID {
			return q, nil
		}
	}
	return domain.Question{}, domain.ErrQuestionNotFound
}

func (h *Handler) saveSession(ctx context.Context, code, userID string, player domain.Player) {
	if h.sessions == nil {
		return
	}
	sess := domain.PlayerSession{
		RoomCode:   domain.NormalizeCode(code),
		PlayerID:   player.ID,
		PlayerName: player.Name,
		Timestamp:  time.Now(),
	}
	if err := h.sessions.Save(ctx, h.identity(userID, player.Name), sess); err != nil {
		h.log.Debugw("session save failed", "player", player.ID, "err", err)
	}
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return "room not found"
	case errors.Is(err, domain.ErrRoomClosed):
		return "room is closed"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid display name"
	default:
		return "join failed"
	}
}
