package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"quizroom-service/internal/broadcast"
	"quizroom-service/internal/domain"
)

type createRoomPayload struct {
	HostID string `json:"hostId"`
}

type addQuestionPayload struct {
	Text          string              `json:"text"`
	Type          domain.QuestionType `json:"type"`
	Options       []string            `json:"options"`
	CorrectAnswer int                 `json:"correctAnswer"`
	TimeLimit     int                 `json:"timeLimit"`
}

// ServeHostWS drives a room's lifecycle over one connection: create (or
// reattach by code), author questions while waiting, then start and advance.
// Failed transitions surface as error messages and never move local state;
// the host view only reflects confirmed store state.
func (h *Handler) ServeHostWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("host ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	var room domain.Room
	attached := false

	if code := r.URL.Query().Get("code"); code != "" {
		room, err = h.rooms.RoomByCode(ctx, code)
		if err != nil {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: joinErrorMessage(err)}})
			return
		}
		attached = true
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})
	var sub *broadcast.Subscription

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debugw("host ws write error", "err", err)
				return
			}
		}
	}()

	attach := func(roomID string) {
		sub = h.broker.Subscribe(roomID)
		go func() {
			defer close(updatesDone)
			for {
				select {
				case ev, ok := <-sub.Events():
					if !ok {
						return
					}
					h.handleHostEvent(roomID, ev, send, closeSignals)
				case <-closeSignals:
					return
				}
			}
		}()
	}

	if attached {
		attach(room.ID)
		snap, err := h.players.Snapshot(ctx, room.ID)
		if err == nil {
			send <- outboundMessage[any]{Type: "stateSync", Payload: snap}
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "createRoom":
			if attached {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "room already attached"}}
				continue
			}
			var payload createRoomPayload
			_ = json.Unmarshal(inbound.Payload, &payload)
			created, err := h.rooms.CreateRoom(context.Background(), payload.HostID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: hostErrorMessage(err)}}
				continue
			}
			room = created
			attached = true
			if h.sessions != nil {
				h.sessions.MarkRoomLive(context.Background(), room.ID)
			}
			attach(room.ID)
			send <- outboundMessage[any]{Type: "roomCreated", Payload: room}

		case "addQuestion":
			if !attached {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "no room attached"}}
				continue
			}
			var payload addQuestionPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid question payload"}}
				continue
			}
			q, err := h.rooms.AddQuestion(context.Background(), room.ID, payload.Text, payload.Type, payload.Options, payload.CorrectAnswer, payload.TimeLimit)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: hostErrorMessage(err)}}
				continue
			}
			send <- outboundMessage[any]{Type: "questionAdded", Payload: q}

		case "startQuiz":
			if !attached {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "no room attached"}}
				continue
			}
			updated, err := h.rooms.StartQuiz(context.Background(), room.ID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: hostErrorMessage(err)}}
				continue
			}
			room = updated
			send <- outboundMessage[any]{Type: "room", Payload: room}

		case "advanceQuestion":
			if !attached {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "no room attached"}}
				continue
			}
			updated, err := h.rooms.AdvanceQuestion(context.Background(), room.ID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: hostErrorMessage(err)}}
				continue
			}
			room = updated
			send <- outboundMessage[any]{Type: "room", Payload: room}

		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	if sub != nil {
		sub.Close()
		<-updatesDone
	}
	close(send)
	<-writerDone
}

func (h *Handler) handleHostEvent(roomID string, ev broadcast.Event, send chan outboundMessage[any], closeSignals chan struct{}) {
	ctx := context.Background()
	switch ev.Kind {
	case broadcast.KindPlayers:
		lb, err := h.players.Leaderboard(ctx, roomID)
		if err != nil {
			return
		}
		select {
		case send <- outboundMessage[any]{Type: "leaderboard", Payload: lb}:
		case <-closeSignals:
		}
	case broadcast.KindQuestion, broadcast.KindRoom:
		snap, err := h.players.Snapshot(ctx, roomID)
		if err != nil {
			return
		}
		select {
		case send <- outboundMessage[any]{Type: "stateSync", Payload: snap}:
		case <-closeSignals:
		}
	}
}

func hostErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidState):
		return err.Error()
	case errors.Is(err, domain.ErrRoomNotFound):
		return "room not found"
	default:
		return "operation failed"
	}
}
