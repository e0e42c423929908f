package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quizroom-service/internal/domain"
)

func seedRoom(t *testing.T, s *Store, code string, status domain.RoomStatus) domain.Room {
	t.Helper()
	room := domain.Room{
		ID:        "room-" + code,
		Code:      code,
		Status:    status,
		CreatedAt: time.Now(),
	}
	if err := s.CreateRoom(context.Background(), room); err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room
}

func TestGetRoomByCodePrefersLiveHolder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	old := domain.Room{ID: "room-old", Code: "ABC123", Status: domain.RoomFinished}
	fresh := domain.Room{ID: "room-fresh", Code: "ABC123", Status: domain.RoomWaiting}
	if err := s.CreateRoom(ctx, old); err != nil {
		t.Fatalf("create room: %v", err)
	}
	if err := s.CreateRoom(ctx, fresh); err != nil {
		t.Fatalf("create room: %v", err)
	}

	got, err := s.GetRoomByCode(ctx, "ABC123")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != fresh.ID {
		t.Fatalf("expected the live holder, got %s", got.ID)
	}
}

func TestGetRoomByCodeFallsBackToFinished(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	room := seedRoom(t, s, "DEAD00", domain.RoomFinished)

	got, err := s.GetRoomByCode(ctx, "DEAD00")
	if err != nil || got.ID != room.ID {
		t.Fatalf("expected finished holder as fallback, got %+v err=%v", got, err)
	}
}

func TestActivateRoomSetsPointerAtomically(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	room := seedRoom(t, s, "AAAAAA", domain.RoomWaiting)

	ptr := domain.CurrentQuestion{RoomID: room.ID, QuestionID: "q0", QuestionIndex: 0, TimeLimit: 30}
	activated, err := s.ActivateRoom(ctx, room.ID, ptr)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if activated.Status != domain.RoomActive || activated.CurrentQuestionIndex != 0 {
		t.Fatalf("unexpected room after activate: %+v", activated)
	}

	got, err := s.GetCurrentQuestion(ctx, room.ID)
	if err != nil || got.QuestionID != "q0" {
		t.Fatalf("pointer not written with activation: %+v err=%v", got, err)
	}

	if _, err := s.ActivateRoom(ctx, room.ID, ptr); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state on double activate, got %v", err)
	}
}

func TestAdvanceRoomChecksFromIndex(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	room := seedRoom(t, s, "BBBBBB", domain.RoomWaiting)
	if _, err := s.ActivateRoom(ctx, room.ID, domain.CurrentQuestion{RoomID: room.ID, QuestionID: "q0"}); err != nil {
		t.Fatalf("activate: %v", err)
	}

	next := domain.CurrentQuestion{RoomID: room.ID, QuestionID: "q1", QuestionIndex: 1}
	advanced, err := s.AdvanceRoom(ctx, room.ID, 0, next)
	if err != nil || advanced.CurrentQuestionIndex != 1 {
		t.Fatalf("advance: %+v err=%v", advanced, err)
	}

	// A stale advance from an index the room already left must lose.
	if _, err := s.AdvanceRoom(ctx, room.ID, 0, next); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected stale advance rejected, got %v", err)
	}
}

func TestFinishRoomRequiresActive(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	room := seedRoom(t, s, "CCCCCC", domain.RoomWaiting)

	if _, err := s.FinishRoom(ctx, room.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state for waiting room, got %v", err)
	}

	if _, err := s.ActivateRoom(ctx, room.ID, domain.CurrentQuestion{RoomID: room.ID}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	finished, err := s.FinishRoom(ctx, room.ID)
	if err != nil || finished.Status != domain.RoomFinished {
		t.Fatalf("finish: %+v err=%v", finished, err)
	}
	if _, err := s.FinishRoom(ctx, room.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected invalid state on double finish, got %v", err)
	}
}

func TestListQuestionsSortsByOrderIndex(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for _, idx := range []int{2, 0, 1} {
		if err := s.CreateQuestion(ctx, domain.Question{ID: "q" + string(rune('0'+idx)), RoomID: "r1", OrderIndex: idx}); err != nil {
			t.Fatalf("create question: %v", err)
		}
	}

	questions, err := s.ListQuestions(ctx, "r1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i, q := range questions {
		if q.OrderIndex != i {
			t.Fatalf("question %d has index %d", i, q.OrderIndex)
		}
	}
}

func TestCreateAnswerRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	a := domain.Answer{PlayerID: "p1", QuestionID: "q1", SelectedIndex: 1, IsCorrect: true}

	if err := s.CreateAnswer(ctx, a); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	a.SelectedIndex = 2
	if err := s.CreateAnswer(ctx, a); !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}

	stored, err := s.GetAnswer(ctx, "p1", "q1")
	if err != nil || stored.SelectedIndex != 1 {
		t.Fatalf("original answer overwritten: %+v err=%v", stored, err)
	}
}

func TestIncrementScoreReturnsNewTotal(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p := domain.Player{ID: "p1", RoomID: "r1", Name: "Alice", Key: "name:alice"}
	if err := s.CreatePlayer(ctx, p); err != nil {
		t.Fatalf("create player: %v", err)
	}

	total, err := s.IncrementScore(ctx, "r1", "p1", 666)
	if err != nil || total != 666 {
		t.Fatalf("first increment: total=%d err=%v", total, err)
	}
	total, err = s.IncrementScore(ctx, "r1", "p1", 334)
	if err != nil || total != 1000 {
		t.Fatalf("second increment: total=%d err=%v", total, err)
	}

	if _, err := s.IncrementScore(ctx, "r1", "missing", 1); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player not found, got %v", err)
	}
}

func TestCreatePlayerRejectsTakenIdentityKey(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	if err := s.CreatePlayer(ctx, domain.Player{ID: "p1", RoomID: "r1", Name: "Alice", Key: "name:alice"}); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	err := s.CreatePlayer(ctx, domain.Player{ID: "p2", RoomID: "r1", Name: "alice", Key: "name:alice"})
	if !errors.Is(err, domain.ErrPlayerExists) {
		t.Fatalf("expected identity key conflict, got %v", err)
	}

	players, err := s.ListPlayers(ctx, "r1")
	if err != nil || len(players) != 1 || players[0].ID != "p1" {
		t.Fatalf("losing insert left residue: %+v err=%v", players, err)
	}

	// The same key in another room is a fresh slot.
	if err := s.CreatePlayer(ctx, domain.Player{ID: "p3", RoomID: "r2", Name: "Alice", Key: "name:alice"}); err != nil {
		t.Fatalf("cross-room insert: %v", err)
	}
}

func TestGetPlayerByKey(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p := domain.Player{ID: "p1", RoomID: "r1", Name: "Alice", Key: "name:alice"}
	if err := s.CreatePlayer(ctx, p); err != nil {
		t.Fatalf("create player: %v", err)
	}

	got, err := s.GetPlayerByKey(ctx, "r1", "name:alice")
	if err != nil || got.ID != "p1" {
		t.Fatalf("lookup by key: %+v err=%v", got, err)
	}
	if _, err := s.GetPlayerByKey(ctx, "r1", "name:bob"); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player not found, got %v", err)
	}
}

func TestSetPlayerConnected(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	if err := s.CreatePlayer(ctx, domain.Player{ID: "p1", RoomID: "r1", Key: "k", IsConnected: true}); err != nil {
		t.Fatalf("create player: %v", err)
	}

	if err := s.SetPlayerConnected(ctx, "r1", "p1", false); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	p, _ := s.GetPlayer(ctx, "r1", "p1")
	if p.IsConnected {
		t.Fatalf("expected disconnected")
	}
	if err := s.SetPlayerConnected(ctx, "r1", "ghost", true); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected player not found, got %v", err)
	}
}
