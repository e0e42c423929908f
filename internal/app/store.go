package app

import (
	"context"

	"quizroom-service/internal/domain"
)

// Store abstracts the durable session store (in-memory, Postgres). Beyond
// CRUD it exposes the atomic primitives the room lifecycle depends on:
// conditional status transitions that move the room row and the
// current-question pointer as one unit, lost-update-proof score increments,
// and duplicate-detecting answer inserts.
type Store interface {
	CreateRoom(ctx context.Context, room domain.Room) error
	GetRoom(ctx context.Context, roomID string) (domain.Room, error)
	// GetRoomByCode resolves a normalized join code, preferring a non-finished
	// room when a finished one has released the code for reuse.
	GetRoomByCode(ctx context.Context, code string) (domain.Room, error)
	// ActivateRoom transitions waiting -> active and writes the pointer for
	// question 0 atomically. Returns ErrInvalidState unless the room is waiting.
	ActivateRoom(ctx context.Context, roomID string, ptr domain.CurrentQuestion) (domain.Room, error)
	// AdvanceRoom bumps the question index from fromIndex to fromIndex+1 and
	// upserts the pointer atomically. Returns ErrInvalidState if the room is
	// not active or the index moved underneath the caller.
	AdvanceRoom(ctx context.Context, roomID string, fromIndex int, ptr domain.CurrentQuestion) (domain.Room, error)
	// FinishRoom transitions active -> finished.
	FinishRoom(ctx context.Context, roomID string) (domain.Room, error)

	CreateQuestion(ctx context.Context, q domain.Question) error
	ListQuestions(ctx context.Context, roomID string) ([]domain.Question, error)

	// CreatePlayer inserts a new player, or returns ErrPlayerExists when the
	// (room, identity key) slot is already taken.
	CreatePlayer(ctx context.Context, p domain.Player) error
	GetPlayer(ctx context.Context, roomID, playerID string) (domain.Player, error)
	GetPlayerByKey(ctx context.Context, roomID, key string) (domain.Player, error)
	SetPlayerConnected(ctx context.Context, roomID, playerID string, connected bool) error
	// IncrementScore applies score = score + delta as a conditional update and
	// returns the new total.
	IncrementScore(ctx context.Context, roomID, playerID string, delta int) (int, error)
	ListPlayers(ctx context.Context, roomID string) ([]domain.Player, error)

	// CreateAnswer inserts the audit row, or returns ErrDuplicateAnswer if the
	// (player, question) pair already answered.
	CreateAnswer(ctx context.Context, a domain.Answer) error
	GetAnswer(ctx context.Context, playerID, questionID string) (domain.Answer, error)

	// GetCurrentQuestion reads the pointer row; ErrQuestionNotFound when no
	// question has been broadcast yet.
	GetCurrentQuestion(ctx context.Context, roomID string) (domain.CurrentQuestion, error)
}

// QuestionSource serves the full ordered question list for a room. Player
// reads go through a caching implementation; the room service talks to the
// store directly so authoring is never stale.
type QuestionSource interface {
	Questions(ctx context.Context, roomID string) ([]domain.Question, error)
}

// QuestionInvalidator drops a room's cached question list. The room service
// calls it after authoring so a cache warmed by a lobby joiner never hides
// questions added later.
type QuestionInvalidator interface {
	Invalidate(ctx context.Context, roomID string)
}
