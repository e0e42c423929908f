package domain

import "errors"

var (
	// ErrRoomNotFound is returned when a join code or room id does not resolve.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomClosed is returned when joining a room that has already finished.
	ErrRoomClosed = errors.New("room is closed")
	// ErrInvalidState is returned on an illegal lifecycle transition, such as
	// starting a quiz twice or with zero questions.
	ErrInvalidState = errors.New("invalid room state")
	// ErrDuplicateAnswer indicates a second submission for the same question.
	// It never reaches players; the service resolves it to a no-op.
	ErrDuplicateAnswer = errors.New("answer already submitted")
	// ErrPlayerNotFound is returned when a player id does not resolve in a room.
	ErrPlayerNotFound = errors.New("player not found in room")
	// ErrPlayerExists indicates an insert lost the race for a (room, identity
	// key) slot; the caller resolves it by loading the winning row.
	ErrPlayerExists = errors.New("player already in room")
	// ErrQuestionNotFound indicates a question id or index is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrStoreUnavailable wraps transient backend failures.
	ErrStoreUnavailable = errors.New("session store unavailable")
)
