package app

import (
	"context"
	"errors"
	"fmt"
	mrand "math/rand"
	"sync"
	"time"

	"quizroom-service/internal/broadcast"
	"quizroom-service/internal/domain"
)

const maxCodeAttempts = 10

// RoomService is the authority for a room's lifecycle and question
// progression. Every transition is confirmed by the store before an event is
// published; nothing is advanced optimistically.
type RoomService struct {
	store            Store
	pub              broadcast.Publisher
	cache            QuestionInvalidator
	defaultTimeLimit int

	mu  sync.Mutex
	rnd *mrand.Rand
	now func() time.Time
}

// NewRoomService builds the lifecycle authority. cache may be nil when player
// reads go straight to the store.
func NewRoomService(store Store, pub broadcast.Publisher, cache QuestionInvalidator, defaultTimeLimit int) *RoomService {
	if defaultTimeLimit <= 0 {
		defaultTimeLimit = 30
	}
	return &RoomService{
		store:            store,
		pub:              pub,
		cache:            cache,
		defaultTimeLimit: defaultTimeLimit,
		rnd:              mrand.New(mrand.NewSource(time.Now().UnixNano())),
		now:              time.Now,
	}
}

// NewRoomServiceWithClock is test-only for deterministic timestamps.
func NewRoomServiceWithClock(store Store, pub broadcast.Publisher, cache QuestionInvalidator, defaultTimeLimit int, now func() time.Time) *RoomService {
	s := NewRoomService(store, pub, cache, defaultTimeLimit)
	s.now = now
	return s
}

// CreateRoom generates a collision-free join code and persists a waiting
// room. Codes held by a non-finished room are never reissued.
func (s *RoomService) CreateRoom(ctx context.Context, hostID string) (domain.Room, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		s.mu.Lock()
		code := domain.NewJoinCode(s.rnd)
		s.mu.Unlock()

		existing, err := s.store.GetRoomByCode(ctx, code)
		switch {
		case err == nil && existing.Status != domain.RoomFinished:
			continue
		case err != nil && !errors.Is(err, domain.ErrRoomNotFound):
			return domain.Room{}, err
		}

		room := domain.Room{
			ID:        newID(),
			Code:      code,
			HostID:    hostID,
			Status:    domain.RoomWaiting,
			CreatedAt: s.now(),
		}
		if err := s.store.CreateRoom(ctx, room); err != nil {
			return domain.Room{}, err
		}
		return room, nil
	}
	return domain.Room{}, fmt.Errorf("generate join code: %w", domain.ErrStoreUnavailable)
}

// RoomByCode resolves a normalized join code for host reattachment.
func (s *RoomService) RoomByCode(ctx context.Context, code string) (domain.Room, error) {
	return s.store.GetRoomByCode(ctx, domain.NormalizeCode(code))
}

// AddQuestion appends a question while the room is still waiting. Order
// indices are dense and zero-based; insertion is the only writer so the
// uniqueness contract holds.
func (s *RoomService) AddQuestion(ctx context.Context, roomID, text string, qtype domain.QuestionType, options []string, correctAnswer, timeLimit int) (domain.Question, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Question{}, err
	}
	if room.Status != domain.RoomWaiting {
		return domain.Question{}, fmt.Errorf("add question in %s room: %w", room.Status, domain.ErrInvalidState)
	}

	switch qtype {
	case domain.TrueFalse:
		options = domain.TrueFalseOptions
	case domain.MultipleChoice:
		if len(options) != 4 {
			return domain.Question{}, fmt.Errorf("multiple choice needs 4 options, got %d: %w", len(options), domain.ErrInvalidState)
		}
	default:
		return domain.Question{}, fmt.Errorf("unknown question type %q: %w", qtype, domain.ErrInvalidState)
	}
	if correctAnswer < 0 || correctAnswer >= len(options) {
		return domain.Question{}, fmt.Errorf("correct answer %d out of range: %w", correctAnswer, domain.ErrInvalidState)
	}
	if timeLimit <= 0 {
		timeLimit = s.defaultTimeLimit
	}

	existing, err := s.store.ListQuestions(ctx, roomID)
	if err != nil {
		return domain.Question{}, err
	}

	q := domain.Question{
		ID:            newID(),
		RoomID:        roomID,
		Text:          text,
		Type:          qtype,
		Options:       options,
		CorrectAnswer: correctAnswer,
		OrderIndex:    len(existing),
		TimeLimit:     timeLimit,
	}
	if err := s.store.CreateQuestion(ctx, q); err != nil {
		return domain.Question{}, err
	}
	// A lobby joiner may already have warmed the question cache; drop it so
	// the new question is visible before the quiz starts.
	if s.cache != nil {
		s.cache.Invalidate(ctx, roomID)
	}
	return q, nil
}

// StartQuiz transitions waiting -> active and broadcasts question 0. The
// pointer upsert happens inside the store transition, before any event goes
// out, so no subscriber can observe an active room without a live question.
func (s *RoomService) StartQuiz(ctx context.Context, roomID string) (domain.Room, error) {
	questions, err := s.store.ListQuestions(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if len(questions) == 0 {
		return domain.Room{}, fmt.Errorf("start quiz with zero questions: %w", domain.ErrInvalidState)
	}

	ptr := s.pointerFor(questions[0])
	room, err := s.store.ActivateRoom(ctx, roomID, ptr)
	if err != nil {
		return domain.Room{}, err
	}

	s.pub.Publish(broadcast.Event{Kind: broadcast.KindRoom, RoomID: roomID, Room: &room})
	s.pub.Publish(broadcast.Event{Kind: broadcast.KindQuestion, RoomID: roomID, Question: &ptr})
	return room, nil
}

// AdvanceQuestion steps to the next question, or finishes the room when the
// host advances past the last one.
func (s *RoomService) AdvanceQuestion(ctx context.Context, roomID string) (domain.Room, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	if room.Status != domain.RoomActive {
		return domain.Room{}, fmt.Errorf("advance %s room: %w", room.Status, domain.ErrInvalidState)
	}

	questions, err := s.store.ListQuestions(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}

	next := room.CurrentQuestionIndex + 1
	if next >= len(questions) {
		finished, err := s.store.FinishRoom(ctx, roomID)
		if err != nil {
			return domain.Room{}, err
		}
		s.pub.Publish(broadcast.Event{Kind: broadcast.KindRoom, RoomID: roomID, Room: &finished})
		return finished, nil
	}

	ptr := s.pointerFor(questions[next])
	advanced, err := s.store.AdvanceRoom(ctx, roomID, room.CurrentQuestionIndex, ptr)
	if err != nil {
		return domain.Room{}, err
	}

	s.pub.Publish(broadcast.Event{Kind: broadcast.KindRoom, RoomID: roomID, Room: &advanced})
	s.pub.Publish(broadcast.Event{Kind: broadcast.KindQuestion, RoomID: roomID, Question: &ptr})
	return advanced, nil
}

// CurrentQuestion resolves the live question for a room, or nil while none
// has been broadcast.
func (s *RoomService) CurrentQuestion(ctx context.Context, roomID string) (*domain.Question, error) {
	ptr, err := s.store.GetCurrentQuestion(ctx, roomID)
	if errors.Is(err, domain.ErrQuestionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	questions, err := s.store.ListQuestions(ctx, roomID)
	if err != nil {
		return nil, err
	}
	for i := range questions {
		if questions[i].ID == ptr.QuestionID {
			return &questions[i], nil
		}
	}
	return nil, domain.ErrQuestionNotFound
}

func (s *RoomService) pointerFor(q domain.Question) domain.CurrentQuestion {
	return domain.CurrentQuestion{
		RoomID:        q.RoomID,
		QuestionID:    q.ID,
		QuestionIndex: q.OrderIndex,
		TimeLimit:     q.TimeLimit,
		StartedAt:     s.now(),
	}
}
