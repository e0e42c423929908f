package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// Store is the in-memory implementation of app.Store. A single mutex guards
// all maps; every transition the interface calls atomic happens under it, so
// the room row and pointer row always move together.
type Store struct {
	mu       sync.RWMutex
	rooms    map[string]domain.Room
	byCode   map[string][]string // code -> room ids, newest last
	quests   map[string][]domain.Question
	players  map[string]map[string]domain.Player // roomID -> playerID -> player
	byKey    map[string]map[string]string        // roomID -> identity key -> playerID
	answers  map[string]domain.Answer            // playerID/questionID
	pointers map[string]domain.CurrentQuestion
}

func NewStore() *Store {
	return &Store{
		rooms:    make(map[string]domain.Room),
		byCode:   make(map[string][]string),
		quests:   make(map[string][]domain.Question),
		players:  make(map[string]map[string]domain.Player),
		byKey:    make(map[string]map[string]string),
		answers:  make(map[string]domain.Answer),
		pointers: make(map[string]domain.CurrentQuestion),
	}
}

var _ app.Store = (*Store)(nil)

func (s *Store) CreateRoom(_ context.Context, room domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[room.ID] = room
	s.byCode[room.Code] = append(s.byCode[room.Code], room.ID)
	return nil
}

func (s *Store) GetRoom(_ context.Context, roomID string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return room, nil
}

func (s *Store) GetRoomByCode(_ context.Context, code string) (domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byCode[code]
	if len(ids) == 0 {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	// Prefer the newest non-finished holder of the code.
	for i := len(ids) - 1; i >= 0; i-- {
		if room := s.rooms[ids[i]]; room.Status != domain.RoomFinished {
			return room, nil
		}
	}
	return s.rooms[ids[len(ids)-1]], nil
}

func (s *Store) ActivateRoom(_ context.Context, roomID string, ptr domain.CurrentQuestion) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if room.Status != domain.RoomWaiting {
		return domain.Room{}, fmt.Errorf("activate %s room: %w", room.Status, domain.ErrInvalidState)
	}
	room.Status = domain.RoomActive
	room.CurrentQuestionIndex = 0
	s.rooms[roomID] = room
	s.pointers[roomID] = ptr
	return room, nil
}

func (s *Store) AdvanceRoom(_ context.Context, roomID string, fromIndex int, ptr domain.CurrentQuestion) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if room.Status != domain.RoomActive || room.CurrentQuestionIndex != fromIndex {
		return domain.Room{}, fmt.Errorf("advance from index %d: %w", fromIndex, domain.ErrInvalidState)
	}
	room.CurrentQuestionIndex = fromIndex + 1
	s.rooms[roomID] = room
	s.pointers[roomID] = ptr
	return room, nil
}

func (s *Store) FinishRoom(_ context.Context, roomID string) (domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if room.Status != domain.RoomActive {
		return domain.Room{}, fmt.Errorf("finish %s room: %w", room.Status, domain.ErrInvalidState)
	}
	room.Status = domain.RoomFinished
	s.rooms[roomID] = room
	return room, nil
}

func (s *Store) CreateQuestion(_ context.Context, q domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quests[q.RoomID] = append(s.quests[q.RoomID], q)
	return nil
}

func (s *Store) ListQuestions(_ context.Context, roomID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	questions := make([]domain.Question, len(s.quests[roomID]))
	copy(questions, s.quests[roomID])
	sort.Slice(questions, func(i, j int) bool {
		return questions[i].OrderIndex < questions[j].OrderIndex
	})
	return questions, nil
}

func (s *Store) CreatePlayer(_ context.Context, p domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.players[p.RoomID] == nil {
		s.players[p.RoomID] = make(map[string]domain.Player)
		s.byKey[p.RoomID] = make(map[string]string)
	}
	if _, taken := s.byKey[p.RoomID][p.Key]; taken {
		return domain.ErrPlayerExists
	}
	s.players[p.RoomID][p.ID] = p
	s.byKey[p.RoomID][p.Key] = p.ID
	return nil
}

func (s *Store) GetPlayer(_ context.Context, roomID, playerID string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[roomID][playerID]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return p, nil
}

func (s *Store) GetPlayerByKey(_ context.Context, roomID, key string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byKey[roomID][key]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return s.players[roomID][id], nil
}

func (s *Store) SetPlayerConnected(_ context.Context, roomID, playerID string, connected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[roomID][playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	p.IsConnected = connected
	s.players[roomID][playerID] = p
	return nil
}

func (s *Store) IncrementScore(_ context.Context, roomID, playerID string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[roomID][playerID]
	if !ok {
		return 0, domain.ErrPlayerNotFound
	}
	p.Score += delta
	s.players[roomID][playerID] = p
	return p.Score, nil
}

func (s *Store) ListPlayers(_ context.Context, roomID string) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	players := make([]domain.Player, 0, len(s.players[roomID]))
	for _, p := range s.players[roomID] {
		players = append(players, p)
	}
	return players, nil
}

func (s *Store) CreateAnswer(_ context.Context, a domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := answerKey(a.PlayerID, a.QuestionID)
	if _, ok := s.answers[key]; ok {
		return domain.ErrDuplicateAnswer
	}
	s.answers[key] = a
	return nil
}

func (s *Store) GetAnswer(_ context.Context, playerID, questionID string) (domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.answers[answerKey(playerID, questionID)]
	if !ok {
		return domain.Answer{}, domain.ErrQuestionNotFound
	}
	return a, nil
}

func (s *Store) GetCurrentQuestion(_ context.Context, roomID string) (domain.CurrentQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ptr, ok := s.pointers[roomID]
	if !ok {
		return domain.CurrentQuestion{}, domain.ErrQuestionNotFound
	}
	return ptr, nil
}

func answerKey(playerID, questionID string) string {
	return playerID + "/" + questionID
}
