package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"quizroom-service/internal/broadcast"
	"quizroom-service/internal/domain"
)

// IdentityKey derives the per-room uniqueness key for a player. Deployments
// with auth use UserKey; anonymous rooms rejoin by name.
type IdentityKey func(userID, name string) string

// NameKey identifies players by display name, case-insensitively.
func NameKey(_, name string) string {
	return "name:" + strings.ToLower(strings.TrimSpace(name))
}

// UserKey identifies players by authenticated user id, falling back to the
// name for anonymous connections.
func UserKey(userID, name string) string {
	if userID != "" {
		return "user:" + userID
	}
	return NameKey(userID, name)
}

// PlayerService manages join/rejoin, answer gating, and scoring for players.
type PlayerService struct {
	store     Store
	questions QuestionSource
	pub       broadcast.Publisher
	identity  IdentityKey
	maxPoints int
	now       func() time.Time
}

func NewPlayerService(store Store, questions QuestionSource, pub broadcast.Publisher, identity IdentityKey, maxPoints int) *PlayerService {
	if identity == nil {
		identity = NameKey
	}
	if maxPoints <= 0 {
		maxPoints = 1000
	}
	return &PlayerService{
		store:     store,
		questions: questions,
		pub:       pub,
		identity:  identity,
		maxPoints: maxPoints,
		now:       time.Now,
	}
}

// Join adds a player to the room resolved by code, or reactivates an
// existing one with the same identity key. Joining mid-quiz is allowed; late
// joiners pick up the current question from their first snapshot.
func (s *PlayerService) Join(ctx context.Context, code, userID, name string) (domain.Player, error) {
	room, err := s.store.GetRoomByCode(ctx, domain.NormalizeCode(code))
	if err != nil {
		return domain.Player{}, err
	}
	if room.Status == domain.RoomFinished {
		return domain.Player{}, fmt.Errorf("room %s: %w", room.Code, domain.ErrRoomClosed)
	}

	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n < 1 || n > 20 {
		return domain.Player{}, fmt.Errorf("display name must be 1-20 characters: %w", domain.ErrInvalidState)
	}

	key := s.identity(userID, name)
	existing, err := s.store.GetPlayerByKey(ctx, room.ID, key)
	switch {
	case err == nil:
		return s.reactivate(ctx, room.ID, existing)
	case !errors.Is(err, domain.ErrPlayerNotFound):
		return domain.Player{}, err
	}

	player := domain.Player{
		ID:          newID(),
		RoomID:      room.ID,
		Name:        name,
		Key:         key,
		Score:       0,
		IsConnected: true,
		JoinedAt:    s.now(),
	}
	if err := s.store.CreatePlayer(ctx, player); err != nil {
		// Two first joins with the same identity raced; adopt the row that won.
		if errors.Is(err, domain.ErrPlayerExists) {
			winner, lookupErr := s.store.GetPlayerByKey(ctx, room.ID, key)
			if lookupErr != nil {
				return domain.Player{}, lookupErr
			}
			return s.reactivate(ctx, room.ID, winner)
		}
		return domain.Player{}, err
	}
	s.pub.Publish(broadcast.Event{Kind: broadcast.KindPlayers, RoomID: room.ID})
	return player, nil
}

func (s *PlayerService) reactivate(ctx context.Context, roomID string, player domain.Player) (domain.Player, error) {
	if err := s.store.SetPlayerConnected(ctx, roomID, player.ID, true); err != nil {
		return domain.Player{}, err
	}
	player.IsConnected = true
	s.pub.Publish(broadcast.Event{Kind: broadcast.KindPlayers, RoomID: roomID})
	return player, nil
}

// Disconnect flips the liveness flag. The player row and score survive so
// the same identity can rejoin.
func (s *PlayerService) Disconnect(ctx context.Context, roomID, playerID string) error {
	if err := s.store.SetPlayerConnected(ctx, roomID, playerID, false); err != nil {
		return err
	}
	s.pub.Publish(broadcast.Event{Kind: broadcast.KindPlayers, RoomID: roomID})
	return nil
}

// SubmitAnswer records exactly one scored answer per player per question. A
// repeat submission is resolved to a no-op carrying the original verdict;
// the caller never sees an error for it.
func (s *PlayerService) SubmitAnswer(ctx context.Context, roomID, playerID, questionID string, selectedIndex, timeLeft int) (domain.AnswerResult, error) {
	player, err := s.store.GetPlayer(ctx, roomID, playerID)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	question, err := s.questionByID(ctx, roomID, questionID)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	correct := selectedIndex != domain.NoAnswer && selectedIndex == question.CorrectAnswer
	timeTaken := question.TimeLimit - timeLeft
	if timeTaken < 0 {
		timeTaken = 0
	} else if timeTaken > question.TimeLimit {
		timeTaken = question.TimeLimit
	}

	answer := domain.Answer{
		PlayerID:      playerID,
		QuestionID:    questionID,
		SelectedIndex: selectedIndex,
		IsCorrect:     correct,
		TimeTaken:     timeTaken,
		CreatedAt:     s.now(),
	}
	if err := s.store.CreateAnswer(ctx, answer); err != nil {
		if errors.Is(err, domain.ErrDuplicateAnswer) {
			return s.previousResult(ctx, player, questionID)
		}
		return domain.AnswerResult{}, err
	}

	total := player.Score
	awarded := 0
	if correct {
		awarded = domain.ComputePoints(timeLeft, question.TimeLimit, s.maxPoints)
		if awarded > 0 {
			total, err = s.store.IncrementScore(ctx, roomID, playerID, awarded)
			if err != nil {
				return domain.AnswerResult{}, err
			}
		}
	}

	s.pub.Publish(broadcast.Event{Kind: broadcast.KindPlayers, RoomID: roomID})
	return domain.AnswerResult{
		QuestionID: questionID,
		Correct:    correct,
		Awarded:    awarded,
		TotalScore: total,
	}, nil
}

// previousResult reconstructs the outcome of the first submission so a
// duplicate is indistinguishable from a replayed acknowledgement.
func (s *PlayerService) previousResult(ctx context.Context, player domain.Player, questionID string) (domain.AnswerResult, error) {
	prior, err := s.store.GetAnswer(ctx, player.ID, questionID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	current, err := s.store.GetPlayer(ctx, player.RoomID, player.ID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	return domain.AnswerResult{
		QuestionID: questionID,
		Correct:    prior.IsCorrect,
		Awarded:    0,
		TotalScore: current.Score,
		Duplicate:  true,
	}, nil
}

// Snapshot performs the reconcile read for a subscriber that attaches or
// resumes: confirmed room state, the live pointer if any, and the current
// leaderboard.
func (s *PlayerService) Snapshot(ctx context.Context, roomID string) (domain.RoomSnapshot, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}

	snap := domain.RoomSnapshot{Room: room}

	ptr, err := s.store.GetCurrentQuestion(ctx, roomID)
	switch {
	case err == nil:
		snap.CurrentQuestion = &ptr
	case !errors.Is(err, domain.ErrQuestionNotFound):
		return domain.RoomSnapshot{}, err
	}

	questions, err := s.questions.Questions(ctx, roomID)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	snap.QuestionCount = len(questions)

	lb, err := s.Leaderboard(ctx, roomID)
	if err != nil {
		return domain.RoomSnapshot{}, err
	}
	snap.Leaderboard = lb
	return snap, nil
}

// Leaderboard returns players ordered by score descending, name ascending on
// ties. Disconnected players keep their place.
func (s *PlayerService) Leaderboard(ctx context.Context, roomID string) (domain.Leaderboard, error) {
	players, err := s.store.ListPlayers(ctx, roomID)
	if err != nil {
		return domain.Leaderboard{}, err
	}

	entries := make([]domain.LeaderboardEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Score,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Name < entries[j].Name
	})

	return domain.Leaderboard{
		RoomID:    roomID,
		Entries:   entries,
		UpdatedAt: s.now(),
	}, nil
}

// Questions serves the full ordered question list through the caching source.
func (s *PlayerService) Questions(ctx context.Context, roomID string) ([]domain.Question, error) {
	return s.questions.Questions(ctx, roomID)
}

func (s *PlayerService) questionByID(ctx context.Context, roomID, questionID string) (domain.Question, error) {
	questions, err := s.questions.Questions(ctx, roomID)
	if err != nil {
		return domain.Question{}, err
	}
	for _, q := range questions {
		if q.ID == questionID {
			return q, nil
		}
	}
	return domain.Question{}, fmt.Errorf("question %s in room %s: %w", questionID, roomID, domain.ErrQuestionNotFound)
}
