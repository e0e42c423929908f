package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizroom-service/internal/app"
	"quizroom-service/internal/domain"
)

// Store is the pgx-backed implementation of app.Store. Lifecycle transitions
// run in a transaction so the room row and the current_question pointer row
// always move as one unit; score updates and answer inserts rely on
// conditional SQL, never read-modify-write in application code.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ app.Store = (*Store)(nil)

const roomColumns = `id, code, host_id, status, current_question_index, created_at`

func (s *Store) CreateRoom(ctx context.Context, room domain.Room) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rooms (id, code, host_id, status, current_question_index, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		room.ID, room.Code, room.HostID, room.Status, room.CurrentQuestionIndex, room.CreatedAt)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (domain.Room, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id=$1`, roomID)
	return scanRoom(row)
}

func (s *Store) GetRoomByCode(ctx context.Context, code string) (domain.Room, error) {
	// A finished room releases its code; prefer the newest live holder.
	row := s.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE code=$1
		 ORDER BY (status='finished') ASC, created_at DESC LIMIT 1`, code)
	return scanRoom(row)
}

func (s *Store) ActivateRoom(ctx context.Context, roomID string, ptr domain.CurrentQuestion) (domain.Room, error) {
	return s.transition(ctx, roomID, &ptr,
		`UPDATE rooms SET status='active', current_question_index=0
		 WHERE id=$1 AND status='waiting' RETURNING `+roomColumns)
}

func (s *Store) AdvanceRoom(ctx context.Context, roomID string, fromIndex int, ptr domain.CurrentQuestion) (domain.Room, error) {
	return s.transition(ctx, roomID, &ptr,
		`UPDATE rooms SET current_question_index=$2+1
		 WHERE id=$1 AND status='active' AND current_question_index=$2
		 RETURNING `+roomColumns, fromIndex)
}

func (s *Store) FinishRoom(ctx context.Context, roomID string) (domain.Room, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE rooms SET status='finished' WHERE id=$1 AND status='active' RETURNING `+roomColumns, roomID)
	room, err := scanRoom(row)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return domain.Room{}, s.explainMissedUpdate(ctx, roomID)
	}
	return room, err
}

// transition runs a conditional room update plus pointer upsert atomically.
func (s *Store) transition(ctx context.Context, roomID string, ptr *domain.CurrentQuestion, query string, args ...interface{}) (domain.Room, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Room{}, fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, query, append([]interface{}{roomID}, args...)...)
	room, err := scanRoom(row)
	if errors.Is(err, domain.ErrRoomNotFound) {
		return domain.Room{}, s.explainMissedUpdate(ctx, roomID)
	}
	if err != nil {
		return domain.Room{}, err
	}

	if ptr != nil {
		if err := upsertPointer(ctx, tx, *ptr); err != nil {
			return domain.Room{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Room{}, fmt.Errorf("commit transition: %w", err)
	}
	return room, nil
}

// explainMissedUpdate distinguishes a missing room from a lost state race.
func (s *Store) explainMissedUpdate(ctx context.Context, roomID string) error {
	if _, err := s.GetRoom(ctx, roomID); err != nil {
		return err
	}
	return domain.ErrInvalidState
}

func upsertPointer(ctx context.Context, tx pgx.Tx, ptr domain.CurrentQuestion) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO current_question (room_id, question_id, question_index, time_limit, started_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (room_id) DO UPDATE SET
		   question_id=EXCLUDED.question_id,
		   question_index=EXCLUDED.question_index,
		   time_limit=EXCLUDED.time_limit,
		   started_at=EXCLUDED.started_at`,
		ptr.RoomID, ptr.QuestionID, ptr.QuestionIndex, ptr.TimeLimit, ptr.StartedAt)
	if err != nil {
		return fmt.Errorf("upsert pointer: %w", err)
	}
	return nil
}

func (s *Store) CreateQuestion(ctx context.Context, q domain.Question) error {
	options, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO questions (id, room_id, text, type, options, correct_answer, order_index, time_limit)
		 VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8)`,
		q.ID, q.RoomID, q.Text, q.Type, string(options), q.CorrectAnswer, q.OrderIndex, q.TimeLimit)
	if err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return nil
}

func (s *Store) ListQuestions(ctx context.Context, roomID string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, room_id, text, type, options, correct_answer, order_index, time_limit
		 FROM questions WHERE room_id=$1 ORDER BY order_index`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var q domain.Question
		var options []byte
		if err := rows.Scan(&q.ID, &q.RoomID, &q.Text, &q.Type, &options, &q.CorrectAnswer, &q.OrderIndex, &q.TimeLimit); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *Store) CreatePlayer(ctx context.Context, p domain.Player) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO players (id, room_id, name, identity_key, score, is_connected, joined_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.RoomID, p.Name, p.Key, p.Score, p.IsConnected, p.JoinedAt)
	if isUniqueViolation(err) {
		return domain.ErrPlayerExists
	}
	if err != nil {
		return fmt.Errorf("create player: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const playerColumns = `id, room_id, name, identity_key, score, is_connected, joined_at`

func (s *Store) GetPlayer(ctx context.Context, roomID, playerID string) (domain.Player, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM players WHERE room_id=$1 AND id=$2`, roomID, playerID)
	return scanPlayer(row)
}

func (s *Store) GetPlayerByKey(ctx context.Context, roomID, key string) (domain.Player, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM players WHERE room_id=$1 AND identity_key=$2`, roomID, key)
	return scanPlayer(row)
}

func (s *Store) SetPlayerConnected(ctx context.Context, roomID, playerID string, connected bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE players SET is_connected=$3 WHERE room_id=$1 AND id=$2`, roomID, playerID, connected)
	if err != nil {
		return fmt.Errorf("set connected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPlayerNotFound
	}
	return nil
}

func (s *Store) IncrementScore(ctx context.Context, roomID, playerID string, delta int) (int, error) {
	var score int
	err := s.pool.QueryRow(ctx,
		`UPDATE players SET score = score + $3 WHERE room_id=$1 AND id=$2 RETURNING score`,
		roomID, playerID, delta).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrPlayerNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment score: %w", err)
	}
	return score, nil
}

func (s *Store) ListPlayers(ctx context.Context, roomID string) ([]domain.Player, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+playerColumns+` FROM players WHERE room_id=$1`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []domain.Player
	for rows.Next() {
		var p domain.Player
		if err := rows.Scan(&p.ID, &p.RoomID, &p.Name, &p.Key, &p.Score, &p.IsConnected, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (s *Store) CreateAnswer(ctx context.Context, a domain.Answer) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO answers (player_id, question_id, selected_index, is_correct, time_taken, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (player_id, question_id) DO NOTHING`,
		a.PlayerID, a.QuestionID, a.SelectedIndex, a.IsCorrect, a.TimeTaken, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateAnswer
	}
	return nil
}

func (s *Store) GetAnswer(ctx context.Context, playerID, questionID string) (domain.Answer, error) {
	var a domain.Answer
	err := s.pool.QueryRow(ctx,
		`SELECT player_id, question_id, selected_index, is_correct, time_taken, created_at
		 FROM answers WHERE player_id=$1 AND question_id=$2`, playerID, questionID).
		Scan(&a.PlayerID, &a.QuestionID, &a.SelectedIndex, &a.IsCorrect, &a.TimeTaken, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Answer{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Answer{}, fmt.Errorf("get answer: %w", err)
	}
	return a, nil
}

func (s *Store) GetCurrentQuestion(ctx context.Context, roomID string) (domain.CurrentQuestion, error) {
	var ptr domain.CurrentQuestion
	err := s.pool.QueryRow(ctx,
		`SELECT room_id, question_id, question_index, time_limit, started_at
		 FROM current_question WHERE room_id=$1`, roomID).
		Scan(&ptr.RoomID, &ptr.QuestionID, &ptr.QuestionIndex, &ptr.TimeLimit, &ptr.StartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CurrentQuestion{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.CurrentQuestion{}, fmt.Errorf("get current question: %w", err)
	}
	return ptr, nil
}

func scanRoom(row pgx.Row) (domain.Room, error) {
	var room domain.Room
	err := row.Scan(&room.ID, &room.Code, &room.HostID, &room.Status, &room.CurrentQuestionIndex, &room.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	if err != nil {
		return domain.Room{}, fmt.Errorf("scan room: %w", err)
	}
	return room, nil
}

func scanPlayer(row pgx.Row) (domain.Player, error) {
	var p domain.Player
	err := row.Scan(&p.ID, &p.RoomID, &p.Name, &p.Key, &p.Score, &p.IsConnected, &p.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("scan player: %w", err)
	}
	return p, nil
}
