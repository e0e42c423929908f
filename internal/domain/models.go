package domain

import "time"

// RoomStatus is the lifecycle state of a room. Transitions only move forward:
// waiting -> active -> finished.
type RoomStatus string

const (
	RoomWaiting  RoomStatus = "waiting"
	RoomActive   RoomStatus = "active"
	RoomFinished RoomStatus = "finished"
)

// QuestionType distinguishes the two supported answer layouts.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
)

// TrueFalseOptions is the fixed option set for true/false questions.
var TrueFalseOptions = []string{"True", "False"}

// NoAnswer is the sentinel selected index recorded when the question timer
// expires without a choice.
const NoAnswer = -1

// Room is one quiz session instance, identified by a join code.
type Room struct {
	ID                   string     `json:"id"`
	Code                 string     `json:"code"`
	HostID               string     `json:"hostId,omitempty"`
	Status               RoomStatus `json:"status"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	CreatedAt            time.Time  `json:"createdAt"`
}

// Question belongs to exactly one room and is immutable once the quiz starts.
type Question struct {
	ID            string       `json:"id"`
	RoomID        string       `json:"roomId"`
	Text          string       `json:"text"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options"`
	CorrectAnswer int          `json:"correctAnswer"`
	OrderIndex    int          `json:"orderIndex"`
	TimeLimit     int          `json:"timeLimit"` // seconds
}

// Player is a participant in one room. IsConnected is liveness, not
// existence: a disconnected player's identity and score survive for rejoin.
type Player struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"roomId"`
	Name        string    `json:"name"`
	Key         string    `json:"-"` // identity key, unique per room
	Score       int       `json:"score"`
	IsConnected bool      `json:"isConnected"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// CurrentQuestion is the single broadcast pointer row per room, written once
// per question transition and read-only to players. QuestionIndex always
// equals Room.CurrentQuestionIndex at the moment of write.
type CurrentQuestion struct {
	RoomID        string    `json:"roomId"`
	QuestionID    string    `json:"questionId"`
	QuestionIndex int       `json:"questionIndex"`
	TimeLimit     int       `json:"timeLimit"`
	StartedAt     time.Time `json:"startedAt"`
}

// Answer is an immutable audit record of one submission. At most one row
// exists per (player, question).
type Answer struct {
	PlayerID      string    `json:"playerId"`
	QuestionID    string    `json:"questionId"`
	SelectedIndex int       `json:"selectedIndex"` // NoAnswer when the timer expired
	IsCorrect     bool      `json:"isCorrect"`
	TimeTaken     int       `json:"timeTaken"` // seconds
	CreatedAt     time.Time `json:"createdAt"`
}

// AnswerResult summarizes the outcome of a submission for a single player.
type AnswerResult struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	Awarded    int    `json:"awarded"`
	TotalScore int    `json:"totalScore"`
	Duplicate  bool   `json:"-"`
}

// LeaderboardEntry is a snapshot-friendly view of a player.
type LeaderboardEntry struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

// Leaderboard captures the ordered scoreboard for a room.
type Leaderboard struct {
	RoomID    string             `json:"roomId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// PlayerSession is the persisted rejoin record, keyed by room code and
// identity. A soft cache with a freshness window, not a security boundary.
type PlayerSession struct {
	RoomCode   string    `json:"roomCode"`
	PlayerID   string    `json:"playerId"`
	PlayerName string    `json:"playerName"`
	Timestamp  time.Time `json:"timestamp"`
}

// RoomSnapshot is the reconcile payload for a subscriber that attaches or
// resumes: confirmed state from a synchronous read, never from push payloads.
type RoomSnapshot struct {
	Room            Room             `json:"room"`
	CurrentQuestion *CurrentQuestion `json:"currentQuestion,omitempty"`
	Leaderboard     Leaderboard      `json:"leaderboard"`
	QuestionCount   int              `json:"questionCount"`
}
