package game

import (
	"context"
	"time"

	"github.com/kiliankoe/playtutor/internal/matching"
	"github.com/kiliankoe/playtutor/internal/questions"
)

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StatePlaying State = "playing"
	StateClosing State = "closing"
	StateClosed  State = "closed"
)

// Stats is the snapshot a game reports. Times are unix milliseconds; EndTime
// is null while the game runs.
type Stats struct {
	QuestionsAttempted int    `json:"questionsAttempted"`
	CorrectAnswers     int    `json:"correctAnswers"`
	WrongAnswers       int    `json:"wrongAnswers"`
	StartTime          int64  `json:"startTime"`
	EndTime            *int64 `json:"endTime"`
	GameID             string `json:"gameId,omitempty"`
	SelectedStyle      string `json:"selectedStyle,omitempty"`
	TimeSpent          int64  `json:"timeSpent"` // seconds
	Accuracy           int    `json:"accuracy"`  // percent
}

// Cause records what finalized a session.
type Cause string

const (
	CausePeer     Cause = "peer"     // final report from the game
	CauseGrace    Cause = "grace"    // grace period expired
	CauseDetached Cause = "detached" // no game connected to wait for
)

// Result is handed to the owner exactly once when a session closes.
type Result struct {
	SessionID string                   `json:"sessionId"`
	Match     matching.MatchResult     `json:"match"`
	Stats     Stats                    `json:"stats"`
	History   []questions.HistoryEntry `json:"history"`
	Cause     Cause                    `json:"cause"`
	ClosedAt  time.Time                `json:"closedAt"`
}

// Loader fetches the document a game runs from.
type Loader interface {
	Load(ctx context.Context, props questions.GameProps) (string, error)
}

// Peer is the connected game. *bus.Bus satisfies it.
type Peer interface {
	Notify(ctx context.Context, typ string, payload any) error
}

// View is a read-only copy of a session for API responses.
type View struct {
	ID        string               `json:"id"`
	State     State                `json:"state"`
	Match     matching.MatchResult `json:"match"`
	Stats     *Stats               `json:"stats,omitempty"`
	Answered  int                  `json:"answered"`
	Connected bool                 `json:"connected"`
	CreatedAt time.Time            `json:"createdAt"`
	Result    *Result              `json:"result,omitempty"`
}
