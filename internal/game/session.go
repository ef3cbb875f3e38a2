package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/kiliankoe/playtutor/internal/bus"
	"github.com/kiliankoe/playtutor/internal/matching"
	"github.com/kiliankoe/playtutor/internal/questions"
	"github.com/rs/zerolog"
)

// DefaultGrace is how long a closing session waits for the game's final report.
const DefaultGrace = 100 * time.Millisecond

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidState    = errors.New("invalid state for action")
)

// Session tracks one embedded game from launch to its final stats. It owns the
// stats snapshot and the question history; nothing else writes them.
type Session struct {
	ID        string
	Match     matching.MatchResult
	Props     questions.GameProps
	CreatedAt time.Time

	clock      clockwork.Clock
	grace      time.Duration
	log        zerolog.Logger
	onFinalize func(Result)

	mu        sync.Mutex
	state     State
	doc       string
	stats     *Stats
	history   []questions.HistoryEntry
	peer      Peer
	timer     clockwork.Timer
	epoch     uint64
	playingAt time.Time
	finalized bool
	result    *Result
}

func newSession(id string, match matching.MatchResult, props questions.GameProps, clock clockwork.Clock, grace time.Duration, log zerolog.Logger, onFinalize func(Result)) *Session {
	return &Session{
		ID:         id,
		Match:      match,
		Props:      props,
		CreatedAt:  clock.Now(),
		clock:      clock,
		grace:      grace,
		log:        log.With().Str("session", id).Logger(),
		onFinalize: onFinalize,
		state:      StateIdle,
	}
}

// Launch moves an idle session to Playing, fetching the document unless one is
// cached. Launching a playing session is a no-op. A failed fetch returns the
// session to Idle and is not retried.
func (s *Session) Launch(ctx context.Context, loader Loader) error {
	s.mu.Lock()
	switch s.state {
	case StatePlaying:
		s.mu.Unlock()
		return nil
	case StateIdle:
	default:
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: launch from %s", ErrInvalidState, st)
	}
	if s.doc != "" {
		s.startPlayingLocked()
		s.mu.Unlock()
		s.log.Info().Msg("game relaunched from cache")
		return nil
	}
	s.state = StateLoading
	s.epoch++
	epoch := s.epoch
	props := s.Props
	s.mu.Unlock()

	doc, err := loader.Load(ctx, props)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.state != StateLoading {
		return fmt.Errorf("%w: discarded while loading", ErrInvalidState)
	}
	if err != nil {
		s.state = StateIdle
		s.log.Warn().Err(err).Msg("game load failed")
		return fmt.Errorf("load game: %w", err)
	}
	s.doc = doc
	s.startPlayingLocked()
	s.log.Info().Str("game", props.GameID).Msg("game loaded")
	return nil
}

func (s *Session) startPlayingLocked() {
	s.state = StatePlaying
	s.playingAt = s.clock.Now()
	s.finalized = false
	s.result = nil
}

// RequestClose asks the game to wrap up. The session finalizes on the game's
// next stats report or when the grace period runs out, whichever comes first.
// Closing a closing or closed session is a no-op.
func (s *Session) RequestClose(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateClosing, StateClosed:
		s.mu.Unlock()
		return nil
	case StatePlaying:
	default:
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: close from %s", ErrInvalidState, st)
	}
	s.state = StateClosing
	peer := s.peer
	if peer == nil {
		res := s.finalizeLocked(CauseDetached)
		s.mu.Unlock()
		s.deliver(res)
		return nil
	}
	epoch := s.epoch
	s.timer = s.clock.AfterFunc(s.grace, func() { s.expire(epoch) })
	s.mu.Unlock()

	if err := peer.Notify(ctx, bus.TypeGameClosing, nil); err != nil {
		s.log.Debug().Err(err).Msg("closing notice not sent; waiting for grace period")
	}
	return nil
}

func (s *Session) expire(epoch uint64) {
	s.mu.Lock()
	if s.epoch != epoch || s.state != StateClosing {
		s.mu.Unlock()
		return
	}
	res := s.finalizeLocked(CauseGrace)
	s.mu.Unlock()
	s.deliver(res)
}

// ApplyStatus stores the latest snapshot, replacing the previous one. A report
// arriving while closing is the final one.
func (s *Session) ApplyStatus(st Stats) {
	s.mu.Lock()
	switch s.state {
	case StatePlaying:
		s.stats = &st
		s.mu.Unlock()
	case StateClosing:
		s.stats = &st
		res := s.finalizeLocked(CausePeer)
		s.mu.Unlock()
		s.deliver(res)
	default:
		state := s.state
		s.mu.Unlock()
		s.log.Debug().Str("state", string(state)).Msg("ignoring stats report")
	}
}

// ApplyCompleted handles the older terminal report. While playing it only
// stores the snapshot; the owner still decides when to close.
func (s *Session) ApplyCompleted(completed bool, st *Stats) {
	s.log.Debug().Bool("completed", completed).Bool("stats", st != nil).Msg("game reported completion")
	if st != nil {
		s.ApplyStatus(*st)
		return
	}
	s.mu.Lock()
	if s.state != StateClosing {
		s.mu.Unlock()
		return
	}
	res := s.finalizeLocked(CausePeer)
	s.mu.Unlock()
	s.deliver(res)
}

// finalizeLocked closes the session once; later calls return nil.
func (s *Session) finalizeLocked(cause Cause) *Result {
	if s.finalized {
		return nil
	}
	s.finalized = true
	s.state = StateClosed
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	now := s.clock.Now()
	var st Stats
	if s.stats != nil {
		st = *s.stats
	} else if !s.playingAt.IsZero() {
		st.StartTime = s.playingAt.UnixMilli()
	}
	if st.GameID == "" {
		st.GameID = s.Match.GameID
	}
	if st.SelectedStyle == "" {
		st.SelectedStyle = s.Match.SelectedStyle
	}
	if st.EndTime == nil {
		end := now.UnixMilli()
		st.EndTime = &end
	}
	res := &Result{
		SessionID: s.ID,
		Match:     s.Match,
		Stats:     st,
		History:   append([]questions.HistoryEntry(nil), s.history...),
		Cause:     cause,
		ClosedAt:  now,
	}
	s.result = res
	return res
}

func (s *Session) deliver(res *Result) {
	if res == nil {
		return
	}
	s.log.Info().Str("cause", string(res.Cause)).Int("attempted", res.Stats.QuestionsAttempted).Int("correct", res.Stats.CorrectAnswers).Msg("session finalized")
	if s.onFinalize != nil {
		s.onFinalize(*res)
	}
}

// Discard resets the session to Idle without waiting for or delivering stats.
// The cached document and question history survive so a relaunch is instant.
func (s *Session) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.state = StateIdle
	s.stats = nil
	s.peer = nil
	s.finalized = false
	s.result = nil
	s.playingAt = time.Time{}
}

// Attach sets the connected game. A new connection replaces the old one.
func (s *Session) Attach(p Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peer = p
}

// Detach clears p if it is still the connected game.
func (s *Session) Detach(p Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.peer == p {
		s.peer = nil
	}
}

// RecordHistory replaces the question history with the game's latest report.
func (s *Session) RecordHistory(h []questions.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePlaying && s.state != StateClosing {
		return
	}
	s.history = append([]questions.HistoryEntry(nil), h...)
}

func (s *Session) History() []questions.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]questions.HistoryEntry(nil), s.history...)
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Document returns the loaded game document, if any.
func (s *Session) Document() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc, s.doc != ""
}

func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		ID:        s.ID,
		State:     s.state,
		Match:     s.Match,
		Answered:  len(s.history),
		Connected: s.peer != nil,
		CreatedAt: s.CreatedAt,
	}
	if s.stats != nil {
		st := *s.stats
		v.Stats = &st
	}
	if s.result != nil {
		r := *s.result
		v.Result = &r
	}
	return v
}

func (s *Session) closedAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return time.Time{}, false
	}
	return s.result.ClosedAt, true
}
