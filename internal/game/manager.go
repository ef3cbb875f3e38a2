package game

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/kiliankoe/playtutor/internal/matching"
	"github.com/kiliankoe/playtutor/internal/questions"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Manager is the registry of game sessions.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	active   string // most recently created session

	loader     Loader
	clock      clockwork.Clock
	grace      time.Duration
	log        zerolog.Logger
	onFinalize func(Result)
}

type Option func(*Manager)

func WithClock(c clockwork.Clock) Option { return func(m *Manager) { m.clock = c } }

func WithGrace(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.grace = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option { return func(m *Manager) { m.log = l } }

// OnFinalize registers the owner callback that receives each closed session's
// result.
func OnFinalize(fn func(Result)) Option { return func(m *Manager) { m.onFinalize = fn } }

func NewManager(loader Loader, opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		loader:   loader,
		clock:    clockwork.NewRealClock(),
		grace:    DefaultGrace,
		log:      zlog.Logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create registers an idle session for a selected match.
func (m *Manager) Create(match matching.MatchResult, problemSpec, userSpec string) *Session {
	props := questions.GameProps{
		GameID:            match.GameID,
		QuestionSpec:      match.QuestionSpec,
		RequiredQuestions: match.RequiredQuestions,
		ProblemSpec:       problemSpec,
		UserSpec:          userSpec,
		SelectedStyle:     match.SelectedStyle,
		Name:              match.Name,
	}
	s := newSession(uuid.NewString(), match, props, m.clock, m.grace, m.log, m.finalized)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	m.active = s.ID
	m.log.Info().Str("session", s.ID).Str("game", match.GameID).Msg("session created")
	return s
}

func (m *Manager) finalized(r Result) {
	if m.onFinalize != nil {
		m.onFinalize(r)
	}
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.sessions[id]
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Active returns the most recently created session still registered.
func (m *Manager) Active() (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.sessions[m.active]
	return s, s != nil
}

// List returns views of all sessions, newest first.
func (m *Manager) List() []View {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	out := make([]View, 0, len(all))
	for _, s := range all {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *Manager) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	if m.active == id {
		m.active = ""
	}
}

func (m *Manager) Launch(ctx context.Context, id string) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	return s, s.Launch(ctx, m.loader)
}

func (m *Manager) RequestClose(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	return s.RequestClose(ctx)
}

// Discard drops a session without waiting for or delivering its stats.
func (m *Manager) Discard(id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	s.Discard()
	m.Remove(id)
	m.log.Info().Str("session", id).Msg("session discarded")
	return nil
}

// Sweep removes sessions closed longer than olderThan ago, and idle ones that
// were created that long ago and never played. It returns how many it removed.
func (m *Manager) Sweep(olderThan time.Duration) int {
	cutoff := m.clock.Now().Add(-olderThan)

	m.mu.RLock()
	var stale []string
	for id, s := range m.sessions {
		if at, ok := s.closedAt(); ok {
			if at.Before(cutoff) {
				stale = append(stale, id)
			}
			continue
		}
		if s.State() == StateIdle && s.CreatedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range stale {
		m.Remove(id)
	}
	if len(stale) > 0 {
		m.log.Info().Int("removed", len(stale)).Msg("swept sessions")
	}
	return len(stale)
}
