package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"thoreinstein.com/shipwright/pkg/config"
	shiperrors "thoreinstein.com/shipwright/pkg/errors"
	"thoreinstein.com/shipwright/pkg/metrics"
)

// Manager serializes access to sessions and tracks which ones are busy
// with a long-running operation.
type Manager struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	busy  map[string]string
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets a custom logger for the manager.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock overrides time.Now for UpdatedAt.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager wraps store.
func NewManager(store Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
		locks:  make(map[string]*sync.Mutex),
		busy:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OpenStore creates the store selected by cfg.Store ("memory" or "sqlite").
func OpenStore(cfg config.SessionConfig) (Store, error) {
	switch cfg.Store {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if cfg.DatabasePath == "" {
			return nil, shiperrors.NewConfigError("session.database_path", "required when session.store is sqlite")
		}
		return NewSQLiteStore(cfg.DatabasePath)
	default:
		return nil, shiperrors.NewConfigError("session.store", "unknown store "+cfg.Store+" (expected memory or sqlite)")
	}
}

func (m *Manager) lock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// Load returns the session for (mode, id), or a fresh one when nothing is
// stored yet.
func (m *Manager) Load(ctx context.Context, mode Mode, id string) (*Session, error) {
	s, err := m.store.Get(ctx, Key(mode, id))
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = New(mode, id)
	}
	return s, nil
}

// Update loads the session, applies fn and saves the result. Updates to
// the same session run one at a time. Nothing is saved when fn fails.
func (m *Manager) Update(ctx context.Context, mode Mode, id string, fn func(*Session) error) (*Session, error) {
	l := m.lock(Key(mode, id))
	l.Lock()
	defer l.Unlock()

	s, err := m.Load(ctx, mode, id)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}

	s.UpdatedAt = m.now()
	if err := m.store.Put(ctx, s); err != nil {
		return nil, err
	}
	m.reportCount(ctx)
	return s, nil
}

// Begin marks the session busy with op. It fails with a ConflictError
// while another operation holds the session. The returned func releases it.
func (m *Manager) Begin(mode Mode, id, op string) (func(), error) {
	key := Key(mode, id)

	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.busy[key]; ok {
		return nil, shiperrors.NewConflictError("session", "another operation is in progress: "+current)
	}
	m.busy[key] = op

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.busy, key)
			m.mu.Unlock()
		})
	}, nil
}

// Busy reports the operation holding the session, if any.
func (m *Manager) Busy(mode Mode, id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	op, ok := m.busy[Key(mode, id)]
	return op, ok
}

// Reset deletes the session and returns the workspace it held, so the
// caller can clean it up.
func (m *Manager) Reset(ctx context.Context, mode Mode, id string) (*Session, error) {
	if op, ok := m.Busy(mode, id); ok {
		return nil, shiperrors.NewConflictError("session", "cannot reset while "+op+" is running")
	}

	key := Key(mode, id)
	l := m.lock(key)
	l.Lock()
	defer l.Unlock()

	s, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := m.store.Delete(ctx, key); err != nil {
		return nil, err
	}
	m.reportCount(ctx)
	return s, nil
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

func (m *Manager) reportCount(ctx context.Context) {
	n, err := m.store.Count(ctx)
	if err != nil {
		m.logger.Warn("failed to count sessions", "error", err)
		return
	}
	metrics.SetActiveSessions(n)
}
