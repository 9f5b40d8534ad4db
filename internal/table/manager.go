package table

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Summary holds lightweight metadata about a table.
type Summary struct {
	ID     string `json:"id"`
	HandID string `json:"hand_id,omitempty"`
	Phase  string `json:"phase,omitempty"`
	Pot    int64  `json:"pot"`
	Seats  int    `json:"seats"`
}

type slot struct {
	once   sync.Once
	actor  atomic.Pointer[Actor]
	err    error
	closed atomic.Bool
}

// Manager is the registry of table actors. Actors are created on first
// reference and recover their table's unfinished hand before serving.
type Manager struct {
	logger   zerolog.Logger
	deps     Deps
	defaults Config
	tables   map[string]Config

	mu     sync.Mutex
	slots  map[string]*slot
	closed bool
}

// NewManager constructs an empty manager. tables overrides defaults for
// specific table ids.
func NewManager(deps Deps, defaults Config, tables map[string]Config) *Manager {
	return &Manager{
		logger:   deps.Logger.With().Str("component", "table_manager").Logger(),
		deps:     deps,
		defaults: defaults,
		tables:   maps.Clone(tables),
		slots:    make(map[string]*slot),
	}
}

// Get returns the actor of tableID, creating and recovering it on first use.
// A failed recovery is returned and retried by the next Get. A Get that
// races Close of the same table returns ErrClosed rather than the actor
// being closed.
func (m *Manager) Get(ctx context.Context, tableID string) (*Actor, error) {
	if tableID == "" {
		return nil, errors.New("table: empty table id")
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	s, ok := m.slots[tableID]
	if !ok {
		s = &slot{}
		m.slots[tableID] = s
	}
	m.mu.Unlock()

	s.once.Do(func() {
		cfg, ok := m.tables[tableID]
		if !ok {
			cfg = m.defaults
		}
		a := newActor(tableID, cfg, m.deps)
		if err := a.recover(ctx); err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
			s.err = err
			return
		}
		s.actor.Store(a)
		m.logger.Debug().Str("table_id", tableID).Msg("Table actor started")
	})
	if s.err != nil {
		m.mu.Lock()
		if m.slots[tableID] == s {
			delete(m.slots, tableID)
		}
		m.mu.Unlock()
		return nil, s.err
	}
	if s.closed.Load() {
		return nil, fmt.Errorf("%w: %s is closing", ErrClosed, tableID)
	}
	return s.actor.Load(), nil
}

// Close flushes and releases one table. Closing an unknown table is a no-op.
func (m *Manager) Close(ctx context.Context, tableID string) error {
	m.mu.Lock()
	s, ok := m.slots[tableID]
	delete(m.slots, tableID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	s.closed.Store(true)
	s.once.Do(func() { s.err = ErrClosed })
	a := s.actor.Load()
	if a == nil {
		return nil
	}
	m.logger.Info().Str("table_id", tableID).Msg("Closing table")
	return a.Close(ctx)
}

// Shutdown closes every table in parallel and stops the log store.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	ids := slices.Collect(maps.Keys(m.slots))
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			return m.Close(gctx, id)
		})
	}
	err := g.Wait()
	m.deps.Store.Shutdown()
	return err
}

// List returns a snapshot of the open tables, sorted by id.
func (m *Manager) List() []Summary {
	m.mu.Lock()
	actors := make([]*Actor, 0, len(m.slots))
	for _, s := range m.slots {
		if a := s.actor.Load(); a != nil {
			actors = append(actors, a)
		}
	}
	m.mu.Unlock()

	summaries := make([]Summary, 0, len(actors))
	for _, a := range actors {
		summary := Summary{ID: a.ID()}
		if s, ok := a.State(); ok {
			summary.HandID = s.HandID
			summary.Phase = string(s.Phase)
			summary.Pot = s.Pot
			summary.Seats = len(s.Players)
		}
		summaries = append(summaries, summary)
	}
	slices.SortFunc(summaries, func(a, b Summary) int { return cmp.Compare(a.ID, b.ID) })
	return summaries
}
