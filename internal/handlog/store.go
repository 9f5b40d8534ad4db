package handlog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
)

const (
	logExt    = ".jsonl"
	secretExt = ".secret"
)

// StoreConfig configures where logs live and how often open logs are swept.
type StoreConfig struct {
	BaseDir       string
	FlushInterval time.Duration
	Clock         quartz.Clock
}

// Store lays logs out as <base>/table-<id>/<hand>.jsonl with an optional
// <hand>.secret beside each unrevealed hand. It tracks open logs, flushes
// them on a timer and drains them on shutdown.
type Store struct {
	cfg    StoreConfig
	logger zerolog.Logger

	mu   sync.Mutex
	open map[string]*Log // keyed by table id

	cancel context.CancelFunc
	ticker quartz.Waiter
	once   sync.Once
}

// NewStore creates a store and starts its flush ticker.
func NewStore(logger zerolog.Logger, cfg StoreConfig) *Store {
	if cfg.BaseDir == "" {
		cfg.BaseDir = "hands"
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}

	s := &Store{
		cfg:    cfg,
		logger: logger.With().Str("component", "handlog").Logger(),
		open:   make(map[string]*Log),
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.ticker = cfg.Clock.TickerFunc(ctx, cfg.FlushInterval, func() error {
		s.flushAll()
		return nil
	}, "handlog", "flush")
	return s
}

// Dir returns the directory holding a table's logs.
func (s *Store) Dir(tableID string) string {
	return filepath.Join(s.cfg.BaseDir, "table-"+tableID)
}

// Path returns the log file of a hand.
func (s *Store) Path(tableID, handID string) string {
	return filepath.Join(s.Dir(tableID), handID+logExt)
}

// SecretPath returns the secret sidecar of a hand.
func (s *Store) SecretPath(tableID, handID string) string {
	return filepath.Join(s.Dir(tableID), handID+secretExt)
}

// Create starts a new log for a hand and makes it the table's open log.
// The previous open log of the table is closed.
func (s *Store) Create(tableID, handID string) (*Log, error) {
	path := s.Path(tableID, handID)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("handlog: %s already exists", path)
	}
	sink, err := OpenFileSink(path)
	if err != nil {
		return nil, err
	}
	l := New(handID, sink)
	s.register(tableID, l)
	return l, nil
}

// Open loads an existing hand for appending and makes it the table's open log.
func (s *Store) Open(tableID, handID string) (*Log, error) {
	path := s.Path(tableID, handID)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	l, skipped, err := Open(path, handID)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		s.logger.Warn().Str("table_id", tableID).Str("hand_id", handID).Int("skipped", skipped).
			Msg("Skipped malformed log lines")
	}
	s.register(tableID, l)
	return l, nil
}

// Load reads a hand without opening it for writing.
func (s *Store) Load(tableID, handID string) (*Log, error) {
	l, skipped, err := Load(s.Path(tableID, handID), handID)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		s.logger.Warn().Str("table_id", tableID).Str("hand_id", handID).Int("skipped", skipped).
			Msg("Skipped malformed log lines")
	}
	return l, nil
}

// Hands lists the hand ids of a table in ascending order. Hand ids sort by
// creation time, so the last one is the most recent hand.
func (s *Store) Hands(tableID string) ([]string, error) {
	entries, err := os.ReadDir(s.Dir(tableID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("handlog: list %s: %w", tableID, err)
	}
	var hands []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), logExt); ok && !e.IsDir() {
			hands = append(hands, name)
		}
	}
	slices.Sort(hands)
	return hands, nil
}

// Latest returns the most recent hand of a table, or ErrNotFound.
func (s *Store) Latest(tableID string) (string, error) {
	hands, err := s.Hands(tableID)
	if err != nil {
		return "", err
	}
	if len(hands) == 0 {
		return "", fmt.Errorf("%w: no hands for table %s", ErrNotFound, tableID)
	}
	return hands[len(hands)-1], nil
}

// Tables lists table ids that have a log directory.
func (s *Store) Tables() ([]string, error) {
	entries, err := os.ReadDir(s.cfg.BaseDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var tables []string
	for _, e := range entries {
		if id, ok := strings.CutPrefix(e.Name(), "table-"); ok && e.IsDir() {
			tables = append(tables, id)
		}
	}
	return tables, nil
}

// SaveSecret writes the sidecar of an unrevealed hand.
func (s *Store) SaveSecret(tableID, handID string, seed, nonce []byte) error {
	return WriteSecret(s.SecretPath(tableID, handID), seed, nonce)
}

// LoadSecret reads the sidecar of an unrevealed hand.
func (s *Store) LoadSecret(tableID, handID string) (seed, nonce []byte, err error) {
	return ReadSecret(s.SecretPath(tableID, handID))
}

// DropSecret removes the sidecar once the proof is durable.
func (s *Store) DropSecret(tableID, handID string) error {
	return RemoveSecret(s.SecretPath(tableID, handID))
}

// Release flushes and closes the table's open log.
func (s *Store) Release(tableID string) error {
	s.mu.Lock()
	l, ok := s.open[tableID]
	delete(s.open, tableID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return l.Close()
}

// Shutdown stops the ticker and closes every open log.
func (s *Store) Shutdown() {
	s.once.Do(func() {
		s.cancel()
		_ = s.ticker.Wait()

		s.mu.Lock()
		open := s.open
		s.open = make(map[string]*Log)
		s.mu.Unlock()

		for tableID, l := range open {
			if err := l.Close(); err != nil {
				s.logger.Error().Err(err).Str("table_id", tableID).Msg("Hand log flush on shutdown failed")
			}
		}
	})
}

func (s *Store) register(tableID string, l *Log) {
	s.mu.Lock()
	prev := s.open[tableID]
	s.open[tableID] = l
	s.mu.Unlock()

	if prev != nil && prev != l {
		if err := prev.Close(); err != nil {
			s.logger.Error().Err(err).Str("table_id", tableID).Str("hand_id", prev.HandID()).
				Msg("Closing previous hand log failed")
		}
	}
}

func (s *Store) flushAll() {
	s.mu.Lock()
	snapshot := maps.Clone(s.open)
	s.mu.Unlock()

	for tableID, l := range snapshot {
		if err := l.Flush(context.Background()); err != nil {
			s.logger.Error().Err(err).Str("table_id", tableID).Str("hand_id", l.HandID()).
				Msg("Hand log flush failed")
		}
	}
}
