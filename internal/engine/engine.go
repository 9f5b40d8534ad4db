// Package engine runs one hand end to end. It wires the state machine to the
// hand's RNG, its log and the settlement engine, and audits the result.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/handid"
	"github.com/lox/handengine/internal/handlog"
	"github.com/lox/handengine/internal/rng"
	"github.com/lox/handengine/internal/sanitize"
	"github.com/lox/handengine/internal/settlement"
)

var (
	// ErrIntegrity reports a hand whose log, proof or replay disagrees with
	// itself. The hand must not be settled further.
	ErrIntegrity = errors.New("engine: integrity violation")
	// ErrHalted is returned for every action after an integrity failure.
	ErrHalted = errors.New("engine: hand halted")
)

// Options are the collaborators of an Engine. Zero values pick defaults.
type Options struct {
	// RNG deals the hand; nil draws a fresh one from crypto/rand.
	RNG *rng.HandRNG
	// Log records the hand; nil keeps it in memory.
	Log *handlog.Log
	// Evaluator ranks contested pots; nil uses settlement.PokerEvaluator.
	Evaluator settlement.Evaluator
	// Wallet receives the settlement; nil skips posting.
	Wallet   settlement.Wallet
	Currency string
	// Rake is taken from each posted hand, capped at the amount lost.
	Rake   int64
	Logger zerolog.Logger
}

// Engine owns one hand. It is not safe for concurrent use.
type Engine struct {
	cfg      hand.Config
	rng      *rng.HandRNG
	machine  *hand.Machine
	log      *handlog.Log
	settler  *settlement.Settler
	wallet   settlement.Wallet
	currency string
	rake     int64
	logger   zerolog.Logger

	halted error
	posted bool
}

// Checkpoint marks a point an Engine can be rolled back to.
type Checkpoint struct {
	state   hand.State
	entries int
}

// Entries is the log length when the checkpoint was taken.
func (c Checkpoint) Entries() int { return c.entries }

// New starts a hand. The RNG commitment is recorded before anything else.
func New(cfg hand.Config, opts Options) (*Engine, error) {
	if cfg.HandID == "" {
		cfg.HandID = handid.New()
	}
	if opts.RNG == nil {
		r, err := rng.New(nil)
		if err != nil {
			return nil, err
		}
		opts.RNG = r
	}
	if opts.Log == nil {
		opts.Log = handlog.New(cfg.HandID, nil)
	}

	e, err := build(cfg, opts)
	if err != nil {
		return nil, err
	}
	if err := e.log.RecordHand(e.rng.Commitment(), cfg); err != nil {
		return nil, fmt.Errorf("engine: record commitment: %w", err)
	}
	e.logger.Debug().Str("commitment", e.rng.Commitment()).Int("seats", len(cfg.Seats)).Msg("Hand started")
	return e, nil
}

// Resume rebuilds a hand from its log by re-driving the logged actions
// through a fresh machine. The replayed states must match the logged ones.
func Resume(cfg hand.Config, l *handlog.Log, opts Options) (*Engine, error) {
	if opts.RNG == nil {
		return nil, errors.New("engine: resume needs the hand's RNG")
	}
	if l.Commitment() != opts.RNG.Commitment() {
		return nil, fmt.Errorf("%w: log commitment %q does not match secret", ErrIntegrity, l.Commitment())
	}
	opts.Log = l

	e, err := build(cfg, opts)
	if err != nil {
		return nil, err
	}
	for _, entry := range l.All() {
		got, err := e.machine.Apply(entry.Action)
		if err != nil {
			return nil, fmt.Errorf("%w: replay entry %d: %v", ErrIntegrity, entry.Index, err)
		}
		if !sameState(got, entry.Post) {
			return nil, fmt.Errorf("%w: replay of entry %d diverges from the log", ErrIntegrity, entry.Index)
		}
	}
	if err := e.seal(); err != nil {
		return nil, err
	}
	e.logger.Info().Int("entries", l.Len()).Str("phase", string(e.machine.State().Phase)).Msg("Hand resumed from log")
	return e, nil
}

func build(cfg hand.Config, opts Options) (*Engine, error) {
	if opts.Evaluator == nil {
		opts.Evaluator = settlement.PokerEvaluator{}
	}
	logger := opts.Logger.With().Str("hand_id", cfg.HandID).Logger()
	settler := settlement.New(opts.Evaluator, logger)

	m, err := hand.NewMachine(cfg, opts.RNG, settler)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		rng:      opts.RNG,
		machine:  m,
		log:      opts.Log,
		settler:  settler,
		wallet:   opts.Wallet,
		currency: opts.Currency,
		rake:     opts.Rake,
		logger:   logger,
	}, nil
}

// HandID returns the id of the hand.
func (e *Engine) HandID() string { return e.cfg.HandID }

// Config returns the hand configuration.
func (e *Engine) Config() hand.Config { return e.cfg }

// Log returns the hand log.
func (e *Engine) Log() *handlog.Log { return e.log }

// Commitment returns the public RNG commitment.
func (e *Engine) Commitment() string { return e.rng.Commitment() }

// Secret returns the seed and nonce for the secret vault.
func (e *Engine) Secret() (seed, nonce []byte) { return e.rng.Secret() }

// State returns a copy of the full internal state.
func (e *Engine) State() hand.State { return e.machine.State() }

// PublicState returns the state as viewerID may see it.
func (e *Engine) PublicState(viewerID string) sanitize.PublicState {
	return sanitize.ForViewer(e.machine.State(), viewerID)
}

// Done reports whether the hand is settled.
func (e *Engine) Done() bool { return e.machine.State().Done() }

// Apply applies a and records it. Reaching SHOWDOWN settles the hand at once
// with a logged next; reaching SETTLE records the proof.
func (e *Engine) Apply(a hand.Action) (hand.State, error) {
	if e.halted != nil {
		return e.machine.State(), fmt.Errorf("%w: %v", ErrHalted, e.halted)
	}

	post, err := e.step(a)
	if err != nil {
		return post, err
	}
	if post.Phase == hand.PhaseShowdown {
		if post, err = e.step(hand.Next()); err != nil {
			e.halt(err)
			return post, err
		}
	}
	if err := e.seal(); err != nil {
		// The transition stands; Flush retries the proof.
		e.logger.Warn().Err(err).Msg("Failed to record proof")
	}
	return post, nil
}

// seal records the proof once the hand is settled.
func (e *Engine) seal() error {
	s := e.machine.State()
	if !s.Done() || e.log.Sealed() {
		return nil
	}
	if err := e.log.RecordProof(e.rng.Reveal()); err != nil {
		return fmt.Errorf("engine: record proof: %w", err)
	}
	e.logger.Info().Interface("settlements", s.Settlements).Msg("Hand settled")
	return nil
}

func (e *Engine) step(a hand.Action) (hand.State, error) {
	pre := e.machine.State()
	post, err := e.machine.Apply(a)
	if err != nil {
		if errors.Is(err, settlement.ErrIntegrity) || errors.Is(err, hand.ErrInvariant) {
			e.halt(err)
		}
		return post, err
	}
	if _, err := e.log.Record(a, pre, post); err != nil {
		e.machine.Restore(pre)
		return pre, fmt.Errorf("engine: record %s: %w", a, err)
	}
	e.logger.Debug().Str("action", a.String()).Str("phase", string(post.Phase)).Msg("Applied action")
	return post, nil
}

func (e *Engine) halt(err error) {
	if e.halted == nil {
		e.halted = err
		e.logger.Error().Err(err).Msg("Hand halted")
	}
}

// Checkpoint captures the current state for Rollback.
func (e *Engine) Checkpoint() Checkpoint {
	return Checkpoint{state: e.machine.State(), entries: e.log.Len()}
}

// Flush makes the log durable, recording a pending proof first.
func (e *Engine) Flush(ctx context.Context) error {
	if err := e.seal(); err != nil {
		return err
	}
	return e.log.Flush(ctx)
}

// Rollback discards every record made since the last durable flush and, if
// that removes the records made since cp, restores the machine to cp. It
// reports whether the rollback happened; false means the records had
// already become durable and the transition stands.
func (e *Engine) Rollback(cp Checkpoint) (bool, error) {
	if err := e.log.Discard(); err != nil {
		return false, err
	}
	if e.log.Len() > cp.entries {
		// A background flush made the transition durable; only a trailing
		// proof can have been lost.
		return false, e.seal()
	}
	e.machine.Restore(cp.state)
	return true, nil
}

// PostSettlement sends the settled hand to the wallet once. It is a no-op
// without a wallet or before the hand is settled.
func (e *Engine) PostSettlement(ctx context.Context) error {
	s := e.machine.State()
	if e.wallet == nil || e.posted || !s.Done() {
		return nil
	}
	p := settlement.Posting{
		Ref:      e.cfg.HandID,
		Currency: e.currency,
		Entries:  s.Settlements,
	}
	p.Rake = min(e.rake, p.Total())
	if err := settlement.Post(ctx, e.wallet, p); err != nil {
		return err
	}
	e.posted = true
	return nil
}

// Replay rebuilds the hand on a fresh machine from the actions of l, or of
// the engine's own log when l is nil, and checks the result against the
// current state.
func (e *Engine) Replay(l *handlog.Log) (hand.State, error) {
	if l == nil {
		l = e.log
	}
	seed, nonce := e.rng.Secret()
	r, err := rng.FromSeed(seed, nonce)
	if err != nil {
		return hand.State{}, err
	}
	m, err := hand.NewMachine(e.cfg, r, e.settler)
	if err != nil {
		return hand.State{}, err
	}
	actions := l.Actions()
	final, err := handlog.Replay(m, actions)
	if err != nil {
		return final, err
	}
	if current := e.machine.State(); !sameState(final, current) {
		return final, fmt.Errorf("%w: replay of %d actions diverges from live state", ErrIntegrity, len(actions))
	}
	return final, nil
}

// sameState compares states by their logged form, so a state read back from
// JSON equals the one that was written.
func sameState(a, b hand.State) bool {
	x, errX := json.Marshal(a)
	y, errY := json.Marshal(b)
	return errX == nil && errY == nil && bytes.Equal(x, y)
}

// ConfigFromLog returns the configuration a logged hand was started with.
// Logs that record none get their seats from the first entry and their
// limits from fallback.
func ConfigFromLog(l *handlog.Log, fallback hand.Config) (hand.Config, error) {
	if cfg, ok := l.Config(); ok {
		cfg.HandID = l.HandID()
		return cfg, nil
	}
	seats, err := SeatsFromLog(l)
	if err != nil {
		return hand.Config{}, err
	}
	return hand.Config{HandID: l.HandID(), Seats: seats, BigBlind: fallback.BigBlind, MaxBet: fallback.MaxBet}, nil
}

// SeatsFromLog returns the seats a logged hand started with, read from the
// state before its first action.
func SeatsFromLog(l *handlog.Log) ([]hand.Seat, error) {
	entries := l.All()
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: hand %s has no actions", handlog.ErrNotFound, l.HandID())
	}
	players := entries[0].Pre.Players
	seats := make([]hand.Seat, len(players))
	for i, p := range players {
		seats[i] = hand.Seat{ID: p.ID, Stack: p.Initial}
	}
	return seats, nil
}
