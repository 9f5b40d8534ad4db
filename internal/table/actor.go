// Package table serializes every operation on a table through one actor
// goroutine and keeps a lazily populated registry of actors.
package table

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/handengine/internal/engine"
	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/handid"
	"github.com/lox/handengine/internal/handlog"
	"github.com/lox/handengine/internal/rng"
	"github.com/lox/handengine/internal/sanitize"
	"github.com/lox/handengine/internal/settlement"
)

var (
	ErrClosed         = errors.New("table: actor closed")
	ErrNoHand         = errors.New("table: no hand in progress")
	ErrHandInProgress = errors.New("table: hand in progress")
)

// Config holds the per-table settings.
type Config struct {
	BigBlind     int64
	MaxBet       int64
	Currency     string
	Rake         int64
	FlushRetries int
	RetryDelay   time.Duration
}

// Publisher receives every durable state of a table. Implementations must
// sanitize before anything leaves the process and must not block.
type Publisher interface {
	Publish(tableID string, index int, s hand.State)
}

// Deps are the collaborators shared by the actors of a manager.
type Deps struct {
	Store     *handlog.Store
	Wallet    settlement.Wallet
	Evaluator settlement.Evaluator
	Publisher Publisher
	// Entropy is where hand secrets are drawn from; nil is crypto/rand. It
	// is shared by every actor and must be safe for concurrent reads.
	Entropy io.Reader
	Clock   quartz.Clock
	Logger  zerolog.Logger
}

// Frame is one logged state as a viewer may see it.
type Frame struct {
	Index int                  `json:"index"`
	State sanitize.PublicState `json:"state"`
}

type request struct {
	ctx  context.Context
	fn   func(ctx context.Context) error
	done chan error
}

// Actor owns the hands of one table. Requests are handled one at a time in
// arrival order; reads of the last committed state never wait on them.
type Actor struct {
	id     string
	cfg    Config
	deps   Deps
	logger zerolog.Logger

	requests chan request
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once

	snapshot atomic.Pointer[hand.State]

	// owned by the run goroutine
	engine      *engine.Engine
	pendingPost bool
}

func newActor(id string, cfg Config, deps Deps) *Actor {
	if deps.Clock == nil {
		deps.Clock = quartz.NewReal()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 50 * time.Millisecond
	}
	a := &Actor{
		id:       id,
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger.With().Str("component", "table").Str("table_id", id).Logger(),
		requests: make(chan request),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go a.run()
	return a
}

// ID returns the table id.
func (a *Actor) ID() string { return a.id }

func (a *Actor) run() {
	defer close(a.done)
	for {
		select {
		case req := <-a.requests:
			req.done <- req.fn(req.ctx)
		case <-a.stop:
			return
		}
	}
}

// do runs fn on the actor goroutine. Once fn has been accepted it runs to
// completion; ctx only bounds the wait for a turn.
func (a *Actor) do(ctx context.Context, fn func(ctx context.Context) error) error {
	req := request{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case a.requests <- req:
	case <-a.stop:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-req.done
}

// State returns the last committed internal state. It includes the deck and
// every hole card and must not leave the process.
func (a *Actor) State() (hand.State, bool) {
	s := a.snapshot.Load()
	if s == nil {
		return hand.State{}, false
	}
	return s.Clone(), true
}

// PublicState returns the last committed state as viewerID may see it.
func (a *Actor) PublicState(viewerID string) (sanitize.PublicState, bool) {
	s := a.snapshot.Load()
	if s == nil {
		return sanitize.PublicState{}, false
	}
	return sanitize.ForViewer(*s, viewerID), true
}

// HandID returns the id of the current or last hand.
func (a *Actor) HandID() string {
	if s := a.snapshot.Load(); s != nil {
		return s.HandID
	}
	return ""
}

// StartHand begins a new hand with seats. The hand's secret is in the vault
// and its commitment durable before StartHand returns.
func (a *Actor) StartHand(ctx context.Context, seats []hand.Seat) (sanitize.PublicState, error) {
	var out sanitize.PublicState
	err := a.do(ctx, func(ctx context.Context) error {
		if a.engine != nil && !a.engine.Done() {
			return fmt.Errorf("%w: %s", ErrHandInProgress, a.engine.HandID())
		}
		if err := a.settlePending(ctx); err != nil {
			return err
		}

		cfg := hand.Config{HandID: handid.New(), Seats: seats, BigBlind: a.cfg.BigBlind, MaxBet: a.cfg.MaxBet}
		if err := cfg.Validate(); err != nil {
			return err
		}
		r, err := rng.New(a.deps.Entropy)
		if err != nil {
			return err
		}
		seed, nonce := r.Secret()
		if err := a.deps.Store.SaveSecret(a.id, cfg.HandID, seed, nonce); err != nil {
			return fmt.Errorf("table: save secret: %w", err)
		}
		l, err := a.deps.Store.Create(a.id, cfg.HandID)
		if err != nil {
			return err
		}
		e, err := engine.New(cfg, a.options(r, l))
		if err != nil {
			return err
		}
		if err := a.flush(ctx, e); err != nil {
			_ = a.deps.Store.Release(a.id)
			return fmt.Errorf("table: start %s: %w", cfg.HandID, err)
		}

		a.engine = e
		s := e.State()
		a.snapshot.Store(&s)
		out = sanitize.ForSpectator(s)
		a.logger.Info().Str("hand_id", cfg.HandID).Str("commitment", e.Commitment()).Int("seats", len(seats)).
			Msg("Hand started")
		return nil
	})
	return out, err
}

// Apply applies action to the current hand and returns the resulting state
// as the acting player sees it. The action is durably logged before Apply
// returns; if the log cannot be flushed the action is undone and the I/O
// error returned. A settled hand whose wallet posting fails stays settled,
// the error is returned, and the posting is retried by the next StartHand.
func (a *Actor) Apply(ctx context.Context, action hand.Action) (sanitize.PublicState, error) {
	var out sanitize.PublicState
	err := a.do(ctx, func(ctx context.Context) error {
		e := a.engine
		if e == nil {
			return ErrNoHand
		}
		cp := e.Checkpoint()
		if _, err := e.Apply(action); err != nil {
			if errors.Is(err, engine.ErrHalted) || errors.Is(err, settlement.ErrIntegrity) || errors.Is(err, hand.ErrInvariant) {
				a.logger.Error().Err(err).Str("hand_id", e.HandID()).Str("action", action.String()).Msg("Hand integrity failure")
			}
			if e.Log().Len() > cp.Entries() {
				// Showdown was logged before settlement failed.
				err = errors.Join(err, a.commit(ctx, e, cp))
			}
			return err
		}
		if err := a.commit(ctx, e, cp); err != nil {
			return err
		}
		post := e.State()
		out = sanitize.ForViewer(post, action.PlayerID)

		if post.Done() {
			a.pendingPost = true
			if err := a.settlePending(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// commit makes the transitions since cp durable or undoes them.
func (a *Actor) commit(ctx context.Context, e *engine.Engine, cp engine.Checkpoint) error {
	err := a.flush(ctx, e)
	if err != nil {
		rolled, rbErr := e.Rollback(cp)
		if rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		if rolled {
			a.logger.Warn().Err(err).Str("hand_id", e.HandID()).Msg("Rolled back action after flush failure")
			return err
		}
		// A background flush got the records to disk first.
		a.logger.Debug().Err(err).Msg("Flush failed after records became durable")
	}

	s := e.State()
	a.snapshot.Store(&s)
	if a.deps.Publisher != nil {
		if last, ok := e.Log().Last(); ok {
			a.deps.Publisher.Publish(a.id, last.Index, s)
		}
	}
	return nil
}

// flush retries the log flush up to FlushRetries times.
func (a *Actor) flush(ctx context.Context, e *engine.Engine) error {
	var err error
	for attempt := range a.cfg.FlushRetries + 1 {
		if attempt > 0 {
			t := a.deps.Clock.NewTimer(a.cfg.RetryDelay, "table", "flush_retry")
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return errors.Join(err, ctx.Err())
			}
		}
		if err = e.Flush(ctx); err == nil {
			return nil
		}
		a.logger.Warn().Err(err).Int("attempt", attempt+1).Str("hand_id", e.HandID()).Msg("Hand log flush failed")
	}
	return err
}

// settlePending posts a settled hand to the wallet and then drops its secret.
func (a *Actor) settlePending(ctx context.Context) error {
	e := a.engine
	if e == nil || !a.pendingPost {
		return nil
	}
	if err := e.PostSettlement(ctx); err != nil {
		a.logger.Error().Err(err).Str("hand_id", e.HandID()).Msg("Wallet posting failed")
		return fmt.Errorf("table: post settlement of %s: %w", e.HandID(), err)
	}
	a.pendingPost = false
	if err := a.deps.Store.DropSecret(a.id, e.HandID()); err != nil {
		a.logger.Warn().Err(err).Str("hand_id", e.HandID()).Msg("Failed to drop hand secret")
	}
	a.logger.Info().Str("hand_id", e.HandID()).Msg("Hand complete")
	return nil
}

// Replay rebuilds the current hand from its persisted log on a fresh
// machine and checks it against the live state.
func (a *Actor) Replay(ctx context.Context) (sanitize.PublicState, error) {
	var out sanitize.PublicState
	err := a.do(ctx, func(ctx context.Context) error {
		e := a.engine
		if e == nil {
			return ErrNoHand
		}
		if err := a.flush(ctx, e); err != nil {
			return err
		}
		persisted, err := a.deps.Store.Load(a.id, e.HandID())
		if err != nil {
			return err
		}
		s, err := e.Replay(persisted)
		if err != nil {
			a.logger.Error().Err(err).Str("hand_id", e.HandID()).Msg("Replay diverged")
			return err
		}
		out = sanitize.ForSpectator(s)
		return nil
	})
	return out, err
}

// Since returns the logged states of the current hand from index onwards as
// viewerID may see them.
func (a *Actor) Since(ctx context.Context, index int, viewerID string) ([]Frame, error) {
	var out []Frame
	err := a.do(ctx, func(context.Context) error {
		if a.engine == nil {
			return ErrNoHand
		}
		for _, entry := range a.engine.Log().Since(index) {
			out = append(out, Frame{Index: entry.Index, State: sanitize.ForViewer(entry.Post, viewerID)})
		}
		return nil
	})
	return out, err
}

// Close flushes the table's log, releases it and stops the actor. Later
// calls return nil.
func (a *Actor) Close(ctx context.Context) error {
	err := a.do(ctx, func(ctx context.Context) error {
		var errs []error
		if a.engine != nil {
			errs = append(errs, a.flush(ctx, a.engine), a.settlePending(ctx))
		}
		errs = append(errs, a.deps.Store.Release(a.id))
		return errors.Join(errs...)
	})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	a.once.Do(func() { close(a.stop) })
	<-a.done
	return err
}

func (a *Actor) options(r *rng.HandRNG, l *handlog.Log) engine.Options {
	return engine.Options{
		RNG:       r,
		Log:       l,
		Evaluator: a.deps.Evaluator,
		Wallet:    a.deps.Wallet,
		Currency:  a.cfg.Currency,
		Rake:      a.cfg.Rake,
		Logger:    a.logger,
	}
}
