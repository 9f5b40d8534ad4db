package table

import (
	"context"
	"errors"

	"github.com/lox/handengine/internal/engine"
	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/handlog"
	"github.com/lox/handengine/internal/rng"
)

// recover rebuilds the table's latest hand from its log and the vault. A
// hand without a secret finished cleanly and is only loaded for reads.
func (a *Actor) recover(ctx context.Context) error {
	return a.do(ctx, func(ctx context.Context) error {
		handID, err := a.deps.Store.Latest(a.id)
		if errors.Is(err, handlog.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		seed, nonce, err := a.deps.Store.LoadSecret(a.id, handID)
		if errors.Is(err, handlog.ErrNotFound) {
			l, err := a.deps.Store.Load(a.id, handID)
			if err != nil {
				return err
			}
			if last, ok := l.Last(); ok {
				s := last.Post
				a.snapshot.Store(&s)
			}
			return nil
		}
		if err != nil {
			return err
		}
		r, err := rng.FromSeed(seed, nonce)
		if err != nil {
			return err
		}

		l, err := a.deps.Store.Open(a.id, handID)
		if err != nil {
			return err
		}
		logger := a.logger.With().Str("hand_id", handID).Logger()
		if l.Len() == 0 {
			return a.abandon(ctx, l, r)
		}

		cfg, err := engine.ConfigFromLog(l, hand.Config{BigBlind: a.cfg.BigBlind, MaxBet: a.cfg.MaxBet})
		if err != nil {
			return err
		}
		e, err := engine.Resume(cfg, l, a.options(r, l))
		if err != nil {
			logger.Error().Err(err).Msg("Hand recovery failed")
			return err
		}
		if err := a.flush(ctx, e); err != nil {
			return err
		}

		a.engine = e
		s := e.State()
		a.snapshot.Store(&s)
		logger.Info().Int("entries", l.Len()).Str("phase", string(s.Phase)).Msg("Recovered hand from log")

		if e.Done() {
			a.pendingPost = true
			if err := a.settlePending(ctx); err != nil {
				logger.Warn().Err(err).Msg("Recovered hand still awaits wallet posting")
			}
		}
		return nil
	})
}

// abandon seals a hand that crashed before its first action. No chips
// moved, so the proof is published and the secret dropped.
func (a *Actor) abandon(ctx context.Context, l *handlog.Log, r *rng.HandRNG) error {
	if l.Commitment() != "" && !l.Sealed() {
		if err := l.RecordProof(r.Reveal()); err != nil {
			return err
		}
		if err := l.Flush(ctx); err != nil {
			return err
		}
	}
	if err := a.deps.Store.Release(a.id); err != nil {
		return err
	}
	a.logger.Info().Str("hand_id", l.HandID()).Msg("Sealed hand abandoned before its first action")
	return a.deps.Store.DropSecret(a.id, l.HandID())
}
