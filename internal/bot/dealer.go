package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/sanitize"
)

// maxRaisesPerRound bounds a betting round so random bots always finish it.
const maxRaisesPerRound = 3

// Table is the part of a table actor the dealer drives.
type Table interface {
	StartHand(ctx context.Context, seats []hand.Seat) (sanitize.PublicState, error)
	State() (hand.State, bool)
	PublicState(viewerID string) (sanitize.PublicState, bool)
	Apply(ctx context.Context, action hand.Action) (sanitize.PublicState, error)
}

// Stats counts what a dealer has done.
type Stats struct {
	Hands    int
	Actions  int
	Rejected int
}

// Dealer posts blinds, asks each seat's bot for a decision in seat order and
// advances streets until the hand settles. Bots only ever see their seat's
// sanitized view.
type Dealer struct {
	table  Table
	bots   map[string]Bot
	limits Limits
	logger zerolog.Logger
	stats  Stats
}

// NewDealer creates a dealer for table. bots is keyed by player id.
func NewDealer(table Table, bots map[string]Bot, limits Limits, logger zerolog.Logger) *Dealer {
	return &Dealer{
		table:  table,
		bots:   bots,
		limits: limits,
		logger: logger.With().Str("component", "dealer").Logger(),
	}
}

// Stats returns the running totals.
func (d *Dealer) Stats() Stats { return d.stats }

// PlayHand starts a hand with seats and plays it to settlement. The first
// seat posts smallBlind and every other seat bigBlind, capped at its stack.
func (d *Dealer) PlayHand(ctx context.Context, seats []hand.Seat, smallBlind, bigBlind int64) (hand.State, error) {
	if _, err := d.table.StartHand(ctx, seats); err != nil {
		return hand.State{}, err
	}
	for i, seat := range seats {
		amount := bigBlind
		if i == 0 {
			amount = smallBlind
		}
		if err := d.apply(ctx, hand.PostBlind(seat.ID, min(amount, seat.Stack))); err != nil {
			return hand.State{}, err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return hand.State{}, err
		}
		s, ok := d.table.State()
		if !ok {
			return hand.State{}, errors.New("bot: table has no state")
		}
		switch s.Phase {
		case hand.PhaseSettle:
			d.stats.Hands++
			return s, nil
		case hand.PhaseDeal, hand.PhaseShowdown:
			if err := d.apply(ctx, hand.Next()); err != nil {
				return s, err
			}
		case hand.PhaseBettingRound:
			if err := d.bettingRound(ctx); err != nil {
				return s, err
			}
		default:
			return s, fmt.Errorf("bot: hand %s stuck in %s", s.HandID, s.Phase)
		}
	}
}

func (d *Dealer) bettingRound(ctx context.Context) error {
	raises := 0
	acted := make(map[string]bool)
	for {
		s, _ := d.table.State()
		if s.Phase != hand.PhaseBettingRound {
			return nil
		}
		playerID := nextToAct(s, acted)
		if playerID == "" {
			return d.apply(ctx, hand.Next())
		}

		view, _ := d.table.PublicState(playerID)
		valid := ValidActions(view, playerID, d.limits)
		if raises >= maxRaisesPerRound {
			valid = withoutWagers(valid)
		}
		a := d.decide(playerID, view, valid)

		_, err := d.table.Apply(ctx, a)
		if errors.Is(err, hand.ErrInvalidAction) {
			d.stats.Rejected++
			d.logger.Debug().Err(err).Str("player", playerID).Msg("Bot action rejected, falling back")
			a = fallback(playerID, valid)
			_, err = d.table.Apply(ctx, a)
		}
		if err != nil {
			return err
		}
		d.stats.Actions++

		acted[playerID] = true
		if a.Kind == hand.KindBet || a.Kind == hand.KindRaise {
			raises++
			clear(acted)
			acted[playerID] = true
		}
	}
}

func (d *Dealer) decide(playerID string, view sanitize.PublicState, valid []ValidAction) hand.Action {
	b, ok := d.bots[playerID]
	if !ok {
		b = NewCallBot()
	}
	dec := b.MakeDecision(view, valid)
	a := hand.Action{Kind: dec.Kind, PlayerID: playerID}
	if dec.Kind == hand.KindBet || dec.Kind == hand.KindRaise {
		a.Amount = dec.Amount
	}
	return a
}

func (d *Dealer) apply(ctx context.Context, a hand.Action) error {
	if _, err := d.table.Apply(ctx, a); err != nil {
		return fmt.Errorf("bot: %s: %w", a, err)
	}
	d.stats.Actions++
	return nil
}

// nextToAct is the first seat that can act and has either not acted since
// the last wager or still owes chips.
func nextToAct(s hand.State, acted map[string]bool) string {
	for _, p := range s.Players {
		if p.Folded || p.AllIn {
			continue
		}
		if !acted[p.ID] || p.Bet < s.CurrentBet {
			return p.ID
		}
	}
	return ""
}

func withoutWagers(valid []ValidAction) []ValidAction {
	out := make([]ValidAction, 0, len(valid))
	for _, va := range valid {
		if va.Kind != hand.KindBet && va.Kind != hand.KindRaise {
			out = append(out, va)
		}
	}
	return out
}

func fallback(playerID string, valid []ValidAction) hand.Action {
	if _, ok := hasAction(hand.KindCheck, valid); ok {
		return hand.Check(playerID)
	}
	if _, ok := hasAction(hand.KindCall, valid); ok {
		return hand.Call(playerID)
	}
	return hand.Fold(playerID)
}
