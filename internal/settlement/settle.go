// Package settlement resolves the pots of a hand at showdown and posts the
// resulting deltas to a wallet.
//
// Pots are split evenly among tied winners with integer division. Any odd
// chips go to the first winner in the pot's eligible order, which is seat
// order. Every result is checked for chip integrity before it is applied;
// a failed check is returned as ErrIntegrity and nothing is credited.
package settlement

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lox/handengine/internal/cards"
	"github.com/lox/handengine/internal/hand"
)

// ErrIntegrity marks a settlement that would break chip conservation. It is
// fatal for the hand.
var ErrIntegrity = errors.New("settlement: integrity violation")

// Evaluator scores the best five-card hand made from hole and board cards.
// Higher scores win; equal scores tie.
type Evaluator interface {
	Score(hole, board []cards.Card) (int, error)
}

// Award is the share of one pot paid to one player.
type Award struct {
	Pot      int    `json:"pot"`
	PlayerID string `json:"playerId"`
	Amount   int64  `json:"amount"`
}

// Result is the outcome of settling a hand.
type Result struct {
	Awards  []Award
	Stacks  map[string]int64
	Entries []hand.SettlementEntry
}

// Settler resolves showdowns with an Evaluator. It implements hand.Settler.
type Settler struct {
	eval   Evaluator
	logger zerolog.Logger
}

// New returns a Settler using eval to rank contested pots.
func New(eval Evaluator, logger zerolog.Logger) *Settler {
	return &Settler{
		eval:   eval,
		logger: logger.With().Str("component", "settlement").Logger(),
	}
}

// Settle resolves s and applies the result: stacks are credited, the pot is
// emptied and s.Settlements is filled in seat order. s is untouched on error.
func (st *Settler) Settle(s *hand.State) error {
	res, err := st.Resolve(*s)
	if err != nil {
		if errors.Is(err, ErrIntegrity) {
			st.logger.Error().Err(err).Str("hand_id", s.HandID).Msg("Refusing to settle hand")
		}
		return err
	}

	for i := range s.Players {
		s.Players[i].Stack = res.Stacks[s.Players[i].ID]
	}
	s.Pot = 0
	s.Settlements = res.Entries

	st.logger.Debug().
		Str("hand_id", s.HandID).
		Int("pots", len(s.SidePots)).
		Int("awards", len(res.Awards)).
		Msg("Hand settled")
	return nil
}

// Resolve computes the settlement of s without modifying it.
func (st *Settler) Resolve(s hand.State) (Result, error) {
	if err := checkPots(s); err != nil {
		return Result{}, err
	}

	stacks := make(map[string]int64, len(s.Players))
	folded := make(map[string]bool, len(s.Players))
	for _, p := range s.Players {
		stacks[p.ID] = p.Stack
		folded[p.ID] = p.Folded
	}

	var awards []Award
	scores := make(map[string]int)
	for i, pot := range s.SidePots {
		var contenders []string
		for _, id := range pot.Eligible {
			if _, ok := stacks[id]; !ok {
				return Result{}, fmt.Errorf("%w: pot %d names unknown player %q", ErrIntegrity, i, id)
			}
			if !folded[id] {
				contenders = append(contenders, id)
			}
		}
		if len(contenders) == 0 {
			return Result{}, fmt.Errorf("%w: pot %d of %d has no eligible players", ErrIntegrity, i, pot.Amount)
		}

		winners, err := st.winners(s, contenders, scores)
		if err != nil {
			return Result{}, err
		}
		for _, a := range splitPot(i, pot.Amount, winners) {
			stacks[a.PlayerID] += a.Amount
			awards = append(awards, a)
		}
	}

	res := Result{Awards: awards, Stacks: stacks}
	var sum int64
	for _, p := range s.Players {
		delta := stacks[p.ID] - p.Initial
		sum += delta
		res.Entries = append(res.Entries, hand.SettlementEntry{PlayerID: p.ID, Delta: delta})
	}
	if sum != 0 {
		return Result{}, fmt.Errorf("%w: deltas sum to %d", ErrIntegrity, sum)
	}
	return res, nil
}

// winners returns the best scoring contenders in the order given. A lone
// contender wins without a showdown.
func (st *Settler) winners(s hand.State, contenders []string, scores map[string]int) ([]string, error) {
	if len(contenders) == 1 {
		return contenders, nil
	}
	if st.eval == nil {
		return nil, errors.New("settlement: contested pot without an evaluator")
	}

	best := 0
	var winners []string
	for _, id := range contenders {
		score, ok := scores[id]
		if !ok {
			p := s.Players[s.Player(id)]
			var err error
			score, err = st.eval.Score(p.HoleCards, s.CommunityCards)
			if err != nil {
				return nil, fmt.Errorf("settlement: score %s: %w", id, err)
			}
			scores[id] = score
		}
		switch {
		case len(winners) == 0 || score > best:
			best = score
			winners = []string{id}
		case score == best:
			winners = append(winners, id)
		}
	}
	return winners, nil
}

// splitPot divides amount evenly; the first winner takes the remainder.
func splitPot(pot int, amount int64, winners []string) []Award {
	share := amount / int64(len(winners))
	remainder := amount % int64(len(winners))

	awards := make([]Award, 0, len(winners))
	for i, id := range winners {
		a := Award{Pot: pot, PlayerID: id, Amount: share}
		if i == 0 {
			a.Amount += remainder
		}
		awards = append(awards, a)
	}
	return awards
}

// checkPots verifies the pots account for every committed chip.
func checkPots(s hand.State) error {
	if total := hand.PotTotal(s.SidePots); total != s.Pot {
		return fmt.Errorf("%w: pots hold %d, pot is %d", ErrIntegrity, total, s.Pot)
	}

	perPlayer := make(map[string]int64, len(s.Players))
	for i, pot := range s.SidePots {
		var sum int64
		for id, c := range pot.Contributions {
			sum += c
			perPlayer[id] += c
		}
		if sum != pot.Amount {
			return fmt.Errorf("%w: pot %d contributions sum to %d, amount is %d", ErrIntegrity, i, sum, pot.Amount)
		}
	}
	for _, p := range s.Players {
		if perPlayer[p.ID] != p.Committed {
			return fmt.Errorf("%w: %s contributed %d to pots, committed %d", ErrIntegrity, p.ID, perPlayer[p.ID], p.Committed)
		}
	}
	return nil
}
