package rng

import (
	"fmt"

	"github.com/lox/handengine/internal/cards"
)

// Mismatch describes one divergence between the recomputed deal and what was
// recorded.
type Mismatch struct {
	Index    int        // position in the recomputed deck
	Player   string     // empty for board and deck positions
	Expected cards.Card
	Got      cards.Card
}

func (m Mismatch) String() string {
	if m.Player != "" {
		return fmt.Sprintf("deck[%d] player %s: expected %s (%d), got %s (%d)",
			m.Index, m.Player, m.Expected, m.Expected, m.Got, m.Got)
	}
	return fmt.Sprintf("deck[%d]: expected %s (%d), got %s (%d)",
		m.Index, m.Expected, m.Expected, m.Got, m.Got)
}

// Seat is the dealt hole cards of one player in seat order.
type Seat struct {
	Player    string
	HoleCards []cards.Card
}

// VerifyDeal recomputes the deck from a revealed proof and compares it with
// the hole cards (dealt two at a time from the end of the deck, seat order)
// and the undealt deck slice recorded right after the deal. A nil remaining
// slice skips the deck comparison.
func VerifyDeal(p Proof, seats []Seat, remaining []cards.Card) ([]Mismatch, error) {
	deck, err := RevealDeck(p)
	if err != nil {
		return nil, err
	}

	var out []Mismatch
	top := len(deck)
	for _, s := range seats {
		for k := 0; k < 2; k++ {
			top--
			if top < 0 {
				return out, fmt.Errorf("rng: %d seats exhaust the deck", len(seats))
			}
			var got cards.Card = 255
			if k < len(s.HoleCards) {
				got = s.HoleCards[k]
			}
			if got != deck[top] {
				out = append(out, Mismatch{Index: top, Player: s.Player, Expected: deck[top], Got: got})
			}
		}
	}

	if remaining == nil {
		return out, nil
	}
	if len(remaining) != top {
		return out, fmt.Errorf("rng: recorded deck has %d cards, expected %d", len(remaining), top)
	}
	for i := range top {
		if remaining[i] != deck[i] {
			out = append(out, Mismatch{Index: i, Expected: deck[i], Got: remaining[i]})
		}
	}
	return out, nil
}
