package hand

import (
	"slices"
	"testing"

	"github.com/lox/handengine/internal/cards"
)

// orderedShuffler leaves the deck in ascending order, so the first hole card
// dealt is the ace of spades.
type orderedShuffler struct{}

func (orderedShuffler) Shuffle(deck []cards.Card) []cards.Card { return slices.Clone(deck) }

func (orderedShuffler) Reshuffle(deck []cards.Card, _ int) []cards.Card { return slices.Clone(deck) }

// shortShuffler hands out a truncated deck so the shoe runs dry on the flop.
type shortShuffler struct {
	keep    int
	reshoes []int
}

func (s *shortShuffler) Shuffle(deck []cards.Card) []cards.Card {
	return slices.Clone(deck[:s.keep])
}

func (s *shortShuffler) Reshuffle(deck []cards.Card, round int) []cards.Card {
	s.reshoes = append(s.reshoes, round)
	return slices.Clone(deck)
}

// firstEligible awards every pot to its first eligible player.
type firstEligible struct{}

func (firstEligible) Settle(s *State) error {
	for _, pot := range s.SidePots {
		s.Players[s.Player(pot.Eligible[0])].Stack += pot.Amount
	}
	s.Pot = 0
	s.Settlements = s.Settlements[:0]
	for _, p := range s.Players {
		s.Settlements = append(s.Settlements, SettlementEntry{PlayerID: p.ID, Delta: p.Stack - p.Initial})
	}
	return nil
}

func headsUp(t *testing.T) *Machine {
	t.Helper()
	m, err := NewMachine(Config{
		HandID: "hand-1",
		Seats:  []Seat{{ID: "A", Stack: 100}, {ID: "B", Stack: 100}},
	}, orderedShuffler{}, firstEligible{})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	return m
}

func mustApply(t *testing.T, m *Machine, actions ...Action) State {
	t.Helper()
	var s State
	for _, a := range actions {
		var err error
		s, err = m.Apply(a)
		if err != nil {
			t.Fatalf("apply %s: %v", a, err)
		}
	}
	return s
}
