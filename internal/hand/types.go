package hand

import (
	"maps"
	"slices"

	"github.com/lox/handengine/internal/cards"
)

// Phase is the coarse state of a hand.
type Phase string

const (
	PhaseWaitBlinds   Phase = "WAIT_BLINDS"
	PhaseDeal         Phase = "DEAL"
	PhaseBettingRound Phase = "BETTING_ROUND"
	PhaseShowdown     Phase = "SHOWDOWN"
	PhaseSettle       Phase = "SETTLE"
)

// Street is the betting round the hand is on.
type Street string

const (
	Preflop  Street = "preflop"
	Flop     Street = "flop"
	Turn     Street = "turn"
	River    Street = "river"
	Showdown Street = "showdown"
)

// next returns the street that follows s.
func (s Street) next() Street {
	switch s {
	case Preflop:
		return Flop
	case Flop:
		return Turn
	case Turn:
		return River
	default:
		return Showdown
	}
}

// boardCards is how many community cards are revealed when entering s.
func (s Street) boardCards() int {
	switch s {
	case Flop:
		return 3
	case Turn, River:
		return 1
	default:
		return 0
	}
}

// Player is one seat in the hand. Amounts are integer minor currency units.
type Player struct {
	ID        string       `json:"id"`
	Stack     int64        `json:"stack"`
	Bet       int64        `json:"bet"`
	Committed int64        `json:"committed"`
	Initial   int64        `json:"initial"`
	Folded    bool         `json:"folded"`
	AllIn     bool         `json:"allIn"`
	Posted    bool         `json:"posted"`
	HoleCards []cards.Card `json:"holeCards,omitempty"`
}

// SidePot is one layer of the pot with the players who may win it and what
// each player put into it.
type SidePot struct {
	Amount        int64            `json:"amount"`
	Eligible      []string         `json:"eligible"`
	Contributions map[string]int64 `json:"contributions"`
}

// SettlementEntry is a player's net result for the hand.
type SettlementEntry struct {
	PlayerID string `json:"playerId"`
	Delta    int64  `json:"delta"`
}

// State is the full internal state of a hand, including the undealt deck. It
// must pass through the sanitizer before leaving the engine.
type State struct {
	HandID         string            `json:"handId"`
	Phase          Phase             `json:"phase"`
	Street         Street            `json:"street"`
	Pot            int64             `json:"pot"`
	SidePots       []SidePot         `json:"sidePots"`
	CurrentBet     int64             `json:"currentBet"`
	Players        []Player          `json:"players"`
	Deck           []cards.Card      `json:"deck"`
	CommunityCards []cards.Card      `json:"communityCards"`
	Settlements    []SettlementEntry `json:"settlements,omitempty"`
	Reshuffles     int               `json:"reshuffles,omitempty"`
}

// Clone returns a deep copy sharing no slices or maps with s.
func (s State) Clone() State {
	out := s
	if s.SidePots != nil {
		out.SidePots = make([]SidePot, len(s.SidePots))
	}
	for i, p := range s.SidePots {
		out.SidePots[i] = SidePot{
			Amount:        p.Amount,
			Eligible:      slices.Clone(p.Eligible),
			Contributions: maps.Clone(p.Contributions),
		}
	}
	if s.Players != nil {
		out.Players = make([]Player, len(s.Players))
	}
	for i, p := range s.Players {
		p.HoleCards = slices.Clone(p.HoleCards)
		out.Players[i] = p
	}
	out.Deck = slices.Clone(s.Deck)
	out.CommunityCards = slices.Clone(s.CommunityCards)
	out.Settlements = slices.Clone(s.Settlements)
	return out
}

// Player returns the index of the player with id, or -1.
func (s *State) Player(id string) int {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return i
		}
	}
	return -1
}

// Live returns how many players have not folded.
func (s *State) Live() int {
	n := 0
	for _, p := range s.Players {
		if !p.Folded {
			n++
		}
	}
	return n
}

// Chips returns Pot plus every stack, the conserved quantity.
func (s *State) Chips() int64 {
	total := s.Pot
	for _, p := range s.Players {
		total += p.Stack
	}
	return total
}

// Done reports whether the hand reached its terminal phase.
func (s *State) Done() bool { return s.Phase == PhaseSettle }
