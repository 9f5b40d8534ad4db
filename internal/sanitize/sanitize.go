// Package sanitize projects internal hand state into what a given viewer is
// allowed to see. Every state that leaves the engine goes through here.
package sanitize

import (
	"maps"
	"slices"

	"github.com/lox/handengine/internal/cards"
	"github.com/lox/handengine/internal/hand"
)

// PublicPlayer is a seat as seen by a viewer. HoleCards is only ever set for
// the viewer's own seat.
type PublicPlayer struct {
	ID        string       `json:"id"`
	Stack     int64        `json:"stack"`
	Bet       int64        `json:"bet"`
	Committed int64        `json:"committed"`
	Folded    bool         `json:"folded"`
	AllIn     bool         `json:"allIn"`
	HoleCards []cards.Card `json:"holeCards,omitempty"`
}

// PublicState has no field for the deck, so it cannot leak one.
type PublicState struct {
	HandID         string                 `json:"handId"`
	Phase          hand.Phase             `json:"phase"`
	Street         hand.Street            `json:"street"`
	Pot            int64                  `json:"pot"`
	SidePots       []hand.SidePot         `json:"sidePots"`
	CurrentBet     int64                  `json:"currentBet"`
	Players        []PublicPlayer         `json:"players"`
	CommunityCards []cards.Card           `json:"communityCards"`
	Settlements    []hand.SettlementEntry `json:"settlements,omitempty"`
	// Viewer is the player the projection was made for; empty for spectators.
	Viewer string `json:"viewer,omitempty"`
}

// ForViewer returns the projection of s for viewerID. An empty viewerID is
// a spectator.
func ForViewer(s hand.State, viewerID string) PublicState {
	out := PublicState{
		HandID:         s.HandID,
		Phase:          s.Phase,
		Street:         s.Street,
		Pot:            s.Pot,
		CurrentBet:     s.CurrentBet,
		CommunityCards: slices.Clone(s.CommunityCards),
		Settlements:    slices.Clone(s.Settlements),
		Viewer:         viewerID,
		Players:        make([]PublicPlayer, len(s.Players)),
	}
	if s.SidePots != nil {
		out.SidePots = make([]hand.SidePot, len(s.SidePots))
		for i, p := range s.SidePots {
			out.SidePots[i] = hand.SidePot{Amount: p.Amount, Eligible: slices.Clone(p.Eligible), Contributions: maps.Clone(p.Contributions)}
		}
	}

	for i, p := range s.Players {
		pp := PublicPlayer{
			ID:        p.ID,
			Stack:     p.Stack,
			Bet:       p.Bet,
			Committed: p.Committed,
			Folded:    p.Folded,
			AllIn:     p.AllIn,
		}
		if viewerID != "" && p.ID == viewerID && wellFormed(p.HoleCards) {
			pp.HoleCards = slices.Clone(p.HoleCards)
		}
		out.Players[i] = pp
	}
	return out
}

// ForSpectator returns the anonymous projection of s.
func ForSpectator(s hand.State) PublicState {
	return ForViewer(s, "")
}

func wellFormed(hole []cards.Card) bool {
	return len(hole) == 2 && hole[0].Valid() && hole[1].Valid() && hole[0] != hole[1]
}
