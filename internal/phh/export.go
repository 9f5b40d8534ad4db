package phh

import (
	"fmt"
	"strings"
	"time"

	"github.com/lox/handengine/internal/cards"
	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/handlog"
)

// FromLog builds the hand history of a logged hand. Hole cards are dealt
// face up, so an export of an unrevealed hand must not leave the operator.
func FromLog(l *handlog.Log, tableID string, ts time.Time) (*HandHistory, error) {
	entries := l.All()
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: hand %s has no actions", handlog.ErrNotFound, l.HandID())
	}
	first, last := entries[0].Pre, entries[len(entries)-1].Post

	n := len(first.Players)
	h := &HandHistory{
		Variant:           "NT",
		Table:             tableID,
		SeatCount:         n,
		Seats:             make([]int, n),
		Antes:             make([]int64, n),
		BlindsOrStraddles: make([]int64, n),
		StartingStacks:    make([]int64, n),
		FinishingStacks:   make([]int64, n),
		Winnings:          make([]int64, n),
		Players:           make([]string, n),
		HandID:            l.HandID(),
		Timestamp:         ts,
	}
	for i, p := range first.Players {
		h.Seats[i] = i + 1
		h.Players[i] = p.ID
		h.StartingStacks[i] = p.Initial
	}
	for i, p := range last.Players {
		h.FinishingStacks[i] = p.Stack
		if won := p.Stack - p.Initial + p.Committed; last.Done() && won > 0 {
			h.Winnings[i] = won
		}
	}

	for _, e := range entries {
		seat := e.Pre.Player(e.Action.PlayerID)
		switch {
		case e.Action.Kind == hand.KindPostBlind && seat >= 0:
			h.BlindsOrStraddles[seat] += e.Action.Amount
			h.MinBet = max(h.MinBet, h.BlindsOrStraddles[seat])
		case seat >= 0:
			if action, ok := FormatAction(seat, e.Action, e.Post.Players[seat].Bet); ok {
				h.Actions = append(h.Actions, action)
			}
		}

		if e.Pre.Phase == hand.PhaseWaitBlinds && e.Post.Phase == hand.PhaseDeal {
			for i, p := range e.Post.Players {
				h.Actions = append(h.Actions, fmt.Sprintf("d dh p%d %s", i+1, join(p.HoleCards)))
			}
		}
		if dealt := len(e.Post.CommunityCards) - len(e.Pre.CommunityCards); dealt > 0 {
			h.Actions = append(h.Actions, "d db "+join(e.Post.CommunityCards[len(e.Pre.CommunityCards):]))
		}
		if e.Pre.Phase != hand.PhaseShowdown && e.Post.Phase == hand.PhaseShowdown && e.Post.Live() > 1 {
			for i, p := range e.Post.Players {
				if !p.Folded {
					h.Actions = append(h.Actions, fmt.Sprintf("p%d sm %s", i+1, join(p.HoleCards)))
				}
			}
		}
	}

	if proof, ok := l.Proof(); ok {
		h.Metadata = map[string]any{
			"commitment": proof.Commitment,
			"seed":       proof.Seed,
			"nonce":      proof.Nonce,
		}
	} else if c := l.Commitment(); c != "" {
		h.Metadata = map[string]any{"commitment": c}
	}

	if !ts.IsZero() {
		utc := ts.UTC()
		h.Time = utc.Format("15:04:05")
		h.TimeZone = "UTC"
		h.Day = utc.Day()
		h.Month = int(utc.Month())
		h.Year = utc.Year()
	}
	return h, nil
}

func join(cs []cards.Card) string {
	var b strings.Builder
	for _, c := range cs {
		b.WriteString(c.String())
	}
	return b.String()
}
