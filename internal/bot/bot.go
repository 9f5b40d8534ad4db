// Package bot holds simple seat policies and a dealer that drives hands
// through a table. The soak harness uses them to generate traffic.
package bot

import (
	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/sanitize"
)

// ValidAction is an action a seat may take, with the amount range for
// wagers. Min equals Max for a call.
type ValidAction struct {
	Kind hand.ActionKind
	Min  int64
	Max  int64
}

// Decision is what a bot wants to do.
type Decision struct {
	Kind      hand.ActionKind
	Amount    int64
	Reasoning string
}

// Bot picks an action from what its seat is allowed to see.
type Bot interface {
	MakeDecision(view sanitize.PublicState, validActions []ValidAction) Decision
}

// Limits are the table caps that shape the wager range.
type Limits struct {
	// BigBlind is the minimum raise increment; 0 allows raises of one chip.
	BigBlind int64
	// MaxBet caps a single bet or raise; 0 disables the cap.
	MaxBet int64
}

// ValidActions lists what playerID may do in view. It is empty outside a
// betting round and for folded or all-in seats.
func ValidActions(view sanitize.PublicState, playerID string, limits Limits) []ValidAction {
	if view.Phase != hand.PhaseBettingRound {
		return nil
	}
	var p *sanitize.PublicPlayer
	for i := range view.Players {
		if view.Players[i].ID == playerID {
			p = &view.Players[i]
			break
		}
	}
	if p == nil || p.Folded || p.AllIn {
		return nil
	}

	actions := []ValidAction{{Kind: hand.KindFold}}
	owed := view.CurrentBet - p.Bet
	if owed <= 0 {
		actions = append(actions, ValidAction{Kind: hand.KindCheck})
	} else {
		call := min(owed, p.Stack)
		actions = append(actions, ValidAction{Kind: hand.KindCall, Min: call, Max: call})
	}

	if p.Stack > max(owed, 0) {
		lo := min(max(owed, 0)+max(limits.BigBlind, 1), p.Stack)
		hi := p.Stack
		if limits.MaxBet > 0 {
			hi = min(hi, limits.MaxBet)
		}
		if lo <= hi {
			kind := hand.KindBet
			if view.CurrentBet > 0 {
				kind = hand.KindRaise
			}
			actions = append(actions, ValidAction{Kind: kind, Min: lo, Max: hi})
		}
	}
	return actions
}

func hasAction(kind hand.ActionKind, validActions []ValidAction) (ValidAction, bool) {
	for _, va := range validActions {
		if va.Kind == kind {
			return va, true
		}
	}
	return ValidAction{}, false
}
