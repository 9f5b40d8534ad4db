package hand

import "fmt"

// ActionKind is the tag of an Action. The set is closed; the machine switches
// over it exhaustively.
type ActionKind string

const (
	KindPostBlind ActionKind = "postBlind"
	KindBet       ActionKind = "bet"
	KindRaise     ActionKind = "raise"
	KindCall      ActionKind = "call"
	KindCheck     ActionKind = "check"
	KindFold      ActionKind = "fold"
	KindNext      ActionKind = "next"
)

// Valid reports whether k is one of the known kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case KindPostBlind, KindBet, KindRaise, KindCall, KindCheck, KindFold, KindNext:
		return true
	}
	return false
}

// Action is an immutable player or dealer instruction. Amount is only
// meaningful for postBlind, bet, raise and (optionally) call; Next carries no
// player.
type Action struct {
	Kind     ActionKind `json:"type"`
	PlayerID string     `json:"playerId,omitempty"`
	Amount   int64      `json:"amount,omitempty"`
}

func PostBlind(player string, amount int64) Action {
	return Action{Kind: KindPostBlind, PlayerID: player, Amount: amount}
}

func Bet(player string, amount int64) Action {
	return Action{Kind: KindBet, PlayerID: player, Amount: amount}
}

func Raise(player string, amount int64) Action {
	return Action{Kind: KindRaise, PlayerID: player, Amount: amount}
}

// Call commits whatever is owed; use CallAmount to assert the expected amount.
func Call(player string) Action { return Action{Kind: KindCall, PlayerID: player} }

func CallAmount(player string, amount int64) Action {
	return Action{Kind: KindCall, PlayerID: player, Amount: amount}
}

func Check(player string) Action { return Action{Kind: KindCheck, PlayerID: player} }

func Fold(player string) Action { return Action{Kind: KindFold, PlayerID: player} }

// Next advances the phase. It is issued by the dealer, not a player.
func Next() Action { return Action{Kind: KindNext} }

func (a Action) String() string {
	switch a.Kind {
	case KindNext:
		return "next"
	case KindCheck, KindFold:
		return fmt.Sprintf("%s %s", a.PlayerID, a.Kind)
	case KindCall:
		if a.Amount == 0 {
			return fmt.Sprintf("%s call", a.PlayerID)
		}
	}
	return fmt.Sprintf("%s %s %d", a.PlayerID, a.Kind, a.Amount)
}
