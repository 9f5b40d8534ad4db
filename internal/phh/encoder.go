package phh

import (
	"bytes"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"

	"github.com/lox/handengine/internal/hand"
)

// Encode writes the hand history to the provided writer in PHH TOML format.
func Encode(w io.Writer, h *HandHistory) error {
	if h == nil {
		return fmt.Errorf("phh: hand history is nil")
	}

	enc := toml.NewEncoder(w)
	// Use tabs for arrays to match human expectations
	enc.Indent = "\t"
	return enc.Encode(h)
}

// EncodeToBytes encodes and returns the result as bytes.
func EncodeToBytes(h *HandHistory) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, h); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FormatAction converts an engine action to a PHH action string. streetBet
// is the player's total wager on the street after the action. Blind posts
// and phase advances are not player actions in PHH and report false.
func FormatAction(seat int, a hand.Action, streetBet int64) (string, bool) {
	player := fmt.Sprintf("p%d", seat+1)
	switch a.Kind {
	case hand.KindFold:
		return player + " f", true
	case hand.KindCheck, hand.KindCall:
		return player + " cc", true
	case hand.KindBet, hand.KindRaise:
		if streetBet <= 0 {
			return "", false
		}
		return fmt.Sprintf("%s cbr %d", player, streetBet), true
	case hand.KindPostBlind, hand.KindNext:
		return "", false
	default:
		return fmt.Sprintf("# %s %s %d", player, a.Kind, a.Amount), true
	}
}
