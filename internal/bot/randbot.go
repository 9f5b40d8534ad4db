package bot

import (
	rand "math/rand/v2"

	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/sanitize"
)

// RandBot is a simple bot that makes uniform random legal actions
type RandBot struct {
	rng *rand.Rand
}

// NewRandBot creates a new RandBot instance
func NewRandBot(rng *rand.Rand) *RandBot {
	return &RandBot{rng: rng}
}

func (r *RandBot) MakeDecision(_ sanitize.PublicState, validActions []ValidAction) Decision {
	if len(validActions) == 0 {
		return Decision{Kind: hand.KindFold, Reasoning: "rand-bot no valid actions"}
	}

	// Pick random valid action
	va := validActions[r.rng.IntN(len(validActions))]

	// For wagers, pick random amount between min and max
	amount := va.Min
	if va.Max > va.Min {
		amount = va.Min + r.rng.Int64N(va.Max-va.Min+1)
	}

	return Decision{Kind: va.Kind, Amount: amount, Reasoning: "rand-bot random action"}
}
