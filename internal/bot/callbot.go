package bot

import (
	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/sanitize"
)

// CallBot checks or calls every street and never raises.
type CallBot struct{}

// NewCallBot creates a new CallBot instance
func NewCallBot() *CallBot {
	return &CallBot{}
}

func (c *CallBot) MakeDecision(_ sanitize.PublicState, validActions []ValidAction) Decision {
	if _, ok := hasAction(hand.KindCheck, validActions); ok {
		return Decision{Kind: hand.KindCheck, Reasoning: "call-bot checking"}
	}
	if va, ok := hasAction(hand.KindCall, validActions); ok {
		return Decision{Kind: hand.KindCall, Amount: va.Min, Reasoning: "call-bot calling"}
	}

	// Fallback to fold
	return Decision{Kind: hand.KindFold, Reasoning: "call-bot forced fold"}
}
