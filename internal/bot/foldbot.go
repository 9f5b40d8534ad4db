package bot

import (
	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/sanitize"
)

// FoldBot is a simple bot that always folds (or checks when possible)
type FoldBot struct{}

// NewFoldBot creates a new FoldBot instance
func NewFoldBot() *FoldBot {
	return &FoldBot{}
}

func (f *FoldBot) MakeDecision(_ sanitize.PublicState, validActions []ValidAction) Decision {
	// Always fold except when we can check
	if _, ok := hasAction(hand.KindCheck, validActions); ok {
		return Decision{Kind: hand.KindCheck, Reasoning: "fold-bot checking"}
	}
	return Decision{Kind: hand.KindFold, Reasoning: "fold-bot folding"}
}
