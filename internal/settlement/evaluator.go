package settlement

import (
	"fmt"

	"github.com/paulhankin/poker"

	"github.com/lox/handengine/internal/cards"
)

// PokerEvaluator scores seven-card hands with github.com/paulhankin/poker.
type PokerEvaluator struct{}

func (PokerEvaluator) Score(hole, board []cards.Card) (int, error) {
	if len(hole) != 2 || len(board) != 5 {
		return 0, fmt.Errorf("settlement: need 2 hole and 5 board cards, got %d and %d", len(hole), len(board))
	}

	var seven [7]poker.Card
	for i, c := range append(append(make([]cards.Card, 0, 7), hole...), board...) {
		pc, err := toPoker(c)
		if err != nil {
			return 0, err
		}
		seven[i] = pc
	}
	return int(poker.Eval7(&seven)), nil
}

// toPoker maps a card onto the library's encoding, where aces are rank 1.
func toPoker(c cards.Card) (poker.Card, error) {
	if !c.Valid() {
		var zero poker.Card
		return zero, fmt.Errorf("settlement: invalid card %d", c)
	}
	rank := int(c.Rank()) + 2
	if rank == 14 {
		rank = 1
	}
	return poker.MakeCard(poker.Suit(c.Suit()), poker.Rank(rank))
}
