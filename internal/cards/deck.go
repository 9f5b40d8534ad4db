package cards

// Standard returns the 52 cards in ascending numeric order. Shuffles always
// start from this order so a seed maps to exactly one permutation.
func Standard() []Card {
	deck := make([]Card, DeckSize)
	for i := range deck {
		deck[i] = Card(i)
	}
	return deck
}

// Without returns the standard deck minus the excluded cards, preserving
// ascending order.
func Without(excluded ...[]Card) []Card {
	var used [DeckSize]bool
	for _, set := range excluded {
		for _, c := range set {
			if c.Valid() {
				used[c] = true
			}
		}
	}
	out := make([]Card, 0, DeckSize)
	for i := range DeckSize {
		if !used[i] {
			out = append(out, Card(i))
		}
	}
	return out
}

// Duplicates reports the first card appearing more than once across the sets.
func Duplicates(sets ...[]Card) (Card, bool) {
	var seen [DeckSize]bool
	for _, set := range sets {
		for _, c := range set {
			if !c.Valid() {
				continue
			}
			if seen[c] {
				return c, true
			}
			seen[c] = true
		}
	}
	return 0, false
}
