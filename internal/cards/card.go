// Package cards defines the integer card encoding shared by the hand engine.
//
// A card is a value in 0..51 where rank = c/4 (0 is a deuce, 12 an ace) and
// suit = c%4 (clubs, diamonds, hearts, spades). The numeric form is what the
// shuffle permutes and what the hand log records.
package cards

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DeckSize is the number of distinct cards.
const DeckSize = 52

// Suit is a card suit.
type Suit uint8

const (
	Clubs Suit = iota
	Diamonds
	Hearts
	Spades
)

const suitChars = "cdhs"

// String returns the single-letter suit code.
func (s Suit) String() string {
	if int(s) < len(suitChars) {
		return string(suitChars[s])
	}
	return "?"
}

// Rank is a card rank, 0 for a deuce through 12 for an ace.
type Rank uint8

const (
	Two Rank = iota
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

const rankChars = "23456789TJQKA"

// String returns the single-character rank code.
func (r Rank) String() string {
	if int(r) < len(rankChars) {
		return string(rankChars[r])
	}
	return "?"
}

// Card is a playing card encoded as rank*4+suit.
type Card uint8

// New builds a card from rank and suit.
func New(r Rank, s Suit) Card {
	return Card(uint8(r)*4 + uint8(s))
}

// Rank returns the card rank.
func (c Card) Rank() Rank { return Rank(c / 4) }

// Suit returns the card suit.
func (c Card) Suit() Suit { return Suit(c % 4) }

// Valid reports whether c is inside the 52-card range.
func (c Card) Valid() bool { return c < DeckSize }

// String returns the two-character form, e.g. "Ah" or "Tc".
func (c Card) String() string {
	if !c.Valid() {
		return "??"
	}
	return c.Rank().String() + c.Suit().String()
}

// MarshalJSON keeps the numeric encoding on the wire.
func (c Card) MarshalJSON() ([]byte, error) {
	return json.Marshal(uint8(c))
}

// UnmarshalJSON rejects values outside the deck.
func (c *Card) UnmarshalJSON(data []byte) error {
	var v uint8
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("cards: %w", err)
	}
	if v >= DeckSize {
		return fmt.Errorf("cards: value %d out of range", v)
	}
	*c = Card(v)
	return nil
}

// Parse converts a two-character card such as "Qs" into a Card.
func Parse(s string) (Card, error) {
	if len(s) != 2 {
		return 0, fmt.Errorf("cards: invalid card %q", s)
	}
	r := strings.IndexByte(rankChars, strings.ToUpper(s[:1])[0])
	u := strings.IndexByte(suitChars, strings.ToLower(s[1:])[0])
	if r < 0 || u < 0 {
		return 0, fmt.Errorf("cards: invalid card %q", s)
	}
	return New(Rank(r), Suit(u)), nil
}

// MustParse is Parse for fixtures; it panics on malformed input.
func MustParse(cards ...string) []Card {
	out := make([]Card, 0, len(cards))
	for _, s := range cards {
		c, err := Parse(s)
		if err != nil {
			panic(err)
		}
		out = append(out, c)
	}
	return out
}

// Strings renders cards in their two-character form.
func Strings(cs []Card) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.String()
	}
	return out
}
