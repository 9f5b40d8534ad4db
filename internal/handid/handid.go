// Package handid generates hand identifiers: a UUIDv7 written as 26
// lower-case base32 characters. Ids sort lexicographically by creation time,
// which the hand log store relies on to find a table's latest hand.
package handid

import (
	"encoding/base32"
	"fmt"
	"io"

	"github.com/google/uuid"
)

const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length is the length of every hand id.
const Length = 26

var encoding = base32.NewEncoding(alphabet).WithPadding(base32.NoPadding)

// Generator mints hand ids. The zero value uses crypto/rand.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a generator drawing random bits from r. A nil r uses
// crypto/rand; tests pass a deterministic reader.
func NewGenerator(r io.Reader) *Generator {
	return &Generator{rand: r}
}

// New returns a fresh hand id.
func New() string {
	id, err := (&Generator{}).Next()
	if err != nil {
		panic("handid: " + err.Error())
	}
	return id
}

// Next returns the next hand id.
func (g *Generator) Next() (string, error) {
	var (
		u   uuid.UUID
		err error
	)
	if g.rand != nil {
		u, err = uuid.NewV7FromReader(g.rand)
	} else {
		u, err = uuid.NewV7()
	}
	if err != nil {
		return "", err
	}
	return Encode(u), nil
}

// Encode writes u in the hand id alphabet.
func Encode(u uuid.UUID) string {
	return encoding.EncodeToString(u[:])
}

// Parse decodes a hand id back into its UUID.
func Parse(id string) (uuid.UUID, error) {
	if len(id) != Length {
		return uuid.Nil, fmt.Errorf("handid: must be %d characters, got %d", Length, len(id))
	}
	raw, err := encoding.DecodeString(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("handid: %w", err)
	}
	u, err := uuid.FromBytes(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("handid: %w", err)
	}
	if u.Version() != 7 {
		return uuid.Nil, fmt.Errorf("handid: version %d, want 7", u.Version())
	}
	return u, nil
}

// Validate reports whether id is a well-formed hand id.
func Validate(id string) error {
	_, err := Parse(id)
	return err
}
