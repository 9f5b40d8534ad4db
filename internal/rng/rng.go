// Package rng implements the per-hand commit-reveal shuffle.
//
// A hand draws a secret seed and nonce, publishes SHA-256(seed||nonce) before
// any card is dealt, and reveals both after settlement. The shuffle is a pure
// function of the seed so any third party can recompute the dealt order.
package rng

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/lox/handengine/internal/cards"
)

const (
	// SeedSize is the number of secret seed bytes drawn per hand.
	SeedSize = 32
	// NonceSize is the number of nonce bytes mixed into the commitment.
	NonceSize = 16
)

var (
	// ErrCommitmentMismatch signals that a revealed seed/nonce does not hash to
	// the published commitment. It is an integrity failure, not a retryable one.
	ErrCommitmentMismatch = errors.New("rng: commitment mismatch")
	// ErrMalformedProof is returned when proof fields are not valid hex of the
	// expected length.
	ErrMalformedProof = errors.New("rng: malformed proof")
)

// Proof is the public record of one hand's randomness. Seed and Nonce stay
// empty until the hand is revealed.
type Proof struct {
	Commitment string `json:"commitment"`
	Seed       string `json:"seed,omitempty"`
	Nonce      string `json:"nonce,omitempty"`
}

// HandRNG owns the secret of a single hand. It is never reseeded.
type HandRNG struct {
	seed       []byte
	nonce      []byte
	commitment string

	mu       sync.Mutex
	revealed bool
}

// New draws a fresh seed and nonce from src. A nil src uses crypto/rand.
func New(src io.Reader) (*HandRNG, error) {
	if src == nil {
		src = rand.Reader
	}
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(src, seed); err != nil {
		return nil, fmt.Errorf("rng: read seed: %w", err)
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(src, nonce); err != nil {
		return nil, fmt.Errorf("rng: read nonce: %w", err)
	}
	return FromSeed(seed, nonce)
}

// FromSeed rebuilds a hand RNG from a previously drawn secret, used when a
// table recovers an unfinished hand.
func FromSeed(seed, nonce []byte) (*HandRNG, error) {
	if len(seed) < SeedSize || len(nonce) < NonceSize {
		return nil, fmt.Errorf("%w: seed %d bytes, nonce %d bytes", ErrMalformedProof, len(seed), len(nonce))
	}
	return &HandRNG{
		seed:       bytes.Clone(seed),
		nonce:      bytes.Clone(nonce),
		commitment: Commit(seed, nonce),
	}, nil
}

// Commitment returns the hex SHA-256 of seed||nonce. It is safe to publish
// at any time.
func (r *HandRNG) Commitment() string { return r.commitment }

// Secret returns copies of the seed and nonce for sealed storage.
func (r *HandRNG) Secret() (seed, nonce []byte) {
	return bytes.Clone(r.seed), bytes.Clone(r.nonce)
}

// Shuffle returns a permutation of deck derived from the seed.
func (r *HandRNG) Shuffle(deck []cards.Card) []cards.Card {
	return Shuffle(deck, r.seed)
}

// Reshuffle permutes a rebuilt shoe. Each rebuild uses its own stream so the
// initial deal order is unaffected.
func (r *HandRNG) Reshuffle(deck []cards.Card, round int) []cards.Card {
	return shuffleWith(deck, ReshoeStream(r.seed, round))
}

// Reveal publishes the seed and nonce. Later calls return the same proof.
func (r *HandRNG) Reveal() Proof {
	r.mu.Lock()
	r.revealed = true
	r.mu.Unlock()
	return Proof{
		Commitment: r.commitment,
		Seed:       hex.EncodeToString(r.seed),
		Nonce:      hex.EncodeToString(r.nonce),
	}
}

// Revealed reports whether Reveal has been called.
func (r *HandRNG) Revealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revealed
}

// Commit computes the hex commitment for seed and nonce.
func Commit(seed, nonce []byte) string {
	h := sha256.New()
	h.Write(seed)
	h.Write(nonce)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether the proof's seed and nonce hash to its commitment.
func Verify(p Proof) bool {
	return VerifyProof(p) == nil
}

// VerifyProof is Verify with a reason.
func VerifyProof(p Proof) error {
	seed, nonce, err := p.Decode()
	if err != nil {
		return err
	}
	if Commit(seed, nonce) != p.Commitment {
		return ErrCommitmentMismatch
	}
	return nil
}

// Decode parses the hex seed and nonce of a revealed proof.
func (p Proof) Decode() (seed, nonce []byte, err error) {
	seed, err = hex.DecodeString(p.Seed)
	if err != nil || len(seed) == 0 {
		return nil, nil, fmt.Errorf("%w: seed", ErrMalformedProof)
	}
	nonce, err = hex.DecodeString(p.Nonce)
	if err != nil || len(nonce) == 0 {
		return nil, nil, fmt.Errorf("%w: nonce", ErrMalformedProof)
	}
	return seed, nonce, nil
}

// RevealDeck recomputes the shuffled deck of a revealed proof.
func RevealDeck(p Proof) ([]cards.Card, error) {
	if err := VerifyProof(p); err != nil {
		return nil, err
	}
	seed, _, _ := p.Decode()
	return Shuffle(cards.Standard(), seed), nil
}
