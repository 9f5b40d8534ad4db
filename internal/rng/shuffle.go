package rng

import (
	"crypto/sha256"
	"encoding/binary"
	"iter"
	"strconv"

	"github.com/lox/handengine/internal/cards"
)

// Stream yields the deterministic draws for seed. Block k is
// SHA-256(seed || decimal(k)) and each draw is the big-endian value of the
// first four bytes. The sequence is a pure function of seed and restarts from
// k = 0 every time it is ranged over.
func Stream(seed []byte) iter.Seq[uint32] {
	return stream(seed, nil)
}

// ReshoeStream is the stream used when the shoe has to be rebuilt mid-hand.
// The domain prefix keeps it independent from the initial shuffle.
func ReshoeStream(seed []byte, round int) iter.Seq[uint32] {
	return stream(seed, []byte("reshoe:"+strconv.Itoa(round)+":"))
}

func stream(seed, domain []byte) iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		buf := make([]byte, 0, len(seed)+len(domain)+20)
		for counter := uint64(0); ; counter++ {
			buf = append(buf[:0], seed...)
			buf = append(buf, domain...)
			buf = strconv.AppendUint(buf, counter, 10)
			sum := sha256.Sum256(buf)
			if !yield(binary.BigEndian.Uint32(sum[:4])) {
				return
			}
		}
	}
}

// Unit maps a draw onto [0,1).
func Unit(u uint32) float64 {
	return float64(u) / (1 << 32)
}

// pick returns floor(Unit(u) * n) computed exactly in integers.
func pick(u uint32, n int) int {
	return int((uint64(u) * uint64(n)) >> 32)
}

// Shuffle runs Fisher-Yates from the last index down, swapping i with
// j = floor(r*(i+1)) for successive draws r. The input is not modified.
func Shuffle(deck []cards.Card, seed []byte) []cards.Card {
	return shuffleWith(deck, Stream(seed))
}

func shuffleWith(deck []cards.Card, draws iter.Seq[uint32]) []cards.Card {
	out := append([]cards.Card(nil), deck...)
	if len(out) < 2 {
		return out
	}
	next, stop := iter.Pull(draws)
	defer stop()
	for i := len(out) - 1; i > 0; i-- {
		u, _ := next()
		j := pick(u, i+1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
