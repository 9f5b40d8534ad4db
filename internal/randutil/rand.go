// Package randutil derives reproducible random sources from an int64 seed so
// soak runs and tests can be replayed exactly.
package randutil

import (
	"encoding/binary"
	"io"
	rand "math/rand/v2"
)

const goldenRatio64 = 0x9e3779b97f4a7c15

// New returns a PCG generator keyed from seed. Bots draw their decisions from
// it, so a soak run with a fixed seed plays the same hands every time.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

// Reader returns a byte stream keyed from seed. It stands in for crypto/rand
// when a hand's secret must be reproducible; never use it for real tables.
func Reader(seed int64) io.Reader {
	var key [32]byte
	u := uint64(seed)
	for i := range 4 {
		binary.LittleEndian.PutUint64(key[i*8:], mix(u+uint64(i)*goldenRatio64))
	}
	return rand.NewChaCha8(key)
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
