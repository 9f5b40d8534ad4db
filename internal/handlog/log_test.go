package handlog

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/rng"
)

func testRNG(t *testing.T) *rng.HandRNG {
	t.Helper()
	r, err := rng.FromSeed(bytes.Repeat([]byte{7}, rng.SeedSize), bytes.Repeat([]byte{9}, rng.NonceSize))
	require.NoError(t, err)
	return r
}

func testMachine(t *testing.T, r *rng.HandRNG) *hand.Machine {
	t.Helper()
	m, err := hand.NewMachine(hand.Config{
		HandID: "hand-1",
		Seats:  []hand.Seat{{ID: "A", Stack: 100}, {ID: "B", Stack: 100}},
	}, r, nil)
	require.NoError(t, err)
	return m
}

var script = []hand.Action{
	hand.PostBlind("A", 1),
	hand.PostBlind("B", 2),
	hand.Next(),
	hand.Call("A"),
	hand.Check("B"),
	hand.Next(),
	hand.Next(),
}

// record drives a fresh machine through script into l.
func record(t *testing.T, l *Log) (*hand.Machine, *rng.HandRNG) {
	t.Helper()
	r := testRNG(t)
	m := testMachine(t, r)
	require.NoError(t, l.RecordCommitment(r.Commitment()))
	for _, a := range script {
		pre := m.State()
		post, err := m.Apply(a)
		require.NoError(t, err)
		_, err = l.Record(a, pre, post)
		require.NoError(t, err)
	}
	return m, r
}

func TestRecordKeepsIndependentCopies(t *testing.T) {
	t.Parallel()

	l := New("hand-1", nil)
	m, _ := record(t, l)

	entries := l.All()
	require.Len(t, entries, len(script))
	for i, e := range entries {
		assert.Equal(t, i, e.Index)
		assert.Equal(t, script[i], e.Action)
	}

	entries[3].Post.Players[0].Stack = 0
	entries[3].Post.Deck[0] = 0
	again, err := l.Reconstruct(3)
	require.NoError(t, err)
	assert.NotEqual(t, int64(0), again.Players[0].Stack)

	last, err := l.Reconstruct(len(script) - 1)
	require.NoError(t, err)
	assert.Equal(t, m.State(), last)
}

func TestReconstructOutOfRange(t *testing.T) {
	t.Parallel()

	l := New("hand-1", nil)
	record(t, l)
	for _, i := range []int{-1, len(script), 100} {
		_, err := l.Reconstruct(i)
		assert.ErrorIs(t, err, ErrNotFound)
	}
}

func TestMarkersBracketEntries(t *testing.T) {
	t.Parallel()

	l := New("hand-1", nil)
	_, r := record(t, l)

	assert.Error(t, l.RecordCommitment("again"))

	bad := r.Reveal()
	bad.Commitment = strings.Repeat("0", 64)
	assert.ErrorIs(t, l.RecordProof(bad), rng.ErrCommitmentMismatch)

	require.NoError(t, l.RecordProof(r.Reveal()))
	assert.True(t, l.Sealed())
	_, err := l.Record(hand.Next(), hand.State{}, hand.State{})
	assert.ErrorIs(t, err, ErrSealed)
	assert.ErrorIs(t, l.RecordProof(r.Reveal()), ErrSealed)
}

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hand-1.jsonl")
	l, skipped, err := Open(path, "hand-1")
	require.NoError(t, err)
	assert.Zero(t, skipped)

	_, r := record(t, l)
	require.NoError(t, l.RecordProof(r.Reveal()))
	require.NoError(t, l.Flush(context.Background()))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, len(script)+2)
	assert.Equal(t, `{"commitment":"`+r.Commitment()+`"}`, lines[0])
	assert.True(t, strings.HasPrefix(lines[1], `[0,{"type":"postBlind","playerId":"A","amount":1},{`), lines[1])
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], `{"proof":{"commitment":"`))

	var buf bytes.Buffer
	_, err = l.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, string(data), buf.String())

	loaded, skipped, err := Load(path, "hand-1")
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Equal(t, l.All(), loaded.All())
	assert.Equal(t, r.Commitment(), loaded.Commitment())
	proof, ok := loaded.Proof()
	require.True(t, ok)
	assert.True(t, rng.Verify(proof))
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	t.Parallel()

	src := New("hand-1", nil)
	record(t, src)
	var buf bytes.Buffer
	_, err := src.WriteTo(&buf)
	require.NoError(t, err)

	lines := strings.SplitAfter(buf.String(), "\n")
	var corrupted strings.Builder
	corrupted.WriteString("not json\n")
	corrupted.WriteString(lines[0])
	corrupted.WriteString("{\"unknown\":1}\n")
	for _, ln := range lines[1:] {
		corrupted.WriteString(ln)
	}
	corrupted.WriteString("[99,{\"type\":\"bogus\"},{},{}]\n")
	corrupted.WriteString(`[7,{"type":"next"},{"handId":`) // torn tail

	path := filepath.Join(t.TempDir(), "hand-1.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(corrupted.String()), 0o644))

	loaded, skipped, err := Load(path, "hand-1")
	require.NoError(t, err)
	assert.Equal(t, 4, skipped)
	assert.Equal(t, src.All(), loaded.All())
	assert.Equal(t, src.Commitment(), loaded.Commitment())
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, _, err := Load(filepath.Join(t.TempDir(), "nope.jsonl"), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiscardDropsUnflushedRecords(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hand-1.jsonl")
	l, _, err := Open(path, "hand-1")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	r := testRNG(t)
	m := testMachine(t, r)
	require.NoError(t, l.RecordCommitment(r.Commitment()))
	apply := func(a hand.Action) {
		pre := m.State()
		post, err := m.Apply(a)
		require.NoError(t, err)
		_, err = l.Record(a, pre, post)
		require.NoError(t, err)
	}
	apply(hand.PostBlind("A", 1))
	require.NoError(t, l.Flush(context.Background()))
	apply(hand.PostBlind("B", 2))
	require.Equal(t, 2, l.Len())

	require.NoError(t, l.Discard())
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, r.Commitment(), l.Commitment())

	require.NoError(t, l.Flush(context.Background()))
	loaded, _, err := Load(path, "hand-1")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
}

type failingSink struct {
	lines   [][]byte
	fail    bool
	flushed int
}

func (s *failingSink) Append(line []byte) error {
	s.lines = append(s.lines, line)
	return nil
}

func (s *failingSink) Flush() error {
	if s.fail {
		return errors.New("disk full")
	}
	s.flushed = len(s.lines)
	return nil
}

func (s *failingSink) Discard() error {
	s.lines = s.lines[:s.flushed]
	return nil
}

func (s *failingSink) Close() error { return nil }

func TestFlushFailureKeepsRecordsUntilDiscard(t *testing.T) {
	t.Parallel()

	sink := &failingSink{fail: true}
	l := New("hand-1", sink)
	record(t, l)

	err := l.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, len(script), l.Len())

	require.NoError(t, l.Discard())
	assert.Zero(t, l.Len())
	assert.Empty(t, l.Commitment())
	assert.Empty(t, sink.lines)
}

func TestFlushHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, New("hand-1", nil).Flush(ctx), context.Canceled)
}

func TestReplayReproducesFinalState(t *testing.T) {
	t.Parallel()

	l := New("hand-1", nil)
	m, _ := record(t, l)

	fresh := testMachine(t, testRNG(t))
	final, err := Replay(fresh, l.Actions())
	require.NoError(t, err)
	assert.Equal(t, m.State(), final)
}

func TestReplayStopsAtInvalidAction(t *testing.T) {
	t.Parallel()

	actions := append([]hand.Action{}, script[:3]...)
	actions = append(actions, hand.Check("A"))
	_, err := Replay(testMachine(t, testRNG(t)), actions)
	require.Error(t, err)
	assert.ErrorIs(t, err, hand.ErrInvalidAction)
	assert.Contains(t, err.Error(), "replay action 3")
}
