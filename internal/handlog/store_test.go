package handlog

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/handengine/internal/hand"
)

func newTestStore(t *testing.T, clock quartz.Clock) *Store {
	t.Helper()
	s := NewStore(zerolog.New(io.Discard), StoreConfig{
		BaseDir:       t.TempDir(),
		FlushInterval: time.Second,
		Clock:         clock,
	})
	t.Cleanup(s.Shutdown)
	return s
}

func TestStoreLatestHand(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, quartz.NewMock(t))

	_, err := s.Latest("t1")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, id := range []string{"0001", "0003", "0002"} {
		l, err := s.Create("t1", id)
		require.NoError(t, err)
		require.NoError(t, l.RecordCommitment("c-"+id))
	}
	hands, err := s.Hands("t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001", "0002", "0003"}, hands)

	latest, err := s.Latest("t1")
	require.NoError(t, err)
	assert.Equal(t, "0003", latest)

	_, err = s.Create("t1", "0003")
	assert.Error(t, err)

	tables, err := s.Tables()
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, tables)
}

func TestStoreReopensForAppend(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, quartz.NewMock(t))
	l, err := s.Create("t1", "h1")
	require.NoError(t, err)
	require.NoError(t, l.RecordCommitment("abc"))
	_, err = l.Record(hand.Next(), hand.State{HandID: "h1"}, hand.State{HandID: "h1"})
	require.NoError(t, err)
	require.NoError(t, s.Release("t1"))

	reopened, err := s.Open("t1", "h1")
	require.NoError(t, err)
	assert.Equal(t, 1, reopened.Len())
	_, err = reopened.Record(hand.Next(), hand.State{HandID: "h1"}, hand.State{HandID: "h1"})
	require.NoError(t, err)
	require.NoError(t, reopened.Flush(context.Background()))

	loaded, err := s.Load("t1", "h1")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	assert.Equal(t, 1, loaded.All()[1].Index)

	_, err = s.Open("t1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreReopenCutsTornTail(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, quartz.NewMock(t))
	l, err := s.Create("t1", "h1")
	require.NoError(t, err)
	require.NoError(t, l.RecordCommitment("abc"))
	for range 2 {
		_, err = l.Record(hand.Next(), hand.State{HandID: "h1"}, hand.State{HandID: "h1"})
		require.NoError(t, err)
	}
	require.NoError(t, s.Release("t1"))

	// A crash mid-write leaves half a line behind.
	f, err := os.OpenFile(s.Path("t1", "h1"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`[2,{"type"`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := s.Open("t1", "h1")
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())
	_, err = reopened.Record(hand.Next(), hand.State{HandID: "h1"}, hand.State{HandID: "h1"})
	require.NoError(t, err)
	require.NoError(t, reopened.Flush(context.Background()))

	loaded, skipped, err := Load(s.Path("t1", "h1"), "h1")
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Equal(t, 3, loaded.Len())
	assert.Equal(t, 2, loaded.All()[2].Index)
}

func TestOpenIgnoresUnterminatedLine(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "h1.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"commitment":"abc"}`+"\n"+`[0,{"type":"next"},{},{}]`), 0o644))

	l, skipped, err := Open(path, "h1")
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	assert.Zero(t, l.Len())
	assert.Equal(t, "abc", l.Commitment())

	_, err = l.Record(hand.Next(), hand.State{HandID: "h1"}, hand.State{HandID: "h1"})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	loaded, skipped, err := Load(path, "h1")
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Equal(t, 1, loaded.Len())
}

func TestStoreTickerFlushesOpenLogs(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := quartz.NewMock(t)
	s := newTestStore(t, clock)
	l, err := s.Create("t1", "h1")
	require.NoError(t, err)
	require.NoError(t, l.RecordCommitment("abc"))

	info, err := os.Stat(s.Path("t1", "h1"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	clock.Advance(time.Second).MustWait(ctx)

	info, err = os.Stat(s.Path("t1", "h1"))
	require.NoError(t, err)
	assert.Equal(t, int64(len(`{"commitment":"abc"}`)+1), info.Size())
}

func TestStoreShutdownDrains(t *testing.T) {
	t.Parallel()

	s := NewStore(zerolog.New(io.Discard), StoreConfig{BaseDir: t.TempDir(), Clock: quartz.NewMock(t)})
	l, err := s.Create("t1", "h1")
	require.NoError(t, err)
	require.NoError(t, l.RecordCommitment("abc"))

	s.Shutdown()
	s.Shutdown()

	loaded, err := s.Load("t1", "h1")
	require.NoError(t, err)
	assert.Equal(t, "abc", loaded.Commitment())
}

func TestStoreSecrets(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, quartz.NewMock(t))
	require.NoError(t, s.SaveSecret("t1", "h1", []byte{1}, []byte{2}))
	seed, nonce, err := s.LoadSecret("t1", "h1")
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, seed)
	assert.Equal(t, []byte{2}, nonce)

	require.NoError(t, s.DropSecret("t1", "h1"))
	_, _, err = s.LoadSecret("t1", "h1")
	assert.ErrorIs(t, err, ErrNotFound)

	hands, err := s.Hands("t1")
	require.NoError(t, err)
	assert.Empty(t, hands)
}
