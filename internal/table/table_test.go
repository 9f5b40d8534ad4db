package table

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/handlog"
)

type fakeWallet struct {
	mu        sync.Mutex
	reserved  map[string]int64
	committed map[string]int64
}

func newFakeWallet() *fakeWallet {
	return &fakeWallet{reserved: make(map[string]int64), committed: make(map[string]int64)}
}

func (w *fakeWallet) Reserve(_ context.Context, playerID string, amount int64, ref, _ string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reserved[ref+"/"+playerID] = amount
	return nil
}

func (w *fakeWallet) Commit(_ context.Context, ref string, total, _ int64, _ string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.committed[ref] = total
	return nil
}

func (w *fakeWallet) Rollback(context.Context, string) error { return nil }

func (w *fakeWallet) total(ref string) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.committed[ref]
}

type frame struct {
	table string
	index int
	phase hand.Phase
}

type recordingPublisher struct {
	mu     sync.Mutex
	frames []frame
}

func (p *recordingPublisher) Publish(tableID string, index int, s hand.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, frame{table: tableID, index: index, phase: s.Phase})
}

type fixture struct {
	dir    string
	wallet *fakeWallet
	pub    *recordingPublisher
	clock  *quartz.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{
		dir:    t.TempDir(),
		wallet: newFakeWallet(),
		pub:    &recordingPublisher{},
		clock:  quartz.NewMock(t),
	}
}

// manager opens a fresh store on the fixture's directory, as a restarted
// process would.
func (f *fixture) manager(t *testing.T) *Manager {
	t.Helper()
	return f.managerWith(t, Config{Currency: "chips", FlushRetries: 2, RetryDelay: time.Millisecond})
}

func (f *fixture) managerWith(t *testing.T, cfg Config) *Manager {
	t.Helper()
	logger := zerolog.New(io.Discard)
	store := handlog.NewStore(logger, handlog.StoreConfig{BaseDir: f.dir, FlushInterval: time.Hour, Clock: f.clock})
	m := NewManager(Deps{
		Store:     store,
		Wallet:    f.wallet,
		Publisher: f.pub,
		Clock:     f.clock,
		Logger:    logger,
	}, cfg, nil)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

var headsUp = []hand.Seat{{ID: "A", Stack: 100}, {ID: "B", Stack: 100}}

func mustApply(t *testing.T, a *Actor, actions ...hand.Action) {
	t.Helper()
	for _, action := range actions {
		_, err := a.Apply(context.Background(), action)
		require.NoError(t, err, "apply %s", action)
	}
}

func TestActorPlaysHandToSettlement(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.manager(t)
	ctx := context.Background()

	a, err := m.Get(ctx, "t1")
	require.NoError(t, err)
	_, ok := a.State()
	assert.False(t, ok)

	start, err := a.StartHand(ctx, headsUp)
	require.NoError(t, err)
	assert.Equal(t, hand.PhaseWaitBlinds, start.Phase)
	handID := a.HandID()
	require.Len(t, handID, 26)

	store := m.deps.Store
	_, err = os.Stat(store.SecretPath("t1", handID))
	require.NoError(t, err, "secret is vaulted while the hand runs")

	mustApply(t, a, hand.PostBlind("A", 1), hand.PostBlind("B", 2), hand.Next(), hand.Bet("A", 4))
	view, err := a.Apply(ctx, hand.Fold("B"))
	require.NoError(t, err)
	assert.Equal(t, hand.PhaseSettle, view.Phase)
	assert.Equal(t, []hand.SettlementEntry{{PlayerID: "A", Delta: 2}, {PlayerID: "B", Delta: -2}}, view.Settlements)

	assert.Equal(t, int64(2), f.wallet.total(handID))
	_, err = os.Stat(store.SecretPath("t1", handID))
	assert.ErrorIs(t, err, os.ErrNotExist)

	persisted, err := store.Load("t1", handID)
	require.NoError(t, err)
	assert.True(t, persisted.Sealed())
	assert.Equal(t, 6, persisted.Len())
}

func TestActorRejectsWithoutHand(t *testing.T) {
	t.Parallel()

	m := newFixture(t).manager(t)
	a, err := m.Get(context.Background(), "t1")
	require.NoError(t, err)

	_, err = a.Apply(context.Background(), hand.Next())
	assert.ErrorIs(t, err, ErrNoHand)
	_, err = a.Replay(context.Background())
	assert.ErrorIs(t, err, ErrNoHand)
}

func TestActorRejectsSecondHand(t *testing.T) {
	t.Parallel()

	m := newFixture(t).manager(t)
	a, err := m.Get(context.Background(), "t1")
	require.NoError(t, err)

	_, err = a.StartHand(context.Background(), headsUp)
	require.NoError(t, err)
	_, err = a.StartHand(context.Background(), headsUp)
	assert.ErrorIs(t, err, ErrHandInProgress)
}

func TestInvalidActionLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	m := newFixture(t).manager(t)
	a, err := m.Get(context.Background(), "t1")
	require.NoError(t, err)
	_, err = a.StartHand(context.Background(), headsUp)
	require.NoError(t, err)
	mustApply(t, a, hand.PostBlind("A", 1))

	before, _ := a.State()
	_, err = a.Apply(context.Background(), hand.Bet("B", 500))
	assert.ErrorIs(t, err, hand.ErrInvalidAction)
	after, _ := a.State()
	assert.Equal(t, before, after)
}

func TestPublicStateShowsOnlyOwnCards(t *testing.T) {
	t.Parallel()

	m := newFixture(t).manager(t)
	a, err := m.Get(context.Background(), "t1")
	require.NoError(t, err)
	_, err = a.StartHand(context.Background(), headsUp)
	require.NoError(t, err)
	mustApply(t, a, hand.PostBlind("A", 1))

	view, err := a.Apply(context.Background(), hand.PostBlind("B", 2))
	require.NoError(t, err)
	assert.Empty(t, view.Players[0].HoleCards)
	assert.Len(t, view.Players[1].HoleCards, 2)

	spectator, ok := a.PublicState("")
	require.True(t, ok)
	for _, p := range spectator.Players {
		assert.Empty(t, p.HoleCards)
	}
}

func TestReplayMatchesPersistedLog(t *testing.T) {
	t.Parallel()

	m := newFixture(t).manager(t)
	a, err := m.Get(context.Background(), "t1")
	require.NoError(t, err)
	_, err = a.StartHand(context.Background(), headsUp)
	require.NoError(t, err)
	mustApply(t, a, hand.PostBlind("A", 1), hand.PostBlind("B", 2), hand.Next(), hand.Call("A"), hand.Check("B"), hand.Next(), hand.Next())

	replayed, err := a.Replay(context.Background())
	require.NoError(t, err)
	live, _ := a.PublicState("")
	assert.Equal(t, live, replayed)
	assert.Len(t, replayed.CommunityCards, 3)
}

func TestSinceReturnsSanitizedFrames(t *testing.T) {
	t.Parallel()

	m := newFixture(t).manager(t)
	a, err := m.Get(context.Background(), "t1")
	require.NoError(t, err)
	_, err = a.StartHand(context.Background(), headsUp)
	require.NoError(t, err)
	mustApply(t, a, hand.PostBlind("A", 1), hand.PostBlind("B", 2), hand.Next())

	frames, err := a.Since(context.Background(), 1, "A")
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, 1, frames[0].Index)
	assert.Equal(t, hand.PhaseDeal, frames[0].State.Phase)
	assert.Len(t, frames[0].State.Players[0].HoleCards, 2)
	assert.Empty(t, frames[0].State.Players[1].HoleCards)
}

func TestPublisherSeesEveryDurableState(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.manager(t)
	a, err := m.Get(context.Background(), "t1")
	require.NoError(t, err)
	_, err = a.StartHand(context.Background(), headsUp)
	require.NoError(t, err)
	mustApply(t, a, hand.PostBlind("A", 1), hand.PostBlind("B", 2))
	_, err = a.Apply(context.Background(), hand.Bet("A", 1000))
	require.Error(t, err)
	mustApply(t, a, hand.Next(), hand.Fold("A"))

	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	assert.Equal(t, []frame{
		{table: "t1", index: 0, phase: hand.PhaseWaitBlinds},
		{table: "t1", index: 1, phase: hand.PhaseDeal},
		{table: "t1", index: 2, phase: hand.PhaseBettingRound},
		{table: "t1", index: 4, phase: hand.PhaseSettle},
	}, f.pub.frames)
}

func TestManagerRecoversUnfinishedHand(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	first := f.manager(t)
	a, err := first.Get(context.Background(), "t1")
	require.NoError(t, err)
	_, err = a.StartHand(context.Background(), headsUp)
	require.NoError(t, err)
	mustApply(t, a, hand.PostBlind("A", 1), hand.PostBlind("B", 2), hand.Next(), hand.Call("A"))
	want, _ := a.State()

	// A second process over the same directory sees only what was flushed.
	second := f.manager(t)
	b, err := second.Get(context.Background(), "t1")
	require.NoError(t, err)
	got, ok := b.State()
	require.True(t, ok)
	assert.Equal(t, want.Players, got.Players)
	assert.Equal(t, want.Phase, got.Phase)

	_, err = b.Apply(context.Background(), hand.Check("B"))
	require.NoError(t, err)
}

func TestRecoveryKeepsLoggedLimits(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)
	first := f.managerWith(t, Config{Currency: "chips", BigBlind: 2, MaxBet: 10})
	a, err := first.Get(ctx, "t1")
	require.NoError(t, err)
	_, err = a.StartHand(ctx, headsUp)
	require.NoError(t, err)
	mustApply(t, a, hand.PostBlind("A", 1), hand.PostBlind("B", 2), hand.Next(), hand.Call("A"))

	// The operator tightened the limits before the restart.
	second := f.managerWith(t, Config{Currency: "chips", BigBlind: 1, MaxBet: 5})
	b, err := second.Get(ctx, "t1")
	require.NoError(t, err, "the logged blind of 2 must replay")

	_, err = b.Apply(ctx, hand.Bet("B", 8))
	require.NoError(t, err, "the hand keeps the max bet it started with")
	_, err = b.Apply(ctx, hand.Raise("A", 12))
	assert.ErrorIs(t, err, hand.ErrInvalidAction)
}

func TestManagerRecoversFinishedHandForReads(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.manager(t)
	ctx := context.Background()
	a, err := m.Get(ctx, "t1")
	require.NoError(t, err)
	_, err = a.StartHand(ctx, headsUp)
	require.NoError(t, err)
	mustApply(t, a, hand.PostBlind("A", 1), hand.PostBlind("B", 2), hand.Next(), hand.Fold("A"))
	handID := a.HandID()

	require.NoError(t, m.Close(ctx, "t1"))
	_, err = a.Apply(ctx, hand.Next())
	assert.ErrorIs(t, err, ErrClosed)

	b, err := m.Get(ctx, "t1")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	s, ok := b.State()
	require.True(t, ok)
	assert.Equal(t, handID, s.HandID)
	assert.True(t, s.Done())

	_, err = b.StartHand(ctx, headsUp)
	require.NoError(t, err)
	assert.NotEqual(t, handID, b.HandID())
}

func TestTablesRunIndependently(t *testing.T) {
	t.Parallel()

	m := newFixture(t).manager(t)
	ctx := context.Background()

	var g errgroup.Group
	for _, id := range []string{"t1", "t2", "t3", "t4"} {
		g.Go(func() error {
			a, err := m.Get(ctx, id)
			if err != nil {
				return err
			}
			for range 3 {
				if _, err := a.StartHand(ctx, headsUp); err != nil {
					return err
				}
				for _, action := range []hand.Action{hand.PostBlind("A", 1), hand.PostBlind("B", 2), hand.Next(), hand.Fold("A")} {
					if _, err := a.Apply(ctx, action); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	summaries := m.List()
	require.Len(t, summaries, 4)
	assert.Equal(t, "t1", summaries[0].ID)
	for _, s := range summaries {
		assert.Equal(t, string(hand.PhaseSettle), s.Phase)
		assert.Equal(t, 2, s.Seats)
	}
}

func TestConcurrentAppliesAreSerialized(t *testing.T) {
	t.Parallel()

	m := newFixture(t).manager(t)
	ctx := context.Background()
	a, err := m.Get(ctx, "t1")
	require.NoError(t, err)
	_, err = a.StartHand(ctx, headsUp)
	require.NoError(t, err)

	// Both blinds race; exactly one order wins but both must land.
	var g errgroup.Group
	g.Go(func() error { _, err := a.Apply(ctx, hand.PostBlind("A", 1)); return err })
	g.Go(func() error { _, err := a.Apply(ctx, hand.PostBlind("B", 2)); return err })
	require.NoError(t, g.Wait())

	s, _ := a.State()
	assert.Equal(t, hand.PhaseDeal, s.Phase)
	assert.Equal(t, int64(200), s.Chips())
}

func TestShutdownRejectsNewTables(t *testing.T) {
	t.Parallel()

	m := newFixture(t).manager(t)
	_, err := m.Get(context.Background(), "t1")
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(context.Background()))
	_, err = m.Get(context.Background(), "t2")
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, m.List())
}

func TestGetRacingCloseReturnsErrClosed(t *testing.T) {
	t.Parallel()

	m := newFixture(t).manager(t)
	ctx := context.Background()

	// A Get that found the slot before Close marked it.
	s := &slot{}
	s.closed.Store(true)
	m.mu.Lock()
	m.slots["t1"] = s
	m.mu.Unlock()

	_, err := m.Get(ctx, "t1")
	require.ErrorIs(t, err, ErrClosed)

	require.NoError(t, m.Close(ctx, "t1"))
	a, err := m.Get(ctx, "t1")
	require.NoError(t, err)
	_, err = a.StartHand(ctx, headsUp)
	assert.NoError(t, err)
}
