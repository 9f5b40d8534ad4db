package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/handengine/internal/hand"
)

type call struct {
	op     string
	player string
	amount int64
}

type fakeWallet struct {
	calls      []call
	failOn     string
	failPlayer string
}

func (w *fakeWallet) Reserve(_ context.Context, player string, amount int64, _, _ string) error {
	w.calls = append(w.calls, call{"reserve", player, amount})
	if w.failOn == "reserve" && w.failPlayer == player {
		return errors.New("insufficient funds")
	}
	return nil
}

func (w *fakeWallet) Commit(_ context.Context, _ string, total, _ int64, _ string) error {
	w.calls = append(w.calls, call{"commit", "", total})
	if w.failOn == "commit" {
		return errors.New("db down")
	}
	return nil
}

func (w *fakeWallet) Rollback(_ context.Context, _ string) error {
	w.calls = append(w.calls, call{"rollback", "", 0})
	return nil
}

func posting() Posting {
	return Posting{
		Ref:      "hand-1",
		Currency: "USD",
		Entries: []hand.SettlementEntry{
			{PlayerID: "A", Delta: 12},
			{PlayerID: "B", Delta: -5},
			{PlayerID: "C", Delta: -7},
		},
	}
}

func TestPostReservesLosersAndCommitsOnce(t *testing.T) {
	t.Parallel()

	w := &fakeWallet{}
	require.NoError(t, Post(context.Background(), w, posting()))
	assert.Equal(t, []call{
		{"reserve", "B", 5},
		{"reserve", "C", 7},
		{"commit", "", 12},
	}, w.calls)
}

func TestPostRollsBackPartialReservations(t *testing.T) {
	t.Parallel()

	w := &fakeWallet{failOn: "reserve", failPlayer: "C"}
	err := Post(context.Background(), w, posting())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient funds")
	assert.Equal(t, "rollback", w.calls[len(w.calls)-1].op)
}

func TestPostRollsBackFailedCommit(t *testing.T) {
	t.Parallel()

	w := &fakeWallet{failOn: "commit"}
	err := Post(context.Background(), w, posting())
	require.Error(t, err)
	assert.Equal(t, []string{"reserve", "reserve", "commit", "rollback"}, ops(w.calls))
}

func TestPostRejectsUnbalancedEntries(t *testing.T) {
	t.Parallel()

	p := posting()
	p.Entries[0].Delta = 13
	w := &fakeWallet{}
	assert.ErrorIs(t, Post(context.Background(), w, p), ErrIntegrity)
	assert.Empty(t, w.calls)
}

func TestPostSkipsZeroDeltaHands(t *testing.T) {
	t.Parallel()

	w := &fakeWallet{}
	p := Posting{Ref: "hand-2", Entries: []hand.SettlementEntry{{PlayerID: "A"}, {PlayerID: "B"}}}
	require.NoError(t, Post(context.Background(), w, p))
	assert.Empty(t, w.calls)
}

func ops(calls []call) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.op
	}
	return out
}
