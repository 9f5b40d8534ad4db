package phh_test

import (
	"bytes"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lox/handengine/internal/cards"
	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/handlog"
	"github.com/lox/handengine/internal/phh"
	"github.com/lox/handengine/internal/settlement"
)

func TestFormatAction(t *testing.T) {
	tests := []struct {
		name      string
		seat      int
		action    hand.Action
		streetBet int64
		want      string
		shouldUse bool
	}{
		{"fold", 0, hand.Fold("a"), 0, "p1 f", true},
		{"check", 1, hand.Check("b"), 0, "p2 cc", true},
		{"call", 3, hand.Call("d"), 50, "p4 cc", true},
		{"raise", 0, hand.Raise("a", 100), 120, "p1 cbr 120", true},
		{"bet", 1, hand.Bet("b", 40), 40, "p2 cbr 40", true},
		{"zero bet", 2, hand.Bet("c", 0), 0, "", false},
		{"blind", 0, hand.PostBlind("a", 5), 5, "", false},
		{"next", 0, hand.Next(), 0, "", false},
		{"unknown", 2, hand.Action{Kind: "weird", PlayerID: "c", Amount: 10}, 0, "# p3 weird 10", true},
	}

	for _, tt := range tests {
		got, ok := phh.FormatAction(tt.seat, tt.action, tt.streetBet)
		if ok != tt.shouldUse {
			t.Fatalf("%s: ok=%v want %v", tt.name, ok, tt.shouldUse)
		}
		if got != tt.want {
			t.Fatalf("%s: got %q want %q", tt.name, got, tt.want)
		}
	}
}

func TestEncodeHandHistory(t *testing.T) {
	h := &phh.HandHistory{
		Variant:           "NT",
		Table:             "default",
		SeatCount:         3,
		Seats:             []int{1, 2, 3},
		Antes:             []int64{0, 0, 0},
		BlindsOrStraddles: []int64{1, 2, 0},
		MinBet:            2,
		StartingStacks:    []int64{200, 200, 200},
		FinishingStacks:   []int64{200, 200, 200},
		Winnings:          []int64{0, 0, 0},
		Actions: []string{
			"d dh p1 AhKh",
			"d dh p2 7c2d",
			"d dh p3 QsJs",
			"p1 cbr 6",
			"p2 f",
			"p3 cc",
		},
		Players:   []string{"alice", "bob", "charlie"},
		HandID:    "hand-00042",
		Time:      "15:22:00",
		TimeZone:  "UTC",
		Day:       14,
		Month:     11,
		Year:      2025,
		Timestamp: time.Date(2025, time.November, 14, 15, 22, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	if err := phh.Encode(&buf, h); err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	got := buf.String()
	want := "" +
		"variant = \"NT\"\n" +
		"table = \"default\"\n" +
		"seat_count = 3\n" +
		"seats = [1, 2, 3]\n" +
		"antes = [0, 0, 0]\n" +
		"blinds_or_straddles = [1, 2, 0]\n" +
		"min_bet = 2\n" +
		"starting_stacks = [200, 200, 200]\n" +
		"finishing_stacks = [200, 200, 200]\n" +
		"winnings = [0, 0, 0]\n" +
		"actions = [\"d dh p1 AhKh\", \"d dh p2 7c2d\", \"d dh p3 QsJs\", \"p1 cbr 6\", \"p2 f\", \"p3 cc\"]\n" +
		"players = [\"alice\", \"bob\", \"charlie\"]\n" +
		"hand = \"hand-00042\"\n" +
		"time = \"15:22:00\"\n" +
		"time_zone = \"UTC\"\n" +
		"day = 14\n" +
		"month = 11\n" +
		"year = 2025\n"

	if got != want {
		t.Fatalf("Encode output mismatch.\nGot:\n%s\nWant:\n%s", got, want)
	}
}

func TestEncodeNil(t *testing.T) {
	if _, err := phh.EncodeToBytes(nil); err == nil {
		t.Fatal("expected error for nil hand history")
	}
}

// orderedShuffler leaves the deck ascending, so the aces come off first.
type orderedShuffler struct{}

func (orderedShuffler) Shuffle(deck []cards.Card) []cards.Card { return slices.Clone(deck) }

func (orderedShuffler) Reshuffle(deck []cards.Card, _ int) []cards.Card { return slices.Clone(deck) }

func loggedHand(t *testing.T, actions ...hand.Action) *handlog.Log {
	t.Helper()
	m, err := hand.NewMachine(hand.Config{
		HandID: "hand-9",
		Seats:  []hand.Seat{{ID: "alice", Stack: 100}, {ID: "bob", Stack: 100}},
	}, orderedShuffler{}, settlement.New(settlement.PokerEvaluator{}, zerolog.New(io.Discard)))
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}

	l := handlog.New("hand-9", nil)
	if err := l.RecordCommitment("c0ffee"); err != nil {
		t.Fatalf("RecordCommitment: %v", err)
	}
	for _, a := range actions {
		pre := m.State()
		post, err := m.Apply(a)
		if err != nil {
			t.Fatalf("apply %s: %v", a, err)
		}
		if _, err := l.Record(a, pre, post); err != nil {
			t.Fatalf("record %s: %v", a, err)
		}
	}
	return l
}

func TestFromLog(t *testing.T) {
	l := loggedHand(t,
		hand.PostBlind("alice", 1), hand.PostBlind("bob", 2), hand.Next(),
		hand.Call("alice"), hand.Check("bob"), hand.Next(), hand.Next(),
		hand.Bet("bob", 4), hand.Fold("alice"), hand.Next(),
	)
	ts := time.Date(2025, time.March, 2, 9, 30, 0, 0, time.UTC)

	h, err := phh.FromLog(l, "t1", ts)
	if err != nil {
		t.Fatalf("FromLog: %v", err)
	}

	wantActions := []string{
		"d dh p1 AsAh",
		"d dh p2 AdAc",
		"p1 cc",
		"p2 cc",
		"d db KsKhKd",
		"p2 cbr 4",
		"p1 f",
	}
	if !slices.Equal(h.Actions, wantActions) {
		t.Fatalf("actions = %q, want %q", h.Actions, wantActions)
	}
	if !slices.Equal(h.BlindsOrStraddles, []int64{1, 2}) || h.MinBet != 2 {
		t.Fatalf("blinds = %v min bet %d", h.BlindsOrStraddles, h.MinBet)
	}
	if !slices.Equal(h.FinishingStacks, []int64{98, 102}) {
		t.Fatalf("finishing stacks = %v", h.FinishingStacks)
	}
	if !slices.Equal(h.Winnings, []int64{0, 8}) {
		t.Fatalf("winnings = %v", h.Winnings)
	}
	if h.Metadata["commitment"] != "c0ffee" {
		t.Fatalf("metadata = %v", h.Metadata)
	}
	if h.Time != "09:30:00" || h.Year != 2025 || h.Month != 3 || h.Day != 2 {
		t.Fatalf("time fields = %s %d-%d-%d", h.Time, h.Year, h.Month, h.Day)
	}

	out, err := phh.EncodeToBytes(h)
	if err != nil {
		t.Fatalf("EncodeToBytes: %v", err)
	}
	if !strings.Contains(string(out), `hand = "hand-9"`) {
		t.Fatalf("encoded output missing hand id:\n%s", out)
	}
}

func TestFromLogShowsDownLiveHands(t *testing.T) {
	actions := []hand.Action{hand.PostBlind("alice", 1), hand.PostBlind("bob", 2), hand.Next(), hand.Call("alice"), hand.Check("bob"), hand.Next()}
	for range 3 {
		actions = append(actions, hand.Next(), hand.Check("alice"), hand.Check("bob"), hand.Next())
	}
	actions = append(actions, hand.Next())
	h, err := phh.FromLog(loggedHand(t, actions...), "t1", time.Time{})
	if err != nil {
		t.Fatalf("FromLog: %v", err)
	}

	shows := 0
	for _, a := range h.Actions {
		if strings.Contains(a, " sm ") {
			shows++
		}
	}
	if shows != 2 {
		t.Fatalf("expected both players to show, got actions %q", h.Actions)
	}
	if h.Time != "" {
		t.Fatalf("zero timestamp should leave time empty, got %q", h.Time)
	}
}

func TestFromLogEmpty(t *testing.T) {
	if _, err := phh.FromLog(handlog.New("empty", nil), "t1", time.Time{}); err == nil {
		t.Fatal("expected error for a log without actions")
	}
}
