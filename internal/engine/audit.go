package engine

import (
	"fmt"

	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/handlog"
	"github.com/lox/handengine/internal/rng"
)

// Report is the outcome of auditing a sealed hand log.
type Report struct {
	HandID     string
	Commitment string
	Entries    int
	Settled    bool
	// DealIndex is the log entry that dealt the hole cards, or -1.
	DealIndex  int
	Mismatches []rng.Mismatch
	Problems   []string
}

// OK reports whether the audit found nothing wrong.
func (r Report) OK() bool {
	return len(r.Mismatches) == 0 && len(r.Problems) == 0
}

// Audit checks a log against its own proof: the proof must match the
// commitment, the recorded deal must equal the one recomputed from the seed,
// consecutive entries must chain, and chips must be conserved. An error is
// returned only when the log cannot be audited at all.
func Audit(l *handlog.Log) (Report, error) {
	proof, sealed := l.Proof()
	if !sealed {
		return Report{}, fmt.Errorf("engine: audit %s: log has no proof", l.HandID())
	}
	return AuditProof(l, proof)
}

// AuditProof is Audit with a proof supplied separately, for logs copied out
// before the hand was revealed.
func AuditProof(l *handlog.Log, proof rng.Proof) (Report, error) {
	if err := rng.VerifyProof(proof); err != nil {
		return Report{}, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}

	entries := l.All()
	r := Report{
		HandID:     l.HandID(),
		Commitment: l.Commitment(),
		Entries:    len(entries),
		DealIndex:  -1,
	}
	if r.Commitment != proof.Commitment {
		r.Problems = append(r.Problems, fmt.Sprintf("proof commits to %s, log to %s", proof.Commitment, r.Commitment))
	}

	for i, e := range entries {
		if e.Index != i {
			r.Problems = append(r.Problems, fmt.Sprintf("entry %d has index %d", i, e.Index))
		}
		if i > 0 && !sameState(entries[i-1].Post, e.Pre) {
			r.Problems = append(r.Problems, fmt.Sprintf("entry %d does not start where entry %d ended", i, i-1))
		}
		if pre, post := e.Pre.Chips(), e.Post.Chips(); pre != post {
			r.Problems = append(r.Problems, fmt.Sprintf("entry %d changes chip total from %d to %d", i, pre, post))
		}
		if r.DealIndex < 0 && e.Pre.Phase == hand.PhaseWaitBlinds && e.Post.Phase != hand.PhaseWaitBlinds {
			r.DealIndex = i
			mismatches, err := rng.VerifyDeal(proof, dealtSeats(e.Post), e.Post.Deck)
			if err != nil {
				r.Problems = append(r.Problems, err.Error())
			}
			r.Mismatches = mismatches
		}
	}

	if last, ok := l.Last(); ok && last.Post.Done() {
		r.Settled = true
		var sum int64
		for _, s := range last.Post.Settlements {
			sum += s.Delta
		}
		if sum != 0 {
			r.Problems = append(r.Problems, fmt.Sprintf("settlements sum to %d", sum))
		}
	}
	if r.DealIndex < 0 {
		r.Problems = append(r.Problems, "log never deals")
	}
	return r, nil
}

func dealtSeats(s hand.State) []rng.Seat {
	seats := make([]rng.Seat, len(s.Players))
	for i, p := range s.Players {
		seats[i] = rng.Seat{Player: p.ID, HoleCards: p.HoleCards}
	}
	return seats
}
