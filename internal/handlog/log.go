// Package handlog is the append-only record of a hand: a commitment marker,
// one entry per applied action holding deep copies of the states around it,
// and a proof marker once the hand is revealed. Logs are persisted as JSON
// Lines and can be replayed through a fresh state machine.
package handlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/rng"
)

var (
	// ErrNotFound is returned for a missing log file or an index outside the
	// log. It never signals corruption.
	ErrNotFound = errors.New("handlog: not found")
	// ErrSealed is returned when writing to a log whose proof is recorded.
	ErrSealed = errors.New("handlog: log is sealed")
)

type mark struct {
	entries    int
	commitment bool
	proof      bool
}

// Log is safe for concurrent use. A nil sink keeps the log in memory.
type Log struct {
	handID string
	sink   Sink

	mu         sync.RWMutex
	entries    []Entry
	commitment string
	config     *hand.Config
	proof      *rng.Proof
	durable    mark
}

// New returns an empty log writing through sink.
func New(handID string, sink Sink) *Log {
	return &Log{handID: handID, sink: sink}
}

// HandID returns the hand the log belongs to.
func (l *Log) HandID() string { return l.handID }

// RecordCommitment appends the commitment marker. It must precede every entry.
func (l *Log) RecordCommitment(commitment string) error {
	return l.recordCommitment(commitment, nil)
}

// RecordHand appends the commitment marker together with the configuration
// the hand is played under, making the log enough to rebuild the hand.
func (l *Log) RecordHand(commitment string, cfg hand.Config) error {
	return l.recordCommitment(commitment, &cfg)
}

func (l *Log) recordCommitment(commitment string, cfg *hand.Config) error {
	if commitment == "" {
		return errors.New("handlog: empty commitment")
	}
	if cfg != nil {
		c := cfg.Clone()
		cfg = &c
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.commitment != "" || len(l.entries) > 0 {
		return fmt.Errorf("handlog: commitment must be the first record of %s", l.handID)
	}
	if err := l.write(commitmentMarker{Commitment: commitment, Config: cfg}); err != nil {
		return err
	}
	l.commitment = commitment
	l.config = cfg
	return nil
}

// Record appends an entry for a, holding copies of pre and post.
func (l *Log) Record(a hand.Action, pre, post hand.State) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.proof != nil {
		return Entry{}, ErrSealed
	}
	e := Entry{Index: len(l.entries), Action: a, Pre: pre.Clone(), Post: post.Clone()}
	if err := l.write(e); err != nil {
		return Entry{}, err
	}
	l.entries = append(l.entries, e)
	return e.clone(), nil
}

// RecordProof appends the proof marker and seals the log.
func (l *Log) RecordProof(p rng.Proof) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.proof != nil {
		return ErrSealed
	}
	if l.commitment != "" && p.Commitment != l.commitment {
		return fmt.Errorf("%w: proof for %s, log committed to %s", rng.ErrCommitmentMismatch, p.Commitment, l.commitment)
	}
	if err := l.write(proofMarker{Proof: p}); err != nil {
		return err
	}
	l.proof = &p
	return nil
}

func (l *Log) write(v any) error {
	if l.sink == nil {
		return nil
	}
	data, err := encodeLine(v)
	if err != nil {
		return fmt.Errorf("handlog: encode: %w", err)
	}
	return l.sink.Append(data)
}

// Flush returns once every record so far is durable.
func (l *Log) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink != nil {
		if err := l.sink.Flush(); err != nil {
			return err
		}
	}
	l.durable = l.current()
	return nil
}

// Discard drops every record made since the last successful Flush.
func (l *Log) Discard() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var err error
	if l.sink != nil {
		err = l.sink.Discard()
	}
	l.entries = l.entries[:l.durable.entries]
	if !l.durable.commitment {
		l.commitment = ""
		l.config = nil
	}
	if !l.durable.proof {
		l.proof = nil
	}
	return err
}

func (l *Log) current() mark {
	return mark{entries: len(l.entries), commitment: l.commitment != "", proof: l.proof != nil}
}

// Close flushes and releases the sink.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink == nil {
		return nil
	}
	err := l.sink.Close()
	if err == nil {
		l.durable = l.current()
	}
	return err
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Reconstruct returns the post-state recorded at index.
func (l *Log) Reconstruct(index int) (hand.State, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.entries) {
		return hand.State{}, fmt.Errorf("%w: entry %d of %s", ErrNotFound, index, l.handID)
	}
	return l.entries[index].Post.Clone(), nil
}

// All returns copies of every entry in order.
func (l *Log) All() []Entry {
	return l.Since(0)
}

// Since returns copies of the entries from index onwards.
func (l *Log) Since(index int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	index = max(index, 0)
	if index >= len(l.entries) {
		return nil
	}
	out := make([]Entry, 0, len(l.entries)-index)
	for _, e := range l.entries[index:] {
		out = append(out, e.clone())
	}
	return out
}

// Actions returns the recorded actions in order.
func (l *Log) Actions() []hand.Action {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]hand.Action, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Action
	}
	return out
}

// Last returns the most recent entry.
func (l *Log) Last() (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1].clone(), true
}

// Commitment returns the recorded commitment, if any.
func (l *Log) Commitment() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.commitment
}

// Config returns the hand configuration recorded with the commitment. Logs
// opened with RecordCommitment carry none.
func (l *Log) Config() (hand.Config, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.config == nil {
		return hand.Config{}, false
	}
	return l.config.Clone(), true
}

// Proof returns the recorded proof, if any.
func (l *Log) Proof() (rng.Proof, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.proof == nil {
		return rng.Proof{}, false
	}
	return *l.proof, true
}

// Sealed reports whether the proof has been recorded.
func (l *Log) Sealed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.proof != nil
}

// WriteTo writes the log in its JSON Lines form.
func (l *Log) WriteTo(w io.Writer) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var records []any
	if l.commitment != "" {
		records = append(records, commitmentMarker{Commitment: l.commitment, Config: l.config})
	}
	for _, e := range l.entries {
		records = append(records, e)
	}
	if l.proof != nil {
		records = append(records, proofMarker{Proof: *l.proof})
	}

	var total int64
	for _, r := range records {
		data, err := encodeLine(r)
		if err != nil {
			return total, err
		}
		n, err := w.Write(data)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
