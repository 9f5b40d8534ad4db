package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/lox/handengine/internal/hand"
)

// Wallet is the ledger that receives settled hands. Reservations made under
// one ref form a batch: Commit moves the whole batch to the prize pool and
// Rollback returns every reservation of the batch to its owner.
type Wallet interface {
	Reserve(ctx context.Context, playerID string, amount int64, ref, currency string) error
	Commit(ctx context.Context, ref string, total, rake int64, currency string) error
	Rollback(ctx context.Context, ref string) error
}

// Posting describes one settled hand for the wallet.
type Posting struct {
	Ref      string
	Currency string
	Rake     int64
	Entries  []hand.SettlementEntry
}

// Total is the sum of the losing deltas.
func (p Posting) Total() int64 {
	var total int64
	for _, e := range p.Entries {
		if e.Delta < 0 {
			total -= e.Delta
		}
	}
	return total
}

// Post reserves every losing delta and commits the batch once. If any step
// fails after a reservation was made, the batch is rolled back before the
// error is returned.
func Post(ctx context.Context, w Wallet, p Posting) error {
	if p.Ref == "" {
		return errors.New("settlement: posting needs a ref")
	}
	var sum int64
	for _, e := range p.Entries {
		sum += e.Delta
	}
	if sum != 0 {
		return fmt.Errorf("%w: posting %s deltas sum to %d", ErrIntegrity, p.Ref, sum)
	}
	total := p.Total()
	if p.Rake < 0 || p.Rake > total {
		return fmt.Errorf("settlement: rake %d out of range for total %d", p.Rake, total)
	}
	if total == 0 {
		return nil
	}

	reserved := false
	for _, e := range p.Entries {
		if e.Delta >= 0 {
			continue
		}
		if err := w.Reserve(ctx, e.PlayerID, -e.Delta, p.Ref, p.Currency); err != nil {
			err = fmt.Errorf("settlement: reserve %d from %s: %w", -e.Delta, e.PlayerID, err)
			if reserved {
				return rollback(ctx, w, p.Ref, err)
			}
			return err
		}
		reserved = true
	}

	if err := w.Commit(ctx, p.Ref, total, p.Rake, p.Currency); err != nil {
		return rollback(ctx, w, p.Ref, fmt.Errorf("settlement: commit %s: %w", p.Ref, err))
	}
	return nil
}

func rollback(ctx context.Context, w Wallet, ref string, cause error) error {
	// The caller's context may be what failed; compensation must still run.
	if err := w.Rollback(context.WithoutCancel(ctx), ref); err != nil {
		return errors.Join(cause, fmt.Errorf("settlement: rollback %s: %w", ref, err))
	}
	return cause
}
