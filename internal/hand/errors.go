package hand

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAction is the sentinel for actions that are not legal in the
	// current phase, for the acting player, or for the amount given. The state
	// is never mutated when it is returned.
	ErrInvalidAction = errors.New("invalid action")

	// ErrInvariant reports an internal inconsistency such as an exhausted shoe.
	// It is fatal for the hand.
	ErrInvariant = errors.New("hand: invariant violated")
)

// ActionError describes a rejected action.
type ActionError struct {
	Phase  Phase
	Action Action
	Reason string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("invalid action for phase %s: %s: %s", e.Phase, e.Action, e.Reason)
}

func (e *ActionError) Unwrap() error { return ErrInvalidAction }

func reject(s *State, a Action, format string, args ...any) error {
	return &ActionError{Phase: s.Phase, Action: a, Reason: fmt.Sprintf(format, args...)}
}
