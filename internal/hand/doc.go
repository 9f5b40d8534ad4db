// Package hand implements the state machine for a single hand of Texas
// Hold'em.
//
// A Machine owns one State and advances it through the phases
//
//	WAIT_BLINDS → DEAL → BETTING_ROUND → SHOWDOWN → SETTLE
//
// in response to Actions. Every call to Apply validates the action against a
// private working copy and only commits the copy when the whole transition
// succeeded, so a rejected action never leaves a partial mutation behind.
//
// Randomness enters through the Shuffler (consulted only when cards are
// dealt) and payouts through the Settler (run on SHOWDOWN + next). Both are
// injected so that re-driving the same action list against a fresh machine
// with the same shuffler reproduces the same state byte for byte.
//
// Chip accounting invariant: Pot plus the sum of all player stacks never
// changes across a transition.
package hand
