// Package phh exports logged hands in the Poker Hand History TOML format.
package phh

import "time"

// HandHistory represents a single poker hand encoded in PHH format.
type HandHistory struct {
	Variant           string         `toml:"variant"`
	Table             string         `toml:"table,omitempty"`
	SeatCount         int            `toml:"seat_count,omitempty"`
	Seats             []int          `toml:"seats,omitempty"`
	Antes             []int64        `toml:"antes"`
	BlindsOrStraddles []int64        `toml:"blinds_or_straddles"`
	MinBet            int64          `toml:"min_bet"`
	StartingStacks    []int64        `toml:"starting_stacks"`
	FinishingStacks   []int64        `toml:"finishing_stacks,omitempty"`
	Winnings          []int64        `toml:"winnings,omitempty"`
	Actions           []string       `toml:"actions"`
	Players           []string       `toml:"players,omitempty"`
	HandID            string         `toml:"hand"`
	Time              string         `toml:"time,omitempty"`
	TimeZone          string         `toml:"time_zone,omitempty"`
	Day               int            `toml:"day,omitempty"`
	Month             int            `toml:"month,omitempty"`
	Year              int            `toml:"year,omitempty"`
	Metadata          map[string]any `toml:"metadata,omitempty"`

	Timestamp time.Time `toml:"-"`
}
