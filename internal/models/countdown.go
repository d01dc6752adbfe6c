package models

import "time"

// CountdownKind identifies what a countdown gates.
type CountdownKind string

const (
	CountdownMatchStart CountdownKind = "match_start"
)

// Countdown is a timer attached to a room.
type Countdown struct {
	ID            int           `json:"id"`
	Kind          CountdownKind `json:"kind"`
	TimeRemaining time.Duration `json:"timeRemaining"`
}

// Clone returns a copy, preserving nil.
func (c *Countdown) Clone() *Countdown {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}
