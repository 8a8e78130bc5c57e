package core

import "time"

// Cursor is the currently displayed calendar date, bounded between the
// ledger's inception date and today. Navigation past either bound is
// clamped: the cursor stays where it is.
type Cursor struct {
	start time.Time
	view  time.Time
	now   func() time.Time
}

// NewCursor builds a cursor starting at today, clamped to [start, today].
// The now function is injectable for tests; nil means time.Now.
func NewCursor(start time.Time, now func() time.Time) *Cursor {
	if now == nil {
		now = time.Now
	}
	c := &Cursor{start: Midnight(start), now: now}
	c.view = Midnight(now())
	if c.view.Before(c.start) {
		c.view = c.start
	}
	return c
}

// View returns the displayed date (local midnight).
func (c *Cursor) View() time.Time { return c.view }

// Start returns the ledger inception date (local midnight).
func (c *Cursor) Start() time.Time { return c.start }

// Prev moves one day back unless that would cross the inception date.
// Reports whether the cursor moved.
func (c *Cursor) Prev() bool {
	prev := Midnight(c.view.AddDate(0, 0, -1))
	if prev.Before(c.start) {
		return false
	}
	c.view = prev
	return true
}

// Next moves one day forward unless that would cross today.
func (c *Cursor) Next() bool {
	next := Midnight(c.view.AddDate(0, 0, 1))
	if next.After(Midnight(c.now())) {
		return false
	}
	c.view = next
	return true
}

// Today resets the cursor to the current date.
func (c *Cursor) Today() {
	c.view = Midnight(c.now())
	if c.view.Before(c.start) {
		c.view = c.start
	}
}
