// Package notify holds the transient notice shown after non-fatal
// failures. A notice is visible for a fixed window and dismisses itself.
package notify

import (
	"sync"
	"time"
)

// DefaultVisibility is how long a notice stays visible.
const DefaultVisibility = 4 * time.Second

type Notice struct {
	Message   string    `json:"message"`
	ShownAt   time.Time `json:"shown_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Center keeps at most one current notice; a new one replaces the old.
// Expiry is lazy: an expired notice disappears on the next read.
type Center struct {
	mu         sync.Mutex
	visibility time.Duration
	current    *Notice
	now        func() time.Time
}

// NewCenter builds a center with the given visibility window; zero means
// DefaultVisibility. The now function is injectable for tests.
func NewCenter(visibility time.Duration, now func() time.Time) *Center {
	if visibility <= 0 {
		visibility = DefaultVisibility
	}
	if now == nil {
		now = time.Now
	}
	return &Center{visibility: visibility, now: now}
}

// Show displays a message, replacing any current notice.
func (c *Center) Show(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now()
	c.current = &Notice{
		Message:   message,
		ShownAt:   t,
		ExpiresAt: t.Add(c.visibility),
	}
}

// Active returns the current notice if it has not expired yet.
func (c *Center) Active() (Notice, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Notice{}, false
	}
	if c.now().After(c.current.ExpiresAt) {
		c.current = nil
		return Notice{}, false
	}
	return *c.current, true
}
