package match

import (
	"errors"
	"sync"
	"time"
)

// ErrNoReconnectWindow signals that no disconnect has been recorded for the username.
var ErrNoReconnectWindow = errors.New("no reconnect window open")

// DefaultReconnectWindow bounds how long a disconnected player may rejoin
// before the match forfeits to their opponent.
const DefaultReconnectWindow = 15 * time.Second

// pendingReconnect tracks the bookkeeping needed to resume a match after a
// connection drop: the window deadline and the original queue slot (0 or 1)
// the player must be restored to.
type pendingReconnect struct {
	deadline      time.Time
	originalIndex int
}

// ReconnectTracker records in-flight reconnect windows opened after a
// connection_lost outcome, one per username, and reports readiness the way
// the teacher's respawn timers track an elimination-to-respawn delay.
type ReconnectTracker struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	pending map[string]pendingReconnect
}

// Option configures optional ReconnectTracker parameters at construction time.
type Option func(*ReconnectTracker)

// WithReconnectWindow overrides the default 15 second grace period.
func WithReconnectWindow(window time.Duration) Option {
	return func(t *ReconnectTracker) {
		if window > 0 {
			t.window = window
		}
	}
}

// WithClock injects a deterministic clock, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(t *ReconnectTracker) {
		if clock != nil {
			t.now = clock
		}
	}
}

// NewReconnectTracker constructs a tracker with the default 15 second window.
func NewReconnectTracker(opts ...Option) *ReconnectTracker {
	tracker := &ReconnectTracker{
		window:  DefaultReconnectWindow,
		now:     time.Now,
		pending: make(map[string]pendingReconnect),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(tracker)
		}
	}
	return tracker
}

// Open starts a reconnect window for a username that just lost its
// connection mid-match, recording the queue slot it must return to.
func (t *ReconnectTracker) Open(username string, originalIndex int) {
	if t == nil || username == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[username] = pendingReconnect{
		deadline:      t.now().Add(t.window),
		originalIndex: originalIndex,
	}
}

// Remaining reports how much time is left in a username's reconnect window.
// Zero or negative means expired or no window was ever opened.
func (t *ReconnectTracker) Remaining(username string) time.Duration {
	if t == nil || username == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.pending[username]
	if !ok {
		return 0
	}
	remaining := entry.deadline.Sub(t.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Resolve reports whether the username's reconnect window has expired,
// together with the original queue index recorded by Open; an expired window
// is discarded. A second return value of false with no error means the
// window simply has not expired yet.
func (t *ReconnectTracker) Resolve(username string) (index int, expired bool, err error) {
	if t == nil || username == "" {
		return 0, false, ErrNoReconnectWindow
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.pending[username]
	if !ok {
		return 0, false, ErrNoReconnectWindow
	}
	if t.now().After(entry.deadline) {
		delete(t.pending, username)
		return entry.originalIndex, true, nil
	}
	return entry.originalIndex, false, nil
}

// Clear discards any pending reconnect window for the username, called once
// the player has successfully rejoined or the forfeit has been applied.
func (t *ReconnectTracker) Clear(username string) {
	if t == nil || username == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, username)
}
