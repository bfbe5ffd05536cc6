package logic

import "time"

// Default sleep timings.
const (
	DefaultIdle  = 2000 * time.Millisecond
	DefaultQuiet = 800 * time.Millisecond
)

// IdleTimer tracks time since the last user activity.
type IdleTimer struct {
	threshold    time.Duration
	lastActivity time.Time
}

// NewIdleTimer creates a timer whose activity clock starts at now.
func NewIdleTimer(threshold time.Duration, now time.Time) *IdleTimer {
	return &IdleTimer{threshold: threshold, lastActivity: now}
}

// Touch records activity at now.
func (t *IdleTimer) Touch(now time.Time) {
	t.lastActivity = now
}

// Expired reports whether strictly more than the threshold has passed
// since the last activity.
func (t *IdleTimer) Expired(now time.Time) bool {
	return now.Sub(t.lastActivity) > t.threshold
}

// IdleFor returns the time since the last activity.
func (t *IdleTimer) IdleFor(now time.Time) time.Duration {
	return now.Sub(t.lastActivity)
}

// LastActivity returns the time of the last recorded activity.
func (t *IdleTimer) LastActivity() time.Time {
	return t.lastActivity
}

// QuietVerdict is the outcome of one quiet window observation.
type QuietVerdict int

const (
	QuietPending QuietVerdict = iota // window still open, all HIGH so far
	QuietPassed                      // all HIGH for the whole window
	QuietNoisy                       // a LOW was seen
)

func (v QuietVerdict) String() string {
	switch v {
	case QuietPending:
		return "PENDING"
	case QuietPassed:
		return "PASSED"
	case QuietNoisy:
		return "NOISY"
	default:
		return "UNKNOWN"
	}
}

// QuietWindow requires every wake pin to read HIGH continuously for a
// duration before sleep may be committed.
type QuietWindow struct {
	duration time.Duration
	start    time.Time
}

// NewQuietWindow creates a window of the given duration.
func NewQuietWindow(d time.Duration) *QuietWindow {
	return &QuietWindow{duration: d}
}

// Start opens the window at now.
func (w *QuietWindow) Start(now time.Time) {
	w.start = now
}

// Observe evaluates one sample of all wake pin levels taken at now.
// A LOW anywhere ends the window as noisy, even on the final sample.
func (w *QuietWindow) Observe(levels []Level, now time.Time) QuietVerdict {
	for _, l := range levels {
		if l == Low {
			return QuietNoisy
		}
	}
	if now.Sub(w.start) >= w.duration {
		return QuietPassed
	}
	return QuietPending
}

// Duration returns the configured window length.
func (w *QuietWindow) Duration() time.Duration {
	return w.duration
}
