package logic

import "time"

// DefaultDebounce is the settle time a raw level must hold before it is
// accepted as the stable state.
const DefaultDebounce = 35 * time.Millisecond

// DebouncedButton filters one active-low button.
// Stable state only follows the raw level after it has been constant for
// at least the debounce interval.
type DebouncedButton struct {
	Name string
	Pin  int

	debounce   time.Duration
	stable     Level
	lastStable Level
	lastRaw    Level
	lastChange time.Time
}

// NewDebouncedButton creates a button filter. Call Begin before Update.
func NewDebouncedButton(name string, pin int, debounce time.Duration) *DebouncedButton {
	return &DebouncedButton{
		Name:       name,
		Pin:        pin,
		debounce:   debounce,
		stable:     High,
		lastStable: High,
		lastRaw:    High,
	}
}

// Begin seeds the filter from the current pin level.
func (b *DebouncedButton) Begin(raw Level, now time.Time) {
	b.stable = raw
	b.lastStable = raw
	b.lastRaw = raw
	b.lastChange = now
}

// Update feeds one raw sample. It must be called on every tick.
func (b *DebouncedButton) Update(raw Level, now time.Time) {
	// Edges are visible for exactly one Update.
	b.lastStable = b.stable

	if raw != b.lastRaw {
		b.lastRaw = raw
		b.lastChange = now
	}

	if now.Sub(b.lastChange) >= b.debounce {
		b.stable = raw
	}
}

// Pressed reports whether the stable level is LOW.
func (b *DebouncedButton) Pressed() bool {
	return b.stable == Low
}

// Fell reports whether the last Update moved the stable state from
// unpressed to pressed.
func (b *DebouncedButton) Fell() bool {
	return b.lastStable == High && b.stable == Low
}

// Stable returns the debounced level.
func (b *DebouncedButton) Stable() Level {
	return b.stable
}
