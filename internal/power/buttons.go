// Package power implements the watch's sleep/wake power management: button
// activity tracking, peripheral quiescing, wake source setup, the sleep
// decision state machine and wake diagnostics.
//
// All hardware access goes through the gpio package interfaces, and all time
// is passed in, so the package runs unchanged against gpio.FakePlatform.
package power

import (
	"fmt"
	"time"

	"github.com/sweeney/tinywatch/internal/gpio"
	"github.com/sweeney/tinywatch/internal/logic"
)

// ButtonState is a point-in-time view of one button.
type ButtonState struct {
	Name    string
	Pin     int
	Pressed bool
}

// Buttons polls a set of active-low buttons through debounce filters.
type Buttons struct {
	io   gpio.Digital
	list []*logic.DebouncedButton
}

// NewButtons creates debounce filters for pins. Call Begin before Update.
func NewButtons(io gpio.Digital, pins []logic.NamedPin, debounce time.Duration) *Buttons {
	b := &Buttons{io: io}
	for _, p := range pins {
		b.list = append(b.list, logic.NewDebouncedButton(p.Name, p.Pin, debounce))
	}
	return b
}

// Begin configures every button as a pulled-up input and seeds its filter
// from the current level.
func (b *Buttons) Begin(now time.Time) error {
	if err := b.Configure(); err != nil {
		return err
	}
	for _, btn := range b.list {
		raw, err := b.io.Read(gpio.Pin(btn.Pin))
		if err != nil {
			return fmt.Errorf("read %s: %w", btn.Name, err)
		}
		btn.Begin(raw, now)
	}
	return nil
}

// Configure makes every button a pulled-up input again without touching
// the debounce state.
func (b *Buttons) Configure() error {
	for _, btn := range b.list {
		if err := b.io.ConfigureInput(gpio.Pin(btn.Pin), gpio.PullUp); err != nil {
			return fmt.Errorf("configure %s: %w", btn.Name, err)
		}
	}
	return nil
}

// Update samples every button and returns the names of those that were
// pressed on this tick.
func (b *Buttons) Update(now time.Time) ([]string, error) {
	var fell []string
	for _, btn := range b.list {
		raw, err := b.io.Read(gpio.Pin(btn.Pin))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", btn.Name, err)
		}
		btn.Update(raw, now)
		if btn.Fell() {
			fell = append(fell, btn.Name)
		}
	}
	return fell, nil
}

// States returns the debounced state of every button.
func (b *Buttons) States() []ButtonState {
	out := make([]ButtonState, len(b.list))
	for i, btn := range b.list {
		out[i] = ButtonState{Name: btn.Name, Pin: btn.Pin, Pressed: btn.Pressed()}
	}
	return out
}
