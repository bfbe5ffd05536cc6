package power

import (
	"fmt"
	"strings"

	"github.com/sweeney/tinywatch/internal/gpio"
	"github.com/sweeney/tinywatch/internal/logic"
)

// WakeSources configures the buttons as deep sleep wake pins in the
// low-power domain.
type WakeSources struct {
	rtc  gpio.LowPower
	pins []logic.NamedPin
}

// NewWakeSources creates a wake source set for pins.
func NewWakeSources(rtc gpio.LowPower, pins []logic.NamedPin) *WakeSources {
	return &WakeSources{rtc: rtc, pins: pins}
}

// Configure moves every wake pin into the low-power domain as a pulled-up,
// held input. It is safe to call on every sleep attempt.
func (w *WakeSources) Configure() error {
	for _, p := range w.pins {
		pin := gpio.Pin(p.Pin)
		steps := []struct {
			what string
			fn   func() error
		}{
			{"deinit", func() error { return w.rtc.RTCDeinit(pin) }},
			{"init", func() error { return w.rtc.RTCInit(pin) }},
			{"input", func() error { return w.rtc.RTCSetInputOnly(pin) }},
			{"pull-up", func() error { return w.rtc.RTCSetPullUp(pin, true) }},
			{"pull-down", func() error { return w.rtc.RTCSetPullDown(pin, false) }},
			{"hold", func() error { return w.rtc.RTCSetHold(pin, true) }},
		}
		for _, s := range steps {
			if err := s.fn(); err != nil {
				return fmt.Errorf("wake pin %s %s: %w", p.Name, s.what, err)
			}
		}
	}
	return nil
}

// Release drops the hold and returns the pins from the low-power domain.
func (w *WakeSources) Release() error {
	for _, p := range w.pins {
		pin := gpio.Pin(p.Pin)
		if err := w.rtc.RTCSetHold(pin, false); err != nil {
			return fmt.Errorf("wake pin %s release hold: %w", p.Name, err)
		}
		if err := w.rtc.RTCDeinit(pin); err != nil {
			return fmt.Errorf("wake pin %s deinit: %w", p.Name, err)
		}
	}
	return nil
}

// Mask returns the EXT1 bitmask of all wake pins.
func (w *WakeSources) Mask() uint64 {
	return logic.PinMask(w.pins)
}

// Levels reads every wake pin through the low-power domain, in pin order.
func (w *WakeSources) Levels() ([]logic.Level, error) {
	levels := make([]logic.Level, len(w.pins))
	for i, p := range w.pins {
		l, err := w.rtc.RTCLevel(gpio.Pin(p.Pin))
		if err != nil {
			return nil, fmt.Errorf("wake pin %s level: %w", p.Name, err)
		}
		levels[i] = l
	}
	return levels, nil
}

// Pins returns the configured wake pins.
func (w *WakeSources) Pins() []logic.NamedPin {
	return w.pins
}

// formatLevels renders levels as "BTN1=1 BTN2=0 BTN3=1".
func formatLevels(pins []logic.NamedPin, levels []logic.Level) string {
	parts := make([]string, len(pins))
	for i, p := range pins {
		parts[i] = fmt.Sprintf("%s=%d", p.Name, levels[i].Int())
	}
	return strings.Join(parts, " ")
}

// lowPins returns the names of pins reading LOW.
func lowPins(pins []logic.NamedPin, levels []logic.Level) []string {
	var names []string
	for i, p := range pins {
		if levels[i] == logic.Low {
			names = append(names, p.Name)
		}
	}
	return names
}
