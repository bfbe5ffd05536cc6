// Package gpio is the hardware boundary of the power manager.
// The real implementation uses the Linux GPIO character device and emulates
// the low-power domain, pin holds and deep sleep on top of it.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"

	"github.com/sweeney/tinywatch/internal/logic"
)

// Pin is a GPIO number (line offset on Linux, GPIO number on ESP32).
type Pin int

// Pull selects the input bias.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "PULLUP"
	case PullDown:
		return "PULLDOWN"
	default:
		return "NONE"
	}
}

// Ext1Mode selects the EXT1 wake trigger.
type Ext1Mode int

const (
	Ext1AnyLow Ext1Mode = iota
	Ext1AnyHigh
)

func (m Ext1Mode) String() string {
	if m == Ext1AnyHigh {
		return "ANY_HIGH"
	}
	return "ANY_LOW"
}

// ErrNotSupported is returned by the stub platform.
var ErrNotSupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Digital is plain pin I/O plus pin holds.
type Digital interface {
	// ConfigureInput sets pin as an input with the given bias.
	// PullNone leaves the pin high impedance.
	ConfigureInput(pin Pin, pull Pull) error

	// ConfigureOutput sets pin as an output driving level.
	ConfigureOutput(pin Pin, level logic.Level) error

	Read(pin Pin) (logic.Level, error)
	Write(pin Pin, level logic.Level) error

	// SetHold latches the pin's current output level (gpio_hold_en/dis).
	SetHold(pin Pin, enable bool) error

	// SetDeepSleepHold keeps pin holds active through deep sleep.
	SetDeepSleepHold(enable bool) error
}

// LowPower configures pins in the low-power (RTC) domain, the only GPIO
// configuration that survives deep sleep.
type LowPower interface {
	RTCInit(pin Pin) error
	RTCDeinit(pin Pin) error
	RTCSetInputOnly(pin Pin) error
	RTCSetPullUp(pin Pin, enable bool) error
	RTCSetPullDown(pin Pin, enable bool) error
	RTCSetHold(pin Pin, enable bool) error
	RTCLevel(pin Pin) (logic.Level, error)
}

// DeepSleep controls wake sources and sleep entry, and reports why the
// current run started.
type DeepSleep interface {
	DisableWakeSources() error
	EnableExt1Wakeup(mask uint64, mode Ext1Mode) error

	// StartDeepSleep powers down. On a microcontroller it never returns;
	// on Linux it returns after resume and the caller must exit so the
	// next run re-initialises from scratch.
	StartDeepSleep() error

	WakeCause() (logic.RawWakeCause, error)
	Ext1WakeStatus() (uint64, error)
}

// Platform is the full hardware capability set.
type Platform interface {
	Digital
	LowPower
	DeepSleep

	// Close releases hardware resources.
	Close() error
}

// Options configures the real platform.
type Options struct {
	// Chip is the GPIO character device name, e.g. "gpiochip0".
	Chip string

	// StatePath holds the sleep record that stands in for the retained
	// low-power domain. It should live on a tmpfs so power loss clears it.
	StatePath string

	// SuspendCommand is run to power the host down (e.g. systemctl suspend).
	// Empty means deep sleep only records state and returns.
	SuspendCommand []string
}

// Default options.
const (
	DefaultChip      = "gpiochip0"
	DefaultStatePath = "/run/tinywatch/sleep.json"
)
