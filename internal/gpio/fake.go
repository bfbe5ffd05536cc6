package gpio

import (
	"fmt"

	"github.com/sweeney/tinywatch/internal/logic"
)

// PinState is the fake's view of one pin.
type PinState struct {
	Output bool
	Level  logic.Level // driven level when Output
	Pull   Pull
	Held   bool

	RTC         bool
	RTCInput    bool
	RTCPullUp   bool
	RTCPullDown bool
	RTCHeld     bool
}

// HighZ reports whether the pin is an input with no bias.
func (s PinState) HighZ() bool {
	return !s.Output && s.Pull == PullNone
}

// FakePlatform is a test double that records pin operations and returns
// scripted levels.
type FakePlatform struct {
	// Pins holds the configuration of every pin touched so far.
	Pins map[Pin]*PinState

	// Inputs is the externally applied level per pin (button contacts).
	// Pins absent from the map read HIGH, as with a pull-up.
	Inputs map[Pin]logic.Level

	// Ops records every call in order, e.g. "hold 21 on".
	Ops []string

	DeepSleepHold bool

	WakeSourcesCleared int
	Ext1Enabled        bool
	Ext1Mask           uint64
	Ext1Mode           Ext1Mode
	SleepStarted       int

	// Cause and Status are returned by WakeCause and Ext1WakeStatus.
	Cause  logic.RawWakeCause
	Status uint64

	// Errors, if set, are returned by the matching calls.
	ConfigureError error
	RTCError       error
	SleepError     error
	WakeError      error

	Closed bool

	rtcScript map[Pin][]logic.Level
	rtcIndex  map[Pin]int
}

// NewFakePlatform creates an empty FakePlatform.
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		Pins:      make(map[Pin]*PinState),
		Inputs:    make(map[Pin]logic.Level),
		rtcScript: make(map[Pin][]logic.Level),
		rtcIndex:  make(map[Pin]int),
	}
}

// ScriptRTC sets the levels returned by successive RTCLevel calls for pin.
// Once exhausted, the last level repeats.
func (f *FakePlatform) ScriptRTC(pin Pin, levels ...logic.Level) {
	f.rtcScript[pin] = levels
	f.rtcIndex[pin] = 0
}

// Pin returns the state of pin, creating it if needed.
func (f *FakePlatform) Pin(pin Pin) *PinState {
	s, ok := f.Pins[pin]
	if !ok {
		s = &PinState{}
		f.Pins[pin] = s
	}
	return s
}

// OpIndex returns the index of the first recorded op equal to op, or -1.
func (f *FakePlatform) OpIndex(op string) int {
	for i, o := range f.Ops {
		if o == op {
			return i
		}
	}
	return -1
}

func (f *FakePlatform) record(format string, args ...any) {
	f.Ops = append(f.Ops, fmt.Sprintf(format, args...))
}

// ConfigureInput records the input configuration. Held pins keep theirs.
func (f *FakePlatform) ConfigureInput(pin Pin, pull Pull) error {
	if f.ConfigureError != nil {
		return f.ConfigureError
	}
	f.record("input %d %s", pin, pull)
	s := f.Pin(pin)
	if s.Held {
		return nil
	}
	s.Output = false
	s.Pull = pull
	return nil
}

// ConfigureOutput records the output configuration. Held pins keep theirs.
func (f *FakePlatform) ConfigureOutput(pin Pin, level logic.Level) error {
	if f.ConfigureError != nil {
		return f.ConfigureError
	}
	f.record("output %d %s", pin, level)
	s := f.Pin(pin)
	if s.Held {
		return nil
	}
	s.Output = true
	s.Pull = PullNone
	s.Level = level
	return nil
}

// Read returns the driven level for outputs and the applied level for inputs.
func (f *FakePlatform) Read(pin Pin) (logic.Level, error) {
	s := f.Pin(pin)
	if s.Output {
		return s.Level, nil
	}
	return f.input(pin), nil
}

// Write drives an output. Writes to held pins are ignored.
func (f *FakePlatform) Write(pin Pin, level logic.Level) error {
	if f.ConfigureError != nil {
		return f.ConfigureError
	}
	f.record("write %d %s", pin, level)
	s := f.Pin(pin)
	if s.Held || !s.Output {
		return nil
	}
	s.Level = level
	return nil
}

// SetHold records a pin hold.
func (f *FakePlatform) SetHold(pin Pin, enable bool) error {
	f.record("hold %d %s", pin, onOff(enable))
	f.Pin(pin).Held = enable
	return nil
}

// SetDeepSleepHold records the global deep sleep hold.
func (f *FakePlatform) SetDeepSleepHold(enable bool) error {
	f.record("deep-sleep-hold %s", onOff(enable))
	f.DeepSleepHold = enable
	return nil
}

func (f *FakePlatform) rtc(op string, pin Pin, apply func(s *PinState)) error {
	if f.RTCError != nil {
		return f.RTCError
	}
	f.record("%s %d", op, pin)
	apply(f.Pin(pin))
	return nil
}

func (f *FakePlatform) RTCInit(pin Pin) error {
	return f.rtc("rtc-init", pin, func(s *PinState) { s.RTC = true })
}

func (f *FakePlatform) RTCDeinit(pin Pin) error {
	return f.rtc("rtc-deinit", pin, func(s *PinState) {
		s.RTC = false
		s.RTCInput = false
		s.RTCPullUp = false
		s.RTCPullDown = false
		s.RTCHeld = false
	})
}

func (f *FakePlatform) RTCSetInputOnly(pin Pin) error {
	return f.rtc("rtc-input", pin, func(s *PinState) { s.RTCInput = true })
}

func (f *FakePlatform) RTCSetPullUp(pin Pin, enable bool) error {
	return f.rtc("rtc-pullup-"+onOff(enable), pin, func(s *PinState) { s.RTCPullUp = enable })
}

func (f *FakePlatform) RTCSetPullDown(pin Pin, enable bool) error {
	return f.rtc("rtc-pulldown-"+onOff(enable), pin, func(s *PinState) { s.RTCPullDown = enable })
}

func (f *FakePlatform) RTCSetHold(pin Pin, enable bool) error {
	return f.rtc("rtc-hold-"+onOff(enable), pin, func(s *PinState) { s.RTCHeld = enable })
}

// RTCLevel returns the next scripted level for pin, or the applied input level.
func (f *FakePlatform) RTCLevel(pin Pin) (logic.Level, error) {
	if f.RTCError != nil {
		return logic.Low, f.RTCError
	}
	script := f.rtcScript[pin]
	if len(script) == 0 {
		return f.input(pin), nil
	}
	i := f.rtcIndex[pin]
	if i < len(script)-1 {
		f.rtcIndex[pin] = i + 1
	}
	return script[i], nil
}

func (f *FakePlatform) DisableWakeSources() error {
	f.record("wake-disable-all")
	f.WakeSourcesCleared++
	f.Ext1Enabled = false
	f.Ext1Mask = 0
	return nil
}

func (f *FakePlatform) EnableExt1Wakeup(mask uint64, mode Ext1Mode) error {
	if f.SleepError != nil {
		return f.SleepError
	}
	f.record("ext1 0x%X %s", mask, mode)
	f.Ext1Enabled = true
	f.Ext1Mask = mask
	f.Ext1Mode = mode
	return nil
}

// StartDeepSleep records the sleep and returns immediately.
func (f *FakePlatform) StartDeepSleep() error {
	if f.SleepError != nil {
		return f.SleepError
	}
	f.record("deep-sleep")
	f.SleepStarted++
	return nil
}

func (f *FakePlatform) WakeCause() (logic.RawWakeCause, error) {
	if f.WakeError != nil {
		return logic.RawUndefined, f.WakeError
	}
	return f.Cause, nil
}

func (f *FakePlatform) Ext1WakeStatus() (uint64, error) {
	if f.WakeError != nil {
		return 0, f.WakeError
	}
	return f.Status, nil
}

// Close marks the platform as closed.
func (f *FakePlatform) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded ops and pin state but keeps scripted wake data.
func (f *FakePlatform) Reset() {
	f.Pins = make(map[Pin]*PinState)
	f.Ops = nil
	f.DeepSleepHold = false
	f.WakeSourcesCleared = 0
	f.Ext1Enabled = false
	f.Ext1Mask = 0
	f.SleepStarted = 0
	f.Closed = false
	f.rtcIndex = make(map[Pin]int)
}

func (f *FakePlatform) input(pin Pin) logic.Level {
	if l, ok := f.Inputs[pin]; ok {
		return l
	}
	return logic.High
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
