//go:build !linux

package gpio

import "github.com/sweeney/tinywatch/internal/logic"

// RealPlatform is not available on non-Linux platforms.
type RealPlatform struct{}

// NewRealPlatform returns an error on non-Linux platforms.
func NewRealPlatform(opts Options) (*RealPlatform, error) {
	return nil, ErrNotSupported
}

func (p *RealPlatform) ConfigureInput(Pin, Pull) error          { return ErrNotSupported }
func (p *RealPlatform) ConfigureOutput(Pin, logic.Level) error  { return ErrNotSupported }
func (p *RealPlatform) Read(Pin) (logic.Level, error)           { return logic.Low, ErrNotSupported }
func (p *RealPlatform) Write(Pin, logic.Level) error            { return ErrNotSupported }
func (p *RealPlatform) SetHold(Pin, bool) error                 { return ErrNotSupported }
func (p *RealPlatform) SetDeepSleepHold(bool) error             { return ErrNotSupported }
func (p *RealPlatform) RTCInit(Pin) error                       { return ErrNotSupported }
func (p *RealPlatform) RTCDeinit(Pin) error                     { return ErrNotSupported }
func (p *RealPlatform) RTCSetInputOnly(Pin) error               { return ErrNotSupported }
func (p *RealPlatform) RTCSetPullUp(Pin, bool) error            { return ErrNotSupported }
func (p *RealPlatform) RTCSetPullDown(Pin, bool) error          { return ErrNotSupported }
func (p *RealPlatform) RTCSetHold(Pin, bool) error              { return ErrNotSupported }
func (p *RealPlatform) RTCLevel(Pin) (logic.Level, error)       { return logic.Low, ErrNotSupported }
func (p *RealPlatform) DisableWakeSources() error               { return ErrNotSupported }
func (p *RealPlatform) EnableExt1Wakeup(uint64, Ext1Mode) error { return ErrNotSupported }
func (p *RealPlatform) StartDeepSleep() error                   { return ErrNotSupported }
func (p *RealPlatform) WakeCause() (logic.RawWakeCause, error) {
	return logic.RawUndefined, ErrNotSupported
}
func (p *RealPlatform) Ext1WakeStatus() (uint64, error) { return 0, ErrNotSupported }
func (p *RealPlatform) Close() error                    { return nil }
