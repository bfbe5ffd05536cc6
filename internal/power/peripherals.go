package power

import (
	"fmt"
	"time"

	"github.com/sweeney/tinywatch/internal/gpio"
	"github.com/sweeney/tinywatch/internal/logic"
)

// BacklightSettle is the pause after switching the backlight off before
// latching it.
const BacklightSettle = 5 * time.Millisecond

// DisplayPins are the TFT control lines and backlight enable.
type DisplayPins struct {
	Backlight gpio.Pin // HIGH = on
	CS        gpio.Pin
	DC        gpio.Pin
	RST       gpio.Pin
	MOSI      gpio.Pin
	SCLK      gpio.Pin
}

// DefaultDisplayPins is the ST7789 wiring of the TinyS3 board.
func DefaultDisplayPins() DisplayPins {
	return DisplayPins{
		Backlight: 21,
		CS:        34,
		DC:        5,
		RST:       4,
		MOSI:      35,
		SCLK:      36,
	}
}

type pinLevel struct {
	pin   gpio.Pin
	level logic.Level
}

// idleLevels are the safe driven levels of the display bus: deselected,
// data mode, out of reset, clock and data low.
func (d DisplayPins) idleLevels() []pinLevel {
	return []pinLevel{
		{d.CS, logic.High},
		{d.DC, logic.High},
		{d.RST, logic.High},
		{d.MOSI, logic.Low},
		{d.SCLK, logic.Low},
	}
}

// Peripherals sequences the display pins and backlight into and out of sleep.
type Peripherals struct {
	io    gpio.Digital
	pins  DisplayPins
	sleep func(time.Duration)
}

// NewPeripherals creates a sequencer. sleep is used for settle delays.
func NewPeripherals(io gpio.Digital, pins DisplayPins, sleep func(time.Duration)) *Peripherals {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Peripherals{io: io, pins: pins, sleep: sleep}
}

// Boot puts the display bus in its idle state with the backlight off and
// releases any hold left over from the previous sleep. It must run before
// anything else drives these pins.
func (p *Peripherals) Boot() error {
	if err := p.io.ConfigureOutput(p.pins.Backlight, logic.Low); err != nil {
		return fmt.Errorf("backlight: %w", err)
	}
	if err := p.driveIdle(); err != nil {
		return err
	}
	if err := p.releaseHolds(); err != nil {
		return err
	}
	// Holds could have swallowed the first write.
	if err := p.io.ConfigureOutput(p.pins.Backlight, logic.Low); err != nil {
		return fmt.Errorf("backlight: %w", err)
	}
	return nil
}

// PrepareForSleep turns the backlight off and latches it, then floats the
// display lines. The backlight must be held before any line is floated.
func (p *Peripherals) PrepareForSleep() error {
	if err := p.ScreenOff(); err != nil {
		return err
	}
	p.sleep(BacklightSettle)

	if err := p.io.ConfigureOutput(p.pins.Backlight, logic.Low); err != nil {
		return fmt.Errorf("backlight: %w", err)
	}
	if err := p.io.SetHold(p.pins.Backlight, true); err != nil {
		return fmt.Errorf("hold backlight: %w", err)
	}
	if err := p.io.SetDeepSleepHold(true); err != nil {
		return fmt.Errorf("enable deep sleep hold: %w", err)
	}

	for _, pl := range p.pins.idleLevels() {
		if err := p.io.ConfigureInput(pl.pin, gpio.PullNone); err != nil {
			return fmt.Errorf("float pin %d: %w", pl.pin, err)
		}
	}
	return nil
}

// Restore undoes PrepareForSleep after an aborted sleep: holds released,
// display bus driven again and backlight on. Calling it repeatedly gives
// the same result.
func (p *Peripherals) Restore() error {
	if err := p.releaseHolds(); err != nil {
		return err
	}
	if err := p.driveIdle(); err != nil {
		return err
	}
	if err := p.io.ConfigureOutput(p.pins.Backlight, logic.High); err != nil {
		return fmt.Errorf("backlight: %w", err)
	}
	return nil
}

// ScreenOn drives the backlight enable high.
func (p *Peripherals) ScreenOn() error {
	if err := p.io.Write(p.pins.Backlight, logic.High); err != nil {
		return fmt.Errorf("screen on: %w", err)
	}
	return nil
}

// ScreenOff drives the backlight enable low.
func (p *Peripherals) ScreenOff() error {
	if err := p.io.Write(p.pins.Backlight, logic.Low); err != nil {
		return fmt.Errorf("screen off: %w", err)
	}
	return nil
}

func (p *Peripherals) driveIdle() error {
	for _, pl := range p.pins.idleLevels() {
		if err := p.io.ConfigureOutput(pl.pin, pl.level); err != nil {
			return fmt.Errorf("drive pin %d: %w", pl.pin, err)
		}
	}
	return nil
}

func (p *Peripherals) releaseHolds() error {
	if err := p.io.SetDeepSleepHold(false); err != nil {
		return fmt.Errorf("release deep sleep hold: %w", err)
	}
	if err := p.io.SetHold(p.pins.Backlight, false); err != nil {
		return fmt.Errorf("release backlight hold: %w", err)
	}
	return nil
}
