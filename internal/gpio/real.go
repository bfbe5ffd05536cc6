//go:build linux

package gpio

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/tinywatch/internal/logic"
)

const consumer = "tinywatch"

// sleepRecord is written on deep sleep entry and read on the next start.
type sleepRecord struct {
	Mask    uint64    `json:"mask"`
	Mode    string    `json:"mode"`
	SleptAt time.Time `json:"slept_at"`
}

// RealPlatform drives GPIO lines through the Linux GPIO character device.
// Linux has no RTC domain, so low-power configuration is applied to the same
// line and holds are emulated by latching the line in software.
type RealPlatform struct {
	chip  *gpiocdev.Chip
	lines map[Pin]*gpiocdev.Line
	pulls map[Pin]Pull
	held  map[Pin]bool
	rtc   map[Pin]bool

	deepSleepHold bool
	wakeMask      uint64
	wakeMode      Ext1Mode

	statePath  string
	suspendCmd []string

	cause  logic.RawWakeCause
	status uint64
}

// NewRealPlatform opens the GPIO chip and recovers the wake cause from any
// sleep record left by the previous run.
func NewRealPlatform(opts Options) (*RealPlatform, error) {
	if opts.Chip == "" {
		opts.Chip = DefaultChip
	}
	if opts.StatePath == "" {
		opts.StatePath = DefaultStatePath
	}

	chip, err := gpiocdev.NewChip(opts.Chip, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	p := &RealPlatform{
		chip:       chip,
		lines:      make(map[Pin]*gpiocdev.Line),
		pulls:      make(map[Pin]Pull),
		held:       make(map[Pin]bool),
		rtc:        make(map[Pin]bool),
		statePath:  opts.StatePath,
		suspendCmd: opts.SuspendCommand,
	}

	if err := p.recoverWake(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// recoverWake classifies the start of this run. A sleep record means the
// previous run ended in deep sleep and was woken by a wake pin; otherwise
// this is a power-on.
func (p *RealPlatform) recoverWake() error {
	data, err := os.ReadFile(p.statePath)
	if errors.Is(err, os.ErrNotExist) {
		p.cause = logic.RawUndefined
		return nil
	}
	if err != nil {
		return fmt.Errorf("read sleep record: %w", err)
	}
	if err := os.Remove(p.statePath); err != nil {
		return fmt.Errorf("remove sleep record: %w", err)
	}

	var rec sleepRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Printf("gpio: ignoring corrupt sleep record: %v", err)
		p.cause = logic.RawUndefined
		return nil
	}
	if rec.Mask == 0 {
		p.cause = logic.RawUndefined
		return nil
	}

	p.cause = logic.RawExt1
	for pin := Pin(0); pin < 64; pin++ {
		if rec.Mask&(1<<uint(pin)) == 0 {
			continue
		}
		if err := p.ConfigureInput(pin, PullUp); err != nil {
			return fmt.Errorf("read wake pin %d: %w", pin, err)
		}
		level, err := p.Read(pin)
		if err != nil {
			return fmt.Errorf("read wake pin %d: %w", pin, err)
		}
		if level == logic.Low {
			p.status |= 1 << uint(pin)
		}
	}
	return nil
}

func bias(pull Pull) gpiocdev.LineBias {
	switch pull {
	case PullUp:
		return gpiocdev.WithPullUp
	case PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}

// ConfigureInput requests or reconfigures pin as an input.
func (p *RealPlatform) ConfigureInput(pin Pin, pull Pull) error {
	if p.held[pin] {
		return nil
	}
	p.pulls[pin] = pull
	if l, ok := p.lines[pin]; ok {
		if err := l.Reconfigure(gpiocdev.AsInput, bias(pull)); err != nil {
			return fmt.Errorf("reconfigure pin %d as input: %w", pin, err)
		}
		return nil
	}
	l, err := p.chip.RequestLine(int(pin), gpiocdev.AsInput, bias(pull))
	if err != nil {
		return fmt.Errorf("request pin %d as input: %w", pin, err)
	}
	p.lines[pin] = l
	return nil
}

// ConfigureOutput requests or reconfigures pin as an output.
func (p *RealPlatform) ConfigureOutput(pin Pin, level logic.Level) error {
	if p.held[pin] {
		return nil
	}
	delete(p.pulls, pin)
	if l, ok := p.lines[pin]; ok {
		if err := l.Reconfigure(gpiocdev.AsOutput(level.Int())); err != nil {
			return fmt.Errorf("reconfigure pin %d as output: %w", pin, err)
		}
		return nil
	}
	l, err := p.chip.RequestLine(int(pin), gpiocdev.AsOutput(level.Int()))
	if err != nil {
		return fmt.Errorf("request pin %d as output: %w", pin, err)
	}
	p.lines[pin] = l
	return nil
}

// Read returns the current level of pin.
func (p *RealPlatform) Read(pin Pin) (logic.Level, error) {
	l, ok := p.lines[pin]
	if !ok {
		return logic.Low, fmt.Errorf("read pin %d: not configured", pin)
	}
	v, err := l.Value()
	if err != nil {
		return logic.Low, fmt.Errorf("read pin %d: %w", pin, err)
	}
	return logic.Level(v != 0), nil
}

// Write drives pin. Writes to held pins are dropped.
func (p *RealPlatform) Write(pin Pin, level logic.Level) error {
	if p.held[pin] {
		return nil
	}
	l, ok := p.lines[pin]
	if !ok {
		return fmt.Errorf("write pin %d: not configured", pin)
	}
	if err := l.SetValue(level.Int()); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// SetHold latches pin at its current configuration.
func (p *RealPlatform) SetHold(pin Pin, enable bool) error {
	if enable {
		p.held[pin] = true
	} else {
		delete(p.held, pin)
	}
	return nil
}

// SetDeepSleepHold keeps held lines requested through sleep.
func (p *RealPlatform) SetDeepSleepHold(enable bool) error {
	p.deepSleepHold = enable
	return nil
}

func (p *RealPlatform) RTCInit(pin Pin) error {
	p.rtc[pin] = true
	return nil
}

func (p *RealPlatform) RTCDeinit(pin Pin) error {
	delete(p.rtc, pin)
	delete(p.held, pin)
	return nil
}

func (p *RealPlatform) RTCSetInputOnly(pin Pin) error {
	return p.ConfigureInput(pin, p.pulls[pin])
}

func (p *RealPlatform) RTCSetPullUp(pin Pin, enable bool) error {
	if enable {
		return p.ConfigureInput(pin, PullUp)
	}
	if p.pulls[pin] == PullUp {
		return p.ConfigureInput(pin, PullNone)
	}
	return nil
}

func (p *RealPlatform) RTCSetPullDown(pin Pin, enable bool) error {
	if enable {
		return p.ConfigureInput(pin, PullDown)
	}
	if p.pulls[pin] == PullDown {
		return p.ConfigureInput(pin, PullNone)
	}
	return nil
}

func (p *RealPlatform) RTCSetHold(pin Pin, enable bool) error {
	return p.SetHold(pin, enable)
}

func (p *RealPlatform) RTCLevel(pin Pin) (logic.Level, error) {
	if !p.rtc[pin] {
		return logic.Low, fmt.Errorf("rtc level pin %d: not in low-power domain", pin)
	}
	return p.Read(pin)
}

func (p *RealPlatform) DisableWakeSources() error {
	p.wakeMask = 0
	return nil
}

func (p *RealPlatform) EnableExt1Wakeup(mask uint64, mode Ext1Mode) error {
	for pin := Pin(0); pin < 64; pin++ {
		if mask&(1<<uint(pin)) != 0 && !p.rtc[pin] {
			return fmt.Errorf("enable ext1 wakeup: pin %d not in low-power domain", pin)
		}
	}
	p.wakeMask = mask
	p.wakeMode = mode
	return nil
}

// StartDeepSleep writes the sleep record and runs the suspend command.
// It returns once the host resumes.
func (p *RealPlatform) StartDeepSleep() error {
	rec := sleepRecord{
		Mask:    p.wakeMask,
		Mode:    p.wakeMode.String(),
		SleptAt: time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode sleep record: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.statePath), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(p.statePath, data, 0o644); err != nil {
		return fmt.Errorf("write sleep record: %w", err)
	}

	if len(p.suspendCmd) == 0 {
		return nil
	}
	cmd := exec.Command(p.suspendCmd[0], p.suspendCmd[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("suspend %q: %w (%s)", p.suspendCmd, err, out)
	}
	return nil
}

func (p *RealPlatform) WakeCause() (logic.RawWakeCause, error) {
	return p.cause, nil
}

func (p *RealPlatform) Ext1WakeStatus() (uint64, error) {
	return p.status, nil
}

// Close releases all lines. Lines are returned to biased-off inputs first
// so nothing is left driving the display bus, except held lines while the
// deep sleep hold is on.
func (p *RealPlatform) Close() error {
	var errs []error

	for pin, l := range p.lines {
		if !p.held[pin] || !p.deepSleepHold {
			if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithBiasDisabled); err != nil {
				errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
			}
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	p.lines = make(map[Pin]*gpiocdev.Line)

	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		p.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
