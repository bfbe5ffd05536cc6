package power

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sweeney/tinywatch/internal/gpio"
	"github.com/sweeney/tinywatch/internal/logic"
)

// DefaultWakeSettle is the pause between configuring wake pins and sampling
// them.
const DefaultWakeSettle = 20 * time.Millisecond

// ErrNotSleeping is returned by Sleep when no sleep has been committed.
var ErrNotSleeping = errors.New("power: sleep not committed")

// Config holds the controller timings.
type Config struct {
	Debounce   time.Duration
	Idle       time.Duration
	Quiet      time.Duration
	WakeSettle time.Duration
}

// DefaultConfig returns the watch's standard timings.
func DefaultConfig() Config {
	return Config{
		Debounce:   logic.DefaultDebounce,
		Idle:       logic.DefaultIdle,
		Quiet:      logic.DefaultQuiet,
		WakeSettle: DefaultWakeSettle,
	}
}

// Suspender is a peripheral that is put to sleep alongside the display.
type Suspender interface {
	Suspend() error
	Resume() error
}

// Options configures a Controller. Zero fields take defaults.
type Options struct {
	Config  Config
	Buttons []logic.NamedPin
	Display DisplayPins

	// Sensor, if set, is suspended while preparing for sleep and resumed
	// on abort. Its errors are logged, not fatal.
	Sensor Suspender

	// Sleep implements settle delays. Defaults to time.Sleep.
	Sleep func(time.Duration)

	// OnTransition, if set, is called after every state change.
	OnTransition func(from, to logic.PowerState, at time.Time)
}

// DefaultButtons is the watch's button wiring.
func DefaultButtons() []logic.NamedPin {
	return []logic.NamedPin{
		{Name: "BTN1", Pin: 6},
		{Name: "BTN2", Pin: 7},
		{Name: "BTN3", Pin: 2},
	}
}

// Controller runs the sleep decision state machine. Tick it from a single
// goroutine.
type Controller struct {
	cfg      Config
	platform gpio.Platform

	buttons *Buttons
	periph  *Peripherals
	wake    *WakeSources
	sensor  Suspender

	idle  *logic.IdleTimer
	quiet *logic.QuietWindow

	state  logic.PowerState
	counts logic.EventCounts

	sleep        func(time.Duration)
	onTransition func(from, to logic.PowerState, at time.Time)
}

// NewController creates a controller in the AWAKE state. Call Begin before
// the first Tick.
func NewController(p gpio.Platform, opts Options) *Controller {
	cfg := opts.Config
	def := DefaultConfig()
	if cfg.Debounce <= 0 {
		cfg.Debounce = def.Debounce
	}
	if cfg.Idle <= 0 {
		cfg.Idle = def.Idle
	}
	if cfg.Quiet <= 0 {
		cfg.Quiet = def.Quiet
	}
	if cfg.WakeSettle <= 0 {
		cfg.WakeSettle = def.WakeSettle
	}
	pins := opts.Buttons
	if len(pins) == 0 {
		pins = DefaultButtons()
	}
	display := opts.Display
	if display == (DisplayPins{}) {
		display = DefaultDisplayPins()
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	return &Controller{
		cfg:          cfg,
		platform:     p,
		buttons:      NewButtons(p, pins, cfg.Debounce),
		periph:       NewPeripherals(p, display, sleep),
		wake:         NewWakeSources(p, pins),
		sensor:       opts.Sensor,
		quiet:        logic.NewQuietWindow(cfg.Quiet),
		state:        logic.StateAwake,
		sleep:        sleep,
		onTransition: opts.OnTransition,
	}
}

// Begin brings the display pins up from any previous sleep, seeds the
// buttons and starts the idle timer. The screen is left off.
func (c *Controller) Begin(now time.Time) error {
	if err := c.periph.Boot(); err != nil {
		return fmt.Errorf("boot peripherals: %w", err)
	}
	if err := c.wake.Release(); err != nil {
		return fmt.Errorf("release wake pins: %w", err)
	}
	if err := c.buttons.Begin(now); err != nil {
		return fmt.Errorf("begin buttons: %w", err)
	}
	c.idle = logic.NewIdleTimer(c.cfg.Idle, now)
	return nil
}

// ResetIdle restarts the idle timer at now.
func (c *Controller) ResetIdle(now time.Time) {
	if c.idle != nil {
		c.idle.Touch(now)
	}
}

// ScreenOn turns the backlight on.
func (c *Controller) ScreenOn() error {
	return c.periph.ScreenOn()
}

// Tick advances the state machine and returns the events it produced.
// Errors are hardware failures and leave the controller unusable.
func (c *Controller) Tick(now time.Time) ([]logic.Event, error) {
	switch c.state {
	case logic.StateAwake:
		return c.tickAwake(now)
	case logic.StateQuietCheck:
		return c.tickQuiet(now)
	default:
		return nil, nil
	}
}

func (c *Controller) tickAwake(now time.Time) ([]logic.Event, error) {
	fell, err := c.buttons.Update(now)
	if err != nil {
		return nil, err
	}

	var events []logic.Event
	for _, name := range fell {
		c.idle.Touch(now)
		c.counts.Presses++
		events = append(events, logic.Event{
			Timestamp: now,
			Type:      logic.EventButtonPress,
			Button:    name,
			State:     c.state,
		})
	}

	if !c.idle.Expired(now) {
		return events, nil
	}
	if err := c.prepare(now); err != nil {
		return events, err
	}
	return events, nil
}

func (c *Controller) prepare(now time.Time) error {
	log.Print("Sleeping...")
	c.transition(logic.StatePreparingSleep, now)
	c.counts.SleepAttempts++

	if c.sensor != nil {
		if err := c.sensor.Suspend(); err != nil {
			log.Printf("power: suspend sensor: %v", err)
		}
	}
	if err := c.periph.PrepareForSleep(); err != nil {
		return fmt.Errorf("prepare peripherals: %w", err)
	}
	if err := c.platform.DisableWakeSources(); err != nil {
		return fmt.Errorf("disable wake sources: %w", err)
	}
	if err := c.wake.Configure(); err != nil {
		return fmt.Errorf("configure wake sources: %w", err)
	}
	c.sleep(c.cfg.WakeSettle)

	c.quiet.Start(now.Add(c.cfg.WakeSettle))
	c.transition(logic.StateQuietCheck, now)
	return nil
}

func (c *Controller) tickQuiet(now time.Time) ([]logic.Event, error) {
	levels, err := c.wake.Levels()
	if err != nil {
		return nil, err
	}

	switch c.quiet.Observe(levels, now) {
	case logic.QuietNoisy:
		ev, err := c.abort(now, levels)
		if err != nil {
			return nil, err
		}
		return []logic.Event{ev}, nil
	case logic.QuietPassed:
		ev, err := c.commit(now)
		if err != nil {
			return nil, err
		}
		return []logic.Event{ev}, nil
	}
	return nil, nil
}

func (c *Controller) abort(now time.Time, levels []logic.Level) (logic.Event, error) {
	pins := c.wake.Pins()
	log.Printf("RTC levels not all HIGH: %s", formatLevels(pins, levels))
	log.Print("Sleep aborted: wake pin LOW/noisy (would wake instantly).")
	c.transition(logic.StateAborted, now)
	c.counts.SleepAborts++

	if err := c.wake.Release(); err != nil {
		return logic.Event{}, fmt.Errorf("release wake pins: %w", err)
	}
	if err := c.periph.Restore(); err != nil {
		return logic.Event{}, fmt.Errorf("restore peripherals: %w", err)
	}
	if c.sensor != nil {
		if err := c.sensor.Resume(); err != nil {
			log.Printf("power: resume sensor: %v", err)
		}
	}
	// Debounce state is kept so a press that caused the abort is still
	// reported once it settles.
	if err := c.buttons.Configure(); err != nil {
		return logic.Event{}, fmt.Errorf("configure buttons: %w", err)
	}
	c.idle.Touch(now)
	c.transition(logic.StateAwake, now)

	return logic.Event{
		Timestamp: now,
		Type:      logic.EventSleepAbort,
		Reason:    "wake pin LOW: " + strings.Join(lowPins(pins, levels), ","),
		State:     c.state,
	}, nil
}

func (c *Controller) commit(now time.Time) (logic.Event, error) {
	if err := c.platform.EnableExt1Wakeup(c.wake.Mask(), gpio.Ext1AnyLow); err != nil {
		return logic.Event{}, fmt.Errorf("enable ext1 wakeup: %w", err)
	}
	c.counts.SleepCommits++
	c.transition(logic.StateSleeping, now)
	log.Printf("power: wake mask 0x%X armed, entering deep sleep", c.wake.Mask())

	return logic.Event{
		Timestamp: now,
		Type:      logic.EventSleepEnter,
		Reason:    fmt.Sprintf("idle for %v, wake pins quiet for %v", c.idle.IdleFor(now), c.cfg.Quiet),
		State:     c.state,
	}, nil
}

// Sleep enters deep sleep. It is only valid once Tick has committed.
func (c *Controller) Sleep() error {
	if c.state != logic.StateSleeping {
		return ErrNotSleeping
	}
	if err := c.platform.StartDeepSleep(); err != nil {
		return fmt.Errorf("start deep sleep: %w", err)
	}
	return nil
}

func (c *Controller) transition(to logic.PowerState, now time.Time) {
	from := c.state
	c.state = to
	log.Printf("power: %s -> %s", from, to)
	if c.onTransition != nil {
		c.onTransition(from, to, now)
	}
}

// State returns the current power state.
func (c *Controller) State() logic.PowerState {
	return c.state
}

// Counts returns the cumulative counters.
func (c *Controller) Counts() logic.EventCounts {
	return c.counts
}

// Buttons returns the debounced button states.
func (c *Controller) Buttons() []ButtonState {
	return c.buttons.States()
}

// IdleFor returns how long there has been no button activity.
func (c *Controller) IdleFor(now time.Time) time.Duration {
	if c.idle == nil {
		return 0
	}
	return c.idle.IdleFor(now)
}

// WakePins returns the configured wake pins.
func (c *Controller) WakePins() []logic.NamedPin {
	return c.wake.Pins()
}

// Config returns the effective timings.
func (c *Controller) Config() Config {
	return c.cfg
}
