// Package config loads the daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/tinywatch/internal/gpio"
	"github.com/sweeney/tinywatch/internal/logic"
	"github.com/sweeney/tinywatch/internal/power"
)

// Config represents the daemon configuration.
type Config struct {
	Platform PlatformConfig `yaml:"platform"`
	Buttons  []ButtonConfig `yaml:"buttons"`
	Display  DisplayConfig  `yaml:"display"`
	Timing   TimingConfig   `yaml:"timing"`
	Sensor   SensorConfig   `yaml:"sensor"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	HTTP     HTTPConfig     `yaml:"http"`
	Console  ConsoleConfig  `yaml:"console"`
}

// PlatformConfig selects the GPIO chip and sleep emulation settings.
type PlatformConfig struct {
	Chip           string   `yaml:"chip"`
	StatePath      string   `yaml:"state_path"`
	SuspendCommand []string `yaml:"suspend_command"` // e.g. ["systemctl", "suspend"]; empty = none
}

// ButtonConfig is one active-low wake button.
type ButtonConfig struct {
	Name string `yaml:"name"`
	Pin  int    `yaml:"pin"`
}

// DisplayConfig holds the TFT control and backlight pins.
type DisplayConfig struct {
	Backlight int `yaml:"backlight"`
	CS        int `yaml:"cs"`
	DC        int `yaml:"dc"`
	RST       int `yaml:"rst"`
	MOSI      int `yaml:"mosi"`
	SCLK      int `yaml:"sclk"`
}

// TimingConfig holds the loop and sleep timings.
type TimingConfig struct {
	Poll       time.Duration `yaml:"poll"`
	Debounce   time.Duration `yaml:"debounce"`
	Idle       time.Duration `yaml:"idle"`
	Quiet      time.Duration `yaml:"quiet"`
	WakeSettle time.Duration `yaml:"wake_settle"` // 0 uses the default
	Heartbeat  time.Duration `yaml:"heartbeat"`   // 0 disables
}

// SensorConfig holds the accelerometer settings.
type SensorConfig struct {
	Bus      string        `yaml:"bus"`    // e.g. /dev/i2c-1; empty disables the accelerometer
	HRADC    string        `yaml:"hr_adc"` // IIO channel file of the heart-rate ADC; empty disables it
	Interval time.Duration `yaml:"interval"`
}

// MQTTConfig holds the broker settings.
type MQTTConfig struct {
	Broker     string `yaml:"broker"` // empty disables publishing
	ClientID   string `yaml:"client_id"`
	BufferSize int    `yaml:"buffer_size"`
}

// HTTPConfig holds the status server settings.
type HTTPConfig struct {
	Addr      string `yaml:"addr"` // empty disables the server
	AccessLog bool   `yaml:"access_log"`
}

// ConsoleConfig holds the serial diagnostic console settings.
type ConsoleConfig struct {
	Port string `yaml:"port"` // empty disables the mirror
	Baud int    `yaml:"baud"`
}

// Default returns the configuration of the stock watch.
func Default() *Config {
	d := power.DefaultDisplayPins()
	return &Config{
		Platform: PlatformConfig{
			Chip:      gpio.DefaultChip,
			StatePath: gpio.DefaultStatePath,
		},
		Buttons: []ButtonConfig{
			{Name: "BTN1", Pin: 6},
			{Name: "BTN2", Pin: 7},
			{Name: "BTN3", Pin: 2},
		},
		Display: DisplayConfig{
			Backlight: int(d.Backlight),
			CS:        int(d.CS),
			DC:        int(d.DC),
			RST:       int(d.RST),
			MOSI:      int(d.MOSI),
			SCLK:      int(d.SCLK),
		},
		Timing: TimingConfig{
			Poll:       10 * time.Millisecond,
			Debounce:   logic.DefaultDebounce,
			Idle:       logic.DefaultIdle,
			Quiet:      logic.DefaultQuiet,
			WakeSettle: power.DefaultWakeSettle,
			Heartbeat:  15 * time.Minute,
		},
		Sensor: SensorConfig{
			Interval: 250 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			ClientID:   "tinywatch",
			BufferSize: 100,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Console: ConsoleConfig{
			Baud: 115200,
		},
	}
}

// Load loads configuration from a YAML file. Fields missing from the file
// keep their defaults; a missing file yields the defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Buttons) == 0 {
		errs = append(errs, errors.New("at least one button is required"))
	}
	names := make(map[string]bool)
	pins := make(map[int]string)
	claim := func(pin int, owner string) {
		if pin < 0 || pin > 63 {
			errs = append(errs, fmt.Errorf("%s: pin %d out of range 0-63", owner, pin))
			return
		}
		if other, ok := pins[pin]; ok {
			errs = append(errs, fmt.Errorf("%s: pin %d already used by %s", owner, pin, other))
			return
		}
		pins[pin] = owner
	}
	for _, b := range c.Buttons {
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("button on pin %d has no name", b.Pin))
		} else if names[b.Name] {
			errs = append(errs, fmt.Errorf("duplicate button name %s", b.Name))
		}
		names[b.Name] = true
		claim(b.Pin, "button "+b.Name)
	}
	claim(c.Display.Backlight, "display backlight")
	claim(c.Display.CS, "display cs")
	claim(c.Display.DC, "display dc")
	claim(c.Display.RST, "display rst")
	claim(c.Display.MOSI, "display mosi")
	claim(c.Display.SCLK, "display sclk")

	positive := []struct {
		name string
		d    time.Duration
	}{
		{"timing.poll", c.Timing.Poll},
		{"timing.debounce", c.Timing.Debounce},
		{"timing.idle", c.Timing.Idle},
		{"timing.quiet", c.Timing.Quiet},
	}
	for _, p := range positive {
		if p.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", p.name, p.d))
		}
	}
	// Wake pins are sampled once per poll during the quiet window.
	if c.Timing.Poll > 0 && c.Timing.Debounce > 0 && c.Timing.Poll >= c.Timing.Debounce {
		errs = append(errs, fmt.Errorf("timing.poll (%v) must be shorter than timing.debounce (%v)", c.Timing.Poll, c.Timing.Debounce))
	}
	if c.Timing.Debounce > 0 && c.Timing.Quiet > 0 && c.Timing.Debounce >= c.Timing.Quiet {
		errs = append(errs, fmt.Errorf("timing.debounce (%v) must be shorter than timing.quiet (%v)", c.Timing.Debounce, c.Timing.Quiet))
	}
	if c.Timing.WakeSettle < 0 {
		errs = append(errs, fmt.Errorf("timing.wake_settle must not be negative, got %v", c.Timing.WakeSettle))
	}
	if c.Timing.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("timing.heartbeat must not be negative, got %v", c.Timing.Heartbeat))
	}
	if (c.Sensor.Bus != "" || c.Sensor.HRADC != "") && c.Sensor.Interval <= 0 {
		errs = append(errs, fmt.Errorf("sensor.interval must be positive, got %v", c.Sensor.Interval))
	}
	if c.MQTT.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("mqtt.buffer_size must not be negative, got %d", c.MQTT.BufferSize))
	}
	if c.Console.Port != "" && c.Console.Baud <= 0 {
		errs = append(errs, fmt.Errorf("console.baud must be positive, got %d", c.Console.Baud))
	}

	return errors.Join(errs...)
}

// ButtonPins returns the buttons as wake pins.
func (c *Config) ButtonPins() []logic.NamedPin {
	out := make([]logic.NamedPin, len(c.Buttons))
	for i, b := range c.Buttons {
		out[i] = logic.NamedPin{Name: b.Name, Pin: b.Pin}
	}
	return out
}

// DisplayPins returns the display wiring.
func (c *Config) DisplayPins() power.DisplayPins {
	return power.DisplayPins{
		Backlight: gpio.Pin(c.Display.Backlight),
		CS:        gpio.Pin(c.Display.CS),
		DC:        gpio.Pin(c.Display.DC),
		RST:       gpio.Pin(c.Display.RST),
		MOSI:      gpio.Pin(c.Display.MOSI),
		SCLK:      gpio.Pin(c.Display.SCLK),
	}
}

// PowerConfig returns the controller timings.
func (c *Config) PowerConfig() power.Config {
	return power.Config{
		Debounce:   c.Timing.Debounce,
		Idle:       c.Timing.Idle,
		Quiet:      c.Timing.Quiet,
		WakeSettle: c.Timing.WakeSettle,
	}
}

// GPIOOptions returns the platform options.
func (c *Config) GPIOOptions() gpio.Options {
	return gpio.Options{
		Chip:           c.Platform.Chip,
		StatePath:      c.Platform.StatePath,
		SuspendCommand: c.Platform.SuspendCommand,
	}
}
