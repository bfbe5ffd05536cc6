// Package sensor reads the watch's ADXL345 accelerometer over I2C.
package sensor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chewxy/math32"
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/adxl345"
)

const (
	regDevID = 0x00
	devID    = 0xE5
)

// ErrNotFound is returned when no ADXL345 answers on the bus.
var ErrNotFound = errors.New("sensor: adxl345 not found")

// Sample is one acceleration reading. Axes are in µg.
type Sample struct {
	X, Y, Z int32
}

// Magnitude returns the acceleration vector length in g.
func (s Sample) Magnitude() float32 {
	x := float32(s.X) / 1e6
	y := float32(s.Y) / 1e6
	z := float32(s.Z) / 1e6
	return math32.Sqrt(x*x + y*y + z*z)
}

// errBus remembers the first transaction error, since the driver drops them.
type errBus struct {
	bus drivers.I2C
	err error
}

func (b *errBus) Tx(addr uint16, w, r []byte) error {
	err := b.bus.Tx(addr, w, r)
	if err != nil && b.err == nil {
		b.err = err
	}
	return err
}

func (b *errBus) take() error {
	err := b.err
	b.err = nil
	return err
}

// Accelerometer is an ADXL345 on an I2C bus. It is safe for concurrent use.
type Accelerometer struct {
	mu     sync.Mutex
	bus    *errBus
	dev    adxl345.Device
	halted bool
}

// NewAccelerometer creates an accelerometer at the default address.
// Call Configure before Read.
func NewAccelerometer(bus drivers.I2C) *Accelerometer {
	eb := &errBus{bus: bus}
	return &Accelerometer{bus: eb, dev: adxl345.New(eb)}
}

// Configure checks the device ID and starts measuring.
func (a *Accelerometer) Configure() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := []byte{0}
	if err := a.bus.Tx(a.dev.Address, []byte{regDevID}, id); err != nil {
		a.bus.take()
		return fmt.Errorf("sensor: read device id: %w", err)
	}
	if id[0] != devID {
		return fmt.Errorf("%w (device id 0x%02X)", ErrNotFound, id[0])
	}
	a.dev.Configure()
	if err := a.bus.take(); err != nil {
		return fmt.Errorf("sensor: configure: %w", err)
	}
	a.halted = false
	return nil
}

// Read returns the current acceleration.
func (a *Accelerometer) Read() (Sample, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	x, y, z, _ := a.dev.ReadAcceleration()
	if err := a.bus.take(); err != nil {
		return Sample{}, fmt.Errorf("sensor: read: %w", err)
	}
	return Sample{X: x, Y: y, Z: z}, nil
}

// Suspend stops measurement.
func (a *Accelerometer) Suspend() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.dev.Halt()
	if err := a.bus.take(); err != nil {
		return fmt.Errorf("sensor: halt: %w", err)
	}
	a.halted = true
	return nil
}

// Resume restarts measurement after Suspend.
func (a *Accelerometer) Resume() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.dev.Restart()
	if err := a.bus.take(); err != nil {
		return fmt.Errorf("sensor: restart: %w", err)
	}
	a.halted = false
	return nil
}

// Halted reports whether measurement is stopped.
func (a *Accelerometer) Halted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.halted
}
