// Package console mirrors the diagnostic log to a serial port, the way the
// watch prints to its USB UART.
package console

import (
	"fmt"
	"sync"

	"go.bug.st/serial"
)

// DefaultBaud is the monitor speed of the watch's USB UART.
const DefaultBaud = 115200

// openPort is replaced in tests.
var openPort = serial.Open

// Console is an io.WriteCloser over a serial port. Write errors are counted
// and swallowed so a log tee keeps writing to its other outputs.
type Console struct {
	mu     sync.Mutex
	name   string
	port   serial.Port
	failed int
	closed bool
}

// Mode returns the 8N1 mode for baud.
func Mode(baud int) *serial.Mode {
	if baud <= 0 {
		baud = DefaultBaud
	}
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Open opens the named serial port.
func Open(name string, baud int) (*Console, error) {
	port, err := openPort(name, Mode(baud))
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	return &Console{name: name, port: port}, nil
}

// Ports lists the serial ports present on the host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	return ports, nil
}

// Write sends p to the port. It always reports success.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return len(p), nil
	}
	if _, err := c.port.Write(p); err != nil {
		c.failed++
	}
	return len(p), nil
}

// Failed returns the number of writes the port rejected.
func (c *Console) Failed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

// Name returns the port name.
func (c *Console) Name() string {
	return c.name
}

// Close drains and closes the port.
func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.port.Drain()
	return c.port.Close()
}
