//go:build !linux

package sensor

import "errors"

// Bus is unavailable on this platform.
type Bus struct{}

// OpenBus always fails on non-Linux platforms.
func OpenBus(path string) (*Bus, error) {
	return nil, errors.New("i2c-dev is only supported on Linux")
}

func (b *Bus) Tx(addr uint16, w, r []byte) error {
	return errors.New("i2c-dev is only supported on Linux")
}

func (b *Bus) Close() error {
	return nil
}
