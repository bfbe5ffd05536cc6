package sensor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ADC reads one channel of a Linux IIO analog input, e.g.
// /sys/bus/iio/devices/iio:device0/in_voltage0_raw.
type ADC struct {
	path string
}

// OpenADC checks that the channel file is readable.
func OpenADC(path string) (*ADC, error) {
	a := &ADC{path: path}
	if _, err := a.Read(); err != nil {
		return nil, err
	}
	return a, nil
}

// Read returns the raw conversion result.
func (a *ADC) Read() (int, error) {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return 0, fmt.Errorf("read adc: %w", err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse adc %s: %w", a.path, err)
	}
	return v, nil
}

// Path returns the channel file.
func (a *ADC) Path() string {
	return a.path
}
