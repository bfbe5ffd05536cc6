package sensor

import (
	"errors"
	"math"
	"testing"

	"tinygo.org/x/drivers"
)

var _ drivers.I2C = (*fakeI2C)(nil)

// fakeI2C is a register-file ADXL345.
type fakeI2C struct {
	regs   [64]byte
	writes [][]byte
	err    error
}

func newFakeADXL() *fakeI2C {
	f := &fakeI2C{}
	f.regs[regDevID] = devID
	return f
}

func (f *fakeI2C) setAxes(x, y, z int16) {
	for i, v := range []int16{x, y, z} {
		f.regs[0x32+2*i] = byte(v)
		f.regs[0x33+2*i] = byte(uint16(v) >> 8)
	}
}

func (f *fakeI2C) Tx(addr uint16, w, r []byte) error {
	if f.err != nil {
		return f.err
	}
	if addr != 0x53 {
		return errors.New("nak")
	}
	reg := w[0]
	if r == nil {
		f.writes = append(f.writes, append([]byte(nil), w...))
		copy(f.regs[reg:], w[1:])
		return nil
	}
	copy(r, f.regs[reg:])
	return nil
}

func TestConfigureChecksDeviceID(t *testing.T) {
	f := newFakeADXL()
	a := NewAccelerometer(f)
	if err := a.Configure(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.regs[0x2D]&0x08 == 0 {
		t.Error("measure bit should be set after Configure")
	}

	f = &fakeI2C{}
	a = NewAccelerometer(f)
	if err := a.Configure(); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for wrong device id, got %v", err)
	}
}

func TestConfigureBusError(t *testing.T) {
	f := newFakeADXL()
	f.err = errors.New("bus stuck")
	a := NewAccelerometer(f)
	if err := a.Configure(); err == nil {
		t.Error("expected bus error")
	}
}

func TestReadScalesToMicroG(t *testing.T) {
	f := newFakeADXL()
	a := NewAccelerometer(f)
	a.Configure()

	// 256 LSB at 4mg/LSB is ~1g.
	f.setAxes(0, 0, 256)
	s, err := a.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.X != 0 || s.Y != 0 || s.Z != 1024 {
		t.Errorf("unexpected sample: %+v", s)
	}

	f.setAxes(-10, 0, 0)
	s, _ = a.Read()
	if s.X != -40 {
		t.Errorf("negative axis: got %d", s.X)
	}
}

func TestReadError(t *testing.T) {
	f := newFakeADXL()
	a := NewAccelerometer(f)
	a.Configure()

	f.err = errors.New("nak")
	if _, err := a.Read(); err == nil {
		t.Error("expected read error")
	}
	f.err = nil
	if _, err := a.Read(); err != nil {
		t.Errorf("error should not stick: %v", err)
	}
}

func TestSuspendResume(t *testing.T) {
	f := newFakeADXL()
	a := NewAccelerometer(f)
	a.Configure()

	if err := a.Suspend(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.Halted() || f.regs[0x2D]&0x08 != 0 {
		t.Error("Suspend should clear the measure bit")
	}
	if err := a.Resume(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Halted() || f.regs[0x2D]&0x08 == 0 {
		t.Error("Resume should set the measure bit")
	}

	f.err = errors.New("nak")
	if err := a.Suspend(); err == nil {
		t.Error("expected suspend error")
	}
}

func TestSampleMagnitude(t *testing.T) {
	s := Sample{X: 600000, Y: 0, Z: 800000}
	if got := s.Magnitude(); math.Abs(float64(got)-1.0) > 1e-4 {
		t.Errorf("got %f, want 1.0", got)
	}
	if (Sample{}).Magnitude() != 0 {
		t.Error("zero sample should have zero magnitude")
	}
}
