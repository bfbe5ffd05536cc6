package logic

import "fmt"

// RawWakeCause is the hardware wake-cause code, numbered as the ESP32
// sleep driver reports it.
type RawWakeCause int

const (
	RawUndefined RawWakeCause = iota
	RawAll
	RawExt0
	RawExt1
	RawTimer
	RawTouchpad
	RawULP
	RawGPIO
	RawUART
	RawWiFi
	RawCOCPU
	RawCOCPUTrap
	RawBT
)

var rawNames = [...]string{
	RawUndefined: "UNDEFINED",
	RawAll:       "ALL",
	RawExt0:      "EXT0",
	RawExt1:      "EXT1",
	RawTimer:     "TIMER",
	RawTouchpad:  "TOUCHPAD",
	RawULP:       "ULP",
	RawGPIO:      "GPIO",
	RawUART:      "UART",
	RawWiFi:      "WIFI",
	RawCOCPU:     "COCPU",
	RawCOCPUTrap: "COCPU_TRAP",
	RawBT:        "BT",
}

func (c RawWakeCause) String() string {
	if c >= 0 && int(c) < len(rawNames) {
		return rawNames[c]
	}
	return fmt.Sprintf("RAW(%d)", int(c))
}

// WakeCause classifies why the device most recently resumed.
type WakeCause int

const (
	WakePowerOnOrReset WakeCause = iota
	WakeExternalPin
	WakeTimer
	WakeOther
)

func (c WakeCause) String() string {
	switch c {
	case WakeExternalPin:
		return "EXT1 (buttons)"
	case WakeTimer:
		return "TIMER"
	case WakePowerOnOrReset:
		return "POWERON/RESET"
	default:
		return "OTHER"
	}
}

// ClassifyWakeCause maps a hardware cause to its classification.
func ClassifyWakeCause(raw RawWakeCause) WakeCause {
	switch raw {
	case RawExt1:
		return WakeExternalPin
	case RawTimer:
		return WakeTimer
	case RawUndefined:
		return WakePowerOnOrReset
	default:
		return WakeOther
	}
}

// NamedPin pairs a wake pin with its display name.
type NamedPin struct {
	Name string
	Pin  int
}

// PinMask returns the wake bitmask for pins, one bit per pin number.
func PinMask(pins []NamedPin) uint64 {
	var mask uint64
	for _, p := range pins {
		mask |= 1 << uint(p.Pin)
	}
	return mask
}

// PinsInMask returns the names of pins whose bit is set in status, in pin
// list order.
func PinsInMask(status uint64, pins []NamedPin) []string {
	var names []string
	for _, p := range pins {
		if status&(1<<uint(p.Pin)) != 0 {
			names = append(names, p.Name)
		}
	}
	return names
}

// DescribeExt1Status returns the diagnostic lines for an EXT1 wake status
// mask. A zero mask is reported as its own line, not as an empty breakdown.
func DescribeExt1Status(status uint64, pins []NamedPin) []string {
	if status == 0 {
		return []string{"EXT1 status: 0 (no pin reported)"}
	}
	lines := []string{fmt.Sprintf("EXT1 wake status mask: 0x%X", uint32(status))}
	for _, name := range PinsInMask(status, pins) {
		lines = append(lines, fmt.Sprintf(" -> %s was LOW", name))
	}
	return lines
}
