package power

import (
	"fmt"
	"log"

	"github.com/sweeney/tinywatch/internal/gpio"
	"github.com/sweeney/tinywatch/internal/logic"
)

// WakeReport describes why the current run started.
type WakeReport struct {
	Raw    logic.RawWakeCause
	Cause  logic.WakeCause
	Status uint64   // EXT1 status mask, external pin wakes only
	Pins   []string // buttons whose status bit is set

	pins []logic.NamedPin
}

// DiagnoseWake reads the wake cause once and, for an external pin wake, the
// EXT1 status. A failed cause query yields an OTHER report with the error.
func DiagnoseWake(ds gpio.DeepSleep, pins []logic.NamedPin) (WakeReport, error) {
	r := WakeReport{pins: pins}

	raw, err := ds.WakeCause()
	if err != nil {
		r.Raw = logic.RawAll
		r.Cause = logic.WakeOther
		return r, fmt.Errorf("read wake cause: %w", err)
	}
	r.Raw = raw
	r.Cause = logic.ClassifyWakeCause(raw)

	if r.Cause != logic.WakeExternalPin {
		return r, nil
	}
	status, err := ds.Ext1WakeStatus()
	if err != nil {
		return r, fmt.Errorf("read ext1 status: %w", err)
	}
	r.Status = status
	r.Pins = logic.PinsInMask(status, pins)
	return r, nil
}

// Lines returns the human-readable diagnostic lines.
func (r WakeReport) Lines() []string {
	lines := []string{"Wake cause: " + r.Cause.String()}
	if r.Cause == logic.WakeExternalPin {
		lines = append(lines, logic.DescribeExt1Status(r.Status, r.pins)...)
	}
	return lines
}

// Log writes the diagnostic lines to the standard logger.
func (r WakeReport) Log() {
	for _, l := range r.Lines() {
		log.Print(l)
	}
}
