// Package status provides a thread-safe status tracker for the tinywatch daemon.
// It is written by the run loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/tinywatch/internal/logic"
)

// NetworkInfo is the host's primary network interface.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// WakeInfo is why the current run started.
type WakeInfo struct {
	Cause    string
	Raw      string
	Ext1Mask uint64
	Pins     []string
}

// ButtonInfo is one button's debounced state.
type ButtonInfo struct {
	Name    string
	Pin     int
	Pressed bool
}

// AccelInfo is the last accelerometer sample.
type AccelInfo struct {
	X, Y, Z   int32 // µg
	Magnitude float32
	Halted    bool
}

// HeartRateInfo is the last heart-rate ADC conversion.
type HeartRateInfo struct {
	Raw int
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	DebounceMs  int64
	IdleMs      int64
	QuietMs     int64
	HeartbeatMs int64
	Broker      string
	HTTPPort    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value and safe to use after the lock is released.
type Snapshot struct {
	BootID        string
	State         logic.PowerState
	Wake          *WakeInfo
	Buttons       []ButtonInfo
	Idle          time.Duration
	Counts        logic.EventCounts
	Accel         *AccelInfo
	HeartRate     *HeartRateInfo
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time, boot id and config.
func NewTracker(startTime time.Time, bootID string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			BootID:    bootID,
			State:     logic.StateAwake,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the power state, button states, idle time and event counts.
// Called from runLoop on every tick.
func (t *Tracker) Update(state logic.PowerState, buttons []ButtonInfo, idle time.Duration, counts logic.EventCounts) {
	b := make([]ButtonInfo, len(buttons))
	copy(b, buttons)

	t.mu.Lock()
	t.snap.State = state
	t.snap.Buttons = b
	t.snap.Idle = idle
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetState sets only the power state.
func (t *Tracker) SetState(state logic.PowerState) {
	t.mu.Lock()
	t.snap.State = state
	t.mu.Unlock()
}

// SetWake records the wake report of this run.
func (t *Tracker) SetWake(info WakeInfo) {
	info.Pins = append([]string(nil), info.Pins...)
	t.mu.Lock()
	t.snap.Wake = &info
	t.mu.Unlock()
}

// SetAccel records the latest accelerometer sample.
func (t *Tracker) SetAccel(info AccelInfo) {
	t.mu.Lock()
	t.snap.Accel = &info
	t.mu.Unlock()
}

// SetHeartRate records the latest heart-rate ADC reading.
func (t *Tracker) SetHeartRate(raw int) {
	t.mu.Lock()
	t.snap.HeartRate = &HeartRateInfo{Raw: raw}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
