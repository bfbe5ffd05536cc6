package status

import (
	"encoding/json"
	"fmt"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	BootID        string       `json:"boot_id"`
	State         string       `json:"state"`
	Wake          *WakeJSON    `json:"wake,omitempty"`
	Buttons       []ButtonJSON `json:"buttons"`
	IdleMs        int64        `json:"idle_ms"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Accel         *AccelJSON   `json:"accel,omitempty"`
	HeartRate     *HeartJSON   `json:"heart_rate,omitempty"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// WakeJSON is the JSON representation of the wake report.
type WakeJSON struct {
	Cause    string   `json:"cause"`
	Raw      string   `json:"raw"`
	Ext1Mask string   `json:"ext1_mask,omitempty"`
	Pins     []string `json:"pins,omitempty"`
}

// ButtonJSON is the JSON representation of one button.
type ButtonJSON struct {
	Name    string `json:"name"`
	Pin     int    `json:"pin"`
	Pressed bool   `json:"pressed"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Presses       int `json:"presses"`
	SleepAttempts int `json:"sleep_attempts"`
	SleepCommits  int `json:"sleep_commits"`
	SleepAborts   int `json:"sleep_aborts"`
}

// AccelJSON is the JSON representation of an accelerometer sample.
type AccelJSON struct {
	X         int32   `json:"x_ug"`
	Y         int32   `json:"y_ug"`
	Z         int32   `json:"z_ug"`
	Magnitude float32 `json:"magnitude_g"`
	Halted    bool    `json:"halted"`
}

// HeartJSON is the JSON representation of the heart-rate reading.
type HeartJSON struct {
	ADCRaw int `json:"adc_raw"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64  `json:"poll_ms"`
	DebounceMs  int64  `json:"debounce_ms"`
	IdleMs      int64  `json:"idle_ms"`
	QuietMs     int64  `json:"quiet_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPPort    string `json:"http_port"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}

	buttons := make([]ButtonJSON, len(snap.Buttons))
	for i, b := range snap.Buttons {
		buttons[i] = ButtonJSON{Name: b.Name, Pin: b.Pin, Pressed: b.Pressed}
	}

	return StatusInner{
		BootID:        snap.BootID,
		State:         state,
		Buttons:       buttons,
		IdleMs:        snap.Idle.Milliseconds(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Presses:       snap.Counts.Presses,
			SleepAttempts: snap.Counts.SleepAttempts,
			SleepCommits:  snap.Counts.SleepCommits,
			SleepAborts:   snap.Counts.SleepAborts,
		},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			DebounceMs:  snap.Config.DebounceMs,
			IdleMs:      snap.Config.IdleMs,
			QuietMs:     snap.Config.QuietMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPPort:    snap.Config.HTTPPort,
		},
	}
}

func buildOptional(snap Snapshot, inner *StatusInner) {
	if snap.Wake != nil {
		w := &WakeJSON{Cause: snap.Wake.Cause, Raw: snap.Wake.Raw, Pins: snap.Wake.Pins}
		if snap.Wake.Ext1Mask != 0 {
			w.Ext1Mask = fmt.Sprintf("0x%X", snap.Wake.Ext1Mask)
		}
		inner.Wake = w
	}
	if snap.Accel != nil {
		inner.Accel = &AccelJSON{
			X:         snap.Accel.X,
			Y:         snap.Accel.Y,
			Z:         snap.Accel.Z,
			Magnitude: snap.Accel.Magnitude,
			Halted:    snap.Accel.Halted,
		}
	}
	if snap.HeartRate != nil {
		inner.HeartRate = &HeartJSON{ADCRaw: snap.HeartRate.Raw}
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildOptional(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildOptional(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
