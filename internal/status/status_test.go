package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/tinywatch/internal/logic"
)

var testButtons = []ButtonInfo{
	{Name: "BTN1", Pin: 6},
	{Name: "BTN2", Pin: 7, Pressed: true},
	{Name: "BTN3", Pin: 2},
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{PollMs: 10, DebounceMs: 35, IdleMs: 2000, QuietMs: 800, Broker: "tcp://localhost:1883", HTTPPort: ":80"}
	tr := NewTracker(start, "boot-1", cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.BootID != "boot-1" {
		t.Errorf("BootID: got %q", snap.BootID)
	}
	if snap.Config.IdleMs != 2000 {
		t.Errorf("Config.IdleMs: got %d, want 2000", snap.Config.IdleMs)
	}
	if snap.State != logic.StateAwake {
		t.Errorf("expected AWAKE initially, got %s", snap.State)
	}
	if snap.Wake != nil || snap.Accel != nil {
		t.Error("expected no wake report or accel sample initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})

	tr.Update(logic.StateQuietCheck, testButtons, 2100*time.Millisecond, logic.EventCounts{Presses: 3, SleepAttempts: 1})

	snap := tr.Snapshot()
	if snap.State != logic.StateQuietCheck {
		t.Errorf("State: got %s", snap.State)
	}
	if len(snap.Buttons) != 3 || !snap.Buttons[1].Pressed {
		t.Errorf("Buttons: got %+v", snap.Buttons)
	}
	if snap.Idle != 2100*time.Millisecond {
		t.Errorf("Idle: got %v", snap.Idle)
	}
	if snap.Counts.Presses != 3 || snap.Counts.SleepAttempts != 1 {
		t.Errorf("Counts: got %+v", snap.Counts)
	}

	tr.SetState(logic.StateSleeping)
	if tr.Snapshot().State != logic.StateSleeping {
		t.Error("SetState should update the state")
	}
}

func TestSetWakeAndAccel(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})
	pins := []string{"BTN2"}
	tr.SetWake(WakeInfo{Cause: "EXT1 (buttons)", Raw: "EXT1", Ext1Mask: 0x80, Pins: pins})
	tr.SetAccel(AccelInfo{Z: 1000000, Magnitude: 1})

	pins[0] = "changed"
	snap := tr.Snapshot()
	if snap.Wake == nil || snap.Wake.Pins[0] != "BTN2" {
		t.Errorf("wake pins should be copied: %+v", snap.Wake)
	}
	if snap.Accel == nil || snap.Accel.Z != 1000000 {
		t.Errorf("unexpected accel: %+v", snap.Accel)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}
	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartTime: start, Now: start.Add(90 * time.Second)}
	if snap.Uptime() != 90*time.Second {
		t.Errorf("Uptime: got %v", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "", Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})
	buttons := append([]ButtonInfo(nil), testButtons...)
	tr.Update(logic.StateAwake, buttons, 0, logic.EventCounts{Presses: 1})

	snap1 := tr.Snapshot()
	buttons[0].Pressed = true
	tr.Update(logic.StateQuietCheck, buttons, 0, logic.EventCounts{Presses: 2})

	if snap1.State != logic.StateAwake || snap1.Counts.Presses != 1 {
		t.Error("snapshot should be a copy")
	}
	if snap1.Buttons[0].Pressed {
		t.Error("snapshot buttons should not alias the caller's slice")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		BootID:        "boot-1",
		State:         logic.StateAwake,
		Wake:          &WakeInfo{Cause: "EXT1 (buttons)", Raw: "EXT1", Ext1Mask: 0x80, Pins: []string{"BTN2"}},
		Buttons:       testButtons,
		Idle:          1500 * time.Millisecond,
		Counts:        logic.EventCounts{Presses: 5, SleepAttempts: 2, SleepCommits: 0, SleepAborts: 2},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{PollMs: 10, DebounceMs: 35, IdleMs: 2000, QuietMs: 800, Broker: "tcp://b:1883", HTTPPort: ":8080"},
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if s.Event != "" || s.Reason != "" {
		t.Error("web JSON should not carry event/reason")
	}
	if s.BootID != "boot-1" || s.State != "AWAKE" {
		t.Errorf("unexpected identity/state: %q %q", s.BootID, s.State)
	}
	if s.Wake == nil || s.Wake.Cause != "EXT1 (buttons)" || s.Wake.Ext1Mask != "0x80" || len(s.Wake.Pins) != 1 {
		t.Errorf("unexpected wake: %+v", s.Wake)
	}
	if len(s.Buttons) != 3 || s.Buttons[1].Name != "BTN2" || !s.Buttons[1].Pressed {
		t.Errorf("unexpected buttons: %+v", s.Buttons)
	}
	if s.IdleMs != 1500 {
		t.Errorf("IdleMs: got %d", s.IdleMs)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if s.StartTime != "2026-01-01T00:00:00Z" {
		t.Errorf("StartTime: got %s", s.StartTime)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://b:1883" {
		t.Errorf("unexpected mqtt: %+v", s.MQTT)
	}
	if s.Counts.Presses != 5 || s.Counts.SleepAborts != 2 {
		t.Errorf("unexpected counts: %+v", s.Counts)
	}
	if s.Config.QuietMs != 800 || s.Config.HTTPPort != ":8080" {
		t.Errorf("unexpected config: %+v", s.Config)
	}
	if s.Accel != nil || s.Network != nil {
		t.Error("absent sections should be omitted")
	}
}

func TestFormatJSONUnknownState(t *testing.T) {
	var parsed StatusJSON
	json.Unmarshal(FormatJSON(Snapshot{}), &parsed)
	if parsed.Status.State != "UNKNOWN" {
		t.Errorf("empty state should render UNKNOWN, got %q", parsed.Status.State)
	}
	if parsed.Status.Buttons == nil {
		t.Error("buttons should render as an empty array")
	}
}

func TestFormatJSONPowerOnWakeOmitsMask(t *testing.T) {
	snap := Snapshot{Wake: &WakeInfo{Cause: "POWERON/RESET", Raw: "UNDEFINED"}}

	var parsed map[string]map[string]interface{}
	json.Unmarshal(FormatJSON(snap), &parsed)
	wake := parsed["status"]["wake"].(map[string]interface{})
	if _, ok := wake["ext1_mask"]; ok {
		t.Error("ext1_mask should be omitted when zero")
	}
	if wake["cause"] != "POWERON/RESET" {
		t.Errorf("unexpected cause: %v", wake["cause"])
	}
}

func TestFormatJSONWithAccelAndNetwork(t *testing.T) {
	snap := Snapshot{
		Accel:   &AccelInfo{X: 12, Y: -4, Z: 1000000, Magnitude: 1, Halted: true},
		Network: &NetworkInfo{Type: "wifi", IP: "10.0.0.5", SSID: "MyNet"},
	}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)
	a := parsed.Status.Accel
	if a == nil || a.X != 12 || a.Y != -4 || a.Z != 1000000 || !a.Halted {
		t.Errorf("unexpected accel: %+v", a)
	}
	if parsed.Status.Network == nil || parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("unexpected network: %+v", parsed.Status.Network)
	}
}

func TestHeartRate(t *testing.T) {
	tr := NewTracker(time.Now(), "boot", Config{})
	if tr.Snapshot().HeartRate != nil {
		t.Fatal("expected no heart rate initially")
	}
	tr.SetHeartRate(2048)

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(tr.Snapshot()), &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.Status.HeartRate == nil || parsed.Status.HeartRate.ADCRaw != 2048 {
		t.Errorf("unexpected heart rate: %+v", parsed.Status.HeartRate)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{State: logic.StateSleeping, StartTime: start, Now: start.Add(time.Minute)}

	data := FormatStatusEvent(snap, "SLEEP", "IDLE")
	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SLEEP" || parsed.Status.Reason != "IDLE" {
		t.Errorf("unexpected event/reason: %q %q", parsed.Status.Event, parsed.Status.Reason)
	}
	if parsed.Status.State != "SLEEPING" {
		t.Errorf("unexpected state: %s", parsed.Status.State)
	}

	// Compact, unlike the web output.
	for _, c := range data {
		if c == '\n' {
			t.Fatal("MQTT payload should be compact")
		}
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	var parsed map[string]map[string]interface{}
	json.Unmarshal(FormatStatusEvent(Snapshot{}, "STARTUP", ""), &parsed)
	if _, ok := parsed["status"]["reason"]; ok {
		t.Error("empty reason should be omitted")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), "", Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(logic.StateAwake, testButtons, time.Duration(i), logic.EventCounts{Presses: i})
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetAccel(AccelInfo{X: int32(i)})
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
