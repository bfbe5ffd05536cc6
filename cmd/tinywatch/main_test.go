package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/tinywatch/internal/gpio"
	"github.com/sweeney/tinywatch/internal/logic"
	"github.com/sweeney/tinywatch/internal/metrics"
	"github.com/sweeney/tinywatch/internal/mqtt"
	"github.com/sweeney/tinywatch/internal/power"
	"github.com/sweeney/tinywatch/internal/sensor"
	"github.com/sweeney/tinywatch/internal/status"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// scriptedClock yields start, start+step, ... and runs hooks[n] before
// returning the nth value. runLoop calls now() once before the loop, once
// per tick and once on a signal, so hooks run on the loop goroutine at a
// known tick.
type scriptedClock struct {
	start time.Time
	step  time.Duration
	n     int
	hooks map[int]func()
}

func newClock(step time.Duration) *scriptedClock {
	return &scriptedClock{start: t0, step: step, hooks: make(map[int]func())}
}

func (c *scriptedClock) now() time.Time {
	if h := c.hooks[c.n]; h != nil {
		h()
	}
	t := c.start.Add(time.Duration(c.n) * c.step)
	c.n++
	return t
}

type fakeAccel struct {
	sample sensor.Sample
	err    error
	reads  int
}

func (a *fakeAccel) Read() (sensor.Sample, error) {
	a.reads++
	return a.sample, a.err
}

func (a *fakeAccel) Halted() bool { return false }

type fakeADC struct {
	raw   int
	err   error
	reads int
}

func (a *fakeADC) Read() (int, error) {
	a.reads++
	return a.raw, a.err
}

type loopHarness struct {
	fake    *gpio.FakePlatform
	ctrl    *power.Controller
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
	metrics *metrics.Metrics
	deps    loopDeps
}

func newLoopHarness(t *testing.T) *loopHarness {
	t.Helper()
	h := &loopHarness{
		fake:    gpio.NewFakePlatform(),
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(t0, "boot-1", status.Config{}),
		metrics: metrics.New(),
	}
	h.ctrl = power.NewController(h.fake, power.Options{
		Sleep:        func(time.Duration) {},
		OnTransition: observeTransitions(h.tracker, h.metrics),
	})
	if err := h.ctrl.Begin(t0); err != nil {
		t.Fatalf("begin: %v", err)
	}
	h.deps = loopDeps{
		ctrl:      h.ctrl,
		publisher: h.pub,
		tracker:   h.tracker,
		metrics:   h.metrics,
	}
	return h
}

// drive runs runLoop, sending up to maxTicks ticks. If the loop is still
// running afterwards, sig is delivered. It returns the number of ticks
// consumed and the loop's error.
func drive(t *testing.T, d loopDeps, clock *scriptedClock, maxTicks int, s os.Signal) (int, error) {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(d, clock.now, tick, sig)
	}()

	for i := 0; i < maxTicks; i++ {
		select {
		case tick <- time.Time{}:
		case err := <-errCh:
			return i, err
		}
	}
	sig <- s
	select {
	case err := <-errCh:
		return maxTicks, err
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not return")
	}
	return 0, nil
}

func TestRunLoopShutdownBeforeIdle(t *testing.T) {
	h := newLoopHarness(t)

	_, err := drive(t, h.deps, newClock(100*time.Millisecond), 5, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(h.pub.Events) != 0 {
		t.Errorf("expected no power events, got %v", h.pub.EventTypes())
	}
	if names := h.pub.SystemEventNames(); len(names) != 1 || names[0] != "SHUTDOWN" {
		t.Fatalf("expected SHUTDOWN only, got %v", names)
	}
	se := h.pub.SystemEvents[0]
	if se.Reason != "SIGTERM" || !se.Retained {
		t.Errorf("unexpected shutdown event: %+v", se)
	}
	if !strings.Contains(string(se.RawPayload), `"state": "AWAKE"`) && !strings.Contains(string(se.RawPayload), `"state":"AWAKE"`) {
		t.Errorf("shutdown payload missing state: %s", se.RawPayload)
	}
	if h.fake.SleepStarted != 0 {
		t.Error("should not have slept")
	}
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	h := newLoopHarness(t)

	drive(t, h.deps, newClock(100*time.Millisecond), 1, syscall.SIGINT)
	if h.pub.SystemEvents[0].Reason != "SIGINT" {
		t.Errorf("got reason %q", h.pub.SystemEvents[0].Reason)
	}
}

func TestRunLoopSleepsAfterIdle(t *testing.T) {
	h := newLoopHarness(t)

	// Idle expires at tick 21 (2100ms > 2000ms), the quiet window starts
	// 20ms later and passes at tick 30.
	ticks, err := drive(t, h.deps, newClock(100*time.Millisecond), 100, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticks != 30 {
		t.Errorf("loop should end on tick 30, ended after %d", ticks)
	}
	if h.fake.SleepStarted != 1 {
		t.Fatalf("expected deep sleep, started %d times", h.fake.SleepStarted)
	}
	if h.fake.Ext1Mask != 0xC4 || h.fake.Ext1Mode != gpio.Ext1AnyLow {
		t.Errorf("wake not armed: mask 0x%X mode %s", h.fake.Ext1Mask, h.fake.Ext1Mode)
	}
	if got := h.pub.EventTypes(); len(got) != 1 || got[0] != string(logic.EventSleepEnter) {
		t.Errorf("events: got %v", got)
	}
	names := h.pub.SystemEventNames()
	if len(names) != 1 || names[0] != "SLEEP" {
		t.Fatalf("system events: got %v", names)
	}
	if !strings.Contains(h.pub.SystemEvents[0].Reason, "wake pins quiet") {
		t.Errorf("sleep reason: %q", h.pub.SystemEvents[0].Reason)
	}
	if snap := h.tracker.Snapshot(); snap.State != logic.StateSleeping || snap.Counts.SleepCommits != 1 {
		t.Errorf("tracker: state %s counts %+v", snap.State, snap.Counts)
	}
}

func TestRunLoopIdleCountsFromLoopStart(t *testing.T) {
	h := newLoopHarness(t)
	// Setup took 10s after Begin, e.g. waiting on an unreachable broker.
	clock := newClock(100 * time.Millisecond)
	clock.start = t0.Add(10 * time.Second)

	_, err := drive(t, h.deps, clock, 5, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c := h.ctrl.Counts(); c.SleepAttempts != 0 {
		t.Errorf("slow setup must not trigger a sleep attempt, counts %+v", c)
	}
	if got := h.ctrl.State(); got != logic.StateAwake {
		t.Errorf("state: got %s", got)
	}
}

func TestRunLoopPressDelaysSleep(t *testing.T) {
	h := newLoopHarness(t)
	clock := newClock(100 * time.Millisecond)
	clock.hooks[5] = func() { h.fake.Inputs[6] = logic.Low }
	clock.hooks[10] = func() { h.fake.Inputs[6] = logic.High }

	// Press registers at 600ms, so idle expires at 2700ms and the quiet
	// window passes at 3600ms.
	ticks, err := drive(t, h.deps, clock, 100, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ticks != 36 {
		t.Errorf("loop should end on tick 36, ended after %d", ticks)
	}
	got := h.pub.EventTypes()
	if len(got) != 2 || got[0] != string(logic.EventButtonPress) || got[1] != string(logic.EventSleepEnter) {
		t.Fatalf("events: got %v", got)
	}
	if h.pub.Events[0].Button != "BTN1" {
		t.Errorf("pressed button: got %q", h.pub.Events[0].Button)
	}
	if !h.pub.Events[0].Timestamp.Equal(t0.Add(600 * time.Millisecond)) {
		t.Errorf("press time: got %v", h.pub.Events[0].Timestamp)
	}
}

func TestRunLoopAbortThenSleep(t *testing.T) {
	h := newLoopHarness(t)
	h.fake.ScriptRTC(7, logic.Low, logic.High)

	ticks, err := drive(t, h.deps, newClock(100*time.Millisecond), 100, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Abort at 2200ms restarts the idle timer: prepare again at 4300ms,
	// commit at 5200ms.
	if ticks != 52 {
		t.Errorf("loop should end on tick 52, ended after %d", ticks)
	}
	got := h.pub.EventTypes()
	if len(got) != 2 || got[0] != string(logic.EventSleepAbort) || got[1] != string(logic.EventSleepEnter) {
		t.Fatalf("events: got %v", got)
	}
	if h.pub.Events[0].Reason != "wake pin LOW: BTN2" {
		t.Errorf("abort reason: %q", h.pub.Events[0].Reason)
	}
	c := h.ctrl.Counts()
	if c.SleepAttempts != 2 || c.SleepAborts != 1 || c.SleepCommits != 1 {
		t.Errorf("counts: %+v", c)
	}
}

func TestRunLoopHardwareErrorIsFatal(t *testing.T) {
	h := newLoopHarness(t)
	clock := newClock(100 * time.Millisecond)
	clock.hooks[21] = func() { h.fake.ConfigureError = errors.New("bus fault") }

	_, err := drive(t, h.deps, clock, 100, syscall.SIGTERM)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "bus fault") {
		t.Errorf("unexpected error: %v", err)
	}
	if h.fake.SleepStarted != 0 {
		t.Error("should not sleep after a hardware error")
	}
}

func TestRunLoopSleepError(t *testing.T) {
	h := newLoopHarness(t)
	h.fake.SleepError = errors.New("suspend failed")

	_, err := drive(t, h.deps, newClock(100*time.Millisecond), 100, syscall.SIGTERM)
	if err == nil || !strings.Contains(err.Error(), "suspend failed") {
		t.Errorf("expected sleep error, got %v", err)
	}
	if h.fake.SleepStarted != 0 {
		t.Error("sleep should not have started")
	}
}

func TestRunLoopPublishErrorNotFatal(t *testing.T) {
	h := newLoopHarness(t)
	h.pub.PublishError = errors.New("broker down")
	h.pub.PublishSystemError = errors.New("broker down")

	_, err := drive(t, h.deps, newClock(100*time.Millisecond), 100, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("publish failures must not stop the loop: %v", err)
	}
	if h.fake.SleepStarted != 1 {
		t.Error("should still sleep")
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	h := newLoopHarness(t)
	h.deps.heartbeat = time.Second

	// Signal before the idle timer expires.
	drive(t, h.deps, newClock(100*time.Millisecond), 15, syscall.SIGTERM)

	var heartbeats int
	for _, se := range h.pub.SystemEvents {
		if se.Event != "HEARTBEAT" {
			continue
		}
		heartbeats++
		var payload status.StatusJSON
		if err := json.Unmarshal(se.RawPayload, &payload); err != nil {
			t.Fatalf("heartbeat payload: %v", err)
		}
		if payload.Status.Event != "HEARTBEAT" {
			t.Errorf("payload event: %q", payload.Status.Event)
		}
	}
	if heartbeats != 1 {
		t.Errorf("expected 1 heartbeat in 1.5s, got %d", heartbeats)
	}
}

func TestRunLoopSamplesAccelerometer(t *testing.T) {
	h := newLoopHarness(t)
	accel := &fakeAccel{sample: sensor.Sample{X: 0, Y: 0, Z: 1000000}}
	h.deps.accel = accel
	h.deps.accelInterval = 250 * time.Millisecond

	drive(t, h.deps, newClock(100*time.Millisecond), 10, syscall.SIGTERM)

	// Ticks at 100..1000ms sample at 100, 400, 700, 1000.
	if accel.reads != 4 {
		t.Errorf("expected 4 reads, got %d", accel.reads)
	}
	snap := h.tracker.Snapshot()
	if snap.Accel == nil || snap.Accel.Z != 1000000 || snap.Accel.Magnitude != 1 {
		t.Errorf("tracker accel: %+v", snap.Accel)
	}
}

func TestRunLoopAccelErrorNotFatal(t *testing.T) {
	h := newLoopHarness(t)
	h.deps.accel = &fakeAccel{err: errors.New("nack")}
	h.deps.accelInterval = 100 * time.Millisecond

	_, err := drive(t, h.deps, newClock(100*time.Millisecond), 3, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.tracker.Snapshot().Accel != nil {
		t.Error("failed reads should not update the tracker")
	}
}

func TestRunLoopSamplesHeartRate(t *testing.T) {
	h := newLoopHarness(t)
	hr := &fakeADC{raw: 2048}
	h.deps.hr = hr
	h.deps.accelInterval = 250 * time.Millisecond

	drive(t, h.deps, newClock(100*time.Millisecond), 10, syscall.SIGTERM)

	if hr.reads != 4 {
		t.Errorf("expected 4 reads, got %d", hr.reads)
	}
	snap := h.tracker.Snapshot()
	if snap.HeartRate == nil || snap.HeartRate.Raw != 2048 {
		t.Errorf("tracker heart rate: %+v", snap.HeartRate)
	}
}

func TestRunLoopHeartRateFromIIOFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in_voltage0_raw")
	if err := os.WriteFile(path, []byte("1873\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	adc, err := sensor.OpenADC(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	h := newLoopHarness(t)
	h.deps.hr = adc
	h.deps.accelInterval = 100 * time.Millisecond

	drive(t, h.deps, newClock(100*time.Millisecond), 2, syscall.SIGTERM)

	snap := h.tracker.Snapshot()
	if snap.HeartRate == nil || snap.HeartRate.Raw != 1873 {
		t.Errorf("tracker heart rate: %+v", snap.HeartRate)
	}
}

func TestRunLoopHeartRateErrorNotFatal(t *testing.T) {
	h := newLoopHarness(t)
	h.deps.hr = &fakeADC{err: errors.New("read adc: EIO")}
	h.deps.accelInterval = 100 * time.Millisecond

	_, err := drive(t, h.deps, newClock(100*time.Millisecond), 3, syscall.SIGTERM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.tracker.Snapshot().HeartRate != nil {
		t.Error("failed reads should not update the tracker")
	}
}

func TestRunLoopUpdatesTracker(t *testing.T) {
	h := newLoopHarness(t)
	h.deps.mqttStatus = h.pub
	h.pub.Connected = true
	clock := newClock(100 * time.Millisecond)
	clock.hooks[1] = func() { h.fake.Inputs[2] = logic.Low }

	drive(t, h.deps, clock, 5, syscall.SIGTERM)

	snap := h.tracker.Snapshot()
	if !snap.MQTTConnected {
		t.Error("tracker should report MQTT connected")
	}
	if snap.Counts.Presses != 1 {
		t.Errorf("presses: got %d", snap.Counts.Presses)
	}
	var btn3 *status.ButtonInfo
	for i := range snap.Buttons {
		if snap.Buttons[i].Name == "BTN3" {
			btn3 = &snap.Buttons[i]
		}
	}
	if btn3 == nil || !btn3.Pressed {
		t.Errorf("BTN3 should be held: %+v", snap.Buttons)
	}
}

func TestPrintPlatformState(t *testing.T) {
	f := gpio.NewFakePlatform()
	f.Cause = logic.RawExt1
	f.Status = 1 << 7
	f.Inputs[7] = logic.Low

	var buf bytes.Buffer
	if err := printPlatformState(&buf, f, power.DefaultButtons()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Wake cause: EXT1 (buttons)\nEXT1 wake status mask: 0x80\n -> BTN2 was LOW\nBTN1=1 BTN2=0 BTN3=1\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestPrintPlatformStateError(t *testing.T) {
	f := gpio.NewFakePlatform()
	f.WakeError = errors.New("unavailable")
	var buf bytes.Buffer
	if err := printPlatformState(&buf, f, power.DefaultButtons()); err == nil {
		t.Error("expected error")
	}
}

func TestSignalName(t *testing.T) {
	if signalName(syscall.SIGINT) != "SIGINT" || signalName(syscall.SIGTERM) != "SIGTERM" {
		t.Error("unexpected signal names")
	}
	if signalName(syscall.SIGHUP) != "UNKNOWN" {
		t.Error("SIGHUP should be UNKNOWN")
	}
}

func TestWakeInfo(t *testing.T) {
	f := gpio.NewFakePlatform()
	f.Cause = logic.RawExt1
	f.Status = 1<<6 | 1<<2
	r, _ := power.DiagnoseWake(f, power.DefaultButtons())

	info := wakeInfo(r)
	if info.Cause != "EXT1 (buttons)" || info.Ext1Mask != 0x44 {
		t.Errorf("got %+v", info)
	}
	if len(info.Pins) != 2 || info.Pins[0] != "BTN1" || info.Pins[1] != "BTN3" {
		t.Errorf("pins: %v", info.Pins)
	}
}

func ipNet(s string) *net.IPNet {
	ip, n, _ := net.ParseCIDR(s)
	n.IP = ip
	return n
}

func TestNetworkInfo(t *testing.T) {
	ifaces := []hostInterface{
		{Name: "lo", Flags: net.FlagUp | net.FlagLoopback, Addrs: []net.Addr{ipNet("127.0.0.1/8")}},
		{Name: "eth0", Flags: 0, Addrs: []net.Addr{ipNet("10.0.0.2/24")}},
		{Name: "wlan0", Flags: net.FlagUp, Addrs: []net.Addr{ipNet("fe80::1/64"), ipNet("192.168.1.50/24")}},
	}
	info := networkInfo(ifaces)
	if info == nil {
		t.Fatal("expected network info")
	}
	if info.Type != "wifi" || info.IP != "192.168.1.50" || info.Status != "connected" || info.WifiStatus != "connected" {
		t.Errorf("got %+v", info)
	}
}

func TestNetworkInfoNone(t *testing.T) {
	ifaces := []hostInterface{
		{Name: "lo", Flags: net.FlagUp | net.FlagLoopback, Addrs: []net.Addr{ipNet("127.0.0.1/8")}},
	}
	if info := networkInfo(ifaces); info != nil {
		t.Errorf("expected nil, got %+v", info)
	}
}

func TestNetworkInfoEthernet(t *testing.T) {
	ifaces := []hostInterface{
		{Name: "end0", Flags: net.FlagUp, Addrs: []net.Addr{ipNet("10.1.2.3/16")}},
	}
	info := networkInfo(ifaces)
	if info == nil || info.Type != "ethernet" || info.WifiStatus != "" {
		t.Errorf("got %+v", info)
	}
}
