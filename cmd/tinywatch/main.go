// Command tinywatch runs the watch's idle deep-sleep controller: it debounces
// the buttons, quiesces the display and sensor when idle, arms the button
// wake pins and enters deep sleep once they have been quiet long enough.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/tinywatch/internal/config"
	"github.com/sweeney/tinywatch/internal/console"
	"github.com/sweeney/tinywatch/internal/gpio"
	"github.com/sweeney/tinywatch/internal/logic"
	"github.com/sweeney/tinywatch/internal/metrics"
	"github.com/sweeney/tinywatch/internal/mqtt"
	"github.com/sweeney/tinywatch/internal/power"
	"github.com/sweeney/tinywatch/internal/sensor"
	"github.com/sweeney/tinywatch/internal/status"
	"github.com/sweeney/tinywatch/internal/web"
)

const defaultConfigPath = "/etc/tinywatch/config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "YAML config file (missing file uses defaults)")
	poll := flag.Duration("poll", 0, "Button polling interval")
	debounce := flag.Duration("debounce", 0, "Button debounce duration")
	idle := flag.Duration("idle", 0, "Idle time before sleeping")
	quiet := flag.Duration("quiet", 0, "Wake pin quiet window before committing to sleep")
	heartbeat := flag.Duration("heartbeat", 0, "Heartbeat interval (0 to disable)")
	broker := flag.String("broker", "", "MQTT broker address (empty to disable)")
	httpAddr := flag.String("http", "", "HTTP status address (empty to disable)")
	sensorBus := flag.String("sensor-bus", "", "I2C bus of the accelerometer, e.g. /dev/i2c-1 (empty to disable)")
	hrADC := flag.String("hr-adc", "", "IIO channel file of the heart-rate ADC (empty to disable)")
	consolePort := flag.String("console", "", "Serial port to mirror the log to (empty to disable)")
	consoleBaud := flag.Int("console-baud", 0, "Serial console baud rate")
	printState := flag.Bool("print-state", false, "Print wake cause and button levels and exit")
	listPorts := flag.Bool("list-ports", false, "List serial ports and exit")

	flag.Parse()

	if *listPorts {
		ports, err := console.Ports()
		if err != nil {
			log.Fatalf("fatal: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	// Flags override the file only when given.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "poll":
			cfg.Timing.Poll = *poll
		case "debounce":
			cfg.Timing.Debounce = *debounce
		case "idle":
			cfg.Timing.Idle = *idle
		case "quiet":
			cfg.Timing.Quiet = *quiet
		case "heartbeat":
			cfg.Timing.Heartbeat = *heartbeat
		case "broker":
			cfg.MQTT.Broker = *broker
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "sensor-bus":
			cfg.Sensor.Bus = *sensorBus
		case "hr-adc":
			cfg.Sensor.HRADC = *hrADC
		case "console":
			cfg.Console.Port = *consolePort
		case "console-baud":
			cfg.Console.Baud = *consoleBaud
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: invalid config: %v", err)
	}

	if err := run(cfg, *printState); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg *config.Config, printState bool) error {
	if cfg.Console.Port != "" {
		c, err := console.Open(cfg.Console.Port, cfg.Console.Baud)
		if err != nil {
			return err
		}
		defer c.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, c))
	}

	platform, err := gpio.NewRealPlatform(cfg.GPIOOptions())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer platform.Close()

	if printState {
		return printPlatformState(os.Stdout, platform, cfg.ButtonPins())
	}

	bootID := uuid.NewString()
	start := time.Now()

	tracker := status.NewTracker(start, bootID, status.Config{
		PollMs:      cfg.Timing.Poll.Milliseconds(),
		DebounceMs:  cfg.Timing.Debounce.Milliseconds(),
		IdleMs:      cfg.Timing.Idle.Milliseconds(),
		QuietMs:     cfg.Timing.Quiet.Milliseconds(),
		HeartbeatMs: cfg.Timing.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPPort:    cfg.HTTP.Addr,
	})
	if info := readNetworkInfo(); info != nil {
		tracker.SetNetwork(info)
	}
	m := metrics.New()

	report, err := power.DiagnoseWake(platform, cfg.ButtonPins())
	if err != nil {
		log.Printf("wake: %v", err)
	}
	report.Log()
	tracker.SetWake(wakeInfo(report))
	m.SetWakeCause(report.Cause, report.Raw)

	var accel *sensor.Accelerometer
	var suspender power.Suspender
	if cfg.Sensor.Bus != "" {
		bus, err := sensor.OpenBus(cfg.Sensor.Bus)
		if err != nil {
			return fmt.Errorf("init sensor: %w", err)
		}
		defer bus.Close()
		accel = sensor.NewAccelerometer(bus)
		if err := accel.Configure(); err != nil {
			return fmt.Errorf("init sensor: %w", err)
		}
		suspender = accel
		log.Printf("sensor: accelerometer on %s", cfg.Sensor.Bus)
	}

	var hr *sensor.ADC
	if cfg.Sensor.HRADC != "" {
		hr, err = sensor.OpenADC(cfg.Sensor.HRADC)
		if err != nil {
			return fmt.Errorf("init heart-rate adc: %w", err)
		}
		log.Printf("sensor: heart-rate ADC on %s", hr.Path())
	}

	ctrl := power.NewController(platform, power.Options{
		Config:       cfg.PowerConfig(),
		Buttons:      cfg.ButtonPins(),
		Display:      cfg.DisplayPins(),
		Sensor:       suspender,
		OnTransition: observeTransitions(tracker, m),
	})
	if err := ctrl.Begin(start); err != nil {
		return fmt.Errorf("init controller: %w", err)
	}
	if err := ctrl.ScreenOn(); err != nil {
		return fmt.Errorf("screen on: %w", err)
	}
	m.SetState(ctrl.State())

	var publisher mqtt.Publisher = noopPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:     cfg.MQTT.Broker,
			ClientID:   cfg.MQTT.ClientID + "-" + bootID[:8],
			BootID:     bootID,
			BufferSize: cfg.MQTT.BufferSize,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		publisher = p
		mqttStatus = p
	}

	// STARTUP carries the wake report, so it is published before the loop.
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Reason:     report.Cause.String(),
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", report.Cause.String()),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	}

	if cfg.HTTP.Addr != "" {
		var accessLog io.Writer
		if cfg.HTTP.AccessLog {
			accessLog = log.Writer()
		}
		srv := web.New(cfg.HTTP.Addr, tracker, m, accessLog)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: boot=%s poll=%v debounce=%v idle=%v quiet=%v broker=%q",
		bootID, cfg.Timing.Poll, cfg.Timing.Debounce, cfg.Timing.Idle, cfg.Timing.Quiet, cfg.MQTT.Broker)

	ticker := time.NewTicker(cfg.Timing.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	deps := loopDeps{
		ctrl:          ctrl,
		publisher:     publisher,
		mqttStatus:    mqttStatus,
		tracker:       tracker,
		metrics:       m,
		heartbeat:     cfg.Timing.Heartbeat,
		accelInterval: cfg.Sensor.Interval,
	}
	if accel != nil {
		deps.accel = accel
	}
	if hr != nil {
		deps.hr = hr
	}
	return runLoop(deps, time.Now, ticker.C, sigCh)
}

// accelerometer is the part of sensor.Accelerometer the loop samples.
type accelerometer interface {
	Read() (sensor.Sample, error)
	Halted() bool
}

// heartRateADC is the part of sensor.ADC the loop samples.
type heartRateADC interface {
	Read() (int, error)
}

// bufferDepth is implemented by publishers with an offline outbox.
type bufferDepth interface {
	Buffered() int
}

type loopDeps struct {
	ctrl       *power.Controller
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	metrics    *metrics.Metrics

	accel         accelerometer
	hr            heartRateADC
	accelInterval time.Duration
	heartbeat     time.Duration
}

func runLoop(d loopDeps, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	// Setup may have blocked on the broker; idle time counts from here.
	d.ctrl.ResetIdle(startTime)
	lastHeartbeat := startTime
	var lastAccel, lastHR time.Time

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			reason := signalName(s)
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    reason,
				Retained:  true,
			}
			if d.tracker != nil {
				d.refreshConnection()
				event.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), "SHUTDOWN", reason)
			}
			if err := d.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			events, err := d.ctrl.Tick(t)
			// Events produced before a hardware failure are still reported.
			var enter *logic.Event
			for i, event := range events {
				logEvent(event)
				d.metrics.ObserveEvent(event)
				if err := d.publisher.Publish(event); err != nil {
					log.Printf("publish error: %v", err)
				}
				if event.Type == logic.EventSleepEnter {
					enter = &events[i]
				}
			}
			if err != nil {
				return fmt.Errorf("power: %w", err)
			}

			if d.accel != nil && !d.accel.Halted() && t.Sub(lastAccel) >= d.accelInterval {
				lastAccel = t
				d.sampleAccel()
			}
			if d.hr != nil && t.Sub(lastHR) >= d.accelInterval {
				lastHR = t
				d.sampleHeartRate()
			}

			d.updateStatus(t)

			if d.heartbeat > 0 && t.Sub(lastHeartbeat) >= d.heartbeat {
				lastHeartbeat = t
				d.publishHeartbeat(t, startTime)
			}

			if enter != nil {
				return d.sleep(*enter)
			}
		}
	}
}

// sleep reports the committed sleep and enters it. The process ends here;
// the next run starts from the wake diagnostics.
func (d loopDeps) sleep(enter logic.Event) error {
	event := mqtt.SystemEvent{
		Timestamp: enter.Timestamp,
		Event:     "SLEEP",
		Reason:    enter.Reason,
		Retained:  true,
	}
	if d.tracker != nil {
		event.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), "SLEEP", enter.Reason)
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish sleep event: %v", err)
	}
	if err := d.ctrl.Sleep(); err != nil {
		return err
	}
	log.Printf("power: resumed from deep sleep, exiting")
	return nil
}

func (d loopDeps) sampleAccel() {
	s, err := d.accel.Read()
	if err != nil {
		log.Printf("sensor: read error: %v", err)
		return
	}
	g := s.Magnitude()
	d.metrics.SetAccel(g)
	if d.tracker != nil {
		d.tracker.SetAccel(status.AccelInfo{X: s.X, Y: s.Y, Z: s.Z, Magnitude: g, Halted: d.accel.Halted()})
	}
}

func (d loopDeps) sampleHeartRate() {
	raw, err := d.hr.Read()
	if err != nil {
		log.Printf("sensor: heart-rate read error: %v", err)
		return
	}
	d.metrics.SetHeartRate(raw)
	if d.tracker != nil {
		d.tracker.SetHeartRate(raw)
	}
}

func (d loopDeps) updateStatus(t time.Time) {
	idle := d.ctrl.IdleFor(t)
	d.metrics.SetIdle(idle)
	if b, ok := d.publisher.(bufferDepth); ok {
		d.metrics.SetMQTTBuffered(b.Buffered())
	}
	if d.tracker == nil {
		return
	}
	d.tracker.Update(d.ctrl.State(), buttonInfo(d.ctrl.Buttons()), idle, d.ctrl.Counts())
	d.refreshConnection()
}

func (d loopDeps) publishHeartbeat(t, startTime time.Time) {
	counts := d.ctrl.Counts()
	log.Printf("heartbeat: uptime=%v presses=%d sleep_attempts=%d sleep_aborts=%d",
		t.Sub(startTime), counts.Presses, counts.SleepAttempts, counts.SleepAborts)

	event := mqtt.SystemEvent{
		Timestamp: t,
		Event:     "HEARTBEAT",
	}
	if d.tracker != nil {
		if info := readNetworkInfo(); info != nil {
			d.tracker.SetNetwork(info)
		}
		event.RawPayload = status.FormatStatusEvent(d.tracker.Snapshot(), "HEARTBEAT", "")
	}
	if err := d.publisher.PublishSystem(event); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}

func (d loopDeps) refreshConnection() {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

func logEvent(e logic.Event) {
	switch e.Type {
	case logic.EventButtonPress:
		log.Printf("event: %s %s", e.Type, e.Button)
	default:
		log.Printf("event: %s (%s)", e.Type, e.Reason)
	}
}

// observeTransitions mirrors controller state changes into the tracker and
// metrics.
func observeTransitions(tracker *status.Tracker, m *metrics.Metrics) func(from, to logic.PowerState, at time.Time) {
	return func(from, to logic.PowerState, at time.Time) {
		m.ObserveTransition(from, to)
		if tracker != nil {
			tracker.SetState(to)
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func buttonInfo(states []power.ButtonState) []status.ButtonInfo {
	out := make([]status.ButtonInfo, len(states))
	for i, s := range states {
		out[i] = status.ButtonInfo{Name: s.Name, Pin: s.Pin, Pressed: s.Pressed}
	}
	return out
}

func wakeInfo(r power.WakeReport) status.WakeInfo {
	return status.WakeInfo{
		Cause:    r.Cause.String(),
		Raw:      r.Raw.String(),
		Ext1Mask: r.Status,
		Pins:     r.Pins,
	}
}

// printPlatformState writes the wake report and the raw button levels.
func printPlatformState(w io.Writer, p gpio.Platform, pins []logic.NamedPin) error {
	report, err := power.DiagnoseWake(p, pins)
	if err != nil {
		return err
	}
	for _, l := range report.Lines() {
		fmt.Fprintln(w, l)
	}

	levels := make([]string, 0, len(pins))
	for _, np := range pins {
		pin := gpio.Pin(np.Pin)
		if err := p.ConfigureInput(pin, gpio.PullUp); err != nil {
			return fmt.Errorf("configure %s: %w", np.Name, err)
		}
		level, err := p.Read(pin)
		if err != nil {
			return fmt.Errorf("read %s: %w", np.Name, err)
		}
		levels = append(levels, fmt.Sprintf("%s=%d", np.Name, level.Int()))
	}
	fmt.Fprintln(w, strings.Join(levels, " "))
	return nil
}

// noopPublisher stands in when no broker is configured.
type noopPublisher struct{}

func (noopPublisher) Publish(logic.Event) error            { return nil }
func (noopPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (noopPublisher) Close() error                         { return nil }

// hostInterface is the part of a network interface used for status.
type hostInterface struct {
	Name  string
	Flags net.Flags
	Addrs []net.Addr
}

func readNetworkInfo() *status.NetworkInfo {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	hosts := make([]hostInterface, 0, len(ifaces))
	for _, ifc := range ifaces {
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		hosts = append(hosts, hostInterface{Name: ifc.Name, Flags: ifc.Flags, Addrs: addrs})
	}
	return networkInfo(hosts)
}

// networkInfo picks the first up, non-loopback interface with an IPv4
// address. Interfaces named wl* are reported as wifi.
func networkInfo(ifaces []hostInterface) *status.NetworkInfo {
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		for _, a := range ifc.Addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			info := &status.NetworkInfo{
				Type:   "ethernet",
				IP:     ipnet.IP.String(),
				Status: "connected",
			}
			if strings.HasPrefix(ifc.Name, "wl") {
				info.Type = "wifi"
				info.WifiStatus = "connected"
			}
			return info
		}
	}
	return nil
}
