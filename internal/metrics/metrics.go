// Package metrics exposes the power manager's counters and gauges to
// Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/tinywatch/internal/logic"
)

var powerStates = []logic.PowerState{
	logic.StateAwake,
	logic.StatePreparingSleep,
	logic.StateQuietCheck,
	logic.StateSleeping,
	logic.StateAborted,
}

// Metrics owns a private registry. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	reg *prometheus.Registry

	presses       *prometheus.CounterVec
	sleepAttempts prometheus.Counter
	sleepCommits  prometheus.Counter
	sleepAborts   prometheus.Counter
	powerState    *prometheus.GaugeVec
	wakeCause     *prometheus.GaugeVec
	idleSeconds   prometheus.Gauge
	accelG        prometheus.Gauge
	heartRaw      prometheus.Gauge
	mqttBuffered  prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New creates the metrics and registers them with a new registry, along
// with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		presses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tinywatch_button_presses_total",
			Help: "Debounced button presses by button.",
		}, []string{"button"}),
		sleepAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tinywatch_sleep_attempts_total",
			Help: "Times the idle threshold started sleep preparation.",
		}),
		sleepCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tinywatch_sleep_commits_total",
			Help: "Sleep attempts that passed the quiet window.",
		}),
		sleepAborts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tinywatch_sleep_aborts_total",
			Help: "Sleep attempts aborted by a LOW wake pin.",
		}),
		powerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tinywatch_power_state",
			Help: "1 for the current power state, 0 otherwise.",
		}, []string{"state"}),
		wakeCause: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tinywatch_wake_cause_info",
			Help: "Wake cause of the current run.",
		}, []string{"cause", "raw"}),
		idleSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tinywatch_idle_seconds",
			Help: "Time since the last button press.",
		}),
		accelG: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tinywatch_accel_magnitude_g",
			Help: "Magnitude of the last accelerometer sample.",
		}),
		heartRaw: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tinywatch_heart_rate_adc_raw",
			Help: "Last raw heart-rate ADC conversion.",
		}),
		mqttBuffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tinywatch_mqtt_buffered_messages",
			Help: "Messages waiting for the broker connection.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tinywatch_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tinywatch_http_request_duration_seconds",
			Help:    "HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.reg.MustRegister(
		m.presses,
		m.sleepAttempts,
		m.sleepCommits,
		m.sleepAborts,
		m.powerState,
		m.wakeCause,
		m.idleSeconds,
		m.accelG,
		m.heartRaw,
		m.mqttBuffered,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.SetState(logic.StateAwake)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// ObserveEvent counts a power event.
func (m *Metrics) ObserveEvent(ev logic.Event) {
	if m == nil {
		return
	}
	switch ev.Type {
	case logic.EventButtonPress:
		m.presses.WithLabelValues(ev.Button).Inc()
	case logic.EventSleepEnter:
		m.sleepCommits.Inc()
	case logic.EventSleepAbort:
		m.sleepAborts.Inc()
	}
}

// ObserveTransition updates the state gauge and counts sleep attempts.
func (m *Metrics) ObserveTransition(from, to logic.PowerState) {
	if m == nil {
		return
	}
	if to == logic.StatePreparingSleep {
		m.sleepAttempts.Inc()
	}
	m.SetState(to)
}

// SetState marks state as current.
func (m *Metrics) SetState(state logic.PowerState) {
	if m == nil {
		return
	}
	for _, s := range powerStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.powerState.WithLabelValues(string(s)).Set(v)
	}
}

// SetWakeCause records why this run started.
func (m *Metrics) SetWakeCause(cause logic.WakeCause, raw logic.RawWakeCause) {
	if m == nil {
		return
	}
	m.wakeCause.Reset()
	m.wakeCause.WithLabelValues(cause.String(), raw.String()).Set(1)
}

// SetIdle records the time since the last press.
func (m *Metrics) SetIdle(d time.Duration) {
	if m == nil {
		return
	}
	m.idleSeconds.Set(d.Seconds())
}

// SetAccel records the last acceleration magnitude in g.
func (m *Metrics) SetAccel(g float32) {
	if m == nil {
		return
	}
	m.accelG.Set(float64(g))
}

// SetHeartRate records the last raw heart-rate ADC value.
func (m *Metrics) SetHeartRate(raw int) {
	if m == nil {
		return
	}
	m.heartRaw.Set(float64(raw))
}

// SetMQTTBuffered records the outbox depth.
func (m *Metrics) SetMQTTBuffered(n int) {
	if m == nil {
		return
	}
	m.mqttBuffered.Set(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts and times requests to next under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		m.httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
