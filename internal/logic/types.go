// Package logic contains pure decision logic for the watch power manager.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Level is the electrical level of a pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// Int returns 1 for High and 0 for Low, matching raw register reads.
func (l Level) Int() int {
	if l {
		return 1
	}
	return 0
}

// PowerState is a state of the sleep state machine.
type PowerState string

const (
	StateAwake          PowerState = "AWAKE"
	StatePreparingSleep PowerState = "PREPARING_SLEEP"
	StateQuietCheck     PowerState = "QUIET_CHECK"
	StateSleeping       PowerState = "SLEEPING"
	StateAborted        PowerState = "ABORTED"
)

// EventType identifies a power event to be published.
type EventType string

const (
	EventButtonPress EventType = "BUTTON_PRESS"
	EventSleepEnter  EventType = "SLEEP_ENTER"
	EventSleepAbort  EventType = "SLEEP_ABORT"
)

// Event represents a power event to be published.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Button    string // BUTTON_PRESS only
	Reason    string // SLEEP_ABORT only
	State     PowerState
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	Presses       int
	SleepAttempts int
	SleepCommits  int
	SleepAborts   int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
