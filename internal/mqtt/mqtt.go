// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sweeney/tinywatch/internal/logic"
)

// Topic is the MQTT topic for power events.
const Topic = "tinywatch/power/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "tinywatch/power/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a power event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, sleep, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SLEEP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "IDLE"
	BootID     string
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Power PowerPayload `json:"power"`
}

// PowerPayload contains the power event details.
type PowerPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Button    string `json:"button,omitempty"`
	Reason    string `json:"reason,omitempty"`
	State     string `json:"state"`
	BootID    string `json:"boot_id,omitempty"`
}

// FormatPayload creates the JSON payload for a power event.
func FormatPayload(event logic.Event, bootID string) ([]byte, error) {
	payload := Payload{
		Power: PowerPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
			Event:     string(event.Type),
			Button:    event.Button,
			Reason:    event.Reason,
			State:     string(event.State),
			BootID:    bootID,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	BootID    string `json:"boot_id,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			BootID:    event.BootID,
		},
	}
	return json.Marshal(payload)
}

// powerMessage builds the wire message for a power event.
func powerMessage(event logic.Event, bootID string) (bufferedMsg, error) {
	payload, err := FormatPayload(event, bootID)
	if err != nil {
		return bufferedMsg{}, fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return bufferedMsg{topic: Topic, payload: payload}, nil
}

// systemMessage builds the wire message for a system lifecycle event.
func systemMessage(event SystemEvent) (bufferedMsg, error) {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return bufferedMsg{}, fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) so lifecycle transitions are not lost
	return bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained}, nil
}
