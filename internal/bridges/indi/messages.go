package indi

import (
	"time"

	"github.com/nerrad567/indi-bridge/internal/device"
	indiproto "github.com/nerrad567/indi-bridge/internal/indi"
)

// PropertyMessage is the retained snapshot on {prefix}/state/{device}/{property}.
// BLOB payloads are omitted; only their size and format are published.
type PropertyMessage struct {
	*device.Property
	Op string `json:"op"`
}

// MessageEvent carries an INDI message on {prefix}/message/{device|_global}.
type MessageEvent struct {
	Device    string    `json:"device,omitempty"`
	Property  string    `json:"property,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// CommandMessage is the inbound payload on {prefix}/command/{device}/{property}.
//
//	{"id": "c1", "kind": "number", "elements": {"CCD_EXPOSURE_VALUE": 2.5}}
//
// Kind is optional; when present it must match the property. Element values
// follow the property kind:
//   - number: JSON number, or a string in INDI number syntax ("12:30:00")
//   - text: string
//   - switch: "On"/"Off" or a boolean
//   - blob: {"format": ".fits", "data": "<base64>"}
type CommandMessage struct {
	ID       string         `json:"id,omitempty"`
	Kind     indiproto.Kind `json:"kind,omitempty"`
	Elements map[string]any `json:"elements"`
}

// AckStatus is the outcome of a command.
type AckStatus string

const (
	// AckAccepted means the request was written to the INDI server. The
	// device reports the result through later state updates.
	AckAccepted AckStatus = "accepted"

	// AckFailed means the request was rejected before reaching the server.
	AckFailed AckStatus = "failed"
)

// AckMessage is published on {prefix}/ack/{device}/{property}.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Device    string    `json:"device"`
	Property  string    `json:"property"`
	Status    AckStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthStatus is the bridge's overall state.
type HealthStatus string

const (
	HealthStarting HealthStatus = "starting"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is the retained payload on {prefix}/health. If the bridge
// dies without a clean disconnect the broker replaces it with the plain
// string "offline".
type HealthMessage struct {
	Status    HealthStatus     `json:"status"`
	Reason    string           `json:"reason,omitempty"`
	Version   string           `json:"version,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Uptime    int64            `json:"uptime_seconds"`
	Connected bool             `json:"connected"`
	Devices   int              `json:"devices"`
	INDI      *indiproto.Stats `json:"indi,omitempty"`
}

// newPropertyMessage copies p without blob payloads.
func newPropertyMessage(op device.ChangeOp, p *device.Property) PropertyMessage {
	cp := p.DeepCopy()
	for i := range cp.Elements {
		cp.Elements[i].BLOB = nil
	}
	return PropertyMessage{Property: cp, Op: string(op)}
}
