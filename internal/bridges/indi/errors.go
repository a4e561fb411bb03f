package indi

import "errors"

// Command validation errors. Device and property lookups return the
// device package's ErrDeviceNotFound / ErrPropertyNotFound.
var (
	// ErrReadOnly is returned for a change to a ro property or a light vector.
	ErrReadOnly = errors.New("bridge: property is read-only")

	// ErrKindMismatch is returned when a command names the wrong vector kind.
	ErrKindMismatch = errors.New("bridge: kind does not match property")

	// ErrNoElements is returned for a command with no element values.
	ErrNoElements = errors.New("bridge: command has no elements")

	// ErrInvalidValue is returned when an element value has the wrong type
	// or cannot be parsed.
	ErrInvalidValue = errors.New("bridge: invalid element value")

	// ErrInvalidPayload is returned for an undecodable command payload.
	ErrInvalidPayload = errors.New("bridge: invalid command payload")

	// ErrNotConnected is returned when the INDI connection is down.
	ErrNotConnected = errors.New("bridge: INDI server not connected")
)
