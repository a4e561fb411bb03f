package device

import "errors"

// Store errors. They are returned wrapped with the device and property
// names, so match them with errors.Is:
//
//	if errors.Is(err, device.ErrPropertyNotFound) {
//	    // update for a property the server never defined
//	}
var (
	// ErrDeviceNotFound is returned when a device has no properties in the store.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrPropertyNotFound is returned when a command or lookup names an
	// undefined property.
	ErrPropertyNotFound = errors.New("device: property not found")

	// ErrElementNotFound is returned when an update names an element the
	// property definition does not contain.
	ErrElementNotFound = errors.New("device: element not found")

	// ErrKindMismatch is returned when an update's kind differs from the
	// stored property's kind.
	ErrKindMismatch = errors.New("device: property kind mismatch")

	// ErrUnsupportedCommand is returned for command types the store does
	// not know how to apply.
	ErrUnsupportedCommand = errors.New("device: unsupported command")
)
