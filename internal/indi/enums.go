package indi

// PropertyState is the lifecycle state of a property. The same vocabulary
// is used for light element values.
type PropertyState string

// Property states.
const (
	StateIdle  PropertyState = "Idle"
	StateOk    PropertyState = "Ok"
	StateBusy  PropertyState = "Busy"
	StateAlert PropertyState = "Alert"
)

// Perm is the client's access to a property.
type Perm string

// Permissions.
const (
	PermRO Perm = "ro"
	PermWO Perm = "wo"
	PermRW Perm = "rw"
)

// Writable reports whether clients may send new values.
func (p Perm) Writable() bool { return p == PermWO || p == PermRW }

// SwitchRule constrains how many switches of a vector may be On.
type SwitchRule string

// Switch rules.
const (
	RuleOneOfMany SwitchRule = "OneOfMany"
	RuleAtMostOne SwitchRule = "AtMostOne"
	RuleAnyOfMany SwitchRule = "AnyOfMany"
)

// SwitchState is the value of a single switch.
type SwitchState string

// Switch values.
const (
	SwitchOn  SwitchState = "On"
	SwitchOff SwitchState = "Off"
)

// BLOBEnable is the body of an enableBLOB request.
type BLOBEnable string

// BLOB delivery modes.
const (
	BLOBNever BLOBEnable = "Never"
	BLOBAlso  BLOBEnable = "Also"
	BLOBOnly  BLOBEnable = "Only"
)

// ParsePropertyState parses a lifecycle state. Matching is exact.
func ParsePropertyState(b []byte) (PropertyState, error) {
	switch PropertyState(b) {
	case StateIdle, StateOk, StateBusy, StateAlert:
		return PropertyState(b), nil
	}
	return "", unknownValue("PropertyState", b)
}

// ParsePerm parses a permission ("ro", "wo" or "rw").
func ParsePerm(b []byte) (Perm, error) {
	switch Perm(b) {
	case PermRO, PermWO, PermRW:
		return Perm(b), nil
	}
	return "", unknownValue("Perm", b)
}

// ParseSwitchRule parses a switch rule.
func ParseSwitchRule(b []byte) (SwitchRule, error) {
	switch SwitchRule(b) {
	case RuleOneOfMany, RuleAtMostOne, RuleAnyOfMany:
		return SwitchRule(b), nil
	}
	return "", unknownValue("SwitchRule", b)
}

// ParseSwitchState parses "On" or "Off".
func ParseSwitchState(b []byte) (SwitchState, error) {
	switch SwitchState(b) {
	case SwitchOn, SwitchOff:
		return SwitchState(b), nil
	}
	return "", unknownValue("SwitchState", b)
}

// ParseBLOBEnable parses an enableBLOB mode.
func ParseBLOBEnable(b []byte) (BLOBEnable, error) {
	switch BLOBEnable(b) {
	case BLOBNever, BLOBAlso, BLOBOnly:
		return BLOBEnable(b), nil
	}
	return "", unknownValue("BLOBEnable", b)
}

func unknownValue(grammar string, b []byte) error {
	return &ValueError{Grammar: grammar, Value: append([]byte(nil), b...), Err: ErrUnknownValue}
}
