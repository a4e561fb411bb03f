package device

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/nerrad567/indi-bridge/internal/indi"
)

// Element is the current value of one member of a property vector.
//
// Only the fields that belong to the element's Kind are meaningful:
//   - number: Format, Min, Max, Step, Number
//   - text: Text
//   - switch: Switch
//   - light: Light
//   - blob: Format (e.g. ".fits"), Size, BLOB
type Element struct {
	Kind  indi.Kind
	Name  string
	Label string

	Format string
	Min    int64
	Max    int64
	Step   int64

	Number float64
	Text   string
	Switch indi.SwitchState
	Light  indi.PropertyState
	BLOB   []byte
	Size   int64
}

// Value returns the element value as a plain Go value suitable for JSON
// and for time-series tags.
func (e Element) Value() any {
	switch e.Kind {
	case indi.KindNumber:
		return e.Number
	case indi.KindText:
		return e.Text
	case indi.KindSwitch:
		return string(e.Switch)
	case indi.KindLight:
		return string(e.Light)
	case indi.KindBLOB:
		return e.BLOB
	default:
		return nil
	}
}

// elementJSON is the wire shape of an element in API and MQTT payloads.
type elementJSON struct {
	Name   string `json:"name"`
	Label  string `json:"label,omitempty"`
	Value  any    `json:"value"`
	Format string `json:"format,omitempty"`
	Min    *int64 `json:"min,omitempty"`
	Max    *int64 `json:"max,omitempty"`
	Step   *int64 `json:"step,omitempty"`
	Size   *int64 `json:"size,omitempty"`
}

// MarshalJSON emits only the fields that apply to the element's kind.
// JSON has no NaN or infinity, so those numbers are written as the strings
// "NaN", "+Inf" and "-Inf".
func (e Element) MarshalJSON() ([]byte, error) {
	out := elementJSON{Name: e.Name, Label: e.Label, Value: e.Value(), Format: e.Format}
	switch e.Kind {
	case indi.KindNumber:
		out.Min, out.Max, out.Step = &e.Min, &e.Max, &e.Step
		if !isFinite(e.Number) {
			out.Value = strconv.FormatFloat(e.Number, 'g', -1, 64)
		}
	case indi.KindBLOB:
		out.Size = &e.Size
	}
	return json.Marshal(out)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Property is the stored state of one property vector.
type Property struct {
	Device    string             `json:"device"`
	Name      string             `json:"name"`
	Kind      indi.Kind          `json:"kind"`
	Label     string             `json:"label,omitempty"`
	Group     string             `json:"group,omitempty"`
	State     indi.PropertyState `json:"state"`
	Perm      indi.Perm          `json:"perm,omitempty"`
	Rule      indi.SwitchRule    `json:"rule,omitempty"`
	Timeout   *uint32            `json:"timeout,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Message   string             `json:"message,omitempty"`
	Elements  []Element          `json:"elements"`

	index map[string]int // element name to position in Elements
}

// Element returns the named element.
func (p *Property) Element(name string) (Element, bool) {
	i, ok := p.lookup(name)
	if !ok {
		return Element{}, false
	}
	return p.Elements[i], true
}

func (p *Property) lookup(name string) (int, bool) {
	if p.index == nil {
		p.reindex()
	}
	i, ok := p.index[name]
	return i, ok
}

func (p *Property) reindex() {
	p.index = make(map[string]int, len(p.Elements))
	for i, e := range p.Elements {
		p.index[e.Name] = i
	}
}

// Writable reports whether clients may send new values. Light vectors are
// always read-only.
func (p *Property) Writable() bool {
	return p.Kind != indi.KindLight && p.Perm.Writable()
}

// DeepCopy returns an independent copy of the property, including blob
// payloads.
func (p *Property) DeepCopy() *Property {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Timeout != nil {
		t := *p.Timeout
		cp.Timeout = &t
	}
	cp.Elements = make([]Element, len(p.Elements))
	copy(cp.Elements, p.Elements)
	for i := range cp.Elements {
		if b := cp.Elements[i].BLOB; b != nil {
			cp.Elements[i].BLOB = append([]byte(nil), b...)
		}
	}
	cp.reindex()
	return &cp
}

// Device is a named INDI device and its properties.
type Device struct {
	Name       string               `json:"name"`
	Properties map[string]*Property `json:"properties"`
}

// DeepCopy returns an independent copy of the device and its properties.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}
	cp := &Device{Name: d.Name, Properties: make(map[string]*Property, len(d.Properties))}
	for name, p := range d.Properties {
		cp.Properties[name] = p.DeepCopy()
	}
	return cp
}

// ChangeOp is the kind of mutation a command caused.
type ChangeOp string

// Change operations.
const (
	ChangeNone   ChangeOp = "none"
	ChangeDefine ChangeOp = "define"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// Change describes the effect of applying one command to the store.
type Change struct {
	Op       ChangeOp `json:"op"`
	Device   string   `json:"device,omitempty"`
	Property string   `json:"property,omitempty"`

	// Elements names the elements written by an update, in command order.
	// A define lists every element.
	Elements []string `json:"elements,omitempty"`

	// Deleted lists the properties removed by a delete.
	Deleted []string `json:"deleted,omitempty"`

	// Snapshot is a copy of the property after the change. Nil for
	// deletes and for commands that mutate nothing.
	Snapshot *Property `json:"snapshot,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`

	// Command is the command that produced the change.
	Command indi.Command `json:"-"`
}
