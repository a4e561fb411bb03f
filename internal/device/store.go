package device

import (
	"fmt"
	"slices"
	"time"

	"github.com/nerrad567/indi-bridge/internal/indi"
)

// Store folds decoded INDI commands into a snapshot of remote device state.
//
// Store is not safe for concurrent use. It is meant to be owned by the
// single loop that consumes the decoder; Registry wraps it for shared
// access.
type Store struct {
	devices map[string]*Device
	now     func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{devices: make(map[string]*Device), now: time.Now}
}

// Device returns the named device. The result aliases store state and must
// not be modified.
func (s *Store) Device(name string) (*Device, bool) {
	d, ok := s.devices[name]
	return d, ok
}

// Property returns one property. The result aliases store state and must
// not be modified.
func (s *Store) Property(device, name string) (*Property, bool) {
	d, ok := s.devices[device]
	if !ok {
		return nil, false
	}
	p, ok := d.Properties[name]
	return p, ok
}

// Devices returns the device names in sorted order.
func (s *Store) Devices() []string {
	names := make([]string, 0, len(s.devices))
	for name := range s.devices {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Apply folds one command into the store.
//
// Definitions create the device when needed and replace the property in
// full. Set and New commands patch the header fields they carry and the
// values of the elements they name. Deletes remove one property, or the
// whole device when no property is named. Message and GetProperties
// change nothing and yield ChangeNone.
//
// On error the store is left exactly as it was.
func (s *Store) Apply(cmd indi.Command) (Change, error) {
	switch c := cmd.(type) {
	case *indi.DefNumberVector:
		return s.define(c, defNumber(c)), nil
	case *indi.DefTextVector:
		return s.define(c, defText(c)), nil
	case *indi.DefSwitchVector:
		return s.define(c, defSwitch(c)), nil
	case *indi.DefLightVector:
		return s.define(c, defLight(c)), nil
	case *indi.DefBLOBVector:
		return s.define(c, defBLOB(c)), nil

	case *indi.SetNumberVector:
		return s.update(c, setHeader(c.Device, c.Name, indi.KindNumber, c.State, c.Timeout, c.Timestamp, c.Message), numberPatches(c.Numbers))
	case *indi.SetTextVector:
		return s.update(c, setHeader(c.Device, c.Name, indi.KindText, c.State, c.Timeout, c.Timestamp, c.Message), textPatches(c.Texts))
	case *indi.SetSwitchVector:
		return s.update(c, setHeader(c.Device, c.Name, indi.KindSwitch, c.State, c.Timeout, c.Timestamp, c.Message), switchPatches(c.Switches))
	case *indi.SetLightVector:
		return s.update(c, setHeader(c.Device, c.Name, indi.KindLight, c.State, nil, c.Timestamp, c.Message), lightPatches(c.Lights))
	case *indi.SetBLOBVector:
		return s.update(c, setHeader(c.Device, c.Name, indi.KindBLOB, c.State, c.Timeout, c.Timestamp, c.Message), blobPatches(c.BLOBs))

	case *indi.NewNumberVector:
		return s.update(c, newHeader(c.Device, c.Name, indi.KindNumber, c.Timestamp), numberPatches(c.Numbers))
	case *indi.NewTextVector:
		return s.update(c, newHeader(c.Device, c.Name, indi.KindText, c.Timestamp), textPatches(c.Texts))
	case *indi.NewSwitchVector:
		return s.update(c, newHeader(c.Device, c.Name, indi.KindSwitch, c.Timestamp), switchPatches(c.Switches))
	case *indi.NewLightVector:
		return s.update(c, newHeader(c.Device, c.Name, indi.KindLight, c.Timestamp), lightPatches(c.Lights))
	case *indi.NewBLOBVector:
		return s.update(c, newHeader(c.Device, c.Name, indi.KindBLOB, c.Timestamp), blobPatches(c.BLOBs))

	case *indi.DelProperty:
		return s.delete(c)
	case *indi.Message:
		return Change{Op: ChangeNone, Device: c.Device, Timestamp: c.Timestamp, Message: c.Message, Command: c}, nil
	case *indi.GetProperties:
		return Change{Op: ChangeNone, Device: c.Device, Property: c.Name, Timestamp: s.now().UTC(), Command: c}, nil
	default:
		return Change{}, fmt.Errorf("%w: %T", ErrUnsupportedCommand, cmd)
	}
}

func (s *Store) define(cmd indi.Command, p *Property) Change {
	if p.Timeout != nil {
		t := *p.Timeout
		p.Timeout = &t
	}
	p.reindex()
	d, ok := s.devices[p.Device]
	if !ok {
		d = &Device{Name: p.Device, Properties: make(map[string]*Property)}
		s.devices[p.Device] = d
	}
	d.Properties[p.Name] = p

	names := make([]string, len(p.Elements))
	for i, e := range p.Elements {
		names[i] = e.Name
	}
	return Change{
		Op:        ChangeDefine,
		Device:    p.Device,
		Property:  p.Name,
		Elements:  names,
		Snapshot:  p.DeepCopy(),
		Timestamp: s.stamp(p.Timestamp),
		Message:   p.Message,
		Command:   cmd,
	}
}

// header carries the vector attributes an update may overwrite. Nil and
// zero values mean the command did not carry the field.
type header struct {
	device, name string
	kind         indi.Kind
	state        indi.PropertyState
	timeout      *uint32
	timestamp    time.Time
	message      string
}

func setHeader(device, name string, kind indi.Kind, state indi.PropertyState, timeout *uint32, ts time.Time, msg string) header {
	return header{device: device, name: name, kind: kind, state: state, timeout: timeout, timestamp: ts, message: msg}
}

func newHeader(device, name string, kind indi.Kind, ts time.Time) header {
	return header{device: device, name: name, kind: kind, timestamp: ts}
}

// patch writes one element's new value.
type patch struct {
	name  string
	apply func(*Element)
}

func (s *Store) update(cmd indi.Command, h header, patches []patch) (Change, error) {
	p, ok := s.Property(h.device, h.name)
	if !ok {
		return Change{}, fmt.Errorf("%w: %s.%s", ErrPropertyNotFound, h.device, h.name)
	}
	if p.Kind != h.kind {
		return Change{}, fmt.Errorf("%w: %s.%s is %s, got %s", ErrKindMismatch, h.device, h.name, p.Kind, h.kind)
	}

	// Resolve every element before writing anything.
	idx := make([]int, len(patches))
	for i, pt := range patches {
		j, ok := p.lookup(pt.name)
		if !ok {
			return Change{}, fmt.Errorf("%w: %s.%s.%s", ErrElementNotFound, h.device, h.name, pt.name)
		}
		idx[i] = j
	}

	if h.state != "" {
		p.State = h.state
	}
	if h.timeout != nil {
		t := *h.timeout
		p.Timeout = &t
	}
	if !h.timestamp.IsZero() {
		p.Timestamp = h.timestamp
	}
	if h.message != "" {
		p.Message = h.message
	}

	names := make([]string, len(patches))
	for i, pt := range patches {
		pt.apply(&p.Elements[idx[i]])
		names[i] = pt.name
	}

	return Change{
		Op:        ChangeUpdate,
		Device:    h.device,
		Property:  h.name,
		Elements:  names,
		Snapshot:  p.DeepCopy(),
		Timestamp: s.stamp(h.timestamp),
		Message:   h.message,
		Command:   cmd,
	}, nil
}

func (s *Store) delete(c *indi.DelProperty) (Change, error) {
	d, ok := s.devices[c.Device]
	if !ok {
		return Change{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, c.Device)
	}

	change := Change{
		Op:        ChangeDelete,
		Device:    c.Device,
		Property:  c.Name,
		Timestamp: s.stamp(c.Timestamp),
		Message:   c.Message,
		Command:   c,
	}

	if c.Name != "" {
		if _, ok := d.Properties[c.Name]; !ok {
			return Change{}, fmt.Errorf("%w: %s.%s", ErrPropertyNotFound, c.Device, c.Name)
		}
		delete(d.Properties, c.Name)
		change.Deleted = []string{c.Name}
		return change, nil
	}

	for name := range d.Properties {
		change.Deleted = append(change.Deleted, name)
	}
	slices.Sort(change.Deleted)
	delete(s.devices, c.Device)
	return change, nil
}

func (s *Store) stamp(ts time.Time) time.Time {
	if ts.IsZero() {
		return s.now().UTC()
	}
	return ts
}

func defNumber(c *indi.DefNumberVector) *Property {
	p := &Property{
		Device: c.Device, Name: c.Name, Kind: indi.KindNumber,
		Label: c.Label, Group: c.Group, State: c.State, Perm: c.Perm,
		Timeout: c.Timeout, Timestamp: c.Timestamp, Message: c.Message,
		Elements: make([]Element, len(c.Numbers)),
	}
	for i, n := range c.Numbers {
		p.Elements[i] = Element{
			Kind: indi.KindNumber, Name: n.Name, Label: n.Label,
			Format: n.Format, Min: n.Min, Max: n.Max, Step: n.Step, Number: n.Value,
		}
	}
	return p
}

func defText(c *indi.DefTextVector) *Property {
	p := &Property{
		Device: c.Device, Name: c.Name, Kind: indi.KindText,
		Label: c.Label, Group: c.Group, State: c.State, Perm: c.Perm,
		Timeout: c.Timeout, Timestamp: c.Timestamp, Message: c.Message,
		Elements: make([]Element, len(c.Texts)),
	}
	for i, t := range c.Texts {
		p.Elements[i] = Element{Kind: indi.KindText, Name: t.Name, Label: t.Label, Text: t.Value}
	}
	return p
}

func defSwitch(c *indi.DefSwitchVector) *Property {
	p := &Property{
		Device: c.Device, Name: c.Name, Kind: indi.KindSwitch,
		Label: c.Label, Group: c.Group, State: c.State, Perm: c.Perm, Rule: c.Rule,
		Timeout: c.Timeout, Timestamp: c.Timestamp, Message: c.Message,
		Elements: make([]Element, len(c.Switches)),
	}
	for i, sw := range c.Switches {
		p.Elements[i] = Element{Kind: indi.KindSwitch, Name: sw.Name, Label: sw.Label, Switch: sw.Value}
	}
	return p
}

func defLight(c *indi.DefLightVector) *Property {
	p := &Property{
		Device: c.Device, Name: c.Name, Kind: indi.KindLight,
		Label: c.Label, Group: c.Group, State: c.State, Perm: indi.PermRO,
		Timestamp: c.Timestamp, Message: c.Message,
		Elements: make([]Element, len(c.Lights)),
	}
	for i, l := range c.Lights {
		p.Elements[i] = Element{Kind: indi.KindLight, Name: l.Name, Label: l.Label, Light: l.Value}
	}
	return p
}

func defBLOB(c *indi.DefBLOBVector) *Property {
	p := &Property{
		Device: c.Device, Name: c.Name, Kind: indi.KindBLOB,
		Label: c.Label, Group: c.Group, State: c.State, Perm: c.Perm,
		Timeout: c.Timeout, Timestamp: c.Timestamp, Message: c.Message,
		Elements: make([]Element, len(c.BLOBs)),
	}
	for i, b := range c.BLOBs {
		p.Elements[i] = Element{Kind: indi.KindBLOB, Name: b.Name, Label: b.Label}
	}
	return p
}

func numberPatches(in []indi.OneNumber) []patch {
	out := make([]patch, len(in))
	for i, n := range in {
		v := n.Value
		out[i] = patch{name: n.Name, apply: func(e *Element) { e.Number = v }}
	}
	return out
}

func textPatches(in []indi.OneText) []patch {
	out := make([]patch, len(in))
	for i, t := range in {
		v := t.Value
		out[i] = patch{name: t.Name, apply: func(e *Element) { e.Text = v }}
	}
	return out
}

func switchPatches(in []indi.OneSwitch) []patch {
	out := make([]patch, len(in))
	for i, sw := range in {
		v := sw.Value
		out[i] = patch{name: sw.Name, apply: func(e *Element) { e.Switch = v }}
	}
	return out
}

func lightPatches(in []indi.OneLight) []patch {
	out := make([]patch, len(in))
	for i, l := range in {
		v := l.Value
		out[i] = patch{name: l.Name, apply: func(e *Element) { e.Light = v }}
	}
	return out
}

func blobPatches(in []indi.OneBLOB) []patch {
	out := make([]patch, len(in))
	for i, b := range in {
		out[i] = patch{name: b.Name, apply: func(e *Element) {
			e.BLOB = append([]byte(nil), b.Data...)
			e.Size = b.Size
			e.Format = b.Format
		}}
	}
	return out
}
