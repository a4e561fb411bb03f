package indi

import "time"

// ProtocolVersion is the INDI protocol version sent in getProperties.
const ProtocolVersion = "1.7"

// Kind identifies the value type of a property vector.
type Kind string

// Property kinds.
const (
	KindNumber Kind = "number"
	KindText   Kind = "text"
	KindSwitch Kind = "switch"
	KindLight  Kind = "light"
	KindBLOB   Kind = "blob"
)

// Command is one decoded top-level INDI element. The set of implementations
// is closed; switch on the concrete type to handle each variant.
type Command interface {
	// Tag returns the XML element name the command was decoded from.
	Tag() string
	command()
}

// Element definitions carried by def*Vector commands.

// DefNumber defines one number element.
type DefNumber struct {
	Name   string
	Label  string
	Format string // printf-style, including INDI's %m sexagesimal form
	Min    int64
	Max    int64
	Step   int64
	Value  float64
}

// DefText defines one text element.
type DefText struct {
	Name  string
	Label string
	Value string
}

// DefSwitch defines one switch element.
type DefSwitch struct {
	Name  string
	Label string
	Value SwitchState
}

// DefLight defines one light element.
type DefLight struct {
	Name  string
	Label string
	Value PropertyState
}

// DefBLOB advertises a blob element. Definitions carry no payload.
type DefBLOB struct {
	Name  string
	Label string
}

// Element values carried by set*Vector and new*Vector commands.

// OneNumber is a number element value.
type OneNumber struct {
	Name  string
	Value float64
}

// OneText is a text element value.
type OneText struct {
	Name  string
	Value string
}

// OneSwitch is a switch element value.
type OneSwitch struct {
	Name  string
	Value SwitchState
}

// OneLight is a light element value.
type OneLight struct {
	Name  string
	Value PropertyState
}

// OneBLOB is a blob element value. Size is the length advertised by the
// sender, before any compression the format implies; Data holds the
// decoded payload. EncLen is the base64 length the sender announced, or
// zero when it sent none.
type OneBLOB struct {
	Name   string
	Size   int64
	Format string
	EncLen int64
	Data   []byte
}

// DefNumberVector defines a number property.
type DefNumberVector struct {
	Device    string
	Name      string
	Label     string
	Group     string
	State     PropertyState
	Perm      Perm
	Timeout   *uint32
	Timestamp time.Time
	Message   string
	Numbers   []DefNumber
}

// DefTextVector defines a text property.
type DefTextVector struct {
	Device    string
	Name      string
	Label     string
	Group     string
	State     PropertyState
	Perm      Perm
	Timeout   *uint32
	Timestamp time.Time
	Message   string
	Texts     []DefText
}

// DefSwitchVector defines a switch property.
type DefSwitchVector struct {
	Device    string
	Name      string
	Label     string
	Group     string
	State     PropertyState
	Perm      Perm
	Rule      SwitchRule
	Timeout   *uint32
	Timestamp time.Time
	Message   string
	Switches  []DefSwitch
}

// DefLightVector defines a light property. Lights are read-only status
// indicators and carry neither perm nor timeout.
type DefLightVector struct {
	Device    string
	Name      string
	Label     string
	Group     string
	State     PropertyState
	Timestamp time.Time
	Message   string
	Lights    []DefLight
}

// DefBLOBVector defines a blob property.
type DefBLOBVector struct {
	Device    string
	Name      string
	Label     string
	Group     string
	State     PropertyState
	Perm      Perm
	Timeout   *uint32
	Timestamp time.Time
	Message   string
	BLOBs     []DefBLOB
}

// SetNumberVector updates a number property.
type SetNumberVector struct {
	Device    string
	Name      string
	State     PropertyState
	Timeout   *uint32
	Timestamp time.Time
	Message   string
	Numbers   []OneNumber
}

// SetTextVector updates a text property.
type SetTextVector struct {
	Device    string
	Name      string
	State     PropertyState
	Timeout   *uint32
	Timestamp time.Time
	Message   string
	Texts     []OneText
}

// SetSwitchVector updates a switch property.
type SetSwitchVector struct {
	Device    string
	Name      string
	State     PropertyState
	Timeout   *uint32
	Timestamp time.Time
	Message   string
	Switches  []OneSwitch
}

// SetLightVector updates a light property.
type SetLightVector struct {
	Device    string
	Name      string
	State     PropertyState
	Timestamp time.Time
	Message   string
	Lights    []OneLight
}

// SetBLOBVector delivers blob payloads.
type SetBLOBVector struct {
	Device    string
	Name      string
	State     PropertyState
	Timeout   *uint32
	Timestamp time.Time
	Message   string
	BLOBs     []OneBLOB
}

// NewNumberVector asks the server to change number values.
type NewNumberVector struct {
	Device    string
	Name      string
	Timestamp time.Time
	Numbers   []OneNumber
}

// NewTextVector asks the server to change text values.
type NewTextVector struct {
	Device    string
	Name      string
	Timestamp time.Time
	Texts     []OneText
}

// NewSwitchVector asks the server to change switch values.
type NewSwitchVector struct {
	Device    string
	Name      string
	Timestamp time.Time
	Switches  []OneSwitch
}

// NewLightVector mirrors the other request variants. INDI servers never
// accept it, but it is decoded so a captured client stream replays cleanly.
type NewLightVector struct {
	Device    string
	Name      string
	Timestamp time.Time
	Lights    []OneLight
}

// NewBLOBVector uploads blob payloads to the server.
type NewBLOBVector struct {
	Device    string
	Name      string
	Timestamp time.Time
	BLOBs     []OneBLOB
}

// Message is a free-text notice, optionally scoped to one device.
type Message struct {
	Device    string
	Timestamp time.Time
	Message   string
}

// DelProperty removes one property, or every property of Device when Name
// is empty.
type DelProperty struct {
	Device    string
	Name      string
	Timestamp time.Time
	Message   string
}

// GetProperties asks for property definitions, optionally scoped to a
// device and property.
type GetProperties struct {
	Version string
	Device  string
	Name    string
}

func (DefNumberVector) Tag() string { return "defNumberVector" }
func (DefTextVector) Tag() string   { return "defTextVector" }
func (DefSwitchVector) Tag() string { return "defSwitchVector" }
func (DefLightVector) Tag() string  { return "defLightVector" }
func (DefBLOBVector) Tag() string   { return "defBLOBVector" }
func (SetNumberVector) Tag() string { return "setNumberVector" }
func (SetTextVector) Tag() string   { return "setTextVector" }
func (SetSwitchVector) Tag() string { return "setSwitchVector" }
func (SetLightVector) Tag() string  { return "setLightVector" }
func (SetBLOBVector) Tag() string   { return "setBLOBVector" }
func (NewNumberVector) Tag() string { return "newNumberVector" }
func (NewTextVector) Tag() string   { return "newTextVector" }
func (NewSwitchVector) Tag() string { return "newSwitchVector" }
func (NewLightVector) Tag() string  { return "newLightVector" }
func (NewBLOBVector) Tag() string   { return "newBLOBVector" }
func (Message) Tag() string         { return "message" }
func (DelProperty) Tag() string     { return "delProperty" }
func (GetProperties) Tag() string   { return "getProperties" }

func (*DefNumberVector) command() {}
func (*DefTextVector) command()   {}
func (*DefSwitchVector) command() {}
func (*DefLightVector) command()  {}
func (*DefBLOBVector) command()   {}
func (*SetNumberVector) command() {}
func (*SetTextVector) command()   {}
func (*SetSwitchVector) command() {}
func (*SetLightVector) command()  {}
func (*SetBLOBVector) command()   {}
func (*NewNumberVector) command() {}
func (*NewTextVector) command()   {}
func (*NewSwitchVector) command() {}
func (*NewLightVector) command()  {}
func (*NewBLOBVector) command()   {}
func (*Message) command()         {}
func (*DelProperty) command()     {}
func (*GetProperties) command()   {}
