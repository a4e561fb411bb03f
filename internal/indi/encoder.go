package indi

import (
	"bufio"
	"encoding/base64"
	"encoding/xml"
	"io"
	"strconv"
	"time"
)

// timestampLayout is the wire form of timestamps written by the encoder.
const timestampLayout = "2006-01-02T15:04:05"

// Encoder writes client requests. Attributes are always emitted in the
// same order so output is byte-for-byte reproducible.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder returns an encoder writing to w. Each method writes one
// complete element followed by a newline and flushes.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// GetProperties writes a property query. Empty device or name widen the
// query to all devices or all properties.
func (e *Encoder) GetProperties(device, name string) error {
	e.open("getProperties")
	e.attr("version", ProtocolVersion)
	e.optAttr("device", device)
	e.optAttr("name", name)
	e.raw("/>\n")
	return e.w.Flush()
}

// EnableBLOB sets how the server delivers blobs for a device, or for one
// property when name is set.
func (e *Encoder) EnableBLOB(device, name string, mode BLOBEnable) error {
	e.open("enableBLOB")
	e.attr("device", device)
	e.optAttr("name", name)
	e.raw(">")
	e.text(string(mode))
	e.raw("</enableBLOB>\n")
	return e.w.Flush()
}

// NewNumberVector writes a number change request.
func (e *Encoder) NewNumberVector(v NewNumberVector) error {
	e.vector(v.Tag(), v.Device, v.Name, v.Timestamp)
	for _, n := range v.Numbers {
		e.raw("  ")
		e.open("oneNumber")
		e.attr("name", n.Name)
		e.raw(">")
		e.text(strconv.FormatFloat(n.Value, 'g', -1, 64))
		e.raw("</oneNumber>\n")
	}
	return e.close(v.Tag())
}

// NewTextVector writes a text change request.
func (e *Encoder) NewTextVector(v NewTextVector) error {
	e.vector(v.Tag(), v.Device, v.Name, v.Timestamp)
	for _, t := range v.Texts {
		e.raw("  ")
		e.open("oneText")
		e.attr("name", t.Name)
		e.raw(">")
		e.text(t.Value)
		e.raw("</oneText>\n")
	}
	return e.close(v.Tag())
}

// NewSwitchVector writes a switch change request.
func (e *Encoder) NewSwitchVector(v NewSwitchVector) error {
	e.vector(v.Tag(), v.Device, v.Name, v.Timestamp)
	for _, s := range v.Switches {
		e.raw("  ")
		e.open("oneSwitch")
		e.attr("name", s.Name)
		e.raw(">")
		e.text(string(s.Value))
		e.raw("</oneSwitch>\n")
	}
	return e.close(v.Tag())
}

// NewBLOBVector writes a blob upload. Size is taken from the payload when
// left at zero.
func (e *Encoder) NewBLOBVector(v NewBLOBVector) error {
	e.vector(v.Tag(), v.Device, v.Name, v.Timestamp)
	for _, b := range v.BLOBs {
		size := b.Size
		if size == 0 {
			size = int64(len(b.Data))
		}
		e.raw("  ")
		e.open("oneBLOB")
		e.attr("name", b.Name)
		e.attr("size", strconv.FormatInt(size, 10))
		encoded := base64.StdEncoding.EncodeToString(b.Data)
		e.attr("format", b.Format)
		e.attr("enclen", strconv.Itoa(len(encoded)))
		e.raw(">")
		e.raw(encoded)
		e.raw("</oneBLOB>\n")
	}
	return e.close(v.Tag())
}

// Encode writes any client request command. Server-originated commands
// cannot be encoded.
func (e *Encoder) Encode(cmd Command) error {
	switch c := cmd.(type) {
	case *GetProperties:
		return e.GetProperties(c.Device, c.Name)
	case *NewNumberVector:
		return e.NewNumberVector(*c)
	case *NewTextVector:
		return e.NewTextVector(*c)
	case *NewSwitchVector:
		return e.NewSwitchVector(*c)
	case *NewBLOBVector:
		return e.NewBLOBVector(*c)
	default:
		return &UnexpectedTagError{Tag: cmd.Tag()}
	}
}

func (e *Encoder) vector(tag, device, name string, ts time.Time) {
	e.open(tag)
	e.attr("device", device)
	e.attr("name", name)
	if !ts.IsZero() {
		e.attr("timestamp", ts.UTC().Format(timestampLayout))
	}
	e.raw(">\n")
}

func (e *Encoder) close(tag string) error {
	e.raw("</" + tag + ">\n")
	return e.w.Flush()
}

func (e *Encoder) open(tag string) {
	e.raw("<" + tag)
}

func (e *Encoder) attr(name, value string) {
	e.raw(" " + name + `="`)
	e.text(value)
	e.raw(`"`)
}

func (e *Encoder) optAttr(name, value string) {
	if value != "" {
		e.attr(name, value)
	}
}

// raw and text ignore write errors; bufio keeps the first one and Flush
// reports it.
func (e *Encoder) raw(s string) {
	_, _ = e.w.WriteString(s)
}

func (e *Encoder) text(s string) {
	_ = xml.EscapeText(e.w, []byte(s))
}
