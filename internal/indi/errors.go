package indi

import (
	"errors"
	"fmt"
)

// Decode errors. Typed errors below unwrap to one of these, so callers can
// match with errors.Is regardless of the detail carried.
var (
	// ErrXMLSyntax is returned when the underlying stream is not well-formed XML.
	ErrXMLSyntax = errors.New("indi: xml syntax error")

	// ErrInvalidUTF8 is returned when text or attribute bytes are not valid UTF-8.
	ErrInvalidUTF8 = errors.New("indi: invalid utf-8")

	// ErrDecodeLatin1 is returned when a number body cannot be decoded as Latin-1.
	ErrDecodeLatin1 = errors.New("indi: latin-1 decode failed")

	// ErrParseInt is returned when an integer attribute cannot be parsed.
	ErrParseInt = errors.New("indi: invalid integer")

	// ErrParseFloat is returned when a number value cannot be parsed.
	ErrParseFloat = errors.New("indi: invalid number")

	// ErrParseSexagesimal is returned when a value looks sexagesimal but
	// does not parse as one.
	ErrParseSexagesimal = errors.New("indi: invalid sexagesimal number")

	// ErrParseDateTime is returned when a timestamp cannot be parsed.
	ErrParseDateTime = errors.New("indi: invalid timestamp")

	// ErrUnknownValue is returned when an enumerated value is not one of
	// the protocol's spellings.
	ErrUnknownValue = errors.New("indi: unknown enumerated value")

	// ErrMissingAttr is returned when a required attribute is absent.
	ErrMissingAttr = errors.New("indi: missing attribute")

	// ErrBadAttr is returned when an attribute value is malformed.
	ErrBadAttr = errors.New("indi: bad attribute value")

	// ErrUnexpectedAttr is returned for attributes the element does not define.
	ErrUnexpectedAttr = errors.New("indi: unexpected attribute")

	// ErrUnexpectedEvent is returned for tokens that cannot appear at the
	// current position, such as stray end tags or text between elements.
	ErrUnexpectedEvent = errors.New("indi: unexpected event")

	// ErrUnexpectedTag is returned for unknown or misplaced element names.
	ErrUnexpectedTag = errors.New("indi: unexpected tag")

	// ErrUnexpectedEOF is returned when the stream ends inside an element.
	ErrUnexpectedEOF = errors.New("indi: unexpected end of stream")

	// ErrBadBLOB is returned when a blob payload is not valid base64.
	ErrBadBLOB = errors.New("indi: invalid blob payload")

	// ErrEmptyVector is returned for a definition without any elements.
	ErrEmptyVector = errors.New("indi: vector definition has no elements")

	// ErrClosed is returned by Conn operations after Close.
	ErrClosed = errors.New("indi: connection closed")

	// ErrConnectionFailed is returned when dialling the server fails.
	ErrConnectionFailed = errors.New("indi: connection to server failed")
)

// ValueError reports a value rejected by one of the value grammars or the
// number parser. Tag is set when the value came from element text.
type ValueError struct {
	Tag     string
	Grammar string
	Value   []byte
	Err     error
}

func (e *ValueError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("%v: <%s> %s %q", e.Err, e.Tag, e.Grammar, e.Value)
	}
	return fmt.Sprintf("%v: %s %q", e.Err, e.Grammar, e.Value)
}

func (e *ValueError) Unwrap() error { return e.Err }

// MissingAttrError names a required attribute that was not present.
type MissingAttrError struct {
	Tag  string
	Attr string
}

func (e *MissingAttrError) Error() string {
	return fmt.Sprintf("%v: <%s> requires %q", ErrMissingAttr, e.Tag, e.Attr)
}

func (e *MissingAttrError) Unwrap() error { return ErrMissingAttr }

// BadAttrError reports an attribute whose value failed to decode. It
// unwraps to ErrBadAttr and to the underlying cause.
type BadAttrError struct {
	Tag   string
	Attr  string
	Value []byte
	Err   error
}

func (e *BadAttrError) Error() string {
	return fmt.Sprintf("%v: <%s %s=%q>: %v", ErrBadAttr, e.Tag, e.Attr, e.Value, e.Err)
}

func (e *BadAttrError) Unwrap() []error { return []error{ErrBadAttr, e.Err} }

// UnexpectedAttrError names an attribute the element does not accept.
type UnexpectedAttrError struct {
	Tag  string
	Attr string
}

func (e *UnexpectedAttrError) Error() string {
	return fmt.Sprintf("%v: <%s> does not accept %q", ErrUnexpectedAttr, e.Tag, e.Attr)
}

func (e *UnexpectedAttrError) Unwrap() error { return ErrUnexpectedAttr }

// UnexpectedTagError names an element that is unknown at top level or
// not allowed inside Parent.
type UnexpectedTagError struct {
	Parent string
	Tag    string
}

func (e *UnexpectedTagError) Error() string {
	if e.Parent == "" {
		return fmt.Sprintf("%v: <%s>", ErrUnexpectedTag, e.Tag)
	}
	return fmt.Sprintf("%v: <%s> inside <%s>", ErrUnexpectedTag, e.Tag, e.Parent)
}

func (e *UnexpectedTagError) Unwrap() error { return ErrUnexpectedTag }

// UnexpectedEventError describes a token that is structurally invalid
// where it was found.
type UnexpectedEventError struct {
	Event string
}

func (e *UnexpectedEventError) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnexpectedEvent, e.Event)
}

func (e *UnexpectedEventError) Unwrap() error { return ErrUnexpectedEvent }

// syntaxError wraps an encoding/xml failure. Invalid UTF-8 additionally
// matches ErrInvalidUTF8.
type syntaxError struct {
	err  error
	utf8 bool
}

func (e *syntaxError) Error() string { return fmt.Sprintf("%v: %v", ErrXMLSyntax, e.err) }

func (e *syntaxError) Unwrap() []error {
	if e.utf8 {
		return []error{ErrXMLSyntax, ErrInvalidUTF8, e.err}
	}
	return []error{ErrXMLSyntax, e.err}
}

// IsFatal reports whether err leaves the decoder unable to continue.
// Fatal errors are sticky: every later call to Decoder.Next returns them.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fe *fatalError
	return errors.As(err, &fe)
}

// fatalError marks an error as terminal for the stream.
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }
