package indi

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// Decoder reads INDI commands from a byte stream.
//
// Each call to Next consumes exactly one top-level element. The decoder
// holds no buffered commands and never blocks except inside the underlying
// reader.
type Decoder struct {
	xd   *xml.Decoder
	open []string // names of the elements enclosing the current token
	err  error    // sticky fatal error or io.EOF
	now  func() time.Time
}

// NewDecoder returns a decoder reading from r. Callers reading from a
// network connection should pass it unbuffered; encoding/xml buffers
// internally.
//
// Bytes that are not valid UTF-8 do not stop the stream. Inside a number
// element they are decoded as Latin-1; anywhere else they make the
// enclosing command fail with ErrInvalidUTF8.
func NewDecoder(r io.Reader) *Decoder {
	xd := xml.NewDecoder(transform.NewReader(r, escapeRawBytes{}))
	xd.Strict = true
	xd.CharsetReader = charsetReader
	return &Decoder{xd: xd, now: time.Now}
}

// charsetReader lets a stream that opens with an XML declaration naming a
// non-UTF-8 charset still be tokenised.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("charset %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("charset %q: unsupported", label)
	}
	return transform.NewReader(input, transform.Chain(restoreRawBytes{}, enc.NewDecoder())), nil
}

// Err returns the fatal error that stopped the decoder, or nil. A clean end
// of stream is not reported.
func (d *Decoder) Err() error {
	if d.err == io.EOF {
		return nil
	}
	return d.err
}

// Next decodes the next command.
//
// Returns:
//   - Command: the decoded command, nil on error
//   - error: io.EOF at a clean end of stream, a decode error otherwise
func (d *Decoder) Next() (Command, error) {
	if d.err != nil {
		return nil, d.err
	}
	for {
		tok, err := d.token()
		if err != nil {
			if err == io.EOF {
				d.err = io.EOF
				return nil, io.EOF
			}
			return nil, d.fail(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			cmd, err := d.dispatch(t)
			if err != nil {
				return nil, d.resync(err)
			}
			return cmd, nil
		case xml.EndElement:
			return nil, &UnexpectedEventError{Event: fmt.Sprintf("stray end tag </%s>", qualifiedName(t.Name))}
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return nil, &UnexpectedEventError{Event: fmt.Sprintf("text %q outside any element", truncate(t))}
			}
		case xml.Comment, xml.ProcInst, xml.Directive:
		}
	}
}

// All returns an iterator over the remaining commands. Iteration stops at a
// clean end of stream or after yielding a fatal error; other decode errors
// are yielded and iteration continues.
func (d *Decoder) All() iter.Seq2[Command, error] {
	return func(yield func(Command, error) bool) {
		for {
			cmd, err := d.Next()
			if err == io.EOF {
				return
			}
			if !yield(cmd, err) || IsFatal(err) {
				return
			}
		}
	}
}

// dispatch routes a top-level start tag to its parser.
func (d *Decoder) dispatch(se xml.StartElement) (Command, error) {
	if se.Name.Space != "" {
		return nil, &UnexpectedTagError{Tag: qualifiedName(se.Name)}
	}
	switch se.Name.Local {
	case "defNumberVector":
		return d.defNumberVector(se)
	case "defTextVector":
		return d.defTextVector(se)
	case "defSwitchVector":
		return d.defSwitchVector(se)
	case "defLightVector":
		return d.defLightVector(se)
	case "defBLOBVector":
		return d.defBLOBVector(se)
	case "setNumberVector":
		return d.setNumberVector(se)
	case "setTextVector":
		return d.setTextVector(se)
	case "setSwitchVector":
		return d.setSwitchVector(se)
	case "setLightVector":
		return d.setLightVector(se)
	case "setBLOBVector":
		return d.setBLOBVector(se)
	case "newNumberVector":
		return d.newNumberVector(se)
	case "newTextVector":
		return d.newTextVector(se)
	case "newSwitchVector":
		return d.newSwitchVector(se)
	case "newLightVector":
		return d.newLightVector(se)
	case "newBLOBVector":
		return d.newBLOBVector(se)
	case "message":
		return d.message(se)
	case "delProperty":
		return d.delProperty(se)
	case "getProperties":
		return d.getProperties(se)
	default:
		return nil, &UnexpectedTagError{Tag: se.Name.Local}
	}
}

// token pulls the next raw token and tracks the open elements. RawToken
// does not check that end tags match their start tags. An end tag that
// names an enclosing element closes everything opened since, and the
// parser waiting for a different end tag reports the mismatch. An end tag
// that names no open element leaves nothing to resynchronise on and is
// fatal, except at the top level where Next reports it.
func (d *Decoder) token() (xml.Token, error) {
	tok, err := d.xd.RawToken()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case xml.StartElement:
		d.open = append(d.open, qualifiedName(t.Name))
	case xml.EndElement:
		if len(d.open) == 0 {
			break
		}
		name := qualifiedName(t.Name)
		i := len(d.open) - 1
		for i >= 0 && d.open[i] != name {
			i--
		}
		if i < 0 {
			return nil, &syntaxError{err: &UnexpectedEventError{
				Event: fmt.Sprintf("end tag </%s> matches no open element, innermost is <%s>", name, d.open[len(d.open)-1]),
			}}
		}
		d.open = d.open[:i]
	}
	return tok, nil
}

// fail records err as fatal. End of stream is only fatal here when it
// arrives inside an element, which is the only way callers reach fail
// with io.EOF.
func (d *Decoder) fail(err error) error {
	var fe *fatalError
	if errors.As(err, &fe) {
		d.err = err
		return err
	}
	switch {
	case errors.Is(err, io.EOF):
		err = ErrUnexpectedEOF
	default:
		var se *xml.SyntaxError
		if errors.As(err, &se) {
			err = &syntaxError{err: se, utf8: strings.Contains(se.Msg, "UTF-8")}
		}
	}
	d.err = &fatalError{err: err}
	return d.err
}

// resync returns err after consuming the rest of the current top-level
// element, so that the next call to Next starts on a fresh element. Fatal
// errors are returned as is.
func (d *Decoder) resync(err error) error {
	if IsFatal(err) {
		return err
	}
	for len(d.open) > 0 {
		if _, terr := d.token(); terr != nil {
			d.fail(terr)
			return err
		}
	}
	return err
}

// children parses the child elements of a vector until its end tag. Every
// child must be named child and is handed to parse.
func children[T any](d *Decoder, parent, child string, parse func(xml.StartElement) (T, error)) ([]T, error) {
	var out []T
	for {
		tok, err := d.token()
		if err != nil {
			return nil, d.fail(err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != "" || t.Name.Local != child {
				return nil, &UnexpectedTagError{Parent: parent, Tag: qualifiedName(t.Name)}
			}
			v, err := parse(t)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		case xml.EndElement:
			if err := matchEnd(parent, t); err != nil {
				return nil, err
			}
			return out, nil
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return nil, &UnexpectedEventError{Event: fmt.Sprintf("text %q inside <%s>", truncate(t), parent)}
			}
		case xml.Comment, xml.ProcInst, xml.Directive:
		}
	}
}

// text collects the character data of element tag up to its end tag.
// Nested elements are rejected. Bytes that were not valid UTF-8 are still
// escaped; see rawBytes.
func (d *Decoder) text(tag string) ([]byte, error) {
	var buf []byte
	for {
		tok, err := d.token()
		if err != nil {
			return nil, d.fail(err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf = append(buf, t...)
		case xml.EndElement:
			if err := matchEnd(tag, t); err != nil {
				return nil, err
			}
			return buf, nil
		case xml.StartElement:
			return nil, &UnexpectedTagError{Parent: tag, Tag: qualifiedName(t.Name)}
		case xml.Comment, xml.ProcInst, xml.Directive:
		}
	}
}

// empty consumes an element that must have no content besides whitespace.
func (d *Decoder) empty(tag string) error {
	body, err := d.text(tag)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) > 0 {
		return &UnexpectedEventError{Event: fmt.Sprintf("text %q inside empty <%s>", truncate(body), tag)}
	}
	return nil
}

func matchEnd(tag string, t xml.EndElement) error {
	if t.Name.Space != "" || t.Name.Local != tag {
		return &UnexpectedEventError{Event: fmt.Sprintf("end tag </%s> while reading <%s>", qualifiedName(t.Name), tag)}
	}
	return nil
}

// truncate shortens text for inclusion in error messages.
func truncate(b []byte) string {
	const limit = 32
	b = bytes.TrimSpace(b)
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
