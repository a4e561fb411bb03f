package indi

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"
)

// attrs holds the attributes of one start tag after validation against the
// names the element accepts.
type attrs struct {
	tag  string
	vals map[string]string
}

// readAttrs collects the attributes of se, rejecting any name not listed in
// allowed as well as duplicates.
func readAttrs(se xml.StartElement, allowed ...string) (attrs, error) {
	a := attrs{tag: se.Name.Local, vals: make(map[string]string, len(se.Attr))}
	for _, at := range se.Attr {
		name := qualifiedName(at.Name)
		if at.Name.Space != "" || !contains(allowed, name) {
			return attrs{}, &UnexpectedAttrError{Tag: a.tag, Attr: name}
		}
		if _, dup := a.vals[name]; dup {
			return attrs{}, &UnexpectedAttrError{Tag: a.tag, Attr: name}
		}
		if hasRawBytes(at.Value) {
			return attrs{}, &BadAttrError{Tag: a.tag, Attr: name, Value: rawBytes([]byte(at.Value)), Err: ErrInvalidUTF8}
		}
		a.vals[name] = at.Value
	}
	return a, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func qualifiedName(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

func (a attrs) optional(name string) string {
	return a.vals[name]
}

func (a attrs) required(name string) (string, error) {
	v, ok := a.vals[name]
	if !ok {
		return "", &MissingAttrError{Tag: a.tag, Attr: name}
	}
	return v, nil
}

func (a attrs) bad(name string, err error) error {
	return &BadAttrError{Tag: a.tag, Attr: name, Value: []byte(a.vals[name]), Err: err}
}

func (a attrs) state(name string) (PropertyState, error) {
	v, err := a.required(name)
	if err != nil {
		return "", err
	}
	s, err := ParsePropertyState([]byte(v))
	if err != nil {
		return "", a.bad(name, err)
	}
	return s, nil
}

func (a attrs) perm(name string) (Perm, error) {
	v, err := a.required(name)
	if err != nil {
		return "", err
	}
	p, err := ParsePerm([]byte(v))
	if err != nil {
		return "", a.bad(name, err)
	}
	return p, nil
}

func (a attrs) rule(name string) (SwitchRule, error) {
	v, err := a.required(name)
	if err != nil {
		return "", err
	}
	r, err := ParseSwitchRule([]byte(v))
	if err != nil {
		return "", a.bad(name, err)
	}
	return r, nil
}

// timeout parses an optional timeout in seconds; nil means absent.
func (a attrs) timeout(name string) (*uint32, error) {
	v, ok := a.vals[name]
	if !ok {
		return nil, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
	if err != nil {
		return nil, a.bad(name, ErrParseInt)
	}
	t := uint32(n)
	return &t, nil
}

func (a attrs) int64(name string) (int64, error) {
	v, err := a.required(name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, a.bad(name, ErrParseInt)
	}
	return n, nil
}

// timestamp parses an optional timestamp. An absent or empty attribute
// yields def.
func (a attrs) timestamp(name string, def time.Time) (time.Time, error) {
	v := strings.TrimSpace(a.vals[name])
	if v == "" {
		return def, nil
	}
	t, err := ParseTimestamp(v)
	if err != nil {
		return time.Time{}, a.bad(name, err)
	}
	return t, nil
}

// ParseTimestamp parses an INDI timestamp. Timestamps are UTC; a value
// without a zone designator gets one appended before parsing.
func ParseTimestamp(s string) (time.Time, error) {
	v := s
	if !hasZone(v) {
		v += "Z"
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, &ValueError{Grammar: "timestamp", Value: []byte(s), Err: ErrParseDateTime}
	}
	return t.UTC(), nil
}

func hasZone(s string) bool {
	if strings.HasSuffix(s, "Z") {
		return true
	}
	if len(s) < 6 {
		return false
	}
	sign := s[len(s)-6]
	return (sign == '+' || sign == '-') && s[len(s)-3] == ':'
}
