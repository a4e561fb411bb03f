package indi

import (
	"encoding/xml"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

// DecodeLatin1 decodes a number element body as ISO-8859-1, independent of
// the stream's text encoding. Some drivers emit raw single-byte text in
// numeric fields; this step keeps those values readable.
func DecodeLatin1(b []byte) (string, error) {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDecodeLatin1, err)
	}
	return string(out), nil
}

// ParseNumber parses an INDI number value. Plain floating point is tried
// first; values written in sexagesimal notation ("D:M:S", "D:M", "D M S"
// or "D;M;S") are converted to decimal, with the sign taken from the
// leading field.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	if !strings.ContainsAny(s, ": ;") {
		return 0, &ValueError{Grammar: "number", Value: []byte(s), Err: ErrParseFloat}
	}
	v, ok := parseSexagesimal(s)
	if !ok {
		return 0, &ValueError{Grammar: "sexagesimal", Value: []byte(s), Err: ErrParseSexagesimal}
	}
	return v, nil
}

func parseSexagesimal(s string) (float64, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ':' || r == ' ' || r == ';'
	})
	if len(fields) < 2 || len(fields) > 3 {
		return 0, false
	}
	neg := strings.HasPrefix(fields[0], "-")
	var total float64
	div := 1.0
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		if i > 0 && (v < 0 || strings.HasPrefix(f, "+")) {
			return 0, false
		}
		total += math.Abs(v) / div
		div *= 60
	}
	if neg {
		total = -total
	}
	return total, true
}

// numberBody runs the Latin-1 step and the number parser over the text of
// a number element.
func numberBody(tag string, body []byte) (float64, error) {
	body = rawBytes(body)
	s, err := DecodeLatin1(body)
	if err != nil {
		return 0, &ValueError{Tag: tag, Grammar: "latin-1", Value: body, Err: err}
	}
	v, err := ParseNumber(s)
	if err != nil {
		var ve *ValueError
		if errors.As(err, &ve) {
			ve.Tag = tag
		}
		return 0, err
	}
	return v, nil
}

func (d *Decoder) defNumber(se xml.StartElement) (DefNumber, error) {
	var n DefNumber
	a, err := readAttrs(se, "name", "label", "format", "min", "max", "step")
	if err != nil {
		return n, err
	}
	if n.Name, err = a.required("name"); err != nil {
		return n, err
	}
	n.Label = a.optional("label")
	if n.Format, err = a.required("format"); err != nil {
		return n, err
	}
	if n.Min, err = a.int64("min"); err != nil {
		return n, err
	}
	if n.Max, err = a.int64("max"); err != nil {
		return n, err
	}
	if n.Step, err = a.int64("step"); err != nil {
		return n, err
	}
	body, err := d.text(se.Name.Local)
	if err != nil {
		return n, err
	}
	n.Value, err = numberBody(se.Name.Local, body)
	return n, err
}

func (d *Decoder) oneNumber(se xml.StartElement) (OneNumber, error) {
	var n OneNumber
	a, err := readAttrs(se, "name")
	if err != nil {
		return n, err
	}
	if n.Name, err = a.required("name"); err != nil {
		return n, err
	}
	body, err := d.text(se.Name.Local)
	if err != nil {
		return n, err
	}
	n.Value, err = numberBody(se.Name.Local, body)
	return n, err
}

func (d *Decoder) defNumberVector(se xml.StartElement) (Command, error) {
	h, err := d.header(se, define, KindNumber)
	if err != nil {
		return nil, err
	}
	nums, err := children(d, se.Name.Local, "defNumber", d.defNumber)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return nil, emptyVector(se.Name.Local, h)
	}
	return &DefNumberVector{
		Device:    h.Device,
		Name:      h.Name,
		Label:     h.Label,
		Group:     h.Group,
		State:     h.State,
		Perm:      h.Perm,
		Timeout:   h.Timeout,
		Timestamp: h.Timestamp,
		Message:   h.Message,
		Numbers:   nums,
	}, nil
}

func (d *Decoder) setNumberVector(se xml.StartElement) (Command, error) {
	h, err := d.header(se, set, KindNumber)
	if err != nil {
		return nil, err
	}
	nums, err := children(d, se.Name.Local, "oneNumber", d.oneNumber)
	if err != nil {
		return nil, err
	}
	return &SetNumberVector{
		Device:    h.Device,
		Name:      h.Name,
		State:     h.State,
		Timeout:   h.Timeout,
		Timestamp: h.Timestamp,
		Message:   h.Message,
		Numbers:   nums,
	}, nil
}

func (d *Decoder) newNumberVector(se xml.StartElement) (Command, error) {
	h, err := d.header(se, request, KindNumber)
	if err != nil {
		return nil, err
	}
	nums, err := children(d, se.Name.Local, "oneNumber", d.oneNumber)
	if err != nil {
		return nil, err
	}
	return &NewNumberVector{
		Device:    h.Device,
		Name:      h.Name,
		Timestamp: h.Timestamp,
		Numbers:   nums,
	}, nil
}
