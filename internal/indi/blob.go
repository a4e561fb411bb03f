package indi

import (
	"encoding/base64"
	"encoding/xml"
	"fmt"
)

// decodeBLOB decodes a base64 payload. Servers wrap encoded data in lines,
// so all ASCII whitespace is removed first. The second result is the
// length of the encoded text without that whitespace.
func decodeBLOB(tag string, body []byte) ([]byte, int, error) {
	clean := make([]byte, 0, len(body))
	for _, c := range body {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		}
		clean = append(clean, c)
	}
	out := make([]byte, base64.StdEncoding.DecodedLen(len(clean)))
	n, err := base64.StdEncoding.Decode(out, clean)
	if err != nil {
		return nil, len(clean), &ValueError{Tag: tag, Grammar: "base64", Value: []byte(truncate(body)), Err: ErrBadBLOB}
	}
	return out[:n], len(clean), nil
}

func (d *Decoder) defBLOB(se xml.StartElement) (DefBLOB, error) {
	var b DefBLOB
	a, err := readAttrs(se, "name", "label")
	if err != nil {
		return b, err
	}
	if b.Name, err = a.required("name"); err != nil {
		return b, err
	}
	b.Label = a.optional("label")
	return b, d.empty(se.Name.Local)
}

func (d *Decoder) oneBLOB(se xml.StartElement) (OneBLOB, error) {
	var b OneBLOB
	a, err := readAttrs(se, "name", "size", "format", "enclen")
	if err != nil {
		return b, err
	}
	if b.Name, err = a.required("name"); err != nil {
		return b, err
	}
	if b.Size, err = a.int64("size"); err != nil {
		return b, err
	}
	if b.Format, err = a.required("format"); err != nil {
		return b, err
	}
	_, hasEncLen := a.vals["enclen"]
	if hasEncLen {
		if b.EncLen, err = a.int64("enclen"); err != nil {
			return b, err
		}
	}
	body, err := d.text(se.Name.Local)
	if err != nil {
		return b, err
	}
	data, encoded, err := decodeBLOB(se.Name.Local, body)
	if err != nil {
		return b, err
	}
	if hasEncLen && b.EncLen != int64(encoded) {
		return b, a.bad("enclen", fmt.Errorf("%w: %d base64 bytes follow", ErrBadBLOB, encoded))
	}
	b.Data = data
	return b, nil
}

func (d *Decoder) defBLOBVector(se xml.StartElement) (Command, error) {
	h, err := d.header(se, define, KindBLOB)
	if err != nil {
		return nil, err
	}
	blobs, err := children(d, se.Name.Local, "defBLOB", d.defBLOB)
	if err != nil {
		return nil, err
	}
	if len(blobs) == 0 {
		return nil, emptyVector(se.Name.Local, h)
	}
	return &DefBLOBVector{
		Device:    h.Device,
		Name:      h.Name,
		Label:     h.Label,
		Group:     h.Group,
		State:     h.State,
		Perm:      h.Perm,
		Timeout:   h.Timeout,
		Timestamp: h.Timestamp,
		Message:   h.Message,
		BLOBs:     blobs,
	}, nil
}

func (d *Decoder) setBLOBVector(se xml.StartElement) (Command, error) {
	h, err := d.header(se, set, KindBLOB)
	if err != nil {
		return nil, err
	}
	blobs, err := children(d, se.Name.Local, "oneBLOB", d.oneBLOB)
	if err != nil {
		return nil, err
	}
	return &SetBLOBVector{
		Device:    h.Device,
		Name:      h.Name,
		State:     h.State,
		Timeout:   h.Timeout,
		Timestamp: h.Timestamp,
		Message:   h.Message,
		BLOBs:     blobs,
	}, nil
}

func (d *Decoder) newBLOBVector(se xml.StartElement) (Command, error) {
	h, err := d.header(se, request, KindBLOB)
	if err != nil {
		return nil, err
	}
	blobs, err := children(d, se.Name.Local, "oneBLOB", d.oneBLOB)
	if err != nil {
		return nil, err
	}
	return &NewBLOBVector{
		Device:    h.Device,
		Name:      h.Name,
		Timestamp: h.Timestamp,
		BLOBs:     blobs,
	}, nil
}
