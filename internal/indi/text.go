package indi

import (
	"encoding/xml"
	"strings"
)

// textBody trims the surrounding layout whitespace servers place around
// element text. Interior whitespace is preserved.
func textBody(tag string, b []byte) (string, error) {
	if hasRawBytes(b) {
		return "", &ValueError{Tag: tag, Grammar: "utf-8", Value: rawBytes(b), Err: ErrInvalidUTF8}
	}
	return strings.TrimSpace(string(b)), nil
}

func (d *Decoder) defText(se xml.StartElement) (DefText, error) {
	var t DefText
	a, err := readAttrs(se, "name", "label")
	if err != nil {
		return t, err
	}
	if t.Name, err = a.required("name"); err != nil {
		return t, err
	}
	t.Label = a.optional("label")
	body, err := d.text(se.Name.Local)
	if err != nil {
		return t, err
	}
	t.Value, err = textBody(se.Name.Local, body)
	return t, err
}

func (d *Decoder) oneText(se xml.StartElement) (OneText, error) {
	var t OneText
	a, err := readAttrs(se, "name")
	if err != nil {
		return t, err
	}
	if t.Name, err = a.required("name"); err != nil {
		return t, err
	}
	body, err := d.text(se.Name.Local)
	if err != nil {
		return t, err
	}
	t.Value, err = textBody(se.Name.Local, body)
	return t, err
}

func (d *Decoder) defTextVector(se xml.StartElement) (Command, error) {
	h, err := d.header(se, define, KindText)
	if err != nil {
		return nil, err
	}
	texts, err := children(d, se.Name.Local, "defText", d.defText)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, emptyVector(se.Name.Local, h)
	}
	return &DefTextVector{
		Device:    h.Device,
		Name:      h.Name,
		Label:     h.Label,
		Group:     h.Group,
		State:     h.State,
		Perm:      h.Perm,
		Timeout:   h.Timeout,
		Timestamp: h.Timestamp,
		Message:   h.Message,
		Texts:     texts,
	}, nil
}

func (d *Decoder) setTextVector(se xml.StartElement) (Command, error) {
	h, err := d.header(se, set, KindText)
	if err != nil {
		return nil, err
	}
	texts, err := children(d, se.Name.Local, "oneText", d.oneText)
	if err != nil {
		return nil, err
	}
	return &SetTextVector{
		Device:    h.Device,
		Name:      h.Name,
		State:     h.State,
		Timeout:   h.Timeout,
		Timestamp: h.Timestamp,
		Message:   h.Message,
		Texts:     texts,
	}, nil
}

func (d *Decoder) newTextVector(se xml.StartElement) (Command, error) {
	h, err := d.header(se, request, KindText)
	if err != nil {
		return nil, err
	}
	texts, err := children(d, se.Name.Local, "oneText", d.oneText)
	if err != nil {
		return nil, err
	}
	return &NewTextVector{
		Device:    h.Device,
		Name:      h.Name,
		Timestamp: h.Timestamp,
		Texts:     texts,
	}, nil
}
