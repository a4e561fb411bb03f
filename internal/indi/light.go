package indi

import (
	"bytes"
	"encoding/xml"
	"errors"
)

func lightBody(tag string, body []byte) (PropertyState, error) {
	s, err := ParsePropertyState(bytes.TrimSpace(body))
	if err != nil {
		var ve *ValueError
		if errors.As(err, &ve) {
			ve.Tag = tag
		}
		return "", err
	}
	return s, nil
}

func (d *Decoder) defLight(se xml.StartElement) (DefLight, error) {
	var l DefLight
	a, err := readAttrs(se, "name", "label")
	if err != nil {
		return l, err
	}
	if l.Name, err = a.required("name"); err != nil {
		return l, err
	}
	l.Label = a.optional("label")
	body, err := d.text(se.Name.Local)
	if err != nil {
		return l, err
	}
	l.Value, err = lightBody(se.Name.Local, body)
	return l, err
}

func (d *Decoder) oneLight(se xml.StartElement) (OneLight, error) {
	var l OneLight
	a, err := readAttrs(se, "name")
	if err != nil {
		return l, err
	}
	if l.Name, err = a.required("name"); err != nil {
		return l, err
	}
	body, err := d.text(se.Name.Local)
	if err != nil {
		return l, err
	}
	l.Value, err = lightBody(se.Name.Local, body)
	return l, err
}

func (d *Decoder) defLightVector(se xml.StartElement) (Command, error) {
	h, err := d.header(se, define, KindLight)
	if err != nil {
		return nil, err
	}
	lights, err := children(d, se.Name.Local, "defLight", d.defLight)
	if err != nil {
		return nil, err
	}
	if len(lights) == 0 {
		return nil, emptyVector(se.Name.Local, h)
	}
	return &DefLightVector{
		Device:    h.Device,
		Name:      h.Name,
		Label:     h.Label,
		Group:     h.Group,
		State:     h.State,
		Timestamp: h.Timestamp,
		Message:   h.Message,
		Lights:    lights,
	}, nil
}

func (d *Decoder) setLightVector(se xml.StartElement) (Command, error) {
	h, err := d.header(se, set, KindLight)
	if err != nil {
		return nil, err
	}
	lights, err := children(d, se.Name.Local, "oneLight", d.oneLight)
	if err != nil {
		return nil, err
	}
	return &SetLightVector{
		Device:    h.Device,
		Name:      h.Name,
		State:     h.State,
		Timestamp: h.Timestamp,
		Message:   h.Message,
		Lights:    lights,
	}, nil
}

func (d *Decoder) newLightVector(se xml.StartElement) (Command, error) {
	h, err := d.header(se, request, KindLight)
	if err != nil {
		return nil, err
	}
	lights, err := children(d, se.Name.Local, "oneLight", d.oneLight)
	if err != nil {
		return nil, err
	}
	return &NewLightVector{
		Device:    h.Device,
		Name:      h.Name,
		Timestamp: h.Timestamp,
		Lights:    lights,
	}, nil
}
