package indi

import (
	"bytes"
	"encoding/xml"
	"errors"
)

func switchBody(tag string, body []byte) (SwitchState, error) {
	s, err := ParseSwitchState(bytes.TrimSpace(body))
	if err != nil {
		var ve *ValueError
		if errors.As(err, &ve) {
			ve.Tag = tag
		}
		return "", err
	}
	return s, nil
}

func (d *Decoder) defSwitch(se xml.StartElement) (DefSwitch, error) {
	var s DefSwitch
	a, err := readAttrs(se, "name", "label")
	if err != nil {
		return s, err
	}
	if s.Name, err = a.required("name"); err != nil {
		return s, err
	}
	s.Label = a.optional("label")
	body, err := d.text(se.Name.Local)
	if err != nil {
		return s, err
	}
	s.Value, err = switchBody(se.Name.Local, body)
	return s, err
}

func (d *Decoder) oneSwitch(se xml.StartElement) (OneSwitch, error) {
	var s OneSwitch
	a, err := readAttrs(se, "name")
	if err != nil {
		return s, err
	}
	if s.Name, err = a.required("name"); err != nil {
		return s, err
	}
	body, err := d.text(se.Name.Local)
	if err != nil {
		return s, err
	}
	s.Value, err = switchBody(se.Name.Local, body)
	return s, err
}

func (d *Decoder) defSwitchVector(se xml.StartElement) (Command, error) {
	h, err := d.header(se, define, KindSwitch)
	if err != nil {
		return nil, err
	}
	switches, err := children(d, se.Name.Local, "defSwitch", d.defSwitch)
	if err != nil {
		return nil, err
	}
	if len(switches) == 0 {
		return nil, emptyVector(se.Name.Local, h)
	}
	return &DefSwitchVector{
		Device:    h.Device,
		Name:      h.Name,
		Label:     h.Label,
		Group:     h.Group,
		State:     h.State,
		Perm:      h.Perm,
		Rule:      h.Rule,
		Timeout:   h.Timeout,
		Timestamp: h.Timestamp,
		Message:   h.Message,
		Switches:  switches,
	}, nil
}

func (d *Decoder) setSwitchVector(se xml.StartElement) (Command, error) {
	h, err := d.header(se, set, KindSwitch)
	if err != nil {
		return nil, err
	}
	switches, err := children(d, se.Name.Local, "oneSwitch", d.oneSwitch)
	if err != nil {
		return nil, err
	}
	return &SetSwitchVector{
		Device:    h.Device,
		Name:      h.Name,
		State:     h.State,
		Timeout:   h.Timeout,
		Timestamp: h.Timestamp,
		Message:   h.Message,
		Switches:  switches,
	}, nil
}

func (d *Decoder) newSwitchVector(se xml.StartElement) (Command, error) {
	h, err := d.header(se, request, KindSwitch)
	if err != nil {
		return nil, err
	}
	switches, err := children(d, se.Name.Local, "oneSwitch", d.oneSwitch)
	if err != nil {
		return nil, err
	}
	return &NewSwitchVector{
		Device:    h.Device,
		Name:      h.Name,
		Timestamp: h.Timestamp,
		Switches:  switches,
	}, nil
}
