package indi

import (
	"encoding/xml"
	"time"
)

// variant is the command family a vector element belongs to.
type variant int

const (
	define variant = iota
	set
	request
)

// header holds the vector attributes shared by every kind.
type header struct {
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
}

// vectorAttrs lists the attributes a vector start tag may carry.
func vectorAttrs(v variant, k Kind) []string {
	names := []string{"device", "name", "timestamp"}
	switch v {
	case define:
		names = append(names, "label", "group", "state", "message")
		if k != KindLight {
			names = append(names, "perm", "timeout")
		}
		if k == KindSwitch {
			names = append(names, "rule")
		}
	case set:
		names = append(names, "state", "message")
		if k != KindLight {
			names = append(names, "timeout")
		}
	}
	return names
}

// header validates and decodes the attributes of a vector start tag.
// Set vectors without a timestamp are stamped with the decode time.
func (d *Decoder) header(se xml.StartElement, v variant, k Kind) (header, error) {
	var h header
	a, err := readAttrs(se, vectorAttrs(v, k)...)
	if err != nil {
		return h, err
	}
	if h.Device, err = a.required("device"); err != nil {
		return h, err
	}
	if h.Name, err = a.required("name"); err != nil {
		return h, err
	}

	var def time.Time
	if v == set {
		def = d.now().UTC()
	}
	if h.Timestamp, err = a.timestamp("timestamp", def); err != nil {
		return h, err
	}
	if v == request {
		return h, nil
	}

	if h.State, err = a.state("state"); err != nil {
		return h, err
	}
	h.Message = a.optional("message")
	if k != KindLight {
		if h.Timeout, err = a.timeout("timeout"); err != nil {
			return h, err
		}
	}
	if v == set {
		return h, nil
	}

	h.Label = a.optional("label")
	h.Group = a.optional("group")
	if k != KindLight {
		if h.Perm, err = a.perm("perm"); err != nil {
			return h, err
		}
	}
	if k == KindSwitch {
		if h.Rule, err = a.rule("rule"); err != nil {
			return h, err
		}
	}
	return h, nil
}

// emptyVector reports a definition that carried no elements.
func emptyVector(tag string, h header) error {
	return &emptyVectorError{Tag: tag, Device: h.Device, Name: h.Name}
}

type emptyVectorError struct {
	Tag    string
	Device string
	Name   string
}

func (e *emptyVectorError) Error() string {
	return ErrEmptyVector.Error() + ": <" + e.Tag + " device=\"" + e.Device + "\" name=\"" + e.Name + "\">"
}

func (e *emptyVectorError) Unwrap() error { return ErrEmptyVector }
