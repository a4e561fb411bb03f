package indi

import "encoding/xml"

// message decodes <message device? timestamp? message?/>. A missing
// timestamp is replaced by the decode time.
func (d *Decoder) message(se xml.StartElement) (Command, error) {
	a, err := readAttrs(se, "device", "timestamp", "message")
	if err != nil {
		return nil, err
	}
	m := &Message{Device: a.optional("device"), Message: a.optional("message")}
	if m.Timestamp, err = a.timestamp("timestamp", d.now().UTC()); err != nil {
		return nil, err
	}
	if err := d.empty(se.Name.Local); err != nil {
		return nil, err
	}
	return m, nil
}

// delProperty decodes <delProperty device [name] [timestamp] [message]/>.
func (d *Decoder) delProperty(se xml.StartElement) (Command, error) {
	a, err := readAttrs(se, "device", "name", "timestamp", "message")
	if err != nil {
		return nil, err
	}
	p := &DelProperty{Name: a.optional("name"), Message: a.optional("message")}
	if p.Device, err = a.required("device"); err != nil {
		return nil, err
	}
	if p.Timestamp, err = a.timestamp("timestamp", d.now().UTC()); err != nil {
		return nil, err
	}
	if err := d.empty(se.Name.Local); err != nil {
		return nil, err
	}
	return p, nil
}

// getProperties decodes <getProperties version [device] [name]/>.
func (d *Decoder) getProperties(se xml.StartElement) (Command, error) {
	a, err := readAttrs(se, "version", "device", "name")
	if err != nil {
		return nil, err
	}
	g := &GetProperties{Device: a.optional("device"), Name: a.optional("name")}
	if g.Version, err = a.required("version"); err != nil {
		return nil, err
	}
	if err := d.empty(se.Name.Local); err != nil {
		return nil, err
	}
	return g, nil
}
