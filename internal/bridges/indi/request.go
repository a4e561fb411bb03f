package indi

import (
	"encoding/base64"
	"fmt"
	"sort"
	"time"

	"github.com/nerrad567/indi-bridge/internal/device"
	indiproto "github.com/nerrad567/indi-bridge/internal/indi"
)

// BuildRequest validates values against the stored property and returns the
// matching new*Vector request. kind may be empty.
//
// Elements are emitted in the property's definition order, so the request
// does not depend on map iteration.
func BuildRequest(p *device.Property, kind indiproto.Kind, values map[string]any, now time.Time) (indiproto.Command, error) {
	if kind != "" && kind != p.Kind {
		return nil, fmt.Errorf("%w: %s is a %s vector, not %s", ErrKindMismatch, p.Name, p.Kind, kind)
	}
	if !p.Writable() {
		return nil, fmt.Errorf("%w: %s.%s", ErrReadOnly, p.Device, p.Name)
	}
	if len(values) == 0 {
		return nil, ErrNoElements
	}

	names, err := orderedElements(p, values)
	if err != nil {
		return nil, err
	}
	ts := now.UTC()

	switch p.Kind {
	case indiproto.KindNumber:
		req := &indiproto.NewNumberVector{Device: p.Device, Name: p.Name, Timestamp: ts}
		for _, name := range names {
			v, err := numberValue(values[name])
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidValue, name, err)
			}
			req.Numbers = append(req.Numbers, indiproto.OneNumber{Name: name, Value: v})
		}
		return req, nil

	case indiproto.KindText:
		req := &indiproto.NewTextVector{Device: p.Device, Name: p.Name, Timestamp: ts}
		for _, name := range names {
			s, ok := values[name].(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s: want string, got %T", ErrInvalidValue, name, values[name])
			}
			req.Texts = append(req.Texts, indiproto.OneText{Name: name, Value: s})
		}
		return req, nil

	case indiproto.KindSwitch:
		req := &indiproto.NewSwitchVector{Device: p.Device, Name: p.Name, Timestamp: ts}
		for _, name := range names {
			v, err := switchValue(values[name])
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidValue, name, err)
			}
			req.Switches = append(req.Switches, indiproto.OneSwitch{Name: name, Value: v})
		}
		return req, nil

	case indiproto.KindBLOB:
		req := &indiproto.NewBLOBVector{Device: p.Device, Name: p.Name, Timestamp: ts}
		for _, name := range names {
			b, err := blobValue(name, values[name])
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrInvalidValue, name, err)
			}
			req.BLOBs = append(req.BLOBs, b)
		}
		return req, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrReadOnly, p.Kind)
}

func orderedElements(p *device.Property, values map[string]any) ([]string, error) {
	pos := make(map[string]int, len(values))
	for name := range values {
		idx := -1
		for i, e := range p.Elements {
			if e.Name == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s.%s.%s", device.ErrElementNotFound, p.Device, p.Name, name)
		}
		pos[name] = idx
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return pos[names[i]] < pos[names[j]] })
	return names, nil
}

func numberValue(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return indiproto.ParseNumber(n)
	}
	return 0, fmt.Errorf("want number, got %T", v)
}

func switchValue(v any) (indiproto.SwitchState, error) {
	switch s := v.(type) {
	case bool:
		if s {
			return indiproto.SwitchOn, nil
		}
		return indiproto.SwitchOff, nil
	case string:
		return indiproto.ParseSwitchState([]byte(s))
	}
	return "", fmt.Errorf("want \"On\", \"Off\" or boolean, got %T", v)
}

func blobValue(name string, v any) (indiproto.OneBLOB, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return indiproto.OneBLOB{}, fmt.Errorf("want {format, data}, got %T", v)
	}
	format, _ := obj["format"].(string)
	encoded, _ := obj["data"].(string)
	if format == "" {
		return indiproto.OneBLOB{}, fmt.Errorf("missing format")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return indiproto.OneBLOB{}, fmt.Errorf("data: %w", err)
	}
	return indiproto.OneBLOB{Name: name, Size: int64(len(data)), Format: format, Data: data}, nil
}
