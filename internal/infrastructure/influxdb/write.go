package influxdb

import (
	"math"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the bridge.
const (
	MeasurementNumber = "indi_number"
	MeasurementSwitch = "indi_switch"
	MeasurementLight  = "indi_light"
)

// WriteNumbers records the values of one number vector as a single point:
// tags device, property and state; one float field per element. Line
// protocol cannot carry NaN or infinity, so such elements are left out.
func (c *Client) WriteNumbers(device, property, state string, values map[string]float64, ts time.Time) {
	fields := make(map[string]any, len(values))
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		fields[name] = v
	}
	if len(fields) == 0 {
		return
	}
	c.WritePoint(MeasurementNumber, vectorTags(device, property, state), fields, ts)
}

// WriteSwitches records a switch vector with one boolean field per element.
func (c *Client) WriteSwitches(device, property, state string, values map[string]bool, ts time.Time) {
	if len(values) == 0 {
		return
	}
	fields := make(map[string]any, len(values))
	for name, on := range values {
		fields[name] = on
	}
	c.WritePoint(MeasurementSwitch, vectorTags(device, property, state), fields, ts)
}

// WriteLights records a light vector with one string field per element
// holding its Idle/Ok/Busy/Alert state.
func (c *Client) WriteLights(device, property, state string, values map[string]string, ts time.Time) {
	if len(values) == 0 {
		return
	}
	fields := make(map[string]any, len(values))
	for name, s := range values {
		fields[name] = s
	}
	c.WritePoint(MeasurementLight, vectorTags(device, property, state), fields, ts)
}

// WritePoint queues a point. A zero ts means now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}

func vectorTags(device, property, state string) map[string]string {
	tags := map[string]string{
		"device":   device,
		"property": property,
	}
	if state != "" {
		tags["state"] = state
	}
	return tags
}
