// Package influxdb writes INDI telemetry to InfluxDB v2.
//
// The bridge writes one point per number, switch or light vector update,
// tagged with the device, property and vector state:
//
//	indi_number,device=CCD\ Simulator,property=CCD_TEMPERATURE,state=Ok CCD_TEMPERATURE_VALUE=-10.5
//
// Writes are batched and non-blocking. Failures arrive asynchronously
// through SetOnError.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
package influxdb
