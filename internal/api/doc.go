// Package api implements the HTTP REST API and WebSocket stream for the
// INDI bridge.
//
// This package provides:
//   - read endpoints for devices, properties, history and statistics
//   - property writes, forwarded to the INDI server as new*Vector requests
//   - a WebSocket hub that streams registry changes
//   - middleware for request IDs, logging, panic recovery and CORS
//
// The server follows the same lifecycle as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # WebSocket
//
// Clients connect to /ws and immediately receive every change on the
// "changes" channel. A client may unsubscribe from it and subscribe to
// "device:<name>" channels instead:
//
//	{"type": "subscribe", "id": "1", "payload": {"channels": ["device:CCD Simulator"]}}
//
// The response is followed by a "snapshot" frame per known device, so the
// client starts from current state. Property writes work over the socket
// too, with the same validation as PUT:
//
//	{"type": "set", "id": "2", "payload": {"device": "CCD Simulator",
//	  "property": "CCD_EXPOSURE", "elements": {"CCD_EXPOSURE_VALUE": 2.5}}}
//
// Frames for a client whose buffer is full are dropped and counted in
// /api/v1/stats.
//
// # Graceful Degradation
//
// Reads work without MQTT or a live INDI connection. Writes need a
// PropertySetter and return 503 while the INDI server is unreachable.
package api
