// Package indi bridges an INDI server to MQTT.
//
// Topics, under a configurable prefix (default "indi"):
//
//	indi/state/{device}/{property}    retained PropertyMessage, cleared on delete
//	indi/message/{device|_global}     MessageEvent
//	indi/command/{device}/{property}  inbound CommandMessage
//	indi/ack/{device}/{property}      AckMessage for each command
//	indi/health                       retained HealthMessage, will "offline"
//
// The bridge is the connection's only command callback. Each server
// command is applied to the device registry before the next is read, so
// published state follows the server's ordering. Malformed elements are
// logged and skipped; an unreadable stream ends the connection and the
// health status turns degraded.
//
// Inbound commands are checked against the registry (property exists,
// kind matches, not read-only, element names and value types valid)
// before a new*Vector request is written. An accepted ack means only that
// the request reached the server; the outcome arrives as state updates.
package indi
