// Package mcp exposes the INDI device registry to Model Context Protocol
// clients over stdio.
//
// Tools:
//   - list_devices: devices with a summary of each property
//   - get_property: one property with element values (blob bytes omitted)
//   - set_property: send new element values through the bridge
//   - get_history: recorded values from the SQLite history
package mcp
