// Package device holds the client-side view of remote INDI device state.
//
// Commands decoded by package indi are folded into a snapshot of every
// device and property the server has advertised:
//
//	┌──────────────┐  Command   ┌──────────────┐  Change   ┌─────────────────┐
//	│ indi.Decoder │──────────▶ │   Registry   │─────────▶ │ OnChange        │
//	└──────────────┘            │  ┌────────┐  │           │ listeners       │
//	                            │  │ Store  │  │           │ (MQTT, history, │
//	                            │  └────────┘  │           │  WebSocket)     │
//	                            └──────────────┘           └─────────────────┘
//
// # Semantics
//
//   - def*Vector creates the device if needed and replaces the property
//     wholesale. Redefinition is not a merge.
//   - set*Vector and new*Vector overwrite the header fields they carry and
//     the values of the elements they name. Other elements keep their value.
//   - delProperty with a name removes that property. Without a name it
//     removes the device and every property under it.
//   - message and getProperties never mutate state.
//
// Updates are validated in full before anything is written: an unknown
// property or element, or a kind mismatch, leaves the store untouched.
//
// # Thread Safety
//
// Store is unsynchronized and must have a single owner. Registry wraps it
// with a read-write mutex and hands out deep copies.
//
// # History
//
// SQLiteHistoryRepository records one row per element value written by a
// define or update, keyed by device and property, in the property_history
// table created by the embedded migrations.
package device
