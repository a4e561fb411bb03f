// Package indi implements the client side of the INDI device-control protocol.
//
// INDI servers (indiserver and its drivers) describe astronomical instruments
// as devices owning typed properties. The wire format is a long-lived stream
// of XML elements, one element per command, with no enclosing document.
//
// # Architecture
//
//	┌─────────────┐  bytes  ┌──────────────┐  Command  ┌──────────────────┐
//	│ indiserver  │────────►│   Decoder    │──────────►│  device.Registry │
//	│  (TCP/unix) │◄────────│   Encoder    │◄──────────│  bridges / api   │
//	└─────────────┘   XML   └──────────────┘  requests └──────────────────┘
//
// The Decoder pulls tokens from encoding/xml and yields exactly one Command
// per top-level element. Commands form a closed set:
//
//   - def{Number,Text,Switch,Light,BLOB}Vector: property definitions
//   - set{Number,Text,Switch,Light,BLOB}Vector: server-side updates
//   - new{Number,Text,Switch,Light,BLOB}Vector: client change requests
//   - message, delProperty, getProperties
//
// # Decoding rules
//
// Attributes are validated per command variant. Unknown attributes and
// missing required attributes are errors; nothing is silently dropped.
// Timestamps without a zone designator are read as UTC. Number element
// bodies are decoded as Latin-1 before being parsed (see DecodeLatin1),
// and accept INDI's sexagesimal notation ("-12:30:15") as well as plain
// floating point.
//
// # Error recovery
//
// Syntax errors, transport errors and end of stream inside an element are
// fatal: the decoder keeps returning the same error (see IsFatal). Any other
// decode error is returned after the rest of the offending element has been
// consumed, so the next call to Next starts at the following element.
//
// # Thread Safety
//
// Decoder and Encoder are not safe for concurrent use. Conn serialises
// writes internally and owns a single read loop.
//
// # References
//
//   - INDI protocol v1.7: http://www.clearskyinstitute.com/INDI/INDI.pdf
//   - INDI library: https://github.com/indilib/indi
package indi
