package mqtt

import "strings"

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "indi"

// GlobalMessageSegment stands in for the device in message topics when an
// INDI message carries no device.
const GlobalMessageSegment = "_global"

// Topics builds the bridge's topic hierarchy under a prefix:
//
//	{prefix}/state/{device}/{property}    retained property snapshot
//	{prefix}/message/{device|_global}     INDI server messages
//	{prefix}/command/{device}/{property}  inbound property changes
//	{prefix}/ack/{device}/{property}      command acknowledgements
//	{prefix}/health                       retained bridge health
//
// Device and property names are used verbatim except that the MQTT
// separators and wildcards (/ + #) are replaced by underscores.
type Topics struct {
	prefix string
}

// NewTopics returns a builder for prefix, trimming any trailing slash.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic prefix.
func (t Topics) Prefix() string {
	return t.prefix
}

// State returns the retained state topic for a property.
func (t Topics) State(device, property string) string {
	return t.join("state", Segment(device), Segment(property))
}

// Message returns the topic for INDI messages from device. An empty
// device maps to the _global segment.
func (t Topics) Message(device string) string {
	if device == "" {
		return t.join("message", GlobalMessageSegment)
	}
	return t.join("message", Segment(device))
}

// Command returns the inbound command topic for a property.
func (t Topics) Command(device, property string) string {
	return t.join("command", Segment(device), Segment(property))
}

// Ack returns the acknowledgement topic for a property.
func (t Topics) Ack(device, property string) string {
	return t.join("ack", Segment(device), Segment(property))
}

// Health returns the retained bridge health topic.
func (t Topics) Health() string {
	return t.join("health")
}

// AllCommands matches every command topic.
func (t Topics) AllCommands() string {
	return t.join("command", "+", "+")
}

// AllStates matches every state topic.
func (t Topics) AllStates() string {
	return t.join("state", "+", "+")
}

// ParseCommand extracts the device and property segments from a command
// topic. ok is false for any other topic.
func (t Topics) ParseCommand(topic string) (device, property string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix+"/command/")
	if !found {
		return "", "", false
	}
	device, property, found = strings.Cut(rest, "/")
	if !found || device == "" || property == "" || strings.Contains(property, "/") {
		return "", "", false
	}
	return device, property, true
}

func (t Topics) join(parts ...string) string {
	return t.prefix + "/" + strings.Join(parts, "/")
}

var segmentReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// Segment makes name safe for use as a single topic level.
func Segment(name string) string {
	return segmentReplacer.Replace(name)
}
