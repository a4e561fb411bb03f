package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	bridge "github.com/nerrad567/indi-bridge/internal/bridges/indi"
	"github.com/nerrad567/indi-bridge/internal/device"
	"github.com/nerrad567/indi-bridge/internal/indi"
	"github.com/nerrad567/indi-bridge/internal/infrastructure/config"
	"github.com/nerrad567/indi-bridge/internal/infrastructure/logging"
)

// Frame types. Clients send subscribe, unsubscribe, set and ping; the
// server sends event, snapshot, response, pong and error.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypeSet         = "set"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeSnapshot    = "snapshot"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// ChannelChanges carries every registry change. New clients start
	// subscribed to it.
	ChannelChanges = "changes"

	// ChannelDevicePrefix scopes a channel to one device: "device:CCD Simulator".
	ChannelDevicePrefix = "device:"

	wsSendBufferSize = 256

	// wsSetTimeout bounds a set frame's write to the INDI server.
	wsSetTimeout = 10 * time.Second
)

// WSMessage is one frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe frames.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// WSSetPayload is the payload of a set frame. Kind may be omitted when
// the property is already defined.
type WSSetPayload struct {
	Device   string         `json:"device"`
	Property string         `json:"property"`
	Kind     indi.Kind      `json:"kind,omitempty"`
	Elements map[string]any `json:"elements"`
}

// Hub tracks WebSocket clients and fans registry changes out to the ones
// subscribed to them.
type Hub struct {
	cfg      config.WebSocketConfig
	logger   *logging.Logger
	registry *device.Registry
	setter   PropertySetter

	mu      sync.RWMutex
	clients map[*WSClient]struct{}

	// dropped counts frames discarded because a client's buffer was full.
	dropped atomic.Uint64
}

// WSClient is one connected WebSocket peer.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]struct{}
	closed        bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by corsMiddleware.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// NewHub creates a hub. The registry answers device snapshots; setter may
// be nil, in which case set frames are refused.
func NewHub(cfg config.WebSocketConfig, registry *device.Registry, setter PropertySetter, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		setter:   setter,
		clients:  make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for client := range clients {
		client.close()
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// Register adds a client.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// Unregister removes a client and closes its send channel. Repeated calls
// are no-ops.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		client.close()
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many frames were discarded for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// BroadcastChange is registered with Registry.OnChange. A client
// subscribed to both ChannelChanges and the device channel gets the
// frame once.
func (h *Hub) BroadcastChange(change device.Change) {
	eventType := "property." + string(change.Op)
	if change.Op == device.ChangeNone {
		eventType = "message"
	}
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: eventType,
		Timestamp: wsTimestamp(),
		Payload:   withoutBLOBData(change),
	})
	if err != nil {
		h.logger.Error("failed to marshal websocket event", "error", err)
		return
	}

	deviceChannel := ChannelDevicePrefix + change.Device
	recipients := 0
	for _, client := range h.snapshot() {
		if client.wants(ChannelChanges, deviceChannel) {
			client.trySend(data)
			recipients++
		}
	}
	if recipients > 0 {
		h.logger.Debug("websocket event sent", "event", eventType, "recipients", recipients)
	}
}

func (h *Hub) snapshot() []*WSClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// withoutBLOBData drops BLOB bytes from a change; clients fetch them over
// HTTP. The registry's copy is left untouched.
func withoutBLOBData(change device.Change) device.Change {
	if change.Snapshot == nil || change.Snapshot.Kind != indi.KindBLOB {
		return change
	}
	p := change.Snapshot.DeepCopy()
	for i := range p.Elements {
		p.Elements[i].BLOB = nil
	}
	change.Snapshot = p
	return change
}

func wsTimestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// handleWebSocket upgrades the request and starts the client's pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{ChannelChanges: {}},
	}
	s.hub.Register(client)

	go client.writePump()
	go client.readPump()
}

// keepalive returns the ping period and how long a peer may stay silent.
func (c *WSClient) keepalive() (pingEvery, readWait time.Duration) {
	pingEvery = time.Duration(c.hub.cfg.PingInterval) * time.Second
	return pingEvery, pingEvery + time.Duration(c.hub.cfg.PongTimeout)*time.Second
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	_, readWait := c.keepalive()
	c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(readWait)) }
	//nolint:errcheck // a failed deadline surfaces as a read error
	extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		//nolint:errcheck // a failed deadline surfaces as a read error
		extend()
		c.dispatch(data)
	}
}

func (c *WSClient) writePump() {
	pingEvery, _ := c.keepalive()
	writeWait := time.Duration(c.hub.cfg.PongTimeout) * time.Second
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(messageType int, data []byte) error {
		//nolint:errcheck // a failed deadline surfaces as a write error
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(messageType, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // peer may already be gone
				write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch handles one inbound frame.
func (c *WSClient) dispatch(data []byte) {
	var msg struct {
		Type    string          `json:"type"`
		ID      string          `json:"id"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var sub WSSubscribePayload
		if err := json.Unmarshal(msg.Payload, &sub); err != nil || len(sub.Channels) == 0 {
			c.reply(msg.ID, WSTypeError, errorPayload("invalid "+msg.Type+" payload"))
			return
		}
		c.subscribe(msg.ID, msg.Type == WSTypeSubscribe, sub.Channels)
	case WSTypeSet:
		var set WSSetPayload
		if err := json.Unmarshal(msg.Payload, &set); err != nil || set.Device == "" || set.Property == "" {
			c.reply(msg.ID, WSTypeError, errorPayload("set needs device, property and elements"))
			return
		}
		c.set(msg.ID, set)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.reply(msg.ID, WSTypeError, errorPayload("unknown message type: "+msg.Type))
	}
}

// subscribe updates the client's channels. Subscribing to a device channel
// also sends the device's current properties, so a client does not wait
// for the next change to learn the state.
func (c *WSClient) subscribe(id string, add bool, channels []string) {
	c.mu.Lock()
	for _, ch := range channels {
		if add {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	if !add {
		c.reply(id, WSTypeResponse, map[string]any{"unsubscribed": channels})
		return
	}
	c.reply(id, WSTypeResponse, map[string]any{"subscribed": channels})

	for _, ch := range channels {
		name, ok := strings.CutPrefix(ch, ChannelDevicePrefix)
		if !ok {
			continue
		}
		dev, err := c.hub.registry.GetDevice(name)
		if err != nil {
			continue
		}
		stripBLOBs(dev)
		c.reply(id, WSTypeSnapshot, dev)
	}
}

// set forwards a property write. Success means the request reached the
// INDI server; the outcome arrives later as an event.
func (c *WSClient) set(id string, req WSSetPayload) {
	if c.hub.setter == nil {
		c.reply(id, WSTypeError, errorPayload("property writes are not available"))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsSetTimeout)
	defer cancel()

	err := c.hub.setter.SetProperty(ctx, req.Device, req.Property, req.Kind, req.Elements)
	if err != nil {
		c.reply(id, WSTypeError, errorPayload(setFailure(err)))
		if !bridge.IsCommandError(err) {
			c.hub.logger.Warn("websocket property write failed",
				"device", req.Device, "property", req.Property, "error", err)
		}
		return
	}
	c.reply(id, WSTypeResponse, map[string]any{
		"status":   "accepted",
		"device":   req.Device,
		"property": req.Property,
	})
}

// setFailure turns a SetProperty error into a message safe to show a client.
func setFailure(err error) string {
	switch {
	case errors.Is(err, device.ErrDeviceNotFound):
		return "device not found"
	case errors.Is(err, device.ErrPropertyNotFound):
		return "property not found"
	case bridge.IsCommandError(err):
		return err.Error()
	case errors.Is(err, bridge.ErrNotConnected):
		return err.Error()
	default:
		return "failed to send request to INDI server"
	}
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}

func (c *WSClient) reply(id, frameType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      frameType,
		ID:        id,
		Timestamp: wsTimestamp(),
		Payload:   payload,
	})
	if err != nil {
		c.hub.logger.Error("failed to marshal websocket reply", "error", err)
		return
	}
	c.trySend(data)
}

// trySend queues a frame without blocking. Frames for a closed client
// are discarded; frames for a full buffer are counted as dropped.
func (c *WSClient) trySend(data []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.hub.dropped.Add(1)
	}
}

// close marks the client closed and ends its write pump.
func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// wants reports whether the client subscribes to any of the channels.
func (c *WSClient) wants(channels ...string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range channels {
		if _, ok := c.subscriptions[ch]; ok {
			return true
		}
	}
	return false
}
