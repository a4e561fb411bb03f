package indi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/indi-bridge/internal/device"
	indiproto "github.com/nerrad567/indi-bridge/internal/indi"
	"github.com/nerrad567/indi-bridge/internal/infrastructure/mqtt"
)

const (
	// commandTimeout bounds one request write to the INDI server.
	commandTimeout = 5 * time.Second

	// historyTimeout bounds one history insert.
	historyTimeout = 2 * time.Second
)

// Bridge connects an INDI server to MQTT.
//
// Server commands are applied to the device registry in stream order and
// every resulting change is published, recorded to history and written to
// the time-series store. Property changes arriving on the command topics
// are validated against the registry and forwarded as new*Vector requests.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	conn     indiproto.Client
	mqtt     MQTTClient
	topics   mqtt.Topics
	registry *device.Registry
	history  HistoryRecorder
	metrics  MetricsWriter
	health   *HealthReporter
	now      func() time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	ctx      context.Context
	cancel   context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the structured logger used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is satisfied by *mqtt.Client.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// HistoryRecorder is satisfied by device.HistoryRepository.
type HistoryRecorder interface {
	RecordChange(ctx context.Context, change device.Change) (int, error)
}

// MetricsWriter is satisfied by *influxdb.Client.
type MetricsWriter interface {
	WriteNumbers(device, property, state string, values map[string]float64, ts time.Time)
	WriteSwitches(device, property, state string, values map[string]bool, ts time.Time)
	WriteLights(device, property, state string, values map[string]string, ts time.Time)
}

// Options configures a Bridge. Conn and Registry are required. Without
// MQTT the bridge still feeds the registry, history and metrics.
type Options struct {
	Conn     indiproto.Client
	MQTT     MQTTClient
	Registry *device.Registry

	// TopicPrefix defaults to "indi".
	TopicPrefix string

	// History and Metrics are optional.
	History HistoryRecorder
	Metrics MetricsWriter

	// Version is reported in health messages.
	Version string

	// HealthInterval defaults to 30 seconds.
	HealthInterval time.Duration

	Logger Logger
}

// New creates a bridge. Call Start to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.Conn == nil {
		return nil, fmt.Errorf("INDI connection is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		conn:     opts.Conn,
		mqtt:     opts.MQTT,
		topics:   mqtt.NewTopics(opts.TopicPrefix),
		registry: opts.Registry,
		history:  opts.History,
		metrics:  opts.Metrics,
		now:      time.Now,
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		logger:   opts.Logger,
	}
	b.health = NewHealthReporter(HealthReporterConfig{
		Topic:     b.topics.Health(),
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Publisher: opts.MQTT,
		Conn:      opts.Conn,
		Registry:  opts.Registry,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}
	return b, nil
}

// Start registers the INDI callbacks, subscribes to command topics and
// starts health reporting. Commands that arrive before Start are not seen
// by the registry, so call Start before requesting properties.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	b.conn.SetOnCommand(b.handleINDICommand)
	b.conn.SetOnError(b.handleDecodeError)

	if b.mqtt != nil {
		topic := b.topics.AllCommands()
		if err := b.mqtt.Subscribe(topic, 1, b.handleMQTTCommand); err != nil {
			return fmt.Errorf("subscribe to commands: %w", err)
		}
		b.logInfo("subscribed to commands", "topic", topic)
	}

	b.wg.Add(1)
	go b.watchConnection()

	b.health.Start(ctx)
	b.logInfo("bridge started", "prefix", b.topics.Prefix())
	return nil
}

// Stop cancels in-flight requests and publishes a final "stopping" health
// message. It does not close the INDI or MQTT connections.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		b.cancel()
		b.health.Stop()
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// Topics returns the topic builder in use.
func (b *Bridge) Topics() mqtt.Topics {
	return b.topics
}

// SetLogger sets the logger.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
	b.health.SetLogger(logger)
}

// watchConnection reports the end of the INDI stream.
func (b *Bridge) watchConnection() {
	defer b.wg.Done()
	select {
	case <-b.conn.Done():
		b.logWarn("INDI connection closed")
		if err := b.health.PublishNow(); err != nil {
			b.logError("failed to publish health", err)
		}
	case <-b.done:
	}
}

// handleINDICommand applies one server command and fans out the change.
// It runs on the connection's read goroutine.
func (b *Bridge) handleINDICommand(cmd indiproto.Command) {
	change, err := b.registry.Apply(cmd)
	if err != nil {
		b.logWarn("command rejected by registry", "tag", cmd.Tag(), "error", err)
		return
	}

	publish := b.mqtt != nil
	if publish && change.Message != "" {
		b.publishMessage(change)
	}

	switch change.Op {
	case device.ChangeDefine, device.ChangeUpdate:
		if publish {
			b.publishState(change)
		}
		b.recordHistory(change)
		b.writeMetrics(change)
	case device.ChangeDelete:
		if publish {
			b.clearState(change)
		}
	}
}

func (b *Bridge) handleDecodeError(err error) {
	if indiproto.IsFatal(err) {
		b.logError("INDI stream unreadable, connection stopping", err)
		return
	}
	b.logWarn("skipped malformed INDI element", "error", err)
}

func (b *Bridge) publishState(change device.Change) {
	if change.Snapshot == nil {
		return
	}
	payload, err := json.Marshal(newPropertyMessage(change.Op, change.Snapshot))
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}
	topic := b.topics.State(change.Device, change.Property)
	if err := b.mqtt.Publish(topic, payload, 1, true); err != nil {
		b.logError("failed to publish state", err, "topic", topic)
	}
}

// clearState removes the retained state of deleted properties.
func (b *Bridge) clearState(change device.Change) {
	for _, name := range change.Deleted {
		topic := b.topics.State(change.Device, name)
		if err := b.mqtt.Publish(topic, nil, 1, true); err != nil {
			b.logError("failed to clear state", err, "topic", topic)
		}
	}
}

func (b *Bridge) publishMessage(change device.Change) {
	payload, err := json.Marshal(MessageEvent{
		Device:    change.Device,
		Property:  change.Property,
		Message:   change.Message,
		Timestamp: change.Timestamp,
	})
	if err != nil {
		b.logError("failed to marshal message", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Message(change.Device), payload, 1, false); err != nil {
		b.logError("failed to publish message", err)
	}
}

func (b *Bridge) recordHistory(change device.Change) {
	if b.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(b.ctx, historyTimeout)
	defer cancel()
	if _, err := b.history.RecordChange(ctx, change); err != nil {
		b.logError("failed to record history", err, "device", change.Device, "property", change.Property)
	}
}

// writeMetrics writes the elements touched by the change.
func (b *Bridge) writeMetrics(change device.Change) {
	if b.metrics == nil || change.Snapshot == nil {
		return
	}
	p := change.Snapshot
	state := string(p.State)

	switch p.Kind {
	case indiproto.KindNumber:
		values := make(map[string]float64, len(change.Elements))
		for _, name := range change.Elements {
			if e, ok := p.Element(name); ok {
				values[name] = e.Number
			}
		}
		b.metrics.WriteNumbers(p.Device, p.Name, state, values, change.Timestamp)
	case indiproto.KindSwitch:
		values := make(map[string]bool, len(change.Elements))
		for _, name := range change.Elements {
			if e, ok := p.Element(name); ok {
				values[name] = e.Switch == indiproto.SwitchOn
			}
		}
		b.metrics.WriteSwitches(p.Device, p.Name, state, values, change.Timestamp)
	case indiproto.KindLight:
		values := make(map[string]string, len(change.Elements))
		for _, name := range change.Elements {
			if e, ok := p.Element(name); ok {
				values[name] = string(e.Light)
			}
		}
		b.metrics.WriteLights(p.Device, p.Name, state, values, change.Timestamp)
	}
}

// SetProperty validates values against the registry and sends the
// matching new*Vector request to the INDI server.
func (b *Bridge) SetProperty(ctx context.Context, deviceName, property string, kind indiproto.Kind, values map[string]any) error {
	p, err := b.registry.GetProperty(deviceName, property)
	if err != nil {
		return err
	}
	req, err := BuildRequest(p, kind, values, b.now())
	if err != nil {
		return err
	}
	if !b.conn.IsConnected() {
		return ErrNotConnected
	}

	sendCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := b.conn.Send(sendCtx, req); err != nil {
		return fmt.Errorf("sending %s: %w", req.Tag(), err)
	}
	return nil
}

// handleMQTTCommand processes one message from a command topic.
func (b *Bridge) handleMQTTCommand(topic string, payload []byte) error {
	devSeg, propSeg, ok := b.topics.ParseCommand(topic)
	if !ok {
		return fmt.Errorf("not a command topic: %s", topic)
	}
	deviceName, property := b.resolve(devSeg, propSeg)

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.publishAck(deviceName, property, uuid.NewString(), fmt.Errorf("%w: %w", ErrInvalidPayload, err))
		return nil
	}
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}

	b.logInfo("received command", "command_id", cmd.ID, "device", deviceName, "property", property)

	err := b.SetProperty(b.ctx, deviceName, property, cmd.Kind, cmd.Elements)
	if err != nil {
		b.logWarn("command failed", "command_id", cmd.ID, "error", err)
	}
	b.publishAck(deviceName, property, cmd.ID, err)
	return nil
}

// resolve maps topic segments back to registry names, which differ when a
// name contains characters that Segment replaces.
func (b *Bridge) resolve(devSeg, propSeg string) (deviceName, property string) {
	if _, err := b.registry.GetProperty(devSeg, propSeg); err == nil {
		return devSeg, propSeg
	}
	for _, d := range b.registry.ListDevices() {
		if mqtt.Segment(d.Name) != devSeg {
			continue
		}
		for name := range d.Properties {
			if mqtt.Segment(name) == propSeg {
				return d.Name, name
			}
		}
	}
	return devSeg, propSeg
}

func (b *Bridge) publishAck(deviceName, property, commandID string, cmdErr error) {
	ack := AckMessage{
		CommandID: commandID,
		Device:    deviceName,
		Property:  property,
		Status:    AckAccepted,
		Timestamp: b.now().UTC(),
	}
	if cmdErr != nil {
		ack.Status = AckFailed
		ack.Error = cmdErr.Error()
	}
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Ack(deviceName, property), payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// IsCommandError reports whether err is a validation failure rather than
// a transport problem. Used by the API to choose a status code.
func IsCommandError(err error) bool {
	return errors.Is(err, ErrReadOnly) ||
		errors.Is(err, ErrKindMismatch) ||
		errors.Is(err, ErrNoElements) ||
		errors.Is(err, ErrInvalidValue) ||
		errors.Is(err, device.ErrElementNotFound)
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error, keysAndValues ...any) {
	if l := b.getLogger(); l != nil {
		l.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
