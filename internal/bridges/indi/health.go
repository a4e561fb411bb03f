package indi

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	indiproto "github.com/nerrad567/indi-bridge/internal/indi"
)

const defaultHealthInterval = 30 * time.Second

// HealthReporter publishes the retained HealthMessage at a fixed interval.
type HealthReporter struct {
	topic     string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	conn      indiproto.Client
	registry  DeviceCounter

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// HealthPublisher is the publishing half of the MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// DeviceCounter is satisfied by *device.Registry.
type DeviceCounter interface {
	GetDeviceCount() int
}

// HealthReporterConfig configures a HealthReporter.
type HealthReporterConfig struct {
	Topic     string
	Version   string
	Interval  time.Duration
	Publisher HealthPublisher
	Conn      indiproto.Client
	Registry  DeviceCounter
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthReporter{
		topic:     cfg.Topic,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		conn:      cfg.Conn,
		registry:  cfg.Registry,
		done:      make(chan struct{}),
	}
}

// Start publishes the current status and then one every interval until
// Stop or ctx is done.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		//nolint:errcheck // best effort during shutdown
		h.publishStatus(HealthStopping, "bridge stopping")
	})
}

// SetLogger sets the logger.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.conn == nil || !h.conn.IsConnected() {
		return HealthDegraded, "INDI server disconnected"
	}
	return HealthHealthy, ""
}

// Message builds the current HealthMessage.
func (h *HealthReporter) Message(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Status:    status,
		Reason:    reason,
		Version:   h.version,
		Timestamp: time.Now().UTC(),
		Uptime:    int64(time.Since(h.startTime).Seconds()),
	}
	if h.conn != nil {
		stats := h.conn.Stats()
		msg.Connected = h.conn.IsConnected()
		msg.INDI = &stats
	}
	if h.registry != nil {
		msg.Devices = h.registry.GetDeviceCount()
	}
	return msg
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(h.Message(status, reason))
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
