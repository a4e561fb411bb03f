package mqtt

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/indi-bridge/internal/infrastructure/config"
)

// startTestBroker runs an embedded broker on a free loopback port and
// returns a client config pointing at it.
func startTestBroker(t *testing.T) config.MQTTConfig {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close() //nolint:errcheck // released for the broker

	broker, err := StartBroker(net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), nil)
	if err != nil {
		t.Fatalf("StartBroker() error = %v", err)
	}
	t.Cleanup(func() { broker.Close() }) //nolint:errcheck // test cleanup

	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     port,
			ClientID: "indibridge-test-" + t.Name(),
		},
		QoS:         1,
		Reconnect:   config.MQTTReconnectConfig{InitialDelay: 1, MaxDelay: 2},
		TopicPrefix: "indi",
	}
}

func connectTest(t *testing.T, cfg config.MQTTConfig) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { c.Close() }) //nolint:errcheck // test cleanup
	return c
}

type received struct {
	topic   string
	payload string
}

func collect(t *testing.T, c *Client, topic string) <-chan received {
	t.Helper()
	ch := make(chan received, 16)
	err := c.Subscribe(topic, 1, func(topic string, payload []byte) error {
		ch <- received{topic, string(payload)}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe(%q) error = %v", topic, err)
	}
	return ch
}

func waitMessage(t *testing.T, ch <-chan received) received {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return received{}
	}
}

func TestConnect(t *testing.T) {
	c := connectTest(t, startTestBroker(t))

	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if c.Topics().Prefix() != "indi" {
		t.Errorf("Topics().Prefix() = %q", c.Topics().Prefix())
	}
}

func TestConnect_BrokerUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close() //nolint:errcheck // nothing listens here now

	cfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "127.0.0.1", Port: port, ClientID: "unreachable"},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err = Connect(ctx, cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClose(t *testing.T) {
	c := connectTest(t, startTestBroker(t))

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close = %v, want ErrNotConnected", err)
	}
	if err := c.Publish("indi/x", nil, 0, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() after Close = %v, want ErrNotConnected", err)
	}

	var nilClient *Client
	if err := nilClient.Close(); err != nil {
		t.Errorf("Close() on nil = %v", err)
	}
}

func TestHealthCheck_Cancelled(t *testing.T) {
	c := connectTest(t, startTestBroker(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() = %v, want context.Canceled", err)
	}
}

func TestPublishSubscribe(t *testing.T) {
	c := connectTest(t, startTestBroker(t))
	topics := c.Topics()

	ch := collect(t, c, topics.AllCommands())

	topic := topics.Command("CCD Simulator", "CCD_EXPOSURE")
	if err := c.Publish(topic, []byte(`{"elements":{"CCD_EXPOSURE_VALUE":1}}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	m := waitMessage(t, ch)
	if m.topic != "indi/command/CCD Simulator/CCD_EXPOSURE" {
		t.Errorf("topic = %q", m.topic)
	}
	if m.payload != `{"elements":{"CCD_EXPOSURE_VALUE":1}}` {
		t.Errorf("payload = %q", m.payload)
	}
}

func TestPublishRetained(t *testing.T) {
	cfg := startTestBroker(t)
	pub := connectTest(t, cfg)

	topic := pub.Topics().State("Telescope Simulator", "EQUATORIAL_EOD_COORD")
	if err := pub.PublishRetained(topic, []byte(`{"state":"Ok"}`)); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}

	cfg.Broker.ClientID = "late-subscriber"
	sub := connectTest(t, cfg)
	ch := collect(t, sub, sub.Topics().AllStates())

	m := waitMessage(t, ch)
	if m.topic != topic || m.payload != `{"state":"Ok"}` {
		t.Errorf("retained message = %+v", m)
	}
}

func TestPublish_Validation(t *testing.T) {
	c := connectTest(t, startTestBroker(t))

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", nil, 0, ErrInvalidTopic},
		{"bad qos", "indi/x", nil, 3, ErrInvalidQoS},
		{"too large", "indi/x", make([]byte, maxPayloadSize+1), 0, ErrPublishFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := connectTest(t, startTestBroker(t))
	noop := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 0, noop); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Subscribe(empty) = %v", err)
	}
	if err := c.Subscribe("indi/#", 3, noop); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Subscribe(qos 3) = %v", err)
	}
	if err := c.Subscribe("indi/#", 0, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe(nil handler) = %v", err)
	}
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
}

func TestUnsubscribe(t *testing.T) {
	c := connectTest(t, startTestBroker(t))
	noop := func(string, []byte) error { return nil }

	for _, topic := range []string{"indi/a", "indi/b"} {
		if err := c.Subscribe(topic, 1, noop); err != nil {
			t.Fatalf("Subscribe(%q) error = %v", topic, err)
		}
	}
	if err := c.Unsubscribe("indi/a"); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if c.HasSubscription("indi/a") || !c.HasSubscription("indi/b") {
		t.Errorf("subscriptions after Unsubscribe: a=%v b=%v", c.HasSubscription("indi/a"), c.HasSubscription("indi/b"))
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(empty) = %v", err)
	}
}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, msg)
}

func TestHandlerErrorsAndPanics(t *testing.T) {
	c := connectTest(t, startTestBroker(t))
	logger := &recordingLogger{}
	c.SetLogger(logger)

	done := make(chan struct{}, 2)
	if err := c.Subscribe("indi/fail", 1, func(string, []byte) error {
		defer func() { done <- struct{}{} }()
		return errors.New("boom")
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := c.Subscribe("indi/panic", 1, func(string, []byte) error {
		done <- struct{}{}
		panic("handler bug")
	}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	for _, topic := range []string{"indi/fail", "indi/panic"} {
		if err := c.Publish(topic, []byte("x"), 1, false); err != nil {
			t.Fatalf("Publish(%q) error = %v", topic, err)
		}
	}
	for range 2 {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("handlers not invoked")
		}
	}

	// Logging happens after the handler returns.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		logger.mu.Lock()
		ok := len(logger.warns) == 1 && len(logger.errs) == 1
		logger.mu.Unlock()
		if ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("logged warns=%v errs=%v, want one of each", logger.warns, logger.errs)
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{Host: "localhost", Port: 1883, ClientID: "x"},
	})
	configureLWT(opts, NewTopics("observatory"))

	if !opts.WillEnabled || !opts.WillRetained {
		t.Fatalf("will enabled=%v retained=%v", opts.WillEnabled, opts.WillRetained)
	}
	if opts.WillTopic != "observatory/health" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if string(opts.WillPayload) != OfflinePayload {
		t.Errorf("WillPayload = %q", opts.WillPayload)
	}
}
