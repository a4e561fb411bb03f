package mqtt

import (
	"fmt"
	"log/slog"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// Broker is an in-process MQTT broker for installs without one, such as a
// single observatory computer. It accepts every client.
type Broker struct {
	server  *mochi.Server
	address string
}

// StartBroker listens on address (host:port) and serves until Close.
// A nil logger uses mochi's default.
func StartBroker(address string, logger *slog.Logger) (*Broker, error) {
	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       logger,
	})

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("%w: adding auth hook: %w", ErrBrokerFailed, err)
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "indibridge-tcp", Address: address})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("%w: listening on %s: %w", ErrBrokerFailed, address, err)
	}

	if err := server.Serve(); err != nil {
		server.Close() //nolint:errcheck // best effort on error path
		return nil, fmt.Errorf("%w: %w", ErrBrokerFailed, err)
	}

	return &Broker{server: server, address: address}, nil
}

// Address returns the configured listen address.
func (b *Broker) Address() string {
	return b.address
}

// Publish injects a message directly, bypassing any client connection.
func (b *Broker) Publish(topic string, payload []byte, retain bool, qos byte) error {
	return b.server.Publish(topic, payload, retain, qos)
}

// Close stops the listeners and disconnects every client.
func (b *Broker) Close() error {
	if b == nil || b.server == nil {
		return nil
	}
	return b.server.Close()
}
