package indi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPort is the indiserver TCP port.
const DefaultPort = 7624

const (
	// defaultConnectTimeout bounds the initial dial.
	defaultConnectTimeout = 10 * time.Second

	// defaultWriteTimeout bounds a single request write.
	defaultWriteTimeout = 5 * time.Second
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Config holds indiserver connection settings.
type Config struct {
	// Server is the indiserver address. Supported formats:
	//   - "tcp://localhost:7624"
	//   - "unix:///tmp/indiserver"
	//   - "localhost" or "localhost:7624" (TCP)
	Server string

	// ConnectTimeout is the maximum time to wait for the dial.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// WriteTimeout bounds each request write.
	// Default: 5 seconds.
	WriteTimeout time.Duration
}

// Stats holds connection counters.
type Stats struct {
	CommandsRx   uint64    `json:"commands_rx"`
	CommandsTx   uint64    `json:"commands_tx"`
	DecodeErrors uint64    `json:"decode_errors"`
	BytesTx      uint64    `json:"bytes_tx"`
	LastActivity time.Time `json:"last_activity"`
	Connected    bool      `json:"connected"`
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Client is the connection surface used by bridges, so tests can
// substitute a fake server.
type Client interface {
	Send(ctx context.Context, cmd Command) error
	SetOnCommand(callback func(Command))
	SetOnError(callback func(error))
	IsConnected() bool
	Stats() Stats
	Done() <-chan struct{}
	Close() error
}

// Ensure Conn implements Client.
var _ Client = (*Conn)(nil)

// Conn is a client connection to an indiserver.
//
// A single goroutine owns the read side: it decodes commands in stream
// order and hands each one to the OnCommand callback before reading the
// next, so callbacks observe the server's ordering. Writes may come from
// any goroutine and are serialised so elements never interleave.
//
// There is no automatic reconnection; Done is closed when the read loop
// ends and the owner decides what to do next.
type Conn struct {
	cfg  Config
	conn net.Conn
	dec  *Decoder

	connMu    sync.RWMutex
	connected bool

	writeMu sync.Mutex

	onCommand  func(Command)
	onError    func(error)
	callbackMu sync.RWMutex

	done     *closeOnce // closed by Close
	loopDone chan struct{}
	wg       sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex

	commandsRx   atomic.Uint64
	commandsTx   atomic.Uint64
	decodeErrors atomic.Uint64
	bytesTx      atomic.Uint64
	lastActivity atomic.Int64
}

// Dial connects to an indiserver and starts the read loop.
//
// Parameters:
//   - ctx: Context for the dial
//   - cfg: Connection configuration
//
// Returns:
//   - *Conn: Connected client; set callbacks, then send GetProperties
//   - error: If the address is invalid or the dial fails
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}

	network, address, err := ParseServerAddress(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	nc, err := dialer.DialContext(dialCtx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s %s: %w", ErrConnectionFailed, network, address, err)
	}

	return newConn(cfg, nc), nil
}

// newConn wraps an established connection and starts reading from it.
func newConn(cfg Config, nc net.Conn) *Conn {
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	c := &Conn{
		cfg:       cfg,
		conn:      nc,
		dec:       NewDecoder(nc),
		connected: true,
		done:      newCloseOnce(),
		loopDone:  make(chan struct{}),
	}
	c.lastActivity.Store(time.Now().Unix())

	c.wg.Add(1)
	go c.receiveLoop()
	return c
}

// ParseServerAddress turns a server URL into a network and address for
// net.Dial. TCP addresses without a port use DefaultPort.
func ParseServerAddress(server string) (network, address string, err error) {
	if server == "" {
		return "", "", errors.New("empty server address")
	}
	if !strings.Contains(server, "://") {
		return "tcp", withDefaultPort(server), nil
	}

	u, err := url.Parse(server)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "unix":
		if u.Path == "" {
			return "", "", errors.New("unix address has no path")
		}
		return "unix", u.Path, nil
	case "tcp":
		host := u.Host
		if host == "" {
			host = "localhost"
		}
		return "tcp", withDefaultPort(host), nil
	default:
		return "", "", fmt.Errorf("unsupported scheme %q (use tcp or unix)", u.Scheme)
	}
}

func withDefaultPort(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), fmt.Sprint(DefaultPort))
}

// receiveLoop decodes commands until the stream ends, a fatal decode error
// occurs or the connection is closed.
func (c *Conn) receiveLoop() {
	defer c.wg.Done()
	defer close(c.loopDone)
	defer c.markDisconnected()

	for {
		cmd, err := c.dec.Next()
		if err == io.EOF {
			c.logInfo("server closed the stream")
			return
		}
		if err != nil {
			if c.isClosed() {
				return
			}
			c.decodeErrors.Add(1)
			c.notifyError(err)
			if IsFatal(err) {
				c.logError("fatal decode error, stopping read loop", err)
				return
			}
			continue
		}

		c.commandsRx.Add(1)
		c.lastActivity.Store(time.Now().Unix())
		c.deliver(cmd)
	}
}

// deliver hands cmd to the command callback, recovering panics so one bad
// handler cannot stop the stream.
func (c *Conn) deliver(cmd Command) {
	c.callbackMu.RLock()
	callback := c.onCommand
	c.callbackMu.RUnlock()
	if callback == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logError("command callback panic", fmt.Errorf("%v", r))
		}
	}()
	callback(cmd)
}

func (c *Conn) notifyError(err error) {
	c.callbackMu.RLock()
	callback := c.onError
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
		return
	}
	c.logError("decode error", err)
}

func (c *Conn) markDisconnected() {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Send encodes a client request and writes it to the server.
//
// Parameters:
//   - ctx: Context for cancellation; its deadline caps the write timeout
//   - cmd: GetProperties or one of the New*Vector requests
//
// Returns:
//   - error: If the command cannot be encoded or the write fails
func (c *Conn) Send(ctx context.Context, cmd Command) error {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(cmd); err != nil {
		return fmt.Errorf("encode %s: %w", cmd.Tag(), err)
	}
	return c.write(ctx, buf.Bytes())
}

// GetProperties asks the server for property definitions.
func (c *Conn) GetProperties(ctx context.Context, device, name string) error {
	return c.Send(ctx, &GetProperties{Version: ProtocolVersion, Device: device, Name: name})
}

// EnableBLOB sets the blob delivery mode for a device or property.
func (c *Conn) EnableBLOB(ctx context.Context, device, name string, mode BLOBEnable) error {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).EnableBLOB(device, name, mode); err != nil {
		return fmt.Errorf("encode enableBLOB: %w", err)
	}
	return c.write(ctx, buf.Bytes())
}

func (c *Conn) write(ctx context.Context, msg []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	if !c.IsConnected() {
		return fmt.Errorf("%w: read loop stopped", ErrClosed)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	n, err := c.conn.Write(msg)
	c.bytesTx.Add(uint64(n))
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	c.commandsTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	return nil
}

// SetOnCommand sets the callback for decoded commands. It runs on the read
// goroutine; a slow callback delays the stream.
func (c *Conn) SetOnCommand(callback func(Command)) {
	c.callbackMu.Lock()
	c.onCommand = callback
	c.callbackMu.Unlock()
}

// SetOnError sets the callback for decode errors. Without one, errors are
// logged.
func (c *Conn) SetOnError(callback func(error)) {
	c.callbackMu.Lock()
	c.onError = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for this connection.
func (c *Conn) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// IsConnected returns true while the read loop is running.
func (c *Conn) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Done is closed when the read loop has stopped.
func (c *Conn) Done() <-chan struct{} {
	return c.loopDone
}

// Err returns the fatal decode error that stopped the read loop, if any.
func (c *Conn) Err() error {
	select {
	case <-c.loopDone:
		return c.dec.Err()
	default:
		return nil
	}
}

// Stats returns current counters.
func (c *Conn) Stats() Stats {
	return Stats{
		CommandsRx:   c.commandsRx.Load(),
		CommandsTx:   c.commandsTx.Load(),
		DecodeErrors: c.decodeErrors.Load(),
		BytesTx:      c.bytesTx.Load(),
		LastActivity: time.Unix(c.lastActivity.Load(), 0),
		Connected:    c.IsConnected(),
	}
}

// HealthCheck reports whether the connection is still reading.
func (c *Conn) HealthCheck(_ context.Context) error {
	if !c.IsConnected() {
		return ErrClosed
	}
	return nil
}

// Close closes the connection and waits for the read loop to exit. Safe to
// call multiple times.
func (c *Conn) Close() error {
	c.done.Close()
	err := c.conn.Close()
	c.wg.Wait()
	c.markDisconnected()
	c.logInfo("connection closed")
	if err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

func (c *Conn) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Conn) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
