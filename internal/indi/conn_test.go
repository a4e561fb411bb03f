package indi

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

// newPipeConn returns a Conn reading from one end of an in-memory pipe and
// the server end for the test to drive.
func newPipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	c := newConn(Config{WriteTimeout: time.Second}, client)
	t.Cleanup(func() {
		_ = server.Close()
		_ = c.Close()
	})
	return c, server
}

func waitDone(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop")
	}
}

func TestParseServerAddress(t *testing.T) {
	tests := []struct {
		name        string
		server      string
		wantNetwork string
		wantAddress string
		wantErr     bool
	}{
		{name: "bare host", server: "localhost", wantNetwork: "tcp", wantAddress: "localhost:7624"},
		{name: "host and port", server: "192.168.1.10:7000", wantNetwork: "tcp", wantAddress: "192.168.1.10:7000"},
		{name: "ipv6 host", server: "::1", wantNetwork: "tcp", wantAddress: "[::1]:7624"},
		{name: "tcp URL", server: "tcp://indi.local", wantNetwork: "tcp", wantAddress: "indi.local:7624"},
		{name: "tcp URL with port", server: "tcp://indi.local:7625", wantNetwork: "tcp", wantAddress: "indi.local:7625"},
		{name: "unix socket", server: "unix:///tmp/indiserver", wantNetwork: "unix", wantAddress: "/tmp/indiserver"},
		{name: "empty", server: "", wantErr: true},
		{name: "unix without path", server: "unix://", wantErr: true},
		{name: "unsupported scheme", server: "http://indi.local", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network, address, err := ParseServerAddress(tt.server)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseServerAddress(%q) = %s %s, want error", tt.server, network, address)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseServerAddress(%q) error = %v", tt.server, err)
			}
			if network != tt.wantNetwork || address != tt.wantAddress {
				t.Errorf("ParseServerAddress(%q) = %s %s, want %s %s",
					tt.server, network, address, tt.wantNetwork, tt.wantAddress)
			}
		})
	}
}

func TestConn_DeliversInOrder(t *testing.T) {
	c, server := newPipeConn(t)

	got := make(chan Command, 8)
	c.SetOnCommand(func(cmd Command) { got <- cmd })

	stream := `<defSwitchVector device="CCD Simulator" name="DEBUG" state="Idle" perm="rw" rule="OneOfMany"><defSwitch name="ENABLE">Off</defSwitch></defSwitchVector>
<setSwitchVector device="CCD Simulator" name="DEBUG" state="Ok"><oneSwitch name="ENABLE">On</oneSwitch></setSwitchVector>
<delProperty device="CCD Simulator" name="DEBUG"/>
`
	if _, err := server.Write([]byte(stream)); err != nil {
		t.Fatalf("server write: %v", err)
	}

	want := []string{"defSwitchVector", "setSwitchVector", "delProperty"}
	for i, tag := range want {
		select {
		case cmd := <-got:
			if cmd.Tag() != tag {
				t.Errorf("command %d = %s, want %s", i, cmd.Tag(), tag)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", tag)
		}
	}
	if rx := c.Stats().CommandsRx; rx != 3 {
		t.Errorf("Stats().CommandsRx = %d, want 3", rx)
	}
}

func TestConn_RecoverableErrorKeepsReading(t *testing.T) {
	c, server := newPipeConn(t)

	var mu sync.Mutex
	var errs []error
	c.SetOnError(func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})
	got := make(chan Command, 1)
	c.SetOnCommand(func(cmd Command) { got <- cmd })

	if _, err := server.Write([]byte(`<bogus/><delProperty device="d"/>`)); err != nil {
		t.Fatalf("server write: %v", err)
	}

	select {
	case cmd := <-got:
		if _, ok := cmd.(*DelProperty); !ok {
			t.Errorf("command = %T, want *DelProperty", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command after decode error")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 || !errors.Is(errs[0], ErrUnexpectedTag) {
		t.Errorf("errors = %v, want one ErrUnexpectedTag", errs)
	}
	if !c.IsConnected() {
		t.Error("IsConnected() = false after recoverable error")
	}
}

func TestConn_FatalErrorStopsLoop(t *testing.T) {
	c, server := newPipeConn(t)

	errCh := make(chan error, 1)
	c.SetOnError(func(err error) { errCh <- err })

	if _, err := server.Write([]byte("<<<")); err != nil {
		t.Fatalf("server write: %v", err)
	}
	waitDone(t, c)

	select {
	case err := <-errCh:
		if !IsFatal(err) || !errors.Is(err, ErrXMLSyntax) {
			t.Errorf("error = %v, want fatal ErrXMLSyntax", err)
		}
	default:
		t.Fatal("error callback not called")
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after fatal error")
	}
	if !IsFatal(c.Err()) {
		t.Errorf("Err() = %v, want fatal error", c.Err())
	}
	if err := c.GetProperties(context.Background(), "", ""); !errors.Is(err, ErrClosed) {
		t.Errorf("GetProperties() error = %v, want ErrClosed", err)
	}
}

func TestConn_ServerEOF(t *testing.T) {
	c, server := newPipeConn(t)
	_ = server.Close()
	waitDone(t, c)
	if c.Err() != nil {
		t.Errorf("Err() = %v, want nil after clean end", c.Err())
	}
}

func TestConn_CallbackPanicRecovered(t *testing.T) {
	c, server := newPipeConn(t)

	got := make(chan string, 2)
	c.SetOnCommand(func(cmd Command) {
		dp := cmd.(*DelProperty)
		if dp.Device == "boom" {
			panic("handler failure")
		}
		got <- dp.Device
	})

	if _, err := server.Write([]byte(`<delProperty device="boom"/><delProperty device="ok"/>`)); err != nil {
		t.Fatalf("server write: %v", err)
	}
	select {
	case dev := <-got:
		if dev != "ok" {
			t.Errorf("device = %q, want ok", dev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read loop stopped after callback panic")
	}
}

func TestConn_SendWritesRequest(t *testing.T) {
	c, server := newPipeConn(t)

	lines := make(chan string, 1)
	go func() {
		line, err := bufio.NewReader(server).ReadString('\n')
		if err == nil {
			lines <- line
		}
	}()

	if err := c.GetProperties(context.Background(), "Telescope Simulator", ""); err != nil {
		t.Fatalf("GetProperties() error = %v", err)
	}
	want := `<getProperties version="1.7" device="Telescope Simulator"/>` + "\n"
	select {
	case line := <-lines:
		if line != want {
			t.Errorf("server read %q, want %q", line, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive request")
	}

	stats := c.Stats()
	if stats.CommandsTx != 1 || stats.BytesTx != uint64(len(want)) {
		t.Errorf("Stats() = %+v, want 1 command of %d bytes", stats, len(want))
	}
}

func TestConn_SendRejectsServerCommand(t *testing.T) {
	c, _ := newPipeConn(t)
	err := c.Send(context.Background(), &DefTextVector{Device: "d", Name: "n"})
	if !errors.Is(err, ErrUnexpectedTag) {
		t.Errorf("Send() error = %v, want ErrUnexpectedTag", err)
	}
}

func TestConn_SendCancelledContext(t *testing.T) {
	c, _ := newPipeConn(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.GetProperties(ctx, "", ""); !errors.Is(err, context.Canceled) {
		t.Errorf("GetProperties() error = %v, want context.Canceled", err)
	}
}

func TestConn_Close(t *testing.T) {
	c, _ := newPipeConn(t)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	waitDone(t, c)
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := c.GetProperties(context.Background(), "", ""); !errors.Is(err, ErrClosed) {
		t.Errorf("GetProperties() error = %v, want ErrClosed", err)
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("HealthCheck() error = %v, want ErrClosed", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		nc, err := ln.Accept()
		if err != nil {
			return
		}
		defer nc.Close()
		// Reply only once the client has asked, so its callback is set.
		if _, err := bufio.NewReader(nc).ReadString('\n'); err != nil {
			return
		}
		_, _ = io.WriteString(nc, `<message device="Telescope Simulator" message="hello"/>`)
		time.Sleep(200 * time.Millisecond)
	}()

	got := make(chan Command, 1)
	c, err := Dial(context.Background(), Config{Server: "tcp://" + ln.Addr().String()})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()
	c.SetOnCommand(func(cmd Command) { got <- cmd })
	if err := c.GetProperties(context.Background(), "", ""); err != nil {
		t.Fatalf("GetProperties() error = %v", err)
	}

	select {
	case cmd := <-got:
		m, ok := cmd.(*Message)
		if !ok || m.Message != "hello" {
			t.Errorf("command = %+v, want message hello", cmd)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no command received")
	}
}

func TestDial_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = Dial(context.Background(), Config{Server: addr, ConnectTimeout: time.Second})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Dial() error = %v, want ErrConnectionFailed", err)
	}
}
