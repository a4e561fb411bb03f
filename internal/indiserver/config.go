package indiserver

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/indi-bridge/internal/infrastructure/config"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultBinary              = "indiserver"
	DefaultPort                = 7624
	DefaultRestartDelay        = 5 * time.Second
	DefaultMaxRestartDelay     = 5 * time.Minute
	DefaultStableThreshold     = 2 * time.Minute
	DefaultGracefulTimeout     = 10 * time.Second
	DefaultHealthCheckInterval = 30 * time.Second
	DefaultReadyTimeout        = 10 * time.Second
)

// Config describes the indiserver command line and supervision policy.
type Config struct {
	// Binary is the indiserver executable.
	Binary string

	// Port is passed as -p.
	Port int

	// Drivers are the driver executables to load, e.g. "indi_simulator_ccd".
	Drivers []string

	// Verbose adds -v.
	Verbose bool

	// RestartDelay is the first restart delay. Each consecutive failure
	// doubles it up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// MaxRestarts limits consecutive restart attempts. 0 means unlimited.
	MaxRestarts int

	// StableThreshold is how long a run must last for the restart count
	// and backoff to reset.
	StableThreshold time.Duration

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// HealthCheckInterval is how often the port is dialled while running.
	HealthCheckInterval time.Duration

	// ReadyTimeout bounds how long Start waits for the port to accept.
	ReadyTimeout time.Duration
}

// FromConfig maps the indi.server_process section of the YAML config.
func FromConfig(c config.ServerProcessConfig) Config {
	return Config{
		Binary:              c.Binary,
		Port:                c.Port,
		Drivers:             append([]string(nil), c.Drivers...),
		Verbose:             c.Verbose,
		RestartDelay:        time.Duration(c.RestartDelay) * time.Second,
		MaxRestarts:         c.MaxRestarts,
		HealthCheckInterval: c.HealthCheckInterval,
	}
}

func (c *Config) applyDefaults() {
	if c.Binary == "" {
		c.Binary = DefaultBinary
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = DefaultRestartDelay
	}
	if c.MaxRestartDelay <= 0 {
		c.MaxRestartDelay = DefaultMaxRestartDelay
	}
	if c.MaxRestartDelay < c.RestartDelay {
		c.MaxRestartDelay = c.RestartDelay
	}
	if c.StableThreshold <= 0 {
		c.StableThreshold = DefaultStableThreshold
	}
	if c.GracefulTimeout <= 0 {
		c.GracefulTimeout = DefaultGracefulTimeout
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = DefaultHealthCheckInterval
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
}

// Validate checks the command line settings.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if len(c.Drivers) == 0 {
		errs = append(errs, errors.New("at least one driver is required"))
	}
	for _, d := range c.Drivers {
		if err := validateDriver(d); err != nil {
			errs = append(errs, err)
		}
	}
	if c.MaxRestarts < 0 {
		errs = append(errs, errors.New("max restarts cannot be negative"))
	}
	return errors.Join(errs...)
}

// validateDriver rejects names indiserver would read as options.
func validateDriver(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return errors.New("driver name is empty")
	case strings.HasPrefix(name, "-"):
		return fmt.Errorf("driver %q looks like an option", name)
	case strings.ContainsAny(name, "\x00\n"):
		return fmt.Errorf("driver %q contains control characters", name)
	}
	return nil
}

// BuildArgs returns the indiserver arguments: -p PORT [-v] driver...
func (c *Config) BuildArgs() []string {
	args := []string{"-p", strconv.Itoa(c.Port)}
	if c.Verbose {
		args = append(args, "-v")
	}
	return append(args, c.Drivers...)
}

// Address is the loopback address clients use to reach the server.
func (c *Config) Address() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(c.Port))
}
