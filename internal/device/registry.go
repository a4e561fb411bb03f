package device

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/indi-bridge/internal/indi"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the shared view of remote device state. It wraps a Store
// with a read-write mutex and fans changes out to listeners.
//
// Getters return deep copies; callers can safely modify them.
//
// All public methods are thread-safe.
type Registry struct {
	store   *Store
	storeMu sync.RWMutex

	listeners   []func(Change)
	listenersMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex

	applied atomic.Uint64
	failed  atomic.Uint64
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		store:  NewStore(),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

func (r *Registry) log() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}

// OnChange registers fn to receive every change produced by Apply.
// Listeners run synchronously, in registration order, outside the store
// lock. The Snapshot in a Change is shared between listeners and must
// not be modified.
func (r *Registry) OnChange(fn func(Change)) {
	r.listenersMu.Lock()
	r.listeners = append(r.listeners, fn)
	r.listenersMu.Unlock()
}

// Apply folds cmd into the registry and notifies listeners of the result.
// Listeners are not called when Apply fails.
func (r *Registry) Apply(cmd indi.Command) (Change, error) {
	r.storeMu.Lock()
	change, err := r.store.Apply(cmd)
	r.storeMu.Unlock()

	if err != nil {
		r.failed.Add(1)
		r.log().Debug("command not applied", "command", cmd.Tag(), "error", err)
		return Change{}, err
	}
	r.applied.Add(1)

	switch change.Op {
	case ChangeDefine:
		r.log().Debug("property defined", "device", change.Device, "property", change.Property)
	case ChangeDelete:
		r.log().Info("properties deleted", "device", change.Device, "count", len(change.Deleted))
	}

	r.notify(change)
	return change, nil
}

func (r *Registry) notify(change Change) {
	r.listenersMu.RLock()
	listeners := slices.Clone(r.listeners)
	r.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(change)
	}
}

// GetDevice returns a copy of the named device.
// Returns ErrDeviceNotFound if the device is not known.
func (r *Registry) GetDevice(name string) (*Device, error) {
	r.storeMu.RLock()
	defer r.storeMu.RUnlock()

	d, ok := r.store.Device(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}
	return d.DeepCopy(), nil
}

// ListDevices returns copies of all devices, sorted by name.
func (r *Registry) ListDevices() []Device {
	r.storeMu.RLock()
	defer r.storeMu.RUnlock()

	names := r.store.Devices()
	devices := make([]Device, 0, len(names))
	for _, name := range names {
		d, _ := r.store.Device(name)
		devices = append(devices, *d.DeepCopy())
	}
	return devices
}

// GetProperty returns a copy of one property.
// Returns ErrDeviceNotFound or ErrPropertyNotFound when it is not known.
func (r *Registry) GetProperty(device, name string) (*Property, error) {
	r.storeMu.RLock()
	defer r.storeMu.RUnlock()

	if _, ok := r.store.Device(device); !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, device)
	}
	p, ok := r.store.Property(device, name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrPropertyNotFound, device, name)
	}
	return p.DeepCopy(), nil
}

// GetDeviceCount returns the number of known devices.
func (r *Registry) GetDeviceCount() int {
	r.storeMu.RLock()
	defer r.storeMu.RUnlock()
	return len(r.store.devices)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices    int                        `json:"total_devices"`
	TotalProperties int                        `json:"total_properties"`
	TotalElements   int                        `json:"total_elements"`
	ByKind          map[indi.Kind]int          `json:"by_kind"`
	ByState         map[indi.PropertyState]int `json:"by_state"`
	Applied         uint64                     `json:"commands_applied"`
	Rejected        uint64                     `json:"commands_rejected"`
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.storeMu.RLock()
	defer r.storeMu.RUnlock()

	stats := Stats{
		TotalDevices: len(r.store.devices),
		ByKind:       make(map[indi.Kind]int),
		ByState:      make(map[indi.PropertyState]int),
		Applied:      r.applied.Load(),
		Rejected:     r.failed.Load(),
	}
	for _, d := range r.store.devices {
		for _, p := range d.Properties {
			stats.TotalProperties++
			stats.TotalElements += len(p.Elements)
			stats.ByKind[p.Kind]++
			stats.ByState[p.State]++
		}
	}
	return stats
}
