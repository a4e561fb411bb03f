package device

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/nerrad567/indi-bridge/internal/indi"
)

func TestRegistry_ApplyNotifiesListeners(t *testing.T) {
	r := NewRegistry()

	var got []Change
	r.OnChange(func(c Change) { got = append(got, c) })

	if _, err := r.Apply(simulatorSettings()); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if _, err := r.Apply(&indi.SetNumberVector{Device: "CCD Simulator", Name: "NOPE", State: indi.StateOk}); err == nil {
		t.Fatal("Apply() of undefined property succeeded")
	}

	if len(got) != 1 || got[0].Op != ChangeDefine {
		t.Fatalf("listener saw %d changes, want the single define", len(got))
	}

	stats := r.GetStats()
	if stats.Applied != 1 || stats.Rejected != 1 {
		t.Errorf("Applied/Rejected = %d/%d, want 1/1", stats.Applied, stats.Rejected)
	}
}

func TestRegistry_GettersReturnCopies(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Apply(simulatorSettings()); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	p, err := r.GetProperty("CCD Simulator", "SIMULATOR_SETTINGS")
	if err != nil {
		t.Fatalf("GetProperty() error = %v", err)
	}
	p.Elements[0].Number = 0
	p.State = indi.StateAlert

	d, err := r.GetDevice("CCD Simulator")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	d.Properties["SIMULATOR_SETTINGS"].Label = "changed"
	delete(d.Properties, "SIMULATOR_SETTINGS")

	again, _ := r.GetProperty("CCD Simulator", "SIMULATOR_SETTINGS")
	if again.Elements[0].Number != 1280 || again.State != indi.StateIdle || again.Label != "Settings" {
		t.Errorf("registry state changed through returned copy: %+v", again)
	}
}

func TestRegistry_NotFound(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Apply(debugSwitch()); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	tests := []struct {
		name     string
		device   string
		property string
		wantErr  error
	}{
		{"unknown device", "Focuser", "ABS_POSITION", ErrDeviceNotFound},
		{"unknown property", "CCD Simulator", "ABS_POSITION", ErrPropertyNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.GetProperty(tt.device, tt.property); !errors.Is(err, tt.wantErr) {
				t.Errorf("GetProperty() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if _, err := r.GetDevice("Focuser"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetDevice() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRegistry_ListDevicesSorted(t *testing.T) {
	r := NewRegistry()
	for _, dev := range []string{"Telescope Simulator", "CCD Simulator", "Focuser Simulator"} {
		cmd := debugSwitch()
		cmd.Device = dev
		if _, err := r.Apply(cmd); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}

	devices := r.ListDevices()
	want := []string{"CCD Simulator", "Focuser Simulator", "Telescope Simulator"}
	if len(devices) != len(want) {
		t.Fatalf("ListDevices() returned %d devices, want %d", len(devices), len(want))
	}
	for i, d := range devices {
		if d.Name != want[i] {
			t.Errorf("ListDevices()[%d] = %q, want %q", i, d.Name, want[i])
		}
	}
	if r.GetDeviceCount() != 3 {
		t.Errorf("GetDeviceCount() = %d, want 3", r.GetDeviceCount())
	}
}

func TestRegistry_GetStats(t *testing.T) {
	r := NewRegistry()
	for _, cmd := range []indi.Command{simulatorSettings(), debugSwitch()} {
		if _, err := r.Apply(cmd); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
	}

	stats := r.GetStats()
	if stats.TotalDevices != 1 || stats.TotalProperties != 2 || stats.TotalElements != 5 {
		t.Errorf("GetStats() = %+v", stats)
	}
	if stats.ByKind[indi.KindNumber] != 1 || stats.ByKind[indi.KindSwitch] != 1 {
		t.Errorf("ByKind = %v", stats.ByKind)
	}
	if stats.ByState[indi.StateIdle] != 2 {
		t.Errorf("ByState = %v", stats.ByState)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Apply(simulatorSettings()); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = r.Apply(&indi.SetNumberVector{
				Device: "CCD Simulator", Name: "SIMULATOR_SETTINGS", State: indi.StateBusy,
				Numbers: []indi.OneNumber{{Name: "SIM_XRES", Value: float64(i)}},
			})
		}()
		go func() {
			defer wg.Done()
			_, _ = r.GetProperty("CCD Simulator", "SIMULATOR_SETTINGS")
			_ = r.ListDevices()
			_ = r.GetStats()
		}()
	}
	wg.Wait()

	if got := r.GetStats().Applied; got != 9 {
		t.Errorf("Applied = %d, want 9", got)
	}
}

// countingLogger records how many debug lines it received.
type countingLogger struct {
	noopLogger
	debug atomic.Int64
}

func (l *countingLogger) Debug(string, ...any) { l.debug.Add(1) }

func TestRegistry_SetLoggerDuringApply(t *testing.T) {
	r := NewRegistry()
	logger := &countingLogger{}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.SetLogger(logger)
		}()
		go func() {
			defer wg.Done()
			_, _ = r.Apply(simulatorSettings())
		}()
	}
	wg.Wait()

	if _, err := r.Apply(simulatorSettings()); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if logger.debug.Load() == 0 {
		t.Error("logger set with SetLogger received no debug lines")
	}
}
