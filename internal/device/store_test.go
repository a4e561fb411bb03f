package device

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/indi-bridge/internal/indi"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	s := NewStore()
	s.now = func() time.Time { return testNow }
	return s
}

func mustApply(t *testing.T, s *Store, cmd indi.Command) Change {
	t.Helper()
	change, err := s.Apply(cmd)
	if err != nil {
		t.Fatalf("Apply(%s) error = %v", cmd.Tag(), err)
	}
	return change
}

func uint32p(v uint32) *uint32 { return &v }

func simulatorSettings() *indi.DefNumberVector {
	return &indi.DefNumberVector{
		Device:    "CCD Simulator",
		Name:      "SIMULATOR_SETTINGS",
		Label:     "Settings",
		Group:     "Simulator Config",
		State:     indi.StateIdle,
		Perm:      indi.PermRW,
		Timeout:   uint32p(60),
		Timestamp: time.Date(2022, 8, 12, 5, 52, 27, 0, time.UTC),
		Numbers: []indi.DefNumber{
			{Name: "SIM_XRES", Label: "CCD X resolution", Format: "%4.0f", Min: 512, Max: 8192, Step: 512, Value: 1280},
			{Name: "SIM_YRES", Label: "CCD Y resolution", Format: "%4.0f", Min: 512, Max: 8192, Step: 512, Value: 1024},
			{Name: "SIM_XSIZE", Label: "CCD X Pixel Size", Format: "%4.2f", Min: 1, Max: 30, Step: 5, Value: 5.2},
		},
	}
}

func debugSwitch() *indi.DefSwitchVector {
	return &indi.DefSwitchVector{
		Device: "CCD Simulator",
		Name:   "DEBUG",
		State:  indi.StateIdle,
		Perm:   indi.PermRW,
		Rule:   indi.RuleOneOfMany,
		Switches: []indi.DefSwitch{
			{Name: "ENABLE", Label: "Enable", Value: indi.SwitchOff},
			{Name: "DISABLE", Label: "Disable", Value: indi.SwitchOn},
		},
	}
}

func TestStore_DefineCreatesDevice(t *testing.T) {
	s := newTestStore()
	change := mustApply(t, s, simulatorSettings())

	if change.Op != ChangeDefine || change.Device != "CCD Simulator" || change.Property != "SIMULATOR_SETTINGS" {
		t.Errorf("Change = %+v", change)
	}
	if len(change.Elements) != 3 {
		t.Errorf("Change.Elements = %v, want 3 names", change.Elements)
	}

	p, ok := s.Property("CCD Simulator", "SIMULATOR_SETTINGS")
	if !ok {
		t.Fatal("Property() not found after define")
	}
	if p.Kind != indi.KindNumber || p.Perm != indi.PermRW || *p.Timeout != 60 {
		t.Errorf("Property header = %+v", p)
	}
	e, ok := p.Element("SIM_YRES")
	if !ok || e.Number != 1024 || e.Max != 8192 {
		t.Errorf("Element(SIM_YRES) = %+v, %v", e, ok)
	}
	if got := s.Devices(); len(got) != 1 || got[0] != "CCD Simulator" {
		t.Errorf("Devices() = %v", got)
	}
}

func TestStore_SetUpdatesOnlyNamedElements(t *testing.T) {
	s := newTestStore()
	mustApply(t, s, simulatorSettings())

	change := mustApply(t, s, &indi.SetNumberVector{
		Device:    "CCD Simulator",
		Name:      "SIMULATOR_SETTINGS",
		State:     indi.StateOk,
		Timestamp: time.Date(2022, 10, 1, 21, 21, 10, 0, time.UTC),
		Numbers:   []indi.OneNumber{{Name: "SIM_YRES", Value: 2048}},
	})
	if change.Op != ChangeUpdate || len(change.Elements) != 1 || change.Elements[0] != "SIM_YRES" {
		t.Errorf("Change = %+v", change)
	}

	p, _ := s.Property("CCD Simulator", "SIMULATOR_SETTINGS")
	want := map[string]float64{"SIM_XRES": 1280, "SIM_YRES": 2048, "SIM_XSIZE": 5.2}
	for name, v := range want {
		e, _ := p.Element(name)
		if e.Number != v {
			t.Errorf("%s = %v, want %v", name, e.Number, v)
		}
	}
	if p.State != indi.StateOk {
		t.Errorf("State = %q, want Ok", p.State)
	}
	if p.Label != "Settings" {
		t.Errorf("Label = %q, want definition label kept", p.Label)
	}
	if *p.Timeout != 60 {
		t.Errorf("Timeout = %d, want 60 kept when absent from set", *p.Timeout)
	}
}

func TestStore_NewOmitsStateKeepsHeader(t *testing.T) {
	s := newTestStore()
	mustApply(t, s, debugSwitch())

	mustApply(t, s, &indi.NewSwitchVector{
		Device:   "CCD Simulator",
		Name:     "DEBUG",
		Switches: []indi.OneSwitch{{Name: "ENABLE", Value: indi.SwitchOn}, {Name: "DISABLE", Value: indi.SwitchOff}},
	})

	p, _ := s.Property("CCD Simulator", "DEBUG")
	if p.State != indi.StateIdle {
		t.Errorf("State = %q, want Idle unchanged by new vector", p.State)
	}
	on, _ := p.Element("ENABLE")
	if on.Switch != indi.SwitchOn {
		t.Errorf("ENABLE = %q, want On", on.Switch)
	}
}

func TestStore_RedefinitionReplaces(t *testing.T) {
	s := newTestStore()
	mustApply(t, s, simulatorSettings())

	mustApply(t, s, &indi.DefNumberVector{
		Device: "CCD Simulator",
		Name:   "SIMULATOR_SETTINGS",
		State:  indi.StateBusy,
		Perm:   indi.PermRO,
		Numbers: []indi.DefNumber{
			{Name: "SIM_FOCUS", Format: "%g", Min: 0, Max: 100, Step: 1, Value: 7},
		},
	})

	p, _ := s.Property("CCD Simulator", "SIMULATOR_SETTINGS")
	if len(p.Elements) != 1 {
		t.Fatalf("len(Elements) = %d, want 1 after redefinition", len(p.Elements))
	}
	if _, ok := p.Element("SIM_XRES"); ok {
		t.Error("old element survived redefinition")
	}
	if p.Label != "" || p.Timeout != nil {
		t.Errorf("header merged instead of replaced: label=%q timeout=%v", p.Label, p.Timeout)
	}
}

func TestStore_UpdateErrors(t *testing.T) {
	tests := []struct {
		name    string
		cmd     indi.Command
		wantErr error
	}{
		{
			name:    "unknown device",
			cmd:     &indi.SetNumberVector{Device: "Focuser", Name: "ABS_POSITION", State: indi.StateOk},
			wantErr: ErrPropertyNotFound,
		},
		{
			name:    "unknown property",
			cmd:     &indi.SetNumberVector{Device: "CCD Simulator", Name: "CCD_TEMPERATURE", State: indi.StateOk},
			wantErr: ErrPropertyNotFound,
		},
		{
			name: "unknown element",
			cmd: &indi.SetNumberVector{Device: "CCD Simulator", Name: "SIMULATOR_SETTINGS", State: indi.StateAlert,
				Numbers: []indi.OneNumber{{Name: "SIM_XRES", Value: 1}, {Name: "SIM_BOGUS", Value: 2}}},
			wantErr: ErrElementNotFound,
		},
		{
			name: "kind mismatch",
			cmd: &indi.SetTextVector{Device: "CCD Simulator", Name: "SIMULATOR_SETTINGS", State: indi.StateAlert,
				Texts: []indi.OneText{{Name: "SIM_XRES", Value: "x"}}},
			wantErr: ErrKindMismatch,
		},
		{
			name:    "delete unknown device",
			cmd:     &indi.DelProperty{Device: "Focuser"},
			wantErr: ErrDeviceNotFound,
		},
		{
			name:    "delete unknown property",
			cmd:     &indi.DelProperty{Device: "CCD Simulator", Name: "CCD_TEMPERATURE"},
			wantErr: ErrPropertyNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore()
			mustApply(t, s, simulatorSettings())

			_, err := s.Apply(tt.cmd)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Apply() error = %v, want %v", err, tt.wantErr)
			}

			p, _ := s.Property("CCD Simulator", "SIMULATOR_SETTINGS")
			x, _ := p.Element("SIM_XRES")
			if x.Number != 1280 || p.State != indi.StateIdle {
				t.Errorf("store mutated by failed command: SIM_XRES=%v state=%q", x.Number, p.State)
			}
			if _, ok := s.Device("Focuser"); ok {
				t.Error("failed command created a device")
			}
		})
	}
}

func TestStore_DeleteProperty(t *testing.T) {
	s := newTestStore()
	mustApply(t, s, simulatorSettings())
	mustApply(t, s, debugSwitch())

	change := mustApply(t, s, &indi.DelProperty{Device: "CCD Simulator", Name: "DEBUG"})
	if change.Op != ChangeDelete || len(change.Deleted) != 1 || change.Deleted[0] != "DEBUG" {
		t.Errorf("Change = %+v", change)
	}
	if !change.Timestamp.Equal(testNow) {
		t.Errorf("Timestamp = %v, want decode-time default %v", change.Timestamp, testNow)
	}
	if _, ok := s.Property("CCD Simulator", "DEBUG"); ok {
		t.Error("DEBUG still present")
	}
	if _, ok := s.Property("CCD Simulator", "SIMULATOR_SETTINGS"); !ok {
		t.Error("SIMULATOR_SETTINGS removed with DEBUG")
	}
}

func TestStore_DeleteDevice(t *testing.T) {
	s := newTestStore()
	mustApply(t, s, simulatorSettings())
	mustApply(t, s, debugSwitch())
	mustApply(t, s, &indi.DefTextVector{
		Device: "Telescope Simulator", Name: "DRIVER_INFO", State: indi.StateIdle, Perm: indi.PermRO,
		Texts: []indi.DefText{{Name: "DRIVER_NAME", Value: "Telescope Simulator"}},
	})

	change := mustApply(t, s, &indi.DelProperty{Device: "CCD Simulator"})
	if len(change.Deleted) != 2 || change.Deleted[0] != "DEBUG" || change.Deleted[1] != "SIMULATOR_SETTINGS" {
		t.Errorf("Deleted = %v, want sorted [DEBUG SIMULATOR_SETTINGS]", change.Deleted)
	}
	if _, ok := s.Device("CCD Simulator"); ok {
		t.Error("device still present")
	}
	if got := s.Devices(); len(got) != 1 || got[0] != "Telescope Simulator" {
		t.Errorf("Devices() = %v", got)
	}
}

func TestStore_NonMutatingCommands(t *testing.T) {
	s := newTestStore()
	change := mustApply(t, s, &indi.Message{Device: "CCD Simulator", Message: "exposure done", Timestamp: testNow})
	if change.Op != ChangeNone || change.Message != "exposure done" {
		t.Errorf("Change = %+v", change)
	}
	change = mustApply(t, s, &indi.GetProperties{Version: indi.ProtocolVersion})
	if change.Op != ChangeNone {
		t.Errorf("Change.Op = %q, want none", change.Op)
	}
	if len(s.Devices()) != 0 {
		t.Errorf("Devices() = %v, want none", s.Devices())
	}
}

func TestStore_LightAndBLOB(t *testing.T) {
	s := newTestStore()
	mustApply(t, s, &indi.DefLightVector{
		Device: "Dome", Name: "STATUS", State: indi.StateIdle,
		Lights: []indi.DefLight{{Name: "PARKED", Value: indi.StateOk}, {Name: "MOVING", Value: indi.StateIdle}},
	})
	mustApply(t, s, &indi.SetLightVector{Device: "Dome", Name: "STATUS", State: indi.StateBusy,
		Lights: []indi.OneLight{{Name: "MOVING", Value: indi.StateBusy}}})

	p, _ := s.Property("Dome", "STATUS")
	if p.Writable() {
		t.Error("light property reported writable")
	}
	if e, _ := p.Element("MOVING"); e.Light != indi.StateBusy {
		t.Errorf("MOVING = %q, want Busy", e.Light)
	}

	mustApply(t, s, &indi.DefBLOBVector{
		Device: "CCD Simulator", Name: "CCD1", State: indi.StateIdle, Perm: indi.PermRO,
		BLOBs: []indi.DefBLOB{{Name: "CCD1", Label: "Image"}},
	})
	data := []byte("SIMPLE  =                    T")
	mustApply(t, s, &indi.SetBLOBVector{Device: "CCD Simulator", Name: "CCD1", State: indi.StateOk,
		BLOBs: []indi.OneBLOB{{Name: "CCD1", Size: int64(len(data)), Format: ".fits", Data: data}}})

	data[0] = 'X'
	b, _ := s.Property("CCD Simulator", "CCD1")
	e, _ := b.Element("CCD1")
	if string(e.BLOB[:6]) != "SIMPLE" || e.Format != ".fits" || e.Size != int64(len(data)) {
		t.Errorf("blob element = {Format:%q Size:%d}, payload aliased=%v", e.Format, e.Size, e.BLOB[0] == 'X')
	}
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s := newTestStore()
	change := mustApply(t, s, simulatorSettings())
	change.Snapshot.Elements[0].Number = -1
	*change.Snapshot.Timeout = 1

	p, _ := s.Property("CCD Simulator", "SIMULATOR_SETTINGS")
	if p.Elements[0].Number != 1280 || *p.Timeout != 60 {
		t.Error("mutating Change.Snapshot changed the store")
	}
}

func TestElement_NonFiniteNumbers(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  string
	}{
		{"finite", 1.5, `"value":1.5`},
		{"nan", math.NaN(), `"value":"NaN"`},
		{"positive infinity", math.Inf(1), `"value":"+Inf"`},
		{"negative infinity", math.Inf(-1), `"value":"-Inf"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			change, err := s.Apply(&indi.DefNumberVector{
				Device: "Focuser Simulator", Name: "FOCUS_TEMPERATURE", State: indi.StateOk, Perm: indi.PermRO,
				Numbers: []indi.DefNumber{{Name: "TEMPERATURE", Format: "%6.2f", Value: tt.value}},
			})
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}

			data, err := json.Marshal(change.Snapshot)
			if err != nil {
				t.Fatalf("json.Marshal() error = %v", err)
			}
			if !strings.Contains(string(data), tt.want) {
				t.Errorf("json.Marshal() = %s, want it to contain %s", data, tt.want)
			}

			rows := historyRows(change)
			if len(rows) != 1 {
				t.Fatalf("historyRows() = %d rows, want 1", len(rows))
			}
			finite := !math.IsNaN(tt.value) && !math.IsInf(tt.value, 0)
			if finite && (rows[0].ValueNum == nil || *rows[0].ValueNum != tt.value) {
				t.Errorf("ValueNum = %v, want %v", rows[0].ValueNum, tt.value)
			}
			if !finite && (rows[0].ValueNum != nil || rows[0].ValueText == nil) {
				t.Errorf("row = {ValueNum:%v ValueText:%v}, want text only", rows[0].ValueNum, rows[0].ValueText)
			}
		})
	}
}
