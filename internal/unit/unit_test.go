// internal/unit/unit_test.go

package unit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tamzrod/fieldrec/internal/config"
	"github.com/tamzrod/fieldrec/internal/display"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDriver records output writes and serves canned input levels.
type fakeDriver struct {
	outputs map[int]bool
	inputs  map[int]bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{outputs: map[int]bool{}, inputs: map[int]bool{}}
}

func (d *fakeDriver) SetOutput(pin int, high bool) error {
	d.outputs[pin] = high
	return nil
}

func (d *fakeDriver) ReadInput(pin int) (bool, error) {
	return d.inputs[pin], nil
}

// unitConfig is a field-bus-only unit pointed at an unopenable port,
// with every delay shrunk so reconnect cycles run fast.
func unitConfig() config.UnitConfig {
	return config.UnitConfig{
		ID:    "kiln-1",
		Label: "Kiln A",
		FieldBus: config.FieldBusConfig{
			Port:           "/dev/null/absent",
			SlaveID:        1,
			BaseRegister:   76,
			Count:          4,
			BaudRate:       9600,
			Parity:         "O",
			DataBits:       8,
			StopBits:       1,
			TimeoutMs:      50,
			IntervalMs:     20,
			FailThreshold:  2,
			BackoffStartMs: 20,
			BackoffMaxMs:   40,
		},
		RotationMinutes: 60,
		Thresholds:      config.ThresholdConfig{CamTempMax: 60, AirPressMax: 3, AirTempMax: 40},
		Pins:            config.PinConfig{Control: 27, AirFilter: 6, CameraRemoved: 13},
	}
}

func testDeps(t *testing.T, drv *fakeDriver) Deps {
	t.Helper()
	return Deps{
		Recording: config.RecordingConfig{Root: t.TempDir(), Container: "avi", FPS: 20},
		Bus:       display.NewBus(0, testLogger()),
		Pins:      drv,
		Log:       testLogger(),
	}
}

func waitEvent(t *testing.T, ch <-chan display.Event, typ string, timeout time.Duration) display.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			if ev.EventType() == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event within %v", typ, timeout)
			return nil
		}
	}
}

func TestBuild_Validation(t *testing.T) {
	deps := testDeps(t, newFakeDriver())

	bad := unitConfig()
	bad.ID = ""
	if _, err := Build(bad, deps); err == nil {
		t.Fatal("missing id accepted")
	}

	deps.Bus = nil
	if _, err := Build(unitConfig(), deps); err == nil {
		t.Fatal("missing bus accepted")
	}
}

func TestBuild_FieldBusOnlyUnit(t *testing.T) {
	n, err := Build(unitConfig(), testDeps(t, newFakeDriver()))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if n.ID() != "kiln-1" {
		t.Fatalf("id = %q", n.ID())
	}
	if n.recorder != nil || n.opener != nil {
		t.Fatal("unit without a stream url built video workers")
	}
}

func TestUnit_RestartStreamWithoutStream(t *testing.T) {
	n, err := Build(unitConfig(), testDeps(t, newFakeDriver()))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := n.RestartStream(); err == nil {
		t.Fatal("restart without a configured stream succeeded")
	}
}

func TestUnit_RestartStreamNotRunning(t *testing.T) {
	u := unitConfig()
	u.Stream = config.StreamConfig{
		URL: "rtsp://203.0.113.9/kiln", Width: 320, Height: 240, FPS: 15,
		RetryDelayMs: 20, FailBudgetMs: 200,
	}
	n, err := Build(u, testDeps(t, newFakeDriver()))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if n.recorder == nil || n.opener == nil {
		t.Fatal("stream unit missing video workers")
	}
	if err := n.RestartStream(); err == nil {
		t.Fatal("restart before start succeeded")
	}
}

func TestUnit_StartPublishesOfflineSnapshots(t *testing.T) {
	deps := testDeps(t, newFakeDriver())
	n, err := Build(unitConfig(), deps)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	events := make(chan display.Event, 64)
	if err := deps.Bus.Subscribe("test", events); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer n.Stop()

	ev := waitEvent(t, events, "snapshot-updated", 3*time.Second)
	snap := ev.(display.SnapshotUpdated).Snap
	if snap.Len() != 4 {
		t.Fatalf("snapshot len = %d, want 4", snap.Len())
	}
	if snap.At(1).Valid {
		t.Fatal("unreachable endpoint produced a valid reading")
	}
}

func TestUnit_StopIdempotent(t *testing.T) {
	n, err := Build(unitConfig(), testDeps(t, newFakeDriver()))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	n.Stop() // not started yet

	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := n.Start(context.Background()); err == nil {
		t.Fatal("second start accepted while running")
	}
	n.Stop()
	n.Stop()

	// A stopped unit starts again cleanly.
	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	n.Stop()
}

func TestUnit_InsertRetractCamera(t *testing.T) {
	drv := newFakeDriver()
	n, err := Build(unitConfig(), testDeps(t, drv))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := n.InsertCamera(); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if high, ok := drv.outputs[27]; !ok || !high {
		t.Fatalf("insert left pin 27 = %v (set=%v)", high, ok)
	}
	if err := n.RetractCamera(); err != nil {
		t.Fatalf("retract: %v", err)
	}
	if high := drv.outputs[27]; high {
		t.Fatal("retract left pin 27 high")
	}
}

func TestUnit_ReconfigureRejectsWrongID(t *testing.T) {
	n, err := Build(unitConfig(), testDeps(t, newFakeDriver()))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	other := unitConfig()
	other.ID = "kiln-2"
	if err := n.Reconfigure(other); err == nil {
		t.Fatal("foreign unit config accepted")
	}
}

func TestUnit_ReconfigureSwapsPins(t *testing.T) {
	drv := newFakeDriver()
	n, err := Build(unitConfig(), testDeps(t, drv))
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	u := unitConfig()
	u.Pins.Control = 5
	if err := n.Reconfigure(u); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	if err := n.InsertCamera(); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if high := drv.outputs[5]; !high {
		t.Fatal("insert did not drive the reassigned pin")
	}
	if _, touched := drv.outputs[27]; touched {
		t.Fatal("insert drove the old pin")
	}
}

func TestUnit_ReconfigureKeepsLabelUntilRestart(t *testing.T) {
	n, err := Build(unitConfig(), testDeps(t, newFakeDriver()))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	u := unitConfig()
	u.Label = "Kiln B"
	if err := n.Reconfigure(u); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	if n.cfg.Label != "Kiln A" {
		t.Fatalf("label = %q, want the original until restart", n.cfg.Label)
	}
}

func TestUnit_ReconfigureRestartsPoller(t *testing.T) {
	deps := testDeps(t, newFakeDriver())
	n, err := Build(unitConfig(), deps)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer n.Stop()

	u := unitConfig()
	u.FieldBus.Port = "/dev/null/still-absent"
	if err := n.Reconfigure(u); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	if n.cfg.FieldBus.Port != u.FieldBus.Port {
		t.Fatalf("port = %q after reconfigure", n.cfg.FieldBus.Port)
	}

	// The replacement poller keeps publishing.
	events := make(chan display.Event, 64)
	if err := deps.Bus.Subscribe("test", events); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	waitEvent(t, events, "snapshot-updated", 3*time.Second)
}
