// internal/config/validate.go
package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration and MUST run after ApplyDefaults.
func Validate(cfg *Config) error {
	f := &cfg.Fieldrec

	// ------------------------------------------------------------
	// GLOBAL SECTIONS
	// ------------------------------------------------------------

	if f.Recording.FPS <= 0 {
		return fmt.Errorf("recording: fps must be > 0")
	}
	if strings.ContainsAny(f.Recording.Container, "./\\") {
		return fmt.Errorf("recording: container %q must be a bare extension", f.Recording.Container)
	}

	if f.Display.FrameIntervalMs < 0 {
		return fmt.Errorf("display: frame_interval_ms must be >= 0")
	}

	if f.Retention.Enabled {
		if f.Retention.KeepDays < 1 {
			return fmt.Errorf("retention: keep_days must be >= 1")
		}
		if _, err := cron.ParseStandard(f.Retention.Schedule); err != nil {
			return fmt.Errorf("retention: schedule %q: %v", f.Retention.Schedule, err)
		}
	}

	if f.MQTT.Enabled {
		if f.MQTT.Broker == "" {
			return fmt.Errorf("mqtt: broker required when enabled")
		}
		if f.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt: qos %d out of range", f.MQTT.QoS)
		}
	}

	// ------------------------------------------------------------
	// UNITS
	// ------------------------------------------------------------

	seen := make(map[string]bool)

	for _, u := range f.Units {
		if u.ID == "" {
			return fmt.Errorf("unit id required")
		}
		if seen[u.ID] {
			return fmt.Errorf("unit %q: duplicate id", u.ID)
		}
		seen[u.ID] = true

		// Label names the recordings directory.
		if strings.ContainsAny(u.Label, "/\\") {
			return fmt.Errorf("unit %q: label %q must not contain path separators", u.ID, u.Label)
		}

		if err := validateFieldBus(u.ID, u.FieldBus); err != nil {
			return err
		}
		if err := validateStream(u.ID, u.Stream); err != nil {
			return err
		}

		if u.RotationMinutes < 0 {
			return fmt.Errorf("unit %q: rotation_minutes must be >= 0", u.ID)
		}

		if err := validateOverlay(u.ID, u.Overlay, int(u.FieldBus.Count)); err != nil {
			return err
		}

		t := u.Thresholds
		if t.CamTempMax <= 0 || t.AirPressMax <= 0 || t.AirTempMax <= 0 {
			return fmt.Errorf("unit %q: thresholds must be > 0", u.ID)
		}

		p := u.Pins
		if p.Control < 0 || p.CameraState < 0 || p.AirFilter < 0 || p.CameraRemoved < 0 {
			return fmt.Errorf("unit %q: pin numbers must be >= 0", u.ID)
		}
	}

	return nil
}

func validateFieldBus(unit string, b FieldBusConfig) error {
	if b.Port == "" {
		return fmt.Errorf("unit %q: fieldbus port required", unit)
	}
	if b.Count < 1 || b.Count > 125 {
		// 125 is the Modbus read-registers ceiling.
		return fmt.Errorf("unit %q: count %d out of range 1..125", unit, b.Count)
	}
	switch strings.ToUpper(strings.TrimSpace(b.Parity)) {
	case "N", "E", "O":
	default:
		return fmt.Errorf("unit %q: parity %q must be N, E or O", unit, b.Parity)
	}
	if b.DataBits != 7 && b.DataBits != 8 {
		return fmt.Errorf("unit %q: data_bits %d must be 7 or 8", unit, b.DataBits)
	}
	if b.StopBits != 1 && b.StopBits != 2 {
		return fmt.Errorf("unit %q: stop_bits %d must be 1 or 2", unit, b.StopBits)
	}
	if b.BaudRate <= 0 {
		return fmt.Errorf("unit %q: baud_rate must be > 0", unit)
	}
	if b.TimeoutMs < 0 || b.IntervalMs < 0 || b.BackoffStartMs < 0 || b.BackoffMaxMs < 0 {
		return fmt.Errorf("unit %q: fieldbus durations must be >= 0", unit)
	}
	if b.FailThreshold < 0 {
		return fmt.Errorf("unit %q: fail_threshold must be >= 0", unit)
	}
	return nil
}

func validateStream(unit string, s StreamConfig) error {
	if s.URL == "" {
		// No video source for this unit; nothing else to check.
		return nil
	}
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("unit %q: stream dimensions must be > 0", unit)
	}
	if s.FPS <= 0 {
		return fmt.Errorf("unit %q: stream fps must be > 0", unit)
	}
	if s.RetryDelayMs <= 0 {
		return fmt.Errorf("unit %q: retry_delay_ms must be > 0", unit)
	}
	if s.FailBudgetMs <= 0 {
		return fmt.Errorf("unit %q: fail_budget_ms must be > 0", unit)
	}
	return nil
}

func validateOverlay(unit string, points []OverlayPointConfig, count int) error {
	used := make(map[int]bool)

	for _, p := range points {
		if p.Index < 1 || p.Index > count {
			return fmt.Errorf("unit %q: overlay index %d out of range 1..%d", unit, p.Index, count)
		}
		if used[p.Index] {
			return fmt.Errorf("unit %q: overlay index %d listed twice", unit, p.Index)
		}
		used[p.Index] = true
	}
	return nil
}
