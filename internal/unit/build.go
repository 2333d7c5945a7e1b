// internal/unit/build.go

package unit

import (
	"time"

	"github.com/tamzrod/fieldrec/internal/config"
	"github.com/tamzrod/fieldrec/internal/health"
	"github.com/tamzrod/fieldrec/internal/pins"
	"github.com/tamzrod/fieldrec/internal/record"
	"github.com/tamzrod/fieldrec/internal/stream"
	"github.com/tamzrod/fieldrec/internal/stream/rtsp"
)

// Config-to-worker mappings. Pure, so reconfigure reuses them.

func assignment(p config.PinConfig) pins.Assignment {
	return pins.Assignment{
		Control:       p.Control,
		CameraState:   p.CameraState,
		AirFilter:     p.AirFilter,
		CameraRemoved: p.CameraRemoved,
	}
}

func thresholds(t config.ThresholdConfig) health.Thresholds {
	return health.Thresholds{
		CamTempMax:  t.CamTempMax,
		AirPressMax: t.AirPressMax,
		AirTempMax:  t.AirTempMax,
	}
}

func overlayPoints(list []config.OverlayPointConfig) []record.OverlayPoint {
	out := make([]record.OverlayPoint, 0, len(list))
	for _, p := range list {
		out = append(out, record.OverlayPoint{
			Index:   p.Index,
			Enabled: p.Enabled,
			Label:   p.Label,
		})
	}
	return out
}

func streamConfig(u config.UnitConfig) stream.Config {
	return stream.Config{
		UnitID:     u.ID,
		RetryDelay: time.Duration(u.Stream.RetryDelayMs) * time.Millisecond,
		FailBudget: time.Duration(u.Stream.FailBudgetMs) * time.Millisecond,
	}
}

func rtspConfig(u config.UnitConfig) rtsp.Config {
	return rtsp.Config{
		UnitID: u.ID,
		URL:    u.Stream.URL,
		Width:  u.Stream.Width,
		Height: u.Stream.Height,
		FPS:    u.Stream.FPS,
	}
}

func recordConfig(u config.UnitConfig, rec config.RecordingConfig) record.Config {
	return record.Config{
		UnitID:    u.ID,
		Camera:    u.Label,
		Root:      rec.Root,
		Container: rec.Container,
		FPS:       rec.FPS,
		Rotation:  time.Duration(u.RotationMinutes) * time.Minute,
	}
}
