// internal/health/health.go

// Package health evaluates a unit's status strip from its latest
// instrument snapshot and auxiliary inputs.
package health

import (
	"github.com/tamzrod/fieldrec/internal/snapshot"
)

// Fixed instrument block positions for the health registers.
const (
	idxCamTemp  = 1
	idxAirPress = 2
	idxAirTemp  = 3
)

// Thresholds are the strict upper bounds. A reading passes only while
// strictly below its bound; an Unavailable reading never passes.
type Thresholds struct {
	CamTempMax  float64
	AirPressMax float64
	AirTempMax  float64
}

// Status is one evaluation of the strip. OK is the conjunction of all
// five checks.
type Status struct {
	OK             bool
	CamTempOK      bool
	AirPressOK     bool
	AirTempOK      bool
	AirFilterOK    bool
	CameraSeatedOK bool
}

// Evaluate scores one snapshot against th. airFilter and camSeated
// come from the unit's input pins and pass through unchanged.
func Evaluate(snap snapshot.Snapshot, th Thresholds, airFilter, camSeated bool) Status {
	s := Status{
		CamTempOK:      below(snap.At(idxCamTemp), th.CamTempMax),
		AirPressOK:     below(snap.At(idxAirPress), th.AirPressMax),
		AirTempOK:      below(snap.At(idxAirTemp), th.AirTempMax),
		AirFilterOK:    airFilter,
		CameraSeatedOK: camSeated,
	}
	s.OK = s.CamTempOK && s.AirPressOK && s.AirTempOK && s.AirFilterOK && s.CameraSeatedOK
	return s
}

func below(v snapshot.Value, max float64) bool {
	if !v.Valid {
		return false
	}
	return float64(v.Reading) < max
}
