// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package location

import (
	"fmt"
	"math"
	"time"
)

// MaxAltitudeAccuracy is the ceiling above which a reported altitude
// accuracy is treated as "unknown" and normalized to zero.
const MaxAltitudeAccuracy = 32000

// Fix represents a single resolved position observation.
// Fix values are passed by value and never edited after NewFix returns.
type Fix struct {
	Latitude         float64   `json:"lat"`         // decimal degrees
	Longitude        float64   `json:"lon"`         // decimal degrees
	Accuracy         float64   `json:"accuracy_m"`  // horizontal radius, lower is better
	Altitude         float64   `json:"alt_m"`       // meters
	AltitudeAccuracy float64   `json:"alt_acc_m"`   // meters, 0 = unknown
	Heading          float64   `json:"heading_deg"` // degrees true
	Speed            float64   `json:"speed_mps"`   // meters per second
	Time             time.Time `json:"time"`        // acquisition time
	Source           Kind      `json:"source"`      // source that produced the fix
}

// NewFix validates an observation and builds a Fix from it, stamped with t.
func NewFix(kind Kind, obs Observation, t time.Time) (Fix, error) {
	if math.IsNaN(obs.Accuracy) {
		return Fix{}, ErrInvalidAccuracy
	}
	if math.IsNaN(obs.Latitude) || math.IsNaN(obs.Longitude) {
		return Fix{}, fmt.Errorf("location: invalid coordinates %v,%v", obs.Latitude, obs.Longitude)
	}

	altAcc := obs.AltitudeAccuracy
	if altAcc > MaxAltitudeAccuracy || math.IsNaN(altAcc) {
		altAcc = 0
	}

	return Fix{
		Latitude:         obs.Latitude,
		Longitude:        obs.Longitude,
		Accuracy:         obs.Accuracy,
		Altitude:         obs.Altitude,
		AltitudeAccuracy: altAcc,
		Heading:          obs.Heading,
		Speed:            obs.Speed,
		Time:             t,
		Source:           kind,
	}, nil
}

func (f Fix) String() string {
	return fmt.Sprintf("%s lat=%.6f lon=%.6f acc=%.0fm at %s",
		f.Source, f.Latitude, f.Longitude, f.Accuracy, f.Time.Format(time.RFC3339))
}
