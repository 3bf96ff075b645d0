// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package location

import (
	"math"
)

// Verdict is the outcome of filtering one observation.
type Verdict int

const (
	// Discard drops the observation silently.
	Discard Verdict = iota
	// Accept turns the observation into a Fix.
	Accept
	// Reject reports an explicit NoFix.
	Reject
)

// Filter decides whether a raw observation is trustworthy.
type Filter interface {
	Check(obs Observation) Verdict
	Reset()
}

// SatelliteFilter drops coarse or inaccurate satellite readings. A 2-D
// reading must be seen Tries times in a row before it is accepted; a 3-D
// reading is accepted as soon as it qualifies.
type SatelliteFilter struct {
	AccuracyLimit float64
	Tries         int

	tries int
}

// NewSatelliteFilter returns a filter with the given ceiling in meters and
// required number of consecutive qualifying 2-D observations.
func NewSatelliteFilter(accuracyLimit float64, tries int) *SatelliteFilter {
	if accuracyLimit <= 0 {
		accuracyLimit = 150
	}
	if tries <= 0 {
		tries = 3
	}
	return &SatelliteFilter{AccuracyLimit: accuracyLimit, Tries: tries}
}

func (f *SatelliteFilter) Check(obs Observation) Verdict {
	if obs.Failed {
		f.tries = 0
		return Reject
	}
	if obs.Mode < Mode2D || math.IsNaN(obs.Accuracy) || obs.Accuracy > f.AccuracyLimit {
		f.tries = 0
		return Discard
	}

	f.tries++
	if obs.Mode < Mode3D && f.tries < f.Tries {
		return Discard
	}

	f.tries = 0
	return Accept
}

func (f *SatelliteFilter) Reset() { f.tries = 0 }

// pending reports how many qualifying observations have been counted so far.
func (f *SatelliteFilter) pending() int { return f.tries }

// CellularFilter accepts any 2-D or better reading within its ceiling and
// rejects readings outside it.
type CellularFilter struct {
	AccuracyLimit float64
}

func NewCellularFilter(accuracyLimit float64) *CellularFilter {
	if accuracyLimit <= 0 {
		accuracyLimit = 2500
	}
	return &CellularFilter{AccuracyLimit: accuracyLimit}
}

func (f *CellularFilter) Check(obs Observation) Verdict {
	if obs.Failed {
		return Reject
	}
	if obs.Mode < Mode2D {
		return Discard
	}
	if math.IsNaN(obs.Accuracy) || obs.Accuracy > f.AccuracyLimit {
		return Reject
	}
	return Accept
}

func (f *CellularFilter) Reset() {}
