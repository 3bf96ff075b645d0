// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package locator

import (
	"fmt"
	"time"

	"github.com/relabs-tech/locator/internal/location"
)

// State is the orchestrator's position in the acquisition cycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAcquiringShortRange
	StateAcquiringCellular
	StateAcquiringSatellite
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAcquiringShortRange:
		return "acquiring-wifi"
	case StateAcquiringCellular:
		return "acquiring-cellular"
	case StateAcquiringSatellite:
		return "acquiring-satellite"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func stateFor(kind location.Kind) State {
	switch kind {
	case location.ShortRangeRadio:
		return StateAcquiringShortRange
	case location.Cellular:
		return StateAcquiringCellular
	default:
		return StateAcquiringSatellite
	}
}

// Snapshot is a point-in-time view of the orchestrator, handed to observers
// after every event it handles.
type Snapshot struct {
	State      State         `json:"state"`
	Owned      string        `json:"owned_source,omitempty"`
	Connected  bool          `json:"connected"`
	CacheDepth int           `json:"cache_depth"`
	Evicted    int           `json:"cache_evicted"`
	LastFix    *location.Fix `json:"last_fix,omitempty"`
	LastUpload time.Time     `json:"last_upload,omitempty"`
	Uploaded   int           `json:"uploaded"`
	Cycles     int           `json:"cycles"`
	Stamp      time.Time     `json:"stamp"`
}
