// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package location

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyOwned       = errors.New("location: source already started")
	ErrInvalidAccuracy    = errors.New("location: accuracy is NaN")
	ErrOfflineUnsupported = errors.New("location: unassisted short-range resolution is not implemented")
)

// Kind selects one acquisition method. Kinds are ordered by cost.
type Kind int

const (
	ShortRangeRadio Kind = iota
	Cellular
	Satellite
)

func (k Kind) String() string {
	switch k {
	case ShortRangeRadio:
		return "wifi"
	case Cellular:
		return "cellular"
	case Satellite:
		return "satellite"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// AidMode selects whether a source may use the network to speed up its fix.
type AidMode int

const (
	AidNone AidMode = iota
	AidNetwork
)

func (a AidMode) String() string {
	if a == AidNetwork {
		return "network-assisted"
	}
	return "autonomous"
}

// ParseAidMode accepts "none" or "network".
func ParseAidMode(s string) (AidMode, error) {
	switch s {
	case "none", "autonomous":
		return AidNone, nil
	case "network", "assisted":
		return AidNetwork, nil
	}
	return AidNone, fmt.Errorf("unknown aid mode %q (want none or network)", s)
}

// Fix modes as reported by receivers (NMEA GSA numbering).
const (
	ModeNoFix = 1
	Mode2D    = 2
	Mode3D    = 3
)

// Observation is one raw reading delivered by a driver, before filtering.
type Observation struct {
	Mode             int
	Latitude         float64
	Longitude        float64
	Accuracy         float64 // meters, NaN if unknown
	Altitude         float64
	AltitudeAccuracy float64
	Heading          float64
	Speed            float64 // m/s

	// Failed is set when the driver reports that the session gave up.
	Failed bool
}

// EventType enumerates source notifications.
type EventType int

const (
	EventFix EventType = iota
	EventNoFix
	EventStarted
	EventStopped
)

func (t EventType) String() string {
	switch t {
	case EventFix:
		return "fix"
	case EventNoFix:
		return "no-fix"
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// Event is a notification from a Source. Fix is only set for EventFix.
type Event struct {
	Type EventType
	Kind Kind
	Fix  Fix
}

// Source is one acquisition method.
//
// Start fails with ErrAlreadyOwned when the source is already started; Stop
// on a source that is not started is a no-op. Notifications are delivered to
// every function registered with Subscribe, possibly from another goroutine.
type Source interface {
	Kind() Kind
	Start(aid AidMode) error
	Stop()
	Running() bool
	Subscribe(fn func(Event))
}

// emitter fans events out to subscribers.
type emitter struct {
	subs []func(Event)
}

func (e *emitter) subscribe(fn func(Event)) {
	e.subs = append(e.subs, fn)
}

func (e *emitter) emit(ev Event) {
	for _, fn := range e.subs {
		fn(ev)
	}
}
