// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package upload

import (
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/locator/internal/location"
)

const LocationKind = "latitude#location"

// Location is the wire form of one fix. Optional fields are omitted when the
// source did not provide them.
type Location struct {
	Kind             string   `json:"kind"`
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	Accuracy         float64  `json:"accuracy"`
	TimestampMs      int64    `json:"timestampMs"`
	Altitude         *float64 `json:"altitude,omitempty"`
	AltitudeAccuracy *float64 `json:"altitudeAccuracy,omitempty"`
	Heading          *float64 `json:"heading,omitempty"`
	Speed            *float64 `json:"speed,omitempty"`
	Source           string   `json:"source,omitempty"`
}

type Entry struct {
	Data Location `json:"data"`
}

// Batch is one published message.
type Batch struct {
	ID      string    `json:"batch"`
	Device  string    `json:"device"`
	Sent    time.Time `json:"sent"`
	Entries []Entry   `json:"entries"`
}

// EntryFor encodes a fix.
func EntryFor(fix location.Fix) Entry {
	loc := Location{
		Kind:        LocationKind,
		Latitude:    fix.Latitude,
		Longitude:   fix.Longitude,
		Accuracy:    fix.Accuracy,
		TimestampMs: fix.Time.UnixMilli(),
		Source:      fix.Source.String(),
	}
	// altitude accuracy 0 means the altitude is unknown
	if fix.AltitudeAccuracy > 0 {
		loc.Altitude = ptr(fix.Altitude)
		loc.AltitudeAccuracy = ptr(fix.AltitudeAccuracy)
	}
	if fix.Speed > 0 {
		loc.Speed = ptr(fix.Speed)
		loc.Heading = ptr(fix.Heading)
	}
	return Entry{Data: loc}
}

// NewBatch wraps fixes under a fresh batch id.
func NewBatch(device string, fixes []location.Fix, sent time.Time) Batch {
	b := Batch{
		ID:      uuid.NewString(),
		Device:  device,
		Sent:    sent.UTC(),
		Entries: make([]Entry, 0, len(fixes)),
	}
	for _, f := range fixes {
		b.Entries = append(b.Entries, EntryFor(f))
	}
	return b
}

func ptr(v float64) *float64 { return &v }
