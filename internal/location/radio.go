// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package location

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Device is the driver behind a Radio: a satellite receiver or a modem.
// While started it hands raw observations to deliver, from any goroutine.
type Device interface {
	Start(aid AidMode, deliver func(Observation)) error
	Stop() error
}

// Radio is a Source backed by a Device whose raw observations are screened
// by a Filter before they become fixes.
//
// A Radio also follows sessions it did not start: observations passed to
// Observe while the radio is not owned update the running flag and raise the
// same Started/Stopped events an owned session would.
type Radio struct {
	kind   Kind
	dev    Device
	filter Filter
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	owned   bool
	running bool
	session uint64

	emitter
}

// NewRadio builds a radio source of the given kind.
func NewRadio(kind Kind, dev Device, filter Filter, logger *slog.Logger) *Radio {
	if logger == nil {
		logger = slog.Default()
	}
	return &Radio{
		kind:   kind,
		dev:    dev,
		filter: filter,
		logger: logger.With("component", "source", "kind", kind.String()),
		now:    time.Now,
	}
}

func (r *Radio) Kind() Kind { return r.kind }

func (r *Radio) Subscribe(fn func(Event)) { r.subscribe(fn) }

// Running reports whether the underlying device is producing data, whoever
// started it.
func (r *Radio) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// isOwned reports whether this process started the current session.
func (r *Radio) isOwned() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owned
}

func (r *Radio) Start(aid AidMode) error {
	r.mu.Lock()
	if r.owned {
		r.mu.Unlock()
		return ErrAlreadyOwned
	}
	r.owned = true
	r.session++
	session := r.session
	r.filter.Reset()
	r.mu.Unlock()

	r.logger.Debug("starting device", "aid", aid.String())
	err := r.dev.Start(aid, func(obs Observation) { r.observe(session, obs) })
	if err != nil {
		r.mu.Lock()
		r.owned = false
		r.session++
		r.mu.Unlock()
		return fmt.Errorf("%s start: %w", r.kind, err)
	}

	r.mu.Lock()
	wasRunning := r.running
	r.running = true
	r.mu.Unlock()

	if !wasRunning {
		r.emit(Event{Type: EventStarted, Kind: r.kind})
	}
	return nil
}

func (r *Radio) Stop() {
	r.mu.Lock()
	if !r.owned {
		r.mu.Unlock()
		return
	}
	r.owned = false
	r.session++
	wasRunning := r.running
	r.running = false
	r.filter.Reset()
	r.mu.Unlock()

	if err := r.dev.Stop(); err != nil {
		r.logger.Warn("device stop failed", "error", err)
	}
	if wasRunning {
		r.emit(Event{Type: EventStopped, Kind: r.kind})
	}
}

// Observe feeds an observation from a session this process does not control.
func (r *Radio) Observe(obs Observation) {
	r.observe(0, obs)
}

func (r *Radio) observe(session uint64, obs Observation) {
	var events []Event

	r.mu.Lock()
	if session != 0 && session != r.session {
		// Trailing data from a session that was already stopped.
		r.mu.Unlock()
		return
	}

	if !r.owned {
		if obs.Mode < Mode2D {
			if r.running {
				r.logger.Debug("external stop")
				r.running = false
				events = append(events, Event{Type: EventStopped, Kind: r.kind})
			}
		} else if !r.running {
			r.logger.Debug("external start")
			r.running = true
			events = append(events, Event{Type: EventStarted, Kind: r.kind})
		}
	}

	r.logger.Debug("raw observation",
		"mode", obs.Mode, "lat", obs.Latitude, "lon", obs.Longitude,
		"accuracy", obs.Accuracy, "alt", obs.Altitude, "alt_accuracy", obs.AltitudeAccuracy,
		"failed", obs.Failed)

	switch r.filter.Check(obs) {
	case Accept:
		fix, err := NewFix(r.kind, obs, r.now())
		if err != nil {
			r.logger.Debug("dropping observation", "error", err)
			break
		}
		r.logger.Debug("emitting fix", "fix", fix.String())
		events = append(events, Event{Type: EventFix, Kind: r.kind, Fix: fix})
	case Reject:
		r.logger.Debug("observation rejected")
		events = append(events, Event{Type: EventNoFix, Kind: r.kind})
	}
	r.mu.Unlock()

	for _, ev := range events {
		r.emit(ev)
	}
}
