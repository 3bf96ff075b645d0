// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package location

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultShortRangeAccuracy is the radius assigned to a fix resolved from a
// single access point.
const DefaultShortRangeAccuracy = 50

// AccessPoint is one neighbouring access point seen during a scan.
type AccessPoint struct {
	BSSID     string `json:"bssid"`
	SSID      string `json:"ssid,omitempty"`
	SignalDBm int    `json:"signal_dbm"`
	Channel   int    `json:"channel,omitempty"`
}

// Scanner enumerates neighbouring access points.
type Scanner interface {
	Scan(ctx context.Context) ([]AccessPoint, error)
}

// Resolver looks up the position of a single access point.
type Resolver interface {
	Resolve(ctx context.Context, ap AccessPoint) (lat, lon float64, err error)
}

// ShortRange is the access-point positioning Source. One Start runs one
// scan and resolves the access points in scan order, emitting a Fix for
// each one that resolves and NoFix if none do.
type ShortRange struct {
	scanner  Scanner
	resolver Resolver
	logger   *slog.Logger
	now      func() time.Time

	// Accuracy is the radius given to every resolved fix.
	Accuracy float64

	mu      sync.Mutex
	owned   bool
	session uint64
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	emitter
}

func NewShortRange(scanner Scanner, resolver Resolver, logger *slog.Logger) *ShortRange {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShortRange{
		scanner:  scanner,
		resolver: resolver,
		logger:   logger.With("component", "source", "kind", ShortRangeRadio.String()),
		now:      time.Now,
		Accuracy: DefaultShortRangeAccuracy,
	}
}

func (s *ShortRange) Kind() Kind { return ShortRangeRadio }

func (s *ShortRange) Subscribe(fn func(Event)) { s.subscribe(fn) }

func (s *ShortRange) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owned
}

func (s *ShortRange) Start(aid AidMode) error {
	s.mu.Lock()
	if s.owned {
		s.mu.Unlock()
		return ErrAlreadyOwned
	}
	s.owned = true
	s.session++
	session := s.session

	if aid == AidNone {
		s.mu.Unlock()
		s.logger.Error("cannot resolve access points offline", "error", ErrOfflineUnsupported)
		s.emit(Event{Type: EventStarted, Kind: ShortRangeRadio})
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	s.emit(Event{Type: EventStarted, Kind: ShortRangeRadio})
	go s.run(ctx, session)
	return nil
}

func (s *ShortRange) Stop() {
	s.mu.Lock()
	if !s.owned {
		s.mu.Unlock()
		return
	}
	s.owned = false
	s.session++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	s.emit(Event{Type: EventStopped, Kind: ShortRangeRadio})
}

// Wait blocks until the scan goroutine of the last session has returned.
func (s *ShortRange) Wait() { s.wg.Wait() }

func (s *ShortRange) run(ctx context.Context, session uint64) {
	defer s.wg.Done()

	aps, err := s.scanner.Scan(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("access point scan failed", "error", err)
		s.emitFor(session, Event{Type: EventNoFix, Kind: ShortRangeRadio})
		return
	}
	s.logger.Debug("scan complete", "access_points", len(aps))

	resolved := 0
	for _, ap := range aps {
		lat, lon, err := s.resolver.Resolve(ctx, ap)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logger.Warn("access point lookup failed", "bssid", ap.BSSID, "error", err)
			continue
		}

		obs := Observation{Mode: Mode2D, Latitude: lat, Longitude: lon, Accuracy: s.Accuracy}
		fix, err := NewFix(ShortRangeRadio, obs, s.now())
		if err != nil {
			s.logger.Warn("access point resolved to an invalid fix", "bssid", ap.BSSID, "error", err)
			continue
		}
		resolved++
		s.emitFor(session, Event{Type: EventFix, Kind: ShortRangeRadio, Fix: fix})
	}

	if resolved == 0 {
		s.emitFor(session, Event{Type: EventNoFix, Kind: ShortRangeRadio})
	}
}

// emitFor drops events belonging to a session that has since been stopped.
func (s *ShortRange) emitFor(session uint64, ev Event) {
	s.mu.Lock()
	current := session == s.session
	s.mu.Unlock()
	if current {
		s.emit(ev)
	}
}
