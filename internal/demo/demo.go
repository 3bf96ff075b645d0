// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package demo provides simulated drivers so the daemon can run on a
// machine without radios.
package demo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/locator/internal/location"
)

// Track is a position slowly circling a center point.
type Track struct {
	Lat, Lon float64
	// Radius of the circle in degrees.
	Radius float64
	// Period of one lap.
	Period time.Duration

	start time.Time
}

func NewTrack(lat, lon float64) *Track {
	return &Track{Lat: lat, Lon: lon, Radius: 0.01, Period: time.Hour, start: time.Now()}
}

// At returns the position at t.
func (t *Track) At(at time.Time) (float64, float64) {
	phase := 2 * math.Pi * at.Sub(t.start).Seconds() / t.Period.Seconds()
	return t.Lat + t.Radius*math.Sin(phase), t.Lon + t.Radius*math.Cos(phase)
}

// Device simulates a radio: after Warmup coarse readings it produces 3-D
// readings of the given accuracy every Interval.
type Device struct {
	Track    *Track
	Interval time.Duration
	Warmup   int
	Accuracy float64
	// FailStarts makes the next n starts fail.
	FailStarts int

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (d *Device) Start(aid location.AidMode, deliver func(location.Observation)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return errors.New("demo: device already running")
	}
	if d.FailStarts > 0 {
		d.FailStarts--
		return errors.New("demo: device unavailable")
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.wg.Add(1)
	go d.run(ctx, deliver)
	return nil
}

func (d *Device) Stop() error {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
		d.wg.Wait()
	}
	return nil
}

func (d *Device) run(ctx context.Context, deliver func(location.Observation)) {
	defer d.wg.Done()
	interval := d.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 0; ; n++ {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			lat, lon := d.Track.At(now)
			obs := location.Observation{
				Mode:             location.Mode3D,
				Latitude:         lat,
				Longitude:        lon,
				Accuracy:         d.Accuracy,
				Altitude:         80,
				AltitudeAccuracy: d.Accuracy * 1.5,
			}
			if n < d.Warmup {
				obs.Mode = location.Mode2D
				obs.Accuracy = d.Accuracy * 4
				obs.AltitudeAccuracy = math.NaN()
			}
			deliver(obs)
		}
	}
}

// Scanner reports a fixed neighbourhood of access points.
type Scanner struct {
	APs   []location.AccessPoint
	Delay time.Duration
}

func (s *Scanner) Scan(ctx context.Context) ([]location.AccessPoint, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.Delay):
	}
	return append([]location.AccessPoint(nil), s.APs...), nil
}

// Resolver knows the position of the access points listed in Known, near
// the track.
type Resolver struct {
	Track *Track
	Known map[string]bool
}

func (r *Resolver) Resolve(_ context.Context, ap location.AccessPoint) (float64, float64, error) {
	if !r.Known[ap.BSSID] {
		return 0, 0, fmt.Errorf("demo: %s not in database", ap.BSSID)
	}
	lat, lon := r.Track.At(time.Now())
	return lat, lon, nil
}

// Network comes up Delay after a request and drops again after Linger.
type Network struct {
	Delay  time.Duration
	Linger time.Duration

	mu        sync.Mutex
	connected bool
	subs      []func(bool)
	pending   bool
	down      *time.Timer
}

func (n *Network) Connected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.connected
}

func (n *Network) Subscribe(fn func(bool)) {
	n.mu.Lock()
	n.subs = append(n.subs, fn)
	n.mu.Unlock()
}

func (n *Network) Request() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.connected || n.pending {
		return
	}
	n.pending = true
	time.AfterFunc(n.Delay, func() { n.set(true) })
}

func (n *Network) set(up bool) {
	n.mu.Lock()
	n.pending = false
	changed := n.connected != up
	n.connected = up
	if up && n.Linger > 0 {
		if n.down != nil {
			n.down.Stop()
		}
		n.down = time.AfterFunc(n.Linger, func() { n.set(false) })
	}
	subs := append([]func(bool){}, n.subs...)
	n.mu.Unlock()

	if changed {
		for _, fn := range subs {
			fn(up)
		}
	}
}

// LogSink accepts every batch and logs it.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Upload(_ context.Context, fixes []location.Fix) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, f := range fixes {
		logger.Info("demo upload", "component", "upload", "fix", f.String())
	}
	return nil
}

// Neighbourhood returns a scanner and resolver pair where every other
// access point resolves.
func Neighbourhood(track *Track) (*Scanner, *Resolver) {
	s := &Scanner{Delay: 500 * time.Millisecond}
	r := &Resolver{Track: track, Known: map[string]bool{}}
	for i := 0; i < 4; i++ {
		bssid := fmt.Sprintf("02:00:00:00:00:%02x", i)
		s.APs = append(s.APs, location.AccessPoint{BSSID: bssid, SSID: fmt.Sprintf("demo-%d", i), SignalDBm: -40 - 10*i})
		if i%2 == 1 {
			r.Known[bssid] = true
		}
	}
	return s, r
}

// ForeignSession imitates another program switching the satellite receiver
// on every Every, for Length, and feeds what it would see to observe.
type ForeignSession struct {
	Track    *Track
	Every    time.Duration
	Length   time.Duration
	Interval time.Duration
	Accuracy float64
}

// Run blocks until ctx is cancelled.
func (f ForeignSession) Run(ctx context.Context, observe func(location.Observation)) {
	cycle := time.NewTicker(f.Every)
	defer cycle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cycle.C:
		}

		end := time.After(f.Length)
		tick := time.NewTicker(f.Interval)
	session:
		for {
			select {
			case <-ctx.Done():
				tick.Stop()
				return
			case <-end:
				break session
			case now := <-tick.C:
				lat, lon := f.Track.At(now)
				observe(location.Observation{
					Mode:             location.Mode3D,
					Latitude:         lat,
					Longitude:        lon,
					Accuracy:         f.Accuracy,
					AltitudeAccuracy: math.NaN(),
				})
			}
		}
		tick.Stop()
		observe(location.Observation{Mode: location.ModeNoFix})
	}
}
