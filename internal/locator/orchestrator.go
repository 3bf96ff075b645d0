// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package locator sequences location sources from cheapest to costliest,
// caches what they find and hands the cache to an upload sink.
package locator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/relabs-tech/locator/internal/cache"
	"github.com/relabs-tech/locator/internal/location"
)

// Connectivity reports network reachability. Request asks the platform to
// bring a connection up; the only answer is a later notification.
type Connectivity interface {
	Connected() bool
	Request()
	Subscribe(fn func(connected bool))
}

// UploadSink accepts a batch of fixes. A failed upload means none of the
// batch was accepted.
type UploadSink interface {
	Upload(ctx context.Context, fixes []location.Fix) error
}

// Config holds the orchestrator's timing and policy settings.
type Config struct {
	UpdateInterval    time.Duration
	ConnTimeout       time.Duration
	ShortRangeTimeout time.Duration
	CellTimeout       time.Duration
	SatTimeout        time.Duration
	UploadTimeout     time.Duration

	SatelliteAid location.AidMode

	// A fix closer than DedupeDegrees on both axes to the last uploaded one
	// is not uploaded again until MinUploadInterval has passed.
	DedupeDegrees     float64
	MinUploadInterval time.Duration
}

// DefaultConfig returns the daemon's default timings.
func DefaultConfig() Config {
	return Config{
		UpdateInterval:    5 * time.Minute,
		ConnTimeout:       30 * time.Second,
		ShortRangeTimeout: 30 * time.Second,
		CellTimeout:       60 * time.Second,
		SatTimeout:        120 * time.Second,
		UploadTimeout:     30 * time.Second,
		SatelliteAid:      location.AidNetwork,
		DedupeDegrees:     0.001,
		MinUploadInterval: 60 * time.Minute,
	}
}

// Deps are the orchestrator's collaborators.
type Deps struct {
	Sources   []location.Source
	Net       Connectivity
	Sink      UploadSink
	Cache     *cache.Cache
	Scheduler Scheduler // nil uses real timers posting to the event loop
	Logger    *slog.Logger
}

// Orchestrator is the acquisition state machine. All of its state is
// touched only from the event loop run by Run, or directly by a caller that
// guarantees the same serial use.
type Orchestrator struct {
	cfg     Config
	sources map[location.Kind]location.Source
	net     Connectivity
	sink    UploadSink
	cache   *cache.Cache
	sched   Scheduler
	logger  *slog.Logger
	now     func() time.Time

	q *queue

	state State
	owned location.Source
	// stopping marks sources this orchestrator stopped whose Stopped event
	// has not arrived yet.
	stopping map[location.Kind]bool

	timer    Timer
	timerGen uint64

	lastFix      *location.Fix
	lastUploaded *location.Fix
	lastUploadAt time.Time
	uploaded     int
	cycles       int

	observers []func(Snapshot)
}

// New wires an orchestrator to its collaborators and subscribes to their
// notifications. Exactly one source per kind is required.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Net == nil || deps.Sink == nil || deps.Cache == nil {
		return nil, errors.New("locator: connectivity, sink and cache are required")
	}

	o := &Orchestrator{
		cfg:      cfg,
		sources:  make(map[location.Kind]location.Source),
		net:      deps.Net,
		sink:     deps.Sink,
		cache:    deps.Cache,
		sched:    deps.Scheduler,
		logger:   deps.Logger,
		now:      time.Now,
		q:        newQueue(),
		stopping: make(map[location.Kind]bool),
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "orchestrator")
	if o.sched == nil {
		o.sched = loopScheduler{q: o.q}
	}

	for _, src := range deps.Sources {
		if _, dup := o.sources[src.Kind()]; dup {
			return nil, fmt.Errorf("locator: duplicate %s source", src.Kind())
		}
		o.sources[src.Kind()] = src
	}
	for _, kind := range []location.Kind{location.ShortRangeRadio, location.Cellular, location.Satellite} {
		if _, ok := o.sources[kind]; !ok {
			return nil, fmt.Errorf("locator: missing %s source", kind)
		}
	}

	for _, src := range o.sources {
		src.Subscribe(func(ev location.Event) {
			o.q.push(func() { o.HandleSourceEvent(ev) })
		})
	}
	o.net.Subscribe(func(connected bool) {
		o.q.push(func() { o.HandleConnectivity(connected) })
	})

	return o, nil
}

// Observe registers fn to receive a snapshot after every handled event.
// fn runs on the event loop and must not block.
func (o *Orchestrator) Observe(fn func(Snapshot)) {
	o.observers = append(o.observers, fn)
}

// State returns the current state.
func (o *Orchestrator) State() State { return o.state }

// Run triggers one update immediately, then one every UpdateInterval, and
// processes timer and collaborator events until ctx is cancelled. Owned
// sources are stopped before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	interval := o.cfg.UpdateInterval
	if interval <= 0 {
		interval = DefaultConfig().UpdateInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.logger.Info("event loop running", "update_interval", interval)
	o.Update()

	for {
		select {
		case <-ctx.Done():
			o.Shutdown()
			return nil
		case <-ticker.C:
			o.tick()
		case <-o.q.signal:
			o.runQueued()
		}
	}
}

// tick handles the periodic trigger. Events already queued belong to the
// previous cycle and are handled before a new one starts.
func (o *Orchestrator) tick() {
	o.runQueued()
	o.Update()
}

func (o *Orchestrator) runQueued() {
	for _, fn := range o.q.drain() {
		fn()
	}
}

// Shutdown stops any owned source and disarms the pending timer.
func (o *Orchestrator) Shutdown() {
	if o.owned != nil {
		o.logger.Info("stopping source on shutdown", "source", o.owned.Kind().String())
	}
	o.release()
	o.setState(StateIdle)
	o.notify()
}

// Update starts an acquisition cycle. It is ignored while a cycle is
// already underway.
func (o *Orchestrator) Update() {
	defer o.notify()

	if o.state != StateIdle {
		o.logger.Debug("update ignored, acquisition already underway", "state", o.state.String())
		return
	}

	o.cycles++
	o.logger.Info("updating the location", "cycle", o.cycles)

	if o.net.Connected() {
		o.acquire(location.ShortRangeRadio)
		return
	}

	o.logger.Info("not connected, requesting a connection")
	o.net.Request()
	o.arm(o.cfg.ConnTimeout)
	o.setState(StateConnecting)
}

// HandleConnectivity processes a Connected/Disconnected notification.
func (o *Orchestrator) HandleConnectivity(connected bool) {
	defer o.notify()

	if !connected {
		o.logger.Info("device disconnected", "state", o.state.String())
		return
	}
	o.logger.Info("device connected", "state", o.state.String())

	switch o.state {
	case StateConnecting:
		o.disarm()
		o.acquire(location.ShortRangeRadio)
	case StateIdle:
		o.flush(o.passiveRunning())
	}
}

// HandleSourceEvent processes a notification from one of the sources.
func (o *Orchestrator) HandleSourceEvent(ev location.Event) {
	defer o.notify()

	owned := o.owned != nil && o.owned.Kind() == ev.Kind

	switch ev.Type {
	case location.EventStarted:
		o.logger.Debug("source started", "source", ev.Kind.String(), "owned", owned)

	case location.EventStopped:
		if o.stopping[ev.Kind] {
			delete(o.stopping, ev.Kind)
			o.logger.Debug("source stopped", "source", ev.Kind.String())
			return
		}
		o.logger.Debug("source stopped externally", "source", ev.Kind.String())
		if o.state == StateIdle {
			o.flush(false)
		}

	case location.EventFix:
		if owned {
			o.succeed(ev.Fix)
			return
		}
		o.passiveFix(ev)

	case location.EventNoFix:
		if !owned {
			o.logger.Debug("ignoring no-fix from a source not in use", "source", ev.Kind.String())
			return
		}
		o.logger.Info("source reported no fix", "source", ev.Kind.String())
		o.escalate()
	}
}

// handleTimeout runs when the timer armed as generation gen fires. A timer
// that was disarmed, or superseded by a newer one, may still fire if it
// raced with the transition that disarmed it; such a firing does nothing.
func (o *Orchestrator) handleTimeout(gen uint64) {
	defer o.notify()

	if o.timer == nil || gen != o.timerGen {
		o.logger.Debug("stale timer ignored", "state", o.state.String())
		return
	}
	o.timer = nil

	switch o.state {
	case StateConnecting:
		o.logger.Warn("no connection within timeout", "timeout", o.cfg.ConnTimeout)
		o.setState(StateIdle)
	case StateAcquiringShortRange, StateAcquiringCellular, StateAcquiringSatellite:
		o.logger.Warn("source timed out", "source", o.owned.Kind().String())
		o.escalate()
	default:
		o.logger.Debug("timer fired while idle")
	}
}

func (o *Orchestrator) succeed(fix location.Fix) {
	outcome := o.cache.Offer(fix)
	o.logger.Info("got a fix", "fix", fix.String(), "cache", outcome.String())
	o.lastFix = &fix

	o.release()
	o.flush(false)
	o.setState(StateIdle)
}

// passiveFix handles a fix from a source someone else is running.
func (o *Orchestrator) passiveFix(ev location.Event) {
	src := o.sources[ev.Kind]
	if !src.Running() {
		o.logger.Debug("dropping fix from a stopped source", "source", ev.Kind.String())
		return
	}

	outcome := o.cache.Offer(ev.Fix)
	o.logger.Info("passive fix", "fix", ev.Fix.String(), "cache", outcome.String())
	if outcome != cache.Discarded && outcome != cache.Rejected {
		fix := ev.Fix
		o.lastFix = &fix
	}

	if o.state == StateIdle {
		o.flush(src.Running())
	}
}

// escalate leaves the current acquisition state for the next costlier
// source, or for Idle after the satellite.
func (o *Orchestrator) escalate() {
	switch o.state {
	case StateAcquiringShortRange:
		o.release()
		o.acquire(location.Cellular)
	case StateAcquiringCellular:
		o.release()
		o.acquire(location.Satellite)
	case StateAcquiringSatellite:
		o.release()
		o.logger.Info("all sources exhausted without a fix")
		o.setState(StateIdle)
	}
}

// acquire starts the source of the given kind, falling through to costlier
// kinds if it cannot be started.
func (o *Orchestrator) acquire(kind location.Kind) {
	if o.owned != nil {
		o.logger.Error("starting a source while another is owned", "owned", o.owned.Kind().String())
		o.release()
	}

	for k := kind; k <= location.Satellite; k++ {
		src := o.sources[k]
		aid := o.aidFor(k)

		err := src.Start(aid)
		if err == nil {
			o.owned = src
			delete(o.stopping, k)
			o.logger.Info("source started", "source", k.String(), "aid", aid.String())
			o.setState(stateFor(k))
			o.arm(o.timeoutFor(k))
			return
		}

		if errors.Is(err, location.ErrAlreadyOwned) {
			o.logger.Error("source already owned, ownership invariant violated", "source", k.String(), "error", err)
		} else {
			o.logger.Warn("source failed to start", "source", k.String(), "error", err)
		}
	}

	o.logger.Warn("no source could be started")
	o.setState(StateIdle)
}

// release disarms the pending timer and stops the owned source.
func (o *Orchestrator) release() {
	o.disarm()
	if o.owned == nil {
		return
	}
	src := o.owned
	o.owned = nil
	o.stopping[src.Kind()] = true
	src.Stop()
}

func (o *Orchestrator) aidFor(kind location.Kind) location.AidMode {
	if kind == location.Satellite {
		return o.cfg.SatelliteAid
	}
	return location.AidNetwork
}

func (o *Orchestrator) timeoutFor(kind location.Kind) time.Duration {
	switch kind {
	case location.ShortRangeRadio:
		return o.cfg.ShortRangeTimeout
	case location.Cellular:
		return o.cfg.CellTimeout
	default:
		return o.cfg.SatTimeout
	}
}

func (o *Orchestrator) arm(d time.Duration) {
	o.disarm()
	o.timerGen++
	gen := o.timerGen
	o.timer = o.sched.AfterFunc(d, func() { o.handleTimeout(gen) })
}

func (o *Orchestrator) disarm() {
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
	o.timerGen++
}

// passiveRunning reports whether any source is running outside our control.
func (o *Orchestrator) passiveRunning() bool {
	for kind, src := range o.sources {
		if o.owned != nil && o.owned.Kind() == kind {
			continue
		}
		if src.Running() {
			return true
		}
	}
	return false
}

// flush uploads the cache. With keepLast the newest entry stays behind
// because a running source may still improve it. Failed or impossible
// uploads leave the fixes in the cache for the next attempt.
func (o *Orchestrator) flush(keepLast bool) {
	batch := o.cache.Drain(keepLast)
	if len(batch) == 0 {
		return
	}

	batch = o.dedupe(batch)
	if len(batch) == 0 {
		return
	}

	if !o.net.Connected() {
		o.logger.Info("not connected, keeping fixes", "entries", len(batch))
		o.cache.Requeue(batch)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.UploadTimeout)
	defer cancel()

	o.logger.Info("uploading entries", "entries", len(batch))
	if err := o.sink.Upload(ctx, batch); err != nil {
		o.logger.Warn("upload failed, keeping fixes for the next cycle", "entries", len(batch), "error", err)
		o.cache.Requeue(batch)
		return
	}

	last := batch[len(batch)-1]
	o.lastUploaded = &last
	o.lastUploadAt = o.now()
	o.uploaded += len(batch)
}

// dedupe drops fixes that repeat the previous uploaded position while the
// minimum upload interval has not yet passed.
func (o *Orchestrator) dedupe(batch []location.Fix) []location.Fix {
	if o.cfg.DedupeDegrees <= 0 || o.lastUploaded == nil {
		return batch
	}
	if o.now().Sub(o.lastUploadAt) >= o.cfg.MinUploadInterval {
		return batch
	}

	ref := *o.lastUploaded
	out := make([]location.Fix, 0, len(batch))
	for _, fix := range batch {
		if math.Abs(fix.Latitude-ref.Latitude) < o.cfg.DedupeDegrees &&
			math.Abs(fix.Longitude-ref.Longitude) < o.cfg.DedupeDegrees {
			o.logger.Debug("skipping stationary fix", "fix", fix.String())
			continue
		}
		out = append(out, fix)
		ref = fix
	}
	return out
}

func (o *Orchestrator) setState(s State) {
	if s == o.state {
		return
	}
	o.logger.Debug("transition", "from", o.state.String(), "to", s.String())
	o.state = s
}

// Snapshot returns the orchestrator's current view. Like every other method
// it must be called from the event loop.
func (o *Orchestrator) Snapshot() Snapshot {
	snap := Snapshot{
		State:      o.state,
		Connected:  o.net.Connected(),
		CacheDepth: o.cache.Len(),
		Evicted:    o.cache.Dropped(),
		LastUpload: o.lastUploadAt,
		Uploaded:   o.uploaded,
		Cycles:     o.cycles,
		Stamp:      o.now(),
	}
	if o.owned != nil {
		snap.Owned = o.owned.Kind().String()
	}
	if o.lastFix != nil {
		fix := *o.lastFix
		snap.LastFix = &fix
	}
	return snap
}

func (o *Orchestrator) notify() {
	if len(o.observers) == 0 {
		return
	}
	snap := o.Snapshot()
	for _, fn := range o.observers {
		fn(snap)
	}
}
