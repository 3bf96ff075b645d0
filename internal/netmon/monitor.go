// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package netmon tracks whether the device can reach the network.
package netmon

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os/exec"
	"strings"
	"sync"
	"time"
)

var ErrNoProbeAddr = errors.New("netmon: probe address not configured")

// Prober checks reachability once.
type Prober interface {
	Probe(ctx context.Context) bool
}

// DialProber opens and closes a TCP connection to Addr.
type DialProber struct {
	Addr    string
	Timeout time.Duration
}

func (p DialProber) Probe(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Monitor probes periodically and notifies subscribers when reachability
// changes. Request runs the activation command, if any, and probes again
// right away.
type Monitor struct {
	prober   Prober
	interval time.Duration
	activate []string
	logger   *slog.Logger

	mu        sync.Mutex
	connected bool
	subs      []func(bool)

	wake chan struct{}
}

// New creates a monitor probing addr every interval. activate is a shell-like
// command line split on whitespace; empty disables activation.
func New(addr string, interval time.Duration, activate string, logger *slog.Logger) (*Monitor, error) {
	if addr == "" {
		return nil, ErrNoProbeAddr
	}
	return NewWithProber(DialProber{Addr: addr}, interval, activate, logger), nil
}

func NewWithProber(p Prober, interval time.Duration, activate string, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		prober:   p,
		interval: interval,
		activate: strings.Fields(activate),
		logger:   logger.With("component", "netmon"),
		wake:     make(chan struct{}, 1),
	}
}

func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Subscribe registers fn for reachability changes. fn is called from the
// monitor goroutine.
func (m *Monitor) Subscribe(fn func(bool)) {
	m.mu.Lock()
	m.subs = append(m.subs, fn)
	m.mu.Unlock()
}

// Request asks for a connection. It never blocks; the outcome arrives as a
// notification.
func (m *Monitor) Request() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run probes until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		case <-m.wake:
			m.activateLink(ctx)
			m.check(ctx)
		}
	}
}

func (m *Monitor) activateLink(ctx context.Context) {
	if len(m.activate) == 0 || m.Connected() {
		return
	}
	m.logger.Info("activating connection", "command", strings.Join(m.activate, " "))
	out, err := exec.CommandContext(ctx, m.activate[0], m.activate[1:]...).CombinedOutput()
	if err != nil {
		m.logger.Warn("activation command failed", "error", err, "output", strings.TrimSpace(string(out)))
	}
}

// check probes once and notifies on change.
func (m *Monitor) check(ctx context.Context) {
	up := m.prober.Probe(ctx)

	m.mu.Lock()
	changed := up != m.connected
	m.connected = up
	subs := append([]func(bool){}, m.subs...)
	m.mu.Unlock()

	if !changed {
		return
	}
	m.logger.Info("connectivity changed", "connected", up)
	for _, fn := range subs {
		fn(up)
	}
}
