// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package location

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticScanner struct {
	aps []AccessPoint
	err error
}

func (s staticScanner) Scan(context.Context) ([]AccessPoint, error) {
	return s.aps, s.err
}

type mapResolver map[string][2]float64

func (m mapResolver) Resolve(_ context.Context, ap AccessPoint) (float64, float64, error) {
	pos, ok := m[ap.BSSID]
	if !ok {
		return 0, 0, errors.New("not found")
	}
	return pos[0], pos[1], nil
}

type syncLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *syncLog) record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *syncLog) snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

func runShortRange(t *testing.T, scanner Scanner, resolver Resolver, aid AidMode) []Event {
	t.Helper()
	s := NewShortRange(scanner, resolver, nil)
	log := &syncLog{}
	s.Subscribe(log.record)

	require.NoError(t, s.Start(aid))
	s.Wait()
	assert.ErrorIs(t, s.Start(aid), ErrAlreadyOwned)
	s.Stop()
	assert.False(t, s.Running())
	return log.snapshot()
}

func TestShortRange_ResolvesAfterLookupFailure(t *testing.T) {
	scanner := staticScanner{aps: []AccessPoint{
		{BSSID: "00:11:22:33:44:55", SignalDBm: -40},
		{BSSID: "66:77:88:99:aa:bb", SignalDBm: -60},
	}}
	resolver := mapResolver{"66:77:88:99:aa:bb": {50.879, 4.700}}

	events := runShortRange(t, scanner, resolver, AidNetwork)

	require.Len(t, events, 3)
	assert.Equal(t, EventStarted, events[0].Type)
	assert.Equal(t, EventFix, events[1].Type)
	assert.Equal(t, 50.879, events[1].Fix.Latitude)
	assert.Equal(t, float64(DefaultShortRangeAccuracy), events[1].Fix.Accuracy)
	assert.Equal(t, EventStopped, events[2].Type)
}

func TestShortRange_NothingResolves(t *testing.T) {
	scanner := staticScanner{aps: []AccessPoint{{BSSID: "00:11:22:33:44:55"}}}

	events := runShortRange(t, scanner, mapResolver{}, AidNetwork)

	require.Len(t, events, 3)
	assert.Equal(t, EventNoFix, events[1].Type)
}

func TestShortRange_ScanFailure(t *testing.T) {
	events := runShortRange(t, staticScanner{err: errors.New("device busy")}, mapResolver{}, AidNetwork)

	require.Len(t, events, 3)
	assert.Equal(t, EventNoFix, events[1].Type)
}

func TestShortRange_OfflineEmitsNothing(t *testing.T) {
	scanner := staticScanner{aps: []AccessPoint{{BSSID: "00:11:22:33:44:55"}}}
	resolver := mapResolver{"00:11:22:33:44:55": {1, 1}}

	events := runShortRange(t, scanner, resolver, AidNone)

	require.Len(t, events, 2)
	assert.Equal(t, EventStarted, events[0].Type)
	assert.Equal(t, EventStopped, events[1].Type)
}
