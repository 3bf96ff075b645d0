// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package modem

import (
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/locator/internal/location"
)

// fakePort answers AT commands from a script. Responses to AT+QGPSLOC=2 are
// consumed in order; the last one repeats.
type fakePort struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu       sync.Mutex
	commands []string
	replies  map[string]string
	locs     []string
}

func newFakePort(replies map[string]string, locs ...string) *fakePort {
	pr, pw := io.Pipe()
	return &fakePort{pr: pr, pw: pw, replies: replies, locs: locs}
}

func (p *fakePort) Read(b []byte) (int, error) { return p.pr.Read(b) }

func (p *fakePort) Write(b []byte) (int, error) {
	cmd := strings.TrimSpace(string(b))

	p.mu.Lock()
	p.commands = append(p.commands, cmd)
	reply, ok := p.replies[cmd]
	if cmd == "AT+QGPSLOC=2" && len(p.locs) > 0 {
		reply, ok = p.locs[0], true
		if len(p.locs) > 1 {
			p.locs = p.locs[1:]
		}
	}
	p.mu.Unlock()

	switch {
	case !ok:
		reply = "OK"
	case strings.HasPrefix(reply, "+QGPSLOC:"):
		reply += "\n\nOK"
	}
	go io.WriteString(p.pw, "\r\n"+strings.ReplaceAll(reply, "\n", "\r\n")+"\r\n")
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.pw.Close()
	return p.pr.Close()
}

func (p *fakePort) sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.commands...)
}

const locLine = "+QGPSLOC: 061951.000,50.87980,4.70050,1.6,30.2,3,84.50,18.0,9.7,040526,09"

func TestParseQGPSLOC(t *testing.T) {
	obs, err := ParseQGPSLOC(locLine, 5)
	require.NoError(t, err)

	assert.Equal(t, location.Mode3D, obs.Mode)
	assert.InDelta(t, 50.8798, obs.Latitude, 1e-9)
	assert.InDelta(t, 4.7005, obs.Longitude, 1e-9)
	assert.InDelta(t, 8.0, obs.Accuracy, 1e-9)
	assert.InDelta(t, 30.2, obs.Altitude, 1e-9)
	assert.InDelta(t, 84.5, obs.Heading, 1e-9)
	assert.InDelta(t, 5.0, obs.Speed, 1e-9)
	assert.True(t, math.IsNaN(obs.AltitudeAccuracy))
}

func TestParseQGPSLOC_Malformed(t *testing.T) {
	for _, line := range []string{
		"+QGPSLOC: 061951.000,50.8",
		"+QGPSLOC: 061951.000,x,4.7,1.6,30.2,3,84.5,18.0,9.7,040526,09",
		"+QGPS: 1",
	} {
		_, err := ParseQGPSLOC(line, 5)
		assert.Error(t, err, line)
	}
}

func startModem(t *testing.T, port *fakePort, aid location.AidMode) (*Modem, func() []location.Observation, error) {
	t.Helper()
	m := New(Config{Port: "/dev/test", PollInterval: 10 * time.Millisecond}, nil)
	m.open = func(Config) (io.ReadWriteCloser, error) { return port, nil }

	var mu sync.Mutex
	var got []location.Observation
	err := m.Start(aid, func(o location.Observation) {
		mu.Lock()
		got = append(got, o)
		mu.Unlock()
	})
	return m, func() []location.Observation {
		mu.Lock()
		defer mu.Unlock()
		return append([]location.Observation(nil), got...)
	}, err
}

func TestModem_PollsUntilFixed(t *testing.T) {
	port := newFakePort(nil, "+CME ERROR: 516", locLine)
	m, got, err := startModem(t, port, location.AidNetwork)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(got()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	obs := got()
	assert.Equal(t, location.ModeNoFix, obs[0].Mode)
	assert.Equal(t, location.Mode3D, obs[1].Mode)

	require.NoError(t, m.Stop())
	cmds := port.sent()
	assert.Equal(t, []string{"ATE0", "AT+QGPS=3"}, cmds[:2])
	assert.Equal(t, "AT+QGPSEND", cmds[len(cmds)-1])
}

func TestModem_SessionAlreadyOn(t *testing.T) {
	port := newFakePort(map[string]string{"AT+QGPS=1": "+CME ERROR: 504"}, locLine)
	m, _, err := startModem(t, port, location.AidNone)
	require.NoError(t, err)
	require.NoError(t, m.Stop())
}

func TestModem_EnableFails(t *testing.T) {
	port := newFakePort(map[string]string{"AT+QGPS=1": "ERROR"})
	_, _, err := startModem(t, port, location.AidNone)
	assert.ErrorIs(t, err, ErrAT)
}

func TestModem_QueryFailureReported(t *testing.T) {
	port := newFakePort(nil, "+CME ERROR: 505")
	m, got, err := startModem(t, port, location.AidNetwork)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(got()) >= 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, got()[0].Failed)
	require.NoError(t, m.Stop())
}
