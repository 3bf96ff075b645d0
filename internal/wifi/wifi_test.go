// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package wifi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"

	"github.com/relabs-tech/locator/internal/location"
)

const scanOutput = `BSS 00:1a:2b:3c:4d:5e(on wlan0) -- associated
	TSF: 123456789 usec (0d, 00:02:03)
	freq: 2412
	beacon interval: 100 TUs
	signal: -71.00 dBm
	last seen: 10 ms ago
	SSID: office
	DS Parameter set: channel 1
BSS AA:BB:CC:DD:EE:FF(on wlan0)
	freq: 5180
	signal: -48.00 dBm
	SSID:
	HT operation:
		 * primary channel: 36
BSS 11:22:33:44:55:66(on wlan0)
	signal: -90.00 dBm
	SSID: far
`

func TestParseScan(t *testing.T) {
	aps := ParseScan(scanOutput)
	require.Len(t, aps, 3)

	assert.Equal(t, location.AccessPoint{BSSID: "aa:bb:cc:dd:ee:ff", SignalDBm: -48, Channel: 36}, aps[0])
	assert.Equal(t, location.AccessPoint{BSSID: "00:1a:2b:3c:4d:5e", SSID: "office", SignalDBm: -71, Channel: 1}, aps[1])
	assert.Equal(t, "far", aps[2].SSID)
}

func TestParseScan_Empty(t *testing.T) {
	assert.Empty(t, ParseScan(""))
	assert.Empty(t, ParseScan("command failed: Operation not permitted (-1)\n"))
}

func TestIWScanner(t *testing.T) {
	s := NewIWScanner("wlp2s0")
	var args []string
	s.run = func(_ context.Context, name string, a ...string) ([]byte, error) {
		args = append([]string{name}, a...)
		return []byte(scanOutput), nil
	}

	aps, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, aps, 3)
	assert.Equal(t, []string{"iw", "dev", "wlp2s0", "scan"}, args)

	s.run = func(context.Context, string, ...string) ([]byte, error) { return nil, errors.New("exit status 255") }
	_, err = s.Scan(context.Background())
	assert.Error(t, err)
}

type fakeGeolocator struct {
	req  *maps.GeolocationRequest
	resp *maps.GeolocationResult
	err  error
}

func (g *fakeGeolocator) Geolocate(_ context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error) {
	g.req = r
	return g.resp, g.err
}

func TestGoogleResolver(t *testing.T) {
	g := &fakeGeolocator{resp: &maps.GeolocationResult{Location: maps.LatLng{Lat: 50.88, Lng: 4.70}, Accuracy: 30}}
	r := &GoogleResolver{client: g}

	lat, lon, err := r.Resolve(context.Background(), location.AccessPoint{BSSID: "aa:bb:cc:dd:ee:ff", SignalDBm: -48})
	require.NoError(t, err)
	assert.Equal(t, 50.88, lat)
	assert.Equal(t, 4.70, lon)

	require.Len(t, g.req.WiFiAccessPoints, 1)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", g.req.WiFiAccessPoints[0].MACAddress)
	assert.False(t, g.req.ConsiderIP)

	g.err = errors.New("404 notFound")
	_, _, err = r.Resolve(context.Background(), location.AccessPoint{BSSID: "x"})
	assert.ErrorIs(t, err, ErrLookup)
}
