// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/locator/internal/config"
	"github.com/relabs-tech/locator/internal/location"
	"github.com/relabs-tech/locator/internal/upload"
)

func TestRunDaemon_DemoStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.DeviceID = "test"

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- RunDaemon(ctx, cfg, true, quietLogger()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestOrchestratorConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SatTimeout = 90 * time.Second
	cfg.SatelliteAid = location.AidNone

	oc := orchestratorConfig(cfg)
	assert.Equal(t, 90*time.Second, oc.SatTimeout)
	assert.Equal(t, location.AidNone, oc.SatelliteAid)
	assert.Equal(t, cfg.UpdateInterval, oc.UpdateInterval)
}

func TestPrintBatch(t *testing.T) {
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	b := upload.NewBatch("car-7", []location.Fix{
		{Latitude: 50.8798, Longitude: 4.7005, Accuracy: 25, Time: at, Source: location.Satellite},
	}, at)
	payload, err := json.Marshal(b)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printBatch(&out, payload))
	assert.Contains(t, out.String(), "device=car-7 entries=1")
	assert.Contains(t, out.String(), "time=2026-05-04T10:00:00Z lat=50.879800 lon=4.700500 acc=25m source=satellite")

	assert.Error(t, printBatch(&out, []byte("{")))
}
