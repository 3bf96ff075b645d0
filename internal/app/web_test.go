// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/locator/internal/locator"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestStatus_NoDataYet(t *testing.T) {
	srv := httptest.NewServer(NewStatusServer(quietLogger()).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStatus_LatestSnapshot(t *testing.T) {
	s := NewStatusServer(quietLogger())
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	s.Publish(locator.Snapshot{State: locator.StateAcquiringCellular, Owned: "cellular", CacheDepth: 2})

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "acquiring-cellular", body["state"])
	assert.Equal(t, "cellular", body["owned_source"])
	assert.Equal(t, 2.0, body["cache_depth"])
}

func TestStatus_WebsocketStream(t *testing.T) {
	s := NewStatusServer(quietLogger())
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	s.Publish(locator.Snapshot{State: locator.StateIdle})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var snap map[string]any
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, "idle", snap["state"])

	// the client is registered once its first snapshot arrived
	s.Publish(locator.Snapshot{State: locator.StateConnecting})
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, "connecting", snap["state"])
}
