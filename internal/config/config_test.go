// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/locator/internal/location"
)

const required = `DEVICE_ID=car-7
GNSS_SERIAL_PORT=/dev/ttyAMA0
MODEM_SERIAL_PORT=/dev/ttyUSB2
GOOGLE_API_KEY=k
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "locator.conf", "# minimal\n\n"+required))
	require.NoError(t, err)

	assert.Equal(t, "car-7", cfg.DeviceID)
	assert.Equal(t, 5*time.Minute, cfg.UpdateInterval)
	assert.Equal(t, 30*time.Second, cfg.ShortRangeTimeout)
	assert.Equal(t, 150.0, cfg.SatelliteAccuracyLimit)
	assert.Equal(t, 2500.0, cfg.CellularAccuracyLimit)
	assert.Equal(t, 3, cfg.SatelliteFixTries)
	assert.Equal(t, location.AidNetwork, cfg.SatelliteAid)
	assert.Equal(t, 0, cfg.WebServerPort)
}

func TestLoad_KeyValue(t *testing.T) {
	cfg, err := Load(writeFile(t, "locator.conf", required+`
UPDATE_INTERVAL_MINUTES=10
CELL_TIMEOUT_SECONDS=45
SATELLITE_AID=none
GNSS_ASSIST=$PMTK869,1,1*35; $PMTK353,1,1*37
WEB_SERVER_PORT=8080
`))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.UpdateInterval)
	assert.Equal(t, 45*time.Second, cfg.CellTimeout)
	assert.Equal(t, location.AidNone, cfg.SatelliteAid)
	assert.Equal(t, []string{"$PMTK869,1,1*35", "$PMTK353,1,1*37"}, cfg.GNSSAssist)
	assert.Equal(t, 8080, cfg.WebServerPort)
}

func TestLoad_YAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "locator.yaml", `
device_id: car-7
gnss_serial_port: /dev/ttyAMA0
modem_serial_port: /dev/ttyUSB2
google_api_key: k
sat_timeout_seconds: 90
gnss_assist:
  - $PMTK869,1,1*35
`))
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.SatTimeout)
	assert.Equal(t, []string{"$PMTK869,1,1*35"}, cfg.GNSSAssist)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"missing device":   "GNSS_SERIAL_PORT=/dev/x\n",
		"unknown key":      required + "IMU_ACCEL_RANGE=2\n",
		"no equals":        required + "DEDUPE_DEGREES\n",
		"bad number":       required + "CACHE_MAX_ENTRIES=lots\n",
		"non positive":     required + "SAT_TIMEOUT_SECONDS=0\n",
		"bad aid":          required + "SATELLITE_AID=sometimes\n",
		"interval too low": required + "UPDATE_INTERVAL_MINUTES=1\nSAT_TIMEOUT_SECONDS=120\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "locator.conf", body))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "absent.conf"))
	assert.Error(t, err)
}

func TestLoadMQTT_OnlyBrokerKeys(t *testing.T) {
	path := writeFile(t, "fixwatch.conf", "MQTT_BROKER=tcp://broker:1883\nTOPIC_FIXES=fleet/fixes\n")

	_, err := Load(path)
	assert.Error(t, err, "the daemon still needs its radios")

	cfg, err := LoadMQTT(path)
	require.NoError(t, err)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTTBroker)
	assert.Equal(t, "fleet/fixes", cfg.TopicFixes)
	assert.Equal(t, "locatord", cfg.MQTTClientID)

	_, err = LoadMQTT(writeFile(t, "empty.conf", "TOPIC_FIXES=\n"))
	assert.Error(t, err)

	_, err = LoadMQTT(writeFile(t, "bad.conf", "NOT_A_KEY=1\n"))
	assert.Error(t, err)
}
