// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/locator/internal/location"
)

// Config holds all daemon configuration values.
type Config struct {
	DeviceID string

	// Acquisition cycle
	UpdateInterval    time.Duration
	ConnTimeout       time.Duration
	ShortRangeTimeout time.Duration
	CellTimeout       time.Duration
	SatTimeout        time.Duration

	// Cache
	Staleness       time.Duration
	CacheMaxEntries int

	// Filters
	SatelliteAccuracyLimit float64 // meters
	CellularAccuracyLimit  float64 // meters
	SatelliteFixTries      int
	SatelliteAid           location.AidMode

	// Upload
	DedupeDegrees     float64
	MinUploadInterval time.Duration
	UploadTimeout     time.Duration

	// MQTT
	MQTTBroker   string
	MQTTClientID string
	TopicFixes   string

	// Satellite receiver
	GNSSSerialPort string
	GNSSBaudRate   int
	GNSSAssist     []string // sentences written when assistance is allowed
	GNSSPowerPin   string   // GPIO enabling the receiver's supply, empty if always on

	// Modem
	ModemSerialPort string
	ModemBaudRate   int
	ModemPoll       time.Duration

	// Access point positioning
	WiFiInterface string
	GoogleAPIKey  string

	// Connectivity
	NetProbeAddr       string
	NetProbeInterval   time.Duration
	NetActivateCommand string

	// Web Server, 0 disables it
	WebServerPort int
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used for keys a file leaves out.
func Default() *Config {
	return &Config{
		UpdateInterval:         5 * time.Minute,
		ConnTimeout:            30 * time.Second,
		ShortRangeTimeout:      30 * time.Second,
		CellTimeout:            60 * time.Second,
		SatTimeout:             120 * time.Second,
		Staleness:              60 * time.Second,
		CacheMaxEntries:        32,
		SatelliteAccuracyLimit: 150,
		CellularAccuracyLimit:  2500,
		SatelliteFixTries:      3,
		SatelliteAid:           location.AidNetwork,
		DedupeDegrees:          0.001,
		MinUploadInterval:      60 * time.Minute,
		UploadTimeout:          30 * time.Second,
		MQTTBroker:             "tcp://localhost:1883",
		MQTTClientID:           "locatord",
		TopicFixes:             "locator/fixes",
		GNSSBaudRate:           9600,
		ModemBaudRate:          115200,
		ModemPoll:              2 * time.Second,
		WiFiInterface:          "wlan0",
		NetProbeAddr:           "8.8.8.8:53",
		NetProbeInterval:       15 * time.Second,
	}
}

// Load reads a configuration file. Files ending in .yaml or .yml hold a flat
// mapping of keys; anything else is read as KEY=VALUE lines.
func Load(configPath string) (*Config, error) {
	cfg, err := read(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadMQTT reads the same file as Load but only requires the keys a broker
// subscriber needs.
func LoadMQTT(configPath string) (*Config, error) {
	cfg, err := read(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateMQTT(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		err = cfg.readYAML(file)
	default:
		err = cfg.readKeyValue(file)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readKeyValue(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := c.setValue(key, value); err != nil {
			return fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

func (c *Config) readYAML(r io.Reader) error {
	var doc map[string]yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return fmt.Errorf("error reading config file: %w", err)
	}

	for key, node := range doc {
		var value string
		switch node.Kind {
		case yaml.ScalarNode:
			value = node.Value
		case yaml.SequenceNode:
			var items []string
			if err := node.Decode(&items); err != nil {
				return fmt.Errorf("config key %s: %w", key, err)
			}
			value = strings.Join(items, ";")
		default:
			return fmt.Errorf("config key %s (line %d): expected a scalar or list", key, node.Line)
		}
		if err := c.setValue(strings.ToUpper(key), value); err != nil {
			return fmt.Errorf("config line %d: %w", node.Line, err)
		}
	}
	return nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	case "DEVICE_ID":
		c.DeviceID = value

	// Acquisition cycle
	case "UPDATE_INTERVAL_MINUTES":
		c.UpdateInterval, err = duration(key, value, time.Minute)
	case "CONN_TIMEOUT_SECONDS":
		c.ConnTimeout, err = duration(key, value, time.Second)
	case "SHORT_RANGE_TIMEOUT_SECONDS":
		c.ShortRangeTimeout, err = duration(key, value, time.Second)
	case "CELL_TIMEOUT_SECONDS":
		c.CellTimeout, err = duration(key, value, time.Second)
	case "SAT_TIMEOUT_SECONDS":
		c.SatTimeout, err = duration(key, value, time.Second)

	// Cache
	case "STALENESS_SECONDS":
		c.Staleness, err = duration(key, value, time.Second)
	case "CACHE_MAX_ENTRIES":
		c.CacheMaxEntries, err = positiveInt(key, value)

	// Filters
	case "SATELLITE_ACCURACY_LIMIT":
		c.SatelliteAccuracyLimit, err = positiveFloat(key, value)
	case "CELLULAR_ACCURACY_LIMIT":
		c.CellularAccuracyLimit, err = positiveFloat(key, value)
	case "SATELLITE_FIX_TRIES":
		c.SatelliteFixTries, err = positiveInt(key, value)
	case "SATELLITE_AID":
		c.SatelliteAid, err = location.ParseAidMode(value)

	// Upload
	case "DEDUPE_DEGREES":
		c.DedupeDegrees, err = strconv.ParseFloat(value, 64)
		if err == nil && c.DedupeDegrees < 0 {
			err = fmt.Errorf("DEDUPE_DEGREES must not be negative, got %v", c.DedupeDegrees)
		}
	case "MIN_UPLOAD_INTERVAL_MINUTES":
		c.MinUploadInterval, err = duration(key, value, time.Minute)
	case "UPLOAD_TIMEOUT_SECONDS":
		c.UploadTimeout, err = duration(key, value, time.Second)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "TOPIC_FIXES":
		c.TopicFixes = value

	// Satellite receiver
	case "GNSS_SERIAL_PORT":
		c.GNSSSerialPort = value
	case "GNSS_BAUD_RATE":
		c.GNSSBaudRate, err = positiveInt(key, value)
	case "GNSS_POWER_PIN":
		c.GNSSPowerPin = value
	case "GNSS_ASSIST":
		c.GNSSAssist = nil
		for _, s := range strings.Split(value, ";") {
			if s = strings.TrimSpace(s); s != "" {
				c.GNSSAssist = append(c.GNSSAssist, s)
			}
		}

	// Modem
	case "MODEM_SERIAL_PORT":
		c.ModemSerialPort = value
	case "MODEM_BAUD_RATE":
		c.ModemBaudRate, err = positiveInt(key, value)
	case "MODEM_POLL_SECONDS":
		c.ModemPoll, err = duration(key, value, time.Second)

	// Access point positioning
	case "WIFI_INTERFACE":
		c.WiFiInterface = value
	case "GOOGLE_API_KEY":
		c.GoogleAPIKey = value

	// Connectivity
	case "NET_PROBE_ADDR":
		c.NetProbeAddr = value
	case "NET_PROBE_SECONDS":
		c.NetProbeInterval, err = duration(key, value, time.Second)
	case "NET_ACTIVATE_COMMAND":
		c.NetActivateCommand = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = strconv.Atoi(value)
		if err == nil && (c.WebServerPort < 0 || c.WebServerPort > 65535) {
			err = fmt.Errorf("WEB_SERVER_PORT must be 0-65535, got %d", c.WebServerPort)
		}

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

func duration(key, value string, unit time.Duration) (time.Duration, error) {
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, n)
	}
	return time.Duration(n * float64(unit)), nil
}

func positiveInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, n)
	}
	return n, nil
}

func positiveFloat(key, value string) (float64, error) {
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, n)
	}
	return n, nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("DEVICE_ID is required")
	}
	if err := c.validateMQTT(); err != nil {
		return err
	}
	if c.GNSSSerialPort == "" {
		return fmt.Errorf("GNSS_SERIAL_PORT is required")
	}
	if c.ModemSerialPort == "" {
		return fmt.Errorf("MODEM_SERIAL_PORT is required")
	}
	if c.GoogleAPIKey == "" {
		return fmt.Errorf("GOOGLE_API_KEY is required")
	}
	if c.UpdateInterval <= c.SatTimeout {
		return fmt.Errorf("UPDATE_INTERVAL_MINUTES (%v) must exceed SAT_TIMEOUT_SECONDS (%v)", c.UpdateInterval, c.SatTimeout)
	}
	return nil
}

func (c *Config) validateMQTT() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.MQTTClientID == "" {
		return fmt.Errorf("MQTT_CLIENT_ID is required")
	}
	if c.TopicFixes == "" {
		return fmt.Errorf("TOPIC_FIXES is required")
	}
	return nil
}

// InitGlobal loads the configuration once for the whole process.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// SetGlobal installs cfg as the process configuration, for binaries that
// build it without a file.
func SetGlobal(cfg *Config) {
	configOnce.Do(func() {})
	configMu.Lock()
	globalConfig = cfg
	configMu.Unlock()
}

// Get returns the global configuration. InitGlobal or SetGlobal must be
// called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
