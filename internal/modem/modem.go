// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package modem drives the GNSS engine of a Quectel-style cellular modem
// over its AT command port.
package modem

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/relabs-tech/locator/internal/location"
)

const (
	cmeSessionOngoing = 504
	cmeNotFixed       = 516

	commandTimeout = 5 * time.Second
	kmhToMPS       = 1 / 3.6
)

var (
	ErrRunning  = errors.New("modem: already running")
	ErrAT       = errors.New("modem: command failed")
	ErrTimeout  = errors.New("modem: no response")
	ErrNotFixed = errors.New("modem: position not fixed yet")
)

// CMEError is a +CME ERROR result code.
type CMEError struct {
	Code int
}

func (e *CMEError) Error() string { return fmt.Sprintf("modem: +CME ERROR: %d", e.Code) }

// Config describes the AT port.
type Config struct {
	Port         string
	BaudRate     int
	PollInterval time.Duration
	// UERE turns the reported HDOP into meters.
	UERE float64
}

// Modem implements location.Device.
type Modem struct {
	cfg    Config
	open   func(Config) (io.ReadWriteCloser, error)
	logger *slog.Logger

	mu     sync.Mutex
	conn   *atConn
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, logger *slog.Logger) *Modem {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.UERE <= 0 {
		cfg.UERE = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Modem{cfg: cfg, open: openSerial, logger: logger.With("component", "modem")}
}

func openSerial(cfg Config) (io.ReadWriteCloser, error) {
	return serial.Open(cfg.Port, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

// Start powers the GNSS engine on and polls it every PollInterval.
func (m *Modem) Start(aid location.AidMode, deliver func(location.Observation)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		return ErrRunning
	}

	port, err := m.open(m.cfg)
	if err != nil {
		return fmt.Errorf("modem: open %s: %w", m.cfg.Port, err)
	}
	conn := newATConn(port)

	// echo off; older firmware answers ERROR, which is harmless
	_, _ = conn.command("ATE0", commandTimeout)

	gnssMode := 1
	if aid == location.AidNetwork {
		gnssMode = 3
	}
	_, err = conn.command(fmt.Sprintf("AT+QGPS=%d", gnssMode), commandTimeout)
	var cme *CMEError
	if err != nil && !(errors.As(err, &cme) && cme.Code == cmeSessionOngoing) {
		conn.close()
		return fmt.Errorf("modem: enable gnss: %w", err)
	}
	m.logger.Info("gnss engine on", "port", m.cfg.Port, "mode", gnssMode)

	ctx, cancel := context.WithCancel(context.Background())
	m.conn = conn
	m.cancel = cancel
	m.wg.Add(1)
	go m.poll(ctx, conn, deliver)
	return nil
}

// Stop ends polling and powers the GNSS engine off.
func (m *Modem) Stop() error {
	m.mu.Lock()
	conn, cancel := m.conn, m.cancel
	m.conn, m.cancel = nil, nil
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	cancel()
	m.wg.Wait()

	_, err := conn.command("AT+QGPSEND", commandTimeout)
	conn.close()
	m.logger.Info("gnss engine off", "port", m.cfg.Port)
	return err
}

func (m *Modem) poll(ctx context.Context, conn *atConn, deliver func(location.Observation)) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		obs, err := m.locate(conn)
		if ctx.Err() != nil {
			return
		}
		switch {
		case errors.Is(err, ErrNotFixed):
			obs = location.Observation{Mode: location.ModeNoFix}
		case err != nil:
			m.logger.Warn("position query failed", "error", err)
			obs = location.Observation{Failed: true}
		}
		deliver(obs)
	}
}

func (m *Modem) locate(conn *atConn) (location.Observation, error) {
	lines, err := conn.command("AT+QGPSLOC=2", commandTimeout)
	var cme *CMEError
	if errors.As(err, &cme) && cme.Code == cmeNotFixed {
		return location.Observation{}, ErrNotFixed
	}
	if err != nil {
		return location.Observation{}, err
	}
	for _, l := range lines {
		if strings.HasPrefix(l, "+QGPSLOC:") {
			return ParseQGPSLOC(l, m.cfg.UERE)
		}
	}
	return location.Observation{}, fmt.Errorf("modem: no +QGPSLOC line in %q", lines)
}

// ParseQGPSLOC decodes a +QGPSLOC response in decimal-degree format:
//
//	+QGPSLOC: <UTC>,<lat>,<lon>,<hdop>,<alt>,<fix>,<cog>,<spkm>,<spkn>,<date>,<nsat>
func ParseQGPSLOC(line string, uere float64) (location.Observation, error) {
	body, ok := strings.CutPrefix(line, "+QGPSLOC:")
	if !ok {
		return location.Observation{}, fmt.Errorf("modem: not a +QGPSLOC line: %q", line)
	}
	f := strings.Split(strings.TrimSpace(body), ",")
	if len(f) < 9 {
		return location.Observation{}, fmt.Errorf("modem: short +QGPSLOC line: %q", line)
	}

	num := func(i int) (float64, error) {
		v, err := strconv.ParseFloat(strings.TrimSpace(f[i]), 64)
		if err != nil {
			return 0, fmt.Errorf("modem: +QGPSLOC field %d: %w", i, err)
		}
		return v, nil
	}

	var vals [9]float64
	for _, i := range []int{1, 2, 3, 4, 6, 7} {
		v, err := num(i)
		if err != nil {
			return location.Observation{}, err
		}
		vals[i] = v
	}
	mode, err := strconv.Atoi(strings.TrimSpace(f[5]))
	if err != nil {
		return location.Observation{}, fmt.Errorf("modem: +QGPSLOC fix field: %w", err)
	}

	return location.Observation{
		Mode:             mode,
		Latitude:         vals[1],
		Longitude:        vals[2],
		Accuracy:         vals[3] * uere,
		Altitude:         vals[4],
		AltitudeAccuracy: math.NaN(),
		Heading:          vals[6],
		Speed:            vals[7] * kmhToMPS,
	}, nil
}

// atConn serializes AT commands over a port. A reader goroutine turns the
// port into a stream of non-empty lines.
type atConn struct {
	port  io.ReadWriteCloser
	lines chan string
}

func newATConn(port io.ReadWriteCloser) *atConn {
	c := &atConn{port: port, lines: make(chan string, 32)}
	go func() {
		defer close(c.lines)
		sc := bufio.NewScanner(port)
		for sc.Scan() {
			if l := strings.TrimSpace(sc.Text()); l != "" {
				c.lines <- l
			}
		}
	}()
	return c
}

// command sends cmd and collects the information lines of its response.
func (c *atConn) command(cmd string, timeout time.Duration) ([]string, error) {
	// drop unsolicited lines left from earlier exchanges
	for drained := false; !drained; {
		select {
		case _, ok := <-c.lines:
			if !ok {
				return nil, io.ErrClosedPipe
			}
		default:
			drained = true
		}
	}

	if _, err := io.WriteString(c.port, cmd+"\r"); err != nil {
		return nil, err
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var info []string
	for {
		select {
		case l, ok := <-c.lines:
			if !ok {
				return nil, io.ErrClosedPipe
			}
			switch {
			case l == cmd:
				// echo
			case l == "OK":
				return info, nil
			case l == "ERROR":
				return info, ErrAT
			case strings.HasPrefix(l, "+CME ERROR:"):
				code, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(l, "+CME ERROR:")))
				if err != nil {
					return info, fmt.Errorf("%w: %s", ErrAT, l)
				}
				return info, &CMEError{Code: code}
			default:
				info = append(info, l)
			}
		case <-deadline.C:
			return info, fmt.Errorf("%w to %s", ErrTimeout, cmd)
		}
	}
}

func (c *atConn) close() {
	c.port.Close()
	for range c.lines {
	}
}
