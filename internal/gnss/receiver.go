// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package gnss drives a UART satellite receiver speaking NMEA 0183.
package gnss

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/locator/internal/location"
)

// UERE is the user equivalent range error in meters used to turn dilution
// of precision into an accuracy radius.
const UERE = 5.0

const knotsToMPS = 0.514444

var ErrRunning = errors.New("gnss: receiver already running")

// Config describes the receiver's UART.
type Config struct {
	Port     string
	BaudRate uint
	// Assist sentences are written after opening the port when network
	// assistance is allowed.
	Assist []string
	// Power, if set, is switched on for the duration of a session.
	Power PowerSwitch
}

// Receiver implements location.Device.
type Receiver struct {
	cfg    Config
	open   func(Config) (io.ReadWriteCloser, error)
	logger *slog.Logger

	mu   sync.Mutex
	port io.ReadWriteCloser
	wg   sync.WaitGroup
}

func NewReceiver(cfg Config, logger *slog.Logger) *Receiver {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{cfg: cfg, open: openSerial, logger: logger.With("component", "gnss")}
}

func openSerial(cfg Config) (io.ReadWriteCloser, error) {
	return serial.Open(serial.OpenOptions{
		PortName:              cfg.Port,
		BaudRate:              cfg.BaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	})
}

// Start opens the port and streams observations to deliver until Stop.
func (r *Receiver) Start(aid location.AidMode, deliver func(location.Observation)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.port != nil {
		return ErrRunning
	}

	if r.cfg.Power != nil {
		if err := r.cfg.Power.On(); err != nil {
			return fmt.Errorf("gnss: power on: %w", err)
		}
	}

	port, err := r.open(r.cfg)
	if err != nil {
		r.powerOff()
		return fmt.Errorf("gnss: open %s: %w", r.cfg.Port, err)
	}
	r.logger.Info("serial port opened", "port", r.cfg.Port, "baud", r.cfg.BaudRate, "aid", aid.String())

	if aid == location.AidNetwork {
		for _, s := range r.cfg.Assist {
			if _, err := io.WriteString(port, s+"\r\n"); err != nil {
				r.logger.Warn("assist sentence not written", "sentence", s, "error", err)
			}
		}
	}

	r.port = port
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := Decode(port, deliver); err != nil {
			r.logger.Debug("read loop ended", "error", err)
		}
	}()
	return nil
}

// Stop closes the port and waits for the read loop.
func (r *Receiver) Stop() error {
	r.mu.Lock()
	port := r.port
	r.port = nil
	r.mu.Unlock()

	if port == nil {
		return nil
	}
	err := port.Close()
	r.wg.Wait()
	r.powerOff()
	r.logger.Info("serial port closed", "port", r.cfg.Port)
	return err
}

func (r *Receiver) powerOff() {
	if r.cfg.Power == nil {
		return
	}
	if err := r.cfg.Power.Off(); err != nil {
		r.logger.Warn("power off failed", "error", err)
	}
}

// Decode reads NMEA lines from rd and delivers one observation per RMC
// sentence until rd fails. GSA and GGA sentences in between refine it.
func Decode(rd io.Reader, deliver func(location.Observation)) error {
	var st decoder
	sc := bufio.NewScanner(rd)
	for sc.Scan() {
		if obs, ok := st.feed(sc.Text()); ok {
			deliver(obs)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

// decoder accumulates the latest GSA and GGA data.
type decoder struct {
	fixType  string
	hdop     float64
	vdop     float64
	quality  string
	altitude float64
	haveGGA  bool
}

func (d *decoder) feed(line string) (location.Observation, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return location.Observation{}, false
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return location.Observation{}, false
	}

	switch m := sentence.(type) {
	case nmea.GSA:
		d.fixType = m.FixType
		d.hdop = m.HDOP
		d.vdop = m.VDOP
	case nmea.GGA:
		d.quality = m.FixQuality
		d.altitude = m.Altitude
		d.haveGGA = true
		if d.hdop == 0 {
			d.hdop = m.HDOP
		}
	case nmea.RMC:
		return d.observation(m), true
	}
	return location.Observation{}, false
}

func (d *decoder) observation(m nmea.RMC) location.Observation {
	obs := location.Observation{
		Mode:             d.mode(m),
		Latitude:         m.Latitude,
		Longitude:        m.Longitude,
		Accuracy:         math.NaN(),
		Altitude:         d.altitude,
		AltitudeAccuracy: math.NaN(),
		Heading:          m.Course,
		Speed:            m.Speed * knotsToMPS,
	}
	if d.hdop > 0 {
		obs.Accuracy = d.hdop * UERE
	}
	if obs.Mode == location.Mode3D && d.vdop > 0 {
		obs.AltitudeAccuracy = d.vdop * UERE
	}
	return obs
}

func (d *decoder) mode(m nmea.RMC) int {
	if m.Validity != nmea.ValidRMC {
		return location.ModeNoFix
	}
	switch d.fixType {
	case nmea.Fix3D:
		return location.Mode3D
	case nmea.Fix2D:
		return location.Mode2D
	case nmea.FixNone:
		return location.ModeNoFix
	}
	// no GSA seen yet
	if d.haveGGA && d.quality != nmea.Invalid {
		return location.Mode2D
	}
	return location.ModeNoFix
}
