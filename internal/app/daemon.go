// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/relabs-tech/locator/internal/cache"
	"github.com/relabs-tech/locator/internal/config"
	"github.com/relabs-tech/locator/internal/demo"
	"github.com/relabs-tech/locator/internal/gnss"
	"github.com/relabs-tech/locator/internal/location"
	"github.com/relabs-tech/locator/internal/locator"
	"github.com/relabs-tech/locator/internal/modem"
	"github.com/relabs-tech/locator/internal/netmon"
	"github.com/relabs-tech/locator/internal/upload"
	"github.com/relabs-tech/locator/internal/wifi"
)

// Demo position: Leuven, Belgium.
const demoLat, demoLon = 50.8798, 4.7005

// wiring is the set of collaborators the orchestrator runs against.
type wiring struct {
	sources []location.Source
	net     locator.Connectivity
	sink    locator.UploadSink
	// background loops that live as long as the daemon
	loops []func(ctx context.Context)
	close func()
}

// RunDaemon wires drivers, sources and the orchestrator from cfg and runs
// until ctx is cancelled.
func RunDaemon(ctx context.Context, cfg *config.Config, demoMode bool, logger *slog.Logger) error {
	var (
		w   *wiring
		err error
	)
	if demoMode {
		w = demoWiring(cfg, logger)
	} else {
		w, err = hardwareWiring(cfg, logger)
		if err != nil {
			return err
		}
	}
	defer w.close()

	o, err := locator.New(orchestratorConfig(cfg), locator.Deps{
		Sources: w.sources,
		Net:     w.net,
		Sink:    w.sink,
		Cache:   cache.New(cfg.Staleness, cfg.CacheMaxEntries),
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	if cfg.WebServerPort > 0 {
		status := NewStatusServer(logger)
		o.Observe(status.Publish)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := status.Run(ctx, fmt.Sprintf(":%d", cfg.WebServerPort)); err != nil {
				logger.Error("web server failed", "component", "web", "error", err)
			}
		}()
	}

	for _, loop := range w.loops {
		wg.Add(1)
		go func(loop func(context.Context)) {
			defer wg.Done()
			loop(ctx)
		}(loop)
	}

	logger.Info("locator running", "device", cfg.DeviceID, "demo", demoMode)
	err = o.Run(ctx)
	cancel()
	return err
}

func orchestratorConfig(cfg *config.Config) locator.Config {
	return locator.Config{
		UpdateInterval:    cfg.UpdateInterval,
		ConnTimeout:       cfg.ConnTimeout,
		ShortRangeTimeout: cfg.ShortRangeTimeout,
		CellTimeout:       cfg.CellTimeout,
		SatTimeout:        cfg.SatTimeout,
		UploadTimeout:     cfg.UploadTimeout,
		SatelliteAid:      cfg.SatelliteAid,
		DedupeDegrees:     cfg.DedupeDegrees,
		MinUploadInterval: cfg.MinUploadInterval,
	}
}

func hardwareWiring(cfg *config.Config, logger *slog.Logger) (*wiring, error) {
	resolver, err := wifi.NewGoogleResolver(cfg.GoogleAPIKey)
	if err != nil {
		return nil, err
	}
	monitor, err := netmon.New(cfg.NetProbeAddr, cfg.NetProbeInterval, cfg.NetActivateCommand, logger)
	if err != nil {
		return nil, err
	}

	client, connected, err := upload.Connect(cfg.MQTTBroker, cfg.MQTTClientID)
	if err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.MQTTBroker, err)
	}
	if connected {
		logger.Info("connected to MQTT broker", "component", "upload", "broker", cfg.MQTTBroker)
	} else {
		logger.Warn("MQTT broker not reachable yet, retrying in background", "component", "upload", "broker", cfg.MQTTBroker)
	}

	gnssCfg := gnss.Config{
		Port:     cfg.GNSSSerialPort,
		BaudRate: uint(cfg.GNSSBaudRate),
		Assist:   cfg.GNSSAssist,
	}
	if cfg.GNSSPowerPin != "" {
		power, err := gnss.NewGPIOPower(cfg.GNSSPowerPin)
		if err != nil {
			client.Disconnect(250)
			return nil, err
		}
		gnssCfg.Power = power
	}
	receiver := gnss.NewReceiver(gnssCfg, logger)
	mdm := modem.New(modem.Config{
		Port:         cfg.ModemSerialPort,
		BaudRate:     cfg.ModemBaudRate,
		PollInterval: cfg.ModemPoll,
	}, logger)

	return &wiring{
		sources: []location.Source{
			location.NewShortRange(wifi.NewIWScanner(cfg.WiFiInterface), resolver, logger),
			location.NewRadio(location.Cellular, mdm, location.NewCellularFilter(cfg.CellularAccuracyLimit), logger),
			location.NewRadio(location.Satellite, receiver, location.NewSatelliteFilter(cfg.SatelliteAccuracyLimit, cfg.SatelliteFixTries), logger),
		},
		net:   monitor,
		sink:  upload.NewMQTTSink(client, cfg.TopicFixes, cfg.DeviceID, logger),
		loops: []func(context.Context){monitor.Run},
		close: func() { client.Disconnect(250) },
	}, nil
}

// demoWiring simulates every driver. The network comes up shortly after a
// request and drops again later, and another program switches the
// satellite receiver on from time to time.
func demoWiring(cfg *config.Config, logger *slog.Logger) *wiring {
	track := demo.NewTrack(demoLat, demoLon)
	scanner, resolver := demo.Neighbourhood(track)

	cellDev := &demo.Device{Track: track, Interval: 2 * time.Second, Accuracy: 900}
	satDev := &demo.Device{Track: track, Interval: time.Second, Warmup: 4, Accuracy: 12}
	sat := location.NewRadio(location.Satellite, satDev, location.NewSatelliteFilter(cfg.SatelliteAccuracyLimit, cfg.SatelliteFixTries), logger)

	foreign := demo.ForeignSession{
		Track:    track,
		Every:    7 * time.Minute,
		Length:   90 * time.Second,
		Interval: 5 * time.Second,
		Accuracy: 20,
	}

	return &wiring{
		sources: []location.Source{
			location.NewShortRange(scanner, resolver, logger),
			location.NewRadio(location.Cellular, cellDev, location.NewCellularFilter(cfg.CellularAccuracyLimit), logger),
			sat,
		},
		net:  &demo.Network{Delay: 3 * time.Second, Linger: 4 * time.Minute},
		sink: demo.LogSink{Logger: logger},
		loops: []func(context.Context){
			func(ctx context.Context) { foreign.Run(ctx, sat.Observe) },
		},
		close: func() {},
	}
}
