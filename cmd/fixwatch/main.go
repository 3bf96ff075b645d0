// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/locator/internal/app"
	"github.com/relabs-tech/locator/internal/config"
)

func main() {
	configPath := flag.String("config", "locator.conf", "configuration file")
	flag.Parse()

	log.Println("starting fixwatch console (MQTT subscriber)")

	// Only the MQTT keys matter here
	cfg, err := config.LoadMQTT(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsoleMQTT(cfg.MQTTBroker, cfg.MQTTClientID+"-fixwatch", cfg.TopicFixes); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
