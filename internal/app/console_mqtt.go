// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/locator/internal/upload"
)

// RunConsoleMQTT prints every fix batch published on topic until Ctrl+C.
func RunConsoleMQTT(broker, clientID, topic string) error {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", broker)

	token := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		if err := printBatch(os.Stdout, msg.Payload()); err != nil {
			log.Printf("console: batch unmarshal error: %v", err)
		}
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: subscribed to %s", topic)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

func printBatch(w io.Writer, payload []byte) error {
	var b upload.Batch
	if err := json.Unmarshal(payload, &b); err != nil {
		return err
	}

	fmt.Fprintf(w, "[BATCH] id=%s device=%s entries=%d\n", b.ID, b.Device, len(b.Entries))
	for _, e := range b.Entries {
		d := e.Data
		fmt.Fprintf(w,
			"[FIX ]  time=%s lat=%.6f lon=%.6f acc=%.0fm source=%s\n",
			time.UnixMilli(d.TimestampMs).UTC().Format(time.RFC3339), d.Latitude, d.Longitude, d.Accuracy, d.Source,
		)
	}
	return nil
}
