// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package upload

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/locator/internal/location"
)

// Publisher is the part of an MQTT client the sink needs.
type Publisher interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes each batch as one QoS 1 message.
type MQTTSink struct {
	client Publisher
	topic  string
	device string
	logger *slog.Logger
	now    func() time.Time
}

func NewMQTTSink(client Publisher, topic, device string, logger *slog.Logger) *MQTTSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MQTTSink{
		client: client,
		topic:  topic,
		device: device,
		logger: logger.With("component", "upload"),
		now:    time.Now,
	}
}

// Connect opens a paho client to broker. Paho keeps reconnecting on its own
// afterwards. connected is false when the first attempt has not finished
// yet and is being retried in the background.
func Connect(broker, clientID string) (client mqtt.Client, connected bool, err error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(10 * time.Second)

	client = mqtt.NewClient(opts)
	connected, err = awaitConnect(client.Connect(), 15*time.Second)
	if err != nil {
		return nil, false, err
	}
	return client, connected, nil
}

// awaitConnect waits up to timeout for a connect token. A token still
// pending after timeout is not an error: SetConnectRetry keeps trying.
func awaitConnect(token mqtt.Token, timeout time.Duration) (bool, error) {
	if !token.WaitTimeout(timeout) {
		return false, nil
	}
	if err := token.Error(); err != nil {
		return false, err
	}
	return true, nil
}

// Upload publishes fixes and waits for the broker's acknowledgement or ctx.
func (s *MQTTSink) Upload(ctx context.Context, fixes []location.Fix) error {
	if len(fixes) == 0 {
		return nil
	}
	if !s.client.IsConnectionOpen() {
		return &TransportError{Op: "publish", Entries: len(fixes), Err: ErrNotConnected}
	}

	batch := NewBatch(s.device, fixes, s.now())
	payload, err := json.Marshal(batch)
	if err != nil {
		return &TransportError{Op: "encode", Entries: len(fixes), Err: err}
	}

	token := s.client.Publish(s.topic, 1, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return &TransportError{Op: "publish", Entries: len(fixes), Err: ctx.Err()}
	}
	if err := token.Error(); err != nil {
		return &TransportError{Op: "publish", Entries: len(fixes), Err: err}
	}

	s.logger.Info("published batch", "batch", batch.ID, "entries", len(batch.Entries), "topic", s.topic)
	return nil
}
