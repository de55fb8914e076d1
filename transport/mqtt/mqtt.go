// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mqtt implements a record line transport over an MQTT broker.
package mqtt

import (
	"bytes"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/kortschak/ppgrec/internal/errors"
)

// Config holds the broker connection parameters.
type Config struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte

	// Timeout bounds connection, publish and
	// subscribe waits. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout is the default wait for broker operations.
const DefaultTimeout = 2 * time.Second

// quiesce is the disconnect grace period in milliseconds.
const quiesce = 250

// Transport publishes record lines to an MQTT topic.
type Transport struct {
	client  paho.Client
	topic   string
	qos     byte
	timeout time.Duration
	log     zerolog.Logger
}

// Dial connects to the broker described by cfg.
func Dial(cfg Config, log zerolog.Logger) (*Transport, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("mqtt connection lost")
	})
	opts.SetOnConnectHandler(func(paho.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("mqtt connected")
	})

	t := New(paho.NewClient(opts), cfg, log)
	tok := t.client.Connect()
	if !tok.WaitTimeout(t.timeout) {
		return nil, errors.NewFactory().WithData(errors.ErrConnect, cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, errors.Wrap(errors.ErrConnect, err).WithData(cfg.Broker)
	}
	return t, nil
}

// New returns a Transport using an existing client.
func New(client paho.Client, cfg Config, log zerolog.Logger) *Transport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Transport{
		client:  client,
		topic:   cfg.Topic,
		qos:     cfg.QoS,
		timeout: timeout,
		log:     log,
	}
}

// PeerConnected returns whether the broker connection is up.
func (t *Transport) PeerConnected() bool { return t.client.IsConnected() }

// Send publishes b to the configured topic.
func (t *Transport) Send(b []byte) error {
	tok := t.client.Publish(t.topic, t.qos, false, bytes.Clone(b))
	if !tok.WaitTimeout(t.timeout) {
		return fmt.Errorf("publish to %s timed out after %v", t.topic, t.timeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", t.topic, err)
	}
	return nil
}

// Subscribe calls fn with the payload of each message received on the
// configured topic.
func (t *Transport) Subscribe(fn func(payload []byte)) error {
	tok := t.client.Subscribe(t.topic, t.qos, func(_ paho.Client, msg paho.Message) {
		fn(msg.Payload())
	})
	if !tok.WaitTimeout(t.timeout) {
		return errors.NewFactory().WithData(errors.ErrSubscribe, t.topic)
	}
	if err := tok.Error(); err != nil {
		return errors.Wrap(errors.ErrSubscribe, err).WithData(t.topic)
	}
	return nil
}

// Close disconnects from the broker.
func (t *Transport) Close() error {
	t.client.Disconnect(quiesce)
	return nil
}
