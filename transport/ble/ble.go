// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ble implements a record line transport as a Bluetooth LE GATT
// peripheral. Lines are sent as notifications on a single
// characteristic; a line longer than the notification payload is split
// across notifications and is reassembled by the central at the CRLF
// terminator.
package ble

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"
)

// Service and characteristic identifiers.
const (
	ServiceID = "6e1f0001-5c7b-4b8e-9a53-7070677265c0"
	LineID    = "6e1f0002-5c7b-4b8e-9a53-7070677265c0"
)

var (
	lineService = must(bluetooth.ParseUUID(ServiceID))
	lineChar    = must(bluetooth.ParseUUID(LineID))
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// DefaultPayload is the notification payload for the default ATT MTU of 23.
const DefaultPayload = 20

// Transport is a GATT peripheral notifying connected centrals of record
// lines.
type Transport struct {
	char    notifier
	payload int
	log     zerolog.Logger

	mu     sync.Mutex
	peers  map[bluetooth.Address]bool
	ignore map[bluetooth.Address]bool
}

type notifier interface {
	Write(p []byte) (int, error)
}

// Option configures a Transport.
type Option func(*Transport)

// WithPayload sets the maximum notification payload.
func WithPayload(n int) Option { return func(t *Transport) { t.payload = n } }

// Ignore excludes connections to or from addr from peer tracking. It is
// used to exclude the sensor when the adapter is also a central.
func Ignore(addr bluetooth.Address) Option {
	return func(t *Transport) { t.ignore[addr] = true }
}

// Advertise registers the line service on the enabled adapter and
// starts advertising it under name.
func Advertise(adapter *bluetooth.Adapter, name string, log zerolog.Logger, opts ...Option) (*Transport, error) {
	var char bluetooth.Characteristic
	t := newTransport(&char, log, opts...)
	adapter.SetConnectHandler(t.connectHandler)
	err := adapter.AddService(&bluetooth.Service{
		UUID: lineService,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &char,
				UUID:   lineChar,
				Flags:  bluetooth.CharacteristicNotifyPermission | bluetooth.CharacteristicReadPermission,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add line service: %w", err)
	}
	adv := adapter.DefaultAdvertisement()
	err = adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    name,
		ServiceUUIDs: []bluetooth.UUID{lineService},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to configure advertisement: %w", err)
	}
	err = adv.Start()
	if err != nil {
		return nil, fmt.Errorf("failed to start advertisement: %w", err)
	}
	log.Info().Str("name", name).Str("service", ServiceID).Msg("advertising line service")
	return t, nil
}

func newTransport(char notifier, log zerolog.Logger, opts ...Option) *Transport {
	t := &Transport{
		char:    char,
		payload: DefaultPayload,
		log:     log,
		peers:   make(map[bluetooth.Address]bool),
		ignore:  make(map[bluetooth.Address]bool),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Transport) connectHandler(dev bluetooth.Device, connected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ignore[dev.Address] {
		return
	}
	if connected {
		t.peers[dev.Address] = true
	} else {
		delete(t.peers, dev.Address)
	}
	t.log.Info().Stringer("peer", dev.Address).Bool("connected", connected).Int("peers", len(t.peers)).Msg("central connection changed")
}

// PeerConnected returns whether any central is connected.
func (t *Transport) PeerConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers) != 0
}

// Send notifies connected centrals of b.
func (t *Transport) Send(b []byte) error {
	for len(b) != 0 {
		n := min(len(b), t.payload)
		_, err := t.char.Write(b[:n])
		if err != nil {
			return fmt.Errorf("failed to notify line: %w", err)
		}
		b = b[n:]
	}
	return nil
}
