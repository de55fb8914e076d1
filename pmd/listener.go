// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmd

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/kortschak/ppgrec/internal/forkbeard"
)

// Listener implements PMD notification listening.
type Listener struct {
	cpDevice, dataDevice bluetooth.DeviceCharacteristic

	features Features

	mu       sync.Mutex
	handlers [measurementTypes]func([]byte)
}

// NewListener returns a new Listener for the provided Bluetooth device.
func NewListener(dev *bluetooth.Device) (*Listener, error) {
	chars, err := forkbeard.Characteristics(dev, pmdService, pmdCP, pmdData)
	if err != nil {
		return nil, fmt.Errorf("failed to get device pmd characteristics: %w", err)
	}
	cpDevice, dataDevice := chars[0], chars[1]
	// Section 5.1 Figure 1 shows 17 bytes, but this
	// is not otherwise documented and cp does not have
	// an MTU characteristic. The first two bytes are
	// the only relevant data for our use.
	var buf [32]byte
	n, err := cpDevice.Read(buf[:])
	if err != nil {
		return nil, fmt.Errorf("failed read device features: %w", err)
	}
	if n < 2 {
		return nil, fmt.Errorf("device features too short: %#x", buf[:n])
	}
	var feats Features
	copy(feats[:], buf[:2])
	l := &Listener{
		cpDevice:   cpDevice,
		features:   feats,
		dataDevice: dataDevice,
	}
	err = forkbeard.Notify(dataDevice, l.dispatch)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Listener) dispatch(buf []byte) {
	if len(buf) == 0 || int(buf[sampleTypeOffset]) >= measurementTypes {
		return
	}
	l.mu.Lock()
	handle := l.handlers[buf[sampleTypeOffset]]
	l.mu.Unlock()
	if handle != nil {
		handle(buf)
	}
}

// Settings returns the available setting for the recording and measurement type
// of the sensor the Listener is connected to.
func (l *Listener) Settings(ctx context.Context, m MeasureType) ([]Setting, error) {
	return querySettings(ctx, l.cpDevice, MeasureSettings, Online, m)
}

// SetHandler sets the notification handler, command, recording type and
// settings with the results of the h.Handler call. The handler is
// installed before the command is sent and is removed if the sensor
// rejects a start command.
func (l *Listener) SetHandler(ctx context.Context, h Handler) error {
	com, measureTyp, settings, handle := h.Handle()
	if int(measureTyp) >= len(l.handlers) {
		return fmt.Errorf("invalid measurement type: %d", measureTyp)
	}
	l.setHandler(measureTyp, handle)
	resp, err := sendCommand(ctx, l.cpDevice, com, Online, measureTyp, settings...)
	if err == nil {
		err = checkResponse(resp, com)
	}
	if err != nil && com == MeasureStart {
		l.setHandler(measureTyp, nil)
	}
	return err
}

func (l *Listener) setHandler(typ MeasureType, h func([]byte)) {
	l.mu.Lock()
	l.handlers[typ] = h
	l.mu.Unlock()
}

// Close disables notifications. The device remains connected.
func (l *Listener) Close() error {
	l.mu.Lock()
	l.handlers = [measurementTypes]func([]byte){}
	l.mu.Unlock()
	return forkbeard.Notify(l.dataDevice, nil)
}

// Features returns the set of features supported by the connected sensor.
func (l *Listener) Features() Features {
	return l.features
}

// Handler defines a PMD notification handler.
type Handler interface {
	// Handle returns the command, measurement types and
	// the settings to configure notifications with. The
	// function is called with the data for all notifications
	// of the specified measurement type.
	Handle() (Command, MeasureType, []Setting, func(buf []byte))
}
