// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package forkbeard provides helper functions for interacting with
// Bluetooth devices.
package forkbeard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"tinygo.org/x/bluetooth"
)

// DeviceCharacteristic returns a specified bluetooth.DeviceCharacteristic
// from a Bluetooth service.
func DeviceCharacteristic(dev *bluetooth.Device, srvID, charID bluetooth.UUID) (bluetooth.DeviceCharacteristic, error) {
	chars, err := Characteristics(dev, srvID, charID)
	if err != nil {
		return bluetooth.DeviceCharacteristic{}, err
	}
	return chars[0], nil
}

// Characteristics returns the specified characteristics of a Bluetooth
// service in the order of charIDs, discovering the service once.
func Characteristics(dev *bluetooth.Device, srvID bluetooth.UUID, charIDs ...bluetooth.UUID) ([]bluetooth.DeviceCharacteristic, error) {
	srv, err := dev.DiscoverServices([]bluetooth.UUID{srvID})
	if err != nil {
		return nil, fmt.Errorf("failed to discover service %s: %w", srvID, err)
	}
	if len(srv) == 0 {
		return nil, fmt.Errorf("service %s not found", srvID)
	}
	found, err := srv[0].DiscoverCharacteristics(charIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to discover characteristics of %s: %w", srvID, err)
	}
	chars := make([]bluetooth.DeviceCharacteristic, len(charIDs))
	for i, id := range charIDs {
		idx := slices.IndexFunc(found, func(c bluetooth.DeviceCharacteristic) bool {
			return c.UUID() == id
		})
		if idx < 0 {
			return nil, fmt.Errorf("device characteristic %s not found", id)
		}
		chars[i] = found[idx]
	}
	return chars, nil
}

// ReadCharacteristic reads data from a Bluetooth characteristic.
func ReadCharacteristic(char bluetooth.DeviceCharacteristic) ([]byte, error) {
	mtu, err := char.GetMTU()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain mtu of characteristic: %w", err)
	}
	buf := make([]byte, mtu)
	n, err := char.Read(buf)
	if err != nil && err != io.EOF {
		return buf[:n], fmt.Errorf("failed to read response from characteristic: %w", err)
	}
	return buf[:n], nil
}

// Notify enables notifications from char to fn, or disables them if
// fn is nil.
func Notify(char bluetooth.DeviceCharacteristic, fn func([]byte)) error {
	err := char.EnableNotifications(fn)
	if err != nil {
		if fn == nil {
			return fmt.Errorf("failed to disable notifications for %s: %w", char.UUID(), err)
		}
		return fmt.Errorf("failed to enable notifications for %s: %w", char.UUID(), err)
	}
	return nil
}

// Connect scans for the device with the given address and connects to
// it. If company is not negative, only devices advertising manufacturer
// data for that company identifier are considered. Connect returns
// when the device is connected or ctx is done.
func Connect(ctx context.Context, adapter *bluetooth.Adapter, addr bluetooth.Address, company int) (bluetooth.Device, error) {
	var (
		dev        bluetooth.Device
		connectErr error
		found      bool
	)
	stop := context.AfterFunc(ctx, func() { adapter.StopScan() })
	defer stop()
	err := adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		if result.Address != addr {
			return
		}
		if company >= 0 && !slices.ContainsFunc(result.ManufacturerData(), func(m bluetooth.ManufacturerDataElement) bool {
			return int(m.CompanyID) == company
		}) {
			return
		}
		found = true
		adapter.StopScan()
		dev, connectErr = adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	})
	if err != nil {
		return dev, fmt.Errorf("failed to scan: %w", err)
	}
	if !found {
		if ctx.Err() != nil {
			return dev, fmt.Errorf("device %s not found: %w", addr, ctx.Err())
		}
		return dev, errors.New("device not found")
	}
	if connectErr != nil {
		return dev, fmt.Errorf("failed to connect to %s: %w", addr, connectErr)
	}
	return dev, nil
}
