// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package battery implements reading of the standard 180f Bluetooth
// battery service characteristic.
package battery

import (
	"context"
	"fmt"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/kortschak/ppgrec/internal/forkbeard"
)

const (
	ServiceID             = "180f"
	LevelCharacteristicID = "2a19"
)

var (
	batteryService             = must(bluetooth.ParseUUID(ServiceID))
	batteryLevelCharacteristic = must(bluetooth.ParseUUID(LevelCharacteristicID))
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// DefaultLow is the default low battery threshold in percent.
const DefaultLow = 15

// Level returns the battery level for the provided Bluetooth device.
func Level(dev *bluetooth.Device) (int, error) {
	// https://www.bluetooth.com/specifications/specs/battery-service/

	batteryDevice, err := forkbeard.DeviceCharacteristic(dev, batteryService, batteryLevelCharacteristic)
	if err != nil {
		return 0, fmt.Errorf("failed to get battery device characteristic: %w", err)
	}
	resp, err := forkbeard.ReadCharacteristic(batteryDevice)
	if err != nil {
		return 0, fmt.Errorf("failed read battery characteristic: %w", err)
	}
	if len(resp) == 0 {
		return 0, fmt.Errorf("empty battery level response")
	}
	if resp[0] > 100 {
		return 0, fmt.Errorf("invalid battery level: %d", resp[0])
	}
	return int(resp[0]), nil
}

// Status is a battery state.
type Status struct {
	Level int // percent
	Low   bool
}

// NewStatus returns the Status for level given the low threshold.
func NewStatus(level, low int) Status {
	return Status{Level: level, Low: level <= low}
}

func (s Status) String() string {
	if s.Low {
		return fmt.Sprintf("%d%% (low)", s.Level)
	}
	return fmt.Sprintf("%d%%", s.Level)
}

// Watch polls read every period until ctx is done. fn is called with
// the first status read and then whenever the level changes, and with
// any read error.
func Watch(ctx context.Context, read func() (int, error), period time.Duration, low int, fn func(Status, error)) {
	last := -1
	poll := func() {
		level, err := read()
		if err != nil {
			fn(Status{}, err)
			return
		}
		if level == last {
			return
		}
		last = level
		fn(NewStatus(level, low), nil)
	}
	poll()
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			poll()
		}
	}
}
