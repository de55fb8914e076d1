// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package heart implements handling of the standard 180d Bluetooth
// heart rate service notifications.
package heart

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/kortschak/ppgrec/internal/forkbeard"
)

const (
	RateServiceID     = "180d"
	RateMeasurementID = "2a37"
)

var (
	hrService     = must(bluetooth.ParseUUID(RateServiceID))
	hrMeasurement = must(bluetooth.ParseUUID(RateMeasurementID))
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// RateListener implements handling of heart rate notifications.
type RateListener struct {
	char bluetooth.DeviceCharacteristic
}

// NewRateListener returns a new RateListener for the provided Bluetooth
// device. The h function is called with received heart rate notifications
// and the time they were received.
func NewRateListener(dev *bluetooth.Device, h func(Rate, time.Time, error)) (*RateListener, error) {
	char, err := forkbeard.DeviceCharacteristic(dev, hrService, hrMeasurement)
	if err != nil {
		return nil, fmt.Errorf("failed to get heart rate device characteristic: %w", err)
	}
	err = forkbeard.Notify(char, func(buf []byte) {
		now := time.Now()
		var m Rate
		err := m.UnmarshalBinary(buf)
		h(m, now, err)
	})
	if err != nil {
		return nil, err
	}
	return &RateListener{char: char}, nil
}

// Close disables heart rate notifications from the connected sensor.
func (l *RateListener) Close() error { return forkbeard.Notify(l.char, nil) }

// Rate is a heart rate measurement.
type Rate struct {
	HR               uint16
	RR               []time.Duration
	Energy           int // kJ
	EnergyExpended   bool
	Contact          bool
	ContactSupported bool
}

// Accuracy returns a signal quality indicator for the measurement:
// -1 when the sensor does not report contact, 3 when in contact and
// 0 otherwise.
func (m Rate) Accuracy() int {
	switch {
	case !m.ContactSupported:
		return -1
	case m.Contact:
		return 3
	default:
		return 0
	}
}

func (m *Rate) UnmarshalBinary(data []byte) error {
	// https://www.bluetooth.com/specifications/specs/heart-rate-service-1-0/

	if len(data) < 2 {
		return io.ErrUnexpectedEOF
	}

	// 3.1.1.1. Flags Field
	// | 0x10 | 0x8 | 0x4  0x2 | 0x1 |
	// |  rr  | nrg | scs  cnt | fmt |
	hrFormat := int(data[0] & 0x01)
	contact := data[0]&0x6 == 0x6
	contactSupported := data[0]&0x4 != 0
	energyExpended := data[0]&0x8 != 0
	rrPresent := data[0]&0x10 != 0
	offset := 1

	if len(data) < offset+1+hrFormat {
		return io.ErrUnexpectedEOF
	}
	var hrValue uint16
	if hrFormat == 1 {
		hrValue = binary.LittleEndian.Uint16(data[offset:])
	} else {
		hrValue = uint16(data[offset])
	}
	offset += 1 + hrFormat

	energy := -1
	if energyExpended {
		if len(data) < offset+2 {
			return io.ErrUnexpectedEOF
		}
		energy = int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
	}

	var rr []time.Duration
	if rrPresent {
		rrData := data[offset:]
		if len(rrData)%2 != 0 {
			return fmt.Errorf("odd rr interval data length: %d", len(rrData))
		}
		rr = make([]time.Duration, 0, len(rrData)/2)
		for i := 0; i < len(rrData); i += 2 {
			rr = append(rr, time.Duration(binary.LittleEndian.Uint16(rrData[i:]))*time.Second/1024)
		}
	}

	*m = Rate{
		HR:               hrValue,
		RR:               rr,
		Energy:           energy,
		EnergyExpended:   energyExpended,
		Contact:          contact,
		ContactSupported: contactSupported,
	}
	return nil
}
