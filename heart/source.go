// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heart

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"

	"github.com/kortschak/ppgrec/capture"
	"github.com/kortschak/ppgrec/record"
)

// Source is a capture.Source delivering heart rate and RR interval
// readings from a device's heart rate service.
type Source struct {
	dev *bluetooth.Device
	log zerolog.Logger
}

// NewSource returns a Source for the connected device.
func NewSource(dev *bluetooth.Device, log zerolog.Logger) *Source {
	return &Source{dev: dev, log: log}
}

// Supported returns true for the HR and RR modes.
func (s *Source) Supported(mode record.Mode) bool {
	return mode == record.HRValue || mode == record.RRSignal
}

// Subscribe enables heart rate notifications. The device determines
// the notification rate; in HR mode notifications arriving sooner than
// interval after the previously delivered reading are dropped. In RR
// mode every interval reported by the sensor is delivered.
func (s *Source) Subscribe(_ context.Context, mode record.Mode, interval time.Duration, fn func(record.Reading)) (capture.Subscription, error) {
	if !s.Supported(mode) {
		return nil, errors.New("unsupported mode: " + mode.String())
	}
	sub := &subscription{}
	conv := newConverter(mode, interval)
	l, err := NewRateListener(s.dev, func(m Rate, at time.Time, err error) {
		sub.gate.Do(func() {
			if err != nil {
				s.log.Debug().Err(err).Msg("dropped heart rate notification")
				return
			}
			for _, r := range conv.readings(m, at) {
				fn(r)
			}
		})
	})
	if err != nil {
		return nil, err
	}
	sub.l = l
	return sub, nil
}

type subscription struct {
	gate capture.Gate
	l    *RateListener
}

func (s *subscription) Unsubscribe() error {
	s.gate.Close()
	return s.l.Close()
}

// converter turns heart rate notifications into readings.
type converter struct {
	mode     record.Mode
	interval time.Duration
	last     time.Time
}

func newConverter(mode record.Mode, interval time.Duration) *converter {
	return &converter{mode: mode, interval: interval}
}

func (c *converter) readings(m Rate, at time.Time) []record.Reading {
	switch c.mode {
	case record.HRValue:
		if !c.last.IsZero() && at.Sub(c.last) < c.interval {
			return nil
		}
		c.last = at
		return []record.Reading{{
			TimestampUsec: uint64(at.UnixMicro()),
			Accuracy:      m.Accuracy(),
			Value:         float32(m.HR),
		}}
	case record.RRSignal:
		if len(m.RR) == 0 {
			return nil
		}
		// The last interval in a notification ends at its
		// arrival; earlier intervals end at the start of the
		// interval that follows them.
		readings := make([]record.Reading, len(m.RR))
		end := at
		for i := len(m.RR) - 1; i >= 0; i-- {
			readings[i] = record.Reading{
				TimestampUsec: uint64(end.UnixMicro()),
				Accuracy:      m.Accuracy(),
				Value:         float32(float64(m.RR[i]) / float64(time.Millisecond)),
			}
			end = end.Add(-m.RR[i])
		}
		return readings
	}
	return nil
}
