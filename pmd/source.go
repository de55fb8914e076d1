// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmd

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/kortschak/ppgrec/capture"
	"github.com/kortschak/ppgrec/record"
)

// ppgAccuracy is reported for PMD PPG readings; the stream carries
// no signal quality indicator.
const ppgAccuracy = -1

// commandTimeout bounds control point exchanges.
const commandTimeout = 5 * time.Second

// Source is a capture.Source delivering PPG readings from a device's
// PMD service.
type Source struct {
	l   listener
	log zerolog.Logger
}

// listener is the subset of *Listener used by Source.
type listener interface {
	Features() Features
	Settings(context.Context, MeasureType) ([]Setting, error)
	SetHandler(context.Context, Handler) error
}

// NewSource returns a Source using the provided Listener.
func NewSource(l *Listener, log zerolog.Logger) *Source {
	return &Source{l: l, log: log}
}

// Supported returns true for the PPG mode when the sensor reports PPG
// support.
func (s *Source) Supported(mode record.Mode) bool {
	return mode == record.PPGSignal && s.l.Features().Supports(SupportPPG)
}

// Subscribe starts the PPG stream at the supported sample rate closest
// to the requested interval. Each sample in a notification is delivered
// as a separate reading, timestamped from the frame's timestamp.
func (s *Source) Subscribe(ctx context.Context, mode record.Mode, interval time.Duration, fn func(record.Reading)) (capture.Subscription, error) {
	if !s.Supported(mode) {
		return nil, errors.New("unsupported mode: " + mode.String())
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	freq := uint16(PPGDefaultSampleFreq)
	if interval > 0 {
		want := uint16(time.Second / interval)
		settings, err := s.l.Settings(ctx, PPGType)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to query ppg settings")
		} else if f, ok := ClosestSampleRate(settings, want); ok {
			freq = f
		}
	}
	step := time.Second / time.Duration(freq)
	s.log.Debug().Uint16("sample_freq", freq).Msg("starting ppg stream")

	sub := &subscription{l: s.l}
	err := s.l.SetHandler(ctx, PPGHandler{
		SampleFreq: freq,
		Handler: func(buf []byte) {
			sub.gate.Do(func() {
				var m PPG
				err := m.UnmarshalBinary(buf)
				if err != nil {
					s.log.Debug().Err(err).Msg("dropped ppg notification")
					return
				}
				for i, v := range m.Samples {
					fn(record.Reading{
						TimestampUsec: uint64(m.SampleTime(i, step).UnixMicro()),
						Accuracy:      ppgAccuracy,
						Value:         v.Value(),
					})
				}
			})
		},
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

type subscription struct {
	gate capture.Gate
	l    listener
}

func (s *subscription) Unsubscribe() error {
	s.gate.Close()
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return s.l.SetHandler(ctx, PPGHandler{})
}
