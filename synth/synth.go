// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package synth provides a synthetic sensor source for running the
// capture pipeline without hardware.
package synth

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kortschak/ppgrec/capture"
	"github.com/kortschak/ppgrec/record"
)

// Defaults for the synthetic signal.
const (
	DefaultRate = 64 // beats per minute

	// rateSwing is the amplitude of the slow heart rate
	// variation and ratePeriod is its period.
	rateSwing  = 4
	ratePeriod = 20 * time.Second

	ppgBaseline  = 2000
	ppgSystolic  = 600
	ppgDicrotic  = 180
	noiseScale   = 6
	fullAccuracy = 3
)

// Source is a capture.Source generating plausible PPG, heart rate and
// RR interval readings on a ticker.
type Source struct {
	rate float64
	seed uint64
	log  zerolog.Logger
	now  func() time.Time
}

// Option configures a Source.
type Option func(*Source)

// WithRate sets the mean heart rate in beats per minute.
func WithRate(bpm float64) Option { return func(s *Source) { s.rate = bpm } }

// WithSeed sets the noise seed.
func WithSeed(seed uint64) Option { return func(s *Source) { s.seed = seed } }

// WithLogger sets the diagnostic logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Source) { s.log = l } }

// WithClock sets the clock used to timestamp readings.
func WithClock(now func() time.Time) Option { return func(s *Source) { s.now = now } }

// New returns a new synthetic Source.
func New(opts ...Option) *Source {
	s := &Source{
		rate: DefaultRate,
		seed: 1,
		log:  zerolog.Nop(),
		now:  time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Supported returns true for all valid modes.
func (s *Source) Supported(mode record.Mode) bool { return mode.Valid() }

// Subscribe starts delivering a reading for mode every interval until
// the returned subscription is cancelled. The subscription outlives ctx.
func (s *Source) Subscribe(_ context.Context, mode record.Mode, interval time.Duration, fn func(record.Reading)) (capture.Subscription, error) {
	if !s.Supported(mode) {
		return nil, errors.New("unsupported mode: " + mode.String())
	}
	if interval <= 0 {
		return nil, errors.New("non-positive interval")
	}
	g := NewGenerator(mode, s.rate, s.seed)
	sub := &subscription{done: make(chan struct{})}
	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		s.log.Debug().Stringer("mode", mode).Dur("interval", interval).Msg("synthetic source started")
		for {
			select {
			case <-sub.done:
				s.log.Debug().Stringer("mode", mode).Msg("synthetic source stopped")
				return
			case <-t.C:
				now := s.now()
				fn(record.Reading{
					TimestampUsec: uint64(now.UnixMicro()),
					Accuracy:      fullAccuracy,
					Value:         g.Next(now),
				})
			}
		}
	}()
	return sub, nil
}

type subscription struct {
	once sync.Once
	done chan struct{}
	wg   sync.WaitGroup
}

// Unsubscribe stops the generator and waits for any callback in
// progress to return.
func (s *subscription) Unsubscribe() error {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}

// Generator produces synthetic values for a mode as a function of time.
type Generator struct {
	mode  record.Mode
	rate  float64
	rnd   *rand.Rand
	start time.Time
}

// NewGenerator returns a Generator for mode with the given mean heart
// rate. Generators with the same seed produce the same sequence for
// the same times.
func NewGenerator(mode record.Mode, bpm float64, seed uint64) *Generator {
	return &Generator{
		mode: mode,
		rate: bpm,
		rnd:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Next returns the value at t. The first call fixes the generator's
// time origin.
func (g *Generator) Next(t time.Time) float32 {
	if g.start.IsZero() {
		g.start = t
	}
	elapsed := t.Sub(g.start).Seconds()
	switch g.mode {
	case record.PPGSignal:
		return float32(g.ppg(elapsed) + g.rnd.NormFloat64()*noiseScale)
	case record.HRValue:
		return float32(g.heartRate(elapsed))
	case record.RRSignal:
		return float32(60000 / g.heartRate(elapsed))
	}
	return 0
}

// heartRate returns the instantaneous heart rate at elapsed seconds.
func (g *Generator) heartRate(elapsed float64) float64 {
	return g.rate + rateSwing*math.Sin(2*math.Pi*elapsed/ratePeriod.Seconds())
}

// ppg returns a pulse wave made of a systolic peak followed by a
// smaller dicrotic wave in each beat.
func (g *Generator) ppg(elapsed float64) float64 {
	// The beat phase uses the mean rate so that the
	// waveform period is stable.
	_, phase := math.Modf(elapsed * g.rate / 60)
	return ppgBaseline +
		ppgSystolic*gauss(phase, 0.2, 0.07) +
		ppgDicrotic*gauss(phase, 0.55, 0.1)
}

func gauss(x, mu, sigma float64) float64 {
	d := (x - mu) / sigma
	return math.Exp(-d * d)
}
