// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fanout delivers formatted sample records to a set of
// independent sinks.
//
// A failing sink never prevents delivery to the sinks after it and
// never reports its failure to the caller of Dispatch; failures are
// logged and counted.
package fanout

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	ppgerrors "github.com/kortschak/ppgrec/internal/errors"
	"github.com/kortschak/ppgrec/record"
)

// Sink accepts formatted record lines. The line is only valid for the
// duration of the call; sinks that retain it must copy it.
type Sink interface {
	// Name identifies the sink in diagnostics.
	Name() string
	// Accept delivers a single line. Returning ErrSkipped
	// reports that the sink deliberately did not deliver
	// the line.
	Accept(line []byte) error
}

// ErrSkipped is returned by a Sink that did not deliver a line for a
// reason that is not a failure, for example a wireless sink with no
// connected peer.
var ErrSkipped = errors.New("delivery skipped")

// Stats holds delivery counts for a sink.
type Stats struct {
	Delivered uint64
	Skipped   uint64
	Failed    uint64
}

// Dispatcher formats samples and delivers them to sinks.
type Dispatcher struct {
	log zerolog.Logger

	mu    sync.Mutex
	stats map[string]*Stats
}

// NewDispatcher returns a Dispatcher logging failures to log.
func NewDispatcher(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{log: log, stats: make(map[string]*Stats)}
}

// Dispatch formats s once and delivers the line to each sink in order.
func (d *Dispatcher) Dispatch(s record.Sample, sinks ...Sink) {
	var buf [record.MaxLen]byte
	line := record.Append(buf[:0], s)
	for _, sink := range sinks {
		err := sink.Accept(line)
		d.count(sink.Name(), err)
		switch {
		case err == nil, errors.Is(err, ErrSkipped):
		default:
			d.log.Warn().
				Err(err).
				Str("sink", sink.Name()).
				Str("error_code", string(ppgerrors.CodeOf(err))).
				Uint64("timestamp_usec", s.TimestampUsec).
				Msg("delivery failed")
		}
	}
}

func (d *Dispatcher) count(name string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.stats[name]
	if !ok {
		st = &Stats{}
		d.stats[name] = st
	}
	switch {
	case err == nil:
		st.Delivered++
	case errors.Is(err, ErrSkipped):
		st.Skipped++
	default:
		st.Failed++
	}
}

// Stats returns the delivery counts for the named sink.
func (d *Dispatcher) Stats(name string) Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.stats[name]; ok {
		return *st
	}
	return Stats{}
}

// Reset clears all delivery counts.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	clear(d.stats)
	d.mu.Unlock()
}
