// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kortschak/ppgrec/record"
	"github.com/kortschak/ppgrec/transport/redis"
)

// logFile is the log written by the receiver.
type logFile interface {
	Open(mode record.Mode) (path string, err error)
	Append(line []byte) error
	Close() error
}

// receiver writes relayed records to log files. A new log is opened
// whenever the channel of the received records changes.
type receiver struct {
	log    logFile
	logger zerolog.Logger

	mu       sync.Mutex
	mode     record.Mode
	records  int
	rejected int
}

func newReceiver(log logFile, logger zerolog.Logger) *receiver {
	return &receiver{log: log, logger: logger}
}

// handle parses and logs a single relayed record.
func (r *receiver) handle(payload []byte) {
	s, err := record.Parse(payload)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.rejected++
		r.logger.Debug().Err(err).Bytes("payload", payload).Msg("rejected record")
		return
	}
	mode := modeFor(s.Channel)
	if mode != r.mode {
		path, err := r.log.Open(mode)
		if err != nil {
			r.mode = 0
			r.logger.Error().Err(err).Stringer("mode", mode).Msg("failed to open log")
			return
		}
		r.mode = mode
		r.logger.Info().Stringer("mode", mode).Str("path", path).Msg("logging")
	}
	err = r.log.Append(record.Format(s))
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to append record")
		return
	}
	r.records++
}

// counts returns the number of records logged and rejected.
func (r *receiver) counts() (records, rejected int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records, r.rejected
}

func (r *receiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = 0
	return r.log.Close()
}

func modeFor(c record.Channel) record.Mode {
	for m := record.PPGSignal; m.Valid(); m++ {
		if m.Channel() == c {
			return m
		}
	}
	return 0
}

// streamReader is a source of stream entries.
type streamReader interface {
	Read(ctx context.Context, after string, count int64, block time.Duration) ([]redis.Entry, error)
}

const (
	readCount  = 64
	retryDelay = time.Second
)

// follow passes each stream entry after the entry with ID after to fn
// until ctx is done. Read failures are retried after retryDelay.
func follow(ctx context.Context, src streamReader, after string, block time.Duration, fn func([]byte), log zerolog.Logger) {
	for ctx.Err() == nil {
		entries, err := src.Read(ctx, after, readCount, block)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("failed to read stream")
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			continue
		}
		for _, e := range entries {
			after = e.ID
			fn([]byte(e.Line))
		}
	}
}
