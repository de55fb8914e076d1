// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package redis implements a record line transport over a Redis stream.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// Field is the stream entry field holding a record line.
const Field = "line"

// Defaults for the transport.
const (
	DefaultTimeout = time.Second
	DefaultRefresh = 5 * time.Second
)

// Transport appends record lines to a Redis stream.
type Transport struct {
	client  *redis.Client
	stream  string
	maxLen  int64
	timeout time.Duration
	refresh time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	checked time.Time
	up      bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithMaxLen trims the stream to at most n entries.
func WithMaxLen(n int64) Option { return func(t *Transport) { t.maxLen = n } }

// WithTimeout bounds each Redis operation.
func WithTimeout(d time.Duration) Option { return func(t *Transport) { t.timeout = d } }

// WithRefresh sets how long a connection check result is reused.
func WithRefresh(d time.Duration) Option { return func(t *Transport) { t.refresh = d } }

// Dial returns a Transport for the stream on the server at addr.
func Dial(addr, stream string, log zerolog.Logger, opts ...Option) *Transport {
	return New(redis.NewClient(&redis.Options{Addr: addr}), stream, log, opts...)
}

// New returns a Transport using an existing client.
func New(client *redis.Client, stream string, log zerolog.Logger, opts ...Option) *Transport {
	t := &Transport{
		client:  client,
		stream:  stream,
		timeout: DefaultTimeout,
		refresh: DefaultRefresh,
		log:     log,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// PeerConnected returns whether the server answered a ping within the
// refresh period.
func (t *Transport) PeerConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if !t.checked.IsZero() && now.Sub(t.checked) < t.refresh {
		return t.up
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	err := t.client.Ping(ctx).Err()
	if up := err == nil; up != t.up {
		t.log.Info().Err(err).Bool("up", up).Str("stream", t.stream).Msg("redis link changed")
	}
	t.up = err == nil
	t.checked = now
	return t.up
}

// Send appends b to the stream.
func (t *Transport) Send(b []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	err := t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.stream,
		MaxLen: t.maxLen,
		Values: map[string]interface{}{Field: string(b)},
	}).Err()
	if err != nil {
		t.mu.Lock()
		t.checked = time.Time{}
		t.mu.Unlock()
		return fmt.Errorf("failed to add to stream %s: %w", t.stream, err)
	}
	return nil
}

// Entry is a stream entry.
type Entry struct {
	ID   string
	Line string
}

// Read returns up to count entries after the entry with ID after, waiting
// up to block for new entries. A negative block returns immediately.
// Use "0" to read from the start of the stream and "$" for new entries
// only.
func (t *Transport) Read(ctx context.Context, after string, count int64, block time.Duration) ([]Entry, error) {
	streams, err := t.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{t.stream, after},
		Count:   count,
		Block:   block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stream %s: %w", t.stream, err)
	}
	var entries []Entry
	for _, s := range streams {
		for _, m := range s.Messages {
			line, ok := m.Values[Field].(string)
			if !ok {
				t.log.Debug().Str("id", m.ID).Msg("skipping stream entry without line")
				continue
			}
			entries = append(entries, Entry{ID: m.ID, Line: line})
		}
	}
	return entries, nil
}

// Close closes the client.
func (t *Transport) Close() error { return t.client.Close() }
