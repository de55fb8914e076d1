// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package relay decouples a slow wireless transport from the capture
// callback.
//
// A Relay queues lines in a bounded ring and sends them from its own
// goroutine. When the ring is full the oldest queued line is dropped,
// so Send never blocks on the underlying link. The link's peer state is
// polled from the same goroutine, so PeerConnected never blocks either.
package relay

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kortschak/ppgrec/fanout"
	"github.com/kortschak/ppgrec/internal/ring"
)

const (
	// DefaultDepth is the default number of queued lines.
	DefaultDepth = 256

	// DefaultPoll is the default peer state polling period.
	DefaultPoll = time.Second
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("relay closed")

// Relay is a non-blocking fanout.Transport.
type Relay struct {
	t    fanout.Transport
	log  zerolog.Logger
	poll time.Duration

	peer atomic.Bool

	mu     sync.Mutex
	queue  *ring.Buffer[[]byte]
	closed bool
	stats  Stats

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// Stats holds relay counts.
type Stats struct {
	Sent    uint64
	Dropped uint64
	Failed  uint64
}

// Option configures a Relay.
type Option func(*Relay)

// WithPoll sets the period between peer state checks.
func WithPoll(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.poll = d
		}
	}
}

// New returns a Relay forwarding to t with a queue of depth lines. If
// depth is not positive, DefaultDepth is used.
func New(t fanout.Transport, depth int, log zerolog.Logger, opts ...Option) *Relay {
	if depth <= 0 {
		depth = DefaultDepth
	}
	r := &Relay{
		t:     t,
		log:   log,
		poll:  DefaultPoll,
		queue: ring.NewBuffer[[]byte](depth),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// PeerConnected returns whether the underlying transport had a peer
// when it was last checked.
func (r *Relay) PeerConnected() bool { return r.peer.Load() }

func (r *Relay) refresh() {
	r.peer.Store(r.t.PeerConnected())
}

// Send queues a copy of b for sending.
func (r *Relay) Send(b []byte) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.queue.Push(bytes.Clone(b)) {
		r.stats.Dropped++
	}
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return nil
}

func (r *Relay) run() {
	defer r.wg.Done()
	r.refresh()
	tick := time.NewTicker(r.poll)
	defer tick.Stop()
	for {
		select {
		case <-r.done:
			r.drain()
			return
		case <-r.wake:
			r.drain()
		case <-tick.C:
			r.refresh()
		}
	}
}

func (r *Relay) drain() {
	var failed bool
	defer func() {
		if failed {
			r.refresh()
		}
	}()
	for {
		r.mu.Lock()
		b, ok := r.queue.Pop()
		r.mu.Unlock()
		if !ok {
			return
		}
		err := r.t.Send(b)
		r.mu.Lock()
		if err != nil {
			r.stats.Failed++
		} else {
			r.stats.Sent++
		}
		r.mu.Unlock()
		if err != nil {
			failed = true
			r.log.Debug().Err(err).Msg("relay send failed")
		}
	}
}

// Stats returns the relay counts.
func (r *Relay) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Close sends any queued lines and stops the relay goroutine.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()
	close(r.done)
	r.wg.Wait()
	return nil
}
