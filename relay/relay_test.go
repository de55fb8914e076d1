// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package relay

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type link struct {
	started chan struct{}
	release chan struct{}
	err     error

	mu   sync.Mutex
	sent []string
}

func (l *link) PeerConnected() bool { return true }

func (l *link) Send(b []byte) error {
	if l.started != nil {
		select {
		case l.started <- struct{}{}:
		default:
		}
	}
	if l.release != nil {
		<-l.release
	}
	if l.err != nil {
		return l.err
	}
	l.mu.Lock()
	l.sent = append(l.sent, string(b))
	l.mu.Unlock()
	return nil
}

func TestRelayOrder(t *testing.T) {
	l := &link{}
	r := New(l, 0, zerolog.Nop())
	var want []string
	buf := make([]byte, 0, 16)
	for i := 0; i < 100; i++ {
		buf = strconv.AppendInt(buf[:0], int64(i), 10)
		want = append(want, string(buf))
		require.NoError(t, r.Send(buf))
	}
	require.NoError(t, r.Close())
	assert.Equal(t, want, l.sent)
	assert.Equal(t, Stats{Sent: 100}, r.Stats())
	assert.True(t, r.PeerConnected())
}

func TestRelayDoesNotBlock(t *testing.T) {
	const depth = 8
	l := &link{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	r := New(l, depth, zerolog.Nop())

	require.NoError(t, r.Send([]byte("first")))
	select {
	case <-l.started:
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not start sending")
	}

	// The transport is now blocked; queueing must still return promptly.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < depth+5; i++ {
			r.Send([]byte(strconv.Itoa(i)))
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("send blocked on a stalled transport")
	}
	assert.Equal(t, uint64(5), r.Stats().Dropped)

	close(l.release)
	require.NoError(t, r.Close())

	want := []string{"first"}
	for i := 5; i < depth+5; i++ {
		want = append(want, strconv.Itoa(i))
	}
	assert.Equal(t, want, l.sent)
}

func TestRelayClosed(t *testing.T) {
	r := New(&link{}, 1, zerolog.Nop())
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Send([]byte("late")), ErrClosed)
}

func TestRelayFailures(t *testing.T) {
	l := &link{err: errors.New("peer gone")}
	r := New(l, 4, zerolog.Nop())
	require.NoError(t, r.Send([]byte("a")))
	require.NoError(t, r.Send([]byte("b")))
	require.NoError(t, r.Close())
	assert.Equal(t, Stats{Failed: 2}, r.Stats())
}

// slowPeer is a transport whose peer check blocks until release.
type slowPeer struct {
	link
	checks  chan struct{}
	release chan bool
	up      atomic.Bool
}

func (l *slowPeer) PeerConnected() bool {
	select {
	case l.checks <- struct{}{}:
	default:
	}
	if !l.up.Load() {
		l.up.Store(<-l.release)
	}
	return l.up.Load()
}

func TestRelayPeerConnectedDoesNotBlock(t *testing.T) {
	l := &slowPeer{
		checks:  make(chan struct{}, 1),
		release: make(chan bool),
	}
	r := New(l, 4, zerolog.Nop(), WithPoll(10*time.Millisecond))
	select {
	case <-l.checks:
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not check peer state")
	}

	start := time.Now()
	assert.False(t, r.PeerConnected())
	assert.Less(t, time.Since(start), 100*time.Millisecond, "peer state check blocked")

	l.release <- true
	assert.Eventually(t, r.PeerConnected, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, r.Close())
}
