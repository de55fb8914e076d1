// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fanout

import (
	"github.com/kortschak/ppgrec/internal/errors"
)

// Appender is the log file capability used by FileSink.
type Appender interface {
	Append(line []byte) error
}

// FileSink appends lines to a log file.
type FileSink struct {
	Log Appender
}

func (FileSink) Name() string { return "file" }

func (s FileSink) Accept(line []byte) error { return s.Log.Append(line) }

// Transport is a best-effort link to a companion device.
type Transport interface {
	// PeerConnected returns whether a peer is currently
	// attached to the link.
	PeerConnected() bool
	// Send sends b to the connected peer. Send must not
	// retain b after it returns.
	Send(b []byte) error
}

// WirelessSink forwards lines over a Transport when a peer is
// connected. Lines are skipped when there is no peer.
type WirelessSink struct {
	Transport Transport
}

func (WirelessSink) Name() string { return "wireless" }

func (s WirelessSink) Accept(line []byte) error {
	if s.Transport == nil || !s.Transport.PeerConnected() {
		return ErrSkipped
	}
	err := s.Transport.Send(line)
	if err != nil {
		return errors.Wrap(errors.ErrDelivery, err)
	}
	return nil
}
