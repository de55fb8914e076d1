// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capture

import "sync"

// Gate serialises sensor callbacks and suppresses them once closed.
// Sources use a Gate to honour the Subscription contract when the
// underlying notification mechanism may call back after being
// disabled.
type Gate struct {
	mu     sync.Mutex
	closed bool
}

// Do calls f unless the gate is closed.
func (g *Gate) Do(f func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	f()
}

// Close closes the gate, waiting for any call in progress to return.
func (g *Gate) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

