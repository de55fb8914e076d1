// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capture

import (
	"context"
	"errors"
	"time"

	"github.com/kortschak/ppgrec/record"
)

// Multi returns a Source that delegates each mode to the first of srcs
// that supports it.
func Multi(srcs ...Source) Source { return multi(srcs) }

type multi []Source

func (m multi) Supported(mode record.Mode) bool { return m.source(mode) != nil }

func (m multi) Subscribe(ctx context.Context, mode record.Mode, interval time.Duration, fn func(record.Reading)) (Subscription, error) {
	src := m.source(mode)
	if src == nil {
		return nil, errors.New("unsupported mode: " + mode.String())
	}
	return src.Subscribe(ctx, mode, interval, fn)
}

func (m multi) source(mode record.Mode) Source {
	for _, s := range m {
		if s != nil && s.Supported(mode) {
			return s
		}
	}
	return nil
}
