// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package battery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	assert.Equal(t, Status{Level: 80}, NewStatus(80, DefaultLow))
	assert.Equal(t, Status{Level: 15, Low: true}, NewStatus(15, DefaultLow))
	assert.Equal(t, "80%", NewStatus(80, DefaultLow).String())
	assert.Equal(t, "5% (low)", NewStatus(5, DefaultLow).String())
}

func TestWatch(t *testing.T) {
	readErr := errors.New("gatt failure")
	levels := []int{50, 50, 49, -1, 12}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		i    int
		got  []Status
		errs []error
	)
	read := func() (int, error) {
		if i >= len(levels) {
			cancel()
			return levels[len(levels)-1], nil
		}
		l := levels[i]
		i++
		if l < 0 {
			return 0, readErr
		}
		return l, nil
	}
	Watch(ctx, read, time.Millisecond, DefaultLow, func(s Status, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		got = append(got, s)
	})

	assert.Equal(t, []Status{{Level: 50}, {Level: 49}, {Level: 12, Low: true}}, got)
	assert.Equal(t, []error{readErr}, errs)
}
