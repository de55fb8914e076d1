// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package capture

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kortschak/ppgrec/record"
)

func TestMulti(t *testing.T) {
	ppg := &source{supported: map[record.Mode]bool{record.PPGSignal: true}}
	heart := &source{supported: map[record.Mode]bool{record.HRValue: true, record.RRSignal: true, record.PPGSignal: true}}
	m := Multi(nil, ppg, heart)

	for _, mode := range []record.Mode{record.PPGSignal, record.HRValue, record.RRSignal} {
		assert.True(t, m.Supported(mode), "mode %v", mode)
	}
	assert.False(t, Multi(ppg).Supported(record.RRSignal))

	_, err := m.Subscribe(context.Background(), record.PPGSignal, record.PPGSignal.Interval(), func(record.Reading) {})
	require.NoError(t, err)
	assert.Equal(t, 1, ppg.subscribed)
	assert.Equal(t, 0, heart.subscribed)

	_, err = m.Subscribe(context.Background(), record.RRSignal, record.RRSignal.Interval(), func(record.Reading) {})
	require.NoError(t, err)
	assert.Equal(t, 1, heart.subscribed)

	_, err = Multi(ppg).Subscribe(context.Background(), record.HRValue, record.HRValue.Interval(), func(record.Reading) {})
	assert.Error(t, err)
}
