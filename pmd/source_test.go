// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kortschak/ppgrec/record"
)

type fakeListener struct {
	features    Features
	settings    []Setting
	settingsErr error
	setErr      error

	mu      sync.Mutex
	handled []PPGHandler
}

func (f *fakeListener) Features() Features { return f.features }

func (f *fakeListener) Settings(context.Context, MeasureType) ([]Setting, error) {
	return f.settings, f.settingsErr
}

func (f *fakeListener) SetHandler(_ context.Context, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handled = append(f.handled, h.(PPGHandler))
	return f.setErr
}

func (f *fakeListener) last() PPGHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handled[len(f.handled)-1]
}

func TestSourceSubscribe(t *testing.T) {
	l := &fakeListener{
		features: Features{0xf, byte(SupportPPG)},
		settings: []Setting{Uint16{Type: SampleRateSetting, Val: []uint16{55, 135}}},
	}
	src := &Source{l: l, log: zerolog.Nop()}

	var got []record.Reading
	sub, err := src.Subscribe(context.Background(), record.PPGSignal, record.PPGSignal.Interval(), func(r record.Reading) {
		got = append(got, r)
	})
	require.NoError(t, err)
	start := l.last()
	assert.Equal(t, uint16(55), start.SampleFreq)
	require.NotNil(t, start.Handler)

	start.Handler(ppgFrame(1e9, 0, int24(30, 60, 90, 0), int24(3, 6, 9, 0)))
	last := time.Unix(epoch+1, 0)
	want := []record.Reading{
		{TimestampUsec: uint64(last.Add(-time.Second / 55).UnixMicro()), Accuracy: ppgAccuracy, Value: 60},
		{TimestampUsec: uint64(last.UnixMicro()), Accuracy: ppgAccuracy, Value: 6},
	}
	assert.Equal(t, want, got)

	start.Handler([]byte{byte(PPGType)})
	assert.Len(t, got, 2, "malformed notification delivered")

	require.NoError(t, sub.Unsubscribe())
	assert.Nil(t, l.last().Handler, "stream not stopped")

	start.Handler(ppgFrame(2e9, 0, int24(1, 1, 1, 0)))
	assert.Len(t, got, 2, "reading delivered after unsubscribe")
}

func TestSourceSettingsFallback(t *testing.T) {
	l := &fakeListener{
		features:    Features{0xf, byte(SupportPPG)},
		settingsErr: errors.New("no settings"),
	}
	src := &Source{l: l, log: zerolog.Nop()}
	_, err := src.Subscribe(context.Background(), record.PPGSignal, record.PPGSignal.Interval(), func(record.Reading) {})
	require.NoError(t, err)
	assert.Equal(t, uint16(PPGDefaultSampleFreq), l.last().SampleFreq)
}

func TestSourceUnsupported(t *testing.T) {
	l := &fakeListener{features: Features{0xf, byte(SupportECG)}}
	src := &Source{l: l, log: zerolog.Nop()}
	assert.False(t, src.Supported(record.PPGSignal))
	assert.False(t, (&Source{l: &fakeListener{features: Features{0xf, 0xff}}}).Supported(record.HRValue))

	_, err := src.Subscribe(context.Background(), record.PPGSignal, record.PPGSignal.Interval(), func(record.Reading) {})
	assert.Error(t, err)
	assert.Empty(t, l.handled)
}

func TestSourceStartRejected(t *testing.T) {
	l := &fakeListener{
		features: Features{0xf, byte(SupportPPG)},
		setErr:   errors.New("rejected"),
	}
	src := &Source{l: l, log: zerolog.Nop()}
	sub, err := src.Subscribe(context.Background(), record.PPGSignal, record.PPGSignal.Interval(), func(record.Reading) {})
	assert.Error(t, err)
	assert.Nil(t, sub)
}
