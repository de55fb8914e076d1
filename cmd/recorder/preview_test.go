// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kortschak/ppgrec/record"
)

func TestPreviewAccept(t *testing.T) {
	p := newPreview(3)
	assert.Equal(t, "preview", p.Name())

	_, _, ok := p.snapshot(nil)
	assert.False(t, ok)

	for _, line := range []string{
		"PPG,1000000,510,3\r\n",
		"PPG,1020000,520,3\r\n",
		"PPG,1040000,530,3\r\n",
		"PPG,1060000,540,3\r\n",
	} {
		require.NoError(t, p.Accept([]byte(line)))
	}
	trace, latest, ok := p.snapshot(nil)
	require.True(t, ok)
	assert.Equal(t, []float32{520, 530, 540}, trace)
	assert.Equal(t, record.Sample{Channel: record.PPG, TimestampUsec: 1060000, Value: 540, Accuracy: 3}, latest)

	require.NoError(t, p.Accept([]byte("HR,2000000,72.35,2\r\n")))
	trace, latest, _ = p.snapshot(trace)
	assert.Equal(t, []float32{72.35}, trace, "channel change should restart trace")
	assert.Equal(t, record.HR, latest.Channel)

	assert.Error(t, p.Accept([]byte("garbage")))
}

func TestPreviewRender(t *testing.T) {
	p := newPreview(previewLength)
	for i := range 100 {
		s := record.Sample{Channel: record.PPG, TimestampUsec: uint64(i) * 20000, Value: float32(500 + i%10*20)}
		require.NoError(t, p.Accept(record.Format(s)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	update := make(chan image.Image)
	go p.render(ctx, update)

	select {
	case img := <-update:
		assert.Equal(t, image.Rect(0, 0, cardWidth, cardHeight), img.Bounds())
		var black int
		for y := range cardHeight {
			for x := range cardWidth {
				if img.At(x, y) == (color.Gray{}) {
					black++
				}
			}
		}
		assert.NotZero(t, black, "expected drawn pixels")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestRowScale(t *testing.T) {
	s := newRowScale(0, 100, 10, 101)
	assert.Equal(t, 100, s.row(0))
	assert.Equal(t, 0, s.row(100))
	assert.Equal(t, 50, newRowScale(5, 5, 10, 101).row(5), "flat trace should be centred")
	assert.Equal(t, 2, newRowScale(5, 5, 0, 5).row(5), "flat trace with no minimum range")
}

func TestRegion(t *testing.T) {
	card := image.NewGray(image.Rect(0, 0, 10, 4))
	fill(card, color.White)
	r := newRegion(card, image.Rect(6, 1, 10, 4))
	assert.Equal(t, image.Rect(0, 0, 4, 3), r.Bounds())

	fill(r, color.Black)
	r.Set(4, 0, color.White)
	for y := range 4 {
		for x := range 10 {
			want := color.Gray{Y: 0xff}
			if x >= 6 && y >= 1 {
				want = color.Gray{}
			}
			assert.Equal(t, want, card.GrayAt(x, y), "pixel (%d,%d)", x, y)
		}
	}
	assert.Equal(t, color.Gray{}, r.At(0, 0))
}

func TestPlotTraceConnected(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 11))
	plotTrace(img, []float32{0, 100}, 10)
	for y := range 11 {
		left := img.GrayAt(0, y) == color.Gray{}
		right := img.GrayAt(1, y) == color.Gray{}
		assert.True(t, left || right, "gap in trace at row %d", y)
	}
}

func TestDisplayValue(t *testing.T) {
	assert.Equal(t, "513", displayValue(record.Sample{Channel: record.PPG, Value: 513.4}))
	assert.Equal(t, "72.4", displayValue(record.Sample{Channel: record.HR, Value: 72.36}))
}
