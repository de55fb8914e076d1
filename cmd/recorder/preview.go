// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"github.com/kortschak/ppgrec/internal/ring"
	"github.com/kortschak/ppgrec/record"
)

const (
	cardWidth  = 296
	cardHeight = 128
	panelWidth = 80

	frameInterval = 100 * time.Millisecond
)

// preview is a delivery sink holding recent records for display.
type preview struct {
	mu     sync.Mutex
	trace  *ring.Buffer[float32]
	latest record.Sample
	valid  bool

	notify chan struct{}
}

func newPreview(n int) *preview {
	return &preview{
		trace:  ring.NewBuffer[float32](n),
		notify: make(chan struct{}, 1),
	}
}

func (*preview) Name() string { return "preview" }

// Accept parses line and adds its value to the preview trace. The
// trace restarts when the channel changes.
func (p *preview) Accept(line []byte) error {
	s, err := record.Parse(line)
	if err != nil {
		return err
	}
	p.mu.Lock()
	if p.valid && s.Channel != p.latest.Channel {
		p.trace = ring.NewBuffer[float32](p.trace.Size())
	}
	p.trace.Push(s.Value)
	p.latest = s
	p.valid = true
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
	return nil
}

// snapshot copies the trace into dst, oldest first, and returns it with
// the latest sample. ok is false if no record has been accepted.
func (p *preview) snapshot(dst []float32) (trace []float32, latest record.Sample, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cap(dst) < p.trace.Size() {
		dst = make([]float32, p.trace.Size())
	}
	n := p.trace.CopyTo(dst[:p.trace.Size()])
	return dst[:n], p.latest, p.valid
}

// render draws the preview card whenever new records arrive, at most
// once per frameInterval, and sends each frame on update until ctx
// is done.
func (p *preview) render(ctx context.Context, update chan<- image.Image) {
	card := image.NewGray(image.Rectangle{Max: image.Point{X: cardWidth, Y: cardHeight}})
	fill(card, color.White)

	value := newValuePanel(newRegion(card, image.Rectangle{
		Max: image.Point{X: panelWidth, Y: cardHeight},
	}))
	plot := newTracePlot(newRegion(card, image.Rectangle{
		Min: image.Point{X: panelWidth, Y: 0},
		Max: image.Point{X: cardWidth, Y: cardHeight},
	}))

	tick := time.NewTicker(frameInterval)
	defer tick.Stop()
	var (
		buf   []float32
		dirty bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.notify:
			dirty = true
		case <-tick.C:
			if !dirty {
				continue
			}
			dirty = false
			var (
				latest record.Sample
				ok     bool
			)
			buf, latest, ok = p.snapshot(buf)
			if !ok {
				continue
			}
			value.add(latest)
			plot.add(latest.Channel, buf)

			frame := image.NewGray(card.Rect)
			draw.Draw(frame, frame.Rect, card, image.Point{}, draw.Src)
			select {
			case update <- frame:
			case <-ctx.Done():
				return
			}
		}
	}
}
