// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"image/color"
	"image/draw"
	"strconv"

	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/freesans"

	"github.com/kortschak/ppgrec/record"
)

// valuePanel shows the most recent value and its channel.
type valuePanel struct {
	img draw.Image
}

func newValuePanel(img draw.Image) *valuePanel {
	return &valuePanel{img: img}
}

func (p *valuePanel) add(s record.Sample) {
	fill(p.img, color.White)

	width := p.img.Bounds().Dx()
	yOffset := -10

	valText := displayValue(s)
	valFont := &freesans.Bold18pt7b
	_, valW := tinyfont.LineWidth(valFont, valText)
	tinyfont.WriteLine(
		fontTarget{p.img},
		valFont,
		int16(width-int(valW))/2, int16(int(valFont.YAdvance)+yOffset), valText,
		color.RGBA{A: 0xff},
	)

	unitText := s.Channel.String() + " " + units[s.Channel]
	unitFont := &freesans.Regular9pt7b
	_, unitW := tinyfont.LineWidth(unitFont, unitText)
	tinyfont.WriteLine(
		fontTarget{p.img},
		unitFont,
		int16(width-int(unitW))/2, int16(int(unitFont.YAdvance)+int(valFont.YAdvance)+yOffset), unitText,
		color.RGBA{A: 0xff},
	)
}

var units = [...]string{
	record.PPG: "adc",
	record.HR:  "bpm",
	record.RR:  "ms",
}

func displayValue(s record.Sample) string {
	prec := 1
	if s.Channel == record.PPG {
		prec = 0
	}
	return strconv.FormatFloat(float64(s.Value), 'f', prec, 32)
}

// tracePlot plots a window of recent values.
type tracePlot struct {
	img draw.Image
	buf []float32
}

func newTracePlot(img draw.Image) *tracePlot {
	return &tracePlot{
		img: img,
		buf: make([]float32, img.Bounds().Dx()),
	}
}

func (p *tracePlot) width() int {
	return p.img.Bounds().Dx()
}

// add plots the values in trace, oldest first. Only the newest values
// that fit the plot width are shown.
func (p *tracePlot) add(c record.Channel, trace []float32) {
	if len(trace) > p.width() {
		trace = trace[len(trace)-p.width():]
	}
	n := copy(p.buf, trace)
	plotTrace(p.img, p.buf[:n], minRanges[c])
}

// minRanges are the smallest vertical spans plotted for each channel
// so that sensor noise is not magnified to full height.
var minRanges = [...]float32{
	record.PPG: 200,
	record.HR:  20,
	record.RR:  200,
}

func plotTrace(dst draw.Image, trace []float32, minRange float32) {
	fill(dst, color.White)
	if len(trace) < 2 {
		return
	}

	min := trace[0]
	max := min
	for _, v := range trace[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	rows := newRowScale(min, max, minRange, dst.Bounds().Dy())
	prev := rows.row(trace[0])
	for x, v := range trace[1:] {
		// Join neighbouring samples with a step that meets
		// half way between their columns.
		y := rows.row(v)
		mid := (prev + y) / 2
		vline(dst, x, prev, mid, color.Black)
		vline(dst, x+1, mid, y, color.Black)
		prev = y
	}
}

// rowScale maps values to plot rows with larger values nearer the top.
// Spans narrower than the minimum range are centred in a span of the
// minimum range.
type rowScale struct {
	lo, span float32
	rows     int
}

func newRowScale(min, max, minRange float32, rows int) rowScale {
	span := max - min
	lo := min
	if span < minRange {
		lo -= (minRange - span) / 2
		span = minRange
	}
	return rowScale{lo: lo, span: span, rows: rows}
}

func (s rowScale) row(v float32) int {
	if s.span == 0 {
		return s.rows / 2
	}
	return s.rows - 1 - int((v-s.lo)/s.span*float32(s.rows-1))
}
