// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"image"
	"image/color"
	"image/draw"
)

// region is a rectangular part of a card addressed in its own
// coordinates, with the origin at its top left corner.
type region struct {
	dst  draw.Image
	rect image.Rectangle
}

func newRegion(dst draw.Image, rect image.Rectangle) region {
	return region{dst: dst, rect: rect.Intersect(dst.Bounds())}
}

func (r region) ColorModel() color.Model { return r.dst.ColorModel() }

func (r region) Bounds() image.Rectangle {
	return image.Rectangle{Max: r.rect.Size()}
}

func (r region) At(x, y int) color.Color {
	return r.dst.At(x+r.rect.Min.X, y+r.rect.Min.Y)
}

func (r region) Set(x, y int, c color.Color) {
	if !(image.Point{X: x, Y: y}).In(r.Bounds()) {
		return
	}
	r.dst.Set(x+r.rect.Min.X, y+r.rect.Min.Y, c)
}

// fill sets every pixel of img to c.
func fill(img draw.Image, c color.Color) {
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// vline draws a vertical line in column x between rows y0 and y1
// inclusive.
func vline(img draw.Image, x, y0, y1 int, c color.Color) {
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		img.Set(x, y, c)
	}
}

// fontTarget adapts a draw.Image to the tinyfont displayer interface.
type fontTarget struct {
	img draw.Image
}

func (d fontTarget) SetPixel(x, y int16, c color.RGBA) {
	d.img.Set(int(x), int(y), c)
}

func (d fontTarget) Size() (x, y int16) {
	b := d.img.Bounds()
	return int16(b.Dx()), int16(b.Dy())
}

func (d fontTarget) Display() error { return nil }
