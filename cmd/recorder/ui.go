// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync/atomic"

	"gioui.org/app"
	"gioui.org/font/gofont"
	"gioui.org/io/event"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/paint"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"
	"gioui.org/x/explorer"

	"github.com/kortschak/ppgrec/record"
)

const (
	windowWidth  = 360
	windowHeight = 280
)

// controls holds the window widget state.
type controls struct {
	th     *material.Theme
	expl   *explorer.Explorer
	toggle widget.Clickable
	export widget.Clickable
	mode   widget.Enum

	// busy is set while a start, stop or export
	// is in progress.
	busy  atomic.Bool
	note  string
	notes chan string
}

func loop(ctx context.Context, w *app.Window, rec *recorder, mode record.Mode) error {
	th := material.NewTheme()
	th.Shaper = text.NewShaper(text.WithCollection(gofont.Collection()))
	c := &controls{
		th:    th,
		expl:  explorer.NewExplorer(w),
		notes: make(chan string, 1),
	}
	c.mode.Value = mode.Label()

	update := make(chan image.Image)
	go rec.preview.render(ctx, update)

	events := make(chan event.Event)
	ack := make(chan struct{})

	go func() {
		for {
			ev := w.Event()
			events <- ev
			<-ack
			if _, ok := ev.(app.DestroyEvent); ok {
				return
			}
		}
	}()
	var img image.Image
	var ops op.Ops
	for {
		select {
		case <-ctx.Done():
			return nil
		case img = <-update:
			w.Invalidate()
		case c.note = <-c.notes:
			w.Invalidate()
		case e := <-events:
			c.expl.ListenEvents(e)
			switch e := e.(type) {
			case app.DestroyEvent:
				ack <- struct{}{}
				return e.Err
			case app.FrameEvent:
				gtx := app.NewContext(&ops, e)
				c.update(ctx, gtx, rec)
				c.layout(gtx, rec, img)
				e.Frame(gtx.Ops)
			}
			ack <- struct{}{}
		}
	}
}

// update handles widget events. Session transitions and exports run
// off the event loop since they wait on the sensor and the file
// system.
func (c *controls) update(ctx context.Context, gtx layout.Context, rec *recorder) {
	c.mode.Update(gtx)
	if c.toggle.Clicked(gtx) && c.busy.CompareAndSwap(false, true) {
		running := rec.session.Running()
		mode, err := record.ParseMode(c.mode.Value)
		go func() {
			defer c.busy.Store(false)
			if running {
				err = rec.stop()
				c.post("stopped", err)
				return
			}
			if err == nil {
				err = rec.start(ctx, mode)
			}
			c.post("started", err)
		}()
	}
	if c.export.Clicked(gtx) && c.busy.CompareAndSwap(false, true) {
		path, ok := rec.lastLog()
		if !ok || rec.session.Running() {
			c.busy.Store(false)
			c.post("", errors.New("no completed recording to export"))
			return
		}
		go func() {
			defer c.busy.Store(false)
			c.post(c.exportLog(rec, path))
		}()
	}
}

func (c *controls) exportLog(rec *recorder, path string) (string, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".xlsx"
	w, err := c.expl.CreateFile(name)
	if err != nil {
		if errors.Is(err, explorer.ErrUserDecline) {
			return "export cancelled", nil
		}
		return "", err
	}
	sum, err := rec.export(path, w)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("exported %d records to %s", sum.Rows, name), nil
}

// post replaces the pending note with msg, or with err if it is not nil.
func (c *controls) post(msg string, err error) {
	if err != nil {
		msg = "error: " + err.Error()
	}
	select {
	case <-c.notes:
	default:
	}
	c.notes <- msg
}

func (c *controls) layout(gtx layout.Context, rec *recorder, img image.Image) layout.Dimensions {
	running := rec.session.Running()
	toggleLabel := "Start"
	if running {
		toggleLabel = "Stop"
	}
	return layout.UniformInset(unit.Dp(8)).Layout(gtx, func(gtx layout.Context) layout.Dimensions {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				if running {
					gtx = gtx.Disabled()
				}
				var modes []layout.FlexChild
				for m := record.PPGSignal; m.Valid(); m++ {
					modes = append(modes, layout.Rigid(material.RadioButton(c.th, &c.mode, m.Label(), m.Channel().String()).Layout))
				}
				return layout.Flex{}.Layout(gtx, modes...)
			}),
			layout.Rigid(func(gtx layout.Context) layout.Dimensions {
				return layout.Flex{}.Layout(gtx,
					layout.Rigid(material.Button(c.th, &c.toggle, toggleLabel).Layout),
					layout.Rigid(layout.Spacer{Width: unit.Dp(8)}.Layout),
					layout.Rigid(func(gtx layout.Context) layout.Dimensions {
						if running {
							gtx = gtx.Disabled()
						}
						return material.Button(c.th, &c.export, "Export xlsx").Layout(gtx)
					}),
				)
			}),
			layout.Rigid(material.Body2(c.th, rec.status()).Layout),
			layout.Rigid(material.Caption(c.th, c.note).Layout),
			layout.Flexed(1, func(gtx layout.Context) layout.Dimensions {
				if img == nil {
					return layout.Dimensions{}
				}
				return widget.Image{
					Src: paint.NewImageOp(img),
					Fit: widget.Contain,
				}.Layout(gtx)
			}),
		)
	})
}
