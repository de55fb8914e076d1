// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The recorder command records PPG, heart rate or RR interval data
// from a wearable sensor to timestamped log files, optionally relaying
// each record to a wireless peer.
//
// Without -headless the recorder shows a window with capture controls
// and a live preview of the recorded signal. Completed logs can be
// exported from the window as spreadsheets.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gioui.org/app"

	"github.com/kortschak/ppgrec/internal/config"
	"github.com/kortschak/ppgrec/internal/logger"
)

func main() {
	os.Exit(Main())
}

func Main() int {
	cfg, err := config.Load("recorder", os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "recorder: %v\n", err)
		return 2
	}
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recorder: %v\n", err)
		return 2
	}
	log := logger.New(os.Stderr, level, logger.IsService())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := newRecorder(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to start recorder")
		return 1
	}
	defer rec.Close()

	if cfg.Headless {
		err = rec.runHeadless(ctx, cfg.CaptureMode(), cfg.Duration)
		if err != nil {
			log.Error().Err(err).Msg("recording failed")
			return 1
		}
		return 0
	}

	go func() {
		w := new(app.Window)
		w.Option(app.Title("ppgrec"), app.Size(windowWidth, windowHeight))
		err := loop(ctx, w, rec, cfg.CaptureMode())
		if cerr := rec.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("failed to close recorder")
		}
		if err != nil {
			log.Error().Err(err).Msg("window failed")
			os.Exit(1)
		}
		os.Exit(0)
	}()
	app.Main()
	return 0
}
