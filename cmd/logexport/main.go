// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The logexport command converts recorder log files to xlsx
// spreadsheets with a records sheet and a per-channel summary. It can
// also list the sessions held in a recorder's history database.
//
// Usage:
//
//	logexport [--out dir] [--tz zone] <log>...
//	logexport --history_db path --sessions n [--tz zone]
package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/kortschak/ppgrec/export"
	"github.com/kortschak/ppgrec/history"
	"github.com/kortschak/ppgrec/internal/logger"
)

func main() {
	os.Exit(Main(os.Args[1:], os.Stdout, os.Stderr))
}

func Main(args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("logexport", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	out := flags.String("out", "", "output directory (default is alongside each log)")
	tz := flags.String("tz", "Local", "time zone for the time column")
	level := flags.String("log_level", logger.LevelWarn, "log level (debug, info, warn or error)")
	historyDB := flags.String("history_db", "", "recorder session history database")
	sessions := flags.Int("sessions", 0, "list the n most recent sessions in history_db")
	flags.Usage = func() {
		fmt.Fprintf(stderr, "usage: logexport [options] <log>...\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if flags.NArg() == 0 && *sessions <= 0 {
		flags.Usage()
		return 2
	}
	if *sessions > 0 && *historyDB == "" {
		fmt.Fprintln(stderr, "logexport: --sessions requires --history_db")
		return 2
	}
	lvl, err := logger.ParseLevel(*level)
	if err != nil {
		fmt.Fprintf(stderr, "logexport: %v\n", err)
		return 2
	}
	loc, err := time.LoadLocation(*tz)
	if err != nil {
		fmt.Fprintf(stderr, "logexport: %v\n", err)
		return 2
	}
	log := logger.New(stderr, lvl, false)

	if *sessions > 0 {
		repo, err := history.Open(context.Background(), *historyDB, log)
		if err != nil {
			log.Error().Err(err).Str("path", *historyDB).Msg("failed to open history")
			return 1
		}
		err = listSessions(context.Background(), repo, *sessions, loc, stdout)
		repo.Close()
		if err != nil {
			log.Error().Err(err).Msg("failed to list sessions")
			return 1
		}
	}
	return run(afero.NewOsFs(), flags.Args(), *out, loc, stdout, log)
}

// listSessions writes the n most recent sessions in repo to w with
// their per-sink delivery counts.
func listSessions(ctx context.Context, repo *history.Repository, n int, loc *time.Location, w io.Writer) error {
	sessions, err := repo.Sessions(ctx, n)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%s %s %s %s %d records %s\n",
			s.ID, s.Mode, s.Start.In(loc).Format(time.RFC3339), s.Stop.Sub(s.Start), s.Records, s.Path)
		for _, name := range slices.Sorted(maps.Keys(s.Stats)) {
			st := s.Stats[name]
			fmt.Fprintf(w, "\t%s: delivered=%d skipped=%d failed=%d\n", name, st.Delivered, st.Skipped, st.Failed)
		}
	}
	return nil
}

func run(fs afero.Fs, logs []string, out string, loc *time.Location, stdout io.Writer, log zerolog.Logger) int {
	status := 0
	for _, src := range logs {
		dst := outputPath(src, out)
		sum, err := export.File(fs, src, dst, loc, log)
		if err != nil {
			log.Error().Err(err).Str("log", src).Msg("failed to export")
			status = 1
			continue
		}
		fmt.Fprintf(stdout, "%s: %d records (%d skipped)\n", dst, sum.Rows, sum.Skipped)
	}
	return status
}

// outputPath returns the xlsx path for the log at src, placed in dir
// if it is not empty.
func outputPath(src, dir string) string {
	name := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)) + ".xlsx"
	if dir == "" {
		dir = filepath.Dir(src)
	}
	return filepath.Join(dir, name)
}
