// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package export converts capture log files to xlsx workbooks.
package export

import (
	"bufio"
	"io"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/xuri/excelize/v2"

	"github.com/kortschak/ppgrec/internal/errors"
	"github.com/kortschak/ppgrec/record"
)

// Sheet names.
const (
	RecordsSheet = "Records"
	SummarySheet = "Summary"
)

const timeFormat = "yyyy-mm-dd hh:mm:ss.000"

// Summary describes an exported log.
type Summary struct {
	Rows     int
	Skipped  int
	Channels map[record.Channel]*ChannelSummary
}

// ChannelSummary holds statistics for the records of one channel.
type ChannelSummary struct {
	Records     int
	First, Last time.Time
	Min, Max    float64
	sum         float64
}

// Mean returns the mean value of the channel's records.
func (c *ChannelSummary) Mean() float64 {
	if c.Records == 0 {
		return math.NaN()
	}
	return c.sum / float64(c.Records)
}

func (c *ChannelSummary) add(s record.Sample, v float64) {
	t := s.Time()
	if c.Records == 0 {
		c.First, c.Min, c.Max = t, v, v
	}
	c.Last = t
	c.Min = min(c.Min, v)
	c.Max = max(c.Max, v)
	c.sum += v
	c.Records++
}

// File converts the log at src to a workbook at dst.
func File(fs afero.Fs, src, dst string, loc *time.Location, log zerolog.Logger) (Summary, error) {
	errFactory := errors.NewFactory()
	in, err := fs.Open(src)
	if err != nil {
		return Summary{}, errFactory.Wrap(errors.ErrIO, err).WithData(src)
	}
	defer in.Close()
	out, err := fs.Create(dst)
	if err != nil {
		return Summary{}, errFactory.Wrap(errors.ErrIO, err).WithData(dst)
	}
	sum, err := Write(out, in, loc, log)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = errFactory.Wrap(errors.ErrIO, cerr).WithData(dst)
	}
	return sum, err
}

// Write reads log records from r and writes an xlsx workbook to w.
// Record times are shown in loc. Lines that are not valid records,
// including the header, are skipped.
func Write(w io.Writer, r io.Reader, loc *time.Location, log zerolog.Logger) (Summary, error) {
	if loc == nil {
		loc = time.Local
	}
	errFactory := errors.NewFactory()
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Debug().Err(err).Msg("failed to close workbook")
		}
	}()

	if err := f.SetSheetName("Sheet1", RecordsSheet); err != nil {
		return Summary{}, errFactory.Wrap(errors.ErrExport, err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return Summary{}, errFactory.Wrap(errors.ErrExport, err)
	}
	numFmt := timeFormat
	timeStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return Summary{}, errFactory.Wrap(errors.ErrExport, err)
	}

	sw, err := f.NewStreamWriter(RecordsSheet)
	if err != nil {
		return Summary{}, errFactory.Wrap(errors.ErrExport, err)
	}
	for i, width := range []float64{8, 18, 24, 12, 10} {
		if err := sw.SetColWidth(i+1, i+1, width); err != nil {
			return Summary{}, errFactory.Wrap(errors.ErrExport, err)
		}
	}
	if err := sw.SetPanes(&excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return Summary{}, errFactory.Wrap(errors.ErrExport, err)
	}
	header := []interface{}{}
	for _, h := range []string{"type", "timestamp_usec", "time", "value", "accuracy"} {
		header = append(header, excelize.Cell{StyleID: headerStyle, Value: h})
	}
	if err := sw.SetRow("A1", header); err != nil {
		return Summary{}, errFactory.Wrap(errors.ErrExport, err)
	}

	sum := Summary{Channels: make(map[record.Channel]*ChannelSummary)}
	sc := bufio.NewScanner(r)
	row := 2
	for line := 1; sc.Scan(); line++ {
		s, err := record.Parse(sc.Bytes())
		if err != nil {
			if line != 1 {
				log.Debug().Err(err).Int("line", line).Msg("skipping invalid record")
			}
			sum.Skipped++
			continue
		}
		v := value64(s.Value)
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return sum, errFactory.Wrap(errors.ErrExport, err)
		}
		err = sw.SetRow(cell, []interface{}{
			s.Channel.String(),
			s.TimestampUsec,
			excelize.Cell{StyleID: timeStyle, Value: localTime(s.Time(), loc)},
			v,
			s.Accuracy,
		})
		if err != nil {
			return sum, errFactory.Wrap(errors.ErrExport, err)
		}
		row++
		sum.Rows++
		cs, ok := sum.Channels[s.Channel]
		if !ok {
			cs = &ChannelSummary{}
			sum.Channels[s.Channel] = cs
		}
		cs.add(s, v)
	}
	if err := sc.Err(); err != nil {
		return sum, errFactory.Wrap(errors.ErrIO, err)
	}
	if err := sw.Flush(); err != nil {
		return sum, errFactory.Wrap(errors.ErrExport, err)
	}

	if err := writeSummary(f, sum, headerStyle, timeStyle, loc); err != nil {
		return sum, errFactory.Wrap(errors.ErrExport, err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return sum, errFactory.Wrap(errors.ErrIO, err)
	}
	return sum, nil
}

func writeSummary(f *excelize.File, sum Summary, headerStyle, timeStyle int, loc *time.Location) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return err
	}
	header := []string{"type", "records", "first", "last", "min", "max", "mean"}
	for col, h := range header {
		if err := setCell(f, col+1, 1, h); err != nil {
			return err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SummarySheet, "A1", last, headerStyle); err != nil {
		return err
	}

	channels := make([]record.Channel, 0, len(sum.Channels))
	for c := range sum.Channels {
		channels = append(channels, c)
	}
	slices.Sort(channels)
	for i, c := range channels {
		cs := sum.Channels[c]
		row := i + 2
		vals := []interface{}{
			c.String(), cs.Records,
			localTime(cs.First, loc), localTime(cs.Last, loc),
			cs.Min, cs.Max, cs.Mean(),
		}
		for col, v := range vals {
			if err := setCell(f, col+1, row, v); err != nil {
				return err
			}
		}
		first, _ := excelize.CoordinatesToCellName(3, row)
		last, _ := excelize.CoordinatesToCellName(4, row)
		if err := f.SetCellStyle(SummarySheet, first, last, timeStyle); err != nil {
			return err
		}
	}
	return f.SetColWidth(SummarySheet, "C", "D", 24)
}

func setCell(f *excelize.File, col, row int, v interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(SummarySheet, cell, v)
}

// localTime returns t in loc with the location stripped so that the
// spreadsheet shows wall clock time.
func localTime(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// value64 returns the shortest float64 equal to the decimal
// representation of v.
func value64(v float32) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(v), 'f', -1, 32), 64)
	return f
}
