// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/kortschak/ppgrec/internal/errors"
	"github.com/kortschak/ppgrec/record"
)

const logText = record.Header +
	"PPG,1000000,513,3\r\n" +
	"PPG,1020000,498,3\r\n" +
	"garbage\r\n" +
	"HR,2000000,72.35,2\r\n" +
	"HR,2500000,73.10,2\r\n"

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	sum, err := Write(&buf, strings.NewReader(logText), time.UTC, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Rows)
	assert.Equal(t, 2, sum.Skipped)

	ppg := sum.Channels[record.PPG]
	require.NotNil(t, ppg)
	assert.Equal(t, 2, ppg.Records)
	assert.Equal(t, 498.0, ppg.Min)
	assert.Equal(t, 513.0, ppg.Max)
	assert.Equal(t, 505.5, ppg.Mean())
	assert.Equal(t, time.UnixMicro(1000000), ppg.First)
	assert.Equal(t, time.UnixMicro(1020000), ppg.Last)

	hr := sum.Channels[record.HR]
	require.NotNil(t, hr)
	assert.Equal(t, 72.35, hr.Min)
	assert.Equal(t, 73.1, hr.Max)
	assert.Nil(t, sum.Channels[record.RR])

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{RecordsSheet, SummarySheet}, f.GetSheetList())

	rows, err := f.GetRows(RecordsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"type", "timestamp_usec", "time", "value", "accuracy"}, rows[0])
	for i, want := range [][]string{
		{"PPG", "1000000", "513", "3"},
		{"PPG", "1020000", "498", "3"},
		{"HR", "2000000", "72.35", "2"},
		{"HR", "2500000", "73.1", "2"},
	} {
		got := rows[i+1]
		require.Len(t, got, 5)
		assert.Equal(t, want, []string{got[0], got[1], got[3], got[4]})
		assert.NotEmpty(t, got[2])
	}

	summary, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Equal(t, "PPG", summary[1][0])
	assert.Equal(t, "2", summary[1][1])
	assert.Equal(t, "HR", summary[2][0])
}

func TestFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/logs/20240305070809_hr_log.txt", []byte(logText), 0o644))

	sum, err := File(fs, "/logs/20240305070809_hr_log.txt", "/logs/20240305070809_hr_log.xlsx", time.UTC, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Rows)

	b, err := afero.ReadFile(fs, "/logs/20240305070809_hr_log.xlsx")
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	f.Close()

	_, err = File(fs, "/logs/missing.txt", "/logs/missing.xlsx", time.UTC, zerolog.Nop())
	assert.True(t, errors.HasCode(err, errors.ErrIO))
}

func TestLocalTime(t *testing.T) {
	loc := time.FixedZone("AEST", 10*60*60)
	got := localTime(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), loc)
	assert.Equal(t, time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), got)
}

func TestValue64(t *testing.T) {
	assert.Equal(t, 72.35, value64(72.35))
	assert.Equal(t, 513.0, value64(513))
}
