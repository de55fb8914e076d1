// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package record

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/kortschak/ppgrec/internal/errors"
)

var formatTests = []struct {
	name string
	in   Sample
	want string
}{
	{
		name: "ppg_round_up",
		in:   Sample{Channel: PPG, TimestampUsec: 1000000, Value: 512.7, Accuracy: 3},
		want: "PPG,1000000,513,3\r\n",
	},
	{
		name: "ppg_round_down",
		in:   Sample{Channel: PPG, TimestampUsec: 20000, Value: 1081215.2, Accuracy: 0},
		want: "PPG,20000,1081215,0\r\n",
	},
	{
		name: "hr_two_decimals",
		in:   Sample{Channel: HR, TimestampUsec: 2000000, Value: 72.345, Accuracy: 2},
		want: "HR,2000000,72.35,2\r\n",
	},
	{
		name: "hr_integral",
		in:   Sample{Channel: HR, TimestampUsec: 1, Value: 60, Accuracy: -1},
		want: "HR,1,60.00,-1\r\n",
	},
	{
		name: "rr",
		in:   Sample{Channel: RR, TimestampUsec: 1700000000000000, Value: 833.984375, Accuracy: 3},
		want: "RR,1700000000000000,833.98,3\r\n",
	},
}

func TestFormat(t *testing.T) {
	for _, test := range formatTests {
		t.Run(test.name, func(t *testing.T) {
			got := string(Format(test.in))
			if got != test.want {
				t.Errorf("unexpected record:\ngot: %q\nwant:%q", got, test.want)
			}
		})
	}
}

func TestFormatWorstCase(t *testing.T) {
	for _, c := range []Channel{PPG, HR, RR} {
		s := Sample{
			Channel:       c,
			TimestampUsec: math.MaxUint64,
			Value:         -math.MaxFloat32,
			Accuracy:      math.MinInt32,
		}
		buf := make([]byte, 0, MaxLen)
		got := Append(buf, s)
		if cap(got) != MaxLen {
			t.Errorf("buffer grew for %v: cap=%d len=%d", c, cap(got), len(got))
		}
		if &got[0] != &buf[:1][0] {
			t.Errorf("buffer reallocated for %v", c)
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 10000; i++ {
		want := Sample{
			Channel:       Channel(rnd.Intn(3)),
			TimestampUsec: rnd.Uint64(),
			Value:         float32(rnd.NormFloat64() * 1e4),
			Accuracy:      rnd.Intn(5) - 1,
		}
		line := Format(want)
		got, err := Parse(line)
		if err != nil {
			t.Fatalf("unexpected error parsing %q: %v", line, err)
		}
		if got.Channel != want.Channel || got.TimestampUsec != want.TimestampUsec || got.Accuracy != want.Accuracy {
			t.Fatalf("round trip mismatch for %q:\ngot: %+v\nwant:%+v", line, got, want)
		}
		tol := 0.5
		if want.Channel != PPG {
			tol = 0.005
		}
		// Allow for float32 representation error at large magnitudes.
		tol += math.Abs(float64(want.Value)) * 1e-6
		if d := math.Abs(float64(got.Value) - float64(want.Value)); d > tol {
			t.Fatalf("value out of tolerance for %q: got=%v want=%v diff=%v", line, got.Value, want.Value, d)
		}
	}
}

var parseErrorTests = []string{
	"",
	"type,timestamp_usec,value,accuracy\r\n",
	"ECG,1,2,3\r\n",
	"PPG,1,2\r\n",
	"PPG,1,2,3,4\r\n",
	"PPG,-1,2,3\r\n",
	"HR,1,x,3\r\n",
	"HR,1,2,3.5\r\n",
}

func TestParseErrors(t *testing.T) {
	for _, line := range parseErrorTests {
		_, err := Parse([]byte(line))
		if err == nil {
			t.Errorf("expected error for %q", line)
			continue
		}
		if !errors.HasCode(err, errors.ErrParse) {
			t.Errorf("unexpected error code for %q: %v", line, err)
		}
	}
}

func TestParseLineEndings(t *testing.T) {
	want := Sample{Channel: HR, TimestampUsec: 5, Value: 61.5, Accuracy: 1}
	for _, line := range []string{"HR,5,61.50,1\r\n", "HR,5,61.50,1\n", "HR,5,61.50,1"} {
		got, err := Parse([]byte(line))
		if err != nil {
			t.Errorf("unexpected error for %q: %v", line, err)
			continue
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("unexpected sample for %q:\ngot: %+v\nwant:%+v", line, got, want)
		}
	}
}

func TestModes(t *testing.T) {
	for _, test := range []struct {
		mode     Mode
		channel  Channel
		label    string
		interval time.Duration
	}{
		{mode: PPGSignal, channel: PPG, label: "ppg", interval: 20 * time.Millisecond},
		{mode: HRValue, channel: HR, label: "hr", interval: 500 * time.Millisecond},
		{mode: RRSignal, channel: RR, label: "rr", interval: time.Second},
	} {
		if !test.mode.Valid() {
			t.Errorf("expected %v to be valid", test.mode)
		}
		if got := test.mode.Channel(); got != test.channel {
			t.Errorf("unexpected channel for %v: got:%v want:%v", test.mode, got, test.channel)
		}
		if got := test.mode.Label(); got != test.label {
			t.Errorf("unexpected label for %v: got:%v want:%v", test.mode, got, test.label)
		}
		if got := test.mode.Interval(); got != test.interval {
			t.Errorf("unexpected interval for %v: got:%v want:%v", test.mode, got, test.interval)
		}
		m, err := ParseMode(test.label)
		if err != nil || m != test.mode {
			t.Errorf("unexpected parse of %q: got:%v err:%v", test.label, m, err)
		}
	}
	if Mode(0).Valid() || Mode(4).Valid() {
		t.Error("unexpected valid mode")
	}
	if _, err := ParseMode("ecg"); !errors.HasCode(err, errors.ErrInvalidMode) {
		t.Errorf("unexpected error for ecg mode: %v", err)
	}
}
