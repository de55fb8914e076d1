// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package record implements the text record format used for captured
// physiological samples.
//
// Each sample is a single comma separated line
//
//	<code>,<timestamp_usec>,<value>,<accuracy>\r\n
//
// where code is PPG, HR or RR. PPG values are written as integers and
// HR and RR values with two decimal places. Log files begin with Header.
package record

import (
	"bytes"
	"strconv"
	"time"

	"github.com/kortschak/ppgrec/internal/errors"
)

// Header is the first line of every log file.
const Header = "type,timestamp_usec,value,accuracy\r\n"

// MaxLen is an upper bound on the length of a formatted record.
const MaxLen = 128

// Channel is the physiological signal carried by a record.
type Channel uint8

const (
	PPG Channel = iota
	HR
	RR
)

var codes = [...]string{
	PPG: "PPG",
	HR:  "HR",
	RR:  "RR",
}

// String returns the record code for c.
func (c Channel) String() string {
	if int(c) < len(codes) {
		return codes[c]
	}
	return "Channel(" + strconv.Itoa(int(c)) + ")"
}

// precision returns the number of decimal places written for values
// on the channel.
func (c Channel) precision() int {
	if c == PPG {
		return 0
	}
	return 2
}

// Mode is a capture mode. A session records a single mode for its
// lifetime.
type Mode uint8

const (
	PPGSignal Mode = iota + 1
	HRValue
	RRSignal
)

var modes = [...]struct {
	channel  Channel
	label    string
	interval time.Duration
}{
	PPGSignal: {channel: PPG, label: "ppg", interval: 20 * time.Millisecond}, // 50Hz
	HRValue:   {channel: HR, label: "hr", interval: 500 * time.Millisecond},  // 2Hz
	RRSignal:  {channel: RR, label: "rr", interval: time.Second},
}

// Valid returns whether m is a known mode.
func (m Mode) Valid() bool { return m != 0 && int(m) < len(modes) }

// Channel returns the channel recorded in mode m.
func (m Mode) Channel() Channel { return modes[m].channel }

// Label returns the file name label for mode m.
func (m Mode) Label() string { return modes[m].label }

// Interval returns the sampling interval requested from a source
// for mode m.
func (m Mode) Interval() time.Duration { return modes[m].interval }

func (m Mode) String() string {
	if !m.Valid() {
		return "Mode(" + strconv.Itoa(int(m)) + ")"
	}
	return m.Label()
}

// ParseMode returns the mode with the given label.
func ParseMode(label string) (Mode, error) {
	for m := PPGSignal; m.Valid(); m++ {
		if m.Label() == label {
			return m, nil
		}
	}
	return 0, errors.NewFactory().WithData(errors.ErrInvalidMode, label)
}

// Reading is a single sensor reading as delivered by a source.
type Reading struct {
	TimestampUsec uint64
	Accuracy      int
	Value         float32
}

// Sample is a captured reading tagged with its channel.
type Sample struct {
	Channel       Channel
	TimestampUsec uint64
	Value         float32
	Accuracy      int
}

// NewSample returns the sample for a reading on channel c.
func NewSample(c Channel, r Reading) Sample {
	return Sample{
		Channel:       c,
		TimestampUsec: r.TimestampUsec,
		Value:         r.Value,
		Accuracy:      r.Accuracy,
	}
}

// Time returns the sample timestamp as a time.Time.
func (s Sample) Time() time.Time {
	return time.UnixMicro(int64(s.TimestampUsec))
}

// Append appends the formatted record for s to dst.
func Append(dst []byte, s Sample) []byte {
	dst = append(dst, s.Channel.String()...)
	dst = append(dst, ',')
	dst = strconv.AppendUint(dst, s.TimestampUsec, 10)
	dst = append(dst, ',')
	// Sensor values are single precision; formatting with bitSize 32
	// rounds on the stored float32 value.
	dst = strconv.AppendFloat(dst, float64(s.Value), 'f', s.Channel.precision(), 32)
	dst = append(dst, ',')
	dst = strconv.AppendInt(dst, int64(s.Accuracy), 10)
	return append(dst, '\r', '\n')
}

// Format returns the formatted record for s.
func Format(s Sample) []byte {
	return Append(make([]byte, 0, MaxLen), s)
}

// Parse parses a single record line. The trailing line terminator
// is optional.
func Parse(line []byte) (Sample, error) {
	errFactory := errors.NewFactory()

	line = bytes.TrimSuffix(line, []byte{'\n'})
	line = bytes.TrimSuffix(line, []byte{'\r'})
	var fields [4][]byte
	for i := range fields {
		if i == len(fields)-1 {
			fields[i] = line
			break
		}
		idx := bytes.IndexByte(line, ',')
		if idx < 0 {
			return Sample{}, errFactory.WithData(errors.ErrParse, "too few fields")
		}
		fields[i], line = line[:idx], line[idx+1:]
	}
	if bytes.IndexByte(fields[3], ',') >= 0 {
		return Sample{}, errFactory.WithData(errors.ErrParse, "too many fields")
	}

	var s Sample
	switch string(fields[0]) {
	case "PPG":
		s.Channel = PPG
	case "HR":
		s.Channel = HR
	case "RR":
		s.Channel = RR
	default:
		return Sample{}, errFactory.WithData(errors.ErrParse, "unknown channel "+strconv.Quote(string(fields[0])))
	}
	var err error
	s.TimestampUsec, err = strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return Sample{}, errFactory.Wrap(errors.ErrParse, err)
	}
	v, err := strconv.ParseFloat(string(fields[2]), 32)
	if err != nil {
		return Sample{}, errFactory.Wrap(errors.ErrParse, err)
	}
	s.Value = float32(v)
	a, err := strconv.ParseInt(string(fields[3]), 10, 32)
	if err != nil {
		return Sample{}, errFactory.Wrap(errors.ErrParse, err)
	}
	s.Accuracy = int(a)
	return s, nil
}
