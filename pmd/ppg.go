// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

const (
	PPGDefaultSampleFreq = 55 // Hz

	PPGResolution = 22 // bits
	PPGChannels   = 4  // three photodiodes and ambient

	ppgSampleSize = PPGChannels * int24Size

	compressedFrame = 0x80
)

// PPGHandler implements the Handler interface for PPG data.
// Handler is called for each notification. A PPGHandler with
// a nil Handler stops the PPG stream.
type PPGHandler struct {
	SampleFreq uint16
	Handler    func([]byte)
}

func (h PPGHandler) Handle() (Command, MeasureType, []Setting, func([]byte)) {
	if h.Handler == nil {
		return MeasureStop, PPGType, nil, nil
	}
	freq := h.SampleFreq
	if freq == 0 {
		freq = PPGDefaultSampleFreq
	}
	return MeasureStart, PPGType, []Setting{
		Uint16{Type: SampleRateSetting, Val: []uint16{freq}},
		Uint16{Type: ResolutionSetting, Val: []uint16{PPGResolution}},
		Uint8{Type: ChannelsSetting, Val: []uint8{PPGChannels}},
	}, h.Handler
}

// ClosestSampleRate returns the sample rate offered in settings
// that is closest to want. Zero rates are ignored. It returns false
// if settings does not contain any non-zero sample rate.
func ClosestSampleRate(settings []Setting, want uint16) (uint16, bool) {
	var (
		best  uint16
		dist  = math.MaxInt
		found bool
	)
	for _, s := range settings {
		u, ok := s.(Uint16)
		if !ok || u.Type != SampleRateSetting {
			continue
		}
		for _, r := range u.Val {
			if r == 0 {
				continue
			}
			d := int(r) - int(want)
			if d < 0 {
				d = -d
			}
			if d < dist {
				best, dist, found = r, d, true
			}
		}
	}
	return best, found
}

// PPGSample is a single PPG sample of the three photodiode channels
// and the ambient light channel.
type PPGSample [PPGChannels]int32

// Value returns the mean of the photodiode channels.
func (s PPGSample) Value() float32 {
	return float32(s[0]+s[1]+s[2]) / 3
}

// PPG is a PPG measurement frame.
type PPG struct {
	// Timestamp is the time of the last sample in the frame.
	Timestamp time.Time
	Samples   []PPGSample
}

// SampleTime returns the time of the ith sample in the frame given the
// stream's sample interval.
func (m *PPG) SampleTime(i int, interval time.Duration) time.Time {
	return m.Timestamp.Add(-time.Duration(len(m.Samples)-1-i) * interval)
}

func (m *PPG) UnmarshalBinary(data []byte) error {
	if len(data) < dataOffset {
		return io.ErrUnexpectedEOF
	}
	if MeasureType(data[sampleTypeOffset]) != PPGType {
		return fmt.Errorf("expected sample type ppg: %v", data[sampleTypeOffset])
	}
	frame := data[frameTypeOffset]
	if FrameType(frame&^compressedFrame) != PPGFrameType0 {
		return fmt.Errorf("unsupported ppg frame type: %#x", frame)
	}

	timestamp := binary.LittleEndian.Uint64(data[timeStampOffset:])

	payload := data[dataOffset:]
	var samples []PPGSample
	if frame&compressedFrame == 0 {
		if len(payload)%ppgSampleSize != 0 {
			return fmt.Errorf("ppg payload length not a multiple of %d: %d", ppgSampleSize, len(payload))
		}
		samples = make([]PPGSample, 0, len(payload)/ppgSampleSize)
		for i := 0; i < len(payload); i += ppgSampleSize {
			var s PPGSample
			for c := range s {
				off := i + c*int24Size
				s[c] = leInt24(payload[off : off+int24Size])
			}
			samples = append(samples, s)
		}
	} else {
		flat, err := decodeDeltas(payload, PPGChannels, int24Size)
		if err != nil {
			return err
		}
		samples = make([]PPGSample, len(flat)/PPGChannels)
		for i := range samples {
			copy(samples[i][:], flat[i*PPGChannels:])
		}
	}

	*m = PPG{
		Timestamp: time.Unix(int64(timestamp)/1e9+epoch, int64(timestamp)%1e9),
		Samples:   samples,
	}
	return nil
}

var errDeltaWidth = errors.New("invalid delta bit width")

// decodeDeltas decodes a delta compressed PMD payload. The payload
// holds a reference sample of channels values of refSize bytes each,
// followed by blocks of a bit width byte, a sample count byte and the
// packed signed deltas of each channel for each sample. The returned
// values are interleaved by channel.
func decodeDeltas(data []byte, channels, refSize int) ([]int32, error) {
	if len(data) < channels*refSize {
		return nil, io.ErrUnexpectedEOF
	}
	vals := make([]int32, channels, channels*8)
	for c := range vals {
		var u uint32
		for i := refSize - 1; i >= 0; i-- {
			u = u<<8 | uint32(data[c*refSize+i])
		}
		vals[c] = signExtend(u, refSize*8)
	}
	data = data[channels*refSize:]
	for len(data) != 0 {
		if len(data) < 2 {
			return nil, io.ErrUnexpectedEOF
		}
		width, count := int(data[0]), int(data[1])
		if width == 0 || width > 32 {
			return nil, fmt.Errorf("%w: %d", errDeltaWidth, width)
		}
		data = data[2:]
		n := (width*count*channels + 7) / 8
		if len(data) < n {
			return nil, io.ErrUnexpectedEOF
		}
		r := bitReader{buf: data[:n]}
		for range count {
			prev := vals[len(vals)-channels:]
			for c := range channels {
				vals = append(vals, prev[c]+signExtend(r.read(width), width))
			}
		}
		data = data[n:]
	}
	return vals, nil
}

// bitReader reads little-endian bit fields, least significant bit first.
type bitReader struct {
	buf []byte
	off int // in bits
}

func (r *bitReader) read(width int) uint32 {
	var v uint32
	for i := range width {
		b := r.buf[r.off>>3] >> (r.off & 7) & 1
		v |= uint32(b) << i
		r.off++
	}
	return v
}

func signExtend(v uint32, bits int) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}
