// Copyright ©2025 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package PMD implements interaction with Polar Measurement Data
// Bluetooth services.
//
// Technical documentation for the PMD protocols are available from the
// [Polar BLE SDK] repository.
//
// [Polar BLE SDK]: https://github.com/polarofficial/polar-ble-sdk/tree/master/technical_documentation
package pmd

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"tinygo.org/x/bluetooth"
)

// Service and characteristic identifiers.
const (
	pmdServiceID      = "fb005c80-02e7-f387-1cad-8acd2d8df0c8"
	pmdControlPointID = "fb005c81-02e7-f387-1cad-8acd2d8df0c8"
	pmdDataID         = "fb005c82-02e7-f387-1cad-8acd2d8df0c8"
)

var (
	pmdService = must(bluetooth.ParseUUID(pmdServiceID))
	pmdCP      = must(bluetooth.ParseUUID(pmdControlPointID))
	pmdData    = must(bluetooth.ParseUUID(pmdDataID))
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// Features is the a set of supported PMD features.
type Features [2]byte

func (f Features) String() string {
	if f[0] != 0xf {
		return fmt.Sprintf("%#x", f)
	}
	var s strings.Builder
	for b := 1; b < 256; b <<= 1 {
		if f[1]&byte(b) != 0 {
			if s.Len() != 0 {
				s.WriteByte('|')
			}
			s.WriteString(Support(b).String())
		}
	}
	return s.String()
}

// Supports returns whether the feature set includes s.
func (f Features) Supports(s Support) bool {
	return f[0] == 0xf && f[1]&byte(s) != 0
}

// Support is the flag set of supported PMD features.
type Support byte

//go:generate go tool golang.org/x/tools/cmd/stringer -type Support -trimprefix Support
const (
	SupportECG          Support = 1 << 0
	SupportPPG          Support = 1 << 1
	SupportAcc          Support = 1 << 2
	SupportPPI          Support = 1 << 3
	SupportBioImpedance Support = 1 << 4
	SupportGyro         Support = 1 << 5
	SupportMag          Support = 1 << 6
)

const epoch = 946684800 // epoch 2000 January 1st 00:00:00 UTC

// Command is a PMD control point command.
type Command uint8

const (
	MeasureSettings Command = 1
	MeasureStart    Command = 2
	MeasureStop     Command = 3
)

// RecordingType is a PMD recording mode type.
type RecordingType uint8

const (
	Online  RecordingType = 0
	Offline RecordingType = 1
)

type (
	// MeasureType is a measurement stream data type.
	MeasureType uint8
	// FrameType is the sub-type for a MeasureType.
	FrameType uint8
)

// Measurement types.
const (
	ECGType MeasureType = iota
	PPGType
	AccType
	PPIType
	_
	GyroType
	MagnetometerType
	_
	_
	SDKModeType
	LocationType
	PressureType
	TemperatureType

	measurementTypes = iota
)

// PPG frame types. Frame types with the compressedFrame bit set hold
// delta encoded samples.
const (
	PPGFrameType0 FrameType = 0 // 4 channels of 24-bit samples
	PPGFrameType4 FrameType = 4
)

// Packet offsets.
const (
	sampleTypeOffset = 0
	timeStampOffset  = 1
	frameTypeOffset  = 9
	dataOffset       = 10
)

func querySettings(ctx context.Context, dev bluetooth.DeviceCharacteristic, com Command, rec RecordingType, measure MeasureType) ([]Setting, error) {
	resp, err := exchange(ctx, dev, setCommand{
		Command: com,
		Record:  rec,
		Measure: measure,
	})
	if err != nil {
		return nil, err
	}
	err = checkResponse(resp, com)
	if err != nil {
		return nil, err
	}
	return parseSetting(resp[5:])
}

// checkResponse validates a control point response to com.
func checkResponse(resp []byte, com Command) error {
	if len(resp) < 4 {
		return fmt.Errorf("short response: %#x", resp)
	}
	if resp[0] != 0xf0 || Command(resp[1]) != com {
		return fmt.Errorf("invalid response: %#x", resp)
	}
	if resp[3] != 0 {
		// https://www.bluetooth.com/wp-content/uploads/Files/Specification/HTML/Core-54/out/en/host/attribute-protocol--att-.html#UUID-5a07e398-0e4d-af25-0243-2b45ebfbda5b
		return fmt.Errorf("error response %d: %#x", resp[3], resp[:4])
	}
	if com == MeasureSettings && len(resp) < 5 {
		return fmt.Errorf("short settings response: %#x", resp)
	}
	return nil
}

func parseSetting(data []byte) ([]Setting, error) {
	var settings []Setting
	for len(data) != 0 {
		if uint(data[0]) >= uint(len(settingTypes)) {
			return settings, fmt.Errorf("unknown setting type: %x", data[0])
		}
		var (
			set Setting
			err error
		)
		switch settingTypes[data[0]].kind {
		case uint8Kind:
			set, err = decodeSetting[uint8](data)
		case uint16Kind:
			set, err = decodeSetting[uint16](data)
		case float32Kind:
			set, err = decodeSetting[float32](data)
		default:
			return settings, fmt.Errorf("unknown setting type: %x", data[0])
		}
		if err != nil {
			return settings, err
		}
		data = data[set.Size():]
		settings = append(settings, set)
	}
	return settings, nil
}

func sendCommand(ctx context.Context, dev bluetooth.DeviceCharacteristic, com Command, rec RecordingType, measure MeasureType, settings ...Setting) ([]byte, error) {
	return exchange(ctx, dev, setCommand{
		Command: com,
		Record:  rec,
		Measure: measure,
	}, settings...)
}

// exchange writes a control point command and waits for the response
// notification.
func exchange(ctx context.Context, dev bluetooth.DeviceCharacteristic, cmd setCommand, settings ...Setting) ([]byte, error) {
	msg := make([]byte, settingSize(cmd)+settingSize(settings...))
	off, err := cmd.write(msg)
	if err != nil {
		return nil, err
	}
	for _, w := range settings {
		n, err := w.write(msg[off:])
		if err != nil {
			return nil, err
		}
		off += n
	}
	respc := make(chan []byte, 1)
	err = dev.EnableNotifications(func(buf []byte) {
		select {
		case respc <- bytes.Clone(buf):
		default:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enable control point notifications: %w", err)
	}
	defer dev.EnableNotifications(nil)
	_, err = dev.WriteWithoutResponse(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to write control point command: %w", err)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-respc:
		return resp, nil
	}
}

// SettingType specifies PMD measurement settings.
type SettingType uint8

const (
	SampleRateSetting       SettingType = 0
	ResolutionSetting       SettingType = 1
	RangeUnitSetting        SettingType = 2
	ChannelsSetting         SettingType = 4
	ConversionFactorSetting SettingType = 5
)

const headerSize = 2

// settingTypes holds the value kind of each setting type and the
// number of values sent with a start command.
var settingTypes = [...]struct {
	kind byte
	n    byte
}{
	SampleRateSetting:       {kind: uint16Kind, n: 1},
	ResolutionSetting:       {kind: uint16Kind, n: 1},
	RangeUnitSetting:        {kind: uint16Kind, n: 1},
	ChannelsSetting:         {kind: uint8Kind, n: 1},
	ConversionFactorSetting: {kind: float32Kind, n: 1},
}

const (
	uint8Kind = iota + 1
	uint16Kind
	float32Kind
)

const int24Size = 3

func settingSize(s ...Setting) int {
	var n int
	for _, t := range s {
		n += t.Size()
	}
	return n
}

// Setting defines the behaviour of PMD measurement settings.
type Setting interface {
	// Size returns the number of bytes the setting
	// writes to the PMD Bluetooth service control
	// point characteristic.
	Size() int

	write([]byte) (int, error)
}

// setCommand specifies the command, and recording and measurement types
// for a control point command.
type setCommand struct {
	Command Command
	Record  RecordingType
	Measure MeasureType
}

func (w setCommand) Size() int { return 2 }

func (w setCommand) write(dst []byte) (int, error) {
	const size = 2
	if len(dst) < size {
		return 0, fmt.Errorf("dst too short")
	}
	dst[0] = byte(w.Command)
	dst[1] = byte(w.Record)<<7 | byte(w.Measure)
	return size, nil
}

// Setting value types.
type (
	Uint8   = Value[uint8]
	Uint16  = Value[uint16]
	Float32 = Value[float32]
)

type settingValue interface {
	uint8 | uint16 | float32
}

// Value is a measurement setting. Settings returned by a query list
// every value the device supports. Settings sent with a start command
// hold the single requested value.
type Value[T settingValue] struct {
	Type SettingType
	Val  []T
}

func (w Value[T]) Size() int { return headerSize + len(w.Val)*valueSize[T]() }

func valueSize[T settingValue]() int {
	var v T
	return binary.Size(v)
}

func (w Value[T]) write(dst []byte) (int, error) {
	if uint(w.Type) >= uint(len(settingTypes)) || int(settingTypes[w.Type].n) != len(w.Val) || kindOf[T]() != settingTypes[w.Type].kind {
		return 0, fmt.Errorf("invalid setting type: %d", w.Type)
	}
	if len(dst) < w.Size() {
		return 0, fmt.Errorf("dst too short")
	}
	dst[0] = byte(w.Type)
	dst[1] = byte(len(w.Val))
	n, err := binary.Encode(dst[headerSize:], binary.LittleEndian, w.Val)
	if err != nil {
		return 0, err
	}
	return headerSize + n, nil
}

func (w *Value[T]) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return io.ErrUnexpectedEOF
	}
	n := int(data[1])
	if len(data) < headerSize+n*valueSize[T]() {
		return io.ErrUnexpectedEOF
	}
	w.Type = SettingType(data[0])
	w.Val = make([]T, n)
	_, err := binary.Decode(data[headerSize:], binary.LittleEndian, w.Val)
	return err
}

func kindOf[T settingValue]() byte {
	var v T
	switch any(v).(type) {
	case uint8:
		return uint8Kind
	case uint16:
		return uint16Kind
	default:
		return float32Kind
	}
}

func decodeSetting[T settingValue](data []byte) (Setting, error) {
	var s Value[T]
	err := s.UnmarshalBinary(data)
	return s, err
}

func leInt24(b []byte) int32 {
	_ = b[2] // bounds check hint to compiler; see golang.org/issue/14808
	return int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16
}
