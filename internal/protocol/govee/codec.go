// Package govee encodes lighting events into the 20-byte GATT command frames
// understood by Govee-style BLE LED controllers.
//
// Frame layout (all frames are exactly FrameSize bytes):
//
//	power on    33 01 01 00*16 33
//	power off   33 01 00 00*16 32
//	color       33 05 02 RR GG BB 00*13 xor
//	brightness  33 04 LL 00*16 xor
//	keep-alive  AA 01 00*17 AB
//
// xor is the running XOR of bytes 0..18.
package govee

import (
	"encoding/hex"
	"fmt"

	"github.com/srg/ledctl/internal/device"
)

// FrameSize is the length of every command frame
const FrameSize = 20

const (
	cmdPrefix     byte = 0x33
	cmdPower      byte = 0x01
	cmdBrightness byte = 0x04
	cmdColor      byte = 0x05
	colorModeRGB  byte = 0x02

	keepAlivePrefix byte = 0xAA
	keepAliveCmd    byte = 0x01

	colorInputLen = 7
)

// Frame is a single command written to the control characteristic
type Frame [FrameSize]byte

// Bytes returns the frame as a slice suitable for a characteristic write
func (f Frame) Bytes() []byte {
	b := make([]byte, FrameSize)
	copy(b, f[:])
	return b
}

func (f Frame) String() string {
	return hex.EncodeToString(f[:])
}

// Valid reports whether the terminal byte equals the XOR of the preceding bytes
func (f Frame) Valid() bool {
	return f[FrameSize-1] == Checksum(f[:FrameSize-1])
}

// RGB is a 24-bit color
type RGB struct {
	R, G, B uint8
}

// Checksum returns the XOR of all bytes in b
func Checksum(b []byte) byte {
	var x byte
	for _, v := range b {
		x ^= v
	}
	return x
}

func seal(f *Frame) {
	f[FrameSize-1] = Checksum(f[:FrameSize-1])
}

// EncodeOn returns the power-on frame
func EncodeOn() Frame {
	f := Frame{cmdPrefix, cmdPower, 0x01}
	f[FrameSize-1] = 0x33
	return f
}

// EncodeOff returns the power-off frame
func EncodeOff() Frame {
	f := Frame{cmdPrefix, cmdPower, 0x00}
	f[FrameSize-1] = 0x32
	return f
}

// EncodeBrightness returns the brightness frame for level
func EncodeBrightness(level uint8) Frame {
	f := Frame{cmdPrefix, cmdBrightness, level}
	seal(&f)
	return f
}

// EncodeColor parses a "<marker><RRGGBB>" string and returns the color frame
func EncodeColor(color string) (Frame, error) {
	rgb, err := ParseColor(color)
	if err != nil {
		return Frame{}, err
	}
	return EncodeRGB(rgb), nil
}

// EncodeRGB returns the color frame for rgb
func EncodeRGB(rgb RGB) Frame {
	f := Frame{cmdPrefix, cmdColor, colorModeRGB, rgb.R, rgb.G, rgb.B}
	seal(&f)
	return f
}

// KeepAlive returns the heartbeat frame
func KeepAlive() Frame {
	f := Frame{keepAlivePrefix, keepAliveCmd}
	f[FrameSize-1] = 0xAB
	return f
}

// ParseColor decodes a 7-character "<marker><RRGGBB>" string. The marker
// character is not interpreted.
func ParseColor(color string) (RGB, error) {
	if len(color) != colorInputLen {
		return RGB{}, &device.MalformedInputError{
			Input:  color,
			Reason: fmt.Sprintf("color must be %d characters (marker + 6 hex digits), got %d", colorInputLen, len(color)),
		}
	}
	raw, err := hex.DecodeString(color[1:])
	if err != nil {
		return RGB{}, &device.MalformedInputError{Input: color, Reason: "color digits must be hexadecimal"}
	}
	return RGB{R: raw[0], G: raw[1], B: raw[2]}, nil
}

// DecodeRGB extracts the color carried by a color frame
func DecodeRGB(f Frame) (RGB, error) {
	if f[0] != cmdPrefix || f[1] != cmdColor || f[2] != colorModeRGB {
		return RGB{}, &device.MalformedInputError{Input: f.String(), Reason: "not a color frame"}
	}
	if !f.Valid() {
		return RGB{}, &device.MalformedInputError{Input: f.String(), Reason: "checksum mismatch"}
	}
	return RGB{R: f[3], G: f[4], B: f[5]}, nil
}

// Encode maps ev to its frame. ok is false for events that have no frame (Other).
func Encode(ev device.Event) (frame Frame, ok bool, err error) {
	switch ev.Kind() {
	case device.EventOn:
		return EncodeOn(), true, nil
	case device.EventOff:
		return EncodeOff(), true, nil
	case device.EventColor:
		f, err := EncodeColor(ev.ColorValue())
		if err != nil {
			return Frame{}, false, err
		}
		return f, true, nil
	case device.EventBrightness:
		return EncodeBrightness(ev.BrightnessValue()), true, nil
	default:
		return Frame{}, false, nil
	}
}
