// Package capture reads and writes the binary sensor capture format fed to
// the measurement engine.
//
// A capture file is a flat sequence of records. Every record starts with a
// 16-byte little-endian header followed by a type-specific payload:
//
//	offset size field
//	0      4    total bytes (header + payload)
//	4      2    packet type
//	6      2    sensor id
//	8      8    timestamp (microseconds)
//
// Accelerometer and gyro payloads are three float32 values padded to an
// 8-byte boundary. Image payloads start with a 16-byte image header
// (exposure u64, width u16, height u16, stride u16, pixel format u16)
// followed by row-major pixels.
package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Capture format constants.
const (
	HeaderSize      = 16 // fixed record header
	ImageHeaderSize = 16 // exposure + width + height + stride + format
	IMUValuesSize   = 12 // three float32 values
	IMUPayloadSize  = 16 // IMU values padded to an 8-byte boundary

	// CameraShutterOffsetUS aligns legacy camera packets with the IMU clock.
	// It is specific to the sensors that produced type-1 packets.
	CameraShutterOffsetUS = 16667
)

// ErrMalformedCapture reports a record that cannot be decoded.
var ErrMalformedCapture = errors.New("malformed capture")

// PacketType identifies the payload layout of a record.
type PacketType uint16

const (
	PacketCamera        PacketType = 1
	PacketAccelerometer PacketType = 20
	PacketGyro          PacketType = 21
	PacketImageRaw      PacketType = 29

	// PacketCalibrationJSON carries the calibration the capture was recorded
	// with, as a JSON document.
	PacketCalibrationJSON PacketType = 40
)

func (t PacketType) String() string {
	switch t {
	case PacketCamera:
		return "camera"
	case PacketAccelerometer:
		return "accelerometer"
	case PacketGyro:
		return "gyro"
	case PacketImageRaw:
		return "image_raw"
	case PacketCalibrationJSON:
		return "calibration_json"
	default:
		return ""
	}
}

// IsIMU reports whether packets of this type carry accelerometer or gyro samples.
func (t PacketType) IsIMU() bool {
	return t == PacketAccelerometer || t == PacketGyro
}

// PixelFormat is the pixel encoding of an image_raw payload.
type PixelFormat uint16

const (
	FormatGray8     PixelFormat = 0
	FormatDepth16MM PixelFormat = 1
)

func (f PixelFormat) String() string {
	switch f {
	case FormatGray8:
		return "Y8"
	case FormatDepth16MM:
		return "Z16_mm"
	default:
		return ""
	}
}

// BytesPerPixel returns the pixel width for the format, or 0 if unknown.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatGray8:
		return 1
	case FormatDepth16MM:
		return 2
	default:
		return 0
	}
}

// Header is the fixed record header. TimestampUS is kept exactly as stored so
// that re-encoding a decoded packet reproduces the original bytes.
type Header struct {
	TotalBytes  uint32
	Type        PacketType
	SensorID    uint16
	TimestampUS uint64
}

// PayloadLen returns the payload size implied by TotalBytes, or an error if
// TotalBytes is smaller than the header itself.
func (h Header) PayloadLen() (int, error) {
	n := int64(h.TotalBytes) - HeaderSize
	if n < 0 {
		return 0, fmt.Errorf("%w: total bytes %d smaller than header", ErrMalformedCapture, h.TotalBytes)
	}
	return int(n), nil
}

func (h Header) marshal(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], h.TotalBytes)
	binary.LittleEndian.PutUint16(b[4:6], uint16(h.Type))
	binary.LittleEndian.PutUint16(b[6:8], h.SensorID)
	binary.LittleEndian.PutUint64(b[8:16], h.TimestampUS)
}

func unmarshalHeader(b []byte) Header {
	return Header{
		TotalBytes:  binary.LittleEndian.Uint32(b[0:4]),
		Type:        PacketType(binary.LittleEndian.Uint16(b[4:6])),
		SensorID:    binary.LittleEndian.Uint16(b[6:8]),
		TimestampUS: binary.LittleEndian.Uint64(b[8:16]),
	}
}

// Packet is one capture record.
type Packet struct {
	Header  Header
	Payload []byte
}

// ImageHeader is the prefix of an image_raw payload.
type ImageHeader struct {
	ExposureUS uint64
	Width      uint16
	Height     uint16
	Stride     uint16
	Format     PixelFormat
}

// IMU returns the three sample values of an accelerometer or gyro packet.
func (p *Packet) IMU() ([3]float32, error) {
	var v [3]float32
	if !p.Header.Type.IsIMU() {
		return v, fmt.Errorf("packet type %d is not an IMU packet", p.Header.Type)
	}
	if len(p.Payload) < IMUValuesSize {
		return v, fmt.Errorf("%w: imu payload %d bytes, need %d", ErrMalformedCapture, len(p.Payload), IMUValuesSize)
	}
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(p.Payload[i*4:]))
	}
	return v, nil
}

// Image returns the image header and pixel bytes of an image_raw packet.
func (p *Packet) Image() (ImageHeader, []byte, error) {
	if p.Header.Type != PacketImageRaw {
		return ImageHeader{}, nil, fmt.Errorf("packet type %d is not an image packet", p.Header.Type)
	}
	if len(p.Payload) < ImageHeaderSize {
		return ImageHeader{}, nil, fmt.Errorf("%w: image payload %d bytes, need %d", ErrMalformedCapture, len(p.Payload), ImageHeaderSize)
	}
	b := p.Payload
	ih := ImageHeader{
		ExposureUS: binary.LittleEndian.Uint64(b[0:8]),
		Width:      binary.LittleEndian.Uint16(b[8:10]),
		Height:     binary.LittleEndian.Uint16(b[10:12]),
		Stride:     binary.LittleEndian.Uint16(b[12:14]),
		Format:     PixelFormat(binary.LittleEndian.Uint16(b[14:16])),
	}
	return ih, b[ImageHeaderSize:], nil
}

// Time returns the reported sample time in microseconds. Camera packets are
// shifted by CameraShutterOffsetUS and image packets are reported at
// mid-exposure.
func (p *Packet) Time() uint64 {
	t := p.Header.TimestampUS
	switch p.Header.Type {
	case PacketCamera:
		t += CameraShutterOffsetUS
	case PacketImageRaw:
		if ih, _, err := p.Image(); err == nil {
			t += ih.ExposureUS / 2
		}
	}
	return t
}

// StreamKey names the stream a packet belongs to, e.g. "gyro_0" or
// "image_raw_1_Y8". Unknown types have an empty name, so every unknown
// packet from sensor 3 shares the stream "_3".
func (p *Packet) StreamKey() string {
	key := fmt.Sprintf("%s_%d", p.Header.Type, p.Header.SensorID)
	if p.Header.Type == PacketImageRaw {
		if ih, _, err := p.Image(); err == nil {
			key += "_" + ih.Format.String()
		}
	}
	return key
}

// NewPacket builds a packet with TotalBytes derived from the payload.
func NewPacket(t PacketType, sensorID uint16, timestampUS uint64, payload []byte) *Packet {
	return &Packet{
		Header: Header{
			TotalBytes:  uint32(HeaderSize + len(payload)),
			Type:        t,
			SensorID:    sensorID,
			TimestampUS: timestampUS,
		},
		Payload: payload,
	}
}

// NewIMUPacket builds an accelerometer or gyro packet with a padded payload.
func NewIMUPacket(t PacketType, sensorID uint16, timestampUS uint64, v [3]float32) *Packet {
	payload := make([]byte, IMUPayloadSize)
	for i, x := range v {
		binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(x))
	}
	return NewPacket(t, sensorID, timestampUS, payload)
}

// NewImagePacket builds an image_raw packet. pixels must hold Height rows of
// Stride bytes.
func NewImagePacket(sensorID uint16, timestampUS uint64, ih ImageHeader, pixels []byte) (*Packet, error) {
	want := int(ih.Stride) * int(ih.Height)
	if len(pixels) != want {
		return nil, fmt.Errorf("image %dx%d stride %d needs %d bytes, got %d", ih.Width, ih.Height, ih.Stride, want, len(pixels))
	}
	payload := make([]byte, ImageHeaderSize+len(pixels))
	binary.LittleEndian.PutUint64(payload[0:8], ih.ExposureUS)
	binary.LittleEndian.PutUint16(payload[8:10], ih.Width)
	binary.LittleEndian.PutUint16(payload[10:12], ih.Height)
	binary.LittleEndian.PutUint16(payload[12:14], ih.Stride)
	binary.LittleEndian.PutUint16(payload[14:16], uint16(ih.Format))
	copy(payload[ImageHeaderSize:], pixels)
	return NewPacket(PacketImageRaw, sensorID, timestampUS, payload), nil
}
