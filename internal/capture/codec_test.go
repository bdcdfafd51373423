package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawHeader(total uint32, typ uint16, sensor uint16, ts uint64) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], total)
	binary.LittleEndian.PutUint16(b[4:6], typ)
	binary.LittleEndian.PutUint16(b[6:8], sensor)
	binary.LittleEndian.PutUint64(b[8:16], ts)
	return b
}

func TestDecodeGyroPacket(t *testing.T) {
	// total_bytes=32 type=21 sensor=0 ts=1000, payload 1.0, 2.0, 3.0 + 4 pad
	b := rawHeader(32, 21, 0, 1000)
	payload := make([]byte, 16)
	binary.LittleEndian.PutUint32(payload[0:], 0x3f800000)
	binary.LittleEndian.PutUint32(payload[4:], 0x40000000)
	binary.LittleEndian.PutUint32(payload[8:], 0x40400000)
	b = append(b, payload...)

	p, n, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, 32, n)
	assert.Equal(t, PacketGyro, p.Header.Type)
	assert.Equal(t, uint64(1000), p.Time())

	v, err := p.IMU()
	require.NoError(t, err)
	assert.Equal(t, [3]float32{1, 2, 3}, v)
}

func TestRoundTrip(t *testing.T) {
	img, err := NewImagePacket(1, 5_000_000, ImageHeader{ExposureUS: 8000, Width: 4, Height: 2, Stride: 4, Format: FormatGray8}, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)

	packets := []*Packet{
		NewIMUPacket(PacketAccelerometer, 0, 1_000_000, [3]float32{0.1, -9.8, 0.3}),
		NewIMUPacket(PacketGyro, 0, 1_000_100, [3]float32{0.01, 0.02, -0.03}),
		img,
		NewPacket(PacketCamera, 0, 2_000_000, []byte{9, 9, 9}),
		NewPacket(PacketType(99), 3, 42, []byte{0xde, 0xad}),
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, p := range packets {
		require.NoError(t, w.WritePacket(p))
	}
	assert.Equal(t, uint64(len(packets)), w.PacketsWritten())
	assert.Equal(t, uint64(buf.Len()), w.BytesWritten())

	original := append([]byte(nil), buf.Bytes()...)
	decoded, err := ReadAll(bytes.NewReader(original))
	require.NoError(t, err)
	require.Len(t, decoded, len(packets))

	var re []byte
	for _, p := range decoded {
		re = append(re, Encode(p)...)
	}
	assert.Equal(t, original, re)
	assert.Equal(t, PacketType(99), decoded[4].Header.Type)
}

func TestTimeOffsets(t *testing.T) {
	cam := NewPacket(PacketCamera, 0, 1000, nil)
	assert.Equal(t, uint64(1000+CameraShutterOffsetUS), cam.Time())
	assert.Equal(t, uint64(1000), cam.Header.TimestampUS)

	img, err := NewImagePacket(0, 1000, ImageHeader{ExposureUS: 8001, Width: 1, Height: 1, Stride: 1}, []byte{0})
	require.NoError(t, err)
	assert.Equal(t, uint64(1000+4000), img.Time())
}

func TestReaderEOF(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	_, err := r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"short header", []byte{1, 2, 3}},
		{"negative payload length", rawHeader(8, 20, 0, 0)},
		{"truncated payload", append(rawHeader(32, 20, 0, 0), 1, 2, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(tt.data)).Next()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedCapture), "got %v", err)
			assert.False(t, errors.Is(err, io.EOF))
		})
	}
}

func TestReaderHugeLengthDoesNotAllocate(t *testing.T) {
	b := rawHeader(0xFFFFFFF0, uint16(PacketGyro), 0, 1000)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := NewReader(bytes.NewReader(b)).Next()
	runtime.ReadMemStats(&after)

	assert.ErrorIs(t, err, ErrMalformedCapture)
	assert.ErrorContains(t, err, "payload truncated (0 of 4294967264 bytes)")
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(16<<20))
}

func TestReaderStopsAfterValidPackets(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WritePacket(NewIMUPacket(PacketGyro, 0, 1, [3]float32{})))
	buf.Write([]byte{0xff, 0xff})

	r := NewReader(&buf)
	_, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(32), r.Offset())

	_, err = r.Next()
	assert.ErrorIs(t, err, ErrMalformedCapture)
}

func TestStreamKey(t *testing.T) {
	tests := []struct {
		name string
		p    *Packet
		want string
	}{
		{"gyro", NewIMUPacket(PacketGyro, 0, 1, [3]float32{}), "gyro_0"},
		{"accelerometer", NewIMUPacket(PacketAccelerometer, 2, 1, [3]float32{}), "accelerometer_2"},
		{"unknown type", NewPacket(PacketType(7), 3, 1, nil), "_3"},
		{"other unknown type same sensor", NewPacket(PacketType(99), 3, 1, []byte{1}), "_3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.p.StreamKey())
		})
	}
}

func TestImagePacketValidation(t *testing.T) {
	_, err := NewImagePacket(0, 0, ImageHeader{Width: 2, Height: 2, Stride: 2}, []byte{1, 2, 3})
	assert.Error(t, err)

	p, err := NewImagePacket(2, 0, ImageHeader{ExposureUS: 10, Width: 2, Height: 1, Stride: 4, Format: FormatDepth16MM}, []byte{1, 0, 2, 0})
	require.NoError(t, err)
	ih, pixels, err := p.Image()
	require.NoError(t, err)
	assert.Equal(t, FormatDepth16MM, ih.Format)
	assert.Equal(t, 2, ih.Format.BytesPerPixel())
	assert.Equal(t, []byte{1, 0, 2, 0}, pixels)
	assert.Equal(t, "image_raw_2_Z16_mm", p.StreamKey())
}

func TestPayloadAccessorsRejectWrongType(t *testing.T) {
	p := NewPacket(PacketCamera, 0, 0, make([]byte, 32))
	_, err := p.IMU()
	assert.Error(t, err)
	_, _, err = p.Image()
	assert.Error(t, err)

	short := NewPacket(PacketAccelerometer, 0, 0, []byte{1, 2})
	_, err = short.IMU()
	assert.ErrorIs(t, err, ErrMalformedCapture)
}
