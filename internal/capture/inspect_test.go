package capture

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func synthetic(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf)

	// accelerometer at 100 Hz with one late sample
	ts := uint64(1_000_000)
	for i := 0; i < 50; i++ {
		if i == 25 {
			ts += 5000
		}
		require.NoError(t, w.WritePacket(NewIMUPacket(PacketAccelerometer, 0, ts, [3]float32{0, 0, 9.8})))
		require.NoError(t, w.WritePacket(NewIMUPacket(PacketGyro, 0, ts+10, [3]float32{})))
		ts += 10_000
	}

	// three images back to back with no IMU in between, one underexposed
	for i, exp := range []uint64{10_000, 10_000, 500} {
		p, err := NewImagePacket(0, 2_000_000+uint64(i)*33_333, ImageHeader{ExposureUS: exp, Width: 1, Height: 1, Stride: 1}, []byte{0})
		require.NoError(t, err)
		require.NoError(t, w.WritePacket(p))
	}
	return buf.Bytes()
}

func TestInspect(t *testing.T) {
	var seen int
	sum, err := Inspect(bytes.NewReader(synthetic(t)), func(*Packet) { seen++ })
	require.NoError(t, err)

	assert.Equal(t, 103, seen)
	assert.Equal(t, 103, sum.Packets)
	assert.Equal(t, int64(-1), sum.MalformedAt)
	assert.Empty(t, sum.Missing())
	require.Len(t, sum.Streams, 3)

	keys := []string{sum.Streams[0].Key, sum.Streams[1].Key, sum.Streams[2].Key}
	assert.Equal(t, []string{"accelerometer_0", "gyro_0", "image_raw_0_Y8"}, keys)

	acc := sum.Streams[0]
	assert.Equal(t, 50, acc.Count())
	assert.InDelta(t, 495_000.0/49, acc.MeanDeltaUS, 1e-6)
	assert.InDelta(t, 49e6/495_000.0, acc.RateHz, 1e-6)
	assert.Greater(t, acc.StdDeltaUS, 0.0)
	require.Len(t, acc.Exceptions, 1)
	assert.Equal(t, 24, acc.Exceptions[0].Index)
	assert.Equal(t, int64(15_000), acc.Exceptions[0].DeltaUS)
	assert.Equal(t, uint64(1_000_000), acc.StartUS)
	assert.InDelta(t, 0.495, acc.LengthSeconds(), 1e-9)
	assert.Empty(t, acc.LatencyWarnings)

	img := sum.Streams[2]
	require.Len(t, img.LatencyWarnings, 2)
	assert.Equal(t, [][]uint64{{2_005_000, 2_038_333, 2_066_916}}, img.LatencyRuns())
	require.Len(t, img.ExposureWarnings, 1)
	assert.Equal(t, uint64(500), img.ExposureWarnings[0].ExposureUS)
	assert.Equal(t, uint64(2_066_666), img.ExposureWarnings[0].Time)
}

func TestInspectMissingStreams(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WritePacket(NewIMUPacket(PacketGyro, 0, 1, [3]float32{})))

	sum, err := Inspect(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, []PacketType{PacketAccelerometer, PacketImageRaw}, sum.Missing())
}

func TestInspectMalformedKeepsPartialStats(t *testing.T) {
	data := append(synthetic(t), 1, 2, 3)
	sum, err := Inspect(bytes.NewReader(data), nil)
	assert.ErrorIs(t, err, ErrMalformedCapture)
	require.NotNil(t, sum)
	assert.Equal(t, 103, sum.Packets)
	assert.Equal(t, int64(len(data)-3), sum.MalformedAt)
}

func TestLatencyRunsSeparatesBreaks(t *testing.T) {
	s := &StreamStats{LatencyWarnings: [][2]uint64{{1, 2}, {2, 3}, {10, 11}}}
	assert.Equal(t, [][]uint64{{1, 2, 3}, {10, 11}}, s.LatencyRuns())

	single := &StreamStats{LatencyWarnings: [][2]uint64{{5, 6}}}
	assert.Equal(t, [][]uint64{{5, 6}}, single.LatencyRuns())
}

func TestRenderDeltaChart(t *testing.T) {
	sum, err := Inspect(bytes.NewReader(synthetic(t)), nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderDeltaChart(&buf, "capture.bin", sum))
	out := buf.String()
	assert.True(t, strings.Contains(out, "accelerometer_0"))
	assert.True(t, strings.Contains(out, "echarts"))
}
