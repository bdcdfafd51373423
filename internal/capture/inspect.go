package capture

import (
	"errors"
	"io"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Inspection thresholds.
const (
	// DeltaTolerance is the fractional distance from the mean sample period
	// beyond which a sample interval is reported as an exception.
	DeltaTolerance = 0.05

	MinExposureUS = 1000
	MaxExposureUS = 50000
)

// DeltaException is a sample interval outside DeltaTolerance of the mean.
type DeltaException struct {
	Index   int
	Time    uint64
	Next    uint64
	DeltaUS int64
}

// ExposureWarning is an image whose exposure is outside the expected range.
type ExposureWarning struct {
	Time       uint64
	ExposureUS uint64
}

// StreamStats summarises one stream of a capture file.
type StreamStats struct {
	Key        string
	Timestamps []uint64

	RateHz      float64
	MeanDeltaUS float64
	StdDeltaUS  float64
	StartUS     uint64
	FinishUS    uint64

	Exceptions []DeltaException
	// LatencyWarnings holds consecutive packets of the same non-IMU stream
	// with no other packet in between, as (previous, current) time pairs.
	LatencyWarnings  [][2]uint64
	ExposureWarnings []ExposureWarning
}

// Count returns the number of packets in the stream.
func (s *StreamStats) Count() int { return len(s.Timestamps) }

// LengthSeconds returns the span of the stream in seconds.
func (s *StreamStats) LengthSeconds() float64 {
	return float64(s.FinishUS-s.StartUS) / 1e6
}

// Deltas returns the intervals between consecutive timestamps in microseconds.
func (s *StreamStats) Deltas() []float64 {
	if len(s.Timestamps) < 2 {
		return nil
	}
	d := make([]float64, len(s.Timestamps)-1)
	for i := 1; i < len(s.Timestamps); i++ {
		d[i-1] = float64(int64(s.Timestamps[i]) - int64(s.Timestamps[i-1]))
	}
	return d
}

// LatencyRuns groups chained latency warnings into runs of image timestamps.
// Two warnings chain when the second starts at the time the first ended.
func (s *StreamStats) LatencyRuns() [][]uint64 {
	var runs [][]uint64
	var cur []uint64
	for i, w := range s.LatencyWarnings {
		if len(cur) == 0 {
			cur = append(cur, w[0])
		}
		cur = append(cur, w[1])
		last := i == len(s.LatencyWarnings)-1
		if last || s.LatencyWarnings[i+1][0] != w[1] {
			runs = append(runs, cur)
			cur = nil
		}
	}
	return runs
}

// Summary is the result of inspecting a capture stream.
type Summary struct {
	Streams     []*StreamStats
	TypeCounts  map[PacketType]int
	Packets     int
	Bytes       int64
	MalformedAt int64 // offset of the first malformed record, -1 if none
}

// Missing returns the sensor types a usable capture needs but never appeared.
func (s *Summary) Missing() []PacketType {
	var missing []PacketType
	for _, t := range []PacketType{PacketAccelerometer, PacketGyro, PacketImageRaw} {
		if s.TypeCounts[t] == 0 {
			missing = append(missing, t)
		}
	}
	return missing
}

// Inspector accumulates per-stream statistics one packet at a time.
type Inspector struct {
	streams    map[string]*StreamStats
	typeCounts map[PacketType]int
	packets    int
	bytes      int64
	prevKey    string
	prevTime   uint64
}

// NewInspector returns an empty Inspector.
func NewInspector() *Inspector {
	return &Inspector{
		streams:    make(map[string]*StreamStats),
		typeCounts: make(map[PacketType]int),
	}
}

// Add records p.
func (in *Inspector) Add(p *Packet) {
	in.packets++
	in.bytes += int64(p.Header.TotalBytes)
	in.typeCounts[p.Header.Type]++

	key := p.StreamKey()
	s, ok := in.streams[key]
	if !ok {
		s = &StreamStats{Key: key}
		in.streams[key] = s
	}

	t := p.Time()
	if p.Header.Type == PacketImageRaw {
		if ih, _, err := p.Image(); err == nil && (ih.ExposureUS < MinExposureUS || ih.ExposureUS > MaxExposureUS) {
			s.ExposureWarnings = append(s.ExposureWarnings, ExposureWarning{Time: t - ih.ExposureUS/2, ExposureUS: ih.ExposureUS})
		}
	}
	s.Timestamps = append(s.Timestamps, t)

	if !p.Header.Type.IsIMU() && in.prevKey == key {
		s.LatencyWarnings = append(s.LatencyWarnings, [2]uint64{in.prevTime, t})
	}
	in.prevKey = key
	in.prevTime = t
}

// Summary computes the statistics for every stream seen so far, sorted by key.
func (in *Inspector) Summary() *Summary {
	sum := &Summary{
		TypeCounts:  make(map[PacketType]int, len(in.typeCounts)),
		Packets:     in.packets,
		Bytes:       in.bytes,
		MalformedAt: -1,
	}
	for t, n := range in.typeCounts {
		sum.TypeCounts[t] = n
	}

	keys := make([]string, 0, len(in.streams))
	for k := range in.streams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		s := in.streams[k]
		finalize(s)
		sum.Streams = append(sum.Streams, s)
	}
	return sum
}

func finalize(s *StreamStats) {
	if len(s.Timestamps) == 0 {
		return
	}
	ts := make([]float64, len(s.Timestamps))
	for i, t := range s.Timestamps {
		ts[i] = float64(t)
	}
	s.StartUS = uint64(floats.Min(ts))
	s.FinishUS = uint64(floats.Max(ts))

	deltas := s.Deltas()
	s.Exceptions = nil
	if len(deltas) == 0 {
		return
	}
	s.MeanDeltaUS, s.StdDeltaUS = stat.PopMeanStdDev(deltas, nil)
	if s.MeanDeltaUS != 0 {
		s.RateHz = 1e6 / s.MeanDeltaUS
	}
	hi := s.MeanDeltaUS * (1 + DeltaTolerance)
	lo := s.MeanDeltaUS * (1 - DeltaTolerance)
	for i, d := range deltas {
		if d > hi || d < lo {
			s.Exceptions = append(s.Exceptions, DeltaException{
				Index:   i,
				Time:    s.Timestamps[i],
				Next:    s.Timestamps[i+1],
				DeltaUS: int64(d),
			})
		}
	}
}

// Inspect reads every packet from r. onPacket, when non-nil, is called for
// each decoded packet. A malformed record stops the scan; the statistics
// gathered up to that point are returned along with the error.
func Inspect(r io.Reader, onPacket func(*Packet)) (*Summary, error) {
	in := NewInspector()
	pr := NewReader(r)
	for {
		offset := pr.Offset()
		p, err := pr.Next()
		if errors.Is(err, io.EOF) {
			return in.Summary(), nil
		}
		if err != nil {
			sum := in.Summary()
			if errors.Is(err, ErrMalformedCapture) {
				sum.MalformedAt = offset
			}
			return sum, err
		}
		if onPacket != nil {
			onPacket(p)
		}
		in.Add(p)
	}
}
