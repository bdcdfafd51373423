// Package mav converts EuRoC MAV dataset folders into capture files with a
// matching calibration document.
package mav

import (
	"encoding/csv"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/png"
	"io"
	"io/fs"
	"math"
	"path"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/banshee-data/trackbench/internal/calibration"
	"github.com/banshee-data/trackbench/internal/capture"
	"github.com/banshee-data/trackbench/internal/fsutil"
)

// Bias variances assumed for every MAV IMU; the dataset does not provide them.
const (
	accelBiasVariance = .02
	gyroBiasVariance  = 1e-6
)

// Transform is a row-major matrix as written in sensor.yaml.
type Transform struct {
	Rows int       `yaml:"rows"`
	Cols int       `yaml:"cols"`
	Data []float64 `yaml:"data"`
}

// Body is the dataset-level body.yaml.
type Body struct {
	Comment string `yaml:"comment"`
}

// Sensor is a sensor.yaml for either an IMU or a camera.
type Sensor struct {
	SensorType string    `yaml:"sensor_type"`
	Comment    string    `yaml:"comment"`
	TBS        Transform `yaml:"T_BS"`
	RateHz     float64   `yaml:"rate_hz"`

	// IMU
	GyroscopeNoiseDensity     float64 `yaml:"gyroscope_noise_density"`
	AccelerometerNoiseDensity float64 `yaml:"accelerometer_noise_density"`

	// Camera
	Resolution             []int     `yaml:"resolution"`
	CameraModel            string    `yaml:"camera_model"`
	Intrinsics             []float64 `yaml:"intrinsics"`
	DistortionCoefficients []float64 `yaml:"distortion_coefficients"`
}

// Stats reports what a conversion wrote.
type Stats struct {
	Packets map[capture.PacketType]int
	Bytes   uint64
}

type sample struct {
	kind     capture.PacketType
	sensor   uint16
	timeNS   int64
	v        [3]float32
	image    string // path inside the dataset
	exposure uint64
}

// Converter reads a dataset folder from an fs.FS.
type Converter struct {
	src    fs.FS
	logger *zap.Logger
}

// NewConverter returns a Converter over the dataset root src.
func NewConverter(src fs.FS, logger *zap.Logger) *Converter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{src: src, logger: logger}
}

// Convert writes the capture to output and its calibration to output.json.
func (c *Converter) Convert(out fsutil.FileSystem, output string) (*Stats, error) {
	var body Body
	if err := c.readYAML("body.yaml", &body); err != nil {
		return nil, err
	}
	cal := &calibration.Calibration{
		Version:    calibration.Version,
		DeviceType: body.Comment,
		Cameras:    []calibration.Camera{},
		Depths:     []calibration.Camera{},
		IMUs:       []calibration.IMU{},
	}

	var samples []sample
	for i := 0; ; i++ {
		dir := fmt.Sprintf("imu%d", i)
		if !c.exists(dir) {
			break
		}
		imu, s, err := c.loadIMU(dir, uint16(i))
		if err != nil {
			return nil, err
		}
		cal.IMUs = append(cal.IMUs, imu)
		samples = append(samples, s...)
	}
	for i := 0; ; i++ {
		dir := fmt.Sprintf("cam%d", i)
		if !c.exists(dir) {
			break
		}
		cam, s, err := c.loadCamera(dir, uint16(i))
		if err != nil {
			return nil, err
		}
		cal.Cameras = append(cal.Cameras, cam)
		samples = append(samples, s...)
	}
	c.logger.Info("Loaded dataset",
		zap.Int("imus", len(cal.IMUs)),
		zap.Int("cameras", len(cal.Cameras)),
		zap.Int("samples", len(samples)))

	doc, err := cal.Marshal()
	if err != nil {
		return nil, err
	}
	if err := out.WriteFile(output+".json", doc, 0o644); err != nil {
		return nil, fmt.Errorf("write calibration: %w", err)
	}

	sort.SliceStable(samples, func(a, b int) bool { return samples[a].timeNS < samples[b].timeNS })

	f, err := out.Create(output)
	if err != nil {
		return nil, fmt.Errorf("create capture: %w", err)
	}
	stats, err := c.writePackets(f, samples)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close capture: %w", cerr)
	}
	return stats, err
}

func (c *Converter) writePackets(w io.Writer, samples []sample) (*Stats, error) {
	cw := capture.NewWriter(w)
	stats := &Stats{Packets: make(map[capture.PacketType]int)}
	for _, s := range samples {
		ts := uint64(s.timeNS / 1000)
		var p *capture.Packet
		switch s.kind {
		case capture.PacketImageRaw:
			ih, pix, err := c.loadGray(s.image)
			if err != nil {
				return stats, err
			}
			ih.ExposureUS = s.exposure
			if p, err = capture.NewImagePacket(s.sensor, ts, ih, pix); err != nil {
				return stats, fmt.Errorf("%s: %w", s.image, err)
			}
		default:
			p = capture.NewIMUPacket(s.kind, s.sensor, ts, s.v)
		}
		if err := cw.WritePacket(p); err != nil {
			return stats, err
		}
		stats.Packets[s.kind]++
	}
	stats.Bytes = cw.BytesWritten()
	return stats, nil
}

func (c *Converter) exists(name string) bool {
	_, err := fs.Stat(c.src, name)
	return err == nil
}

func (c *Converter) readYAML(name string, v any) error {
	data, err := fs.ReadFile(c.src, name)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func (c *Converter) loadIMU(dir string, id uint16) (calibration.IMU, []sample, error) {
	var s Sensor
	if err := c.readYAML(path.Join(dir, "sensor.yaml"), &s); err != nil {
		return calibration.IMU{}, nil, err
	}
	ext, err := Extrinsics(s.TBS)
	if err != nil {
		return calibration.IMU{}, nil, fmt.Errorf("%s: %w", dir, err)
	}
	imu := calibration.IMU{
		Accelerometer: calibration.InertialSensor{
			ScaleAndAlignment: calibration.Identity,
			BiasVariance:      [3]float64{accelBiasVariance, accelBiasVariance, accelBiasVariance},
			NoiseVariance:     s.AccelerometerNoiseDensity * s.AccelerometerNoiseDensity * s.RateHz,
		},
		Gyroscope: calibration.InertialSensor{
			ScaleAndAlignment: calibration.Identity,
			BiasVariance:      [3]float64{gyroBiasVariance, gyroBiasVariance, gyroBiasVariance},
			NoiseVariance:     s.GyroscopeNoiseDensity * s.GyroscopeNoiseDensity * s.RateHz,
		},
		Extrinsics: ext,
	}

	rows, err := c.readCSV(path.Join(dir, "data.csv"), 7)
	if err != nil {
		return calibration.IMU{}, nil, err
	}
	samples := make([]sample, 0, 2*len(rows))
	for _, r := range rows {
		t, err := strconv.ParseInt(r[0], 10, 64)
		if err != nil {
			return calibration.IMU{}, nil, fmt.Errorf("%s timestamp: %w", dir, err)
		}
		vals, err := parseFloat32s(r[1:])
		if err != nil {
			return calibration.IMU{}, nil, fmt.Errorf("%s at %d: %w", dir, t, err)
		}
		samples = append(samples,
			sample{kind: capture.PacketGyro, sensor: id, timeNS: t, v: [3]float32{vals[0], vals[1], vals[2]}},
			sample{kind: capture.PacketAccelerometer, sensor: id, timeNS: t, v: [3]float32{vals[3], vals[4], vals[5]}},
		)
	}
	return imu, samples, nil
}

func (c *Converter) loadCamera(dir string, id uint16) (calibration.Camera, []sample, error) {
	var s Sensor
	if err := c.readYAML(path.Join(dir, "sensor.yaml"), &s); err != nil {
		return calibration.Camera{}, nil, err
	}
	if s.CameraModel != "pinhole" {
		return calibration.Camera{}, nil, fmt.Errorf("%s: unsupported camera model %q", dir, s.CameraModel)
	}
	if len(s.Intrinsics) != 4 || len(s.Resolution) != 2 || len(s.DistortionCoefficients) < 3 {
		return calibration.Camera{}, nil, fmt.Errorf("%s: incomplete camera intrinsics", dir)
	}
	if s.RateHz <= 0 {
		return calibration.Camera{}, nil, fmt.Errorf("%s: rate_hz must be positive", dir)
	}
	ext, err := Extrinsics(s.TBS)
	if err != nil {
		return calibration.Camera{}, nil, fmt.Errorf("%s: %w", dir, err)
	}
	cam := calibration.Camera{
		FocalLength: [2]float64{s.Intrinsics[0], s.Intrinsics[1]},
		Center:      [2]float64{s.Intrinsics[2], s.Intrinsics[3]},
		Size:        [2]int{s.Resolution[0], s.Resolution[1]},
		Distortion: calibration.Distortion{
			Type: "polynomial",
			K:    append([]float64(nil), s.DistortionCoefficients[:3]...),
		},
		Extrinsics: ext,
	}

	rows, err := c.readCSV(path.Join(dir, "data.csv"), 2)
	if err != nil {
		return calibration.Camera{}, nil, err
	}
	exposure := uint64(1e6 / s.RateHz)
	samples := make([]sample, 0, len(rows))
	for _, r := range rows {
		t, err := strconv.ParseInt(r[0], 10, 64)
		if err != nil {
			return calibration.Camera{}, nil, fmt.Errorf("%s timestamp: %w", dir, err)
		}
		samples = append(samples, sample{
			kind:     capture.PacketImageRaw,
			sensor:   id,
			timeNS:   t,
			image:    path.Join(dir, "data", strings.TrimSpace(r[1])),
			exposure: exposure,
		})
	}
	return cam, samples, nil
}

// readCSV returns the data rows of a dataset CSV, skipping its header line.
func (c *Converter) readCSV(name string, fields int) ([][]string, error) {
	f, err := c.src.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = fields
	r.TrimLeadingSpace = true
	if _, err := r.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s header: %w", name, err)
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return rows, nil
}

func (c *Converter) loadGray(name string) (capture.ImageHeader, []byte, error) {
	f, err := c.src.Open(name)
	if err != nil {
		return capture.ImageHeader{}, nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return capture.ImageHeader{}, nil, fmt.Errorf("decode %s: %w", name, err)
	}
	g, ok := img.(*image.Gray)
	if !ok {
		g = image.NewGray(img.Bounds())
		draw.Draw(g, g.Rect, img, img.Bounds().Min, draw.Src)
	}
	w, h := g.Rect.Dx(), g.Rect.Dy()
	pix := make([]byte, 0, w*h)
	for y := 0; y < h; y++ {
		off := y * g.Stride
		pix = append(pix, g.Pix[off:off+w]...)
	}
	return capture.ImageHeader{
		Width:  uint16(w),
		Height: uint16(h),
		Stride: uint16(w),
		Format: capture.FormatGray8,
	}, pix, nil
}

func parseFloat32s(fields []string) ([]float32, error) {
	out := make([]float32, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(v)
	}
	return out, nil
}

// Extrinsics converts a 4x4 body-from-sensor transform into a translation
// and rotation vector.
func Extrinsics(t Transform) (calibration.Extrinsics, error) {
	if t.Rows != 4 || t.Cols != 4 || len(t.Data) != 16 {
		return calibration.Extrinsics{}, fmt.Errorf("T_BS must be 4x4, got %dx%d with %d values", t.Rows, t.Cols, len(t.Data))
	}
	g := mat.NewDense(4, 4, t.Data)
	r := mat.DenseCopyOf(g.Slice(0, 3, 0, 3))
	return calibration.Extrinsics{
		T: [3]float64{g.At(0, 3), g.At(1, 3), g.At(2, 3)},
		W: RotationVector(r),
	}, nil
}

// RotationVector returns the axis-angle vector of a rotation matrix, the
// skew part of its matrix logarithm.
func RotationVector(r mat.Matrix) [3]float64 {
	skew := [3]float64{
		(r.At(2, 1) - r.At(1, 2)) / 2,
		(r.At(0, 2) - r.At(2, 0)) / 2,
		(r.At(1, 0) - r.At(0, 1)) / 2,
	}
	cos := (mat.Trace(r) - 1) / 2
	cos = math.Max(-1, math.Min(1, cos))
	theta := math.Acos(cos)
	sin := math.Sin(theta)

	switch {
	case theta < 1e-9:
		return skew
	case sin > 1e-6:
		k := theta / sin
		return [3]float64{k * skew[0], k * skew[1], k * skew[2]}
	}

	// theta near pi: axis from the diagonal of (R + I) / 2.
	var axis [3]float64
	best := 0
	for i := 1; i < 3; i++ {
		if r.At(i, i) > r.At(best, best) {
			best = i
		}
	}
	axis[best] = math.Sqrt(math.Max(0, (r.At(best, best)+1)/2))
	for i := 0; i < 3; i++ {
		if i != best {
			axis[i] = (r.At(i, best) + r.At(best, i)) / (4 * axis[best])
		}
	}
	return [3]float64{theta * axis[0], theta * axis[1], theta * axis[2]}
}
