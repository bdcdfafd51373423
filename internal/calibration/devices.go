package calibration

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

//go:embed data/devices.csv
var devicesCSV []byte

// DeviceParameters are the factory calibration values for one device model.
// Units: pixels for intrinsics, meters and radians for extrinsics, SI
// variances for the IMU, microseconds for shutter timing.
type DeviceParameters struct {
	Name string

	Fx, Fy float64
	Cx, Cy float64
	Px, Py float64
	K      [3]float64

	Tc [3]float64
	Wc [3]float64

	ABias [3]float64
	WBias [3]float64

	ABiasVar float64
	WBiasVar float64
	TcVar    float64
	WcVar    float64

	AMeasVar float64
	WMeasVar float64

	ImageWidth    int
	ImageHeight   int
	ShutterDelay  int
	ShutterPeriod int
}

var (
	devicesOnce sync.Once
	devices     map[string]DeviceParameters
	deviceNames []string
	devicesErr  error
)

func loadDevices() {
	devices, deviceNames, devicesErr = parseDevices(devicesCSV)
}

// Device returns the parameters for a named device model.
func Device(name string) (DeviceParameters, error) {
	devicesOnce.Do(loadDevices)
	if devicesErr != nil {
		return DeviceParameters{}, devicesErr
	}
	d, ok := devices[name]
	if !ok {
		return DeviceParameters{}, fmt.Errorf("unrecognized device %q", name)
	}
	return d, nil
}

// Devices returns the known device model names in sorted order.
func Devices() []string {
	devicesOnce.Do(loadDevices)
	return append([]string(nil), deviceNames...)
}

func parseDevices(data []byte) (map[string]DeviceParameters, []string, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read device table: %w", err)
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("device table is empty")
	}
	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}

	out := make(map[string]DeviceParameters, len(records)-1)
	names := make([]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		r := row{rec: rec, col: col}
		d := DeviceParameters{
			Name: rec[col["device"]],
			Fx:   r.f("fx"), Fy: r.f("fy"),
			Cx: r.f("cx"), Cy: r.f("cy"),
			Px: r.f("px"), Py: r.f("py"),
			K:     r.vec("k0", "k1", "k2"),
			Tc:    r.vec("tc0", "tc1", "tc2"),
			Wc:    r.vec("wc0", "wc1", "wc2"),
			ABias: r.vec("a_bias0", "a_bias1", "a_bias2"),
			WBias: r.vec("w_bias0", "w_bias1", "w_bias2"),

			ABiasVar: r.f("a_bias_var"),
			WBiasVar: r.f("w_bias_var"),
			TcVar:    r.f("tc_var"),
			WcVar:    r.f("wc_var"),
			AMeasVar: r.f("a_meas_var"),
			WMeasVar: r.f("w_meas_var"),

			ImageWidth:    r.i("image_width"),
			ImageHeight:   r.i("image_height"),
			ShutterDelay:  r.i("shutter_delay"),
			ShutterPeriod: r.i("shutter_period"),
		}
		if r.err != nil {
			return nil, nil, fmt.Errorf("device %s: %w", d.Name, r.err)
		}
		out[d.Name] = d
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return out, names, nil
}

// row reads typed columns from one CSV record, keeping the first error.
type row struct {
	rec []string
	col map[string]int
	err error
}

func (r *row) field(name string) string {
	i, ok := r.col[name]
	if !ok || i >= len(r.rec) {
		if r.err == nil {
			r.err = fmt.Errorf("missing column %q", name)
		}
		return ""
	}
	return r.rec[i]
}

func (r *row) f(name string) float64 {
	s := r.field(name)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("column %q: %w", name, err)
	}
	return v
}

func (r *row) i(name string) int {
	s := r.field(name)
	v, err := strconv.Atoi(s)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("column %q: %w", name, err)
	}
	return v
}

func (r *row) vec(a, b, c string) [3]float64 {
	return [3]float64{r.f(a), r.f(b), r.f(c)}
}

// Calibration converts the device parameters into a calibration document
// with one camera and one IMU. The IMU frame is the body frame.
func (d DeviceParameters) Calibration() *Calibration {
	tv, wv := d.TcVar, d.WcVar
	return &Calibration{
		Version:    Version,
		DeviceType: d.Name,
		Cameras: []Camera{{
			FocalLength: [2]float64{d.Fx, d.Fy},
			Center:      [2]float64{d.Cx, d.Cy},
			Size:        [2]int{d.ImageWidth, d.ImageHeight},
			Distortion:  Distortion{Type: "polynomial", K: d.K[:]},
			Extrinsics: Extrinsics{
				T: d.Tc, TVariance: [3]float64{tv, tv, tv},
				W: d.Wc, WVariance: [3]float64{wv, wv, wv},
			},
		}},
		Depths: []Camera{},
		IMUs: []IMU{{
			Accelerometer: InertialSensor{
				ScaleAndAlignment: Identity,
				Bias:              d.ABias,
				BiasVariance:      [3]float64{d.ABiasVar, d.ABiasVar, d.ABiasVar},
				NoiseVariance:     d.AMeasVar,
			},
			Gyroscope: InertialSensor{
				ScaleAndAlignment: Identity,
				Bias:              d.WBias,
				BiasVariance:      [3]float64{d.WBiasVar, d.WBiasVar, d.WBiasVar},
				NoiseVariance:     d.WMeasVar,
			},
		}},
	}
}
