// Package calibration models the calibration JSON that accompanies a capture,
// locates it, compares two calibrations and builds them from the built-in
// per-device parameter tables.
package calibration

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/trackbench/internal/capture"
	"github.com/banshee-data/trackbench/internal/fsutil"
)

// Version is the calibration_version written by this package.
const Version = 10

// SharedFile is the per-directory calibration used when a capture has no
// sidecar of its own.
const SharedFile = "calibration.json"

// ErrNoCalibration is returned when no calibration could be found for a capture.
var ErrNoCalibration = errors.New("no calibration found")

// Calibration is the top-level calibration document.
type Calibration struct {
	Version    int      `json:"calibration_version"`
	DeviceID   string   `json:"device_id"`
	DeviceType string   `json:"device_type"`
	Cameras    []Camera `json:"cameras"`
	Depths     []Camera `json:"depths"`
	IMUs       []IMU    `json:"imus"`
}

// Extrinsics places a sensor in the body frame. W is a rotation vector.
type Extrinsics struct {
	T         [3]float64 `json:"T"`
	TVariance [3]float64 `json:"T_variance"`
	W         [3]float64 `json:"W"`
	WVariance [3]float64 `json:"W_variance"`
}

// Distortion describes the lens model. K is set for polynomial lenses and W
// for fisheye lenses.
type Distortion struct {
	Type string    `json:"type"`
	K    []float64 `json:"k,omitempty"`
	W    *float64  `json:"w,omitempty"`
}

// Camera holds the intrinsics and extrinsics of one color or depth camera.
type Camera struct {
	FocalLength [2]float64 `json:"focal_length_px"`
	Center      [2]float64 `json:"center_px"`
	Size        [2]int     `json:"size_px"`
	Distortion  Distortion `json:"distortion"`
	Extrinsics  Extrinsics `json:"extrinsics"`
}

// InertialSensor holds the intrinsics of an accelerometer or gyroscope.
type InertialSensor struct {
	ScaleAndAlignment [9]float64 `json:"scale_and_alignment"`
	Bias              [3]float64 `json:"bias"`
	BiasVariance      [3]float64 `json:"bias_variance"`
	NoiseVariance     float64    `json:"noise_variance"`
}

// IMU pairs an accelerometer and gyroscope sharing one mounting.
type IMU struct {
	Accelerometer InertialSensor `json:"accelerometer"`
	Gyroscope     InertialSensor `json:"gyroscope"`
	Extrinsics    Extrinsics     `json:"extrinsics"`
}

// Identity is a row-major 3x3 identity for ScaleAndAlignment.
var Identity = [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}

// Parse decodes a calibration document.
func Parse(data []byte) (*Calibration, error) {
	var c Calibration
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse calibration: %w", err)
	}
	return &c, nil
}

// Marshal encodes c the way calibration files are written on disk.
func (c *Calibration) Marshal() ([]byte, error) {
	return json.MarshalIndent(c, "", "    ")
}

// SidecarPaths lists the candidate calibration files for a capture in the
// order they are tried.
func SidecarPaths(capturePath string) []string {
	return []string{
		capturePath + ".json",
		filepath.Join(filepath.Dir(capturePath), SharedFile),
	}
}

// FindSidecar returns the path and contents of the first calibration file
// found next to capturePath.
func FindSidecar(fsys fsutil.FileSystem, capturePath string) (string, []byte, error) {
	for _, p := range SidecarPaths(capturePath) {
		if !fsys.Exists(p) {
			continue
		}
		data, err := fsys.ReadFile(p)
		if err != nil {
			return "", nil, err
		}
		return p, data, nil
	}
	return "", nil, fmt.Errorf("%w for %s", ErrNoCalibration, capturePath)
}

// Embedded returns the payload of the first calibration packet in a capture
// stream.
func Embedded(r io.Reader) ([]byte, error) {
	cr := capture.NewReader(r)
	for {
		p, err := cr.Next()
		if err == io.EOF {
			return nil, ErrNoCalibration
		}
		if err != nil {
			return nil, err
		}
		if p.Header.Type == capture.PacketCalibrationJSON {
			return p.Payload, nil
		}
	}
}

// Comparison is the outcome of Compare.
type Comparison struct {
	// Identical is set when the two documents are byte-for-byte equal.
	Identical bool
	// Equal is set when the documents decode to the same JSON value.
	Equal bool
	// Diff is a human-readable difference, empty when Equal.
	Diff string
}

// Compare checks two calibration documents. Documents that differ only in
// formatting or key order are Equal but not Identical. When either document
// is not valid JSON the raw text is diffed instead.
func Compare(a, b []byte) Comparison {
	if bytes.Equal(a, b) {
		return Comparison{Identical: true, Equal: true}
	}
	var va, vb any
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return Comparison{Diff: cmp.Diff(string(a), string(b))}
	}
	diff := cmp.Diff(va, vb)
	return Comparison{Equal: diff == "", Diff: diff}
}
