// Package kpi runs the external KPI validation scripts over the recorded KPI
// sequences and summarizes the CSV files they produce.
package kpi

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/banshee-data/trackbench/internal/command"
)

// ErrMissingResult is reported for a sequence whose tracker result file has
// not been produced yet. Such sequences are skipped.
var ErrMissingResult = errors.New("kpi result file missing")

// SequenceSuffix selects the sequence recordings inside each category.
const SequenceSuffix = "stereo.rc"

// Sidecar files that sit next to each sequence recording.
const (
	intervalsSuffix  = ".intervals.txt"
	robotAxesSuffix  = ".robotaxes.txt"
	robotPosesSuffix = ".robotposes.txt"
	resultCSVSuffix  = ".result.csv"
)

// Category is one KPI benchmark folder and the script that scores it.
type Category struct {
	Dir    string
	Script string

	// args returns the script arguments after the result file.
	args func(sequence string) []string
	// collect folds the CSV rows of one sequence into m.
	collect func(rows []map[string]string, m *Metrics) error
}

// Categories lists the KPI categories in the order they are processed.
var Categories = []Category{
	{
		Dir:    "zero-drift",
		Script: "M1-staticnoise-standalone.py",
		args: func(seq string) []string {
			return []string{seq + intervalsSuffix}
		},
		collect: collectZeroDrift,
	},
	{
		Dir:    "vr-translation",
		Script: "M2-VR_translation.py",
		args: func(seq string) []string {
			return []string{seq + intervalsSuffix, seq + robotAxesSuffix, seq + robotPosesSuffix}
		},
		collect: collectTranslation,
	},
	{
		Dir:    "rotation",
		Script: "M3-rotation_metric.py",
		args: func(seq string) []string {
			return []string{seq + intervalsSuffix, seq + robotPosesSuffix}
		},
		collect: collectRotation,
	},
}

// Options configures a Summarizer.
type Options struct {
	Root        string // directory holding the category folders
	ScriptsDir  string // directory holding the validation scripts
	Interpreter string // empty executes the scripts directly
}

// Summarizer scores every KPI sequence that has a result file.
type Summarizer struct {
	opts    Options
	builder command.CommandBuilder
	logger  *zap.Logger
}

// NewSummarizer returns a Summarizer.
func NewSummarizer(opts Options, builder command.CommandBuilder, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{opts: opts, builder: builder, logger: logger}
}

// Sequences lists the recordings under one category directory, files of a
// directory before its subdirectories, each level sorted by name. A missing
// category directory yields no sequences.
func (s *Summarizer) Sequences(cat Category) ([]string, error) {
	fsys := os.DirFS(s.opts.Root)
	if _, err := fs.Stat(fsys, cat.Dir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	var out []string
	if err := walkFilesFirst(fsys, cat.Dir, &out); err != nil {
		return nil, err
	}
	for i, rel := range out {
		out[i] = filepath.Join(s.opts.Root, filepath.FromSlash(rel))
	}
	return out, nil
}

func walkFilesFirst(fsys fs.FS, dir string, out *[]string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return err
	}
	var subdirs []string
	for _, e := range entries {
		if e.IsDir() {
			subdirs = append(subdirs, path.Join(dir, e.Name()))
			continue
		}
		if strings.HasSuffix(e.Name(), SequenceSuffix) {
			*out = append(*out, path.Join(dir, e.Name()))
		}
	}
	for _, d := range subdirs {
		if err := walkFilesFirst(fsys, d, out); err != nil {
			return err
		}
	}
	return nil
}

// Run scores every category. resultExt is appended to each sequence path to
// find the tracker output. Per-sequence problems are logged and skipped; only
// an unreadable category directory or a cancelled context is returned.
func (s *Summarizer) Run(ctx context.Context, resultExt string) (*Metrics, error) {
	m := &Metrics{}
	for _, cat := range Categories {
		seqs, err := s.Sequences(cat)
		if err != nil {
			return m, fmt.Errorf("scan %s: %w", cat.Dir, err)
		}
		for _, seq := range seqs {
			if err := ctx.Err(); err != nil {
				return m, err
			}
			if err := s.score(ctx, cat, seq, resultExt, m); err != nil {
				s.logger.Warn("Skipping", zap.String("sequence", seq), zap.Error(err))
			}
		}
	}
	return m, nil
}

func (s *Summarizer) score(ctx context.Context, cat Category, seq, resultExt string, m *Metrics) error {
	result := seq + resultExt
	if _, err := os.Stat(result); err != nil {
		return fmt.Errorf("%w: %s", ErrMissingResult, result)
	}
	out := result + resultCSVSuffix
	s.logger.Info("Scoring", zap.String("category", cat.Dir), zap.String("sequence", seq))

	args := append([]string{result}, cat.args(seq)...)
	args = append(args, out)
	name := filepath.Join(s.opts.ScriptsDir, cat.Script)
	if s.opts.Interpreter != "" {
		args = append([]string{name}, args...)
		name = s.opts.Interpreter
	}
	cmd := s.builder.BuildCommand(ctx, name, args...)
	output, err := cmd.Run()
	if len(output) > 0 {
		s.logger.Debug("script output", zap.String("cmd", cmd.String()), zap.ByteString("output", output))
	}
	if err != nil {
		return fmt.Errorf("%s: %w", cat.Script, err)
	}

	rows, err := readRows(out)
	if err != nil {
		return err
	}
	// Collect into scratch space so a bad file leaves m untouched.
	var scratch Metrics
	if err := cat.collect(rows, &scratch); err != nil {
		return fmt.Errorf("%s: %w", out, err)
	}
	m.merge(&scratch)
	return nil
}

// readRows reads a CSV with a header row into one map per record, keyed by
// column name. Short records leave the missing columns absent.
func readRows(name string) ([]map[string]string, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", name, err)
	}

	var rows []map[string]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func column(row map[string]string, name string) (float64, error) {
	v, ok := row[name]
	if !ok {
		return 0, fmt.Errorf("missing column %q", name)
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("column %q: %w", name, err)
	}
	return f, nil
}

func collectZeroDrift(rows []map[string]string, m *Metrics) error {
	for _, row := range rows {
		var trans, rot *[]float64
		switch row[""] {
		case "Zero Drift":
			trans, rot = &m.ZeroDriftTranslation, &m.ZeroDriftRotation
		case "Static Noise (avg of phases)":
			trans, rot = &m.StaticNoiseTranslation, &m.StaticNoiseRotation
		default:
			continue
		}
		t, err := column(row, "Translation Dist Avg")
		if err != nil {
			return err
		}
		r, err := column(row, "Rotation Max")
		if err != nil {
			return err
		}
		*trans = append(*trans, t)
		*rot = append(*rot, r)
	}
	return nil
}

func collectTranslation(rows []map[string]string, m *Metrics) error {
	for _, row := range rows {
		scale, err := column(row, "Average Translation Scale Error")
		if err != nil {
			return err
		}
		ratio, err := column(row, "Average Translation Error Ratio")
		if err != nil {
			return err
		}
		m.TranslationScale = append(m.TranslationScale, scale*100)
		m.TranslationErrorRatio = append(m.TranslationErrorRatio, ratio*100)
	}
	return nil
}

func collectRotation(rows []map[string]string, m *Metrics) error {
	for _, row := range rows {
		e, err := column(row, "Rotation Error")
		if err != nil {
			return err
		}
		m.RotationErrors = append(m.RotationErrors, e)
	}
	return nil
}
