package report

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/banshee-data/trackbench/internal/benchmark"
	"github.com/banshee-data/trackbench/internal/fsutil"
)

// Writer writes a benchmark run into an output directory.
type Writer struct {
	fs     fsutil.FileSystem
	dir    string
	title  string
	logger *zap.Logger
}

// NewWriter returns a Writer for dir. The directory must already exist; see
// fsutil.PrepareOutputDir.
func NewWriter(fsys fsutil.FileSystem, dir, title string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{fs: fsys, dir: dir, title: title, logger: logger}
}

// Dir returns the output directory.
func (w *Writer) Dir() string { return w.dir }

// Begin writes the gallery before any engine runs so it can be reloaded to
// follow progress as renders appear.
func (w *Writer) Begin(cases []benchmark.TestCase) error {
	return w.writeGallery(cases, nil)
}

// Finish writes the text report and histogram charts, then rewrites the
// gallery to include the charts.
func (w *Writer) Finish(cases []benchmark.TestCase, s *benchmark.Summary) error {
	out, err := w.fs.Create(filepath.Join(w.dir, ResultsFile))
	if err != nil {
		return fmt.Errorf("create %s: %w", ResultsFile, err)
	}
	if err := WriteText(out, s); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", ResultsFile, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", ResultsFile, err)
	}

	charts, err := HistogramCharts(s)
	if err != nil {
		// The text report is already complete; keep the gallery usable.
		w.logger.Warn("histogram charts not rendered", zap.Error(err))
		return w.writeGallery(cases, nil)
	}
	names := make([]string, 0, len(charts))
	for _, c := range charts {
		if err := w.fs.WriteFile(filepath.Join(w.dir, c.Name), c.PNG, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", c.Name, err)
		}
		names = append(names, c.Name)
	}
	return w.writeGallery(cases, names)
}

func (w *Writer) writeGallery(cases []benchmark.TestCase, charts []string) error {
	page, err := RenderGallery(w.title, cases, charts)
	if err != nil {
		return err
	}
	if err := w.fs.WriteFile(filepath.Join(w.dir, GalleryFile), page, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", GalleryFile, err)
	}
	return nil
}
