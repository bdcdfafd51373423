package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/banshee-data/trackbench/internal/benchmark"
)

// GalleryFile is the HTML gallery name inside an output directory.
const GalleryFile = "index.html"

//go:embed templates/index.html.tmpl
var templateFS embed.FS

var galleryTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html.tmpl"))

type galleryCase struct {
	Path  string
	Image string
}

type galleryData struct {
	Title  string
	Charts []string
	Cases  []galleryCase
}

// RenderGallery returns the gallery page listing one engine render per case
// and, when given, the histogram chart images.
func RenderGallery(title string, cases []benchmark.TestCase, charts []string) ([]byte, error) {
	data := galleryData{Title: title, Charts: charts, Cases: make([]galleryCase, len(cases))}
	for i, tc := range cases {
		data.Cases[i] = galleryCase{Path: tc.Path, Image: tc.RenderPath()}
	}

	var buf bytes.Buffer
	if err := galleryTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render gallery: %w", err)
	}
	return buf.Bytes(), nil
}
