package benchmark

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/banshee-data/trackbench/internal/capture"
	"github.com/banshee-data/trackbench/internal/config"
)

// ScanConvention selects how ground truth is attached to discovered sequences.
type ScanConvention int

const (
	// DirectoryLabel names the configuration after the parent directory and
	// leaves ground truth to the engine's Reference line.
	DirectoryLabel ScanConvention = iota
	// FilenameEmbedded reads ground truth from _L<cm> and _PL<cm> markers in
	// the file name.
	FilenameEmbedded
)

func (c ScanConvention) String() string {
	switch c {
	case DirectoryLabel:
		return config.ConventionDirectory
	case FilenameEmbedded:
		return config.ConventionFilename
	default:
		return fmt.Sprintf("ScanConvention(%d)", int(c))
	}
}

// ParseConvention maps a configuration name to a ScanConvention.
func ParseConvention(s string) (ScanConvention, error) {
	switch s {
	case "", config.ConventionDirectory:
		return DirectoryLabel, nil
	case config.ConventionFilename:
		return FilenameEmbedded, nil
	}
	return 0, fmt.Errorf("unknown scan convention %q", s)
}

var (
	lengthMarker     = regexp.MustCompile(`_L([\d.]+)`)
	pathLengthMarker = regexp.MustCompile(`_PL([\d.]+)`)
)

// maxLinkDepth bounds how many symlinked directories are followed in a chain.
const maxLinkDepth = 16

// Scan walks root in fsys and returns the test cases found, ordered by
// configuration then path. Files that cannot be turned into a test case are
// returned in skipped and do not stop the scan. err is set only when the
// root itself cannot be read.
func Scan(fsys fs.FS, root string, conv ScanConvention) (cases []TestCase, skipped []error, err error) {
	if _, err := fs.ReadDir(fsys, root); err != nil {
		return nil, nil, fmt.Errorf("read sequence root %s: %w", root, err)
	}

	s := &scanner{fsys: fsys, root: root, conv: conv}
	if err := s.walk(root, 0); err != nil {
		return nil, nil, err
	}

	sort.Slice(s.cases, func(i, j int) bool {
		if s.cases[i].Config != s.cases[j].Config {
			return s.cases[i].Config < s.cases[j].Config
		}
		return s.cases[i].Path < s.cases[j].Path
	})
	return s.cases, s.skipped, nil
}

type scanner struct {
	fsys    fs.FS
	root    string
	conv    ScanConvention
	cases   []TestCase
	skipped []error
}

func (s *scanner) walk(dir string, depth int) error {
	return fs.WalkDir(s.fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Only the scan root is fatal; a followed link is skipped.
			if p == dir && depth == 0 {
				return err
			}
			s.skipped = append(s.skipped, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			info, err := fs.Stat(s.fsys, p)
			if err != nil {
				s.skipped = append(s.skipped, err)
				return nil
			}
			if info.IsDir() {
				if depth >= maxLinkDepth {
					s.skipped = append(s.skipped, fmt.Errorf("%s: symlink chain too deep", p))
					return nil
				}
				return s.walk(p, depth+1)
			}
		}
		s.add(p)
		return nil
	})
}

func (s *scanner) add(p string) {
	name := path.Base(p)
	if strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".pose") {
		return
	}

	rel := p
	if s.root != "." {
		rel = strings.TrimPrefix(p, s.root+"/")
	}
	tc := NewTestCase(path.Base(path.Dir(p)), rel)

	if s.conv == FilenameEmbedded {
		if err := embeddedGroundTruth(name, &tc); err != nil {
			s.skipped = append(s.skipped, fmt.Errorf("%s: %w", p, err))
			return
		}
	}
	s.cases = append(s.cases, tc)
}

// errNoMarker reports a file name without any ground truth marker.
var errNoMarker = errors.New("no _L or _PL ground truth marker")

func embeddedGroundTruth(name string, tc *TestCase) error {
	l := lengthMarker.FindStringSubmatch(name)
	pl := pathLengthMarker.FindStringSubmatch(name)
	if l == nil && pl == nil {
		return fmt.Errorf("%w: %w", capture.ErrMalformedCapture, errNoMarker)
	}
	if l != nil {
		v, err := parseMarker(l[1])
		if err != nil {
			return fmt.Errorf("%w: bad _L marker %q", capture.ErrMalformedCapture, l[1])
		}
		tc.LengthCM = v
	}
	if pl != nil {
		v, err := parseMarker(pl[1])
		if err != nil {
			return fmt.Errorf("%w: bad _PL marker %q", capture.ErrMalformedCapture, pl[1])
		}
		tc.PathLengthCM = v
	}
	return nil
}

// parseMarker parses a marker value. A trailing dot belongs to the file
// extension, as in seq_PL65.dat.
func parseMarker(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimRight(s, "."), 64)
}
