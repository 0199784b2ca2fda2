package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/canopy/config"
)

// GLIPointRecord is one point's light in gli_points.csv.
type GLIPointRecord struct {
	Step   int     `csv:"step"`
	Name   string  `csv:"name"`
	X      float64 `csv:"x"`
	Y      float64 `csv:"y"`
	Height float64 `csv:"height"`
	GLI    float64 `csv:"gli"`
}

// GLIMapRecord is one grid cell's light in gli_map.csv.
type GLIMapRecord struct {
	Step int     `csv:"step"`
	Map  string  `csv:"map"`
	X    float64 `csv:"x"`
	Y    float64 `csv:"y"`
	GLI  float64 `csv:"gli"`
}

// csvFile is an output file that gets a header on its first write.
type csvFile struct {
	name          string
	f             *os.File
	headerWritten bool
}

func writeRecords[T any](cf *csvFile, records []T) error {
	if len(records) == 0 {
		return nil
	}
	if !cf.headerWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, cf.f); err != nil {
			return fmt.Errorf("writing %s: %w", cf.name, err)
		}
		cf.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, cf.f); err != nil {
		return fmt.Errorf("writing %s: %w", cf.name, err)
	}
	return nil
}

// OutputManager handles structured run output with CSV logging.
type OutputManager struct {
	dir       string
	stand     *csvFile
	perf      *csvFile
	bookmarks *csvFile
	points    *csvFile
	gliMap    *csvFile
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	for _, target := range []struct {
		dst  **csvFile
		name string
	}{
		{&om.stand, "stand.csv"},
		{&om.perf, "perf.csv"},
		{&om.bookmarks, "bookmarks.csv"},
		{&om.points, "gli_points.csv"},
		{&om.gliMap, "gli_map.csv"},
	} {
		f, err := os.Create(filepath.Join(dir, target.name))
		if err != nil {
			om.Close()
			return nil, fmt.Errorf("creating %s: %w", target.name, err)
		}
		*target.dst = &csvFile{name: target.name, f: f}
	}

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteStand writes a stand stats record to stand.csv.
func (om *OutputManager) WriteStand(stats StandStats) error {
	if om == nil {
		return nil
	}
	return writeRecords(om.stand, []StandStats{stats})
}

// WritePerf writes one row per phase to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, step int) error {
	if om == nil {
		return nil
	}
	return writeRecords(om.perf, stats.ToCSV(step))
}

// WriteBookmark writes a bookmark record to bookmarks.csv.
func (om *OutputManager) WriteBookmark(b Bookmark) error {
	if om == nil {
		return nil
	}
	return writeRecords(om.bookmarks, []Bookmark{b})
}

// WriteGLIPoints appends point light records to gli_points.csv.
func (om *OutputManager) WriteGLIPoints(records []GLIPointRecord) error {
	if om == nil {
		return nil
	}
	return writeRecords(om.points, records)
}

// WriteGLIMap appends grid light records to gli_map.csv.
func (om *OutputManager) WriteGLIMap(records []GLIMapRecord) error {
	if om == nil {
		return nil
	}
	return writeRecords(om.gliMap, records)
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, cf := range []*csvFile{om.stand, om.perf, om.bookmarks, om.points, om.gliMap} {
		if cf == nil {
			continue
		}
		if err := cf.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
