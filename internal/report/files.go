package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/signalsfoundry/constellation-handover/pipeline"
)

// Artifact file names written by WriteAll.
const (
	StatesFile   = "states.json"
	EventsFile   = "events.json"
	CoverageFile = "coverage.csv"
	SummaryFile  = "summary.md"
)

// WriteAll writes the full artifact set under dir, creating it if needed,
// and returns the written paths.
func WriteAll(dir string, res *pipeline.RunResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create %s: %w", dir, err)
	}

	writers := []struct {
		name  string
		write func(io.Writer, *pipeline.RunResult) error
	}{
		{StatesFile, WriteStatesJSON},
		{EventsFile, WriteEventsJSON},
		{CoverageFile, WriteCoverageCSV},
		{SummaryFile, WriteSummaryMarkdown},
	}

	paths := make([]string, 0, len(writers))
	for _, art := range writers {
		path := filepath.Join(dir, art.name)
		if err := writeFile(path, res, art.write); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, res *pipeline.RunResult, write func(io.Writer, *pipeline.RunResult) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create %s: %w", path, err)
	}
	if err := write(f, res); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("report: close %s: %w", path, err)
	}
	return nil
}
