package ingest

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/signalsfoundry/constellation-handover/model"
)

// Internal JSON shapes, unexported so the wire format can evolve.
type elementCatalogJSON struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Elements    []elementSetJSON `json:"elements"`
}

type elementSetJSON struct {
	SatelliteID   uint32 `json:"satellite_id"`
	Name          string `json:"name"`
	Constellation string `json:"constellation"`
	Line1         string `json:"line1"`
	Line2         string `json:"line2"`
}

// DecodeElementsJSON reads the catalog dump shape written by upstream
// tooling. Unlike the TLE path it fails on the first bad element: a dump
// with broken lines means the producer is broken, not the sky.
func DecodeElementsJSON(r io.Reader, defaultTag string) ([]model.OrbitalElementSet, error) {
	var payload elementCatalogJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("ingest: decode elements: %w", err)
	}

	sets := make([]model.OrbitalElementSet, 0, len(payload.Elements))
	for _, e := range payload.Elements {
		tag := e.Constellation
		if tag == "" {
			tag = defaultTag
		}
		set, err := elementSetFromLines(e.Name, e.Line1, e.Line2, tag)
		if err != nil {
			return nil, fmt.Errorf("ingest: element %d: %w", e.SatelliteID, err)
		}
		if e.SatelliteID != 0 && e.SatelliteID != set.SatelliteID {
			return nil, fmt.Errorf("ingest: element %d: lines carry catalog number %d",
				e.SatelliteID, set.SatelliteID)
		}
		if e.Name != "" {
			set.Name = e.Name
		}
		if e.Constellation != "" {
			set.Constellation = e.Constellation
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// LoadElementsJSON decodes the JSON catalog dump at path.
func LoadElementsJSON(path, defaultTag string) ([]model.OrbitalElementSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()
	return DecodeElementsJSON(f, defaultTag)
}
