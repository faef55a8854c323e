// Package ingest reads orbital element sets from the formats upstream
// tooling produces: 3-line-group TLE text and a JSON catalog dump. It is
// used by the binaries and tests; the pipeline itself only sees the catalog.
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/constellation-handover/internal/logging"
	"github.com/signalsfoundry/constellation-handover/model"
)

// Options tunes TLE parsing.
type Options struct {
	// Constellation is the tag assigned when the satellite name does not
	// identify one.
	Constellation string

	// Log receives a warning per skipped entry. Nil discards them.
	Log logging.Logger
}

// ParseTLE reads 3-line NORAD element groups from r. Malformed or
// checksum-failing entries are skipped with a warning; only read failures
// are errors.
func ParseTLE(ctx context.Context, r io.Reader, opts Options) ([]model.OrbitalElementSet, error) {
	log := opts.Log
	if log == nil {
		log = logging.Noop()
	}

	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ingest: reading TLE data: %w", err)
	}

	var sets []model.OrbitalElementSet
	for i := 0; i+2 < len(lines); {
		name := lines[i]
		line1 := lines[i+1]
		line2 := lines[i+2]

		if !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
			log.Warn(ctx, "skipping malformed TLE group",
				logging.Int("line_index", i), logging.String("name", name))
			i++
			continue
		}

		set, err := elementSetFromLines(name, line1, line2, opts.Constellation)
		if err != nil {
			log.Warn(ctx, "skipping TLE entry",
				logging.String("name", name), logging.Any("error", err))
			i += 3
			continue
		}

		sets = append(sets, set)
		i += 3
	}

	return sets, nil
}

// LoadTLEFile parses the TLE file at path.
func LoadTLEFile(ctx context.Context, path string, opts Options) ([]model.OrbitalElementSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()
	return ParseTLE(ctx, f, opts)
}

// elementSetFromLines builds an element set from one raw TLE group,
// validating line shape and checksums and decoding the Keplerian summary.
func elementSetFromLines(name, line1, line2, defaultTag string) (model.OrbitalElementSet, error) {
	var zero model.OrbitalElementSet

	if len(line1) != 69 || len(line2) != 69 {
		return zero, fmt.Errorf("line lengths %d/%d, expected 69", len(line1), len(line2))
	}
	for _, line := range []string{line1, line2} {
		want := int(line[68] - '0')
		if got := tleChecksum(line[:68]); got != want {
			return zero, fmt.Errorf("checksum %d, line carries %d", got, want)
		}
	}

	id, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil || id <= 0 {
		return zero, fmt.Errorf("invalid catalog number %q", strings.TrimSpace(line1[2:7]))
	}

	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return zero, fmt.Errorf("invalid epoch: %w", err)
	}

	incl, err := line2Field(line2, 8, 16)
	if err != nil {
		return zero, fmt.Errorf("invalid inclination: %w", err)
	}
	raan, err := line2Field(line2, 17, 25)
	if err != nil {
		return zero, fmt.Errorf("invalid RAAN: %w", err)
	}
	// Eccentricity carries an implied leading decimal point.
	ecc, err := strconv.ParseFloat("0."+strings.TrimSpace(line2[26:33]), 64)
	if err != nil {
		return zero, fmt.Errorf("invalid eccentricity: %w", err)
	}
	argp, err := line2Field(line2, 34, 42)
	if err != nil {
		return zero, fmt.Errorf("invalid argument of perigee: %w", err)
	}
	anomaly, err := line2Field(line2, 43, 51)
	if err != nil {
		return zero, fmt.Errorf("invalid mean anomaly: %w", err)
	}
	motion, err := line2Field(line2, 52, 63)
	if err != nil {
		return zero, fmt.Errorf("invalid mean motion: %w", err)
	}

	name = cleanName(name)
	return model.OrbitalElementSet{
		SatelliteID:      uint32(id),
		Name:             name,
		Constellation:    inferConstellation(name, defaultTag),
		Epoch:            epoch,
		Line1:            line1,
		Line2:            line2,
		InclinationDeg:   incl,
		RAANDeg:          raan,
		Eccentricity:     ecc,
		ArgPerigeeDeg:    argp,
		MeanAnomalyDeg:   anomaly,
		MeanMotionRevDay: motion,
	}, nil
}

func line2Field(line string, lo, hi int) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(line[lo:hi]), 64)
}

// cleanName drops the "0 " marker some 3LE catalogs put on name lines.
func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "0 ") {
		name = strings.TrimSpace(name[2:])
	}
	return name
}

// inferConstellation maps well-known name prefixes to constellation tags.
func inferConstellation(name, defaultTag string) string {
	upper := strings.ToUpper(name)
	switch {
	case strings.HasPrefix(upper, "STARLINK"):
		return model.ConstellationStarlink
	case strings.HasPrefix(upper, "ONEWEB"):
		return model.ConstellationOneWeb
	default:
		return defaultTag
	}
}

// tleChecksum is the NORAD mod-10 sum: digits count themselves, minus signs
// count one.
func tleChecksum(s string) int {
	sum := 0
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// parseEpoch converts a TLE epoch in YYDDD.DDDDDDDD form. Years 00-56 map
// to the 2000s, 57-99 to the 1900s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch %q too short", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("epoch day %q: %w", s[2:], err)
	}

	// Day 1.0 is Jan 1 00:00 UTC.
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}
