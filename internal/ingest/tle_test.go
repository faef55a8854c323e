package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/constellation-handover/model"
)

// testTLE builds one checksum-valid 3-line group. Epoch is fixed at day
// 100.5 of 2024, i.e. 2024-04-09 12:00 UTC.
func testTLE(id uint32, name string, inclDeg, raanDeg, anomalyDeg, meanMotion float64) string {
	line1 := fmt.Sprintf("1 %05dU 24001A   24100.50000000  .00000000  00000-0  00000-0 0  999", id)
	line2 := fmt.Sprintf("2 %05d %8.4f %8.4f 0001000 %8.4f %8.4f %11.8f    9",
		id, inclDeg, raanDeg, 0.0, anomalyDeg, meanMotion)
	line1 += fmt.Sprintf("%d", tleChecksum(line1))
	line2 += fmt.Sprintf("%d", tleChecksum(line2))
	return name + "\n" + line1 + "\n" + line2 + "\n"
}

func TestParseTLEParsesGroups(t *testing.T) {
	doc := testTLE(44713, "STARLINK-1007", 53.0, 40.0, 90.0, 15.05) +
		testTLE(47966, "ONEWEB-0012", 87.9, 10.0, 0.0, 13.15)

	sets, err := ParseTLE(context.Background(), strings.NewReader(doc), Options{})
	require.NoError(t, err)
	require.Len(t, sets, 2)

	sl := sets[0]
	assert.Equal(t, uint32(44713), sl.SatelliteID)
	assert.Equal(t, "STARLINK-1007", sl.Name)
	assert.Equal(t, model.ConstellationStarlink, sl.Constellation)
	assert.Equal(t, time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC), sl.Epoch)
	assert.InDelta(t, 53.0, sl.InclinationDeg, 1e-9)
	assert.InDelta(t, 40.0, sl.RAANDeg, 1e-9)
	assert.InDelta(t, 0.0001, sl.Eccentricity, 1e-12)
	assert.InDelta(t, 90.0, sl.MeanAnomalyDeg, 1e-9)
	assert.InDelta(t, 15.05, sl.MeanMotionRevDay, 1e-9)
	assert.Len(t, sl.Line1, 69)
	assert.Len(t, sl.Line2, 69)

	ow := sets[1]
	assert.Equal(t, uint32(47966), ow.SatelliteID)
	assert.Equal(t, model.ConstellationOneWeb, ow.Constellation)
	assert.InDelta(t, 13.15, ow.MeanMotionRevDay, 1e-9)
}

func TestParseTLESkipsChecksumFailure(t *testing.T) {
	good := testTLE(44713, "STARLINK-1007", 53.0, 40.0, 90.0, 15.05)
	bad := testTLE(44714, "STARLINK-1008", 53.0, 40.0, 120.0, 15.05)

	// Flip the final checksum digit of line1.
	lines := strings.Split(strings.TrimSpace(bad), "\n")
	l1 := lines[1]
	flipped := byte('0' + (l1[68]-'0'+1)%10)
	lines[1] = l1[:68] + string(flipped)
	bad = strings.Join(lines, "\n") + "\n"

	sets, err := ParseTLE(context.Background(), strings.NewReader(bad+good), Options{})
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, uint32(44713), sets[0].SatelliteID)
}

func TestParseTLEResyncsAfterGarbage(t *testing.T) {
	doc := "not a name, not a line\n" +
		testTLE(44713, "STARLINK-1007", 53.0, 40.0, 90.0, 15.05)

	sets, err := ParseTLE(context.Background(), strings.NewReader(doc), Options{})
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, "STARLINK-1007", sets[0].Name)
}

func TestParseTLEDefaultConstellation(t *testing.T) {
	doc := testTLE(25544, "ISS (ZARYA)", 51.6, 100.0, 30.0, 15.5)

	sets, err := ParseTLE(context.Background(), strings.NewReader(doc),
		Options{Constellation: "station"})
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, "station", sets[0].Constellation)
	assert.Equal(t, "ISS (ZARYA)", sets[0].Name)
}

func TestParseTLENameMarker(t *testing.T) {
	doc := testTLE(44714, "0 STARLINK-3000", 53.0, 40.0, 90.0, 15.05)

	sets, err := ParseTLE(context.Background(), strings.NewReader(doc), Options{})
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, "STARLINK-3000", sets[0].Name)
	assert.Equal(t, model.ConstellationStarlink, sets[0].Constellation)
}

func TestLoadTLEFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.tle")
	doc := testTLE(44713, "STARLINK-1007", 53.0, 40.0, 90.0, 15.05) +
		testTLE(44714, "STARLINK-1008", 53.0, 40.0, 120.0, 15.05)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	sets, err := LoadTLEFile(context.Background(), path, Options{})
	require.NoError(t, err)
	assert.Len(t, sets, 2)

	_, err = LoadTLEFile(context.Background(), filepath.Join(t.TempDir(), "absent.tle"), Options{})
	require.Error(t, err)
}

func TestChecksumCountsMinusSigns(t *testing.T) {
	assert.Equal(t, 0, tleChecksum(""))
	assert.Equal(t, 6, tleChecksum("123"))
	assert.Equal(t, 8, tleChecksum("123-U 1"))
	assert.Equal(t, 0, tleChecksum("19"))
}
