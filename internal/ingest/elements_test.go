package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/constellation-handover/model"
)

// groupLines splits a testTLE document into its name/line1/line2 parts.
func groupLines(t *testing.T, doc string) (string, string, string) {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(doc), "\n")
	require.Len(t, lines, 3)
	return lines[0], lines[1], lines[2]
}

func TestDecodeElementsJSON(t *testing.T) {
	_, l1a, l2a := groupLines(t, testTLE(44713, "STARLINK-1007", 53.0, 40.0, 90.0, 15.05))
	_, l1b, l2b := groupLines(t, testTLE(47966, "ONEWEB-0012", 87.9, 10.0, 0.0, 13.15))

	doc := fmt.Sprintf(`{
  "generated_at": "2024-04-09T00:00:00Z",
  "elements": [
    {"satellite_id": 44713, "name": "STARLINK-1007", "line1": %q, "line2": %q},
    {"name": "ONEWEB-0012", "constellation": "oneweb-demo", "line1": %q, "line2": %q}
  ]
}`, l1a, l2a, l1b, l2b)

	sets, err := DecodeElementsJSON(strings.NewReader(doc), "")
	require.NoError(t, err)
	require.Len(t, sets, 2)

	assert.Equal(t, uint32(44713), sets[0].SatelliteID)
	assert.Equal(t, model.ConstellationStarlink, sets[0].Constellation)
	assert.InDelta(t, 15.05, sets[0].MeanMotionRevDay, 1e-9)

	// An explicit constellation outranks name inference.
	assert.Equal(t, uint32(47966), sets[1].SatelliteID)
	assert.Equal(t, "oneweb-demo", sets[1].Constellation)
}

func TestDecodeElementsJSONRejectsBadLines(t *testing.T) {
	_, l1, l2 := groupLines(t, testTLE(44713, "STARLINK-1007", 53.0, 40.0, 90.0, 15.05))
	corrupted := l1[:68] + string(byte('0'+(l1[68]-'0'+1)%10))

	doc := fmt.Sprintf(`{"elements": [{"satellite_id": 44713, "line1": %q, "line2": %q}]}`,
		corrupted, l2)

	_, err := DecodeElementsJSON(strings.NewReader(doc), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "element 44713")
}

func TestDecodeElementsJSONRejectsIDMismatch(t *testing.T) {
	_, l1, l2 := groupLines(t, testTLE(44713, "STARLINK-1007", 53.0, 40.0, 90.0, 15.05))

	doc := fmt.Sprintf(`{"elements": [{"satellite_id": 99999, "line1": %q, "line2": %q}]}`, l1, l2)

	_, err := DecodeElementsJSON(strings.NewReader(doc), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog number")
}

func TestDecodeElementsJSONRejectsGarbage(t *testing.T) {
	_, err := DecodeElementsJSON(strings.NewReader("{"), "")
	require.Error(t, err)
}

func TestLoadElementsJSON(t *testing.T) {
	_, l1, l2 := groupLines(t, testTLE(44713, "STARLINK-1007", 53.0, 40.0, 90.0, 15.05))
	path := filepath.Join(t.TempDir(), "elements.json")
	doc := fmt.Sprintf(`{"elements": [{"line1": %q, "line2": %q}]}`, l1, l2)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	sets, err := LoadElementsJSON(path, "fallback")
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, uint32(44713), sets[0].SatelliteID)

	_, err = LoadElementsJSON(filepath.Join(t.TempDir(), "absent.json"), "")
	require.Error(t, err)
}
