// Package report renders pipeline run results into the artifact formats the
// binaries write: states JSON, events JSON, coverage CSV and a Markdown
// summary. Writers take io.Writer; WriteAll places the full set in a
// directory.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/signalsfoundry/constellation-handover/model"
	"github.com/signalsfoundry/constellation-handover/pipeline"
)

// Artifact JSON shapes, unexported so the wire format can evolve.
type statesDocJSON struct {
	RunID      string          `json:"run_id"`
	Start      time.Time       `json:"start"`
	CadenceS   float64         `json:"cadence_s"`
	Samples    int             `json:"samples"`
	Satellites []satStatesJSON `json:"satellites"`
}

type satStatesJSON struct {
	SatelliteID uint32      `json:"satellite_id"`
	States      []stateJSON `json:"states"`
}

type stateJSON struct {
	At             time.Time `json:"at"`
	ElevationDeg   float64   `json:"elevation_deg"`
	AzimuthDeg     float64   `json:"azimuth_deg"`
	RangeKm        float64   `json:"range_km"`
	RSRPDBm        float64   `json:"rsrp_dbm"`
	DopplerShiftHz float64   `json:"doppler_shift_hz"`
	MRLDistanceM   float64   `json:"mrl_distance_m"`
	Visible        bool      `json:"visible"`
	Stale          bool      `json:"stale,omitempty"`
}

type eventsDocJSON struct {
	RunID    string       `json:"run_id"`
	Events   []eventJSON  `json:"events"`
	Timeline []bucketJSON `json:"timeline"`
}

type eventJSON struct {
	ID          string       `json:"id"`
	Kind        string       `json:"kind"`
	ServingID   uint32       `json:"serving_id"`
	CandidateID uint32       `json:"candidate_id"`
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
	Ongoing     bool         `json:"ongoing,omitempty"`
	Entry       metricsJSON  `json:"entry"`
	Exit        *metricsJSON `json:"exit,omitempty"`
}

type metricsJSON struct {
	At                time.Time `json:"at"`
	ServingRSRPDBm    float64   `json:"serving_rsrp_dbm"`
	CandidateRSRPDBm  float64   `json:"candidate_rsrp_dbm"`
	ServingMRLDistM   float64   `json:"serving_mrl_dist_m"`
	CandidateMRLDistM float64   `json:"candidate_mrl_dist_m"`
}

type bucketJSON struct {
	Start  time.Time      `json:"start"`
	Total  int            `json:"total"`
	Counts map[string]int `json:"counts"`
}

// WriteStatesJSON writes the full-window propagation series for every pool
// member.
func WriteStatesJSON(w io.Writer, res *pipeline.RunResult) error {
	doc := statesDocJSON{RunID: res.RunID}
	if res.Table != nil {
		grid := res.Table.Grid()
		doc.Start = grid.Start
		doc.CadenceS = grid.Cadence.Seconds()
		doc.Samples = grid.Count

		for _, id := range res.Table.Satellites() {
			series := res.Table.Series(id)
			states := make([]stateJSON, 0, len(series))
			for _, st := range series {
				states = append(states, stateJSON{
					At:             st.At,
					ElevationDeg:   st.ElevationDeg,
					AzimuthDeg:     st.AzimuthDeg,
					RangeKm:        st.RangeKm,
					RSRPDBm:        st.RSRPDBm,
					DopplerShiftHz: st.DopplerShiftHz,
					MRLDistanceM:   st.MRLDistanceM,
					Visible:        st.Visible,
					Stale:          st.Stale,
				})
			}
			doc.Satellites = append(doc.Satellites, satStatesJSON{
				SatelliteID: id,
				States:      states,
			})
		}
	}
	return encodeJSON(w, "states", doc)
}

// WriteEventsJSON writes the detected event records and their timeline.
func WriteEventsJSON(w io.Writer, res *pipeline.RunResult) error {
	doc := eventsDocJSON{
		RunID:  res.RunID,
		Events: make([]eventJSON, 0, len(res.Events)),
	}
	for _, rec := range res.Events {
		e := eventJSON{
			ID:          rec.ID,
			Kind:        rec.Kind.String(),
			ServingID:   rec.ServingID,
			CandidateID: rec.CandidateID,
			Start:       rec.Start,
			End:         rec.End,
			Ongoing:     rec.Ongoing,
			Entry:       metricsFrom(rec.Entry),
		}
		if !rec.End.IsZero() {
			exit := metricsFrom(rec.Exit)
			e.Exit = &exit
		}
		doc.Events = append(doc.Events, e)
	}
	for _, b := range res.Timeline {
		counts := make(map[string]int, len(b.Counts))
		for kind, n := range b.Counts {
			counts[kind.String()] = n
		}
		doc.Timeline = append(doc.Timeline, bucketJSON{
			Start:  b.Start,
			Total:  b.Total,
			Counts: counts,
		})
	}
	return encodeJSON(w, "events", doc)
}

func metricsFrom(m model.EventMetrics) metricsJSON {
	return metricsJSON{
		At:                m.At,
		ServingRSRPDBm:    m.ServingRSRPDBm,
		CandidateRSRPDBm:  m.CandidateRSRPDBm,
		ServingMRLDistM:   m.ServingMRLDistM,
		CandidateMRLDistM: m.CandidateMRLDistM,
	}
}

func encodeJSON(w io.Writer, what string, doc any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("report: encode %s: %w", what, err)
	}
	return nil
}
