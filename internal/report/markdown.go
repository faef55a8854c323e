package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/signalsfoundry/constellation-handover/model"
	"github.com/signalsfoundry/constellation-handover/pipeline"
)

// WriteSummaryMarkdown writes a human-readable run summary: pools, coverage
// verdicts, event counts and run statistics.
func WriteSummaryMarkdown(w io.Writer, res *pipeline.RunResult) error {
	var sb strings.Builder

	sb.WriteString("# Handover Pipeline Run\n\n")
	sb.WriteString(fmt.Sprintf("Run: %s\n\n", res.RunID))
	sb.WriteString(fmt.Sprintf("Started: %s | Elapsed: %s\n\n",
		res.Stats.Started.Format(time.RFC3339), res.Stats.Elapsed.Round(time.Millisecond)))

	// Selection pools
	sb.WriteString("## Selection Pools\n\n")
	if len(res.Pools) > 0 {
		sb.WriteString("| Constellation | Members | Target | Round | Accepted Violations |\n")
		sb.WriteString("|---------------|---------|--------|-------|---------------------|\n")
		for _, tag := range sortedPoolTags(res) {
			pool := res.Pools[tag]
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d |\n",
				tag, pool.Size(), pool.TargetCount, pool.Round, len(pool.AcceptedViolations)))
		}
	} else {
		sb.WriteString("No pools selected.\n")
	}
	sb.WriteString("\n")

	// Coverage verdicts
	sb.WriteString("## Coverage\n\n")
	if len(res.Reports) > 0 {
		sb.WriteString("| Constellation | Min | Mean | Max | Below Target | In Band | Verdict |\n")
		sb.WriteString("|---------------|-----|------|-----|--------------|---------|--------|\n")
		for _, tag := range sortedPoolTags(res) {
			rep, ok := res.Reports[tag]
			if !ok {
				continue
			}
			verdict := "FAIL"
			if rep.Passed {
				verdict = "PASS"
			}
			sb.WriteString(fmt.Sprintf("| %s | %d | %.2f | %d | %.1f%% | %.1f%% | %s |\n",
				tag, rep.VisibleMin, rep.VisibleMean, rep.VisibleMax,
				100*rep.BelowTargetFraction, 100*rep.InBandFraction, verdict))
		}
		sb.WriteString("\n")
		for _, tag := range sortedPoolTags(res) {
			rep, ok := res.Reports[tag]
			if !ok || len(rep.Reasons) == 0 {
				continue
			}
			sb.WriteString(fmt.Sprintf("Failing criteria for %s:\n\n", tag))
			for _, reason := range rep.Reasons {
				sb.WriteString(fmt.Sprintf("- %s\n", reason))
			}
			sb.WriteString("\n")
		}
	} else {
		sb.WriteString("No coverage reports produced.\n\n")
	}

	// Events
	sb.WriteString("## Events\n\n")
	if len(res.Events) > 0 {
		counts := map[model.EventKind]int{}
		ongoing := 0
		for _, rec := range res.Events {
			counts[rec.Kind]++
			if rec.Ongoing {
				ongoing++
			}
		}
		sb.WriteString("| Kind | Count |\n")
		sb.WriteString("|------|-------|\n")
		for _, kind := range []model.EventKind{model.EventA4, model.EventA5, model.EventD2} {
			if n := counts[kind]; n > 0 {
				sb.WriteString(fmt.Sprintf("| %s | %d |\n", kind, n))
			}
		}
		sb.WriteString(fmt.Sprintf("\nTotal: %d (%d still open at window end)\n\n",
			len(res.Events), ongoing))
	} else {
		sb.WriteString("No events detected.\n\n")
	}

	// Run statistics
	sb.WriteString("## Run Statistics\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Element sets | %d |\n", res.Stats.Elements))
	sb.WriteString(fmt.Sprintf("| Stale skipped | %d |\n", res.Stats.StaleSkipped))
	sb.WriteString(fmt.Sprintf("| Propagated | %d |\n", res.Stats.Propagated))
	sb.WriteString(fmt.Sprintf("| Propagation failures | %d |\n", res.Stats.PropagationFailures))
	sb.WriteString(fmt.Sprintf("| Candidates scored | %d |\n", res.Stats.Scored))
	sb.WriteString(fmt.Sprintf("| Scoring failures | %d |\n", res.Stats.ScoreFailures))
	sb.WriteString(fmt.Sprintf("| Detection pairs | %d |\n", res.Stats.Pairs))
	sb.WriteString(fmt.Sprintf("| Pair failures | %d |\n", res.Stats.PairFailures))
	sb.WriteString(fmt.Sprintf("| Missing samples | %d |\n", res.Stats.MissingSamples))
	sb.WriteString("\n")

	// Warnings
	if len(res.Warnings) > 0 {
		sb.WriteString("## Warnings\n\n")
		for _, warn := range res.Warnings {
			sb.WriteString(fmt.Sprintf("- %s\n", warn))
		}
		sb.WriteString("\n")
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return fmt.Errorf("report: write summary: %w", err)
	}
	return nil
}
