package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/signalsfoundry/constellation-handover/pipeline"
)

// WriteCoverageCSV writes one row per (sample, constellation) with the
// number of pool members visible at that sample, recomputed from the
// full-window table so rows line up with the states artifact.
func WriteCoverageCSV(w io.Writer, res *pipeline.RunResult) error {
	var sb strings.Builder
	sb.WriteString("at,constellation,visible_members,pool_size\n")

	if res.Table != nil {
		grid := res.Table.Grid()
		for _, tag := range sortedPoolTags(res) {
			pool := res.Pools[tag]
			ids := pool.MemberIDs()
			for i := 0; i < grid.Count; i++ {
				visible := 0
				for _, id := range ids {
					if st, ok := res.Table.Sample(id, i); ok && st.Visible {
						visible++
					}
				}
				sb.WriteString(fmt.Sprintf("%s,%s,%d,%d\n",
					grid.At(i).Format(time.RFC3339), tag, visible, len(ids)))
			}
		}
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return fmt.Errorf("report: write coverage csv: %w", err)
	}
	return nil
}

func sortedPoolTags(res *pipeline.RunResult) []string {
	tags := make([]string, 0, len(res.Pools))
	for tag := range res.Pools {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
