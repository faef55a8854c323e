package detection

import (
	"sort"
	"time"

	"github.com/signalsfoundry/constellation-handover/model"
)

// DefaultTimelineBucket is the report granularity when none is given.
const DefaultTimelineBucket = time.Minute

// TimelineBucket aggregates how many events of each kind started within one
// bucket of the timeline.
type TimelineBucket struct {
	Start  time.Time
	Counts map[model.EventKind]int
	Total  int
}

// Summarize groups records into fixed buckets keyed by start time, ordered
// chronologically. A non-positive bucket falls back to the default.
func Summarize(records []model.HandoverEventRecord, bucket time.Duration) []TimelineBucket {
	if bucket <= 0 {
		bucket = DefaultTimelineBucket
	}
	if len(records) == 0 {
		return nil
	}

	byStart := map[time.Time]*TimelineBucket{}
	for _, rec := range records {
		start := rec.Start.Truncate(bucket)
		b, ok := byStart[start]
		if !ok {
			b = &TimelineBucket{Start: start, Counts: map[model.EventKind]int{}}
			byStart[start] = b
		}
		b.Counts[rec.Kind]++
		b.Total++
	}

	out := make([]TimelineBucket, 0, len(byStart))
	for _, b := range byStart {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
