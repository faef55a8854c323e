package orbit

import (
	"fmt"
	"time"
)

// StaleElementsError reports an element set too old (or too far in the
// future) to trust for propagation at the requested time.
type StaleElementsError struct {
	SatelliteID uint32
	Epoch       time.Time
	Age         time.Duration
	MaxAge      time.Duration
}

func (e *StaleElementsError) Error() string {
	return fmt.Sprintf("stale elements for satellite %d: epoch %s is %s old (max %s)",
		e.SatelliteID, e.Epoch.Format(time.RFC3339), e.Age, e.MaxAge)
}

// PropagationError reports an SGP4 propagation that produced an unusable
// result (parse failure, NaN/Inf output, or an implausible orbit radius).
type PropagationError struct {
	SatelliteID uint32
	At          time.Time
	Reason      string
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("propagation failed for satellite %d at %s: %s",
		e.SatelliteID, e.At.Format(time.RFC3339), e.Reason)
}
