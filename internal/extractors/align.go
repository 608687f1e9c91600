package extractors

import "time"

// Align derives the timestamp at which a forecast is expected to materialise.
// A nil lead time yields nil: the row is excluded from reconciliation rather
// than aligned with an implicit zero offset.
func Align(rounded time.Time, leadTimeSeconds *int64) *time.Time {
	if leadTimeSeconds == nil {
		return nil
	}
	forecasted := rounded.Add(time.Duration(*leadTimeSeconds) * time.Second)
	return &forecasted
}
