package extractors

import (
	"fmt"
	"time"

	"github.com/miradorstack/kpi-recon/internal/utils"
)

// BucketMinutes is the width of a reconciliation bucket.
const BucketMinutes = 5

// ParseError reports a timestamp that is not a well-formed ISO-8601 instant.
type ParseError struct {
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed timestamp %q: %v", e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ParseTimestamp parses an upstream timestamp. 'Z' normalises to UTC.
func ParseTimestamp(value string) (time.Time, error) {
	t, err := utils.ParseRFC3339(value)
	if err != nil {
		return time.Time{}, &ParseError{Value: value, Err: err}
	}
	return t, nil
}

// RoundToBucket floors the minute to a multiple of BucketMinutes and zeroes
// seconds. The hour and day never change.
func RoundToBucket(t time.Time) time.Time {
	minute := (t.Minute() / BucketMinutes) * BucketMinutes
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), minute, 0, 0, t.Location())
}

// ParseBucket parses and buckets a timestamp in one step.
func ParseBucket(value string) (time.Time, error) {
	t, err := ParseTimestamp(value)
	if err != nil {
		return time.Time{}, err
	}
	return RoundToBucket(t), nil
}
