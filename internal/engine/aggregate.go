package engine

import (
	"time"

	"github.com/miradorstack/kpi-recon/internal/models"
)

type bucketKey struct {
	kpiID  models.KPIID
	bucket int64
}

func newBucketKey(kpiID models.KPIID, bucket time.Time) bucketKey {
	return bucketKey{kpiID: kpiID, bucket: bucket.UnixNano()}
}

// Aggregate collapses historical records sharing (KPIID, RoundedTimeStamp).
// Value-like fields are summed, progressive and timestamp take the maximum.
// Output follows first-seen key order.
func Aggregate(records []models.HistoricalResult) []models.AggregatedHistoricalRecord {
	if len(records) == 0 {
		return []models.AggregatedHistoricalRecord{}
	}

	index := make(map[bucketKey]int, len(records))
	out := make([]models.AggregatedHistoricalRecord, 0, len(records))
	for _, rec := range records {
		key := newBucketKey(rec.KPIID, rec.RoundedTimeStamp)
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, models.AggregatedHistoricalRecord{
				KPIID:            rec.KPIID,
				RoundedTimeStamp: rec.RoundedTimeStamp,
				TimeStamp:        rec.TimeStamp,
				Value:            rec.Value,
				DefaultValue:     rec.DefaultValue,
				AverageValue:     rec.AverageValue,
				UnusualValue:     rec.UnusualValue,
				Progressive:      rec.Progressive,
				Contributors:     1,
			})
			continue
		}

		agg := &out[i]
		agg.Value += rec.Value
		agg.DefaultValue += rec.DefaultValue
		agg.AverageValue += rec.AverageValue
		agg.UnusualValue += rec.UnusualValue
		if rec.Progressive > agg.Progressive {
			agg.Progressive = rec.Progressive
		}
		if rec.TimeStamp.After(agg.TimeStamp) {
			agg.TimeStamp = rec.TimeStamp
		}
		agg.Contributors++
	}
	return out
}
