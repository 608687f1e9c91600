package engine

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/miradorstack/kpi-recon/internal/models"
)

// ErrDuplicateAggregate signals that two aggregates share a join key, which
// Aggregate never produces.
var ErrDuplicateAggregate = errors.New("duplicate aggregate join key")

type joinKey struct {
	kpiID       models.KPIID
	at          int64
	progressive int64
}

// Reconcile inner-joins forecasts to recorded aggregates on
// (kpiId, ForecastedTimestamp = RoundedTimeStamp, progressive) and attaches the
// error metrics and display name. Instants without a forecast timestamp and
// rows without a counterpart are dropped. Output is sorted on
// (forecastedTimestamp, kpiId, progressive, forecastValue, timeStamp) and does
// not depend on input order.
func Reconcile(instants []models.EnrichedInstant, aggregates []models.AggregatedHistoricalRecord, defs []models.KPIDefinition) ([]models.ComparisonRecord, error) {
	actuals := make(map[joinKey]models.AggregatedHistoricalRecord, len(aggregates))
	for _, agg := range aggregates {
		key := joinKey{kpiID: agg.KPIID, at: agg.RoundedTimeStamp.UnixNano(), progressive: agg.Progressive}
		if _, exists := actuals[key]; exists {
			return nil, fmt.Errorf("%w: kpi %s at %s progressive %d", ErrDuplicateAggregate, agg.KPIID, agg.RoundedTimeStamp.Format(time.RFC3339), agg.Progressive)
		}
		actuals[key] = agg
	}

	names := make(map[models.KPIID]string, len(defs))
	for _, def := range defs {
		names[def.KPIID] = def.Name
	}

	records := make([]models.ComparisonRecord, 0)
	for _, inst := range instants {
		if inst.ForecastedTimestamp == nil {
			continue
		}
		key := joinKey{kpiID: inst.KPIID, at: inst.ForecastedTimestamp.UnixNano(), progressive: inst.Progressive}
		actual, ok := actuals[key]
		if !ok {
			continue
		}

		rec := models.ComparisonRecord{
			KPIID:               inst.KPIID,
			TimeStamp:           inst.TimeStamp,
			ForecastedTimestamp: *inst.ForecastedTimestamp,
			RecordedTimeStamp:   actual.TimeStamp,
			Progressive:         inst.Progressive,
			ForecastValue:       inst.Value,
			ActualValue:         actual.Value,
			DefaultValue:        actual.DefaultValue,
			AverageValue:        actual.AverageValue,
			UnusualValue:        actual.UnusualValue,
			AbsDelta:            math.Abs(inst.Value - actual.Value),
			ErrorPerc:           errorPercentage(inst.Value, actual.Value),
		}
		if name, ok := names[inst.KPIID]; ok {
			rec.Name = &name
		}
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.ForecastedTimestamp.Equal(b.ForecastedTimestamp) {
			return a.ForecastedTimestamp.Before(b.ForecastedTimestamp)
		}
		if a.KPIID != b.KPIID {
			return a.KPIID < b.KPIID
		}
		if a.Progressive != b.Progressive {
			return a.Progressive < b.Progressive
		}
		if a.ForecastValue != b.ForecastValue {
			return a.ForecastValue < b.ForecastValue
		}
		return a.TimeStamp.Before(b.TimeStamp)
	})
	return records, nil
}

// errorPercentage is undefined when actual is 0 or the ratio is not finite.
func errorPercentage(forecast, actual float64) models.Percentage {
	if actual == 0 {
		return models.Percentage{}
	}
	v := math.Abs(forecast-actual) / actual * 100
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return models.Percentage{}
	}
	return models.DefinedPercentage(v)
}
