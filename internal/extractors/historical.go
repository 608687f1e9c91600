package extractors

import (
	"github.com/miradorstack/kpi-recon/internal/models"
)

// HistoricalExtractor expands historical envelopes into one record per result.
type HistoricalExtractor struct{}

// NewHistoricalExtractor creates a historical stats extractor.
func NewHistoricalExtractor() *HistoricalExtractor {
	return &HistoricalExtractor{}
}

// Extract flattens the envelopes of one KPI. Each result inherits the envelope
// timestamp. Envelopes without a timestamp or results list, or with a malformed
// timestamp, are skipped and reported. Absent numeric fields count as zero.
func (e *HistoricalExtractor) Extract(kpiID models.KPIID, entries []models.RawHistoricalEntry) ([]models.HistoricalResult, []models.RecordIssue) {
	if len(entries) == 0 {
		return nil, nil
	}

	var (
		records []models.HistoricalResult
		issues  []models.RecordIssue
	)
	for _, entry := range entries {
		if entry.TimeStamp == nil || entry.Results == nil {
			issues = append(issues, models.RecordIssue{KPIID: kpiID, Stage: StageHistorical, Reason: "envelope without timeStamp or results"})
			continue
		}
		ts, err := ParseTimestamp(*entry.TimeStamp)
		if err != nil {
			issues = append(issues, models.RecordIssue{KPIID: kpiID, Stage: StageHistorical, Reason: err.Error()})
			continue
		}
		rounded := RoundToBucket(ts)
		for _, r := range entry.Results {
			rec := models.HistoricalResult{
				KPIID:            kpiID,
				TimeStamp:        ts,
				RoundedTimeStamp: rounded,
				Value:            valueOrZero(r.Value),
				DefaultValue:     valueOrZero(r.DefaultValue),
				AverageValue:     valueOrZero(r.AverageValue),
				UnusualValue:     valueOrZero(r.UnusualValue),
			}
			if r.Progressive != nil {
				rec.Progressive = *r.Progressive
			}
			records = append(records, rec)
		}
	}

	return records, issues
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
