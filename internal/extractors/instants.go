package extractors

import (
	"github.com/miradorstack/kpi-recon/internal/models"
)

// Issue stages recorded on skipped input.
const (
	StageInstants   = "instants"
	StageHistorical = "historical"
)

// InstantExtractor turns raw 24h results into bucketed, forecast-aligned rows.
type InstantExtractor struct{}

// NewInstantExtractor creates an instant result extractor.
func NewInstantExtractor() *InstantExtractor {
	return &InstantExtractor{}
}

// Extract enriches the raw results of one KPI. Records with malformed
// timestamps or without a forecast value are skipped and reported.
func (e *InstantExtractor) Extract(kpiID models.KPIID, raw []models.RawInstantResult, leadTimeSeconds *int64) ([]models.EnrichedInstant, []models.RecordIssue) {
	if len(raw) == 0 {
		return nil, nil
	}

	rows := make([]models.EnrichedInstant, 0, len(raw))
	var issues []models.RecordIssue
	for _, r := range raw {
		ts, err := ParseTimestamp(r.TimeStamp)
		if err != nil {
			issues = append(issues, models.RecordIssue{KPIID: kpiID, Stage: StageInstants, Reason: err.Error()})
			continue
		}
		if r.OverallResult.Value == nil {
			issues = append(issues, models.RecordIssue{KPIID: kpiID, Stage: StageInstants, Reason: "missing overallResult.value at " + r.TimeStamp})
			continue
		}

		rounded := RoundToBucket(ts)
		row := models.EnrichedInstant{
			KPIID:               kpiID,
			TimeStamp:           ts,
			RoundedTimeStamp:    rounded,
			ForecastedTimestamp: Align(rounded, leadTimeSeconds),
			Value:               *r.OverallResult.Value,
		}
		if r.OverallResult.Progressive != nil {
			row.Progressive = *r.OverallResult.Progressive
		}
		rows = append(rows, row)
	}

	return rows, issues
}
