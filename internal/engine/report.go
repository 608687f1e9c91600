package engine

import (
	"errors"
	"time"

	"github.com/miradorstack/kpi-recon/internal/extractors"
	"github.com/miradorstack/kpi-recon/internal/models"
)

// KPIInput is everything fetched for one KPI.
type KPIInput struct {
	Definition models.KPIDefinition
	Instants   []models.RawInstantResult
	Historical []models.RawHistoricalEntry
}

// Assembler runs the reconciliation stages for a KPI and shapes the result for presentation.
type Assembler struct {
	instants   *extractors.InstantExtractor
	historical *extractors.HistoricalExtractor
	analyzer   *PeakAnalyzer
}

// NewAssembler constructs an Assembler. A nil analyzer uses DefaultPeakConfig.
func NewAssembler(analyzer *PeakAnalyzer) *Assembler {
	if analyzer == nil {
		analyzer = NewPeakAnalyzer(DefaultPeakConfig())
	}
	return &Assembler{
		instants:   extractors.NewInstantExtractor(),
		historical: extractors.NewHistoricalExtractor(),
		analyzer:   analyzer,
	}
}

// BuildKPI enriches, aggregates, reconciles and analyses one KPI. defs supplies
// the display names. Skipped records are returned alongside the report. An
// input without data produces a report with no rows, not an error.
func (a *Assembler) BuildKPI(in KPIInput, defs []models.KPIDefinition) (models.KPIReport, []models.RecordIssue, error) {
	def := in.Definition
	report := models.KPIReport{KPIID: def.KPIID, Name: def.Name}

	instants, issues := a.instants.Extract(def.KPIID, in.Instants, def.LeadTimeSeconds)
	historical, histIssues := a.historical.Extract(def.KPIID, in.Historical)
	issues = append(issues, histIssues...)

	report.Instants = len(instants)
	for _, inst := range instants {
		if inst.ForecastedTimestamp == nil {
			report.ExcludedNoLead++
		}
	}
	report.HistoricalRecords = len(historical)

	aggregates := Aggregate(historical)
	report.Aggregates = len(aggregates)

	rows, err := Reconcile(instants, aggregates, defs)
	if err != nil {
		return report, issues, err
	}
	report.Rows = rows

	analysis := a.analyzer.Analyze(rows)
	report.Overall = analysis.Overall
	report.Morning = peakResult(analysis.Morning, analysis.MorningErr)
	report.Afternoon = peakResult(analysis.Afternoon, analysis.AfternoonErr)
	return report, issues, nil
}

func peakResult(window models.PeakWindow, err error) models.PeakResult {
	if err != nil {
		reason := err.Error()
		if errors.Is(err, ErrEmptyWindow) {
			reason = "no data available"
		}
		return models.PeakResult{NoData: true, Reason: reason}
	}
	return models.PeakResult{Window: &window}
}

// AssembleReport collects per-KPI reports into the run output.
func AssembleReport(runID string, generatedAt time.Time, kpis []models.KPIReport, skipped []models.RecordIssue) models.Report {
	if kpis == nil {
		kpis = []models.KPIReport{}
	}
	return models.Report{
		RunID:       runID,
		GeneratedAt: generatedAt.UTC(),
		KPIs:        kpis,
		Skipped:     skipped,
	}
}

// SelectKPI returns the comparison rows of the KPI with the given display name
// or kpiId. Tables and charts both read through this selection.
func SelectKPI(report models.Report, name string) []models.ComparisonRecord {
	for _, kpi := range report.KPIs {
		if kpi.Name == name || string(kpi.KPIID) == name {
			return kpi.Rows
		}
	}
	return nil
}

// ChartSeries extracts the forecast/actual and delta/error-percentage line pairs for a KPI.
func ChartSeries(report models.Report, name string) models.ChartSeries {
	rows := SelectKPI(report, name)
	series := models.ChartSeries{
		Timestamps: make([]time.Time, 0, len(rows)),
		Forecast:   make([]float64, 0, len(rows)),
		Actual:     make([]float64, 0, len(rows)),
		AbsDelta:   make([]float64, 0, len(rows)),
		ErrorPerc:  make([]*float64, 0, len(rows)),
	}
	for _, row := range rows {
		series.Timestamps = append(series.Timestamps, row.ForecastedTimestamp)
		series.Forecast = append(series.Forecast, row.ForecastValue)
		series.Actual = append(series.Actual, row.ActualValue)
		series.AbsDelta = append(series.AbsDelta, row.AbsDelta)
		if row.ErrorPerc.Defined {
			series.ErrorPerc = append(series.ErrorPerc, floatPtr(row.ErrorPerc.Value))
		} else {
			series.ErrorPerc = append(series.ErrorPerc, nil)
		}
	}
	return series
}
