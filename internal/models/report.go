package models

import "time"

// Credentials authenticate a single upstream request. They are passed per call.
type Credentials struct {
	APIKey string
}

// RunRequest selects what a reconciliation run should cover.
type RunRequest struct {
	// KPIs filters by kpiId or name; empty means every defined KPI.
	KPIs []string
}

// RecordIssue describes an input record that was skipped.
type RecordIssue struct {
	KPIID  KPIID  `json:"kpiId"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// WindowStats are arithmetic means over a set of comparison records.
// AvgError only covers records with a defined error percentage.
type WindowStats struct {
	Count         int      `json:"count"`
	AvgForecasted *float64 `json:"avgForecasted"`
	AvgActual     *float64 `json:"avgActual"`
	AvgError      *float64 `json:"avgError"`
	ErrorSamples  int      `json:"errorSamples"`
}

// PeakWindow is the ±radius window around a half-day peak.
type PeakWindow struct {
	Label         string      `json:"label"`
	PeakTimestamp time.Time   `json:"peakTimestamp"`
	PeakValue     float64     `json:"peakValue"`
	WindowStart   time.Time   `json:"windowStart"`
	WindowEnd     time.Time   `json:"windowEnd"`
	Range         string      `json:"range"`
	Stats         WindowStats `json:"stats"`
}

// PeakResult is either a window or an explicit no-data condition.
type PeakResult struct {
	Window *PeakWindow `json:"window,omitempty"`
	NoData bool        `json:"noData"`
	Reason string      `json:"reason,omitempty"`
}

// KPIReport groups the comparison table and metrics for one KPI.
type KPIReport struct {
	KPIID     KPIID              `json:"kpiId"`
	Name      string             `json:"name"`
	Rows      []ComparisonRecord `json:"rows"`
	Overall   WindowStats        `json:"overall"`
	Morning   PeakResult         `json:"morningPeak"`
	Afternoon PeakResult         `json:"afternoonPeak"`
	// Counters describe how many rows each stage saw.
	Instants          int    `json:"instants"`
	ExcludedNoLead    int    `json:"excludedNoLeadTime"`
	HistoricalRecords int    `json:"historicalRecords"`
	Aggregates        int    `json:"aggregates"`
	Error             string `json:"error,omitempty"`
}

// Report is the output of one reconciliation run.
type Report struct {
	RunID       string        `json:"runId"`
	GeneratedAt time.Time     `json:"generatedAt"`
	KPIs        []KPIReport   `json:"kpis"`
	Skipped     []RecordIssue `json:"skipped,omitempty"`
}

// ChartSeries holds the two line pairs drawn for a KPI.
type ChartSeries struct {
	Timestamps []time.Time `json:"timestamps"`
	Forecast   []float64   `json:"forecast"`
	Actual     []float64   `json:"actual"`
	AbsDelta   []float64   `json:"absDelta"`
	// ErrorPerc entries are nil where the percentage is undefined.
	ErrorPerc []*float64 `json:"errorPerc"`
}
