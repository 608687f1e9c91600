package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/miradorstack/kpi-recon/internal/models"
	"github.com/miradorstack/kpi-recon/internal/utils"
)

// ErrEmptyWindow reports a half-day window without any comparison records.
var ErrEmptyWindow = errors.New("no data in window")

// EmptyWindowError names the window that had no records.
type EmptyWindowError struct {
	Label string
}

func (e *EmptyWindowError) Error() string {
	return fmt.Sprintf("%s: %v", e.Label, ErrEmptyWindow)
}

func (e *EmptyWindowError) Unwrap() error {
	return ErrEmptyWindow
}

// HalfDay is a [Start, End) time-of-day range.
type HalfDay struct {
	Label string
	Start time.Duration
	End   time.Duration
}

func (h HalfDay) contains(t time.Time) bool {
	clock := utils.ClockOffset(t)
	return clock >= h.Start && clock < h.End
}

// PeakConfig shapes the peak analysis.
type PeakConfig struct {
	Morning   HalfDay
	Afternoon HalfDay
	// Radius is applied on both sides of the peak, bounds inclusive.
	Radius time.Duration
}

// DefaultPeakConfig uses 06:00-12:00 and 12:00-20:00 with a one hour radius.
func DefaultPeakConfig() PeakConfig {
	return PeakConfig{
		Morning:   HalfDay{Label: "morning", Start: 6 * time.Hour, End: 12 * time.Hour},
		Afternoon: HalfDay{Label: "afternoon", Start: 12 * time.Hour, End: 20 * time.Hour},
		Radius:    time.Hour,
	}
}

// PeakAnalysis is the Overall/MorningPeak/AfternoonPeak triple for one KPI.
type PeakAnalysis struct {
	Overall      models.WindowStats
	Morning      models.PeakWindow
	MorningErr   error
	Afternoon    models.PeakWindow
	AfternoonErr error
}

// PeakAnalyzer locates half-day peaks in a KPI's comparison records.
type PeakAnalyzer struct {
	cfg PeakConfig
}

// NewPeakAnalyzer constructs an analyzer; a zero config falls back to the defaults.
func NewPeakAnalyzer(cfg PeakConfig) *PeakAnalyzer {
	def := DefaultPeakConfig()
	if cfg.Morning.End <= cfg.Morning.Start {
		cfg.Morning = def.Morning
	}
	if cfg.Afternoon.End <= cfg.Afternoon.Start {
		cfg.Afternoon = def.Afternoon
	}
	if cfg.Radius <= 0 {
		cfg.Radius = def.Radius
	}
	if cfg.Morning.Label == "" {
		cfg.Morning.Label = def.Morning.Label
	}
	if cfg.Afternoon.Label == "" {
		cfg.Afternoon.Label = def.Afternoon.Label
	}
	return &PeakAnalyzer{cfg: cfg}
}

// Analyze computes overall statistics and both half-day peak windows. Rows
// must belong to a single KPI. An empty half-day yields an *EmptyWindowError.
func (a *PeakAnalyzer) Analyze(rows []models.ComparisonRecord) PeakAnalysis {
	ordered := make([]models.ComparisonRecord, len(rows))
	copy(ordered, rows)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ForecastedTimestamp.Before(ordered[j].ForecastedTimestamp)
	})

	result := PeakAnalysis{Overall: Summarize(ordered)}
	result.Morning, result.MorningErr = a.peak(ordered, a.cfg.Morning)
	result.Afternoon, result.AfternoonErr = a.peak(ordered, a.cfg.Afternoon)
	return result
}

func (a *PeakAnalyzer) peak(ordered []models.ComparisonRecord, half HalfDay) (models.PeakWindow, error) {
	best := -1
	for i, row := range ordered {
		if !half.contains(row.ForecastedTimestamp) {
			continue
		}
		if best < 0 || row.ActualValue > ordered[best].ActualValue {
			best = i
		}
	}
	if best < 0 {
		return models.PeakWindow{}, &EmptyWindowError{Label: half.Label}
	}

	peak := ordered[best]
	start := peak.ForecastedTimestamp.Add(-a.cfg.Radius)
	end := peak.ForecastedTimestamp.Add(a.cfg.Radius)

	inWindow := make([]models.ComparisonRecord, 0)
	for _, row := range ordered {
		ts := row.ForecastedTimestamp
		if ts.Before(start) || ts.After(end) {
			continue
		}
		inWindow = append(inWindow, row)
	}

	return models.PeakWindow{
		Label:         half.Label,
		PeakTimestamp: peak.ForecastedTimestamp,
		PeakValue:     peak.ActualValue,
		WindowStart:   start,
		WindowEnd:     end,
		Range:         utils.FormatClockRange(start, end),
		Stats:         Summarize(inWindow),
	}, nil
}

// Summarize averages forecast, actual and error percentage. Undefined error
// percentages are excluded from AvgError; empty input leaves every mean nil.
func Summarize(rows []models.ComparisonRecord) models.WindowStats {
	stats := models.WindowStats{Count: len(rows)}
	if len(rows) == 0 {
		return stats
	}

	var forecast, actual, errSum float64
	for _, row := range rows {
		forecast += row.ForecastValue
		actual += row.ActualValue
		if row.ErrorPerc.Defined {
			errSum += row.ErrorPerc.Value
			stats.ErrorSamples++
		}
	}
	n := float64(len(rows))
	stats.AvgForecasted = floatPtr(forecast / n)
	stats.AvgActual = floatPtr(actual / n)
	if stats.ErrorSamples > 0 {
		stats.AvgError = floatPtr(errSum / float64(stats.ErrorSamples))
	}
	return stats
}

func floatPtr(v float64) *float64 {
	return &v
}
