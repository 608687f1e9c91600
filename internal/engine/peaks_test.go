package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/miradorstack/kpi-recon/internal/models"
)

func comparison(ts time.Time, forecast, actual float64) models.ComparisonRecord {
	rec := models.ComparisonRecord{
		KPIID:               "1",
		ForecastedTimestamp: ts,
		ForecastValue:       forecast,
		ActualValue:         actual,
		AbsDelta:            math.Abs(forecast - actual),
	}
	if actual != 0 {
		rec.ErrorPerc = models.DefinedPercentage(rec.AbsDelta / actual * 100)
	}
	return rec
}

func TestAnalyzePeaks(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []models.ComparisonRecord{
		comparison(day.Add(5*time.Hour), 1000, 1000), // outside both windows
		comparison(day.Add(8*time.Hour), 90, 100),
		comparison(day.Add(9*time.Hour), 150, 200),
		comparison(day.Add(10*time.Hour), 180, 200), // tie, later
		comparison(day.Add(10*time.Hour+30*time.Minute), 50, 50),
		comparison(day.Add(17*time.Hour), 300, 300),
		comparison(day.Add(18*time.Hour), 280, 250),
		comparison(day.Add(21*time.Hour), 999, 999), // outside both windows
	}

	analysis := NewPeakAnalyzer(DefaultPeakConfig()).Analyze(rows)

	if analysis.Overall.Count != len(rows) {
		t.Fatalf("expected overall count %d, got %d", len(rows), analysis.Overall.Count)
	}

	if analysis.MorningErr != nil {
		t.Fatalf("unexpected morning error: %v", analysis.MorningErr)
	}
	morning := analysis.Morning
	if !morning.PeakTimestamp.Equal(day.Add(9 * time.Hour)) {
		t.Fatalf("expected first-occurrence tie break at 09:00, got %v", morning.PeakTimestamp)
	}
	if morning.Range != "08:00 - 10:00" {
		t.Fatalf("unexpected morning range %q", morning.Range)
	}
	// 08:00, 09:00, 10:00 fall inside the inclusive window; 10:30 does not.
	if morning.Stats.Count != 3 {
		t.Fatalf("expected 3 rows in morning window, got %d", morning.Stats.Count)
	}
	if got := *morning.Stats.AvgActual; math.Abs(got-500.0/3) > 1e-9 {
		t.Fatalf("unexpected morning avg actual %v", got)
	}
	if got := *morning.Stats.AvgForecasted; math.Abs(got-140) > 1e-9 {
		t.Fatalf("unexpected morning avg forecast %v", got)
	}

	if analysis.AfternoonErr != nil {
		t.Fatalf("unexpected afternoon error: %v", analysis.AfternoonErr)
	}
	if !analysis.Afternoon.PeakTimestamp.Equal(day.Add(17 * time.Hour)) {
		t.Fatalf("unexpected afternoon peak %v", analysis.Afternoon.PeakTimestamp)
	}
	if analysis.Afternoon.Stats.Count != 2 {
		t.Fatalf("expected 2 rows in afternoon window, got %d", analysis.Afternoon.Stats.Count)
	}
}

func TestAnalyzePeaksEmptyWindow(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []models.ComparisonRecord{comparison(day.Add(7*time.Hour), 10, 12)}

	analysis := NewPeakAnalyzer(PeakConfig{}).Analyze(rows)
	if analysis.MorningErr != nil {
		t.Fatalf("unexpected morning error: %v", analysis.MorningErr)
	}
	if !errors.Is(analysis.AfternoonErr, ErrEmptyWindow) {
		t.Fatalf("expected ErrEmptyWindow, got %v", analysis.AfternoonErr)
	}
	var empty *EmptyWindowError
	if !errors.As(analysis.AfternoonErr, &empty) || empty.Label != "afternoon" {
		t.Fatalf("expected afternoon EmptyWindowError, got %v", analysis.AfternoonErr)
	}

	none := NewPeakAnalyzer(DefaultPeakConfig()).Analyze(nil)
	if !errors.Is(none.MorningErr, ErrEmptyWindow) || !errors.Is(none.AfternoonErr, ErrEmptyWindow) {
		t.Fatalf("expected both windows empty, got %v / %v", none.MorningErr, none.AfternoonErr)
	}
	if none.Overall.Count != 0 || none.Overall.AvgActual != nil {
		t.Fatalf("expected empty overall stats, got %+v", none.Overall)
	}
}

func TestAnalyzePeaksUsesTimestampClock(t *testing.T) {
	// 11:30 UTC is 17:00 at +05:30; the analysis must not convert.
	ist := time.FixedZone("ist", 5*3600+30*60)
	rows := []models.ComparisonRecord{comparison(time.Date(2024, 1, 1, 17, 0, 0, 0, ist), 1, 2)}

	analysis := NewPeakAnalyzer(DefaultPeakConfig()).Analyze(rows)
	if analysis.AfternoonErr != nil {
		t.Fatalf("expected afternoon peak in local clock, got %v", analysis.AfternoonErr)
	}
	if !errors.Is(analysis.MorningErr, ErrEmptyWindow) {
		t.Fatalf("expected empty morning, got %v", analysis.MorningErr)
	}
}

func TestSummarizeExcludesUndefinedErrors(t *testing.T) {
	ts := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	stats := Summarize([]models.ComparisonRecord{
		comparison(ts, 10, 0),
		comparison(ts, 110, 100),
		comparison(ts, 90, 100),
	})
	if stats.Count != 3 || stats.ErrorSamples != 2 {
		t.Fatalf("unexpected counts %+v", stats)
	}
	if stats.AvgError == nil || math.Abs(*stats.AvgError-10) > 1e-9 {
		t.Fatalf("expected avg error 10, got %v", stats.AvgError)
	}

	allUndefined := Summarize([]models.ComparisonRecord{comparison(ts, 1, 0)})
	if allUndefined.AvgError != nil {
		t.Fatalf("expected nil avg error, got %v", *allUndefined.AvgError)
	}
	if allUndefined.AvgForecasted == nil || *allUndefined.AvgForecasted != 1 {
		t.Fatalf("unexpected avg forecast %+v", allUndefined)
	}
}
