package models

import (
	"encoding/json"
	"time"
)

// EnrichedInstant is an instant result after bucketing and forecast alignment.
type EnrichedInstant struct {
	KPIID            KPIID
	TimeStamp        time.Time
	RoundedTimeStamp time.Time
	// ForecastedTimestamp is nil when the KPI has no lead time; such rows never join.
	ForecastedTimestamp *time.Time
	Value               float64
	Progressive         int64
}

// HistoricalResult is one recorded value, tagged with its envelope timestamp.
type HistoricalResult struct {
	KPIID            KPIID
	TimeStamp        time.Time
	RoundedTimeStamp time.Time
	Value            float64
	DefaultValue     float64
	AverageValue     float64
	UnusualValue     float64
	Progressive      int64
}

// AggregatedHistoricalRecord collapses every HistoricalResult sharing (KPIID, RoundedTimeStamp).
type AggregatedHistoricalRecord struct {
	KPIID            KPIID     `json:"kpiId"`
	RoundedTimeStamp time.Time `json:"roundedTimeStamp"`
	TimeStamp        time.Time `json:"timeStamp"`
	Value            float64   `json:"value"`
	DefaultValue     float64   `json:"defaultValue"`
	AverageValue     float64   `json:"averageValue"`
	UnusualValue     float64   `json:"unusualValue"`
	Progressive      int64     `json:"progressive"`
	Contributors     int       `json:"contributors"`
}

// Percentage is a ratio that may be undefined (actual value of zero).
type Percentage struct {
	Value   float64
	Defined bool
}

// DefinedPercentage wraps a computed value.
func DefinedPercentage(v float64) Percentage {
	return Percentage{Value: v, Defined: true}
}

// MarshalJSON renders undefined percentages as null.
func (p Percentage) MarshalJSON() ([]byte, error) {
	if !p.Defined {
		return []byte("null"), nil
	}
	return json.Marshal(p.Value)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (p *Percentage) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Percentage{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = DefinedPercentage(v)
	return nil
}

// ComparisonRecord pairs a forecast with the recorded value it predicted.
type ComparisonRecord struct {
	KPIID               KPIID      `json:"kpiId"`
	Name                *string    `json:"name"`
	TimeStamp           time.Time  `json:"timeStamp"`
	ForecastedTimestamp time.Time  `json:"forecastedTimestamp"`
	RecordedTimeStamp   time.Time  `json:"recordedTimeStamp"`
	Progressive         int64      `json:"progressive"`
	ForecastValue       float64    `json:"forecastValue"`
	ActualValue         float64    `json:"actualValue"`
	DefaultValue        float64    `json:"defaultValue"`
	AverageValue        float64    `json:"averageValue"`
	UnusualValue        float64    `json:"unusualValue"`
	AbsDelta            float64    `json:"absDelta"`
	ErrorPerc           Percentage `json:"errorPerc"`
}
