package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// KPIID identifies a KPI. Upstream payloads carry it either as a JSON string or a number.
type KPIID string

// UnmarshalJSON accepts both string and numeric identifiers.
func (id *KPIID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = KPIID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("kpiId: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = KPIID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = KPIID(n.String())
	return nil
}

// KPIDefinition is the per-session description of a KPI.
type KPIDefinition struct {
	KPIID KPIID  `json:"kpiId"`
	Name  string `json:"name"`
	// LeadTimeSeconds is nil when the definition carries no timetostart parameter.
	LeadTimeSeconds *int64 `json:"leadTimeSeconds"`
}

// OverallResult is the nested forecast block of an instant result.
type OverallResult struct {
	Value       *float64 `json:"value"`
	Progressive *int64   `json:"progressive"`
}

// RawInstantResult is one near-real-time observation as returned by the 24h results endpoint.
type RawInstantResult struct {
	KPIID         KPIID          `json:"kpiId"`
	TimeStamp     string         `json:"timeStamp"`
	OverallResult OverallResult  `json:"overallResult"`
	Extra         map[string]any `json:"-"`
}

// RawHistoricalValues is a single record inside a historical envelope. Pointers
// distinguish absent fields from zero.
type RawHistoricalValues struct {
	Value        *float64 `json:"value"`
	DefaultValue *float64 `json:"defaultValue"`
	AverageValue *float64 `json:"averageValue"`
	UnusualValue *float64 `json:"unusualValue"`
	Progressive  *int64   `json:"progressive"`
}

// RawHistoricalEntry is a timestamped envelope of historical results.
type RawHistoricalEntry struct {
	TimeStamp *string               `json:"timeStamp"`
	Results   []RawHistoricalValues `json:"results"`
}

// UnmarshalJSON decodes the known fields and keeps the rest in Extra. The nested
// results array is dropped; it duplicates the historical endpoint.
func (r *RawInstantResult) UnmarshalJSON(data []byte) error {
	type plain RawInstantResult
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, key := range []string{"kpiId", "timeStamp", "overallResult", "results"} {
		delete(all, key)
	}
	if len(all) > 0 {
		p.Extra = all
	}
	*r = RawInstantResult(p)
	return nil
}
