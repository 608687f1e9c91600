package api

import (
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/kpi-recon/internal/models"
)

func TestFromProtoRunRequest(t *testing.T) {
	req, err := structpb.NewStruct(map[string]any{"kpis": []any{"Traffic", float64(12)}})
	if err != nil {
		t.Fatalf("build request: %v", err)
	}

	domainReq, err := FromProtoRunRequest(req)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(domainReq.KPIs) != 2 || domainReq.KPIs[0] != "Traffic" || domainReq.KPIs[1] != "12" {
		t.Fatalf("unexpected kpis: %v", domainReq.KPIs)
	}
}

func TestFromProtoRunRequestEmptyAndInvalid(t *testing.T) {
	if _, err := FromProtoRunRequest(nil); err == nil {
		t.Fatalf("expected error for nil request")
	}

	empty, err := FromProtoRunRequest(&structpb.Struct{})
	if err != nil || len(empty.KPIs) != 0 {
		t.Fatalf("expected empty request to select everything, got %v %v", empty, err)
	}

	bad, _ := structpb.NewStruct(map[string]any{"kpis": "Traffic"})
	if _, err := FromProtoRunRequest(bad); err == nil {
		t.Fatalf("expected error for non-list kpis")
	}

	badItem, _ := structpb.NewStruct(map[string]any{"kpis": []any{true}})
	if _, err := FromProtoRunRequest(badItem); err == nil {
		t.Fatalf("expected error for boolean kpi")
	}
}

func TestReportDocumentRoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC)
	name := "Traffic"
	report := models.Report{
		RunID:       "run-1",
		GeneratedAt: ts,
		KPIs: []models.KPIReport{{
			KPIID: "11",
			Name:  name,
			Rows: []models.ComparisonRecord{{
				KPIID:               "11",
				Name:                &name,
				TimeStamp:           ts.Add(-15 * time.Minute),
				ForecastedTimestamp: ts,
				RecordedTimeStamp:   ts,
				Progressive:         3,
				ForecastValue:       110,
				ActualValue:         0,
				AbsDelta:            110,
				ErrorPerc:           models.Percentage{},
			}},
			Morning:   models.PeakResult{NoData: true, Reason: "no data available"},
			Afternoon: models.PeakResult{NoData: true, Reason: "no data available"},
		}},
	}

	doc, err := ToProtoReport(report)
	if err != nil {
		t.Fatalf("encode report: %v", err)
	}
	kpis := doc.GetFields()["kpis"].GetListValue().GetValues()
	if len(kpis) != 1 {
		t.Fatalf("expected one kpi in document, got %d", len(kpis))
	}
	row := kpis[0].GetStructValue().GetFields()["rows"].GetListValue().GetValues()[0].GetStructValue()
	if _, isNull := row.GetFields()["errorPerc"].GetKind().(*structpb.Value_NullValue); !isNull {
		t.Fatalf("expected undefined percentage to encode as null, got %v", row.GetFields()["errorPerc"])
	}

	decoded, err := FromProtoReport(doc)
	if err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.RunID != "run-1" || !decoded.GeneratedAt.Equal(ts) {
		t.Fatalf("unexpected decoded header: %+v", decoded)
	}
	got := decoded.KPIs[0].Rows[0]
	if got.ForecastValue != 110 || got.ErrorPerc.Defined || !got.ForecastedTimestamp.Equal(ts) {
		t.Fatalf("unexpected decoded row: %+v", got)
	}
}

func TestDefinitionsDocument(t *testing.T) {
	lead := int64(900)
	doc, err := ToProtoDefinitions([]models.KPIDefinition{{KPIID: "11", Name: "Traffic", LeadTimeSeconds: &lead}, {KPIID: "12", Name: "Speed"}})
	if err != nil {
		t.Fatalf("encode definitions: %v", err)
	}
	defs, err := FromProtoDefinitions(doc)
	if err != nil {
		t.Fatalf("decode definitions: %v", err)
	}
	if len(defs) != 2 || *defs[0].LeadTimeSeconds != 900 || defs[1].LeadTimeSeconds != nil {
		t.Fatalf("unexpected definitions: %+v", defs)
	}

	empty, err := ToProtoDefinitions(nil)
	if err != nil {
		t.Fatalf("encode empty definitions: %v", err)
	}
	if empty.GetFields()["kpis"].GetListValue() == nil {
		t.Fatalf("expected empty list, got %v", empty.GetFields()["kpis"])
	}
}
