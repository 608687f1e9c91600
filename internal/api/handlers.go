package api

import (
	"encoding/json"
	"fmt"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/kpi-recon/internal/models"
)

// FromProtoRunRequest maps a request document into a domain RunRequest.
// The optional "kpis" list filters by kpiId or name.
func FromProtoRunRequest(req *structpb.Struct) (models.RunRequest, error) {
	if req == nil {
		return models.RunRequest{}, fmt.Errorf("request is nil")
	}

	field, ok := req.GetFields()["kpis"]
	if !ok {
		return models.RunRequest{}, nil
	}
	if _, isNull := field.GetKind().(*structpb.Value_NullValue); isNull {
		return models.RunRequest{}, nil
	}
	list := field.GetListValue()
	if list == nil {
		return models.RunRequest{}, fmt.Errorf("kpis must be a list")
	}

	out := models.RunRequest{KPIs: make([]string, 0, len(list.GetValues()))}
	for i, v := range list.GetValues() {
		switch kind := v.GetKind().(type) {
		case *structpb.Value_StringValue:
			if kind.StringValue == "" {
				return models.RunRequest{}, fmt.Errorf("kpis[%d] is empty", i)
			}
			out.KPIs = append(out.KPIs, kind.StringValue)
		case *structpb.Value_NumberValue:
			out.KPIs = append(out.KPIs, strconv.FormatFloat(kind.NumberValue, 'f', -1, 64))
		default:
			return models.RunRequest{}, fmt.Errorf("kpis[%d] must be a string or number", i)
		}
	}
	return out, nil
}

// ToProtoRunRequest is the client-side inverse of FromProtoRunRequest.
func ToProtoRunRequest(req models.RunRequest) (*structpb.Struct, error) {
	kpis := make([]any, 0, len(req.KPIs))
	for _, k := range req.KPIs {
		kpis = append(kpis, k)
	}
	return structpb.NewStruct(map[string]any{"kpis": kpis})
}

// ToProtoReport converts a domain report into its document representation.
func ToProtoReport(report models.Report) (*structpb.Struct, error) {
	return toStruct(report)
}

// FromProtoReport decodes a report document produced by ToProtoReport.
func FromProtoReport(doc *structpb.Struct) (models.Report, error) {
	var report models.Report
	if err := fromStruct(doc, &report); err != nil {
		return models.Report{}, err
	}
	return report, nil
}

type definitionsDocument struct {
	KPIs []models.KPIDefinition `json:"kpis"`
}

// ToProtoDefinitions wraps KPI definitions as {"kpis": [...]}.
func ToProtoDefinitions(defs []models.KPIDefinition) (*structpb.Struct, error) {
	if defs == nil {
		defs = []models.KPIDefinition{}
	}
	return toStruct(definitionsDocument{KPIs: defs})
}

// FromProtoDefinitions decodes a document produced by ToProtoDefinitions.
func FromProtoDefinitions(doc *structpb.Struct) ([]models.KPIDefinition, error) {
	var out definitionsDocument
	if err := fromStruct(doc, &out); err != nil {
		return nil, err
	}
	return out.KPIs, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	doc, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

func fromStruct(doc *structpb.Struct, out any) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	data, err := doc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}
