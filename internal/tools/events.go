package tools

import (
	"bytes"
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/upjiang/mcptools/internal/analyzer"
	"github.com/upjiang/mcptools/internal/codesearch"
	"github.com/upjiang/mcptools/internal/eventapi"
	"github.com/upjiang/mcptools/internal/explainer"
	"github.com/upjiang/mcptools/internal/model"
	"github.com/upjiang/mcptools/internal/payload"
	"github.com/upjiang/mcptools/internal/typecheck"
)

type QueryEventFieldsInput struct {
	Event       string `json:"event" jsonschema:"event name, e.g. LlwResExposure"`
	ShowDetails *bool  `json:"show_details,omitempty" jsonschema:"include parsed enum_values for each field (default true)"`
}

type AnalyzeTrackingDataInput struct {
	Event         string          `json:"event,omitempty" jsonschema:"event name; taken from the payload's event field when omitted"`
	Data          json.RawMessage `json:"data" jsonschema:"tracking payload: JSON text, base64 of JSON, URL-encoded text or a JSON object"`
	CheckRequired bool            `json:"check_required,omitempty" jsonschema:"report required fields missing from the payload (default false)"`
}

type ExplainFieldInput struct {
	Event     string `json:"event" jsonschema:"event name"`
	FieldName string `json:"field_name" jsonschema:"field name"`
	ShowEnum  *bool  `json:"show_enum,omitempty" jsonschema:"include enum values (default true)"`
}

type FindFieldInCodeInput struct {
	FieldName   string `json:"field_name" jsonschema:"field name to search for"`
	ProjectPath string `json:"project_path" jsonschema:"absolute path of the project root"`
	MaxResults  int    `json:"max_results,omitempty" jsonschema:"maximum number of matches (default 50)"`
}

type CompareEventsInput struct {
	Event1 string `json:"event1" jsonschema:"first event name"`
	Event2 string `json:"event2" jsonschema:"second event name"`
}

// eventTools 는 eventanalyzer server 의 handler 묶음.
type eventTools struct {
	source eventapi.FieldSource
	o      Options
}

// NewEventServer
// ------------------------------------------------------------
// 이벤트 정의 조회 / payload 분석 tool 5개를 가진 MCP server.
//
//	query_event_fields, analyze_tracking_data, explain_field,
//	find_field_in_code, compare_events
func NewEventServer(source eventapi.FieldSource, o Options) *mcp.Server {
	o = o.withDefaults("event-analyzer")
	s := mcp.NewServer(&mcp.Implementation{Name: o.Name, Version: o.Version}, nil)
	et := &eventTools{source: source, o: o}

	addTool(s, o, &mcp.Tool{
		Name:        "query_event_fields",
		Description: "List every field definition of a tracking event: type, description, enum values.",
	}, et.queryEventFields)
	addRawTool(s, o, &mcp.Tool{
		Name:        "analyze_tracking_data",
		Description: "Decode a tracking payload and check it against the event's field definitions: type errors, enum errors, unknown and missing fields.",
	}, et.analyzeTrackingData)
	addTool(s, o, &mcp.Tool{
		Name:        "explain_field",
		Description: "Explain one field of a tracking event: type, meaning, enum values and similarly named fields.",
	}, et.explainField)
	addTool(s, o, &mcp.Tool{
		Name:        "find_field_in_code",
		Description: "Search a project's source files for places that read or write a tracking field.",
	}, et.findFieldInCode)
	addTool(s, o, &mcp.Tool{
		Name:        "compare_events",
		Description: "Compare the field sets of two tracking events.",
	}, et.compareEvents)

	return s
}

// fieldDetail: query_event_fields 의 필드 1개 (show_details 면 enum_values 포함).
type fieldDetail struct {
	model.FieldDefinition
	EnumValues *payload.Object `json:"enum_values,omitempty"`
}

// fieldDetails 는 정의 순서를 유지한 채 object 로 직렬화한다.
type fieldDetails struct {
	names   []string
	details map[string]fieldDetail
}

func (f fieldDetails) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range f.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.details[name])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

type eventFieldsResult struct {
	Event       string       `json:"event"`
	TotalFields int          `json:"total_fields"`
	Fields      fieldDetails `json:"fields"`
}

func (et *eventTools) queryEventFields(ctx context.Context, in QueryEventFieldsInput, inv *model.Invocation) (any, error) {
	inv.Event = in.Event
	defs, err := et.source.EventFields(ctx, in.Event)
	if err != nil {
		return nil, err
	}

	showDetails := boolOr(in.ShowDetails, true)
	fields := fieldDetails{names: defs.Names(), details: make(map[string]fieldDetail, defs.Len())}
	defs.Range(func(name string, def model.FieldDefinition) bool {
		d := fieldDetail{FieldDefinition: def}
		if showDetails && def.Trans != "" {
			d.EnumValues = typecheck.ParseEnumSpec(def.Trans).Object()
		}
		fields.details[name] = d
		return true
	})

	inv.Summary = fmt.Sprintf("%d fields", defs.Len())
	return eventFieldsResult{Event: in.Event, TotalFields: defs.Len(), Fields: fields}, nil
}

func (et *eventTools) analyzeTrackingData(ctx context.Context, in AnalyzeTrackingDataInput, inv *model.Invocation) (any, error) {
	if len(in.Data) == 0 {
		return nil, errDataRequired
	}
	res, err := AnalyzePayload(ctx, et.source, et.o.Metrics, in.Data, in.Event, in.CheckRequired)
	inv.Event = res.Event
	if err != nil {
		return nil, err
	}
	inv.Summary = res.Summary
	return res, nil
}

func (et *eventTools) explainField(ctx context.Context, in ExplainFieldInput, inv *model.Invocation) (any, error) {
	inv.Event = in.Event
	defs, err := et.source.EventFields(ctx, in.Event)
	if err != nil {
		return nil, err
	}
	def, ok := defs.Get(in.FieldName)
	if !ok {
		return nil, fmt.Errorf("field %s not found in event %s: %w", in.FieldName, in.Event, eventapi.ErrFieldNotFound)
	}

	exp := explainer.Explain(in.FieldName, def, boolOr(in.ShowEnum, true))
	exp.RelatedFields = explainer.RelatedFields(in.FieldName, defs, explainer.DefaultMaxRelated)
	inv.Summary = in.FieldName
	return exp, nil
}

func (et *eventTools) findFieldInCode(ctx context.Context, in FindFieldInCodeInput, inv *model.Invocation) (any, error) {
	max := in.MaxResults
	if max <= 0 {
		max = codesearch.DefaultMaxResults
	}
	res, err := codesearch.Find(ctx, in.ProjectPath, in.FieldName, max)
	if err != nil {
		return nil, err
	}
	inv.Summary = fmt.Sprintf("%d matches in %d files", res.TotalMatches, res.SearchedFiles)
	return res, nil
}

func (et *eventTools) compareEvents(ctx context.Context, in CompareEventsInput, inv *model.Invocation) (any, error) {
	inv.Event = in.Event1 + "," + in.Event2
	a, err := et.source.EventFields(ctx, in.Event1)
	if err != nil {
		return nil, err
	}
	b, err := et.source.EventFields(ctx, in.Event2)
	if err != nil {
		return nil, err
	}

	res := analyzer.CompareEvents(a, b)
	res.Event1, res.Event2 = in.Event1, in.Event2
	inv.Summary = fmt.Sprintf("%d common, %d type differences", len(res.CommonFields), len(res.TypeDifferences))
	return res, nil
}
