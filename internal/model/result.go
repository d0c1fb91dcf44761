// internal/model/result.go
package model

import "github.com/upjiang/mcptools/internal/payload"

// TypeError: 선언 타입과 실제 값이 맞지 않는 필드.
type TypeError struct {
	Field    string        `json:"field"`
	Expected string        `json:"expected"`
	Actual   string        `json:"actual"`
	Value    payload.Value `json:"value"`
}

// EnumError: enum 으로 선언된 필드에 허용되지 않는 값이 들어온 경우.
type EnumError struct {
	Field       string        `json:"field"`
	Value       payload.Value `json:"value"`
	ValidValues []string      `json:"valid_values"`
}

// UnknownField: 필드 정의에 없는 payload key.
type UnknownField struct {
	Field string        `json:"field"`
	Value payload.Value `json:"value"`
}

// MissingField: 필수인데 없거나 null 인 필드.
type MissingField struct {
	Field string `json:"field"`
	Type  string `json:"type"`
}

// AnalysisResult
// ------------------------------------------------------------
// analyze_tracking_data 한 번의 결과. 생성 후 변경하지 않는다.
// MissingRequiredFields 는 checkRequired 일 때만 채워진다 (nil 이면 생략).
type AnalysisResult struct {
	Event                 string          `json:"event"`
	TotalFields           int             `json:"total_fields"`
	AnalyzedFields        int             `json:"analyzed_fields"`
	TypeErrors            []TypeError     `json:"type_errors"`
	EnumErrors            []EnumError     `json:"enum_errors"`
	UnknownFields         []UnknownField  `json:"unknown_fields"`
	MissingRequiredFields *[]MissingField `json:"missing_required_fields,omitempty"`
	Coverage              string          `json:"coverage"`
	Summary               string          `json:"summary"`
}

// OK 는 네 종류의 문제가 하나도 없을 때 true.
func (r AnalysisResult) OK() bool {
	missing := 0
	if r.MissingRequiredFields != nil {
		missing = len(*r.MissingRequiredFields)
	}
	return len(r.TypeErrors) == 0 && len(r.EnumErrors) == 0 && len(r.UnknownFields) == 0 && missing == 0
}

type TypeDifference struct {
	Field      string `json:"field"`
	Event1Type string `json:"event1_type"`
	Event2Type string `json:"event2_type"`
}

// ComparisonResult: 두 이벤트 스키마의 필드 집합 비교.
type ComparisonResult struct {
	Event1          string           `json:"event1"`
	Event2          string           `json:"event2"`
	CommonFields    []string         `json:"common_fields"`
	OnlyInEvent1    []string         `json:"only_in_event1"`
	OnlyInEvent2    []string         `json:"only_in_event2"`
	TypeDifferences []TypeDifference `json:"type_differences"`
}

// Explanation: explain_field 결과.
type Explanation struct {
	FieldName     string          `json:"field_name"`
	Type          string          `json:"type"`
	Description   string          `json:"description"`
	Required      bool            `json:"required"`
	EnumValues    *payload.Object `json:"enum_values,omitempty"`
	RelatedFields []string        `json:"related_fields,omitempty"`
}
