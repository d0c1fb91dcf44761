// internal/analyzer/analyzer.go
package analyzer

import (
	"fmt"
	"strings"

	"github.com/upjiang/mcptools/internal/model"
	"github.com/upjiang/mcptools/internal/payload"
	"github.com/upjiang/mcptools/internal/typecheck"
)

// payload 에서 이벤트 이름을 담는 예약 key.
const EventKey = "event"

// Analyze
// ------------------------------------------------------------
// 디코딩된 트래킹 payload 를 필드 정의와 대조한다. 순수 함수이며 실패하지 않는다.
//
//  1. 정의에 없는 payload key → unknown_fields (payload 순서)
//  2. 정의된 필드마다 (정의 순서)
//     - checkRequired && required && (없음 | null) → missing, 이후 검사 생략
//     - 값이 있으면 타입 검사 → enum 검사
//  3. coverage = (total - missing) / total, total 0 이면 0.00%
//  4. summary 생성
//
// defs 가 nil 이면 선언 필드 0개로 취급한다.
func Analyze(event *payload.Object, defs *model.FieldDefinitions, checkRequired bool) model.AnalysisResult {
	typeErrors := []model.TypeError{}
	enumErrors := []model.EnumError{}
	unknown := []model.UnknownField{}
	missing := []model.MissingField{}

	event.Range(func(name string, v payload.Value) bool {
		if !defs.Has(name) {
			unknown = append(unknown, model.UnknownField{Field: name, Value: v})
		}
		return true
	})

	defs.Range(func(name string, def model.FieldDefinition) bool {
		v, present := event.Get(name)
		if checkRequired && def.Required && (!present || v.IsNull()) {
			missing = append(missing, model.MissingField{Field: name, Type: def.Type})
			return true
		}
		if !present || v.IsNull() {
			return true
		}

		expected := typecheck.MapDeclared(def.Type)
		actual := typecheck.Infer(v)
		if !typecheck.Matches(expected, actual, v) {
			typeErrors = append(typeErrors, model.TypeError{
				Field:    name,
				Expected: typecheck.Label(expected),
				Actual:   typecheck.Label(actual),
				Value:    v,
			})
		}

		if def.Trans != "" {
			enum := typecheck.ParseEnumSpec(def.Trans)
			if !typecheck.ValidateEnum(v, enum) {
				enumErrors = append(enumErrors, model.EnumError{
					Field:       name,
					Value:       v,
					ValidValues: enum.SortedKeys(),
				})
			}
		}
		return true
	})

	total := defs.Len()
	analyzed := total - len(missing)

	res := model.AnalysisResult{
		Event:          EventName(event),
		TotalFields:    total,
		AnalyzedFields: analyzed,
		TypeErrors:     typeErrors,
		EnumErrors:     enumErrors,
		UnknownFields:  unknown,
		Coverage:       Coverage(total, len(missing)),
		Summary:        Summary(len(typeErrors), len(enumErrors), len(unknown), len(missing)),
	}
	if checkRequired {
		res.MissingRequiredFields = &missing
	}
	return res
}

// EventName 은 payload 의 event 값을 텍스트로 돌려준다. 없으면 "Unknown".
func EventName(event *payload.Object) string {
	v, ok := event.Get(EventKey)
	if !ok || v.IsNull() {
		return "Unknown"
	}
	if s := v.Text(); s != "" {
		return s
	}
	return "Unknown"
}

// Coverage 는 "75.00%" 형태의 문자열을 만든다.
func Coverage(total, missing int) string {
	if total <= 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(total-missing)/float64(total)*100)
}

// Summary 는 0 이 아닌 항목만 고정 순서로 나열한다.
func Summary(typeErrs, enumErrs, unknown, missing int) string {
	var issues []string
	if typeErrs > 0 {
		issues = append(issues, fmt.Sprintf("%d type errors", typeErrs))
	}
	if enumErrs > 0 {
		issues = append(issues, fmt.Sprintf("%d enum errors", enumErrs))
	}
	if unknown > 0 {
		issues = append(issues, fmt.Sprintf("%d unknown fields", unknown))
	}
	if missing > 0 {
		issues = append(issues, fmt.Sprintf("%d missing required fields", missing))
	}
	if len(issues) == 0 {
		return "✅ Data fully conforms to the field definitions"
	}
	return "⚠️ Issues found: " + strings.Join(issues, ", ")
}

// CompareEvents
// ------------------------------------------------------------
// 두 스키마의 필드 집합을 비교한다.
// 타입 비교는 선언 문자열 그대로 (대소문자 구분, alias 적용 안 함).
// 이벤트 이름(Event1/Event2)은 호출 측에서 채운다.
func CompareEvents(a, b *model.FieldDefinitions) model.ComparisonResult {
	res := model.ComparisonResult{
		CommonFields:    []string{},
		OnlyInEvent1:    []string{},
		OnlyInEvent2:    []string{},
		TypeDifferences: []model.TypeDifference{},
	}

	a.Range(func(name string, da model.FieldDefinition) bool {
		db, ok := b.Get(name)
		if !ok {
			res.OnlyInEvent1 = append(res.OnlyInEvent1, name)
			return true
		}
		res.CommonFields = append(res.CommonFields, name)
		if da.Type != db.Type {
			res.TypeDifferences = append(res.TypeDifferences, model.TypeDifference{
				Field:      name,
				Event1Type: da.Type,
				Event2Type: db.Type,
			})
		}
		return true
	})

	b.Range(func(name string, _ model.FieldDefinition) bool {
		if !a.Has(name) {
			res.OnlyInEvent2 = append(res.OnlyInEvent2, name)
		}
		return true
	})
	return res
}
