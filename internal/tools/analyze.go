package tools

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/upjiang/mcptools/internal/analyzer"
	"github.com/upjiang/mcptools/internal/eventapi"
	"github.com/upjiang/mcptools/internal/metrics"
	"github.com/upjiang/mcptools/internal/model"
	"github.com/upjiang/mcptools/internal/payload"
)

// AnalyzePayload
// ------------------------------------------------------------
// analyze_tracking_data 와 HTTP /collect 가 같이 쓰는 파이프라인.
//
//	decode → event 이름 결정 → 필드 정의 조회 → analyzer.Analyze
//
// 실패해도 result.Event 에는 그 시점까지 알게 된 이벤트 이름을 담는다.
func AnalyzePayload(
	ctx context.Context,
	source eventapi.FieldSource,
	m *metrics.Metrics,
	data any,
	event string,
	checkRequired bool,
) (model.AnalysisResult, error) {
	v, err := payload.Decode(data)
	if err != nil {
		atomic.AddInt64(&m.DecodeFailuresTotal, 1)
		return model.AnalysisResult{Event: event}, fmt.Errorf("decode data: %w", err)
	}
	obj, ok := v.AsObject()
	if !ok {
		atomic.AddInt64(&m.DecodeFailuresTotal, 1)
		return model.AnalysisResult{Event: event}, fmt.Errorf("%w (got %s)", ErrPayloadNotObject, v.Kind())
	}

	name := ResolveEventName(event, obj)
	if name == "" {
		return model.AnalysisResult{}, ErrUnresolvedEventName
	}

	defs, err := source.EventFields(ctx, name)
	if err != nil {
		return model.AnalysisResult{Event: name}, err
	}

	res := analyzer.Analyze(obj, defs, checkRequired)
	if !obj.Has(analyzer.EventKey) {
		res.Event = name
	}
	return res, nil
}

// ResolveEventName: 인자로 받은 이름이 우선, 없으면 payload 의 event 필드.
func ResolveEventName(event string, obj *payload.Object) string {
	if event != "" {
		return event
	}
	v, ok := obj.Get(analyzer.EventKey)
	if !ok || v.IsNull() {
		return ""
	}
	return v.Text()
}
