// Package tools 는 MCP tool server 두 개(eventanalyzer, usagestats)를 구성한다.
// 모든 handler 는 같은 경로를 거친다:
//
//	입력 → handler → JSON text 결과 (실패 시 {error, tool, arguments} + IsError)
//	     → metrics / audit Invocation 기록
package tools

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/upjiang/mcptools/internal/metrics"
	"github.com/upjiang/mcptools/internal/model"
	"github.com/upjiang/mcptools/internal/pool"
)

var (
	// ErrUnresolvedEventName: event 인자도 없고 payload 에 event 필드도 없음.
	ErrUnresolvedEventName = errors.New("cannot determine event name: pass event or include an \"event\" field in data")

	// ErrPayloadNotObject: 디코딩은 됐지만 JSON object 가 아님.
	ErrPayloadNotObject = errors.New("decoded data is not a JSON object")

	errDataRequired = errors.New("data is required")
)

// Options 는 두 server 가 공유하는 구성.
type Options struct {
	Name     string
	Version  string
	Metrics  *metrics.Metrics
	Recorder model.Recorder
}

func (o Options) withDefaults(name string) Options {
	if o.Name == "" {
		o.Name = name
	}
	if o.Version == "" {
		o.Version = "dev"
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New()
	}
	if o.Recorder == nil {
		o.Recorder = model.NopRecorder{}
	}
	return o
}

// toolError 는 실패한 호출의 결과 본문.
type toolError struct {
	Error     string `json:"error"`
	Tool      string `json:"tool"`
	Arguments any    `json:"arguments"`
}

func textResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

func errorResult(tool string, args any, err error) *mcp.CallToolResult {
	data, mErr := json.MarshalIndent(toolError{Error: err.Error(), Tool: tool, Arguments: args}, "", "  ")
	if mErr != nil {
		data = []byte(err.Error())
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

// handlerFunc 는 결과 값(JSON 직렬화 대상)을 돌려준다.
// inv 에는 Event / Summary 만 채우면 되고 나머지는 invoke 가 채운다.
type handlerFunc[In any] func(ctx context.Context, in In, inv *model.Invocation) (any, error)

// addTool
// ------------------------------------------------------------
// typed handler 를 등록하면서 공통 처리(invoke)를 감싼다.
// 입력 schema 는 In 에서 만들고 검증은 SDK 가 한다.
func addTool[In any](s *mcp.Server, o Options, t *mcp.Tool, h handlerFunc[In]) {
	mcp.AddTool(s, t, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		res := invoke(o, t.Name, in, func(inv *model.Invocation) (any, error) {
			return h(ctx, in, inv)
		})
		return res, nil, nil
	})
}

// rawSchemas: json.RawMessage 필드는 문자열 또는 object 를 받는다.
var rawSchemas = map[reflect.Type]*jsonschema.Schema{
	reflect.TypeFor[json.RawMessage](): {Types: []string{"string", "object"}},
}

// addRawTool
// ------------------------------------------------------------
// arguments 를 wire 에서 받은 그대로 In 으로 푼다.
// mcp.AddTool 은 검증 과정에서 arguments 를 map 으로 풀었다가 다시
// 직렬화하므로 object 의 key 순서가 사라진다. payload 의 key 순서가
// 결과 순서가 되는 tool 은 이 경로로 등록한다.
func addRawTool[In any](s *mcp.Server, o Options, t *mcp.Tool, h handlerFunc[In]) {
	schema, err := jsonschema.For[In](&jsonschema.ForOptions{TypeSchemas: rawSchemas})
	if err != nil {
		panic(fmt.Errorf("tool %s: input schema: %w", t.Name, err))
	}
	tt := *t
	tt.InputSchema = schema

	s.AddTool(&tt, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.Params.Arguments
		var in In
		if len(args) > 0 {
			if err := json.Unmarshal(args, &in); err != nil {
				return invoke(o, t.Name, args, func(*model.Invocation) (any, error) {
					return nil, fmt.Errorf("invalid arguments: %w", err)
				}), nil
			}
		}
		return invoke(o, t.Name, in, func(inv *model.Invocation) (any, error) {
			return h(ctx, in, inv)
		}), nil
	})
}

// invoke
// ------------------------------------------------------------
//   - ToolCallsTotal / ToolErrorsTotal
//   - 에러는 protocol error 가 아니라 IsError 결과로 돌려준다
//   - 호출 1건을 Invocation 으로 Recorder 에 넘긴다 (non-blocking)
func invoke(o Options, tool string, args any, call func(inv *model.Invocation) (any, error)) *mcp.CallToolResult {
	start := time.Now()
	atomic.AddInt64(&o.Metrics.ToolCallsTotal, 1)

	inv := pool.GetInvocation()
	inv.Ts = start.Unix()
	inv.Tool = tool

	out, err := call(inv)

	var res *mcp.CallToolResult
	if err == nil {
		res, err = textResult(out)
	}
	if err != nil {
		atomic.AddInt64(&o.Metrics.ToolErrorsTotal, 1)
		inv.Error = err.Error()
		res = errorResult(tool, args, err)
		log.Warn().Err(err).Str("tool", tool).Msg("tool call failed")
	} else {
		inv.OK = true
	}
	inv.DurationMs = time.Since(start).Milliseconds()

	log.Debug().
		Str("tool", tool).
		Str("event", inv.Event).
		Bool("ok", inv.OK).
		Int64("duration_ms", inv.DurationMs).
		Msg("tool call")

	o.Recorder.Record(inv)
	return res
}

// boolOr: 생략된 boolean 인자의 기본값 처리.
func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
