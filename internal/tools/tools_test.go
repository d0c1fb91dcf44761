package tools

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upjiang/mcptools/internal/eventapi"
	"github.com/upjiang/mcptools/internal/metrics"
	"github.com/upjiang/mcptools/internal/model"
	"github.com/upjiang/mcptools/internal/payload"
)

// fakeSource: event 이름 → 필드 정의 JSON.
type fakeSource map[string]string

func (f fakeSource) EventFields(_ context.Context, event string) (*model.FieldDefinitions, error) {
	raw, ok := f[event]
	if !ok {
		return nil, &eventapi.APIError{StatusCode: 404, Body: "unknown event " + event}
	}
	defs := model.NewFieldDefinitions()
	if err := defs.UnmarshalJSON([]byte(raw)); err != nil {
		return nil, err
	}
	return defs, nil
}

type captureRecorder struct {
	mu   sync.Mutex
	invs []model.Invocation
}

func (c *captureRecorder) Record(inv *model.Invocation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invs = append(c.invs, *inv)
}

func (c *captureRecorder) all() []model.Invocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Invocation(nil), c.invs...)
}

func connect(t *testing.T, s *mcp.Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := s.Connect(ctx, serverT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

// call 은 결과 text 를 JSON 으로 풀어 돌려준다.
func call(t *testing.T, cs *mcp.ClientSession, name string, args any) (map[string]any, string, bool) {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.Len(t, res.Content, 1)

	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(tc.Text), &out), tc.Text)
	return out, tc.Text, res.IsError
}

const pageViewDefs = `{
	"user_id": {"type": "NUMBER", "desc": "user id", "required": true},
	"page": {"type": "string", "desc": "page", "trans": "1:home,2:detail"},
	"is_new": {"type": "BOOL", "desc": "first visit"},
	"user_name": {"type": "STRING", "desc": "display name"},
	"session_id": {"type": "STRING"}
}`

const clickDefs = `{
	"user_id": {"type": "STRING", "desc": "user id"},
	"button": {"type": "STRING", "desc": "button"}
}`

func newEventSession(t *testing.T) (*mcp.ClientSession, *metrics.Metrics, *captureRecorder) {
	t.Helper()
	m := metrics.New()
	rec := &captureRecorder{}
	s := NewEventServer(fakeSource{"page_view": pageViewDefs, "click": clickDefs}, Options{
		Version:  "test",
		Metrics:  m,
		Recorder: rec,
	})
	return connect(t, s), m, rec
}

func TestQueryEventFields(t *testing.T) {
	cs, m, rec := newEventSession(t)

	out, text, isErr := call(t, cs, "query_event_fields", map[string]any{"event": "page_view"})
	require.False(t, isErr, text)
	assert.Equal(t, "page_view", out["event"])
	assert.EqualValues(t, 5, out["total_fields"])

	fields := out["fields"].(map[string]any)
	page := fields["page"].(map[string]any)
	assert.Equal(t, map[string]any{"1": "home", "2": "detail"}, page["enum_values"])
	assert.Less(t, strings.Index(text, `"user_id"`), strings.Index(text, `"session_id"`))

	out, _, _ = call(t, cs, "query_event_fields", map[string]any{"event": "page_view", "show_details": false})
	page = out["fields"].(map[string]any)["page"].(map[string]any)
	assert.NotContains(t, page, "enum_values")

	assert.Equal(t, int64(2), m.ToolCallsTotal)
	invs := rec.all()
	require.Len(t, invs, 2)
	assert.Equal(t, "query_event_fields", invs[0].Tool)
	assert.Equal(t, "page_view", invs[0].Event)
	assert.True(t, invs[0].OK)
}

func TestAnalyzeTrackingData_Base64(t *testing.T) {
	cs, _, rec := newEventSession(t)

	raw := `{"event":"page_view","user_id":"12","page":"3","is_new":1,"extra":true}`
	data := base64.StdEncoding.EncodeToString([]byte(raw))

	out, text, isErr := call(t, cs, "analyze_tracking_data", map[string]any{"data": data, "check_required": true})
	require.False(t, isErr, text)

	assert.Equal(t, "page_view", out["event"])
	assert.Empty(t, out["type_errors"])
	enumErrs := out["enum_errors"].([]any)
	require.Len(t, enumErrs, 1)
	assert.Equal(t, "page", enumErrs[0].(map[string]any)["field"])
	assert.Equal(t, []any{"1", "2"}, enumErrs[0].(map[string]any)["valid_values"])

	unknown := out["unknown_fields"].([]any)
	require.Len(t, unknown, 2)
	assert.Equal(t, "event", unknown[0].(map[string]any)["field"])
	assert.Equal(t, "extra", unknown[1].(map[string]any)["field"])

	assert.Equal(t, []any{}, out["missing_required_fields"])
	assert.Equal(t, "100.00%", out["coverage"])

	invs := rec.all()
	require.Len(t, invs, 1)
	assert.Equal(t, "page_view", invs[0].Event)
	assert.Contains(t, invs[0].Summary, "1 enum errors")
}

func TestAnalyzeTrackingData_ObjectAndExplicitEvent(t *testing.T) {
	cs, _, _ := newEventSession(t)

	out, text, isErr := call(t, cs, "analyze_tracking_data", map[string]any{
		"event": "page_view",
		"data":  map[string]any{"user_id": "abc", "page": 1},
	})
	require.False(t, isErr, text)
	assert.Equal(t, "page_view", out["event"])
	typeErrs := out["type_errors"].([]any)
	require.Len(t, typeErrs, 1)
	assert.Equal(t, "user_id", typeErrs[0].(map[string]any)["field"])
	assert.Equal(t, "number", typeErrs[0].(map[string]any)["expected"])
	assert.NotContains(t, out, "missing_required_fields")
}

func TestAnalyzeTrackingData_ObjectKeepsKeyOrder(t *testing.T) {
	cs, _, _ := newEventSession(t)

	fieldsOf := func(out map[string]any) []string {
		var names []string
		for _, u := range out["unknown_fields"].([]any) {
			names = append(names, u.(map[string]any)["field"].(string))
		}
		return names
	}
	want := []string{"zeta", "alpha", "mid", "big"}

	// object 인자: key 순서가 그대로 전달되도록 raw JSON 으로 보낸다.
	args := json.RawMessage(`{"event":"click","data":{"zeta":1,"alpha":2,"button":"ok","mid":3,"big":9007199254740993}}`)
	out, text, isErr := call(t, cs, "analyze_tracking_data", args)
	require.False(t, isErr, text)
	assert.Equal(t, "click", out["event"])
	assert.Equal(t, want, fieldsOf(out))
	assert.Contains(t, text, "9007199254740993")

	// 같은 payload 를 문자열로 보내도 순서가 같다.
	out, text, isErr = call(t, cs, "analyze_tracking_data", map[string]any{
		"event": "click",
		"data":  `{"zeta":1,"alpha":2,"button":"ok","mid":3,"big":9007199254740993}`,
	})
	require.False(t, isErr, text)
	assert.Equal(t, want, fieldsOf(out))
}

func TestAnalyzeTrackingData_MissingData(t *testing.T) {
	cs, _, _ := newEventSession(t)

	out, _, isErr := call(t, cs, "analyze_tracking_data", map[string]any{"event": "click"})
	assert.True(t, isErr)
	assert.Equal(t, "data is required", out["error"])

	out, _, isErr = call(t, cs, "analyze_tracking_data", map[string]any{"data": 42, "event": "click"})
	assert.True(t, isErr)
	assert.Contains(t, out["error"], ErrPayloadNotObject.Error())
}

func TestAnalyzeTrackingData_Errors(t *testing.T) {
	cs, m, rec := newEventSession(t)

	out, _, isErr := call(t, cs, "analyze_tracking_data", map[string]any{"data": `{"user_id": 1}`})
	assert.True(t, isErr)
	assert.Equal(t, ErrUnresolvedEventName.Error(), out["error"])
	assert.Equal(t, "analyze_tracking_data", out["tool"])
	assert.Equal(t, `{"user_id": 1}`, out["arguments"].(map[string]any)["data"])

	out, _, isErr = call(t, cs, "analyze_tracking_data", map[string]any{"data": "hello world"})
	assert.True(t, isErr)
	assert.Contains(t, out["error"], "decode data")

	out, _, isErr = call(t, cs, "analyze_tracking_data", map[string]any{"data": "[1,2]", "event": "page_view"})
	assert.True(t, isErr)
	assert.Contains(t, out["error"], ErrPayloadNotObject.Error())

	out, _, isErr = call(t, cs, "analyze_tracking_data", map[string]any{"data": `{"event":"nope"}`})
	assert.True(t, isErr)
	assert.Contains(t, out["error"], "HTTP 404")

	assert.Equal(t, int64(4), m.ToolErrorsTotal)
	assert.Equal(t, int64(2), m.DecodeFailuresTotal)
	for _, inv := range rec.all() {
		assert.False(t, inv.OK)
		assert.NotEmpty(t, inv.Error)
	}
}

func TestExplainField(t *testing.T) {
	cs, _, _ := newEventSession(t)

	out, text, isErr := call(t, cs, "explain_field", map[string]any{"event": "page_view", "field_name": "user_id"})
	require.False(t, isErr, text)
	assert.Equal(t, "user_id", out["field_name"])
	assert.Equal(t, "NUMBER", out["type"])
	assert.Equal(t, "user id", out["description"])
	assert.Equal(t, true, out["required"])
	assert.Equal(t, []any{"user_name", "session_id"}, out["related_fields"])

	out, _, isErr = call(t, cs, "explain_field", map[string]any{"event": "page_view", "field_name": "page", "show_enum": false})
	require.False(t, isErr)
	assert.NotContains(t, out, "enum_values")

	out, _, isErr = call(t, cs, "explain_field", map[string]any{"event": "page_view", "field_name": "session_id"})
	require.False(t, isErr)
	assert.Equal(t, "No description", out["description"])

	out, _, isErr = call(t, cs, "explain_field", map[string]any{"event": "page_view", "field_name": "missing"})
	assert.True(t, isErr)
	assert.Contains(t, out["error"], eventapi.ErrFieldNotFound.Error())
}

func TestCompareEvents(t *testing.T) {
	cs, _, _ := newEventSession(t)

	out, text, isErr := call(t, cs, "compare_events", map[string]any{"event1": "page_view", "event2": "click"})
	require.False(t, isErr, text)
	assert.Equal(t, "page_view", out["event1"])
	assert.Equal(t, "click", out["event2"])
	assert.Equal(t, []any{"user_id"}, out["common_fields"])
	assert.Equal(t, []any{"button"}, out["only_in_event2"])
	diffs := out["type_differences"].([]any)
	require.Len(t, diffs, 1)
	assert.Equal(t, map[string]any{"field": "user_id", "event1_type": "NUMBER", "event2_type": "STRING"}, diffs[0])
}

func TestFindFieldInCode_MissingRoot(t *testing.T) {
	cs, _, _ := newEventSession(t)

	out, _, isErr := call(t, cs, "find_field_in_code", map[string]any{
		"field_name":   "user_id",
		"project_path": "/definitely/not/here",
	})
	assert.True(t, isErr)
	assert.Contains(t, out["error"], "does not exist")
}

func TestResolveEventName(t *testing.T) {
	obj := mustObject(t, `{"event":"from_payload"}`)
	assert.Equal(t, "explicit", ResolveEventName("explicit", obj))
	assert.Equal(t, "from_payload", ResolveEventName("", obj))
	assert.Equal(t, "", ResolveEventName("", mustObject(t, `{"event":null}`)))
	assert.Equal(t, "", ResolveEventName("", mustObject(t, `{}`)))
}

func TestAnalyzePayload_NoDefinitions(t *testing.T) {
	_, err := AnalyzePayload(context.Background(), fakeSource{}, metrics.New(), `{"event":"x"}`, "", false)
	var apiErr *eventapi.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func mustObject(t *testing.T, raw string) *payload.Object {
	t.Helper()
	v, err := payload.Parse([]byte(raw))
	require.NoError(t, err)
	obj, ok := v.AsObject()
	require.True(t, ok)
	return obj
}
