package payload

import (
	"encoding/base64"
	"net/url"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() Value {
	obj := NewObject()
	obj.Set("event", String("page_view"))
	obj.Set("uid", Int(1001))
	obj.Set("ratio", Float(0.25))
	obj.Set("flag", Bool(true))
	obj.Set("tags", List(String("a"), String("b")))
	inner := NewObject()
	inner.Set("w", Int(1920))
	inner.Set("h", Int(1080))
	obj.Set("screen", ObjectValue(inner))
	obj.Set("ref", Null())
	return ObjectValue(obj)
}

func TestDecode_JSONRoundTrip(t *testing.T) {
	v := sampleEvent()
	data, err := v.MarshalJSON()
	require.NoError(t, err)

	got, err := Decode(string(data))
	require.NoError(t, err)
	assert.True(t, v.Equal(got), "decoded %s", got.Text())
}

func TestDecode_Base64RoundTrip(t *testing.T) {
	v := sampleEvent()
	enc, err := Encode(v)
	require.NoError(t, err)

	got, err := Decode(enc)
	require.NoError(t, err)
	assert.True(t, v.Equal(got))
}

func TestDecode_JSONBeforeBase64(t *testing.T) {
	// "1234" 는 base64 문법도 만족하지만 JSON number 로 읽혀야 한다.
	got, err := DecodeString("1234")
	require.NoError(t, err)
	require.Equal(t, KindNumber, got.Kind())
	assert.Equal(t, "1234", got.Text())
}

func TestDecode_URLEncoded(t *testing.T) {
	got, err := DecodeString(url.QueryEscape(`{"event":"click","n":1}`))
	require.NoError(t, err)
	obj, ok := got.AsObject()
	require.True(t, ok)
	ev, _ := obj.Get("event")
	assert.Equal(t, "click", ev.Text())
}

func TestDecode_URLEncodedBase64(t *testing.T) {
	raw := base64.StdEncoding.EncodeToString([]byte(`{"a":1}`))
	require.Contains(t, raw, "=")

	got, err := DecodeString(url.QueryEscape(raw))
	require.NoError(t, err)
	obj, ok := got.AsObject()
	require.True(t, ok)
	a, ok := obj.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", a.Text())
}

func TestDecode_SingleQuotedDict(t *testing.T) {
	got, err := DecodeString(`{'event': 'login', 'ok': 1}`)
	require.NoError(t, err)
	obj, ok := got.AsObject()
	require.True(t, ok)
	assert.Equal(t, []string{"event", "ok"}, obj.Keys())
}

func TestDecode_PreservesKeyOrder(t *testing.T) {
	got, err := DecodeString(`{"z":1,"a":2,"m":{"y":true,"b":false},"a":3}`)
	require.NoError(t, err)
	obj, _ := got.AsObject()
	assert.Equal(t, []string{"z", "a", "m"}, obj.Keys())

	a, _ := obj.Get("a")
	assert.Equal(t, "3", a.Text())

	m, _ := obj.Get("m")
	inner, ok := m.AsObject()
	require.True(t, ok)
	assert.Equal(t, []string{"y", "b"}, inner.Keys())

	data, err := got.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":3,"m":{"y":true,"b":false}}`, string(data))
}

func TestDecode_StructuredInput(t *testing.T) {
	v := sampleEvent()
	got, err := Decode(v)
	require.NoError(t, err)
	assert.True(t, v.Equal(got))

	obj, _ := v.AsObject()
	got, err = Decode(obj)
	require.NoError(t, err)
	assert.True(t, v.Equal(got))

	got, err = Decode(map[string]any{"b": 2.0, "a": "x", "c": []any{true, nil}})
	require.NoError(t, err)
	m, ok := got.AsObject()
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, m.Keys())
}

func TestDecode_RawMessage(t *testing.T) {
	got, err := Decode(json.RawMessage(`{"zeta":1,"alpha":2,"id":9007199254740993}`))
	require.NoError(t, err)
	obj, ok := got.AsObject()
	require.True(t, ok)
	assert.Equal(t, []string{"zeta", "alpha", "id"}, obj.Keys())
	id, _ := obj.Get("id")
	assert.Equal(t, "9007199254740993", id.Literal())

	// JSON 문자열이면 그 내용을 다시 디코딩한다.
	b64 := base64.StdEncoding.EncodeToString([]byte(`{"b":1,"a":2}`))
	got, err = Decode(json.RawMessage(`"` + b64 + `"`))
	require.NoError(t, err)
	obj, ok = got.AsObject()
	require.True(t, ok)
	assert.Equal(t, []string{"b", "a"}, obj.Keys())

	_, err = Decode(json.RawMessage(`{broken`))
	assert.ErrorIs(t, err, ErrUndecodableInput)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  error
	}{
		{"nil", nil, ErrInvalidInputKind},
		{"int", 42, ErrInvalidInputKind},
		{"bool", true, ErrInvalidInputKind},
		{"nil object", (*Object)(nil), ErrInvalidInputKind},
		{"plain text", "hello world", ErrUndecodableInput},
		{"base64 of non json", "abcd", ErrUndecodableInput},
		{"bad escape", "%zz", ErrUndecodableInput},
		{"empty", "", ErrUndecodableInput},
		{"broken quotes", "{'a': }", ErrUndecodableInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValue_Text(t *testing.T) {
	assert.Equal(t, "null", Null().Text())
	assert.Equal(t, "true", Bool(true).Text())
	assert.Equal(t, "1", Number("1.0").Text())
	assert.Equal(t, "0.5", Number("5e-1").Text())
	assert.Equal(t, "abc", String("abc").Text())
	assert.Equal(t, `[1,"x"]`, List(Int(1), String("x")).Text())
}

func TestObject_UnmarshalRejectsNonObject(t *testing.T) {
	var o Object
	require.NoError(t, o.UnmarshalJSON([]byte(`{"k":"v"}`)))
	assert.Equal(t, 1, o.Len())

	assert.Error(t, o.UnmarshalJSON([]byte(`[1,2]`)))
}
