package analyzer

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upjiang/mcptools/internal/model"
	"github.com/upjiang/mcptools/internal/payload"
)

func defsFrom(t *testing.T, raw string) *model.FieldDefinitions {
	t.Helper()
	defs := model.NewFieldDefinitions()
	require.NoError(t, json.Unmarshal([]byte(raw), defs))
	return defs
}

func eventFrom(t *testing.T, raw string) *payload.Object {
	t.Helper()
	v, err := payload.DecodeString(raw)
	require.NoError(t, err)
	obj, ok := v.AsObject()
	require.True(t, ok)
	return obj
}

func TestAnalyze_UnknownFields(t *testing.T) {
	defs := defsFrom(t, `{"a":{"type":"NUMBER"}}`)
	res := Analyze(eventFrom(t, `{"a":1,"b":2}`), defs, false)

	require.Len(t, res.UnknownFields, 1)
	assert.Equal(t, "b", res.UnknownFields[0].Field)
	assert.Equal(t, "2", res.UnknownFields[0].Value.Text())
	assert.Empty(t, res.TypeErrors)
	assert.Nil(t, res.MissingRequiredFields)
}

func TestAnalyze_TypeError(t *testing.T) {
	defs := defsFrom(t, `{"score":{"type":"NUMBER"}}`)
	res := Analyze(eventFrom(t, `{"score":"abc"}`), defs, false)

	require.Len(t, res.TypeErrors, 1)
	te := res.TypeErrors[0]
	assert.Equal(t, "score", te.Field)
	assert.Equal(t, "number", te.Expected)
	assert.Equal(t, "string", te.Actual)
	assert.Equal(t, "abc", te.Value.Text())
}

func TestAnalyze_ImplicitConversion(t *testing.T) {
	defs := defsFrom(t, `{"flag":{"type":"BOOL"},"n":{"type":"int"}}`)
	res := Analyze(eventFrom(t, `{"flag":"1","n":"42"}`), defs, false)
	assert.Empty(t, res.TypeErrors)
	assert.Equal(t, "✅ Data fully conforms to the field definitions", res.Summary)
}

func TestAnalyze_EnumError(t *testing.T) {
	defs := defsFrom(t, `{"status":{"type":"NUMBER","trans":"2:failure,0:unknown,1:success"}}`)

	res := Analyze(eventFrom(t, `{"status":1}`), defs, false)
	assert.Empty(t, res.EnumErrors)

	res = Analyze(eventFrom(t, `{"status":5}`), defs, false)
	require.Len(t, res.EnumErrors, 1)
	assert.Equal(t, []string{"0", "1", "2"}, res.EnumErrors[0].ValidValues)
}

func TestAnalyze_Coverage(t *testing.T) {
	defs := defsFrom(t, `{
		"a":{"type":"NUMBER","required":true},
		"b":{"type":"STRING","required":true},
		"c":{"type":"BOOL"},
		"d":{"type":"LIST","required":true}
	}`)
	res := Analyze(eventFrom(t, `{"a":1,"b":"x","d":null}`), defs, true)

	require.NotNil(t, res.MissingRequiredFields)
	require.Len(t, *res.MissingRequiredFields, 1)
	assert.Equal(t, "d", (*res.MissingRequiredFields)[0].Field)
	assert.Equal(t, "LIST", (*res.MissingRequiredFields)[0].Type)
	assert.Equal(t, 4, res.TotalFields)
	assert.Equal(t, 3, res.AnalyzedFields)
	assert.Equal(t, "75.00%", res.Coverage)
}

func TestAnalyze_CheckRequiredOffSkipsMissing(t *testing.T) {
	defs := defsFrom(t, `{"a":{"type":"NUMBER","required":true}}`)
	res := Analyze(eventFrom(t, `{}`), defs, false)
	assert.Nil(t, res.MissingRequiredFields)
	assert.Equal(t, "100.00%", res.Coverage)
}

func TestAnalyze_NullIsNotTypeChecked(t *testing.T) {
	defs := defsFrom(t, `{"a":{"type":"NUMBER"}}`)
	res := Analyze(eventFrom(t, `{"a":null}`), defs, false)
	assert.Empty(t, res.TypeErrors)
}

func TestAnalyze_NoDefinitions(t *testing.T) {
	res := Analyze(eventFrom(t, `{"event":"open","x":1}`), nil, true)
	assert.Equal(t, 0, res.TotalFields)
	assert.Equal(t, "0.00%", res.Coverage)
	assert.Equal(t, "open", res.Event)
	assert.Len(t, res.UnknownFields, 2)
	require.NotNil(t, res.MissingRequiredFields)
	assert.Empty(t, *res.MissingRequiredFields)
}

func TestAnalyze_Invariants(t *testing.T) {
	defs := defsFrom(t, `{
		"event":{"type":"STRING"},
		"uid":{"type":"NUMBER","required":true},
		"kind":{"type":"STRING","trans":"a:A,b:B"},
		"ok":{"type":"BOOL","required":true}
	}`)
	res := Analyze(eventFrom(t, `{"event":"e","uid":"x","kind":"z","extra":[1],"more":{}}`), defs, true)

	for _, e := range res.TypeErrors {
		assert.True(t, defs.Has(e.Field))
	}
	for _, e := range res.EnumErrors {
		assert.True(t, defs.Has(e.Field))
	}
	for _, m := range *res.MissingRequiredFields {
		assert.True(t, defs.Has(m.Field))
	}
	for _, u := range res.UnknownFields {
		assert.False(t, defs.Has(u.Field))
	}
	assert.Equal(t, []string{"extra", "more"}, []string{res.UnknownFields[0].Field, res.UnknownFields[1].Field})
	assert.Equal(t, "⚠️ Issues found: 1 type errors, 1 enum errors, 2 unknown fields, 1 missing required fields", res.Summary)
}

func TestAnalyze_JSONShape(t *testing.T) {
	defs := defsFrom(t, `{"a":{"type":"NUMBER"}}`)
	data, err := json.Marshal(Analyze(eventFrom(t, `{"a":1}`), defs, false))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"event":"Unknown","total_fields":1,"analyzed_fields":1,
		"type_errors":[],"enum_errors":[],"unknown_fields":[],
		"coverage":"100.00%",
		"summary":"✅ Data fully conforms to the field definitions"
	}`, string(data))
}

func TestCompareEvents(t *testing.T) {
	a := defsFrom(t, `{"x":{"type":"NUMBER"}}`)
	b := defsFrom(t, `{"x":{"type":"STRING"},"y":{"type":"BOOL"}}`)

	res := CompareEvents(a, b)
	assert.Equal(t, []string{"x"}, res.CommonFields)
	assert.Equal(t, []string{}, res.OnlyInEvent1)
	assert.Equal(t, []string{"y"}, res.OnlyInEvent2)
	assert.Equal(t, []model.TypeDifference{{Field: "x", Event1Type: "NUMBER", Event2Type: "STRING"}}, res.TypeDifferences)
}

func TestCompareEvents_RawTypeStrings(t *testing.T) {
	a := defsFrom(t, `{"x":{"type":"INT"},"z":{"type":"string"}}`)
	b := defsFrom(t, `{"z":{"type":"STRING"},"x":{"type":"INT"}}`)

	res := CompareEvents(a, b)
	assert.Equal(t, []string{"x", "z"}, res.CommonFields)
	require.Len(t, res.TypeDifferences, 1)
	assert.Equal(t, "z", res.TypeDifferences[0].Field)
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "⚠️ Issues found: 2 enum errors", Summary(0, 2, 0, 0))
	assert.Equal(t, "⚠️ Issues found: 1 type errors, 3 missing required fields", Summary(1, 0, 0, 3))
}
