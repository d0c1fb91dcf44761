package typecheck

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/upjiang/mcptools/internal/payload"
)

func sampleOf(c Category) payload.Value {
	switch c {
	case Number:
		return payload.Int(7)
	case String:
		return payload.String("x")
	case Bool:
		return payload.Bool(false)
	case List:
		return payload.List(payload.Int(1))
	case Object:
		return payload.ObjectValue(payload.NewObject())
	}
	return payload.Null()
}

func TestInfer(t *testing.T) {
	for _, c := range []Category{Number, String, Bool, List, Object, Null} {
		assert.Equal(t, c, Infer(sampleOf(c)), c)
	}
}

func TestMatches_Reflexive(t *testing.T) {
	for _, c := range []Category{Number, String, Bool, List, Object} {
		v := sampleOf(c)
		assert.True(t, Matches(c, Infer(v), v), c)
	}
}

func TestMatches_StringAcceptsEverything(t *testing.T) {
	for _, c := range []Category{Number, String, Bool, List, Object} {
		v := sampleOf(c)
		assert.True(t, Matches(String, Infer(v), v), c)
	}
}

func TestMatches_NullRejected(t *testing.T) {
	for _, c := range []Category{Number, Bool, List, Object} {
		assert.False(t, Matches(c, Null, payload.Null()), c)
	}
}

func TestMatches_ImplicitConversions(t *testing.T) {
	tests := []struct {
		name     string
		expected Category
		value    payload.Value
		want     bool
	}{
		{"numeric string", Number, payload.String("12.5"), true},
		{"padded numeric string", Number, payload.String(" 3 "), true},
		{"non numeric string", Number, payload.String("abc"), false},
		{"empty string as number", Number, payload.String(""), false},
		{"bool string 1", Bool, payload.String("1"), true},
		{"bool string TRUE", Bool, payload.String("TRUE"), true},
		{"bool string yes", Bool, payload.String("yes"), false},
		{"bool number 0", Bool, payload.Int(0), true},
		{"bool number 1.0", Bool, payload.Number("1.0"), true},
		{"bool number 2", Bool, payload.Int(2), false},
		{"list from string", List, payload.String("[1]"), false},
		{"object from list", Object, payload.List(), false},
		{"number from bool", Number, payload.Bool(true), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.expected, Infer(tt.value), tt.value))
		})
	}
}

func TestMapDeclared(t *testing.T) {
	tests := map[string]Category{
		"NUMBER": Number, "int": Number, "Float": Number,
		"string": String,
		"BOOL": Bool, "boolean": Bool,
		"list": List, "ARRAY": List,
		"object": Object, "json": Object,
		"date": Unknown, "": Unknown,
	}
	for name, want := range tests {
		assert.Equal(t, want, MapDeclared(name), name)
	}
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "number", Label(Number))
	assert.Equal(t, "boolean", Label(Bool))
	assert.Equal(t, "array", Label(List))
	assert.Equal(t, "unknown", Label(Unknown))
}
