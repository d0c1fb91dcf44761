package typecheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upjiang/mcptools/internal/payload"
)

func TestParseEnumSpec(t *testing.T) {
	e := ParseEnumSpec("0:unknown, 1 : success ,2:failure")
	require.Equal(t, 3, e.Len())
	label, ok := e.Label("1")
	require.True(t, ok)
	assert.Equal(t, "success", label)
	assert.Equal(t, []string{"0", "1", "2"}, e.Object().Keys())
}

func TestParseEnumSpec_SkipsMalformed(t *testing.T) {
	e := ParseEnumSpec("a:apple,broken,:nokey,b:,c:cat:extra")
	assert.Equal(t, []string{"a", "c"}, e.Object().Keys())

	label, _ := e.Label("c")
	assert.Equal(t, "cat:extra", label)
}

func TestParseEnumSpec_Empty(t *testing.T) {
	assert.True(t, ParseEnumSpec("").Empty())
	assert.True(t, ParseEnumSpec("   ").Empty())
	assert.True(t, ParseEnumSpec("nothing here").Empty())
}

func TestParseEnumSpec_JSONObject(t *testing.T) {
	e := ParseEnumSpec(`{"1":"on","0":"off"}`)
	assert.Equal(t, []string{"1", "0"}, e.Object().Keys())
	assert.Equal(t, []string{"0", "1"}, e.SortedKeys())
}

func TestSortedKeys(t *testing.T) {
	e := ParseEnumSpec("10:ten,b:bee,2:two,a:ay,-1:neg")
	assert.Equal(t, []string{"-1", "2", "10", "a", "b"}, e.SortedKeys())
	assert.Equal(t, []string{}, ParseEnumSpec("").SortedKeys())
}

func TestValidateEnum(t *testing.T) {
	e := ParseEnumSpec("0:unknown,1:success,2:failure")

	assert.True(t, ValidateEnum(payload.Int(1), e))
	assert.True(t, ValidateEnum(payload.String("2"), e))
	assert.True(t, ValidateEnum(payload.Number("1.0"), e))
	assert.False(t, ValidateEnum(payload.Int(3), e))
	assert.False(t, ValidateEnum(payload.Bool(true), e))
}

func TestValidateEnum_NoConstraint(t *testing.T) {
	for _, v := range []payload.Value{payload.Int(99), payload.String("anything"), payload.Null()} {
		assert.True(t, ValidateEnum(v, ParseEnumSpec("")))
		assert.True(t, ValidateEnum(v, EnumValues{}))
	}
}
