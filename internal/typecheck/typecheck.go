// internal/typecheck/typecheck.go
package typecheck

import (
	"math"
	"strconv"
	"strings"

	"github.com/upjiang/mcptools/internal/payload"
)

// Category
// ------------------------------------------------------------
// 필드 값의 타입 분류. NULL / UNKNOWN 은 추론 결과로만 나오고
// 필드 정의에 선언되는 일은 없다.
type Category string

const (
	Number  Category = "NUMBER"
	String  Category = "STRING"
	Bool    Category = "BOOL"
	List    Category = "LIST"
	Object  Category = "OBJECT"
	Null    Category = "NULL"
	Unknown Category = "UNKNOWN"
)

// 선언 타입 이름(대문자) → Category. alias 포함.
var declared = map[string]Category{
	"NUMBER":  Number,
	"INT":     Number,
	"FLOAT":   Number,
	"STRING":  String,
	"BOOL":    Bool,
	"BOOLEAN": Bool,
	"LIST":    List,
	"ARRAY":   List,
	"OBJECT":  Object,
	"JSON":    Object,
}

// Infer 는 디코딩된 값의 실제 타입을 추론한다.
func Infer(v payload.Value) Category {
	switch v.Kind() {
	case payload.KindNull:
		return Null
	case payload.KindBool:
		return Bool
	case payload.KindNumber:
		return Number
	case payload.KindString:
		return String
	case payload.KindList:
		return List
	case payload.KindObject:
		return Object
	}
	return Unknown
}

// Matches
// ------------------------------------------------------------
// 선언 타입(expected)이 실제 값(actual, v)을 허용하는지 판단한다.
// 허용하는 암묵 변환:
//   - NUMBER ← 숫자로 파싱되는 문자열 ("12", " 3.5 ")
//   - BOOL   ← "0" / "1" / "true" / "false" (대소문자 무시)
//   - BOOL   ← 정확히 0 또는 1 인 숫자
//   - STRING ← 모든 값
//
// null 은 어떤 선언 타입도 만족하지 않는다.
func Matches(expected, actual Category, v payload.Value) bool {
	if expected == actual {
		return true
	}
	if actual == Null {
		return false
	}

	switch {
	case expected == Number && actual == String:
		s, _ := v.AsString()
		s = strings.TrimSpace(s)
		if s == "" {
			return false
		}
		f, err := strconv.ParseFloat(s, 64)
		return err == nil && !math.IsInf(f, 0) && !math.IsNaN(f)

	case expected == Bool && actual == String:
		s, _ := v.AsString()
		switch strings.ToLower(s) {
		case "0", "1", "true", "false":
			return true
		}
		return false

	case expected == Bool && actual == Number:
		f, ok := v.AsFloat()
		return ok && (f == 0 || f == 1)

	case expected == String:
		return true
	}
	return false
}

// MapDeclared 는 필드 정의의 type 문자열을 Category 로 바꾼다.
// 모르는 이름은 Unknown.
func MapDeclared(name string) Category {
	if c, ok := declared[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return c
	}
	return Unknown
}

// Label 은 타입 오류 메시지에 쓰는 사람이 읽는 이름.
func Label(c Category) string {
	switch c {
	case Number:
		return "number"
	case String:
		return "string"
	case Bool:
		return "boolean"
	case List:
		return "array"
	case Object:
		return "object"
	case Null:
		return "null"
	}
	return "unknown"
}
