// internal/payload/value.go
package payload

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	json "github.com/goccy/go-json"
)

// Kind
// ------------------------------------------------------------
// 트래킹 payload 안에 등장할 수 있는 JSON 값의 종류.
// reflection 대신 명시적인 tagged union 으로 표현한다.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// Value
// ------------------------------------------------------------
// 디코딩된 JSON 값 하나.
//   - zero value 는 null 이다.
//   - number 는 원본 literal 을 그대로 보관한다 (재직렬화 시 손실 방지).
//   - object 는 key 순서를 보존하는 *Object 로 보관한다.
type Value struct {
	kind Kind
	b    bool
	num  string
	str  string
	list []Value
	obj  *Object
}

func Null() Value { return Value{} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number 는 JSON number literal 을 그대로 받는다. (예: "1", "-0.5", "1e3")
func Number(literal string) Value { return Value{kind: KindNumber, num: literal} }

func Float(f float64) Value {
	return Value{kind: KindNumber, num: strconv.FormatFloat(f, 'g', -1, 64)}
}

func Int(n int64) Value { return Value{kind: KindNumber, num: strconv.FormatInt(n, 10)} }

func String(s string) Value { return Value{kind: KindString, str: s} }

func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, list: items}
}

func ObjectValue(o *Object) Value {
	if o == nil {
		o = NewObject()
	}
	return Value{kind: KindObject, obj: o}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsFloat 는 number 값을 float64 로 돌려준다.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.num, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (v Value) Literal() string { return v.num }

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

func (v Value) Items() []Value { return v.list }

func (v Value) AsObject() (*Object, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Text
// ------------------------------------------------------------
// 값의 문자열 표현. enum 검증과 사람이 읽는 출력에 사용한다.
//   - string: 그대로
//   - number: 정규화된 10진 표기 (1.0 → "1")
//   - bool:   "true" / "false"
//   - null:   "null"
//   - list / object: compact JSON
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindString:
		return v.str
	case KindNumber:
		if f, ok := v.AsFloat(); ok {
			return numberText(f)
		}
		return v.num
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(data)
}

func numberText(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	abs := math.Abs(f)
	if abs != 0 && (abs >= 1e21 || abs < 1e-6) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Equal 은 두 값이 같은 JSON 을 나타내는지 비교한다.
// number 는 수치로, object 는 key 순서와 무관하게 비교한다.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.str == o.str
	case KindNumber:
		a, ok1 := v.AsFloat()
		b, ok2 := o.AsFloat()
		if ok1 && ok2 {
			return a == b
		}
		return v.num == o.num
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindObject:
		return v.obj.Equal(o.obj)
	}
	return false
}

func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Value) writeJSON(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		buf.WriteString(v.num)
	case KindString:
		s, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(s)
	case KindList:
		buf.WriteByte('[')
		for i, it := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		return v.obj.writeJSON(buf)
	}
	return nil
}

// Object
// ------------------------------------------------------------
// key 삽입 순서를 보존하는 JSON object.
// 트래킹 payload / 필드 정의 모두 "들어온 순서대로" 순회해야
// 결과(unknown_fields, common_fields 등)의 순서가 결정적이 된다.
//
// 같은 key 가 다시 Set 되면 위치는 처음 것을 유지하고 값만 교체한다.
type Object struct {
	keys []string
	vals map[string]Value
}

func NewObject() *Object {
	return &Object{vals: make(map[string]Value)}
}

func (o *Object) Set(key string, v Value) {
	if o.vals == nil {
		o.vals = make(map[string]Value)
	}
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	v, ok := o.vals[key]
	return v, ok
}

func (o *Object) Has(key string) bool {
	_, ok := o.Get(key)
	return ok
}

func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys 는 삽입 순서대로 key 복사본을 반환한다.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Range 는 삽입 순서대로 순회한다. fn 이 false 를 반환하면 중단.
func (o *Object) Range(fn func(key string, v Value) bool) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		if !fn(k, o.vals[k]) {
			return
		}
	}
}

func (o *Object) Equal(other *Object) bool {
	if o.Len() != other.Len() {
		return false
	}
	eq := true
	o.Range(func(k string, v Value) bool {
		ov, ok := other.Get(k)
		if !ok || !v.Equal(ov) {
			eq = false
		}
		return eq
	})
	return eq
}

func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := o.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *Object) UnmarshalJSON(data []byte) error {
	v, err := Parse(data)
	if err != nil {
		return err
	}
	obj, ok := v.AsObject()
	if !ok {
		return fmt.Errorf("payload: expected JSON object, got %s", v.Kind())
	}
	*o = *obj
	return nil
}

func (o *Object) writeJSON(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	var err error
	i := 0
	o.Range(func(k string, v Value) bool {
		if i > 0 {
			buf.WriteByte(',')
		}
		i++
		var key []byte
		if key, err = json.Marshal(k); err != nil {
			return false
		}
		buf.Write(key)
		buf.WriteByte(':')
		err = v.writeJSON(buf)
		return err == nil
	})
	if err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}
