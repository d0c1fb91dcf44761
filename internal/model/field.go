// internal/model/field.go
package model

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/upjiang/mcptools/internal/payload"
)

// FieldDefinition
// ------------------------------------------------------------
// 이벤트 정의 API 가 내려주는 필드 하나의 스키마.
//   - Type:     선언 타입 이름 (NUMBER / STRING / BOOL / LIST / OBJECT + alias)
//   - Desc:     설명
//   - Trans:    enum spec 원문 ("0:unknown,1:success")
//   - Required: 필수 여부
//   - Tips:     API 가 주는 부가 메모 (있으면 그대로 노출)
type FieldDefinition struct {
	Type     string `json:"type"`
	Desc     string `json:"desc"`
	Trans    string `json:"trans,omitempty"`
	Required bool   `json:"required,omitempty"`
	Tips     string `json:"tips,omitempty"`
}

// FieldDefinitions
// ------------------------------------------------------------
// 필드 이름 → FieldDefinition 의 ordered mapping.
// 순회 순서는 upstream JSON 에 등장한 순서이며, 분석 결과의
// 필드 순서가 이 순서를 따른다. nil 은 "선언 필드 0개" 로 취급한다.
type FieldDefinitions struct {
	names []string
	defs  map[string]FieldDefinition
}

func NewFieldDefinitions() *FieldDefinitions {
	return &FieldDefinitions{defs: make(map[string]FieldDefinition)}
}

// Add 는 필드를 추가한다. 같은 이름이면 위치는 유지하고 정의만 바꾼다.
func (f *FieldDefinitions) Add(name string, def FieldDefinition) {
	if f.defs == nil {
		f.defs = make(map[string]FieldDefinition)
	}
	if _, ok := f.defs[name]; !ok {
		f.names = append(f.names, name)
	}
	f.defs[name] = def
}

func (f *FieldDefinitions) Get(name string) (FieldDefinition, bool) {
	if f == nil {
		return FieldDefinition{}, false
	}
	d, ok := f.defs[name]
	return d, ok
}

func (f *FieldDefinitions) Has(name string) bool {
	_, ok := f.Get(name)
	return ok
}

func (f *FieldDefinitions) Len() int {
	if f == nil {
		return 0
	}
	return len(f.names)
}

func (f *FieldDefinitions) Names() []string {
	if f == nil {
		return []string{}
	}
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Range 는 선언 순서대로 순회한다. fn 이 false 를 반환하면 중단.
func (f *FieldDefinitions) Range(fn func(name string, def FieldDefinition) bool) {
	if f == nil {
		return
	}
	for _, n := range f.names {
		if !fn(n, f.defs[n]) {
			return
		}
	}
}

func (f *FieldDefinitions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	var err error
	i := 0
	f.Range(func(name string, def FieldDefinition) bool {
		if i > 0 {
			buf.WriteByte(',')
		}
		i++
		var b []byte
		if b, err = json.Marshal(name); err != nil {
			return false
		}
		buf.Write(b)
		buf.WriteByte(':')
		if b, err = json.Marshal(def); err != nil {
			return false
		}
		buf.Write(b)
		return true
	})
	if err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON
// ------------------------------------------------------------
// upstream 응답은 느슨하게 타입이 섞여 들어오므로 관대하게 읽는다.
//   - required: true / "true" / "1" / 1 모두 true
//   - trans:    문자열이 아니면 (예: object) compact JSON 텍스트로 보관
//   - 정의가 object 가 아닌 항목은 건너뛴다
func (f *FieldDefinitions) UnmarshalJSON(data []byte) error {
	v, err := payload.Parse(data)
	if err != nil {
		return err
	}
	obj, ok := v.AsObject()
	if !ok {
		return fmt.Errorf("field definitions: expected JSON object, got %s", v.Kind())
	}

	out := NewFieldDefinitions()
	obj.Range(func(name string, raw payload.Value) bool {
		def, ok := fieldFromValue(raw)
		if ok {
			out.Add(name, def)
		}
		return true
	})
	*f = *out
	return nil
}

func fieldFromValue(v payload.Value) (FieldDefinition, bool) {
	o, ok := v.AsObject()
	if !ok {
		return FieldDefinition{}, false
	}
	var def FieldDefinition
	if t, ok := o.Get("type"); ok && !t.IsNull() {
		def.Type = t.Text()
	}
	if d, ok := o.Get("desc"); ok && !d.IsNull() {
		def.Desc = d.Text()
	}
	if tr, ok := o.Get("trans"); ok && !tr.IsNull() {
		def.Trans = tr.Text()
	}
	if tp, ok := o.Get("tips"); ok && !tp.IsNull() {
		def.Tips = tp.Text()
	}
	if r, ok := o.Get("required"); ok {
		def.Required = truthy(r)
	}
	return def, true
}

func truthy(v payload.Value) bool {
	switch v.Kind() {
	case payload.KindBool:
		b, _ := v.AsBool()
		return b
	case payload.KindNumber:
		f, _ := v.AsFloat()
		return f != 0
	case payload.KindString:
		s, _ := v.AsString()
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		return err == nil && b
	}
	return false
}
