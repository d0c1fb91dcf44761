// internal/typecheck/enum.go
package typecheck

import (
	"sort"
	"strconv"
	"strings"

	"github.com/upjiang/mcptools/internal/payload"
)

// EnumValues
// ------------------------------------------------------------
// 필드 정의의 trans 문자열("0:unknown,1:success")을 파싱한 key → label 목록.
// 선언 순서를 유지한다. 비어 있으면 "enum 제약 없음" 을 뜻한다.
type EnumValues struct {
	obj *payload.Object
}

// ParseEnumSpec 은 best-effort 파서다. 에러를 반환하지 않는다.
//   - ',' 로 나누고 각 항목은 첫 ':' 기준으로 key / label 분리
//   - ':' 가 없거나 key / label 이 비면 그 항목만 건너뜀
//   - '{' 로 시작하는 JSON object 도 key → label 로 받아준다
func ParseEnumSpec(spec string) EnumValues {
	obj := payload.NewObject()
	trimmed := strings.TrimSpace(spec)
	if trimmed == "" {
		return EnumValues{obj: obj}
	}

	if strings.HasPrefix(trimmed, "{") {
		if v, err := payload.Parse([]byte(trimmed)); err == nil {
			if m, ok := v.AsObject(); ok {
				m.Range(func(k string, label payload.Value) bool {
					if k = strings.TrimSpace(k); k != "" {
						obj.Set(k, payload.String(label.Text()))
					}
					return true
				})
				return EnumValues{obj: obj}
			}
		}
	}

	for _, item := range strings.Split(trimmed, ",") {
		key, label, ok := strings.Cut(item, ":")
		if !ok {
			continue
		}
		key, label = strings.TrimSpace(key), strings.TrimSpace(label)
		if key == "" || label == "" {
			continue
		}
		obj.Set(key, payload.String(label))
	}
	return EnumValues{obj: obj}
}

func (e EnumValues) Len() int { return e.obj.Len() }

func (e EnumValues) Empty() bool { return e.obj.Len() == 0 }

// Label 은 key 에 해당하는 설명을 돌려준다.
func (e EnumValues) Label(key string) (string, bool) {
	v, ok := e.obj.Get(key)
	if !ok {
		return "", false
	}
	return v.Text(), true
}

// Object 는 JSON 직렬화용 ordered object. (nil 일 수 있음)
func (e EnumValues) Object() *payload.Object { return e.obj }

// SortedKeys: 정수 key 는 숫자 순으로 먼저, 나머지는 사전 순.
func (e EnumValues) SortedKeys() []string {
	keys := e.obj.Keys()
	sort.SliceStable(keys, func(i, j int) bool {
		a, errA := strconv.ParseInt(keys[i], 10, 64)
		b, errB := strconv.ParseInt(keys[j], 10, 64)
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return keys[i] < keys[j]
	})
	if keys == nil {
		keys = []string{}
	}
	return keys
}

// ValidateEnum: 제약이 없으면 항상 true, 있으면 값의 텍스트 표현이 key 여야 한다.
func ValidateEnum(v payload.Value, e EnumValues) bool {
	if e.Empty() {
		return true
	}
	return e.obj.Has(v.Text())
}
