// internal/payload/decode.go
package payload

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	json "github.com/goccy/go-json"
)

var (
	// ErrInvalidInputKind: 입력이 문자열도 object 도 아닌 경우.
	ErrInvalidInputKind = errors.New("payload: input must be a string or an object")

	// ErrUndecodableInput: 모든 디코딩 전략이 실패한 경우.
	ErrUndecodableInput = errors.New("payload: not valid JSON, base64 JSON or quoted dict text")

	errInvalidJSON = errors.New("payload: invalid JSON")
)

// Decode
// ------------------------------------------------------------
// 트래킹 payload 를 하나의 Value 로 정규화한다.
//
//   - 이미 구조화된 값(Value, *Object, map[string]any, []any)은 그대로 반환
//   - string / []byte 는 DecodeString 규칙으로 해석
//   - json.RawMessage 는 wire 에서 받은 JSON 값 그대로다.
//     JSON 문자열이면 그 내용을 DecodeString 으로, 아니면 순서를 보존해 파싱한 값을 쓴다
//   - 그 외 타입은 ErrInvalidInputKind
//
// map[string]any 는 순서 정보가 없으므로 key 를 정렬해서 Object 로 만든다.
func Decode(input any) (Value, error) {
	switch in := input.(type) {
	case Value:
		return in, nil
	case *Object:
		if in == nil {
			return Value{}, ErrInvalidInputKind
		}
		return ObjectValue(in), nil
	case map[string]any:
		return FromInterface(in)
	case []any:
		return FromInterface(in)
	case string:
		return DecodeString(in)
	case []byte:
		return DecodeString(string(in))
	case json.RawMessage:
		return decodeRaw(in)
	}
	return Value{}, ErrInvalidInputKind
}

func decodeRaw(raw json.RawMessage) (Value, error) {
	v, err := Parse(raw)
	if err != nil {
		return Value{}, ErrUndecodableInput
	}
	if s, ok := v.AsString(); ok {
		return DecodeString(s)
	}
	return v, nil
}

// DecodeString
// ------------------------------------------------------------
// 문자열 payload 를 다음 순서로 시도하고, 처음 성공한 결과를 반환한다.
//
//  1. percent-decoding (%XX). 결과가 달라졌으면 이후 단계는 디코딩된 문자열 사용.
//     잘못된 escape / UTF-8 은 실패로 보지 않고 원본을 그대로 쓴다.
//  2. JSON 파싱
//  3. Base64 문법에 맞는 경우에만: Base64 → UTF-8 → JSON
//  4. 작은따옴표가 있으면 전부 큰따옴표로 바꾼 뒤 JSON (python dict literal 대응)
//  5. 전부 실패 → ErrUndecodableInput
//
// JSON 을 Base64 보다 먼저 시도해야 "1234" 같은 평범한 JSON 이
// Base64 로 오인되지 않는다.
func DecodeString(s string) (Value, error) {
	text := s
	if decoded, ok := percentDecode(text); ok {
		text = decoded
	}

	if v, err := Parse([]byte(text)); err == nil {
		return v, nil
	}

	if looksLikeBase64(text) {
		if raw, err := base64.StdEncoding.DecodeString(text); err == nil {
			utf := strings.ToValidUTF8(string(raw), "�")
			if v, err := Parse([]byte(utf)); err == nil {
				return v, nil
			}
		}
	}

	// 값 안에 apostrophe 가 있으면 깨질 수 있다 (best-effort).
	if strings.Contains(text, "'") {
		if v, err := Parse([]byte(strings.ReplaceAll(text, "'", `"`))); err == nil {
			return v, nil
		}
	}

	return Value{}, ErrUndecodableInput
}

// Encode 는 Value 를 JSON 으로 직렬화한 뒤 Base64 로 감싼다.
// 비콘이 보내는 형태를 재현할 때 사용한다.
func Encode(v Value) (string, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func percentDecode(s string) (string, bool) {
	if !strings.Contains(s, "%") {
		return s, false
	}
	out, err := url.PathUnescape(s)
	if err != nil || !utf8.ValidString(out) || out == s {
		return s, false
	}
	return out, true
}

// looksLikeBase64: [A-Za-z0-9+/]* + 최대 2개의 '=' padding, 길이는 4의 배수.
func looksLikeBase64(s string) bool {
	if len(s)%4 != 0 {
		return false
	}
	body := strings.TrimRight(s, "=")
	if len(s)-len(body) > 2 {
		return false
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '+', c == '/':
		default:
			return false
		}
	}
	return true
}

// Parse
// ------------------------------------------------------------
// JSON 텍스트 하나를 순서 보존 Value 로 파싱한다.
// 문법 검사는 json.Valid 로 먼저 끝내고, 이후 go-json Decoder 의
// Token 스트림을 따라가며 Object / List 를 조립한다.
func Parse(data []byte) (Value, error) {
	if len(bytes.TrimSpace(data)) == 0 || !json.Valid(data) {
		return Value{}, errInvalidJSON
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return readValue(dec)
}

func readValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewObject()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return Value{}, fmt.Errorf("payload: unexpected object key token %v", kt)
				}
				v, err := readValue(dec)
				if err != nil {
					return Value{}, err
				}
				obj.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return ObjectValue(obj), nil
		case '[':
			items := []Value{}
			for dec.More() {
				v, err := readValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, v)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return List(items...), nil
		}
		return Value{}, fmt.Errorf("payload: unexpected delimiter %v", t)
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(string(t)), nil
	case float64:
		return Float(t), nil
	case nil:
		return Null(), nil
	}
	return Value{}, fmt.Errorf("payload: unexpected token %T", tok)
}

// FromInterface 는 encoding/json 스타일의 plain Go 값(map/slice/float64...)을
// Value 로 변환한다. 표현할 수 없는 타입이면 ErrInvalidInputKind.
func FromInterface(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Number(string(t)), nil
	case float64:
		return Float(t), nil
	case float32:
		return Float(float64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case []any:
		items := make([]Value, 0, len(t))
		for _, it := range t {
			v, err := FromInterface(it)
			if err != nil {
				return Value{}, err
			}
			items = append(items, v)
		}
		return List(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := NewObject()
		for _, k := range keys {
			v, err := FromInterface(t[k])
			if err != nil {
				return Value{}, err
			}
			obj.Set(k, v)
		}
		return ObjectValue(obj), nil
	}
	return Value{}, ErrInvalidInputKind
}
