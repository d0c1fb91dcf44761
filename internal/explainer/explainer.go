// internal/explainer/explainer.go
package explainer

import (
	"sort"
	"strings"

	"github.com/upjiang/mcptools/internal/model"
	"github.com/upjiang/mcptools/internal/typecheck"
)

const (
	NoDescription = "No description"

	// DefaultMaxRelated: related_fields 기본 개수.
	DefaultMaxRelated = 5
)

// Explain 은 필드 정의 하나를 사람이 읽는 형태로 바꾼다.
// enum 값은 showEnum 이고 spec 이 있을 때만 포함한다.
func Explain(name string, def model.FieldDefinition, showEnum bool) model.Explanation {
	exp := model.Explanation{
		FieldName:   name,
		Type:        def.Type,
		Description: def.Desc,
		Required:    def.Required,
	}
	if exp.Description == "" {
		exp.Description = NoDescription
	}
	if showEnum && def.Trans != "" {
		exp.EnumValues = typecheck.ParseEnumSpec(def.Trans).Object()
	}
	return exp
}

// RelatedFields
// ------------------------------------------------------------
// name 과 이름이 비슷한 필드를 점수 내림차순으로 최대 max 개 돌려준다.
//   - 자기 자신은 제외, 점수 0 은 제외
//   - 동점은 all 의 선언 순서 유지 (stable sort)
//   - max <= 0 이면 빈 목록
func RelatedFields(name string, all *model.FieldDefinitions, max int) []string {
	if max <= 0 {
		return []string{}
	}

	type scored struct {
		field string
		score float64
	}
	var cands []scored
	all.Range(func(other string, _ model.FieldDefinition) bool {
		if other == name {
			return true
		}
		if s := Similarity(name, other); s > 0 {
			cands = append(cands, scored{field: other, score: s})
		}
		return true
	})

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })
	if len(cands) > max {
		cands = cands[:max]
	}

	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.field)
	}
	return out
}

// Similarity
// ------------------------------------------------------------
// 대소문자 무시, rune 단위로 점수를 합산한다.
//   - 한쪽이 다른 쪽을 포함: +5
//   - 공통 prefix 길이 > 2: +길이
//   - 공통 suffix 길이 > 2: +길이
//   - a 에서 뽑은 길이 3 이상의 서로 다른 부분 문자열이 b 에 있으면: +0.5×길이
func Similarity(a, b string) float64 {
	s1 := []rune(strings.ToLower(a))
	s2 := []rune(strings.ToLower(b))
	l1, l2 := string(s1), string(s2)

	var score float64
	if strings.Contains(l1, l2) || strings.Contains(l2, l1) {
		score += 5
	}
	if p := commonPrefix(s1, s2); p > 2 {
		score += float64(p)
	}
	if s := commonSuffix(s1, s2); s > 2 {
		score += float64(s)
	}

	seen := make(map[string]struct{})
	for i := 0; i < len(s1); i++ {
		for j := i + 3; j <= len(s1); j++ {
			sub := string(s1[i:j])
			if _, dup := seen[sub]; dup {
				continue
			}
			seen[sub] = struct{}{}
			if strings.Contains(l2, sub) {
				score += 0.5 * float64(j-i)
			}
		}
	}
	return score
}

func commonPrefix(a, b []rune) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}

func commonSuffix(a, b []rune) int {
	n := 0
	for n < len(a) && n < len(b) && a[len(a)-1-n] == b[len(b)-1-n] {
		n++
	}
	return n
}
