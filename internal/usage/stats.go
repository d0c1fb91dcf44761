// internal/usage/stats.go
package usage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FormatTokens: 1,234,567 → "1.2M", 3,400 → "3.4K", 그 외는 그대로.
func FormatTokens(n int64) string {
	switch {
	case n >= 1_000_000:
		return strconv.FormatFloat(float64(n)/1_000_000, 'f', 1, 64) + "M"
	case n >= 1_000:
		return strconv.FormatFloat(float64(n)/1_000, 'f', 1, 64) + "K"
	}
	return strconv.FormatInt(n, 10)
}

// FormatCost: 1.234 → "$1.23"
func FormatCost(c float64) string {
	return fmt.Sprintf("$%.2f", c)
}

// FormatCount: 1234567 → "1,234,567"
func FormatCount(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// SortByCost 는 비용 내림차순으로 정렬한 복사본을 돌려준다.
func SortByCost(stats []KeyStats) []KeyStats {
	out := make([]KeyStats, len(stats))
	copy(out, stats)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Stats.TotalCost > out[j].Stats.TotalCost })
	return out
}

// FindUser 는 name 또는 account 에 query 가 포함된(대소문자 무시) 첫 항목을 찾는다.
func FindUser(stats []KeyStats, query string) (KeyStats, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	for _, s := range stats {
		if strings.Contains(strings.ToLower(s.Name), q) || strings.Contains(strings.ToLower(s.Account), q) {
			return s, true
		}
	}
	return KeyStats{}, false
}

// TopUsers: 비용 상위 limit 명.
func TopUsers(stats []KeyStats, limit int) []KeyStats {
	sorted := SortByCost(stats)
	if limit < 0 {
		limit = 0
	}
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// Totals 는 성공한 key 만 합산한다.
func Totals(stats []KeyStats) Aggregate {
	var a Aggregate
	for _, s := range stats {
		if !s.Success {
			continue
		}
		a.Requests += s.Stats.Requests
		a.AllTokens += s.Stats.AllTokens
		a.InputTokens += s.Stats.InputTokens
		a.TotalCost += s.Stats.TotalCost
	}
	return a
}

// Anomalies: 성공한 key 중 비용이 limit 을 넘은 항목.
func Anomalies(stats []KeyStats, limit float64) []KeyStats {
	out := []KeyStats{}
	for _, s := range stats {
		if s.Success && s.Stats.TotalCost > limit {
			out = append(out, s)
		}
	}
	return out
}

// UsagePercent: cost / limit 을 소수 1자리 퍼센트 문자열로. limit 이 0 이하면 "N/A".
func UsagePercent(cost, limit float64) string {
	if limit <= 0 {
		return "N/A"
	}
	return strconv.FormatFloat(cost/limit*100, 'f', 1, 64) + "%"
}

// Comparison: 두 사용자의 차이. 퍼센트는 user2 기준 (user2 값이 0 이면 0).
type Comparison struct {
	User1               KeyStats
	User2               KeyStats
	CostDiff            float64
	CostDiffPercent     float64
	RequestsDiff        int64
	RequestsDiffPercent float64
	TokensDiff          int64
	TokensDiffPercent   float64
}

func CompareUsers(u1, u2 KeyStats) Comparison {
	c := Comparison{
		User1:        u1,
		User2:        u2,
		CostDiff:     u1.Stats.TotalCost - u2.Stats.TotalCost,
		RequestsDiff: u1.Stats.Requests - u2.Stats.Requests,
		TokensDiff:   u1.Stats.AllTokens - u2.Stats.AllTokens,
	}
	if u2.Stats.TotalCost > 0 {
		c.CostDiffPercent = c.CostDiff / u2.Stats.TotalCost * 100
	}
	if u2.Stats.Requests > 0 {
		c.RequestsDiffPercent = float64(c.RequestsDiff) / float64(u2.Stats.Requests) * 100
	}
	if u2.Stats.AllTokens > 0 {
		c.TokensDiffPercent = float64(c.TokensDiff) / float64(u2.Stats.AllTokens) * 100
	}
	return c
}

// Summary: 기간 통계 요약.
type Summary struct {
	TotalUsers         int
	ActiveUsers        int
	TotalCost          float64
	TotalRequests      int64
	TotalTokens        int64
	AvgCostPerUser     float64
	AvgRequestsPerUser float64
	TopUser            *KeyStats
	Anomalies          []KeyStats
}

// Summarize 는 성공한 key 기준으로 평균을 낸다.
func Summarize(stats []KeyStats, dailyLimit float64) Summary {
	totals := Totals(stats)
	active := 0
	for _, s := range stats {
		if s.Success {
			active++
		}
	}
	sum := Summary{
		TotalUsers:    len(stats),
		ActiveUsers:   active,
		TotalCost:     totals.TotalCost,
		TotalRequests: totals.Requests,
		TotalTokens:   totals.AllTokens,
		Anomalies:     Anomalies(stats, dailyLimit),
	}
	if active > 0 {
		sum.AvgCostPerUser = totals.TotalCost / float64(active)
		sum.AvgRequestsPerUser = float64(totals.Requests) / float64(active)
	}
	if top := TopUsers(stats, 1); len(top) > 0 {
		sum.TopUser = &top[0]
	}
	return sum
}

// WorkdaysBetween 은 start~end (양 끝 포함, 날짜 단위)의 평일 수를 센다.
func WorkdaysBetween(start, end time.Time) int {
	d := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, start.Location())
	n := 0
	for !d.After(last) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n++
		}
		d = d.AddDate(0, 0, 1)
	}
	return n
}
