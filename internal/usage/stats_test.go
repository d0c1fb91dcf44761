package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ks(name string, cost float64, requests, tokens int64, ok bool) KeyStats {
	return KeyStats{
		Name:    name,
		Account: name + "@corp",
		Stats:   Aggregate{Requests: requests, AllTokens: tokens, TotalCost: cost},
		Success: ok,
	}
}

func sampleStats() []KeyStats {
	return []KeyStats{
		ks("alice", 12.5, 100, 1_500_000, true),
		ks("bob", 55.0, 300, 4_000_000, true),
		ks("carol", 0, 0, 0, false),
		ks("dan", 41.0, 200, 2_000, true),
	}
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "1.2M", FormatTokens(1_234_567))
	assert.Equal(t, "3.4K", FormatTokens(3_400))
	assert.Equal(t, "999", FormatTokens(999))
	assert.Equal(t, "$1.23", FormatCost(1.234))
	assert.Equal(t, "$0.00", FormatCost(0))
	assert.Equal(t, "1,234,567", FormatCount(1234567))
	assert.Equal(t, "12", FormatCount(12))
	assert.Equal(t, "-1,000", FormatCount(-1000))
}

func TestSortAndTop(t *testing.T) {
	stats := sampleStats()
	top := TopUsers(stats, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "bob", top[0].Name)
	assert.Equal(t, "dan", top[1].Name)
	assert.Equal(t, "alice", stats[0].Name, "input is not reordered")
	assert.Len(t, TopUsers(stats, 20), 4)
}

func TestFindUser(t *testing.T) {
	u, ok := FindUser(sampleStats(), "BO")
	require.True(t, ok)
	assert.Equal(t, "bob", u.Name)

	u, ok = FindUser(sampleStats(), "dan@")
	require.True(t, ok)
	assert.Equal(t, "dan", u.Name)

	_, ok = FindUser(sampleStats(), "zed")
	assert.False(t, ok)
}

func TestTotalsAndAnomalies(t *testing.T) {
	totals := Totals(sampleStats())
	assert.Equal(t, int64(600), totals.Requests)
	assert.InDelta(t, 108.5, totals.TotalCost, 1e-9)

	anomalies := Anomalies(sampleStats(), 40)
	require.Len(t, anomalies, 2)
	assert.Equal(t, "bob", anomalies[0].Name)
	assert.Equal(t, "dan", anomalies[1].Name)
	assert.Empty(t, Anomalies(sampleStats(), 100))
}

func TestUsagePercent(t *testing.T) {
	assert.Equal(t, "25.0%", UsagePercent(10, 40))
	assert.Equal(t, "137.5%", UsagePercent(55, 40))
	assert.Equal(t, "N/A", UsagePercent(12.5, 0))
}

func TestCompareUsers(t *testing.T) {
	c := CompareUsers(ks("a", 30, 150, 2000, true), ks("b", 20, 100, 0, true))
	assert.InDelta(t, 10, c.CostDiff, 1e-9)
	assert.InDelta(t, 50, c.CostDiffPercent, 1e-9)
	assert.Equal(t, int64(50), c.RequestsDiff)
	assert.InDelta(t, 50, c.RequestsDiffPercent, 1e-9)
	assert.Equal(t, int64(2000), c.TokensDiff)
	assert.Equal(t, 0.0, c.TokensDiffPercent)
}

func TestSummarize(t *testing.T) {
	sum := Summarize(sampleStats(), 40)
	assert.Equal(t, 4, sum.TotalUsers)
	assert.Equal(t, 3, sum.ActiveUsers)
	assert.InDelta(t, 108.5/3, sum.AvgCostPerUser, 1e-9)
	require.NotNil(t, sum.TopUser)
	assert.Equal(t, "bob", sum.TopUser.Name)
	assert.Len(t, sum.Anomalies, 2)

	empty := Summarize(nil, 40)
	assert.Nil(t, empty.TopUser)
	assert.Equal(t, 0.0, empty.AvgCostPerUser)
}

func TestWorkdaysBetween(t *testing.T) {
	// 2025-06-02 (Mon) ~ 2025-06-08 (Sun)
	mon := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	sun := time.Date(2025, 6, 8, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 5, WorkdaysBetween(mon, sun))
	assert.Equal(t, 1, WorkdaysBetween(mon, mon))
	assert.Equal(t, 0, WorkdaysBetween(sun, sun))
	assert.Equal(t, 0, WorkdaysBetween(sun, mon))
}
