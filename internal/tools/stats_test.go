package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upjiang/mcptools/internal/usage"
)

type fixedFetcher struct{}

func (fixedFetcher) AllKeyStats(_ context.Context, keys []usage.APIKey, _ usage.Period) []usage.KeyStats {
	table := map[string]usage.KeyStats{
		"cr_a": {Stats: usage.Aggregate{Requests: 100, AllTokens: 2_000_000, InputTokens: 500_000, TotalCost: 50}, Success: true},
		"cr_b": {Stats: usage.Aggregate{Requests: 40, AllTokens: 300_000, InputTokens: 1_000, TotalCost: 10}, Success: true},
		"cr_c": {Error: "HTTP 401: unauthorized"},
	}
	out := make([]usage.KeyStats, len(keys))
	for i, k := range keys {
		s := table[k.APIKey]
		s.Name, s.Account = k.Name, k.Account
		out[i] = s
	}
	return out
}

func newStatsSession(t *testing.T) *mcp.ClientSession {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"api_keys":[
		{"name":"alice","account":"alice@corp","apiKey":"cr_a"},
		{"name":"bob","account":"bob@corp","apiKey":"cr_b"},
		{"name":"carol","account":"carol@corp","apiKey":"cr_c"}
	]}`), 0o600))

	svc := usage.NewService(fixedFetcher{}, path, time.Minute, nil)
	return connect(t, NewStatsServer(svc, 40, Options{Version: "test"}))
}

func TestQueryTodayStats(t *testing.T) {
	cs := newStatsSession(t)

	out, text, isErr := call(t, cs, "query_today_stats", map[string]any{})
	require.False(t, isErr, text)
	assert.Equal(t, "daily", out["period"])

	sum := out["summary"].(map[string]any)
	assert.EqualValues(t, 3, sum["totalUsers"])
	assert.EqualValues(t, 2, sum["activeUsers"])
	assert.Equal(t, "$60.00", sum["totalCost"])
	assert.Equal(t, "140", sum["totalRequests"])
	assert.Equal(t, "2.3M", sum["totalTokens"])

	users := out["users"].([]any)
	require.Len(t, users, 2)
	assert.Equal(t, "125.0%", users[0].(map[string]any)["usagePercent"])
	assert.Equal(t, "25.0%", users[1].(map[string]any)["usagePercent"])

	failed := out["failedUsers"].([]any)
	require.Len(t, failed, 1)
	assert.Equal(t, "carol", failed[0].(map[string]any)["name"])
}

func TestQueryMonthlyStats(t *testing.T) {
	cs := newStatsSession(t)

	out, _, isErr := call(t, cs, "query_monthly_stats", map[string]any{"force_refresh": true})
	require.False(t, isErr)
	assert.Equal(t, "monthly", out["period"])
	users := out["users"].([]any)
	assert.Equal(t, "N/A", users[0].(map[string]any)["usagePercent"])
}

func TestQueryUserStats(t *testing.T) {
	cs := newStatsSession(t)

	out, _, isErr := call(t, cs, "query_user_stats", map[string]any{"user_name": "ALI"})
	require.False(t, isErr)
	user := out["user"].(map[string]any)
	assert.Equal(t, "alice", user["name"])
	assert.Equal(t, "500.0K", user["inputTokens"])

	out, _, isErr = call(t, cs, "query_user_stats", map[string]any{"user_name": "carol"})
	assert.True(t, isErr)
	assert.Contains(t, out["error"], "unauthorized")

	out, _, isErr = call(t, cs, "query_user_stats", map[string]any{"user_name": "zed"})
	assert.True(t, isErr)
	assert.Contains(t, out["error"], "alice, bob, carol")

	_, _, isErr = call(t, cs, "query_user_stats", map[string]any{"user_name": "bob", "period": "weekly"})
	assert.True(t, isErr)
}

func TestQueryTopUsers(t *testing.T) {
	cs := newStatsSession(t)

	out, _, isErr := call(t, cs, "query_top_users", map[string]any{"limit": 1})
	require.False(t, isErr)
	users := out["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].(map[string]any)["name"])
	assert.EqualValues(t, 1, users[0].(map[string]any)["rank"])

	out, _, isErr = call(t, cs, "query_top_users", map[string]any{})
	require.False(t, isErr)
	assert.EqualValues(t, 5, out["topCount"])

	_, _, isErr = call(t, cs, "query_top_users", map[string]any{"limit": 21})
	assert.True(t, isErr)
}

func TestCompareUsers(t *testing.T) {
	cs := newStatsSession(t)

	out, _, isErr := call(t, cs, "compare_users", map[string]any{"user1_name": "alice", "user2_name": "bob"})
	require.False(t, isErr)
	cost := out["differences"].(map[string]any)["cost"].(map[string]any)
	assert.Equal(t, "$40.00", cost["diff"])
	assert.Equal(t, "400.0%", cost["percent"])
	assert.Equal(t, "alice", cost["higher"])

	req := out["differences"].(map[string]any)["requests"].(map[string]any)
	assert.EqualValues(t, 60, req["diff"])
}

func TestDetectAnomalies(t *testing.T) {
	cs := newStatsSession(t)

	out, _, isErr := call(t, cs, "detect_anomalies", map[string]any{})
	require.False(t, isErr)
	assert.Equal(t, "$40.00", out["threshold"])
	assert.EqualValues(t, 1, out["anomalyCount"])
	a := out["anomalies"].([]any)[0].(map[string]any)
	assert.Equal(t, "alice", a["name"])
	assert.Equal(t, "$10.00", a["exceeded"])
	assert.Equal(t, "25.0%", a["exceedPercent"])

	out, _, isErr = call(t, cs, "detect_anomalies", map[string]any{"threshold": 100})
	require.False(t, isErr)
	assert.EqualValues(t, 0, out["anomalyCount"])
	assert.Equal(t, "no anomalies detected", out["message"])

	_, _, isErr = call(t, cs, "detect_anomalies", map[string]any{"threshold": -1})
	assert.True(t, isErr)
}

func TestGenerateReport(t *testing.T) {
	cs := newStatsSession(t)

	out, _, isErr := call(t, cs, "generate_report", map[string]any{"period": "daily"})
	require.False(t, isErr)
	assert.Equal(t, "Usage report (daily)", out["reportTitle"])
	assert.Len(t, out["topUsers"].([]any), 3)
	assert.Len(t, out["anomalies"].([]any), 1)
	assert.Len(t, out["suggestions"].([]any), 2)
	assert.EqualValues(t, 70, out["summary"].(map[string]any)["avgRequestsPerUser"])
}

func TestGetUsageTrend(t *testing.T) {
	cs := newStatsSession(t)

	out, _, isErr := call(t, cs, "get_usage_trend", map[string]any{})
	require.False(t, isErr)
	assert.Equal(t, "$60.00", out["trend"].(map[string]any)["todayCost"])
	assert.Contains(t, out, "today")
	monthly := out["monthly"].(map[string]any)
	assert.EqualValues(t, time.Now().Day(), monthly["daysElapsed"])
}
