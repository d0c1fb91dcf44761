package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/upjiang/mcptools/internal/model"
	"github.com/upjiang/mcptools/internal/usage"
)

// highAvgCostRatio: 평균 비용이 일일 한도의 이 비율을 넘으면 report 에 경고.
const highAvgCostRatio = 0.875

type RefreshInput struct {
	ForceRefresh bool `json:"force_refresh,omitempty" jsonschema:"bypass the cached statistics (default false)"`
}

type UserStatsInput struct {
	UserName string `json:"user_name" jsonschema:"user name or account keyword"`
	Period   string `json:"period,omitempty" jsonschema:"daily (default) or monthly"`
}

type TopUsersInput struct {
	Limit  int    `json:"limit,omitempty" jsonschema:"number of users to return, 1 to 20 (default 5)"`
	Period string `json:"period,omitempty" jsonschema:"daily (default) or monthly"`
}

type CompareUsersInput struct {
	User1Name string `json:"user1_name" jsonschema:"first user name"`
	User2Name string `json:"user2_name" jsonschema:"second user name"`
	Period    string `json:"period,omitempty" jsonschema:"daily (default) or monthly"`
}

type TrendInput struct{}

type AnomaliesInput struct {
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"cost threshold in USD (default: the daily cost limit)"`
	Period    string   `json:"period,omitempty" jsonschema:"daily (default) or monthly"`
}

type ReportInput struct {
	Period string `json:"period,omitempty" jsonschema:"daily (default) or monthly"`
}

type statsTools struct {
	svc        *usage.Service
	dailyLimit float64
}

// NewStatsServer
// ------------------------------------------------------------
// API key 별 사용량 통계 tool 8개를 가진 MCP server.
func NewStatsServer(svc *usage.Service, dailyLimit float64, o Options) *mcp.Server {
	o = o.withDefaults("usage-stats")
	s := mcp.NewServer(&mcp.Implementation{Name: o.Name, Version: o.Version}, nil)
	st := &statsTools{svc: svc, dailyLimit: dailyLimit}

	addTool(s, o, &mcp.Tool{
		Name:        "query_today_stats",
		Description: "Today's usage statistics for every account: cost, requests, tokens.",
	}, st.period(usage.Daily))
	addTool(s, o, &mcp.Tool{
		Name:        "query_monthly_stats",
		Description: "This month's usage statistics for every account: cost, requests, tokens.",
	}, st.period(usage.Monthly))
	addTool(s, o, &mcp.Tool{
		Name:        "query_user_stats",
		Description: "Usage statistics of one user for today or this month.",
	}, st.userStats)
	addTool(s, o, &mcp.Tool{
		Name:        "query_top_users",
		Description: "The N users with the highest cost.",
	}, st.topUsers)
	addTool(s, o, &mcp.Tool{
		Name:        "compare_users",
		Description: "Compare cost, requests and tokens of two users.",
	}, st.compareUsers)
	addTool(s, o, &mcp.Tool{
		Name:        "get_usage_trend",
		Description: "Compare today's cost with this month's daily average.",
	}, st.trend)
	addTool(s, o, &mcp.Tool{
		Name:        "detect_anomalies",
		Description: "Accounts whose cost exceeds a threshold.",
	}, st.anomalies)
	addTool(s, o, &mcp.Tool{
		Name:        "generate_report",
		Description: "Full usage report with suggestions.",
	}, st.report)

	return s
}

// ---------------------------------------------------------------
// 결과 모양
// ---------------------------------------------------------------

type summaryView struct {
	TotalUsers     int    `json:"totalUsers"`
	ActiveUsers    int    `json:"activeUsers"`
	TotalCost      string `json:"totalCost"`
	TotalRequests  string `json:"totalRequests"`
	TotalTokens    string `json:"totalTokens"`
	AvgCostPerUser string `json:"avgCostPerUser"`
}

func newSummaryView(s usage.Summary) summaryView {
	return summaryView{
		TotalUsers:     s.TotalUsers,
		ActiveUsers:    s.ActiveUsers,
		TotalCost:      usage.FormatCost(s.TotalCost),
		TotalRequests:  usage.FormatCount(s.TotalRequests),
		TotalTokens:    usage.FormatTokens(s.TotalTokens),
		AvgCostPerUser: usage.FormatCost(s.AvgCostPerUser),
	}
}

type userView struct {
	Rank         int    `json:"rank,omitempty"`
	Name         string `json:"name"`
	Account      string `json:"account"`
	Cost         string `json:"cost"`
	Requests     int64  `json:"requests"`
	Tokens       string `json:"tokens"`
	InputTokens  string `json:"inputTokens,omitempty"`
	UsagePercent string `json:"usagePercent,omitempty"`
}

type failedView struct {
	Name    string `json:"name"`
	Account string `json:"account"`
	Error   string `json:"error"`
}

func (st *statsTools) usagePercent(p usage.Period, cost float64) string {
	if p != usage.Daily {
		return "N/A"
	}
	return usage.UsagePercent(cost, st.dailyLimit)
}

func (st *statsTools) newUserView(p usage.Period, s usage.KeyStats) userView {
	return userView{
		Name:         s.Name,
		Account:      s.Account,
		Cost:         usage.FormatCost(s.Stats.TotalCost),
		Requests:     s.Stats.Requests,
		Tokens:       usage.FormatTokens(s.Stats.AllTokens),
		UsagePercent: st.usagePercent(p, s.Stats.TotalCost),
	}
}

func availableUsers(stats []usage.KeyStats) string {
	names := make([]string, 0, len(stats))
	for _, s := range stats {
		names = append(names, s.Name)
	}
	return strings.Join(names, ", ")
}

func (st *statsTools) findUser(stats []usage.KeyStats, query string) (usage.KeyStats, error) {
	u, ok := usage.FindUser(stats, query)
	if !ok {
		return usage.KeyStats{}, fmt.Errorf("user %q not found (available: %s)", query, availableUsers(stats))
	}
	return u, nil
}

// ---------------------------------------------------------------
// handlers
// ---------------------------------------------------------------

type periodStatsResult struct {
	Period      string       `json:"period"`
	Timestamp   string       `json:"timestamp"`
	Summary     summaryView  `json:"summary"`
	Users       []userView   `json:"users"`
	FailedUsers []failedView `json:"failedUsers"`
}

func (st *statsTools) period(p usage.Period) handlerFunc[RefreshInput] {
	return func(ctx context.Context, in RefreshInput, inv *model.Invocation) (any, error) {
		stats, err := st.svc.Stats(ctx, p, in.ForceRefresh)
		if err != nil {
			return nil, err
		}
		sum := usage.Summarize(stats, st.dailyLimit)

		res := periodStatsResult{
			Period:      string(p),
			Timestamp:   st.svc.Now().UTC().Format(time.RFC3339),
			Summary:     newSummaryView(sum),
			Users:       []userView{},
			FailedUsers: []failedView{},
		}
		for _, s := range stats {
			if !s.Success {
				res.FailedUsers = append(res.FailedUsers, failedView{Name: s.Name, Account: s.Account, Error: s.Error})
				continue
			}
			res.Users = append(res.Users, st.newUserView(p, s))
		}
		inv.Summary = fmt.Sprintf("%d users, %s", sum.TotalUsers, res.Summary.TotalCost)
		return res, nil
	}
}

type userStatsResult struct {
	Period string   `json:"period"`
	User   userView `json:"user"`
}

func (st *statsTools) userStats(ctx context.Context, in UserStatsInput, inv *model.Invocation) (any, error) {
	p, err := usage.ParsePeriod(in.Period)
	if err != nil {
		return nil, err
	}
	stats, err := st.svc.Stats(ctx, p, false)
	if err != nil {
		return nil, err
	}
	u, err := st.findUser(stats, in.UserName)
	if err != nil {
		return nil, err
	}
	if !u.Success {
		return nil, fmt.Errorf("stats for %s unavailable: %s", u.Name, u.Error)
	}

	v := st.newUserView(p, u)
	v.InputTokens = usage.FormatTokens(u.Stats.InputTokens)
	inv.Summary = u.Name
	return userStatsResult{Period: string(p), User: v}, nil
}

type topUsersResult struct {
	Period   string     `json:"period"`
	TopCount int        `json:"topCount"`
	Users    []userView `json:"users"`
}

func (st *statsTools) topUsers(ctx context.Context, in TopUsersInput, inv *model.Invocation) (any, error) {
	limit := in.Limit
	if limit == 0 {
		limit = 5
	}
	if limit < 1 || limit > 20 {
		return nil, fmt.Errorf("limit must be between 1 and 20, got %d", limit)
	}
	p, err := usage.ParsePeriod(in.Period)
	if err != nil {
		return nil, err
	}
	stats, err := st.svc.Stats(ctx, p, false)
	if err != nil {
		return nil, err
	}

	top := usage.TopUsers(stats, limit)
	res := topUsersResult{Period: string(p), TopCount: limit, Users: make([]userView, 0, len(top))}
	for i, u := range top {
		v := st.newUserView(p, u)
		v.Rank = i + 1
		res.Users = append(res.Users, v)
	}
	inv.Summary = fmt.Sprintf("top %d", len(res.Users))
	return res, nil
}

type diffView struct {
	Diff    any    `json:"diff"`
	Percent string `json:"percent"`
	Higher  string `json:"higher"`
}

type compareResult struct {
	Period      string              `json:"period"`
	User1       userView            `json:"user1"`
	User2       userView            `json:"user2"`
	Differences map[string]diffView `json:"differences"`
}

func percent(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64) + "%"
}

func higher(diff float64, u1, u2 string) string {
	if diff > 0 {
		return u1
	}
	return u2
}

func (st *statsTools) compareUsers(ctx context.Context, in CompareUsersInput, inv *model.Invocation) (any, error) {
	p, err := usage.ParsePeriod(in.Period)
	if err != nil {
		return nil, err
	}
	stats, err := st.svc.Stats(ctx, p, false)
	if err != nil {
		return nil, err
	}
	u1, err := st.findUser(stats, in.User1Name)
	if err != nil {
		return nil, err
	}
	u2, err := st.findUser(stats, in.User2Name)
	if err != nil {
		return nil, err
	}

	c := usage.CompareUsers(u1, u2)
	res := compareResult{
		Period: string(p),
		User1:  st.newUserView(p, u1),
		User2:  st.newUserView(p, u2),
		Differences: map[string]diffView{
			"cost": {
				Diff:    usage.FormatCost(math.Abs(c.CostDiff)),
				Percent: percent(c.CostDiffPercent),
				Higher:  higher(c.CostDiff, u1.Name, u2.Name),
			},
			"requests": {
				Diff:    absInt(c.RequestsDiff),
				Percent: percent(c.RequestsDiffPercent),
				Higher:  higher(float64(c.RequestsDiff), u1.Name, u2.Name),
			},
			"tokens": {
				Diff:    usage.FormatTokens(absInt(c.TokensDiff)),
				Percent: percent(c.TokensDiffPercent),
				Higher:  higher(float64(c.TokensDiff), u1.Name, u2.Name),
			},
		},
	}
	inv.Summary = u1.Name + " vs " + u2.Name
	return res, nil
}

func absInt(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

type trendResult struct {
	Trend struct {
		TodayCost           string `json:"todayCost"`
		MonthlyAvgDailyCost string `json:"monthlyAvgDailyCost"`
		TodayVsAvg          struct {
			Diff    string `json:"diff"`
			Percent string `json:"percent"`
			Status  string `json:"status"`
		} `json:"todayVsAvg"`
	} `json:"trend"`
	Today   periodTotals `json:"today"`
	Monthly periodTotals `json:"monthly"`
}

type periodTotals struct {
	TotalCost       string `json:"totalCost"`
	TotalRequests   int64  `json:"totalRequests"`
	ActiveUsers     int    `json:"activeUsers"`
	AvgCostPerUser  string `json:"avgCostPerUser"`
	DaysElapsed     int    `json:"daysElapsed,omitempty"`
	WorkdaysElapsed int    `json:"workdaysElapsed,omitempty"`
	AvgWorkdayCost  string `json:"avgWorkdayCost,omitempty"`
}

func newPeriodTotals(s usage.Summary) periodTotals {
	return periodTotals{
		TotalCost:      usage.FormatCost(s.TotalCost),
		TotalRequests:  s.TotalRequests,
		ActiveUsers:    s.ActiveUsers,
		AvgCostPerUser: usage.FormatCost(s.AvgCostPerUser),
	}
}

func (st *statsTools) trend(ctx context.Context, _ TrendInput, inv *model.Invocation) (any, error) {
	daily, err := st.svc.Stats(ctx, usage.Daily, false)
	if err != nil {
		return nil, err
	}
	monthly, err := st.svc.Stats(ctx, usage.Monthly, false)
	if err != nil {
		return nil, err
	}
	ds := usage.Summarize(daily, st.dailyLimit)
	ms := usage.Summarize(monthly, st.dailyLimit)

	now := st.svc.Now()
	day := now.Day()
	avgDaily := ms.TotalCost / float64(day)

	var res trendResult
	res.Trend.TodayCost = usage.FormatCost(ds.TotalCost)
	res.Trend.MonthlyAvgDailyCost = usage.FormatCost(avgDaily)
	res.Trend.TodayVsAvg.Diff = usage.FormatCost(math.Abs(ds.TotalCost - avgDaily))
	res.Trend.TodayVsAvg.Percent = "N/A"
	if avgDaily > 0 {
		res.Trend.TodayVsAvg.Percent = percent((ds.TotalCost - avgDaily) / avgDaily * 100)
	}
	res.Trend.TodayVsAvg.Status = "below average"
	if ds.TotalCost > avgDaily {
		res.Trend.TodayVsAvg.Status = "above average"
	}

	res.Today = newPeriodTotals(ds)
	res.Monthly = newPeriodTotals(ms)
	res.Monthly.DaysElapsed = day

	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	if wd := usage.WorkdaysBetween(first, now); wd > 0 {
		res.Monthly.WorkdaysElapsed = wd
		res.Monthly.AvgWorkdayCost = usage.FormatCost(ms.TotalCost / float64(wd))
	}

	inv.Summary = res.Trend.TodayVsAvg.Status
	return res, nil
}

type anomalyView struct {
	Name          string `json:"name"`
	Account       string `json:"account"`
	Cost          string `json:"cost"`
	Exceeded      string `json:"exceeded"`
	ExceedPercent string `json:"exceedPercent"`
	Requests      int64  `json:"requests"`
	Tokens        string `json:"tokens"`
}

type anomaliesResult struct {
	Period       string        `json:"period"`
	Threshold    string        `json:"threshold"`
	AnomalyCount int           `json:"anomalyCount"`
	Anomalies    []anomalyView `json:"anomalies"`
	Message      string        `json:"message"`
}

func (st *statsTools) anomalies(ctx context.Context, in AnomaliesInput, inv *model.Invocation) (any, error) {
	threshold := st.dailyLimit
	if in.Threshold != nil {
		threshold = *in.Threshold
	}
	if threshold < 0 {
		return nil, fmt.Errorf("threshold must be >= 0, got %g", threshold)
	}
	p, err := usage.ParsePeriod(in.Period)
	if err != nil {
		return nil, err
	}
	stats, err := st.svc.Stats(ctx, p, false)
	if err != nil {
		return nil, err
	}

	found := usage.Anomalies(stats, threshold)
	res := anomaliesResult{
		Period:       string(p),
		Threshold:    usage.FormatCost(threshold),
		AnomalyCount: len(found),
		Anomalies:    make([]anomalyView, 0, len(found)),
		Message:      "no anomalies detected",
	}
	for _, u := range found {
		exceed := "N/A"
		if threshold > 0 {
			exceed = percent((u.Stats.TotalCost - threshold) / threshold * 100)
		}
		res.Anomalies = append(res.Anomalies, anomalyView{
			Name:          u.Name,
			Account:       u.Account,
			Cost:          usage.FormatCost(u.Stats.TotalCost),
			Exceeded:      usage.FormatCost(u.Stats.TotalCost - threshold),
			ExceedPercent: exceed,
			Requests:      u.Stats.Requests,
			Tokens:        usage.FormatTokens(u.Stats.AllTokens),
		})
	}
	if len(found) > 0 {
		res.Message = fmt.Sprintf("%d accounts exceeded the threshold", len(found))
	}
	inv.Summary = res.Message
	return res, nil
}

type reportSummary struct {
	summaryView
	AvgRequestsPerUser int64 `json:"avgRequestsPerUser"`
}

type reportResult struct {
	ReportTitle       string        `json:"reportTitle"`
	GeneratedAt       string        `json:"generatedAt"`
	Summary           reportSummary `json:"summary"`
	TopUsers          []userView    `json:"topUsers"`
	Anomalies         []userView    `json:"anomalies"`
	Suggestions       []string      `json:"suggestions"`
	VisualizationTips []string      `json:"visualizationTips"`
}

func (st *statsTools) report(ctx context.Context, in ReportInput, inv *model.Invocation) (any, error) {
	p, err := usage.ParsePeriod(in.Period)
	if err != nil {
		return nil, err
	}
	stats, err := st.svc.Stats(ctx, p, false)
	if err != nil {
		return nil, err
	}

	sum := usage.Summarize(stats, st.dailyLimit)
	top := usage.TopUsers(stats, 3)

	res := reportResult{
		ReportTitle: fmt.Sprintf("Usage report (%s)", p),
		GeneratedAt: st.svc.Now().UTC().Format(time.RFC3339),
		Summary: reportSummary{
			summaryView:        newSummaryView(sum),
			AvgRequestsPerUser: int64(math.Round(sum.AvgRequestsPerUser)),
		},
		TopUsers:    make([]userView, 0, len(top)),
		Anomalies:   make([]userView, 0, len(sum.Anomalies)),
		Suggestions: reportSuggestions(sum, top, st.dailyLimit),
		VisualizationTips: []string{
			"bar chart of cost per user",
			"pie chart of cost share",
			"line chart of daily cost",
		},
	}
	for i, u := range top {
		res.TopUsers = append(res.TopUsers, userView{
			Rank:     i + 1,
			Name:     u.Name,
			Account:  u.Account,
			Cost:     usage.FormatCost(u.Stats.TotalCost),
			Requests: u.Stats.Requests,
			Tokens:   usage.FormatTokens(u.Stats.AllTokens),
		})
	}
	for _, u := range sum.Anomalies {
		res.Anomalies = append(res.Anomalies, userView{
			Name:     u.Name,
			Account:  u.Account,
			Cost:     usage.FormatCost(u.Stats.TotalCost),
			Requests: u.Stats.Requests,
			Tokens:   usage.FormatTokens(u.Stats.AllTokens),
		})
	}
	inv.Summary = fmt.Sprintf("%d suggestions", len(res.Suggestions))
	return res, nil
}

func reportSuggestions(sum usage.Summary, top []usage.KeyStats, dailyLimit float64) []string {
	out := []string{}
	if n := len(sum.Anomalies); n > 0 {
		out = append(out, fmt.Sprintf("⚠️ %d accounts exceeded the daily limit; review their usage", n))
	}
	if dailyLimit > 0 && sum.AvgCostPerUser > dailyLimit*highAvgCostRatio {
		out = append(out, "💡 average cost per user is high; consider reducing request frequency or token volume")
	}
	if inactive := sum.TotalUsers - sum.ActiveUsers; inactive > 0 {
		out = append(out, fmt.Sprintf("📊 %d accounts returned no data; check their configuration", inactive))
	}
	if len(top) > 0 && top[0].Stats.TotalCost > sum.AvgCostPerUser*2 {
		out = append(out, "🔝 the top user costs more than twice the average; review the use case")
	}
	return out
}
