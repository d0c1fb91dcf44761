// internal/usage/client.go
package usage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/upjiang/mcptools/internal/logger"
	"github.com/upjiang/mcptools/internal/metrics"
	"github.com/upjiang/mcptools/internal/payload"
)

// Period: 통계 집계 기간.
type Period string

const (
	Daily   Period = "daily"
	Monthly Period = "monthly"
)

// ParsePeriod 는 빈 문자열을 daily 로 본다.
func ParsePeriod(s string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case "", Daily:
		return Daily, nil
	case Monthly:
		return Monthly, nil
	}
	return "", fmt.Errorf("period must be daily or monthly, got %q", s)
}

// APIError: upstream 이 2xx 가 아니거나 success=false 를 준 경우.
type APIError struct {
	StatusCode int
	Body       string // 최대 512 bytes
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// ModelStats: /user-model-stats 응답의 모델별 항목.
type ModelStats struct {
	Model       string `json:"model,omitempty"`
	Requests    int64  `json:"requests"`
	AllTokens   int64  `json:"allTokens"`
	InputTokens int64  `json:"inputTokens"`
	Costs       struct {
		Total float64 `json:"total"`
	} `json:"costs"`
}

// Aggregate: 모델별 항목을 합친 값.
type Aggregate struct {
	Requests    int64   `json:"requests"`
	AllTokens   int64   `json:"allTokens"`
	InputTokens int64   `json:"inputTokens"`
	TotalCost   float64 `json:"totalCost"`
}

// KeyStats: key 하나의 조회 결과. 실패해도 Success=false 로 남는다.
// API key 원문은 결과에 넣지 않는다.
type KeyStats struct {
	Name    string    `json:"name"`
	Account string    `json:"account"`
	Stats   Aggregate `json:"stats"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// Client
// ------------------------------------------------------------
// 사용량 통계 API 클라이언트.
//   - POST /get-key-id       {apiKey}        → data.id (또는 data 문자열)
//   - POST /user-model-stats {apiId, period} → data[] (모델별 통계)
//
// 재시도는 key 단위(apiId 재발급 포함)로 KeyStats 가 담당한다.
// retryablehttp 는 RetryMax=0 으로 두고 transport / 로깅 / 에러 처리만 쓴다.
type Client struct {
	baseURL     string
	http        *retryablehttp.Client
	retries     int
	retryDelay  time.Duration
	concurrency int
	m           *metrics.Metrics
}

type options struct {
	retries     int
	retryDelay  time.Duration
	concurrency int
	timeout     time.Duration
	metrics     *metrics.Metrics
	transport   http.RoundTripper
}

// Option configures Client behavior.
type Option func(*options)

func WithRetries(n int, delay time.Duration) Option {
	return func(o *options) { o.retries, o.retryDelay = n, delay }
}

func WithConcurrency(n int) Option { return func(o *options) { o.concurrency = n } }

func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

func WithMetrics(m *metrics.Metrics) Option { return func(o *options) { o.metrics = m } }

func WithTransport(rt http.RoundTripper) Option { return func(o *options) { o.transport = rt } }

func NewClient(baseURL string, opts ...Option) *Client {
	o := options{
		retries:     3,
		retryDelay:  time.Second,
		concurrency: 8,
		timeout:     15 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.retries < 1 {
		o.retries = 1
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}

	// 재시도는 KeyStats 의 retries 만 쓴다. transport 재시도까지 겹치면
	// 호출 수가 retries 의 배수가 된다.
	rc := retryablehttp.NewClient()
	rc.RetryMax = 0
	rc.HTTPClient.Timeout = o.timeout
	if o.transport != nil {
		rc.HTTPClient.Transport = o.transport
	}
	rc.Logger = logger.Leveled{Component: "usage"}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        rc,
		retries:     o.retries,
		retryDelay:  o.retryDelay,
		concurrency: o.concurrency,
		m:           o.metrics,
	}
}

type envelope struct {
	Success bool          `json:"success"`
	Data    payload.Value `json:"data"`
	Message string        `json:"message,omitempty"`
}

func (c *Client) post(ctx context.Context, path string, body any) (envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return envelope{}, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, raw)
	if err != nil {
		return envelope{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return envelope{}, &APIError{StatusCode: resp.StatusCode, Body: truncate(data)}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return envelope{}, &APIError{StatusCode: resp.StatusCode, Body: truncate(data)}
	}
	return env, nil
}

func truncate(b []byte) string {
	s := string(bytes.TrimSpace(b))
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}

// APIID 는 API key 로 apiId 를 발급받는다.
func (c *Client) APIID(ctx context.Context, apiKey string) (string, error) {
	env, err := c.post(ctx, "/get-key-id", map[string]string{"apiKey": apiKey})
	if err != nil {
		return "", fmt.Errorf("get api id: %w", err)
	}
	if obj, ok := env.Data.AsObject(); ok {
		if id, ok := obj.Get("id"); ok && !id.IsNull() && id.Text() != "" {
			return id.Text(), nil
		}
	}
	if s, ok := env.Data.AsString(); ok && s != "" {
		return s, nil
	}
	return "", fmt.Errorf("get api id: response has no id: %s", env.Data.Text())
}

// FetchStats 는 apiId 의 기간별 모델 통계를 가져온다.
func (c *Client) FetchStats(ctx context.Context, apiID string, period Period) ([]ModelStats, error) {
	env, err := c.post(ctx, "/user-model-stats", map[string]string{"apiId": apiID, "period": string(period)})
	if err != nil {
		return nil, fmt.Errorf("fetch stats (apiId %s, %s): %w", apiID, period, err)
	}
	if env.Data.IsNull() {
		return nil, nil
	}
	raw, err := env.Data.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out []ModelStats
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("fetch stats (apiId %s, %s): decode data: %w", apiID, period, err)
	}
	return out, nil
}

// Aggregated 는 모델별 통계를 합친다.
func Aggregated(models []ModelStats) Aggregate {
	var a Aggregate
	for _, m := range models {
		a.Requests += m.Requests
		a.AllTokens += m.AllTokens
		a.InputTokens += m.InputTokens
		a.TotalCost += m.Costs.Total
	}
	return a
}

// KeyStats
// ------------------------------------------------------------
// key 하나의 통계를 조회한다. apiId 발급 → 통계 조회 → 합산 순서이며
// 실패하면 retryDelay 만큼 쉬고 처음부터 다시 시도한다 (최대 retries 회).
// 끝까지 실패해도 에러를 반환하지 않고 Success=false 결과를 돌려준다.
func (c *Client) KeyStats(ctx context.Context, key APIKey, period Period) KeyStats {
	res := KeyStats{Name: key.Name, Account: key.Account}
	atomic.AddInt64(&c.m.StatsFetchesTotal, 1)

	var lastErr error
attempts:
	for attempt := 1; attempt <= c.retries; attempt++ {
		if attempt > 1 {
			t := time.NewTimer(c.retryDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				lastErr = ctx.Err()
				break attempts
			case <-t.C:
			}
		}

		stats, err := c.fetchOnce(ctx, key, period)
		if err == nil {
			res.Stats = stats
			res.Success = true
			return res
		}
		lastErr = err
		log.Warn().
			Err(err).
			Str("name", key.Name).
			Int("attempt", attempt).
			Int("max", c.retries).
			Msg("usage stats attempt failed")
	}

	atomic.AddInt64(&c.m.StatsFetchErrorsTotal, 1)
	if lastErr == nil {
		lastErr = errors.New("no attempts made")
	}
	res.Error = lastErr.Error()
	log.Error().Err(lastErr).Str("name", key.Name).Str("account", key.Account).Msg("usage stats failed")
	return res
}

func (c *Client) fetchOnce(ctx context.Context, key APIKey, period Period) (Aggregate, error) {
	id, err := c.APIID(ctx, key.APIKey)
	if err != nil {
		return Aggregate{}, err
	}
	models, err := c.FetchStats(ctx, id, period)
	if err != nil {
		return Aggregate{}, err
	}
	return Aggregated(models), nil
}

// AllKeyStats 는 모든 key 를 동시에(최대 concurrency 개) 조회한다.
// 결과 순서는 keys 순서와 같다.
func (c *Client) AllKeyStats(ctx context.Context, keys []APIKey, period Period) []KeyStats {
	out := make([]KeyStats, len(keys))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, k := range keys {
		g.Go(func() error {
			out[i] = c.KeyStats(ctx, k, period)
			return nil
		})
	}
	_ = g.Wait()

	ok := 0
	for _, s := range out {
		if s.Success {
			ok++
		}
	}
	log.Info().
		Str("period", string(period)).
		Int("success", ok).
		Int("failed", len(out)-ok).
		Msg("usage stats collected")
	return out
}
