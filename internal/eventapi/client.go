// internal/eventapi/client.go
package eventapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"github.com/upjiang/mcptools/internal/logger"
	"github.com/upjiang/mcptools/internal/metrics"
	"github.com/upjiang/mcptools/internal/model"
)

// ErrFieldNotFound: 이벤트 정의에 해당 필드가 없음.
var ErrFieldNotFound = errors.New("field not found in event definition")

// APIError: upstream 이 2xx 가 아닌 응답을 준 경우.
type APIError struct {
	StatusCode int
	Body       string // 최대 512 bytes
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// FieldSource 는 이벤트 이름으로 필드 정의를 돌려주는 쪽.
// tool handler / HTTP handler 는 이 인터페이스에만 의존한다.
type FieldSource interface {
	EventFields(ctx context.Context, event string) (*model.FieldDefinitions, error)
}

// Client
// ------------------------------------------------------------
// 이벤트 정의 API 클라이언트.
//   - GET {baseURL}?event=<name>
//   - 429 / 5xx / 네트워크 오류는 retryablehttp 가 재시도
//   - 성공 응답은 "event:<name>" key 로 TTL 캐시 (expirable LRU)
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	cache   *expirable.LRU[string, *model.FieldDefinitions]
	m       *metrics.Metrics
}

type options struct {
	timeout   time.Duration
	retries   int
	cacheTTL  time.Duration
	cacheSize int
	metrics   *metrics.Metrics
	transport http.RoundTripper
}

// Option configures Client behavior.
type Option func(*options)

func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

func WithRetries(n int) Option { return func(o *options) { o.retries = n } }

func WithCache(ttl time.Duration, size int) Option {
	return func(o *options) { o.cacheTTL, o.cacheSize = ttl, size }
}

func WithMetrics(m *metrics.Metrics) Option { return func(o *options) { o.metrics = m } }

// WithTransport 는 테스트에서 RoundTripper 를 바꿔 끼울 때 쓴다.
func WithTransport(rt http.RoundTripper) Option { return func(o *options) { o.transport = rt } }

func New(baseURL string, opts ...Option) *Client {
	o := options{
		timeout:   10 * time.Second,
		retries:   2,
		cacheTTL:  time.Hour,
		cacheSize: 512,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = o.retries
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = o.timeout
	if o.transport != nil {
		rc.HTTPClient.Transport = o.transport
	}
	rc.Logger = logger.Leveled{Component: "eventapi"}
	// 재시도가 끝나도 마지막 응답을 그대로 받아 APIError 로 바꾼다.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		baseURL: baseURL,
		http:    rc,
		cache:   expirable.NewLRU[string, *model.FieldDefinitions](o.cacheSize, nil, o.cacheTTL),
		m:       o.metrics,
	}
}

func cacheKey(event string) string { return "event:" + event }

// EventFields
// ------------------------------------------------------------
// 이벤트의 필드 정의를 가져온다. 캐시에 있으면 upstream 을 호출하지 않는다.
// 반환된 FieldDefinitions 는 공유되므로 호출 측에서 수정하지 않는다.
func (c *Client) EventFields(ctx context.Context, event string) (*model.FieldDefinitions, error) {
	key := cacheKey(event)
	if defs, ok := c.cache.Get(key); ok {
		atomic.AddInt64(&c.m.SchemaCacheHitsTotal, 1)
		return defs, nil
	}

	atomic.AddInt64(&c.m.SchemaFetchesTotal, 1)
	defs, err := c.fetch(ctx, event)
	if err != nil {
		atomic.AddInt64(&c.m.SchemaFetchErrorsTotal, 1)
		log.Warn().Err(err).Str("event", event).Msg("field definition fetch failed")
		return nil, fmt.Errorf("fetch field definitions for %s: %w", event, err)
	}

	c.cache.Add(key, defs)
	log.Debug().Str("event", event).Int("fields", defs.Len()).Msg("field definitions cached")
	return defs, nil
}

func (c *Client) fetch(ctx context.Context, event string) (*model.FieldDefinitions, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("event", event)
	u.RawQuery = q.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s := string(body)
		if len(s) > 512 {
			s = s[:512]
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: s}
	}

	defs := model.NewFieldDefinitions()
	if err := defs.UnmarshalJSON(body); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return defs, nil
}

// FieldInfo 는 이벤트 정의에서 필드 하나를 찾는다. 없으면 ErrFieldNotFound.
func (c *Client) FieldInfo(ctx context.Context, event, field string) (model.FieldDefinition, error) {
	defs, err := c.EventFields(ctx, event)
	if err != nil {
		return model.FieldDefinition{}, err
	}
	def, ok := defs.Get(field)
	if !ok {
		return model.FieldDefinition{}, fmt.Errorf("%s.%s: %w", event, field, ErrFieldNotFound)
	}
	return def, nil
}

// ClearCache 는 캐시 전체를 비운다.
func (c *Client) ClearCache() { c.cache.Purge() }

// ClearEvent 는 이벤트 하나의 캐시만 지운다.
func (c *Client) ClearEvent(event string) { c.cache.Remove(cacheKey(event)) }
