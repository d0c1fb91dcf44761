// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config
//
// 프로세스 실행에 필요한 모든 환경 변수 값을 보관하는 구조체.
// 시작 시점에 Load() 로 한 번 채워지고, 이후에는 변경되지 않는
// 불변(read-only) 설정이다. 값이 없으면 기본값을 쓰고,
// 형식이 잘못된 값은 fail-fast 로 처리한다.
type Config struct {

	// ---------------------------
	// 서비스 식별 / 로깅
	// ---------------------------

	ServiceName string // 로그의 service 필드
	InstanceID  string // 프로세스 고유 ID (hostname, 실패 시 랜덤 hex)
	LogLevel    string // debug / info / warn / error
	LogPretty   bool   // true 면 ConsoleWriter (사람이 읽는 형태)
	LogSampleN  uint32 // Debug/Info 를 N개 중 1개만 기록 (0, 1 은 샘플링 없음)

	// ---------------------------
	// HTTP transport
	// ---------------------------

	HTTPAddr    string // --transport http 일 때 bind 주소
	MaxBodySize int64  // /collect 요청 body 최대 크기 (바이트)

	// ---------------------------
	// 이벤트 정의 API (EventAnalyzer)
	// ---------------------------

	EventAPIBaseURL string        // GET {base}?event=<name>
	EventAPITimeout time.Duration // 요청 1회 timeout
	EventAPIRetries int           // transport 레벨 재시도 횟수
	EventCacheTTL   time.Duration // 이벤트 정의 캐시 TTL
	EventCacheSize  int           // 캐시에 보관할 최대 이벤트 수

	// ---------------------------
	// 사용량 통계 API (UsageStats)
	// ---------------------------

	StatsAPIBaseURL  string
	KeysConfigPath   string        // API key 목록 파일 (json / yaml)
	StatsCacheTTL    time.Duration // 기간별 통계 캐시 TTL
	StatsRetries     int           // key 하나당 최대 시도 횟수
	StatsRetryDelay  time.Duration // 시도 사이 대기
	StatsConcurrency int           // 동시에 조회할 key 수
	DailyCostLimit   float64       // 일일 비용 한도 (anomaly 기준, USD)

	// ---------------------------
	// Audit trail (S3)
	// ---------------------------
	// AUDIT_BUCKET 이 비어 있으면 audit 파이프라인 전체가 꺼진다.
	//
	// Retry 정책 단일화
	// --------------------------------------------
	// SDK 기본 retry 와 애플리케이션 retry 가 겹치면 지연이 예측 불가능해진다.
	// → SDK retry 는 코드에서 0 으로 고정하고 S3AppRetries 만 사용한다.
	// --------------------------------------------

	AuditBucket      string
	AWSRegion        string
	AuditPrefix      string         // 정상 업로드 prefix
	AuditDLQPrefix   string         // DLQ 재업로드 prefix
	AuditPartitionTZ *time.Location // dt=/hr= 파티션 기준 timezone

	ChannelSize   int           // 기록 채널 버퍼 크기
	UploadQueue   int           // 업로드 job 채널 버퍼 크기
	BatchSize     int           // N개 모이면 업로드
	FlushInterval time.Duration // 시간 기반 flush 주기

	S3Timeout    time.Duration // PutObject 시도당 timeout
	S3AppRetries int           // 업로드 재시도 횟수

	DLQDir          string        // 로컬 DLQ 디렉토리
	DLQMaxAge       time.Duration // DLQ 파일 TTL
	DLQMaxSizeBytes int64         // DLQ 전체 허용 용량
}

// AuditEnabled: S3 audit trail 사용 여부.
func (c Config) AuditEnabled() bool { return c.AuditBucket != "" }

// Load
//
// 환경 변수 기반으로 Config 를 초기화한다.
// 형식이 잘못된 값이 하나라도 있으면 즉시 프로세스를 종료(fail-fast).
func Load() Config {
	cfg, err := load(os.Getenv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

func load(lookup func(string) string) (Config, error) {
	e := env{lookup: lookup}

	cfg := Config{
		ServiceName: e.str("SERVICE_NAME", "mcptools"),
		InstanceID:  fallbackInstanceID(),
		LogLevel:    e.str("LOG_LEVEL", "info"),
		LogPretty:   e.bool("LOG_PRETTY", false),
		LogSampleN:  uint32(e.int("LOG_SAMPLE_N", 0)),

		HTTPAddr:    e.str("HTTP_ADDR", ":8080"),
		MaxBodySize: e.int64("MAX_BODY_SIZE", 1<<20),

		EventAPIBaseURL: e.str("EVENT_API_BASE_URL", "https://tptest-3d66.top/trans/api/event"),
		EventAPITimeout: e.dur("EVENT_API_TIMEOUT", 10*time.Second),
		EventAPIRetries: e.int("EVENT_API_RETRIES", 2),
		EventCacheTTL:   e.dur("EVENT_CACHE_TTL", time.Hour),
		EventCacheSize:  e.int("EVENT_CACHE_SIZE", 512),

		StatsAPIBaseURL:  e.str("STATS_API_BASE_URL", "https://as.imds.ai/apiStats/api"),
		KeysConfigPath:   e.str("KEYS_CONFIG_PATH", "keys.json"),
		StatsCacheTTL:    e.dur("STATS_CACHE_TTL", 5*time.Minute),
		StatsRetries:     e.int("STATS_RETRIES", 3),
		StatsRetryDelay:  e.dur("STATS_RETRY_DELAY", time.Second),
		StatsConcurrency: e.int("STATS_CONCURRENCY", 8),
		DailyCostLimit:   e.float("DAILY_COST_LIMIT", 40),

		AuditBucket:      e.str("AUDIT_BUCKET", ""),
		AWSRegion:        e.str("AWS_REGION", ""),
		AuditPrefix:      strings.Trim(e.str("AUDIT_PREFIX", "audit"), "/"),
		AuditDLQPrefix:   strings.Trim(e.str("AUDIT_DLQ_PREFIX", "audit_dlq"), "/"),
		AuditPartitionTZ: e.location("AUDIT_PARTITION_TZ", "UTC"),

		ChannelSize:   e.int("CHANNEL_SIZE", 1024),
		UploadQueue:   e.int("UPLOAD_QUEUE", 8),
		BatchSize:     e.int("BATCH_SIZE", 500),
		FlushInterval: e.dur("FLUSH_INTERVAL", 5*time.Second),

		S3Timeout:    e.dur("S3_TIMEOUT", 5*time.Second),
		S3AppRetries: e.int("S3_APP_RETRIES", 3),

		DLQDir:          e.str("DLQ_DIR", filepath.Join(os.TempDir(), "mcptools-dlq")),
		DLQMaxAge:       e.dur("DLQ_MAX_AGE", 24*time.Hour),
		DLQMaxSizeBytes: e.int64("DLQ_MAX_SIZE_BYTES", 512<<20),
	}

	if cfg.AuditEnabled() && cfg.AWSRegion == "" {
		e.fail(errors.New("AWS_REGION is required when AUDIT_BUCKET is set"))
	}
	if cfg.BatchSize <= 0 || cfg.ChannelSize <= 0 || cfg.UploadQueue <= 0 {
		e.fail(errors.New("BATCH_SIZE, CHANNEL_SIZE and UPLOAD_QUEUE must be positive"))
	}
	if cfg.StatsRetries < 1 {
		e.fail(fmt.Errorf("STATS_RETRIES must be >= 1, got %d", cfg.StatsRetries))
	}
	if cfg.StatsConcurrency < 1 {
		e.fail(fmt.Errorf("STATS_CONCURRENCY must be >= 1, got %d", cfg.StatsConcurrency))
	}

	if len(e.errs) > 0 {
		return Config{}, errors.Join(e.errs...)
	}
	return cfg, nil
}

// env
//
// str / int / int64 / dur / bool / float / location 공통 패턴.
// 값이 없으면 기본값, 형식이 잘못되면 에러를 모아 두었다가
// load() 끝에서 한 번에 반환한다.
type env struct {
	lookup func(string) string
	errs   []error
}

func (e *env) fail(err error) { e.errs = append(e.errs, err) }

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.lookup(key)); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid int env %s=%q: %w", key, v, err))
		return def
	}
	return n
}

func (e *env) int64(key string, def int64) int64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.fail(fmt.Errorf("invalid int64 env %s=%q: %w", key, v, err))
		return def
	}
	return n
}

func (e *env) dur(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid duration env %s=%q: %w", key, v, err))
		return def
	}
	return d
}

func (e *env) bool(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid bool env %s=%q: %w", key, v, err))
		return def
	}
	return b
}

func (e *env) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(fmt.Errorf("invalid float env %s=%q: %w", key, v, err))
		return def
	}
	return f
}

func (e *env) location(key, def string) *time.Location {
	name := e.str(key, def)
	loc, err := time.LoadLocation(name)
	if err != nil {
		e.fail(fmt.Errorf("invalid timezone env %s=%q: %w", key, name, err))
		return time.UTC
	}
	return loc
}

// fallbackInstanceID
//
// 이 프로세스를 식별하는 고유 값.
//   - 기본: hostname (컨테이너 환경에서는 task-id 형태로 고유)
//   - fallback: 12자리 랜덤 hex
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
