// internal/usage/service.go
package usage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/upjiang/mcptools/internal/metrics"
)

// StatsFetcher 는 key 목록의 기간 통계를 가져오는 쪽 (*Client).
type StatsFetcher interface {
	AllKeyStats(ctx context.Context, keys []APIKey, period Period) []KeyStats
}

// Service
// ------------------------------------------------------------
// tool handler 가 쓰는 진입점.
//   - key 목록은 매 조회 시 파일에서 다시 읽는다 (운영 중 key 추가 반영)
//   - 기간별 결과는 TTL 캐시, force 면 캐시 무시
//   - 같은 기간 동시 조회는 하나로 합친다
type Service struct {
	fetcher  StatsFetcher
	keysPath string
	loadKeys func(string) ([]APIKey, error)
	cache    *expirable.LRU[Period, []KeyStats]
	m        *metrics.Metrics
	now      func() time.Time

	mu       sync.Mutex
	inflight map[Period]*sync.Mutex
}

func NewService(fetcher StatsFetcher, keysPath string, ttl time.Duration, m *metrics.Metrics) *Service {
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		fetcher:  fetcher,
		keysPath: keysPath,
		loadKeys: LoadKeys,
		cache:    expirable.NewLRU[Period, []KeyStats](2, nil, ttl),
		m:        m,
		now:      time.Now,
		inflight: make(map[Period]*sync.Mutex),
	}
}

func (s *Service) periodLock(p Period) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.inflight[p]
	if !ok {
		l = &sync.Mutex{}
		s.inflight[p] = l
	}
	return l
}

// Stats 는 기간 통계를 돌려준다. 반환 slice 는 공유되므로 수정하지 않는다.
func (s *Service) Stats(ctx context.Context, p Period, force bool) ([]KeyStats, error) {
	if !force {
		if v, ok := s.cache.Get(p); ok {
			atomic.AddInt64(&s.m.StatsCacheHitsTotal, 1)
			return v, nil
		}
	}

	l := s.periodLock(p)
	l.Lock()
	defer l.Unlock()

	// 기다리는 동안 다른 호출이 채웠을 수 있다.
	if !force {
		if v, ok := s.cache.Get(p); ok {
			atomic.AddInt64(&s.m.StatsCacheHitsTotal, 1)
			return v, nil
		}
	}

	keys, err := s.loadKeys(s.keysPath)
	if err != nil {
		return nil, err
	}
	stats := s.fetcher.AllKeyStats(ctx, keys, p)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.cache.Add(p, stats)
	return stats, nil
}

// Now 는 trend 계산에 쓰는 현재 시각.
func (s *Service) Now() time.Time { return s.now() }
