// internal/worker/manager.go
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/upjiang/mcptools/internal/config"
	"github.com/upjiang/mcptools/internal/metrics"
	"github.com/upjiang/mcptools/internal/model"
	"github.com/upjiang/mcptools/internal/pool"
)

// dlqIdleInterval: 업로드할 배치가 없을 때 DLQ 재업로드를 시도하는 주기.
const dlqIdleInterval = 500 * time.Millisecond

type batchUploader interface {
	fileUploader
	UploadBytesWithRetryCtx(ctx context.Context, key string, body []byte) error
}

// Manager
// ------------------------------------------------------------
// audit trail 파이프라인. model.Recorder 를 구현한다.
//
//	tool handler / HTTP handler
//	   → Record (non-blocking, 가득 차면 drop)
//	   → collectLoop (BatchSize 또는 FlushInterval 마다 배치)
//	   → uploadLoop  (gzip JSONL 인코딩 → S3, 실패 시 로컬 DLQ)
//
// Shutdown 은 입력을 닫고 남은 배치를 모두 올린 뒤 반환한다.
// ctx 가 먼저 끝나면 진행 중인 업로드를 취소한다.
type Manager struct {
	cfg     config.Config
	metrics *metrics.Metrics
	s3      batchUploader
	dlq     *DLQManager
	encoder *Encoder

	recordCh chan *model.Invocation
	uploadCh chan model.UploadJob

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex // closed 와 recordCh close 보호
	closed bool

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewManager 는 AWS S3 uploader 와 DLQ 를 준비한다.
func NewManager(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*Manager, error) {
	uploader, err := NewS3Uploader(ctx, cfg, m)
	if err != nil {
		return nil, err
	}
	return newManager(cfg, m, uploader)
}

func newManager(cfg config.Config, m *metrics.Metrics, uploader batchUploader) (*Manager, error) {
	SetPartitionLocation(cfg.AuditPartitionTZ)

	dlq, err := NewDLQManager(cfg, m, uploader)
	if err != nil {
		return nil, err
	}
	return &Manager{
		cfg:      cfg,
		metrics:  m,
		s3:       uploader,
		dlq:      dlq,
		encoder:  NewEncoder(),
		recordCh: make(chan *model.Invocation, cfg.ChannelSize),
		uploadCh: make(chan model.UploadJob, cfg.UploadQueue),
	}, nil
}

// Start 는 collectLoop / uploadLoop 를 띄운다.
func (m *Manager) Start() {
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(2)
	go m.collectLoop()
	go m.uploadLoop()
}

// Record 는 호출 경로를 막지 않는다. 큐가 가득 찼거나 종료 중이면 버린다.
// 넘겨준 inv 는 이후 Manager 소유다.
func (m *Manager) Record(inv *model.Invocation) {
	if inv == nil {
		return
	}
	if inv.Ts == 0 {
		inv.Ts = Unix()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		atomic.AddInt64(&m.metrics.AuditRecordsDroppedTotal, 1)
		pool.PutInvocation(inv)
		return
	}

	select {
	case m.recordCh <- inv:
		atomic.AddInt64(&m.metrics.AuditRecordsTotal, 1)
	default:
		atomic.AddInt64(&m.metrics.AuditRecordsDroppedTotal, 1)
		pool.PutInvocation(inv)
	}
}

// Shutdown
//  1. 입력 채널을 닫는다 (이후 Record 는 drop)
//  2. collectLoop 가 남은 배치를 넘기고 uploadCh 를 닫는다
//  3. uploadLoop 가 남은 job 을 모두 처리하면 반환
//
// ctx 가 먼저 만료되면 업로드를 취소하고 goroutine 종료만 기다린다.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		close(m.recordCh)
		m.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.stop()
		return nil
	case <-ctx.Done():
		m.stop()
		<-done
		return fmt.Errorf("audit shutdown: %w", ctx.Err())
	}
}

func (m *Manager) stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

// collectLoop 는 BatchSize 도달 또는 FlushInterval 만료 시 배치를 넘긴다.
// flush 는 항상 새 slice 를 만든다 (넘긴 slice 재사용 금지).
func (m *Manager) collectLoop() {
	defer m.wg.Done()
	defer close(m.uploadCh)

	batch := make([]*model.Invocation, 0, m.cfg.BatchSize)
	timer := time.NewTimer(m.cfg.FlushInterval)
	defer timer.Stop()

	reset := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(m.cfg.FlushInterval)
	}

	flush := func() {
		if len(batch) == 0 {
			return
		}
		select {
		case m.uploadCh <- model.UploadJob{Records: batch}:
		case <-m.ctx.Done():
			m.encoder.RecycleRecords(batch)
		}
		batch = make([]*model.Invocation, 0, m.cfg.BatchSize)
	}

	for {
		select {
		case inv, ok := <-m.recordCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, inv)
			if len(batch) >= m.cfg.BatchSize {
				flush()
				reset()
			}

		case <-timer.C:
			flush()
			timer.Reset(m.cfg.FlushInterval)
		}
	}
}

// uploadLoop 는 배치를 올리고, 배치마다 그리고 idle 주기마다 DLQ 파일을
// 최대 3개씩 재업로드한다 (DLQ starvation 방지).
func (m *Manager) uploadLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(dlqIdleInterval)
	defer ticker.Stop()

	for {
		select {
		case job, ok := <-m.uploadCh:
			if !ok {
				log.Info().Msg("audit uploader exiting")
				return
			}
			m.processUpload(m.ctx, job)
			m.drainDLQ(3)

		case <-ticker.C:
			m.drainDLQ(3)
		}
	}
}

func (m *Manager) drainDLQ(n int) {
	for i := 0; i < n; i++ {
		if !m.dlq.ProcessOneCtx(m.ctx) {
			return
		}
	}
}

// processUpload
//  1. gzip JSONL 인코딩 (실패 시 배치를 버리고 기록)
//  2. S3 업로드, 실패 시 로컬 DLQ 저장
//  3. Invocation 은 항상 pool 로 반환
func (m *Manager) processUpload(ctx context.Context, job model.UploadJob) {
	if len(job.Records) == 0 {
		return
	}
	defer m.encoder.RecycleRecords(job.Records)

	n := len(job.Records)
	data, err := m.encoder.EncodeBatchJSONLGZ(job.Records)
	if err != nil {
		log.Error().Err(err).Int("records", n).Msg("audit batch encode failed")
		atomic.AddInt64(&m.metrics.DLQRecordsDroppedTotal, int64(n))
		return
	}

	key := BuildS3Key(m.cfg.AuditPrefix, NewFilename(m.cfg.InstanceID))
	if err := m.s3.UploadBytesWithRetryCtx(ctx, key, data); err != nil {
		log.Warn().Err(err).Str("key", key).Int("records", n).Msg("audit upload failed, saving to dlq")
		if err := m.dlq.Save(data, n); err != nil {
			log.Error().Err(err).Msg("dlq save failed")
		}
		return
	}
	atomic.AddInt64(&m.metrics.S3RecordsStoredTotal, int64(n))
}
