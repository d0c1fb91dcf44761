// internal/worker/dlq.go
package worker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	"github.com/upjiang/mcptools/internal/config"
	"github.com/upjiang/mcptools/internal/metrics"
)

const metaSuffix = ".meta.json"

type fileUploader interface {
	UploadFileWithRetryCtx(ctx context.Context, key string, f io.ReadSeeker, size int64) error
}

// DLQManager
// ------------------------------------------------------------
// S3 업로드에 실패한 audit 배치를 로컬 디렉토리에 보관했다가 다시 올린다.
//   - data: <unix>_<instance>_<counter>.jsonl.gz
//   - meta: <data>.meta.json ({"num_records": N})
//
// TTL 은 파일명 앞의 Unix timestamp 기준 (mtime 을 보지 않는다).
// 용량이 DLQMaxSizeBytes 를 넘으면 가장 오래된 파일부터 지운다.
type DLQManager struct {
	cfg      config.Config
	metrics  *metrics.Metrics
	uploader fileUploader

	// 현재 DLQ 디렉토리의 data 파일 총 바이트 수
	dlqSizeBytes int64
}

// NewDLQManager 는 디렉토리를 만들고 남아 있는 파일로 gauge 를 복원한다.
// data 없이 남은 meta 파일은 지운다.
func NewDLQManager(cfg config.Config, m *metrics.Metrics, uploader fileUploader) (*DLQManager, error) {
	if err := os.MkdirAll(cfg.DLQDir, 0o755); err != nil {
		return nil, fmt.Errorf("create dlq dir %s: %w", cfg.DLQDir, err)
	}

	d := &DLQManager{
		cfg:      cfg,
		metrics:  m,
		uploader: uploader,
	}

	entries, err := os.ReadDir(cfg.DLQDir)
	if err != nil {
		return nil, fmt.Errorf("read dlq dir %s: %w", cfg.DLQDir, err)
	}

	var total, count int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()

		if strings.HasSuffix(name, metaSuffix) {
			dataName := strings.TrimSuffix(name, metaSuffix)
			if _, err := os.Stat(filepath.Join(cfg.DLQDir, dataName)); os.IsNotExist(err) {
				_ = os.Remove(filepath.Join(cfg.DLQDir, name))
			}
			continue
		}
		if !isDataFile(name) {
			continue
		}
		if info, err := e.Info(); err == nil {
			total += info.Size()
			count++
		}
	}

	atomic.StoreInt64(&d.dlqSizeBytes, total)
	atomic.AddInt64(&m.DLQSizeBytes, total)
	atomic.AddInt64(&m.DLQFilesCurrent, count)

	if count > 0 {
		log.Info().Int64("files", count).Int64("bytes", total).Msg("dlq restored")
	}
	return d, nil
}

func isDataFile(name string) bool {
	return name != "" && name[0] != '.' && strings.HasSuffix(name, fileSuffix)
}

// Save 는 업로드 실패한 배치를 저장한다. 용량 정리 후에도 공간이 없으면 버린다.
func (d *DLQManager) Save(data []byte, numRecords int) error {
	if len(data) == 0 || numRecords <= 0 {
		return nil
	}

	size := int64(len(data))
	if !d.ensureCapacity(size) {
		log.Error().Int64("bytes", size).Int("records", numRecords).Msg("dlq full, batch dropped")
		atomic.AddInt64(&d.metrics.DLQRecordsDroppedTotal, int64(numRecords))
		return nil
	}

	dataPath := filepath.Join(d.cfg.DLQDir, NewFilename(d.cfg.InstanceID))
	if err := os.WriteFile(dataPath, data, 0o600); err != nil {
		atomic.AddInt64(&d.metrics.DLQRecordsDroppedTotal, int64(numRecords))
		return fmt.Errorf("write dlq file: %w", err)
	}
	meta := []byte(fmt.Sprintf(`{"num_records":%d}`, numRecords))
	_ = os.WriteFile(dataPath+metaSuffix, meta, 0o600)

	atomic.AddInt64(&d.dlqSizeBytes, size)
	atomic.AddInt64(&d.metrics.DLQSizeBytes, size)
	atomic.AddInt64(&d.metrics.DLQFilesCurrent, 1)
	atomic.AddInt64(&d.metrics.DLQRecordsEnqueuedTotal, int64(numRecords))
	return nil
}

// ensureCapacity 는 incoming 이 들어갈 때까지 가장 오래된 파일을 지운다.
// 지울 파일이 없으면 false.
func (d *DLQManager) ensureCapacity(incoming int64) bool {
	max := d.cfg.DLQMaxSizeBytes
	if max <= 0 {
		return true
	}
	if incoming > max {
		return false
	}

	for atomic.LoadInt64(&d.dlqSizeBytes)+incoming > max {
		oldest := d.pickOldest()
		if oldest == "" {
			return false
		}
		d.remove(oldest)
		atomic.AddInt64(&d.metrics.DLQFilesExpiredTotal, 1)
		log.Warn().Str("file", oldest).Msg("dlq capacity, oldest file removed")
	}
	return true
}

// remove 는 data/meta 를 지우고 gauge 를 맞춘다.
func (d *DLQManager) remove(name string) {
	dataPath := filepath.Join(d.cfg.DLQDir, name)
	if info, err := os.Stat(dataPath); err == nil {
		atomic.AddInt64(&d.dlqSizeBytes, -info.Size())
		atomic.AddInt64(&d.metrics.DLQSizeBytes, -info.Size())
	}
	_ = os.Remove(dataPath)
	_ = os.Remove(dataPath + metaSuffix)
	atomic.AddInt64(&d.metrics.DLQFilesCurrent, -1)
}

// ProcessOneCtx 는 가장 오래된 파일 1개를 처리한다.
//   - TTL 초과: 삭제
//   - 첫 줄이 JSON 이면 AuditPrefix, 아니면 AuditDLQPrefix 로 업로드
//
// 처리할 파일이 있었으면 true.
func (d *DLQManager) ProcessOneCtx(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	name := d.pickOldest()
	if name == "" {
		return false
	}
	dataPath := filepath.Join(d.cfg.DLQDir, name)

	info, err := os.Stat(dataPath)
	if err != nil {
		d.remove(name)
		return true
	}
	size := info.Size()

	if d.cfg.DLQMaxAge > 0 {
		if sec, ok := extractUnixFromFilename(name); ok {
			age := time.Duration(Unix()-sec) * time.Second
			if age > d.cfg.DLQMaxAge {
				d.remove(name)
				atomic.AddInt64(&d.metrics.DLQFilesExpiredTotal, 1)
				log.Info().Str("file", name).Dur("age", age).Msg("dlq file expired")
				return true
			}
		}
	}

	f, err := os.Open(dataPath)
	if err != nil {
		log.Warn().Err(err).Str("file", name).Msg("dlq open failed")
		return false
	}
	defer f.Close()

	prefix := d.cfg.AuditPrefix
	if !validateFile(f, size) {
		prefix = d.cfg.AuditDLQPrefix
	}
	key := BuildS3Key(prefix, name)

	if err := d.uploader.UploadFileWithRetryCtx(ctx, key, f, size); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("dlq reupload failed")
		return false
	}

	numRecords := int64(1)
	if meta, err := os.ReadFile(dataPath + metaSuffix); err == nil {
		var v struct {
			NumRecords int64 `json:"num_records"`
		}
		if json.Unmarshal(meta, &v) == nil && v.NumRecords > 0 {
			numRecords = v.NumRecords
		}
	}

	d.remove(name)
	atomic.AddInt64(&d.metrics.DLQFilesReuploadedTotal, 1)
	atomic.AddInt64(&d.metrics.S3RecordsStoredTotal, numRecords)
	log.Info().Str("key", key).Int64("records", numRecords).Msg("dlq reupload success")
	return true
}

// validateFile 은 gzip 을 풀어 첫 줄이 JSON object 인지 본다.
func validateFile(f io.ReadSeeker, size int64) bool {
	if size <= 0 {
		return false
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false
	}

	gz, err := gzip.NewReader(f)
	if err != nil {
		return false
	}
	defer gz.Close()

	line, err := bufio.NewReader(gz).ReadBytes('\n')
	if err != nil && err != io.EOF {
		return false
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return false
	}

	var tmp map[string]any
	return json.Unmarshal(line, &tmp) == nil
}

// pickOldest: 파일명 정렬 = 시간 정렬.
func (d *DLQManager) pickOldest() string {
	entries, err := os.ReadDir(d.cfg.DLQDir)
	if err != nil {
		return ""
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isDataFile(e.Name()) {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		return ""
	}
	sort.Strings(files)
	return files[0]
}
