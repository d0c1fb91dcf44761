package worker

import (
	"bytes"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"

	"github.com/upjiang/mcptools/internal/model"
	"github.com/upjiang/mcptools/internal/pool"
)

// Encoder 는 Invocation 배치를 JSONL → gzip 으로 직렬화한다.
//   - gzip.Writer 와 결과 버퍼는 pool 에서 빌린다
//   - 반환 []byte 는 호출자 소유의 복사본 (pool 버퍼를 그대로 넘기지 않음)
type Encoder struct{}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// EncodeBatchJSONLGZ 는 기록마다 한 줄씩 JSON 인코딩한 뒤 gzip 으로 닫는다.
func (e *Encoder) EncodeBatchJSONLGZ(records []*model.Invocation) ([]byte, error) {
	buf := pool.BufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer pool.PutBuffer(buf)

	gz := pool.GzipPool.Get().(*gzip.Writer)
	gz.Reset(buf)
	defer pool.GzipPool.Put(gz)

	enc := json.NewEncoder(gz)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			_ = gz.Close()
			return nil, err
		}
	}

	// Close 시점에 gzip footer 까지 기록된다.
	if err := gz.Close(); err != nil {
		return nil, err
	}

	data := make([]byte, buf.Len())
	copy(data, buf.Bytes())
	return data, nil
}

// RecycleRecords 는 업로드가 끝난 기록을 InvocationPool 로 돌려준다.
func (e *Encoder) RecycleRecords(records []*model.Invocation) {
	for _, r := range records {
		pool.PutInvocation(r)
	}
}
