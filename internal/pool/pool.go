package pool

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/upjiang/mcptools/internal/model"
)

// ---------------------------------------------------------------
// /collect 요청 body, audit 기록(Invocation), gzip 인코딩 버퍼는
// 호출마다 새로 할당되므로 sync.Pool 로 재사용한다.
// ---------------------------------------------------------------

var (
	// InvocationPool: audit 기록 1건. Encoder 가 업로드 후 돌려준다.
	InvocationPool = sync.Pool{
		New: func() any { return new(model.Invocation) },
	}

	// BodyPool: /collect POST body. 초기 용량 4KB.
	BodyPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 4*1024))
		},
	}

	// BufferPool: gzip JSONL 배치 결과. 초기 용량 64KB.
	// Invocation 은 작아서 batch 500 건이 대부분 이 안에 들어간다.
	BufferPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 64*1024))
		},
	}

	// GzipPool: gzip.Writer 재사용. BestSpeed.
	GzipPool = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
			return w
		},
	}
)

// MaxBufferCap 보다 커진 gzip 버퍼는 풀로 돌리지 않는다.
const MaxBufferCap = 1 * 1024 * 1024 // 1MB

// GetInvocation 은 zeroing 된 Invocation 을 꺼낸다.
func GetInvocation() *model.Invocation {
	inv := InvocationPool.Get().(*model.Invocation)
	*inv = model.Invocation{}
	return inv
}

// PutInvocation 은 zeroing 후 반환한다. 반환 뒤에는 접근하지 않는다.
func PutInvocation(inv *model.Invocation) {
	if inv == nil {
		return
	}
	*inv = model.Invocation{}
	InvocationPool.Put(inv)
}

// PutBody: maxCap(보통 MaxBodySize*2) 보다 큰 버퍼는 GC 에 맡긴다.
func PutBody(buf *bytes.Buffer, maxCap int64) {
	if int64(buf.Cap()) <= maxCap {
		buf.Reset()
		BodyPool.Put(buf)
	}
}

func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() <= MaxBufferCap {
		buf.Reset()
		BufferPool.Put(buf)
	}
}
