package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics 는 프로세스 상태를 나타내는 카운터 모음이다.
// 모든 필드는 atomic.AddInt64 / LoadInt64 로만 접근한다.
type Metrics struct {
	// ======================
	// MCP tool 레벨
	// ======================

	// ToolCallsTotal: 모든 tool 호출 수 (성공/실패 무관).
	ToolCallsTotal int64

	// ToolErrorsTotal: 에러 결과(IsError)로 끝난 tool 호출 수.
	ToolErrorsTotal int64

	// DecodeFailuresTotal: payload 디코딩 실패 수 (tool + /collect).
	// 비율이 높으면 beacon 쪽 인코딩이 바뀌었을 가능성이 크다.
	DecodeFailuresTotal int64

	// ======================
	// 이벤트 정의 API
	// ======================

	// SchemaFetchesTotal: upstream 으로 실제 나간 조회 수 (캐시 miss).
	SchemaFetchesTotal int64

	// SchemaCacheHitsTotal: 캐시로 응답한 조회 수.
	SchemaCacheHitsTotal int64

	// SchemaFetchErrorsTotal: 재시도 후에도 실패한 조회 수.
	SchemaFetchErrorsTotal int64

	// ======================
	// 사용량 통계 API
	// ======================

	StatsFetchesTotal     int64 // key 단위 조회 시도 수
	StatsFetchErrorsTotal int64 // 모든 재시도 후 실패한 key 수
	StatsCacheHitsTotal   int64 // 기간별 캐시 hit

	// ======================
	// HTTP /collect
	// ======================

	// CollectRequestsTotal: /collect 진입 수.
	CollectRequestsTotal int64

	// CollectRejectedBodyTooLargeTotal: MaxBodySize 초과로 413 반환한 수.
	CollectRejectedBodyTooLargeTotal int64

	// ======================
	// Audit trail
	// ======================

	// AuditRecordsTotal: 기록 채널에 들어간 invocation 수.
	AuditRecordsTotal int64

	// AuditRecordsDroppedTotal: 채널이 가득 차서 버린 invocation 수.
	// 계속 증가하면 S3 업로드가 밀리고 있다는 뜻.
	AuditRecordsDroppedTotal int64

	// S3RecordsStoredTotal: S3 에 저장된 invocation 수 (배치 수가 아님).
	S3RecordsStoredTotal int64

	// S3PutErrorsTotal: PutObject 실패 시도 수 (재시도마다 증가).
	S3PutErrorsTotal int64

	// DLQRecordsEnqueuedTotal: 업로드 실패로 로컬 DLQ 에 저장된 invocation 수.
	DLQRecordsEnqueuedTotal int64

	// DLQFilesReuploadedTotal: DLQ 에서 S3 로 복구된 파일 수.
	DLQFilesReuploadedTotal int64

	// DLQRecordsDroppedTotal: DLQ 용량 제한으로 저장하지 못하고 버린 invocation 수.
	DLQRecordsDroppedTotal int64

	// DLQFilesExpiredTotal: TTL / 용량 정리로 삭제된 DLQ 파일 수.
	DLQFilesExpiredTotal int64

	// DLQFilesCurrent / DLQSizeBytes: 현재 DLQ 디렉토리 상태 (gauge).
	DLQFilesCurrent int64
	DLQSizeBytes    int64
}

func New() *Metrics {
	return &Metrics{}
}

// counter 는 이름 → 필드 포인터 목록. String() 과 Prometheus 등록이 같은 순서를 쓴다.
type counter struct {
	name  string
	help  string
	gauge bool
	ptr   *int64
}

func (m *Metrics) counters() []counter {
	return []counter{
		{"tool_calls_total", "MCP tool invocations.", false, &m.ToolCallsTotal},
		{"tool_errors_total", "MCP tool invocations that returned an error result.", false, &m.ToolErrorsTotal},
		{"decode_failures_total", "Tracking payloads that could not be decoded.", false, &m.DecodeFailuresTotal},

		{"schema_fetches_total", "Field-definition requests sent upstream.", false, &m.SchemaFetchesTotal},
		{"schema_cache_hits_total", "Field-definition lookups served from cache.", false, &m.SchemaCacheHitsTotal},
		{"schema_fetch_errors_total", "Field-definition lookups that failed.", false, &m.SchemaFetchErrorsTotal},

		{"stats_fetches_total", "Usage-stats lookups per API key.", false, &m.StatsFetchesTotal},
		{"stats_fetch_errors_total", "Usage-stats lookups that failed after all attempts.", false, &m.StatsFetchErrorsTotal},
		{"stats_cache_hits_total", "Usage-stats periods served from cache.", false, &m.StatsCacheHitsTotal},

		{"collect_requests_total", "Requests received on /collect.", false, &m.CollectRequestsTotal},
		{"collect_rejected_body_too_large_total", "Requests on /collect rejected with 413.", false, &m.CollectRejectedBodyTooLargeTotal},

		{"audit_records_total", "Invocation records accepted by the audit pipeline.", false, &m.AuditRecordsTotal},
		{"audit_records_dropped_total", "Invocation records dropped because the queue was full.", false, &m.AuditRecordsDroppedTotal},
		{"s3_records_stored_total", "Invocation records stored in S3.", false, &m.S3RecordsStoredTotal},
		{"s3_put_errors_total", "Failed S3 PutObject attempts.", false, &m.S3PutErrorsTotal},
		{"dlq_records_enqueued_total", "Invocation records spooled to the local DLQ.", false, &m.DLQRecordsEnqueuedTotal},
		{"dlq_files_reuploaded_total", "DLQ files re-uploaded to S3.", false, &m.DLQFilesReuploadedTotal},
		{"dlq_records_dropped_total", "Invocation records dropped because the DLQ was full.", false, &m.DLQRecordsDroppedTotal},
		{"dlq_files_expired_total", "DLQ files removed by age or capacity policy.", false, &m.DLQFilesExpiredTotal},
		{"dlq_files_current", "Files currently in the DLQ directory.", true, &m.DLQFilesCurrent},
		{"dlq_size_bytes", "Bytes currently in the DLQ directory.", true, &m.DLQSizeBytes},
	}
}

func (m *Metrics) String() string {
	var sb strings.Builder
	sb.Grow(512)
	for _, c := range m.counters() {
		fmt.Fprintf(&sb, "%s=%d\n", c.name, atomic.LoadInt64(c.ptr))
	}
	return sb.String()
}
