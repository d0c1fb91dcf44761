// internal/model/invocation.go
package model

// Invocation
// ------------------------------------------------------------
// 도구 호출 / beacon 분석 1건의 운영 기록 (audit trail 의 기본 단위).
// Tool handler / HTTP handler → Recorder → Manager → Encoder → S3 업로드까지
// 그대로 전달된다.
//
// 분석 결과 본문은 담지 않는다. Summary 한 줄만 남기고
// 필드 값/payload 는 기록하지 않는다.
type Invocation struct {
	Ts         int64  `json:"ts"`                   // 호출 시각 (UTC epoch seconds)
	Tool       string `json:"tool"`                 // MCP tool 이름 또는 "collect"
	Event      string `json:"event,omitempty"`      // 대상 이벤트 이름 (있으면)
	IP         string `json:"ip,omitempty"`         // HTTP 경유일 때 client IP
	UserAgent  string `json:"user_agent,omitempty"` // HTTP 경유일 때 User-Agent
	DurationMs int64  `json:"duration_ms"`          // 처리 시간
	OK         bool   `json:"ok"`                   // 에러 없이 끝났는지
	Error      string `json:"error,omitempty"`      // 실패 사유
	Summary    string `json:"summary,omitempty"`    // 분석 요약 등 한 줄 결과
}

// UploadJob
// ------------------------------------------------------------
// Manager 내부에서 배치 단위 업로드에 쓰는 구조체.
// Encoder → gzip JSONL → S3Uploader 로 전달된다.
type UploadJob struct {
	Records []*Invocation
}

// Recorder 는 Invocation 을 받아 어딘가로 흘려보내는 쪽.
// 호출 경로를 막지 않아야 한다 (non-blocking).
type Recorder interface {
	Record(inv *Invocation)
}

// NopRecorder: audit bucket 이 설정되지 않았을 때 사용.
type NopRecorder struct{}

func (NopRecorder) Record(*Invocation) {}
