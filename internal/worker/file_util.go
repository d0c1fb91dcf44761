// internal/worker/file_util.go
package worker

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// 파일명 규칙
// ------------------------------------------------------------
//
//	<unix>_<instance>_<counter>.jsonl.gz
//
// 예: 1764721594_mcptools-7f3a_000042.jsonl.gz
//
// 문자열 정렬이 곧 시간 정렬이므로 DLQ 는 이름만 보고 가장 오래된
// 파일을 고르고 TTL 을 판단한다.
const fileSuffix = ".jsonl.gz"

var globalCounter uint64

// NextCounter 는 0 ~ 999,999 를 순환하는 순번을 만든다.
// 같은 초 안에서 instance 별로 겹치지 않으면 충분하다.
func NextCounter() uint64 {
	return atomic.AddUint64(&globalCounter, 1) % 1_000_000
}

func NewFilename(instanceID string) string {
	return fmt.Sprintf("%d_%s_%06d%s", Unix(), instanceID, NextCounter(), fileSuffix)
}

// BuildS3Key
// ------------------------------------------------------------
//
//	<prefix>/dt=<YYYY-MM-DD>/hr=<HH>/<filename>
//
// Athena / Glue 에서 audit 기록을 날짜/시간 파티션으로 바로 읽을 수 있는 구조.
func BuildS3Key(prefix, filename string) string {
	return buildS3Key(prefix, DT(), HR(), filename)
}

func buildS3Key(prefix, dt, hr, filename string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return fmt.Sprintf("dt=%s/hr=%s/%s", dt, hr, filename)
	}
	return fmt.Sprintf("%s/dt=%s/hr=%s/%s", prefix, dt, hr, filename)
}

// extractUnixFromFilename 은 파일명 앞부분의 Unix seconds 를 읽는다.
func extractUnixFromFilename(name string) (int64, bool) {
	idx := strings.IndexByte(name, '_')
	if idx <= 0 {
		return 0, false
	}
	sec, err := strconv.ParseInt(name[:idx], 10, 64)
	if err != nil || sec <= 0 {
		return 0, false
	}
	return sec, true
}
