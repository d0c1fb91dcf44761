// internal/worker/timecache.go
package worker

import (
	"sync/atomic"
	"time"
)

//
// timecache.go
// ------------------------------------------------------------
// 현재 epoch seconds 와 파티션(dt=YYYY-MM-DD / hr=HH)을 1초 단위로 캐싱한다.
// 기록 1건마다 time.Now() + Format 을 반복하지 않기 위함.
//
// 파티션 timezone 은 AUDIT_PARTITION_TZ 로 정하며 기본은 UTC.
//
// 사용처:
//   - Invocation.Ts
//   - S3 key prefix (dt= / hr=)
//   - DLQ TTL 판단
// ------------------------------------------------------------

var (
	unixSec atomic.Int64
	dtVal   atomic.Value // "YYYY-MM-DD"
	hrVal   atomic.Value // "HH"

	partitionLoc atomic.Pointer[time.Location]
)

func init() {
	partitionLoc.Store(time.UTC)
	update()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for range ticker.C {
			update()
		}
	}()
}

func update() {
	now := time.Now()
	unixSec.Store(now.Unix())

	dt, hr := Partition(now)
	dtVal.Store(dt)
	hrVal.Store(hr)
}

// SetPartitionLocation 은 dt/hr 파티션 기준 timezone 을 바꾸고 즉시 반영한다.
// nil 이면 UTC.
func SetPartitionLocation(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	partitionLoc.Store(loc)
	update()
}

// Partition 은 t 를 파티션 timezone 기준 ("YYYY-MM-DD", "HH") 으로 바꾼다.
func Partition(t time.Time) (dt, hr string) {
	local := t.In(partitionLoc.Load())
	return local.Format("2006-01-02"), local.Format("15")
}

// Unix returns current UTC epoch seconds (cached, 1-second precision).
func Unix() int64 {
	return unixSec.Load()
}

// DT returns "YYYY-MM-DD" in the partition timezone.
func DT() string {
	return dtVal.Load().(string)
}

// HR returns "HH" in the partition timezone.
func HR() string {
	return hrVal.Load().(string)
}
