// internal/worker/s3_uploader.go
package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/upjiang/mcptools/internal/config"
	"github.com/upjiang/mcptools/internal/metrics"
)

// ObjectPutter 는 S3 PutObject 한 가지만 필요로 한다 (*s3.Client 가 만족).
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader
// ------------------------------------------------------------
// audit 배치(gzip JSONL)를 AUDIT_BUCKET 에 올린다.
//   - UploadBytesWithRetryCtx: 메모리의 배치
//   - UploadFileWithRetryCtx: 로컬 DLQ 파일
//
// SDK retry 는 0 으로 두고 S3AppRetries 만큼 애플리케이션에서 재시도한다.
// 시도당 S3Timeout, 실패 사이 backoff 는 200ms 부터 2배씩 최대 2초.
type S3Uploader struct {
	cfg     config.Config
	metrics *metrics.Metrics
	client  ObjectPutter

	backoff    time.Duration
	maxBackoff time.Duration
}

// NewS3Uploader 는 AWS 기본 credential chain 으로 S3 client 를 만든다.
func NewS3Uploader(ctx context.Context, cfg config.Config, m *metrics.Metrics) (*S3Uploader, error) {
	awsCfg, err := awsCfgLib.LoadDefaultConfig(ctx, awsCfgLib.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 0
	})
	return newS3Uploader(cfg, m, client), nil
}

func newS3Uploader(cfg config.Config, m *metrics.Metrics, client ObjectPutter) *S3Uploader {
	return &S3Uploader{
		cfg:        cfg,
		metrics:    m,
		client:     client,
		backoff:    200 * time.Millisecond,
		maxBackoff: 2 * time.Second,
	}
}

// UploadBytesWithRetryCtx 는 시도마다 새 reader 를 만든다.
func (u *S3Uploader) UploadBytesWithRetryCtx(ctx context.Context, key string, body []byte) error {
	return u.withRetry(ctx, func() error {
		return u.putObject(ctx, key, bytes.NewReader(body), int64(len(body)))
	})
}

// UploadFileWithRetryCtx 는 재시도 전에 Seek(0) 으로 되감는다.
func (u *S3Uploader) UploadFileWithRetryCtx(ctx context.Context, key string, f io.ReadSeeker, size int64) error {
	return u.withRetry(ctx, func() error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		return u.putObject(ctx, key, f, size)
	})
}

func (u *S3Uploader) withRetry(ctx context.Context, put func() error) error {
	attempts := u.cfg.S3AppRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	backoff := u.backoff

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := put()
		if err == nil {
			return nil
		}
		lastErr = err
		atomic.AddInt64(&u.metrics.S3PutErrorsTotal, 1)

		if attempt == attempts {
			break
		}
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		backoff *= 2
		if backoff > u.maxBackoff {
			backoff = u.maxBackoff
		}
	}
	return lastErr
}

// putObject 는 1회 호출만 담당한다.
func (u *S3Uploader) putObject(ctx context.Context, key string, body io.Reader, size int64) error {
	ctx2, cancel := context.WithTimeout(ctx, u.cfg.S3Timeout)
	defer cancel()

	_, err := u.client.PutObject(ctx2, &s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.AuditBucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/gzip"),
	})
	return err
}
