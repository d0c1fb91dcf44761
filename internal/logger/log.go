// internal/logger/log.go
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/upjiang/mcptools/internal/config"

	stdlog "log"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Init
//
// 프로세스 시작 시 한 번만 호출한다.
//
//  1. 출력 형식
//     - LOG_PRETTY=true: ConsoleWriter (터미널에서 읽기 좋은 형태)
//     - 그 외: JSON 한 줄 (수집 시스템 검색용)
//  2. 모든 로그에 "service", "instance" 필드를 붙인다.
//  3. Debug/Info 는 LOG_SAMPLE_N 설정 시 N개 중 1개만 남긴다.
//     Warn/Error 는 샘플링하지 않는다.
//
// 출력은 항상 stderr 로 보낸다. stdio MCP transport 가 stdout 을
// JSON-RPC 프레임 전용으로 쓰기 때문에 로그가 섞이면 세션이 깨진다.
func Init(cfg config.Config) {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil {
		level = l
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer = os.Stderr
	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		}
	}

	base := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	logger := base
	if cfg.LogSampleN > 1 {
		logger = base.Sample(&zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: cfg.LogSampleN},
			InfoSampler:  &zerolog.BasicSampler{N: cfg.LogSampleN},
		})
	}

	zlog.Logger = logger

	// 표준 log 패키지 출력도 zerolog 로 보낸다.
	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}
