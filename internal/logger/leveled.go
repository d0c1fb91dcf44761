// internal/logger/leveled.go
package logger

import (
	"fmt"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Leveled
// ------------------------------------------------------------
// Error/Info/Debug/Warn(msg, keysAndValues...) 형태의 leveled logger 를
// zerolog 로 연결하는 어댑터. retryablehttp.Client.Logger 에 넣어 쓴다.
// 요청마다 찍히는 retry 로그는 Debug, 재시도 사유는 Warn 으로 남는다.
type Leveled struct {
	Component string
}

func (l Leveled) Error(msg string, kv ...interface{}) { l.emit(zlog.Error(), msg, kv) }
func (l Leveled) Warn(msg string, kv ...interface{})  { l.emit(zlog.Warn(), msg, kv) }
func (l Leveled) Info(msg string, kv ...interface{})  { l.emit(zlog.Debug(), msg, kv) }
func (l Leveled) Debug(msg string, kv ...interface{}) { l.emit(zlog.Debug(), msg, kv) }

func (l Leveled) emit(ev *zerolog.Event, msg string, kv []interface{}) {
	if ev == nil {
		return
	}
	if l.Component != "" {
		ev = ev.Str("component", l.Component)
	}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		ev = ev.Interface(key, kv[i+1])
	}
	ev.Msg(msg)
}
