package server

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/upjiang/mcptools/internal/config"
	"github.com/upjiang/mcptools/internal/eventapi"
	"github.com/upjiang/mcptools/internal/metrics"
	"github.com/upjiang/mcptools/internal/model"
	"github.com/upjiang/mcptools/internal/payload"
	"github.com/upjiang/mcptools/internal/pool"
	"github.com/upjiang/mcptools/internal/tools"
)

type Handler struct {
	cfg     config.Config
	metrics *metrics.Metrics
	source  eventapi.FieldSource
	rec     model.Recorder
}

func NewHandler(cfg config.Config, m *metrics.Metrics, source eventapi.FieldSource, rec model.Recorder) *Handler {
	if m == nil {
		m = metrics.New()
	}
	if rec == nil {
		rec = model.NopRecorder{}
	}
	return &Handler{
		cfg:     cfg,
		metrics: m,
		source:  source,
		rec:     rec,
	}
}

// HandleCollect
//
// tracking beacon 을 받아 바로 분석 결과를 돌려준다.
//   - GET: ?data=<payload> (unescape 하지 않고 DecodeString 의 percent 단계에 맡긴다)
//   - POST: body 전체가 payload
//
// 공통 query: event (생략 시 payload 의 event), check_required (bool)
//
// payload 는 analyze_tracking_data 와 같은 경로(decode → 정의 조회 → analyze)를 거친다.
//   - 디코딩 / 이벤트 이름 문제: 400
//   - 필드 정의 조회 실패: 502
func (h *Handler) HandleCollect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet &&
		r.Method != http.MethodPost &&
		r.Method != http.MethodOptions {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// CORS preflight
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	start := time.Now()
	atomic.AddInt64(&h.metrics.CollectRequestsTotal, 1)

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	defer r.Body.Close()

	q := r.URL.Query()
	var body string

	if r.Method == http.MethodGet {
		if int64(len(r.URL.RawQuery)) > h.cfg.MaxBodySize {
			atomic.AddInt64(&h.metrics.CollectRejectedBodyTooLargeTotal, 1)
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		body = rawQueryValue(r.URL.RawQuery, "data")
	} else {
		buf := pool.BodyPool.Get().(*bytes.Buffer)
		buf.Reset()
		defer pool.PutBody(buf, h.cfg.MaxBodySize*2)

		if _, err := io.Copy(buf, r.Body); err != nil {
			atomic.AddInt64(&h.metrics.CollectRejectedBodyTooLargeTotal, 1)
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		body = buf.String()
	}

	checkRequired := false
	if v := q.Get("check_required"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "check_required must be a boolean")
			return
		}
		checkRequired = b
	}

	inv := pool.GetInvocation()
	inv.Ts = start.Unix()
	inv.Tool = "collect"
	inv.IP = clientIP(r)
	inv.UserAgent = r.UserAgent()

	res, err := tools.AnalyzePayload(r.Context(), h.source, h.metrics, body, q.Get("event"), checkRequired)
	inv.Event = res.Event
	inv.DurationMs = time.Since(start).Milliseconds()

	if err != nil {
		inv.Error = err.Error()
		h.rec.Record(inv)

		status := http.StatusBadGateway
		if isClientError(err) {
			status = http.StatusBadRequest
		}
		log.Debug().Err(err).Int("status", status).Msg("collect rejected")
		writeError(w, status, err.Error())
		return
	}

	inv.OK = true
	inv.Summary = res.Summary
	h.rec.Record(inv)

	writeJSON(w, http.StatusOK, res)
}

// rawQueryValue 는 key 의 값을 query unescape 없이 돌려준다.
// QueryUnescape 는 base64 의 '+' 를 공백으로 바꾼다.
func rawQueryValue(rawQuery, key string) string {
	for _, part := range strings.Split(rawQuery, "&") {
		if k, v, _ := strings.Cut(part, "="); k == key {
			return v
		}
	}
	return ""
}

func isClientError(err error) bool {
	return errors.Is(err, payload.ErrUndecodableInput) ||
		errors.Is(err, payload.ErrInvalidInputKind) ||
		errors.Is(err, tools.ErrPayloadNotObject) ||
		errors.Is(err, tools.ErrUnresolvedEventName)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HandleMetrics: 카운터를 name=value 텍스트로 출력 (/metrics.txt).
func (h *Handler) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, h.metrics.String())
}

// HandleHealth: ALB / ECS health check.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}
