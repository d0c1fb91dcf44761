package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/upjiang/mcptools/internal/metrics"
)

// NewMux
// ------------------------------------------------------------
//
//	/mcp          streamable HTTP MCP (mcpHandler 가 nil 이면 없음)
//	/collect      beacon 분석 (이벤트 정의 source 가 있을 때만)
//	/metrics      Prometheus (reg 가 nil 이면 없음)
//	/metrics.txt  name=value 텍스트
//	/health
func NewMux(h *Handler, mcpHandler http.Handler, reg prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	if mcpHandler != nil {
		mux.Handle("/mcp", mcpHandler)
	}
	if h.source != nil {
		mux.HandleFunc("/collect", h.HandleCollect)
	}
	if reg != nil {
		mux.Handle("/metrics", metrics.HandlerFor(reg))
	}
	mux.HandleFunc("/metrics.txt", h.HandleMetrics)
	mux.HandleFunc("/health", h.HandleHealth)
	return mux
}
