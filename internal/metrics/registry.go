package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mcptools"

// Register 는 atomic 카운터를 그대로 읽는 CounterFunc / GaugeFunc 를 등록한다.
// 값은 한 곳(Metrics 필드)에만 있고 Prometheus 는 scrape 시점에 읽어 간다.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.counters() {
		ptr := c.ptr
		read := func() float64 { return float64(atomic.LoadInt64(ptr)) }

		var col prometheus.Collector
		if c.gauge {
			col = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      c.name,
				Help:      c.help,
			}, read)
		} else {
			col = prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      c.name,
				Help:      c.help,
			}, read)
		}
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry 는 Go runtime / process collector 와 m 을 담은 registry 를 만든다.
func NewRegistry(m *Metrics) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := m.Register(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// HandlerFor returns an HTTP handler for a specific registry.
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
