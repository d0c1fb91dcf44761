package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	m := New()
	atomic.AddInt64(&m.ToolCallsTotal, 3)
	atomic.AddInt64(&m.DLQSizeBytes, 2048)

	out := m.String()
	assert.Contains(t, out, "tool_calls_total=3\n")
	assert.Contains(t, out, "dlq_size_bytes=2048\n")
	assert.Contains(t, out, "schema_cache_hits_total=0\n")
}

func TestRegister_ExposesLiveValues(t *testing.T) {
	m := New()
	reg, err := NewRegistry(m)
	require.NoError(t, err)

	atomic.AddInt64(&m.SchemaFetchesTotal, 7)
	atomic.StoreInt64(&m.DLQFilesCurrent, 2)

	srv := httptest.NewServer(HandlerFor(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "mcptools_schema_fetches_total 7")
	assert.Contains(t, text, "# TYPE mcptools_dlq_files_current gauge")
	assert.True(t, strings.Contains(text, "go_goroutines"))
}

func TestRegister_Twice(t *testing.T) {
	m := New()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))
	assert.Error(t, m.Register(reg))
}
