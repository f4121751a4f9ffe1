package telemetry

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	binlog "github.com/santhosh-tekuri/binlog/v2"
	"github.com/santhosh-tekuri/binlog/v2/cfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withRegistry(t *testing.T) {
	t.Helper()
	old := registry
	registry = prometheus.NewRegistry()
	t.Cleanup(func() { registry = old })
}

func gather(t *testing.T, name string) []*dto.Metric {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()
		}
	}
	return nil
}

func TestNoopWithoutRegistry(t *testing.T) {
	old := registry
	registry = nil
	defer func() { registry = old }()

	assert.IsType(t, NoopStat{}, NewCounter("s", "c", "help"))
	assert.IsType(t, NoopStat{}, NewGauge("s", "g", "help"))
	assert.IsType(t, NoopStat{}, NewHistogram("s", "h", "help", nil))
	assert.IsType(t, noopCounterVec{}, NewCounterVec("s", "v", "help", []string{"l"}))
	assert.Nil(t, GetMetricsHandler())

	h := NewHandler()
	e := &binlog.Event{Header: binlog.EventHeader{EventType: binlog.QUERY_EVENT}}
	assert.Same(t, e, h.HandleEvent(e))
}

func TestInitializeTelemetryDisabled(t *testing.T) {
	old, oldCfg := registry, cfg.Config
	defer func() { registry, cfg.Config = old, oldCfg }()
	registry = nil
	cfg.Config = cfg.Default()
	cfg.Config.Prometheus.Enabled = false

	InitializeTelemetry()
	assert.Nil(t, registry)
}

func TestHandlerCounts(t *testing.T) {
	withRegistry(t)
	h := NewHandler()

	q := &binlog.Event{Header: binlog.EventHeader{EventType: binlog.QUERY_EVENT, Timestamp: 100}}
	assert.Same(t, q, h.HandleEvent(q))
	assert.Same(t, q, h.HandleEvent(q))

	rows := &binlog.Event{Header: binlog.EventHeader{EventType: binlog.WRITE_ROWS_EVENTv2}, Data: &binlog.RowsEvent{}}
	tm := &binlog.Event{Header: binlog.EventHeader{EventType: binlog.TABLE_MAP_EVENT}, Data: &binlog.TableMapEvent{}}
	tx := &binlog.TransactionEvent{Events: []*binlog.Event{tm, rows, rows}}
	txEvent := &binlog.Event{Header: binlog.EventHeader{EventType: binlog.TRANSACTION_EVENT}, Data: tx}
	assert.Same(t, txEvent, h.HandleTransaction(txEvent, tx))

	events := gather(t, "binlog_stream_events_total")
	require.Len(t, events, 2)
	counts := map[string]float64{}
	for _, m := range events {
		counts[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	assert.Equal(t, 2.0, counts[binlog.QUERY_EVENT.String()])
	assert.Equal(t, 1.0, counts[binlog.TRANSACTION_EVENT.String()])

	txs := gather(t, "binlog_stream_transactions_total")
	require.Len(t, txs, 1)
	assert.Equal(t, 1.0, txs[0].GetCounter().GetValue())

	re := gather(t, "binlog_stream_rows_events_total")
	require.Len(t, re, 1)
	assert.Equal(t, 2.0, re[0].GetCounter().GetValue())

	ts := gather(t, "binlog_stream_last_event_timestamp_seconds")
	require.Len(t, ts, 1)
	assert.Equal(t, 100.0, ts[0].GetGauge().GetValue())
}

func TestMetricsHandler(t *testing.T) {
	withRegistry(t)
	c := NewCounter("test", "hits_total", "hits")
	c.Inc()

	handler := GetMetricsHandler()
	require.NotNil(t, handler)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "binlog_test_hits_total 1"))
}
