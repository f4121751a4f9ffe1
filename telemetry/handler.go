package telemetry

import (
	binlog "github.com/santhosh-tekuri/binlog/v2"
)

// Handler is a content handler counting events flowing through the
// pipeline. It never consumes events.
type Handler struct {
	binlog.Passthrough
	events       CounterVec
	transactions Counter
	rowsEvents   Counter
	txSize       Histogram
	lag          Gauge
}

// NewHandler creates the metrics of the handler. Call it after
// InitializeTelemetry.
func NewHandler() *Handler {
	return &Handler{
		events:       NewCounterVec("stream", "events_total", "Events by type", []string{"type"}),
		transactions: NewCounter("stream", "transactions_total", "Committed transactions"),
		rowsEvents:   NewCounter("stream", "rows_events_total", "Rows events in committed transactions"),
		txSize: NewHistogram("stream", "transaction_events", "Events per transaction",
			[]float64{1, 2, 5, 10, 50, 100, 500, 1000}),
		lag: NewGauge("stream", "last_event_timestamp_seconds", "Timestamp of last event"),
	}
}

func (h *Handler) HandleEvent(e *binlog.Event) *binlog.Event {
	h.events.With(e.Header.EventType.String()).Inc()
	if e.Header.Timestamp != 0 {
		h.lag.Set(float64(e.Header.Timestamp))
	}
	return e
}

func (h *Handler) HandleTransaction(e *binlog.Event, tx *binlog.TransactionEvent) *binlog.Event {
	h.HandleEvent(e)
	h.transactions.Inc()
	h.rowsEvents.Add(float64(len(tx.RowsEvents())))
	h.txSize.Observe(float64(len(tx.Events)))
	return e
}
