package sink

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	binlog "github.com/santhosh-tekuri/binlog/v2"
	"github.com/santhosh-tekuri/binlog/v2/cfg"
)

// New creates the sink selected by config.
func New(config cfg.SinkConfiguration) (Sink, error) {
	switch config.Type {
	case cfg.SinkKafka:
		kc := DefaultKafkaConfig(config.Kafka.Brokers)
		if config.Kafka.BatchSize > 0 {
			kc.BatchSize = config.Kafka.BatchSize
		}
		if config.Kafka.BatchBytes > 0 {
			kc.BatchBytes = config.Kafka.BatchBytes
		}
		return NewKafkaSink(kc)
	case cfg.SinkNats:
		return NewNatsSink(NatsConfig{
			URL:           config.Nats.URL,
			MaxReconnects: config.Nats.MaxReconnects,
			ReconnectWait: time.Duration(config.Nats.ReconnectWaitSeconds) * time.Second,
			MaxAge:        time.Duration(config.Nats.StreamMaxAgeHours) * time.Hour,
		})
	case cfg.SinkStdout, "":
		return &WriterSink{W: os.Stdout}, nil
	}
	return nil, fmt.Errorf("unknown sink type %q", config.Type)
}

// WriterSink prints decoded records, one per line.
type WriterSink struct {
	W io.Writer
}

func (w *WriterSink) Publish(topic, key string, value []byte) error {
	r, err := Unmarshal(value)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w.W, "%s key=%q op=%d before=%v after=%v\n", topic, key, r.Operation, r.Before, r.After)
	return err
}

func (w *WriterSink) Close() error {
	return nil
}

// Publisher is a content handler publishing every row of committed
// transactions as ChangeRecord to topic "prefix.db.table". Add it
// after TransactionParser. Events are passed on unchanged.
//
// Publishing stops at the first failure, which is reported by Err.
type Publisher struct {
	binlog.Passthrough

	// Compress zstd encodes published values.
	Compress bool

	sink      Sink
	prefix    string
	err       error
	published int
}

func NewPublisher(s Sink, topicPrefix string) *Publisher {
	return &Publisher{sink: s, prefix: topicPrefix}
}

// Err returns the error which stopped publishing.
func (p *Publisher) Err() error {
	return p.err
}

// Published returns number of records published.
func (p *Publisher) Published() int {
	return p.published
}

// Topic returns the topic of given table.
func (p *Publisher) Topic(db, table string) string {
	if p.prefix == "" {
		return db + "." + table
	}
	return p.prefix + "." + db + "." + table
}

func (p *Publisher) HandleTransaction(e *binlog.Event, tx *binlog.TransactionEvent) *binlog.Event {
	if p.err != nil {
		return e
	}
	for _, re := range tx.RowsEvents() {
		if err := p.publishRows(e, tx, re); err != nil {
			p.err = err
			log.Error().Err(err).Str("file", e.Header.LogFile).Uint32("pos", e.Header.NextPos).Msg("publish failed")
			break
		}
	}
	return e
}

func (p *Publisher) publishRows(e *binlog.Event, tx *binlog.TransactionEvent, re *binlog.Event) error {
	rows := re.Data.(*binlog.RowsEvent)
	if rows.TableMap == nil {
		rows.TableMap = tx.TableMaps[rows.TableID]
	}
	tm := rows.TableMap
	if tm == nil {
		return fmt.Errorf("rows event at %d: no table map for table id %d", re.Header.NextPos, rows.TableID)
	}
	data, err := rows.Rows()
	if err != nil {
		return err
	}
	typ := re.Header.EventType
	cols, beforeCols := rows.Columns(), rows.ColumnsBeforeUpdate()
	topic := p.Topic(tm.SchemaName, tm.TableName)
	for _, row := range data {
		r := &ChangeRecord{
			File:      e.Header.LogFile,
			Pos:       e.Header.NextPos,
			Timestamp: tx.StartTime,
			ServerID:  e.Header.ServerID,
			Database:  tm.SchemaName,
			Table:     tm.TableName,
		}
		var keyImage map[string]interface{}
		switch {
		case typ.IsWriteRows():
			r.Operation = OpInsert
			r.After = image(cols, row.Values)
			keyImage = r.After
		case typ.IsUpdateRows():
			r.Operation = OpUpdate
			r.Before = image(beforeCols, row.Before)
			r.After = image(cols, row.Values)
			keyImage = r.Before
		case typ.IsDeleteRows():
			r.Operation = OpDelete
			r.Before = image(cols, row.Values)
			keyImage = r.Before
		}
		value, err := r.Marshal()
		if err != nil {
			return err
		}
		if p.Compress {
			value = compress(value)
		}
		if err := p.sink.Publish(topic, rowKey(tm, keyImage), value); err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
		p.published++
	}
	return nil
}

func columnName(c binlog.Column) string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("col%d", c.Ordinal)
}

func image(cols []binlog.Column, values []binlog.Value) map[string]interface{} {
	m := make(map[string]interface{}, len(values))
	for i, v := range values {
		if i < len(cols) {
			m[columnName(cols[i])] = v.Interface()
		}
	}
	return m
}

// rowKey joins primary key values, so changes of a row share a key.
// Rows of tables without known primary key share a key derived from
// the table name, which keeps them in order.
func rowKey(tm *binlog.TableMapEvent, values map[string]interface{}) string {
	if len(tm.PrimaryKey) == 0 {
		return fmt.Sprintf("%016x", xxhash.Sum64String(tm.SchemaName+"."+tm.TableName))
	}
	parts := make([]string, 0, len(tm.PrimaryKey))
	for _, i := range tm.PrimaryKey {
		if i < 0 || i >= len(tm.Columns) {
			continue
		}
		parts = append(parts, fmt.Sprintf("%v", values[columnName(tm.Columns[i])]))
	}
	return strings.Join(parts, ",")
}
