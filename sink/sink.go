// Package sink publishes committed row changes of a binlog stream
// to message brokers.
package sink

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Operation types of ChangeRecord
const (
	OpInsert uint8 = 0
	OpUpdate uint8 = 1
	OpDelete uint8 = 2
)

// Sink represents a destination for change records (e.g., Kafka, NATS)
type Sink interface {
	// Publish sends a message to the sink
	Publish(topic string, key string, value []byte) error
	// Close releases any resources held by the sink
	Close() error
}

// ChangeRecord is one changed row of a committed transaction
type ChangeRecord struct {
	File      string                 `msgpack:"file"`   // Binlog file of the commit
	Pos       uint32                 `msgpack:"pos"`    // Position after last rows event
	Timestamp uint32                 `msgpack:"ts"`     // Transaction start time
	ServerID  uint32                 `msgpack:"server"` // Originating server
	Database  string                 `msgpack:"db"`
	Table     string                 `msgpack:"tbl"`
	Operation uint8                  `msgpack:"op"`     // 0=INSERT, 1=UPDATE, 2=DELETE
	Before    map[string]interface{} `msgpack:"before"` // Old values, nil for inserts
	After     map[string]interface{} `msgpack:"after"`  // New values, nil for deletes
}

// Marshal encodes r to msgpack.
func (r *ChangeRecord) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode change record: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a record encoded by Marshal. Compressed records
// are decompressed first.
func Unmarshal(data []byte) (*ChangeRecord, error) {
	data, err := decompress(data)
	if err != nil {
		return nil, err
	}
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	r := &ChangeRecord{}
	if err := dec.Decode(r); err != nil {
		return nil, fmt.Errorf("decode change record: %w", err)
	}
	return r, nil
}
