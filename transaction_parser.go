package binlog

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// TransactionState is the state of TransactionParser.
type TransactionState int

const (
	NOT_IN_PROGRESS TransactionState = iota
	STARTING
	IN_PROGRESS
	COMMITTING
)

var transactionStateNames = [...]string{
	NOT_IN_PROGRESS: "notInProgress",
	STARTING:        "starting",
	IN_PROGRESS:     "inProgress",
	COMMITTING:      "committing",
}

func (s TransactionState) String() string {
	if s < 0 || int(s) >= len(transactionStateNames) {
		return "unknown"
	}
	return transactionStateNames[s]
}

// TransactionEvent is synthesized by TransactionParser when a
// transaction commits. Its header has type TRANSACTION_EVENT.
type TransactionEvent struct {
	StartTime uint32

	// Events holds table map and rows events in stream order.
	Events []*Event

	// TableMaps indexes table maps of Events by table id. If a table id
	// is mapped twice in a transaction, the later one wins here; rows
	// events keep pointing to the table map they were decoded with.
	TableMaps map[uint64]*TableMapEvent

	// CommitPos is the position after the commit event.
	CommitPos uint32
}

// RowsEvents returns the rows events of the transaction.
func (tx *TransactionEvent) RowsEvents() []*Event {
	var events []*Event
	for _, e := range tx.Events {
		if _, ok := e.Data.(*RowsEvent); ok {
			events = append(events, e)
		}
	}
	return events
}

// TransactionParser groups table map and rows events between BEGIN
// and COMMIT (or XID) into one TransactionEvent.
//
// It is not safe for concurrent use.
type TransactionParser struct {
	state     TransactionState
	startTime uint32
	pending   []*Event
}

func NewTransactionParser() *TransactionParser {
	return &TransactionParser{}
}

// State returns the current state.
func (p *TransactionParser) State() TransactionState {
	return p.state
}

// Pending returns number of buffered events of the open transaction.
func (p *TransactionParser) Pending() int {
	return len(p.pending)
}

// Reset discards the open transaction, if any. It is used when the
// stream ends or is repositioned before the transaction commits.
func (p *TransactionParser) Reset() {
	if len(p.pending) > 0 || p.state != NOT_IN_PROGRESS {
		log.Debug().
			Str("state", p.state.String()).
			Int("events", len(p.pending)).
			Msg("discarding open transaction")
	}
	p.pending = nil
	p.state = NOT_IN_PROGRESS
}

func (p *TransactionParser) HandleQuery(e *Event, q *QueryEvent) *Event {
	switch {
	case strings.HasPrefix(q.Query, "BEGIN"):
		p.state = STARTING
	case strings.HasPrefix(q.Query, "COMMIT"):
		p.state = COMMITTING
	}
	return p.HandleEvent(e)
}

func (p *TransactionParser) HandleXid(e *Event, _ *XidEvent) *Event {
	p.state = COMMITTING
	return p.HandleEvent(e)
}

func (p *TransactionParser) HandleTableMap(e *Event, _ *TableMapEvent) *Event {
	if p.state == IN_PROGRESS {
		p.pending = append(p.pending, e)
		return nil
	}
	return p.HandleEvent(e)
}

func (p *TransactionParser) HandleRows(e *Event, _ *RowsEvent) *Event {
	if p.state == IN_PROGRESS {
		p.pending = append(p.pending, e)
		return nil
	}
	return p.HandleEvent(e)
}

// HandleEvent applies the current state to e.
func (p *TransactionParser) HandleEvent(e *Event) *Event {
	switch p.state {
	case STARTING:
		p.startTime = e.Header.Timestamp
		p.state = IN_PROGRESS
		return nil
	case COMMITTING:
		tx := p.commit(e)
		p.state = NOT_IN_PROGRESS
		return tx
	}
	return e
}

// commit drains pending events into a TransactionEvent. e is the
// commit event; it is dropped.
func (p *TransactionParser) commit(e *Event) *Event {
	tx := &TransactionEvent{
		StartTime: p.startTime,
		TableMaps: make(map[uint64]*TableMapEvent),
		CommitPos: e.Header.NextPos,
	}
	h := EventHeader{
		Timestamp: p.startTime,
		EventType: TRANSACTION_EVENT,
		ServerID:  e.Header.ServerID,
		LogFile:   e.Header.LogFile,
		Flags:     e.Header.Flags,
	}
	for _, pe := range p.pending {
		switch d := pe.Data.(type) {
		case *TableMapEvent:
			tx.TableMaps[d.TableID] = d
			tx.Events = append(tx.Events, pe)
		case *RowsEvent:
			tx.Events = append(tx.Events, pe)
			h.NextPos = pe.Header.NextPos
			if _, ok := tx.TableMaps[d.TableID]; !ok && d.TableMap != nil {
				tx.TableMaps[d.TableID] = d.TableMap
			}
		}
	}
	p.pending = nil
	p.startTime = 0
	return &Event{Header: h, Data: tx}
}
