package binlog

// ContentHandler is a step of the Pipeline. HandleEvent receives every
// event for which the handler does not implement a kind specific
// interface below. Returning nil consumes the event; returning a
// different event replaces it for the following handlers.
type ContentHandler interface {
	HandleEvent(e *Event) *Event
}

// Kind specific handler interfaces. A handler implements the ones it
// is interested in; the Pipeline selects the method by event type.
type (
	QueryHandler interface {
		HandleQuery(e *Event, q *QueryEvent) *Event
	}
	XidHandler interface {
		HandleXid(e *Event, x *XidEvent) *Event
	}
	TableMapHandler interface {
		HandleTableMap(e *Event, tm *TableMapEvent) *Event
	}
	RowsHandler interface {
		HandleRows(e *Event, re *RowsEvent) *Event
	}
	RotateHandler interface {
		HandleRotate(e *Event, re *RotateEvent) *Event
	}
	FormatDescriptionHandler interface {
		HandleFormatDescription(e *Event, fde *FormatDescriptionEvent) *Event
	}
	IntVarHandler interface {
		HandleIntVar(e *Event, iv *IntVarEvent) *Event
	}
	UserVarHandler interface {
		HandleUserVar(e *Event, uv *UserVarEvent) *Event
	}
	RandHandler interface {
		HandleRand(e *Event, re *RandEvent) *Event
	}
	IncidentHandler interface {
		HandleIncident(e *Event, ie *IncidentEvent) *Event
	}
	StopHandler interface {
		HandleStop(e *Event, se *StopEvent) *Event
	}
	HeartbeatHandler interface {
		HandleHeartbeat(e *Event, he *HeartbeatEvent) *Event
	}
	RowsQueryHandler interface {
		HandleRowsQuery(e *Event, rq *RowsQueryEvent) *Event
	}
	GTIDHandler interface {
		HandleGTID(e *Event, ge *GTIDEvent) *Event
	}
	TransactionHandler interface {
		HandleTransaction(e *Event, tx *TransactionEvent) *Event
	}
)

// dispatch hands e to the kind specific method of h if there is one,
// falling back to HandleEvent.
func dispatch(h ContentHandler, e *Event) *Event {
	switch d := e.Data.(type) {
	case *QueryEvent:
		if qh, ok := h.(QueryHandler); ok {
			return qh.HandleQuery(e, d)
		}
	case *XidEvent:
		if xh, ok := h.(XidHandler); ok {
			return xh.HandleXid(e, d)
		}
	case *TableMapEvent:
		if th, ok := h.(TableMapHandler); ok {
			return th.HandleTableMap(e, d)
		}
	case *RowsEvent:
		if rh, ok := h.(RowsHandler); ok {
			return rh.HandleRows(e, d)
		}
	case *RotateEvent:
		if rh, ok := h.(RotateHandler); ok {
			return rh.HandleRotate(e, d)
		}
	case *FormatDescriptionEvent:
		if fh, ok := h.(FormatDescriptionHandler); ok {
			return fh.HandleFormatDescription(e, d)
		}
	case *IntVarEvent:
		if ih, ok := h.(IntVarHandler); ok {
			return ih.HandleIntVar(e, d)
		}
	case *UserVarEvent:
		if uh, ok := h.(UserVarHandler); ok {
			return uh.HandleUserVar(e, d)
		}
	case *RandEvent:
		if rh, ok := h.(RandHandler); ok {
			return rh.HandleRand(e, d)
		}
	case *IncidentEvent:
		if ih, ok := h.(IncidentHandler); ok {
			return ih.HandleIncident(e, d)
		}
	case *StopEvent:
		if sh, ok := h.(StopHandler); ok {
			return sh.HandleStop(e, d)
		}
	case *HeartbeatEvent:
		if hh, ok := h.(HeartbeatHandler); ok {
			return hh.HandleHeartbeat(e, d)
		}
	case *RowsQueryEvent:
		if rh, ok := h.(RowsQueryHandler); ok {
			return rh.HandleRowsQuery(e, d)
		}
	case *GTIDEvent:
		if gh, ok := h.(GTIDHandler); ok {
			return gh.HandleGTID(e, d)
		}
	case *TransactionEvent:
		if th, ok := h.(TransactionHandler); ok {
			return th.HandleTransaction(e, d)
		}
	}
	return h.HandleEvent(e)
}

// Passthrough can be embedded to get the identity HandleEvent.
type Passthrough struct{}

func (Passthrough) HandleEvent(e *Event) *Event {
	return e
}

// HandlerFunc adapts a function to ContentHandler.
type HandlerFunc func(e *Event) *Event

func (f HandlerFunc) HandleEvent(e *Event) *Event {
	return f(e)
}

// Injector accepts events to be replayed through the pipeline
// ahead of events fetched from the driver.
type Injector interface {
	Inject(e *Event)
}

// Injectable is implemented by handlers that want to inject events.
type Injectable interface {
	SetInjector(inj Injector)
}

// Pipeline runs events through handlers in the order they were added.
type Pipeline struct {
	handlers []ContentHandler
	queue    []*Event
}

// Add appends h to the pipeline. Handlers cannot be removed.
func (p *Pipeline) Add(h ContentHandler) {
	if h == nil {
		panic("binlog: Pipeline.Add called with nil handler")
	}
	if ih, ok := h.(Injectable); ok {
		ih.SetInjector(p)
	}
	p.handlers = append(p.handlers, h)
}

// Len returns number of handlers.
func (p *Pipeline) Len() int {
	return len(p.handlers)
}

// HandleEvent runs e through every handler and returns what comes out
// of the last one, or nil if some handler consumed it. e must not be nil.
func (p *Pipeline) HandleEvent(e *Event) *Event {
	if e == nil {
		panic("binlog: Pipeline.HandleEvent called with nil event")
	}
	for _, h := range p.handlers {
		if e = dispatch(h, e); e == nil {
			return nil
		}
	}
	return e
}

// Inject queues e for replay. Queued events are returned by
// Log.NextEvent before any new event is fetched.
func (p *Pipeline) Inject(e *Event) {
	if e != nil {
		p.queue = append(p.queue, e)
	}
}

// dequeue removes the oldest injected event.
func (p *Pipeline) dequeue() (*Event, bool) {
	if len(p.queue) == 0 {
		return nil, false
	}
	e := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return e, true
}
