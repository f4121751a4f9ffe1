package binlog

import (
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Resetter is implemented by handlers keeping state that becomes
// stale when the log is repositioned or disconnected.
type Resetter interface {
	Reset()
}

// Log reads events from a Driver, decodes them and runs them
// through the registered content handlers.
//
// Log is not safe for concurrent use.
type Log struct {
	driver   Driver
	decoder  *Decoder
	pipeline Pipeline
	pos      Position
}

// NewLog creates Log reading from d. If d is nil, a driver
// that fails to connect is used.
func NewLog(d Driver) *Log {
	if d == nil {
		d = dummyDriver{}
	}
	return &Log{driver: d, decoder: NewDecoder(DefaultTableCacheSize)}
}

// Driver returns the underlying driver.
func (l *Log) Driver() Driver {
	return l.driver
}

// Decoder returns the decoder used, to tune it before reading.
func (l *Log) Decoder() *Decoder {
	return l.decoder
}

// SetDecoder replaces the decoder. Call it before Connect.
func (l *Log) SetDecoder(d *Decoder) {
	l.decoder = d
}

// AddHandler appends h to the content handler pipeline.
func (l *Log) AddHandler(h ContentHandler) {
	l.pipeline.Add(h)
}

func (l *Log) Connect() error {
	if err := l.driver.Connect(); err != nil {
		return err
	}
	l.connected()
	return nil
}

func (l *Log) ConnectAt(file string, pos uint32) error {
	if err := l.driver.ConnectAt(file, pos); err != nil {
		return err
	}
	l.connected()
	return nil
}

func (l *Log) connected() {
	l.decoder.Reset()
	l.refresh()
	if cs, ok := l.driver.(interface{ ChecksumEnabled() bool }); ok {
		l.decoder.SetChecksum(cs.ChecksumEnabled())
	}
}

// refresh caches the driver's position, following file changes.
func (l *Log) refresh() {
	file, pos, err := l.driver.Position()
	if err != nil {
		return
	}
	if file != l.pos.File {
		l.decoder.SetLogFile(filepath.Base(file))
	}
	l.pos = Position{File: file, Offset: pos}
}

// Disconnect closes the driver. Handlers holding an open
// transaction are reset.
func (l *Log) Disconnect() error {
	l.resetHandlers()
	return l.driver.Disconnect()
}

func (l *Log) resetHandlers() {
	for _, h := range l.pipeline.handlers {
		if r, ok := h.(Resetter); ok {
			r.Reset()
		}
	}
	if n := len(l.pipeline.queue); n > 0 {
		log.Debug().Int("events", n).Msg("discarding injected events")
		l.pipeline.queue = nil
	}
}

// SetPosition moves the driver to pos of file. The cached position
// changes only on success.
func (l *Log) SetPosition(file string, pos uint32) error {
	if err := l.driver.SetPosition(file, pos); err != nil {
		return err
	}
	l.decoder.Reset()
	l.resetHandlers()
	l.refresh()
	return nil
}

// SetOffset moves to pos in the current file.
func (l *Log) SetOffset(pos uint32) error {
	return l.SetPosition(l.pos.File, pos)
}

// Offset returns the cached offset, without asking the driver.
func (l *Log) Offset() uint32 {
	return l.pos.Offset
}

// Position returns the driver's current position.
func (l *Log) Position() (Position, error) {
	file, pos, err := l.driver.Position()
	if err != nil {
		return Position{}, err
	}
	return Position{File: file, Offset: pos}, nil
}

func (l *Log) FileSize() int64 {
	return l.driver.FileSize()
}

// NextEvent returns the next event that comes out of the pipeline.
// Events consumed by handlers are skipped. Injected events are
// returned before new events are fetched.
func (l *Log) NextEvent() (*Event, error) {
	for {
		if e, ok := l.pipeline.dequeue(); ok {
			if e = l.pipeline.HandleEvent(e); e != nil {
				return e, nil
			}
			continue
		}
		buf, err := l.driver.NextEvent()
		if err != nil {
			return nil, err
		}
		// a rotate belongs to the file it ends. Drivers that already
		// moved to the next file are looked at after decoding it.
		rotate := len(buf) > 4 && EventType(buf[4]) == ROTATE_EVENT
		if !rotate {
			l.refresh()
		}
		e, err := l.decoder.Decode(buf)
		if err != nil {
			return nil, err
		}
		if rotate {
			l.refresh()
		}
		if e = l.pipeline.HandleEvent(e); e != nil {
			return e, nil
		}
	}
}
