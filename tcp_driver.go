package binlog

import (
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/rs/zerolog/log"
)

// LOG_EVENT_ARTIFICIAL_F marks events made up by the server, such as
// the rotate event sent first in a dump. Their NextPos is meaningless.
const LOG_EVENT_ARTIFICIAL_F = 0x0020

const (
	defaultDialTimeout       = 10 * time.Second
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = time.Second
	maxReconnectDelay        = 30 * time.Second
)

// TCPOptions tunes TCPDriver.
type TCPOptions struct {
	// ServerID identifies this client to the server as a replica.
	// It must be unique among replicas of the server.
	ServerID uint32

	// Heartbeat asks the server to send heartbeat events when idle.
	// Reads time out after twice this period.
	Heartbeat time.Duration

	// SSL upgrades the connection to tls. TLS overrides the config
	// used, default skips certificate verification.
	SSL bool
	TLS *tls.Config

	DialTimeout time.Duration

	// ReconnectAttempts limits reconnects after the connection is
	// lost while streaming. Negative disables reconnecting.
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	// Clock used to wait between reconnects. Defaults to wall clock.
	Clock clock.Clock
}

func (o *TCPOptions) setDefaults() {
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	if o.ReconnectAttempts == 0 {
		o.ReconnectAttempts = defaultReconnectAttempts
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = defaultReconnectDelay
	}
	if o.Clock == nil {
		o.Clock = clock.WallClock
	}
	if o.ServerID == 0 {
		o.ServerID = 1 << 30
	}
}

// TCPDriver streams events from a mysql server using COM_BINLOG_DUMP.
type TCPDriver struct {
	user, passwd string
	host         string
	port         int
	opts         TCPOptions

	file     string
	pos      uint32
	s        *session
	checksum bool
	buf      eventBuffer
}

// NewTCPDriver creates driver for the server at host:port. Connect
// starts at the current master position unless a file is given
// through ConnectAt.
func NewTCPDriver(user, passwd, host string, port int, opts TCPOptions) *TCPDriver {
	opts.setDefaults()
	return &TCPDriver{
		user:   user,
		passwd: passwd,
		host:   host,
		port:   port,
		opts:   opts,
		pos:    MagicSize,
	}
}

func (d *TCPDriver) address() string {
	return net.JoinHostPort(d.host, strconv.Itoa(d.port))
}

func (d *TCPDriver) Connect() error {
	_ = d.Disconnect()
	return d.connect()
}

func (d *TCPDriver) ConnectAt(file string, pos uint32) error {
	if pos < MagicSize {
		return newError(ErrFail, "ConnectAt", fmt.Errorf("position %d is inside magic number", pos))
	}
	_ = d.Disconnect()
	d.file, d.pos = file, pos
	return d.connect()
}

// connect opens a session and issues the dump request from the
// current position.
func (d *TCPDriver) connect() (err error) {
	s, err := dial("tcp", d.address(), d.opts.DialTimeout)
	if err != nil {
		return newError(ErrConnect, "Connect", err)
	}
	defer func() {
		if err != nil {
			_ = s.close()
		}
	}()
	if d.opts.SSL || d.opts.TLS != nil {
		if !s.isSSLSupported() {
			return newError(ErrConnect, "Connect", errors.New("server does not support ssl"))
		}
		if err := s.upgradeSSL(d.opts.TLS); err != nil {
			return newError(ErrConnect, "Connect", err)
		}
	}
	if err := s.authenticate(d.user, d.passwd); err != nil {
		return newError(ErrConnect, "Connect", err)
	}
	sv, err := parseServerVersion(s.hs.serverVersion)
	if err != nil {
		return newError(ErrBinlogVersion, "Connect", err)
	}
	if v := sv.binlogVersion(); v < 4 {
		return newError(ErrBinlogVersion, "Connect", fmt.Errorf("server %s uses binlog version %d", s.hs.serverVersion, v))
	}

	checksum, err := s.fetchBinlogChecksum()
	if err != nil {
		return newError(ErrChecksumQueryFail, "Connect", err)
	}
	d.checksum = checksum != "" && checksum != "NONE"
	if d.checksum {
		// tell server that we understand checksums
		if _, err := s.query("SET @master_binlog_checksum = @@global.binlog_checksum"); err != nil {
			return newError(ErrChecksumQueryFail, "Connect", err)
		}
	}
	if d.opts.Heartbeat > 0 {
		if err := s.setHeartbeatPeriod(d.opts.Heartbeat); err != nil {
			return newError(ErrMySQLQueryFail, "Connect", err)
		}
		s.timeout = 2 * d.opts.Heartbeat
	}
	if d.file == "" {
		file, pos, err := sessionMasterStatus(s)
		if err != nil {
			return err
		}
		d.file, d.pos = file, pos
	}

	err = s.command(comBinlogDump{
		binlogPos:      d.pos,
		serverID:       d.opts.ServerID,
		binlogFilename: d.file,
	})
	if err != nil {
		return newError(ErrConnect, "Connect", err)
	}
	d.s = s
	log.Debug().Str("server", d.address()).Str("version", s.hs.serverVersion).
		Str("file", d.file).Uint32("pos", d.pos).Bool("checksum", d.checksum).
		Msg("binlog dump requested")
	return nil
}

// Disconnect closes the connection. It can be called more than once.
func (d *TCPDriver) Disconnect() error {
	if d.s == nil {
		return nil
	}
	err := d.s.close()
	d.s = nil
	return err
}

// SetPosition reconnects from given position. Empty file means the
// current file. If the dump cannot be restarted, the old position is
// kept.
func (d *TCPDriver) SetPosition(file string, pos uint32) error {
	if pos < MagicSize {
		return newError(ErrFail, "SetPosition", fmt.Errorf("position %d is inside magic number", pos))
	}
	if file == "" {
		file = d.file
	}
	if d.s == nil {
		d.file, d.pos = file, pos
		return nil
	}
	oldFile, oldPos := d.file, d.pos
	_ = d.Disconnect()
	d.file, d.pos = file, pos
	if err := d.connect(); err != nil {
		d.file, d.pos = oldFile, oldPos
		if rerr := d.connect(); rerr != nil {
			log.Warn().Err(rerr).Msg("binlog reconnect to old position failed")
		}
		return err
	}
	return nil
}

func (d *TCPDriver) Position() (string, uint32, error) {
	return d.file, d.pos, nil
}

func (d *TCPDriver) FileSize() int64 {
	return 0
}

// ChecksumEnabled tells whether events carry CRC32 checksum.
func (d *TCPDriver) ChecksumEnabled() bool {
	return d.checksum
}

// Allocs reports how many times the receive buffer was reallocated.
func (d *TCPDriver) Allocs() int {
	return d.buf.Allocs()
}

// NextEvent blocks until server sends next event. A lost connection
// is reestablished from the position after the last event returned.
func (d *TCPDriver) NextEvent() ([]byte, error) {
	if d.s == nil {
		return nil, newError(ErrFail, "NextEvent", errors.New("not connected"))
	}
	for {
		payload, err := d.s.readPacket(&d.buf)
		if err != nil {
			if err := d.reconnect(err); err != nil {
				return nil, err
			}
			continue
		}
		if len(payload) == 0 {
			return nil, newError(ErrPacketLength, "NextEvent", ErrMalformedPacket)
		}
		switch payload[0] {
		case okMarker:
			ev := payload[1:]
			if len(ev) < eventHeaderSize || int(eventSize(ev)) != len(ev) {
				return nil, newError(ErrPacketLength, "NextEvent", fmt.Errorf("event of %d bytes", len(ev)))
			}
			d.track(ev)
			return ev, nil
		case errMarker:
			ep := &errPacket{}
			if err := ep.decode(newReader(payload), d.s.hs.capabilityFlags); err != nil {
				return nil, newError(ErrFail, "NextEvent", err)
			}
			return nil, newError(ErrFail, "NextEvent", ep)
		case eofMarker:
			return nil, newError(ErrEOF, "NextEvent", io.EOF)
		default:
			return nil, newError(ErrFail, "NextEvent", fmt.Errorf("got %#02x want OK-byte", payload[0]))
		}
	}
}

// track advances the position past ev.
func (d *TCPDriver) track(ev []byte) {
	typ := EventType(ev[4])
	if typ == ROTATE_EVENT {
		body := ev[eventHeaderSize:]
		if d.checksum && len(body) >= 4 {
			body = body[:len(body)-4]
		}
		if len(body) >= 8 {
			d.pos = uint32(binary.LittleEndian.Uint64(body))
			d.file = string(body[8:])
		}
		return
	}
	nextPos := binary.LittleEndian.Uint32(ev[13:])
	flags := binary.LittleEndian.Uint16(ev[17:])
	if nextPos != 0 && flags&LOG_EVENT_ARTIFICIAL_F == 0 {
		d.pos = nextPos
	}
}

// reconnect replaces the broken session. It gives up on errors
// other than network failures.
func (d *TCPDriver) reconnect(cause error) error {
	_ = d.Disconnect()
	if d.opts.ReconnectAttempts < 0 || !isNetworkError(cause) {
		return newError(ErrConnect, "NextEvent", cause)
	}
	log.Warn().Err(cause).Str("file", d.file).Uint32("pos", d.pos).Msg("binlog connection lost, reconnecting")
	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func:         d.connect,
		IsFatalError: func(err error) bool { return !isNetworkError(err) },
		NotifyFunc: func(err error, attempt int) {
			log.Debug().Err(err).Int("attempt", attempt).Msg("binlog reconnect failed")
			lastErr = err
		},
		Attempts:    d.opts.ReconnectAttempts,
		Delay:       d.opts.ReconnectDelay,
		MaxDelay:    maxReconnectDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       d.opts.Clock,
	})
	if err == nil {
		return nil
	}
	if retry.IsAttemptsExceeded(err) && lastErr != nil {
		err = lastErr
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return newError(ErrConnect, "NextEvent", err)
}

func isNetworkError(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
