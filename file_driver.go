package binlog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// FileDriver reads events from binary log files on disk.
type FileDriver struct {
	// FollowIndex makes NextEvent continue with the next file listed in
	// binlog.index of the same directory, instead of returning ErrEOF.
	FollowIndex bool

	name       string
	pos        uint32
	file       *os.File
	size       int64
	buf        eventBuffer
	header     [eventHeaderSize]byte
	fdePending bool
}

// NewFileDriver creates driver for the binary log file at path.
// Connect starts reading at pos.
func NewFileDriver(path string, pos uint32) *FileDriver {
	if pos < MagicSize {
		pos = MagicSize
	}
	return &FileDriver{name: path, pos: pos}
}

func (d *FileDriver) Connect() error {
	if err := d.open(d.name); err != nil {
		return err
	}
	if d.pos < MagicSize {
		_ = d.Disconnect()
		return newError(ErrFail, "Connect", fmt.Errorf("position %d is inside magic number", d.pos))
	}
	if int64(d.pos) > d.size {
		_ = d.Disconnect()
		return newError(ErrEOF, "Connect", fmt.Errorf("position %d is beyond size %d", d.pos, d.size))
	}
	// reading from middle of file, deliver FormatDescriptionEvent first
	d.fdePending = d.pos > MagicSize
	log.Debug().Str("file", d.name).Uint32("pos", d.pos).Int64("size", d.size).Msg("binlog file opened")
	return nil
}

func (d *FileDriver) ConnectAt(file string, pos uint32) error {
	_ = d.Disconnect()
	d.name, d.pos = file, pos
	return d.Connect()
}

// open opens name and validates its header. On success the
// current file is replaced.
func (d *FileDriver) open(name string) error {
	f, err := os.Open(name)
	if err != nil {
		return newError(ErrFail, "Connect", err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return newError(ErrFail, "Connect", err)
	}
	if err := checkFileHeader(f, fi.Size()); err != nil {
		_ = f.Close()
		return err
	}
	if d.file != nil {
		_ = d.file.Close()
	}
	d.file, d.name, d.size = f, name, fi.Size()
	return nil
}

// checkFileHeader verifies the magic number and that the first
// event is a FormatDescriptionEvent.
func checkFileHeader(f *os.File, size int64) error {
	magic := make([]byte, MagicSize)
	if _, err := f.ReadAt(magic, 0); err != nil || !bytes.Equal(magic, fileHeader) {
		return newError(ErrFail, "Connect", fmt.Errorf("%s has invalid fileheader", f.Name()))
	}
	if size == MagicSize {
		return nil
	}
	// probe type and length of first event
	probe := make([]byte, 13)
	if _, err := f.ReadAt(probe, MagicSize); err != nil {
		return newError(ErrBinlogVersion, "Connect", fmt.Errorf("%s: cannot read first event header: %v", f.Name(), err))
	}
	if typ := EventType(probe[4]); typ != FORMAT_DESCRIPTION_EVENT {
		return newError(ErrBinlogVersion, "Connect", fmt.Errorf("%s: first event is %s", f.Name(), typ))
	}
	return nil
}

// Disconnect closes the file. It can be called more than once.
func (d *FileDriver) Disconnect() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

func (d *FileDriver) SetPosition(file string, pos uint32) error {
	if d.file == nil {
		return newError(ErrFail, "SetPosition", errors.New("not connected"))
	}
	if pos < MagicSize {
		return newError(ErrFail, "SetPosition", fmt.Errorf("position %d is inside magic number", pos))
	}
	switched := false
	if file != "" && file != d.name && file != filepath.Base(d.name) {
		old := *d
		if filepath.Base(file) == file {
			file = filepath.Join(filepath.Dir(d.name), file)
		}
		d.file = nil
		if err := d.open(file); err != nil {
			*d = old
			return err
		}
		_ = old.file.Close()
		switched = true
	}
	if int64(pos) > d.size {
		d.refreshSize()
		if int64(pos) > d.size {
			return newError(ErrEOF, "SetPosition", fmt.Errorf("position %d is beyond size %d", pos, d.size))
		}
	}
	d.pos = pos
	// an undelivered format description is still owed
	d.fdePending = pos > MagicSize && (switched || d.fdePending)
	return nil
}

func (d *FileDriver) Position() (string, uint32, error) {
	return d.name, d.pos, nil
}

func (d *FileDriver) FileSize() int64 {
	return d.size
}

// Allocs reports how many times the receive buffer was reallocated.
func (d *FileDriver) Allocs() int {
	return d.buf.Allocs()
}

// NextEvent returns next event. It returns ErrEOF when the file has no
// complete event left, in which case the position is not moved.
func (d *FileDriver) NextEvent() ([]byte, error) {
	if d.file == nil {
		return nil, newError(ErrFail, "NextEvent", errors.New("not connected"))
	}
	if d.fdePending {
		buf, err := d.readAt(MagicSize)
		if err != nil {
			return nil, err
		}
		d.fdePending = false
		if EventType(buf[4]) == FORMAT_DESCRIPTION_EVENT {
			return buf, nil
		}
	}
	for {
		buf, err := d.readAt(d.pos)
		if err == nil {
			d.pos += uint32(len(buf))
			return buf, nil
		}
		if CodeOf(err) != ErrEOF || !d.FollowIndex {
			return nil, err
		}
		next, ierr := nextBinlogFile(d.name)
		if errors.Is(ierr, os.ErrNotExist) {
			return nil, err
		}
		if ierr != nil {
			return nil, newError(ErrFail, "NextEvent", ierr)
		}
		if next == "" {
			return nil, err
		}
		if _, serr := os.Stat(next); serr != nil {
			return nil, err
		}
		if oerr := d.open(next); oerr != nil {
			return nil, oerr
		}
		d.pos = MagicSize
		log.Debug().Str("file", next).Msg("switched to next binlog file")
	}
}

// readAt reads the event at pos into the receive buffer.
func (d *FileDriver) readAt(pos uint32) ([]byte, error) {
	if int64(pos)+eventHeaderSize > d.size {
		d.refreshSize()
		if int64(pos)+eventHeaderSize > d.size {
			return nil, newError(ErrEOF, "NextEvent", io.EOF)
		}
	}
	if _, err := d.file.ReadAt(d.header[:], int64(pos)); err != nil {
		return nil, newError(ErrFail, "NextEvent", err)
	}
	size := eventSize(d.header[:])
	if size < eventHeaderSize {
		return nil, newError(ErrPacketLength, "NextEvent", fmt.Errorf("event at %d has size %d", pos, size))
	}
	if int64(pos)+int64(size) > d.size {
		d.refreshSize()
		if int64(pos)+int64(size) > d.size {
			// partial event, maybe still being written
			return nil, newError(ErrEOF, "NextEvent", io.EOF)
		}
	}
	buf := d.buf.reserve(int(size))
	copy(buf, d.header[:])
	if _, err := d.file.ReadAt(buf[eventHeaderSize:], int64(pos)+eventHeaderSize); err != nil {
		return nil, newError(ErrFail, "NextEvent", err)
	}
	return buf, nil
}

func (d *FileDriver) refreshSize() {
	if fi, err := d.file.Stat(); err == nil {
		d.size = fi.Size()
	}
}

// nextBinlogFile returns the file following name in binlog.index,
// or "" if name is the last one.
func nextBinlogFile(name string) (string, error) {
	dir, file := filepath.Split(name)
	files, err := readIndex(dir)
	if err != nil {
		return "", err
	}
	for i := 0; i+1 < len(files); i++ {
		if files[i] == file {
			return filepath.Join(dir, files[i+1]), nil
		}
	}
	return "", nil
}
