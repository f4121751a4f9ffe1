package binlog

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

const indexFile = "binlog.index"

// Dump copies events from d into dir, one file per binary log file,
// and maintains binlog.index like the server does. d must be connected.
// Dump returns nil when d reports ErrEOF.
//
// To resume an earlier dump, connect d at LastPosition(dir).
func Dump(d Driver, dir string) error {
	resumeFile, resumeOffset, err := d.Position()
	if err != nil {
		return err
	}
	resumeFile = filepath.Base(resumeFile)

	var (
		f       *os.File
		name    string
		written int64
	)
	defer func() {
		if f != nil {
			_ = f.Close()
		}
	}()
	switchFile := func(next string) error {
		if f != nil {
			if err := f.Close(); err != nil {
				return err
			}
			f = nil
		}
		var err error
		if next == resumeFile && resumeOffset > MagicSize && fileExists(filepath.Join(dir, next)) {
			f, err = openForResume(filepath.Join(dir, next), int64(resumeOffset))
			written = int64(resumeOffset)
		} else {
			f, err = createFile(dir, next)
			written = MagicSize
		}
		if err != nil {
			return err
		}
		name = next
		log.Debug().Str("file", next).Int64("offset", written).Msg("dumping binlog file")
		return nil
	}

	for {
		buf, err := d.NextEvent()
		if err != nil {
			if CodeOf(err) == ErrEOF {
				return nil
			}
			return err
		}
		file, _, err := d.Position()
		if err != nil {
			return err
		}
		file = filepath.Base(file)

		switch EventType(buf[4]) {
		case HEARTBEAT_EVENT:
			continue
		case ROTATE_EVENT:
			// rotate at end of file belongs to that file, the one
			// made up by server does not exist in any file
			flags := binary.LittleEndian.Uint16(buf[17:])
			if f != nil && flags&LOG_EVENT_ARTIFICIAL_F == 0 && binary.LittleEndian.Uint32(buf) != 0 {
				if _, err := f.Write(buf); err != nil {
					return err
				}
				written += int64(len(buf))
			}
			if file != name {
				if err := switchFile(file); err != nil {
					return err
				}
			}
			continue
		}
		if f == nil || file != name {
			if err := switchFile(file); err != nil {
				return err
			}
		}
		if EventType(buf[4]) == FORMAT_DESCRIPTION_EVENT && written > MagicSize {
			continue
		}
		if _, err := f.Write(buf); err != nil {
			return err
		}
		written += int64(len(buf))
	}
}

func fileExists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// openForResume opens file for appending after dropping
// everything beyond offset.
func openForResume(file string, offset int64) (*os.File, error) {
	f, err := os.OpenFile(file, os.O_WRONLY, 0666)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(offset); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func appendLine(file, line string) error {
	f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("binlog.appendLine: error in appending to %s: %v", indexFile, err)
	}
	return f.Close()
}

// createFile creates file in dir with magic number and lists it
// in binlog.index.
func createFile(dir, file string) (*os.File, error) {
	f, err := os.Create(filepath.Join(dir, file))
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(fileHeader); err != nil {
		_ = f.Close()
		return nil, err
	}
	listed, err := indexed(dir, file)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !listed {
		if err := appendLine(filepath.Join(dir, indexFile), file); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

// indexed tells whether binlog.index in dir lists file.
func indexed(dir, file string) (bool, error) {
	files, err := readIndex(dir)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, f := range files {
		if f == file {
			return true, nil
		}
	}
	return false, nil
}

func readIndex(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, indexFile))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var files []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		if line := s.Text(); line != "" {
			files = append(files, filepath.Base(line))
		}
	}
	return files, s.Err()
}

// LastPosition returns the position after the last complete event
// in the last file of binlog.index in dir. A partially written event
// at the end is ignored.
func LastPosition(dir string) (Position, error) {
	files, err := readIndex(dir)
	if err != nil {
		return Position{}, fmt.Errorf("binlog.LastPosition: %w", err)
	}
	if len(files) == 0 {
		return Position{}, fmt.Errorf("binlog.LastPosition: %s is empty", indexFile)
	}
	last := files[len(files)-1]
	f, err := os.Open(filepath.Join(dir, last))
	if err != nil {
		return Position{}, fmt.Errorf("binlog.LastPosition: error in open last file: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return Position{}, err
	}
	pos := Position{File: last, Offset: MagicSize}
	header := make([]byte, eventHeaderSize)
	for {
		if int64(pos.Offset)+eventHeaderSize > fi.Size() {
			return pos, nil
		}
		if _, err := f.ReadAt(header, int64(pos.Offset)); err != nil {
			return Position{}, err
		}
		size := eventSize(header)
		if size < eventHeaderSize || int64(pos.Offset)+int64(size) > fi.Size() {
			// partial record found
			return pos, nil
		}
		pos.Offset += size
	}
}
