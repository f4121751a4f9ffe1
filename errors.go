package binlog

import (
	"errors"
	"fmt"
	"io"
)

// ErrorCode classifies failures surfaced by drivers and the Log.
type ErrorCode int

const (
	ErrOK ErrorCode = iota
	ErrEOF
	ErrFail
	ErrChecksumQueryFail
	ErrConnect
	ErrBinlogVersion
	ErrPacketLength
	ErrMySQLQueryFail
	errorCodeCount
)

var errorMessages = [errorCodeCount]string{
	ErrOK:   "All OK",
	ErrEOF:  "End of File",
	ErrFail: "Unexpected failure",
	ErrChecksumQueryFail: "Could not notify master about checksum awareness.\n" +
		"Master returned no rows for the query\n" +
		"SHOW VARIABLES LIKE 'BINLOG_CHECKSUM'",
	ErrConnect:       "Unable to set up connection",
	ErrBinlogVersion: "Binlog Version not supported",
	ErrPacketLength: "Error in packet length. Binlog checksums may be enabled on the master.\n" +
		"Please set it to NONE.",
	ErrMySQLQueryFail: "Error in executing MySQL Query on the server",
}

// StrError returns the fixed message for code.
func StrError(code ErrorCode) string {
	if code < 0 || code >= errorCodeCount {
		return "Unknown error"
	}
	return errorMessages[code]
}

func (c ErrorCode) String() string {
	return StrError(c)
}

// Error implements error so that codes can be used as errors.Is targets.
func (c ErrorCode) Error() string {
	return StrError(c)
}

// Error is returned by drivers. It carries the ErrorCode and
// the operation that failed along with the underlying cause, if any.
type Error struct {
	Code ErrorCode
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("binlog.%s: %s", e.Op, StrError(e.Code))
	}
	return fmt.Sprintf("binlog.%s: %s: %v", e.Op, StrError(e.Code), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports true for the same ErrorCode. ErrEOF also matches io.EOF.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case ErrorCode:
		return e.Code == t
	case *Error:
		return e.Code == t.Code
	}
	return e.Code == ErrEOF && target == io.EOF
}

func newError(code ErrorCode, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

// CodeOf returns the ErrorCode carried by err. nil maps to ErrOK,
// io.EOF to ErrEOF and anything else without a code to ErrFail.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ErrOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var c ErrorCode
	if errors.As(err, &c) {
		return c
	}
	if errors.Is(err, io.EOF) {
		return ErrEOF
	}
	return ErrFail
}

// ErrMalformedPacket used to indicate malformed packet.
var ErrMalformedPacket = errors.New("malformed packet")
