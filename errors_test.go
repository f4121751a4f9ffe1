package binlog

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrError(t *testing.T) {
	assert.Equal(t, "All OK", StrError(ErrOK))
	assert.Equal(t, "End of File", StrError(ErrEOF))
	assert.Equal(t, "Binlog Version not supported", StrError(ErrBinlogVersion))
	assert.Contains(t, StrError(ErrChecksumQueryFail), "SHOW VARIABLES LIKE 'BINLOG_CHECKSUM'")
	assert.Equal(t, "Unknown error", StrError(ErrorCode(100)))
	assert.Equal(t, "Unknown error", StrError(ErrorCode(-1)))
	for c := ErrOK; c < errorCodeCount; c++ {
		assert.NotEmpty(t, StrError(c), "code %d", c)
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{nil, ErrOK},
		{io.EOF, ErrEOF},
		{fmt.Errorf("wrapped: %w", io.EOF), ErrEOF},
		{errors.New("boom"), ErrFail},
		{ErrConnect, ErrConnect},
		{newError(ErrBinlogVersion, "Connect", nil), ErrBinlogVersion},
		{fmt.Errorf("outer: %w", newError(ErrMySQLQueryFail, "MasterStatus", io.EOF)), ErrMySQLQueryFail},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, CodeOf(test.err), "%v", test.err)
	}
}

func TestError(t *testing.T) {
	cause := errors.New("connection refused")
	err := newError(ErrConnect, "Connect", cause)
	assert.Equal(t, "binlog.Connect: Unable to set up connection: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrConnect)
	assert.NotErrorIs(t, err, ErrFail)

	eof := newError(ErrEOF, "NextEvent", nil)
	assert.Equal(t, "binlog.NextEvent: End of File", eof.Error())
	assert.ErrorIs(t, eof, io.EOF)
	assert.ErrorIs(t, eof, newError(ErrEOF, "Other", nil))
}
