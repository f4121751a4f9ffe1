package sink

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	decoderOnce sync.Once
	decoder     *zstd.Decoder
)

// compress zstd encodes data. Encoded data starts with the zstd
// magic number, which no msgpack map does.
func compress(data []byte) []byte {
	encoderOnce.Do(func() {
		// only fails for invalid options
		encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return encoder.EncodeAll(data, make([]byte, 0, len(data)))
}

// decompress returns data as is unless it is zstd encoded.
func decompress(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	decoderOnce.Do(func() {
		decoder, _ = zstd.NewReader(nil)
	})
	out, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress change record: %w", err)
	}
	return out, nil
}
