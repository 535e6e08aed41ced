// Package compression wraps zstd for leaf files.
package compression

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// ErrClosed is returned when a closed Compressor is asked to decode.
var ErrClosed = errors.New("compression: compressor is closed")

// frameMagic starts every zstd frame; plain leaf files never begin with it.
var frameMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// minSize is the smallest payload worth compressing.
const minSize = 128

type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	enabled bool
}

// NewCompressor returns a compressor for the given level (1 fastest, 3 best).
// A disabled compressor still decodes compressed input, so files written
// by a compressing process remain readable.
func NewCompressor(level int, enabled bool) (*Compressor, error) {
	var encoderLevel zstd.EncoderLevel
	switch level {
	case 1:
		encoderLevel = zstd.SpeedFastest
	case 3:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedDefault
	}

	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	c := &Compressor{decoder: decoder, enabled: enabled}
	if !enabled {
		return c, nil
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encoderLevel),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		decoder.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	c.encoder = encoder
	return c, nil
}

func (c *Compressor) Enabled() bool { return c.enabled }

// Compress returns data unchanged when compression is off, the payload is
// small, or the compressed form would not be smaller.
func (c *Compressor) Compress(data []byte) []byte {
	if !c.enabled || c.encoder == nil || len(data) < minSize {
		return data
	}

	compressed := c.encoder.EncodeAll(data, make([]byte, 0, len(data)))
	if len(compressed) >= len(data) {
		return data
	}
	return compressed
}

// Decompress decodes zstd frames and passes anything else through.
func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	if !IsCompressed(data) {
		return data, nil
	}
	if c.decoder == nil {
		return nil, ErrClosed
	}

	decompressed, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return decompressed, nil
}

// IsCompressed reports whether data starts with a zstd frame header.
func IsCompressed(data []byte) bool {
	return bytes.HasPrefix(data, frameMagic)
}

// Close releases the encoder and decoder. It may be called more than once;
// a closed Compressor stores data uncompressed and cannot decode frames.
func (c *Compressor) Close() error {
	var err error
	if c.encoder != nil {
		err = c.encoder.Close()
		c.encoder = nil
	}
	if c.decoder != nil {
		c.decoder.Close()
		c.decoder = nil
	}
	return err
}
