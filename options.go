package persist

import (
	"go.uber.org/zap"
)

// Compression levels for leaf files.
const (
	CompressionFastest = 1
	CompressionDefault = 2
	CompressionBest    = 3
)

// Options configures a Registry.
type Options struct {
	Logger           *zap.Logger
	Factory          LeafFactory
	Compress         bool
	CompressionLevel int
}

// Option is a functional option for configuring NewRegistry and Open.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Logger:           zap.NewNop(),
		CompressionLevel: CompressionDefault,
	}
}

// WithLogger sets the logger used for sync and teardown diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithLeafFactory replaces the default directory/leaf-file dispatch.
func WithLeafFactory(f LeafFactory) Option {
	return func(o *Options) { o.Factory = f }
}

// WithCompression enables zstd compression for leaf files written by this
// registry. Compressed leaves are always readable, whatever this setting.
func WithCompression(level int) Option {
	return func(o *Options) {
		o.Compress = true
		if level > 0 {
			o.CompressionLevel = level
		}
	}
}
