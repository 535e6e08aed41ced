package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/aweris/persist/internal/compression"
	"github.com/aweris/persist/internal/fsutil"
)

// Registry keeps one Store per canonical directory path. Stores leave the
// registry only when their last holder closes them.
type Registry struct {
	logger     *zap.Logger
	factory    LeafFactory
	compressor *compression.Compressor

	mu     sync.Mutex
	stores map[string]*Store

	// stopping is set while Shutdown closes stores; shut once it is done.
	stopping bool
	shut     bool

	// private registries belong to a single Open call and shut down with
	// their last store.
	private bool
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) (*Registry, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	compressor, err := compression.NewCompressor(options.CompressionLevel, options.Compress)
	if err != nil {
		return nil, err
	}

	factory := options.Factory
	if factory == nil {
		factory = &fileFactory{compressor: compressor}
	}

	return &Registry{
		logger:     options.Logger,
		factory:    factory,
		compressor: compressor,
		stores:     make(map[string]*Store),
	}, nil
}

// Open creates or opens the Store for the directory at path. The directory
// is created when missing. Opening a path that is already open returns the
// same Store; asking for writable access upgrades it.
//
// Every Open must be paired with a Close on the returned Store. Changes that
// were never synced are lost when Close is skipped.
func Open(path string, writable bool, opts ...Option) (*Store, error) {
	reg, err := NewRegistry(opts...)
	if err != nil {
		return nil, err
	}
	reg.private = true

	s, err := reg.Open(path, writable)
	if err != nil {
		reg.Shutdown()
		return nil, err
	}
	return s, nil
}

func (r *Registry) Open(path string, writable bool) (*Store, error) {
	dir, err := canonicalPath(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shut {
		return nil, ErrClosed
	}
	if s, ok := r.stores[dir]; ok {
		s.refs++
		if writable && !s.writable {
			s.SetWritable(true)
		}
		return s, nil
	}

	meta, err := loadMetadata(dir)
	if err != nil {
		return nil, err
	}

	s := newStore(r, dir, meta)
	s.refs = 1
	s.writable = writable
	r.stores[dir] = s

	r.logger.Debug("store opened", zap.String("dir", dir), zap.Bool("writable", writable))
	return s, nil
}

// Close removes s from the registry. Closing a store that is no longer
// registered does nothing.
func (r *Registry) Close(s *Store) {
	r.mu.Lock()
	if cur, ok := r.stores[s.dir]; ok && cur == s {
		delete(r.stores, s.dir)
		r.logger.Debug("store closed", zap.String("dir", s.dir))
	}
	last := r.private && !r.stopping && len(r.stores) == 0
	r.mu.Unlock()

	if last {
		r.Shutdown()
	}
}

// Shutdown closes every open Store, however many references it holds, and
// releases the compressor. Open fails with ErrClosed afterwards.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	if r.shut || r.stopping {
		r.mu.Unlock()
		return nil
	}
	r.stopping = true
	open := make([]*Store, 0, len(r.stores))
	for _, dir := range sortedKeys(r.stores) {
		open = append(open, r.stores[dir])
	}
	r.mu.Unlock()

	var errs error
	for _, s := range open {
		for !s.closed {
			errs = multierr.Append(errs, s.Close())
		}
	}

	r.mu.Lock()
	r.shut = true
	r.mu.Unlock()

	errs = multierr.Append(errs, r.compressor.Close())
	if errs != nil {
		r.logger.Warn("shutdown incomplete", zap.Error(errs))
	}
	return errs
}

// Lookup returns the open Store for path, if any.
func (r *Registry) Lookup(path string) (*Store, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, false
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[abs]
	return s, ok
}

// Len returns the number of open stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// release drops one reference to s and reports whether it was the last.
func (r *Registry) release(s *Store) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.refs > 0 {
		s.refs--
	}
	return s.refs == 0
}

func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	if err := os.MkdirAll(abs, fsutil.DirPerm); err != nil {
		return "", ioError("create", abs, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", ioError("resolve", abs, err)
	}
	return resolved, nil
}
