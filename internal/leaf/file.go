// Package leaf implements the flat-file mapping used for entries that are not
// subdirectories.
//
// Storage layout:
//
//	dir/
//	  alice   (YAML mapping, optionally a zstd frame)
//
// The file is read on first access and rewritten by Sync when it changed.
package leaf

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/aweris/persist/internal/compression"
	"github.com/aweris/persist/internal/fsutil"
	"github.com/aweris/persist/internal/keycodec"
	"github.com/aweris/persist/internal/value"
)

// File is a mapping persisted as a single file.
type File struct {
	path       string
	writable   bool
	compressor *compression.Compressor

	values map[string]any
	loaded bool
	dirty  bool
}

// Open returns the leaf backed by path. A missing file starts out empty and
// dirty, so the next Sync creates it.
func Open(path string, writable bool, compressor *compression.Compressor) *File {
	f := &File{
		path:       path,
		writable:   writable,
		compressor: compressor,
	}
	if !fsutil.Exists(path) {
		f.values = make(map[string]any)
		f.loaded = true
		f.dirty = true
	}
	return f
}

func (f *File) Path() string   { return f.path }
func (f *File) Writable() bool { return f.writable }
func (f *File) Dirty() bool    { return f.dirty }

// Fetch returns a copy of the value under key, or nil when absent.
// The empty key returns the leaf itself.
func (f *File) Fetch(key string) (any, error) {
	if key == "" {
		return f, nil
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return value.Clone(f.values[key]), nil
}

// Store records a copy of v under key.
func (f *File) Store(key string, v any) error {
	if key == "" {
		return keycodec.ErrInvalidKey
	}
	if err := f.load(); err != nil {
		return err
	}
	f.values[key] = value.Clone(v)
	f.dirty = true
	return nil
}

func (f *File) Delete(key string) error {
	if err := f.load(); err != nil {
		return err
	}
	if _, ok := f.values[key]; !ok {
		return nil
	}
	delete(f.values, key)
	f.dirty = true
	return nil
}

func (f *File) Exists(key string) bool {
	if err := f.load(); err != nil {
		return false
	}
	_, ok := f.values[key]
	return ok
}

// Keys returns the field names in sorted order.
func (f *File) Keys() ([]string, error) {
	if err := f.load(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *File) SetWritable(writable bool) {
	f.writable = writable
}

// Sync writes the file if it changed and the leaf is writable.
func (f *File) Sync() error {
	if !f.dirty || !f.writable {
		return nil
	}

	data, err := f.encode()
	if err != nil {
		return err
	}
	if err := fsutil.WriteFile(f.path, data); err != nil {
		return fmt.Errorf("write leaf %s: %w", f.path, err)
	}

	f.dirty = false
	return nil
}

// Close flushes pending changes. The leaf stays usable.
func (f *File) Close() error {
	return f.Sync()
}

func (f *File) load() error {
	if f.loaded {
		return nil
	}

	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			f.values = make(map[string]any)
			f.loaded = true
			return nil
		}
		return fmt.Errorf("read leaf %s: %w", f.path, err)
	}

	data, err := f.compressor.Decompress(raw)
	if err != nil {
		return fmt.Errorf("read leaf %s: %w", f.path, err)
	}

	values := make(map[string]any)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse leaf %s: %w", f.path, err)
	}
	if values == nil {
		values = make(map[string]any)
	}

	f.values = values
	f.loaded = true
	return nil
}

func (f *File) encode() ([]byte, error) {
	data, err := yaml.Marshal(f.values)
	if err != nil {
		return nil, fmt.Errorf("encode leaf %s: %w", f.path, err)
	}
	return f.compressor.Compress(data), nil
}
