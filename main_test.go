package persist

import (
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	reg, err := NewRegistry(opts...)
	require.NoError(t, err)
	return reg
}

func openTestStore(t *testing.T, reg *Registry, writable bool) *Store {
	t.Helper()
	s, err := reg.Open(filepath.Join(t.TempDir(), "store"), writable)
	require.NoError(t, err)
	return s
}

// memMapping is an in-memory Mapping that records how the sync engine drives it.
type memMapping struct {
	path     string
	values   map[string]any
	writable bool

	stores  int
	deletes int
	syncs   int
	closes  int

	syncErr   error
	syncPanic bool
}

func newMemMapping(path string, writable bool) *memMapping {
	return &memMapping{path: path, values: map[string]any{}, writable: writable}
}

func (m *memMapping) Fetch(key string) (any, error) {
	if key == "" {
		return m, nil
	}
	return m.values[key], nil
}

func (m *memMapping) Store(key string, v any) error {
	if key == "" {
		return ErrInvalidKey
	}
	m.stores++
	m.values[key] = v
	return nil
}

func (m *memMapping) Delete(key string) error {
	m.deletes++
	delete(m.values, key)
	return nil
}

func (m *memMapping) Exists(key string) bool {
	_, ok := m.values[key]
	return ok
}

func (m *memMapping) Keys() ([]string, error) {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memMapping) SetWritable(w bool) { m.writable = w }

func (m *memMapping) Sync() error {
	if m.syncPanic {
		panic("backing store exploded")
	}
	m.syncs++
	return m.syncErr
}

func (m *memMapping) Close() error {
	m.closes++
	return nil
}

func (m *memMapping) Path() string { return m.path }

// memFactory hands out memMappings and remembers them by base name.
type memFactory struct {
	made map[string]*memMapping
	hook func(m *memMapping)
}

func newMemFactory() *memFactory {
	return &memFactory{made: map[string]*memMapping{}}
}

func (f *memFactory) Open(_ *Registry, path string, writable bool) (Mapping, error) {
	if m, ok := f.made[filepath.Base(path)]; ok {
		return m, nil
	}
	m := newMemMapping(path, writable)
	if f.hook != nil {
		f.hook(m)
	}
	f.made[filepath.Base(path)] = m
	return m, nil
}

var errDiskFull = errors.New("disk full")
