package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/aweris/persist/internal/fsutil"
	"github.com/aweris/persist/internal/keycodec"
	"github.com/aweris/persist/internal/value"
)

// Store is a mapping backed by a directory. Each entry is a nested Store or
// a leaf file, chosen by the registry's LeafFactory.
//
// Assignments stay in memory until Sync (or the final Close) writes them.
// A Store is not safe for concurrent use.
type Store struct {
	reg    *Registry
	dir    string
	meta   *Metadata
	logger *zap.Logger

	writable bool
	owner    int // pid that opened the store
	refs     int
	closing  bool
	closed   bool

	// live holds what callers assigned or were handed by Fetch.
	live map[string]any
	// data holds the backing mappings materialized from disk.
	data map[string]Mapping
	// fetched holds a copy of each view as it was last known to match data.
	fetched map[string]Map

	cascading bool
	syncing   bool
}

func newStore(reg *Registry, dir string, meta *Metadata) *Store {
	return &Store{
		reg:     reg,
		dir:     dir,
		meta:    meta,
		logger:  reg.logger.With(zap.String("dir", dir)),
		owner:   os.Getpid(),
		live:    make(map[string]any),
		data:    make(map[string]Mapping),
		fetched: make(map[string]Map),
	}
}

func (s *Store) Dir() string         { return s.dir }
func (s *Store) Writable() bool      { return s.writable }
func (s *Store) Meta() *Metadata     { return s.meta }
func (s *Store) Registry() *Registry { return s.reg }

// Path returns the on-disk location of key.
func (s *Store) Path(key string) (string, error) {
	name, err := keycodec.Normalize(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

// Fetch returns the value under key. The empty key returns the Store itself.
//
// A key that exists nowhere is created as an empty mapping. A directory entry
// is returned as its tied child Store, opened on first access; nothing below
// it is read. Leaf entries are handed out as plain maps; callers mutate those
// maps and Sync writes the difference back.
func (s *Store) Fetch(key string) (any, error) {
	if key == "" {
		return s, nil
	}
	if s.closed {
		return nil, ErrClosed
	}

	name, err := keycodec.Normalize(key)
	if err != nil {
		return nil, err
	}

	if v, ok := s.live[key]; ok {
		if m, ok := v.(Mapping); ok && s.writable {
			m.SetWritable(true)
		}
		return v, nil
	}

	d, ok := s.data[key]
	if !ok {
		if !fsutil.Exists(filepath.Join(s.dir, name)) && !s.forcesNesting() {
			m := Map{}
			s.live[key] = m
			return m, nil
		}
		if d, err = s.materialize(key, name); err != nil {
			return nil, err
		}
	}

	if child, ok := d.(*Store); ok {
		s.live[key] = child
		return child, nil
	}
	return s.view(key, d)
}

// Get is Fetch for callers that want a plain map. A directory entry is
// replaced in memory by a map of its own entries, read one level deep;
// changes to that map are written back by Sync like any other assignment.
// Assigned mappings other than the backing object are returned as a copy.
func (s *Store) Get(key string) (Map, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	v, err := s.Fetch(key)
	if err != nil {
		return nil, err
	}

	m, ok := v.(Mapping)
	if !ok {
		return fields(v)
	}
	if d, ok := s.data[key]; ok && value.Same(d, m) {
		return s.view(key, d)
	}
	return snapshot(m)
}

// view records a plain map of d's fields as the live value of key, along
// with a pristine copy that tells Sync whether the caller changed it.
func (s *Store) view(key string, d Mapping) (Map, error) {
	view, err := fields(d)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	s.live[key] = view
	s.fetched[key] = value.Clone(view).(Map)
	return view, nil
}

// Store assigns value to key. Nothing is written until Sync.
func (s *Store) Store(key string, v any) error {
	if s.closed {
		return ErrClosed
	}
	if _, err := keycodec.Normalize(key); err != nil {
		return err
	}
	if !isMapping(v) {
		return fmt.Errorf("store %q: %w", key, ErrNotAMapping)
	}
	s.live[key] = v
	delete(s.fetched, key)
	return nil
}

// Delete removes key from memory and disk. Backing objects under key are
// made read-only and closed before their files are removed.
//
// A read-only Store drops the key from memory only. When an on-disk entry is
// left behind, ErrReadOnly is returned.
func (s *Store) Delete(key string) error {
	if s.closed {
		return ErrClosed
	}
	name, err := keycodec.Normalize(key)
	if err != nil {
		return err
	}
	if !s.Exists(key) {
		return nil
	}
	if !s.owned() {
		return ErrForeignProcess
	}

	path := filepath.Join(s.dir, name)
	onDisk := fsutil.Exists(path)
	var errs error

	if s.writable {
		if v, ok := s.live[key].(Mapping); ok && backs(v, path) {
			disarm(v)
		}
	}
	if d, ok := s.data[key]; ok {
		if s.writable {
			disarm(d)
		}
		errs = multierr.Append(errs, d.Close())
	}
	delete(s.live, key)
	delete(s.data, key)
	delete(s.fetched, key)

	switch {
	case onDisk && !s.writable:
		errs = multierr.Append(errs, ErrReadOnly)
	case onDisk:
		if err := fsutil.RemoveAll(path); err != nil {
			errs = multierr.Append(errs, ioError("remove", path, err))
		}
	}

	if errs != nil {
		s.logger.Warn("delete incomplete", zap.String("key", key), zap.Error(errs))
	}
	return errs
}

// Exists reports whether key is assigned, materialized or present on disk.
// A closed Store holds no keys.
func (s *Store) Exists(key string) bool {
	if s.closed {
		return false
	}
	if _, ok := s.live[key]; ok {
		return true
	}
	if _, ok := s.data[key]; ok {
		return true
	}
	path, err := s.Path(key)
	if err != nil {
		return false
	}
	return fsutil.Exists(path)
}

// Keys returns every key known in memory or on disk, sorted.
func (s *Store) Keys() ([]string, error) {
	if s.closed {
		return nil, ErrClosed
	}
	set := make(map[string]struct{}, len(s.live)+len(s.data))
	for k := range s.live {
		set[k] = struct{}{}
	}
	for k := range s.data {
		set[k] = struct{}{}
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, ioError("list", s.dir, err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		set[keycodec.Denormalize(e.Name())] = struct{}{}
	}

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// SetWritable sets the writable flag. Enabling it also enables every child
// already instantiated below this Store.
func (s *Store) SetWritable(writable bool) {
	s.writable = writable
	if !writable || s.cascading {
		return
	}

	s.cascading = true
	defer func() { s.cascading = false }()

	for _, v := range s.live {
		if m, ok := v.(Mapping); ok {
			m.SetWritable(true)
		}
	}
	for _, d := range s.data {
		d.SetWritable(true)
	}
}

// Close releases one reference. The last Close of a writable Store saves
// its metadata, runs a final Sync and closes every child it materialized.
func (s *Store) Close() error {
	if s.closed {
		return nil
	}
	if !s.reg.release(s) {
		return nil
	}
	s.closing = true

	var errs error
	if s.writable && s.owned() {
		errs = multierr.Append(errs, s.meta.save())
		errs = multierr.Append(errs, s.Sync())
	}
	for _, key := range sortedKeys(s.data) {
		if err := s.data[key].Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", key, err))
		}
	}

	s.closed = true
	s.reg.Close(s)

	if errs != nil {
		s.logger.Warn("close incomplete", zap.Error(errs))
	}
	return errs
}

// materialize instantiates the backing mapping for key and caches it in data.
// With a positive forced-nesting depth, a new key becomes a subdirectory
// whose own depth is one less.
func (s *Store) materialize(key, name string) (Mapping, error) {
	path := filepath.Join(s.dir, name)

	forced := s.forcesNesting() && !fsutil.Exists(path)
	if forced {
		if err := os.Mkdir(path, fsutil.DirPerm); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, ioError("create", path, err)
		}
	}

	m, err := s.reg.factory.Open(s.reg, path, s.writable)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if child, ok := m.(*Store); ok && encloses(child.dir, s.dir) {
		// Drop the reference the factory took. A store already on its way
		// out is left to the Close in progress.
		if s.reg.release(child) && !child.closing {
			if err := child.Close(); err != nil {
				s.logger.Warn("close enclosing store", zap.String("key", key), zap.Error(err))
			}
		}
		return nil, ioError("open", path, ErrLoop)
	}
	if forced {
		if child, ok := m.(*Store); ok {
			child.meta.SetDepth(s.meta.Depth() - 1)
		}
	}

	s.logger.Debug("entry materialized", zap.String("key", key), zap.Bool("forced", forced))
	s.data[key] = m
	return m, nil
}

// encloses reports whether sub is dir or lies below it. Both paths are canonical.
func encloses(dir, sub string) bool {
	rel, err := filepath.Rel(dir, sub)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func (s *Store) forcesNesting() bool {
	return s.writable && s.meta.Depth() > 0
}

func (s *Store) owned() bool {
	return os.Getpid() == s.owner
}

// disarm clears the writable flag of m and of every child it instantiated,
// so nothing below it persists itself during teardown.
func disarm(m Mapping) {
	m.SetWritable(false)
	st, ok := m.(*Store)
	if !ok || st.cascading {
		return
	}

	st.cascading = true
	defer func() { st.cascading = false }()

	for _, v := range st.live {
		if child, ok := v.(Mapping); ok {
			disarm(child)
		}
	}
	for _, d := range st.data {
		disarm(d)
	}
}

// backs reports whether m is the backing object stored at path.
func backs(m Mapping, path string) bool {
	switch t := m.(type) {
	case *Store:
		return t.dir == path
	case interface{ Path() string }:
		return t.Path() == path
	}
	return false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
