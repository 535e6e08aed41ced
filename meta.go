package persist

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/aweris/persist/internal/fsutil"
)

// MetaFile is the per-directory sidecar holding the metadata document.
const MetaFile = ".persist-meta"

// DepthKey is the metadata field forcing new entries to be subdirectories.
const DepthKey = "depth"

// Metadata is the directory-wide configuration document of a Store.
type Metadata struct {
	path string
	doc  map[string]any
}

func loadMetadata(dir string) (*Metadata, error) {
	m := &Metadata{
		path: filepath.Join(dir, MetaFile),
		doc:  make(map[string]any),
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, ioError("read metadata", m.path, err)
	}
	if len(data) == 0 {
		return m, nil
	}

	if err := yaml.Unmarshal(data, &m.doc); err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", m.path, err)
	}
	if m.doc == nil {
		m.doc = make(map[string]any)
	}
	return m, nil
}

// Depth returns the forced-nesting depth, 0 when unset or invalid.
func (m *Metadata) Depth() int {
	switch n := m.doc[DepthKey].(type) {
	case int:
		return max(n, 0)
	case int64:
		return int(max(n, 0))
	case uint64:
		return int(min(n, math.MaxInt))
	case float64:
		return int(max(n, 0))
	}
	return 0
}

// SetDepth sets the forced-nesting depth. Negative values clear it.
func (m *Metadata) SetDepth(n int) {
	if n < 0 {
		delete(m.doc, DepthKey)
		return
	}
	m.doc[DepthKey] = n
}

func (m *Metadata) Get(key string) (any, bool) {
	v, ok := m.doc[key]
	return v, ok
}

func (m *Metadata) Set(key string, v any) { m.doc[key] = v }

func (m *Metadata) Delete(key string) { delete(m.doc, key) }

func (m *Metadata) Len() int { return len(m.doc) }

// Keys returns the metadata field names in sorted order.
func (m *Metadata) Keys() []string {
	keys := make([]string, 0, len(m.doc))
	for k := range m.doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// save writes the document, or removes the sidecar when the document is empty.
func (m *Metadata) save() error {
	if len(m.doc) == 0 {
		if err := fsutil.Remove(m.path); err != nil {
			return ioError("remove metadata", m.path, err)
		}
		return nil
	}

	data, err := yaml.Marshal(m.doc)
	if err != nil {
		return fmt.Errorf("encode metadata %s: %w", m.path, err)
	}
	if err := fsutil.WriteFile(m.path, data); err != nil {
		return ioError("write metadata", m.path, err)
	}
	return nil
}
