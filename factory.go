package persist

import (
	"github.com/aweris/persist/internal/compression"
	"github.com/aweris/persist/internal/fsutil"
	"github.com/aweris/persist/internal/leaf"
)

// LeafFactory produces the backing mapping for an entry path. Directories
// must be opened through reg so that each path has a single Store.
type LeafFactory interface {
	Open(reg *Registry, path string, writable bool) (Mapping, error)
}

// FactoryFunc adapts a function to LeafFactory.
type FactoryFunc func(reg *Registry, path string, writable bool) (Mapping, error)

func (f FactoryFunc) Open(reg *Registry, path string, writable bool) (Mapping, error) {
	return f(reg, path, writable)
}

// fileFactory backs directories with Stores and everything else with YAML
// leaf files.
type fileFactory struct {
	compressor *compression.Compressor
}

func (f *fileFactory) Open(reg *Registry, path string, writable bool) (Mapping, error) {
	if fsutil.IsDir(path) {
		return reg.Open(path, writable)
	}
	return leaf.Open(path, writable, f.compressor), nil
}
