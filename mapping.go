package persist

// Map is the plain mapping value callers read and assign.
type Map = map[string]any

// Mapping is the contract shared by every backing implementation: directory
// stores, leaf files and anything a custom LeafFactory returns.
//
// Fetch("") must return the implementation itself; the sync engine relies on
// it to recurse into children without knowing their concrete types.
type Mapping interface {
	Fetch(key string) (any, error)
	Store(key string, value any) error
	Delete(key string) error
	Exists(key string) bool
	Keys() ([]string, error)
	SetWritable(writable bool)
	Sync() error
	Close() error
}

// isMapping reports whether v may be stored as an entry.
func isMapping(v any) bool {
	switch v.(type) {
	case map[string]any, Mapping:
		return true
	}
	return false
}

// self resolves the object a mapping exposes through the empty key.
func self(m Mapping) (Mapping, error) {
	v, err := m.Fetch("")
	if err != nil {
		return nil, err
	}
	if s, ok := v.(Mapping); ok {
		return s, nil
	}
	return m, nil
}

// fields returns the field view of a mapping value. Maps are returned as is;
// tied mappings are read one level deep.
func fields(v any) (Map, error) {
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case Mapping:
		return snapshot(t)
	}
	return nil, ErrNotAMapping
}

// snapshot reads the fields of m into a plain map. Nested mappings are kept
// as they are, so nothing below m's own entries is opened.
func snapshot(m Mapping) (Map, error) {
	keys, err := m.Keys()
	if err != nil {
		return nil, err
	}
	out := make(Map, len(keys))
	for _, k := range keys {
		v, err := m.Fetch(k)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
