// Package persist provides a hierarchical key/value store kept as a directory tree.
//
// Each Store is a directory. Each entry is either a nested Store (a
// subdirectory) or a leaf file holding a flat YAML mapping. Keys are encoded
// into safe directory entry names, so "a/b" is a single entry "a%2fb".
// Values must be mappings.
//
// Writes stay in memory until Sync, which writes only what changed. Close
// runs a final Sync, so every Open must be paired with a Close.
//
// Basic usage:
//
//	reg, _ := persist.NewRegistry()
//	s, _ := reg.Open("/var/lib/app/users", true)
//	defer s.Close()
//
//	// Assign a mapping; nothing touches disk yet
//	s.Store("alice", persist.Map{"age": 30})
//
//	// Fetch returns the mapping; mutate it and Sync writes the change
//	alice, _ := s.Get("alice")
//	alice["age"] = 31
//	s.Sync()
//
//	// Enumerate and delete
//	keys, _ := s.Keys()
//	s.Delete("bob")
//
// Fetching a directory entry returns its nested Store, opened on first
// access; Get returns the same entry as a plain map read one level deep.
//
// Forced nesting:
//
//	s.Meta().SetDepth(2) // new keys become subdirectories, two levels down
//
// A Registry holds at most one Store per directory within a process. There
// is no locking between processes: two processes writing the same tree race.
package persist
