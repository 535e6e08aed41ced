package persist

import "github.com/aweris/persist/internal/keycodec"

// Normalize converts a key to the directory entry name that stores it.
// Re-exported from internal/keycodec for convenience.
func Normalize(key string) (string, error) { return keycodec.Normalize(key) }

// Denormalize converts a directory entry name back to its key.
func Denormalize(name string) string { return keycodec.Denormalize(name) }
