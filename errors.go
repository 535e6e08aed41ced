package persist

import (
	"errors"
	"fmt"

	"github.com/aweris/persist/internal/keycodec"
)

var (
	ErrInvalidKey     = keycodec.ErrInvalidKey
	ErrNotAMapping    = errors.New("persist: value is not a mapping")
	ErrReadOnly       = errors.New("persist: store is read-only")
	ErrForeignProcess = errors.New("persist: store belongs to another process")
	ErrClosed         = errors.New("persist: store is closed")
	ErrLoop           = errors.New("persist: entry resolves to an enclosing directory")
)

// IOError reports a filesystem failure on a store entry.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("persist: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func ioError(op, path string, err error) error {
	var ioe *IOError
	if errors.As(err, &ioe) {
		return err
	}
	return &IOError{Op: op, Path: path, Err: err}
}
