package persist

import (
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/aweris/persist/internal/keycodec"
	"github.com/aweris/persist/internal/value"
)

// Sync writes every assigned or fetched entry whose value differs from its
// backing mapping, then syncs the backing mappings themselves. An entry whose
// value is its backing mapping is not compared at all. Entries that
// were only materialized, never handed to a caller, are left alone.
//
// A failing entry is logged and skipped; the remaining entries are still
// written and the combined error is returned. Sync on a read-only Store
// does nothing.
func (s *Store) Sync() error {
	if s.closed {
		return ErrClosed
	}
	if !s.writable || s.syncing {
		return nil
	}

	s.syncing = true
	defer func() { s.syncing = false }()

	var errs error
	for _, key := range sortedKeys(s.live) {
		if err := s.syncEntry(key); err != nil {
			s.logger.Warn("sync entry failed", zap.String("key", key), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (s *Store) syncEntry(key string) error {
	l := s.live[key]

	d, ok := s.data[key]
	if ok && value.Same(l, d) {
		return syncChild(d)
	}
	if !ok {
		name, err := keycodec.Normalize(key)
		if err != nil {
			return err
		}
		if d, err = s.materialize(key, name); err != nil {
			return err
		}
	}

	if pristine, ok := s.fetched[key]; ok && equal(l, pristine) {
		return syncChild(d)
	}

	want, err := fields(l)
	if err != nil {
		return fmt.Errorf("sync %s: %w", key, err)
	}
	have, err := d.Keys()
	if err != nil {
		return fmt.Errorf("sync %s: %w", key, err)
	}

	var errs error
	for _, f := range have {
		if _, ok := want[f]; ok {
			continue
		}
		if err := d.Delete(f); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("sync %s: delete %s: %w", key, f, err))
		}
	}

	for _, f := range sortedKeys(want) {
		v := want[f]
		if d.Exists(f) {
			if cur, err := d.Fetch(f); err == nil && equal(cur, v) {
				continue
			}
		}
		if err := d.Store(f, v); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("sync %s: store %s: %w", key, f, err))
		}
	}

	if errs == nil {
		if m, ok := l.(map[string]any); ok {
			s.fetched[key] = value.Clone(m).(Map)
		}
	}

	if err := syncChild(d); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("sync %s: %w", key, err))
	}
	return errs
}

// syncChild syncs the object d exposes through the empty key. A panic in a
// custom backing implementation is returned as an error.
func syncChild(d Mapping) (err error) {
	var pc panics.Catcher
	pc.Try(func() {
		var target Mapping
		if target, err = self(d); err == nil {
			err = target.Sync()
		}
	})
	if r := pc.Recovered(); r != nil {
		return r.AsError()
	}
	return err
}

// equal compares two field values structurally.
func equal(a, b any) (eq bool) {
	if value.Same(a, b) {
		return true
	}
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return cmp.Equal(a, b)
}
