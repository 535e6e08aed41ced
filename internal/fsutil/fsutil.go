// Package fsutil holds the filesystem primitives shared by stores and leaf files.
//
// Writes go to a dotfile next to the target and are renamed into place, so a
// reader sees either the old or the new content. Transient failures are
// retried with a short Fibonacci backoff; permanent ones return at once.
package fsutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

const (
	DirPerm  os.FileMode = 0755
	FilePerm os.FileMode = 0644

	// TempPrefix marks in-flight writes. The leading dot keeps them out of key listings.
	TempPrefix = ".tmp-"

	maxRetries = 3
	baseDelay  = 10 * time.Millisecond
)

func backoff() retry.Backoff {
	return retry.WithMaxRetries(maxRetries, retry.NewFibonacci(baseDelay))
}

// WriteFile atomically replaces path with data.
func WriteFile(path string, data []byte) error {
	return retry.Do(context.Background(), backoff(), func(ctx context.Context) error {
		if err := writeAndRename(path, data); err != nil {
			if ShouldRetry(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}

func writeAndRename(path string, data []byte) error {
	tmp := filepath.Join(filepath.Dir(path), TempPrefix+uuid.NewString())

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, FilePerm)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// RemoveAll removes path and everything below it. Directory contents are
// removed before the directory itself. A missing path is not an error.
func RemoveAll(path string) error {
	return retry.Do(context.Background(), backoff(), func(ctx context.Context) error {
		if err := os.RemoveAll(path); err != nil {
			if ShouldRetry(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}

// Remove deletes a single file, ignoring a missing one.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Exists reports whether path exists, without following a trailing symlink.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// ShouldRetry reports whether err is worth another attempt.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, os.ErrExist) {
		return false
	}

	switch {
	case errors.Is(err, syscall.EROFS),
		errors.Is(err, syscall.ENOSPC),
		errors.Is(err, syscall.EDQUOT),
		errors.Is(err, syscall.EACCES),
		errors.Is(err, syscall.EPERM),
		errors.Is(err, syscall.ENAMETOOLONG),
		errors.Is(err, syscall.ENOTDIR),
		errors.Is(err, syscall.EISDIR),
		errors.Is(err, syscall.ELOOP),
		errors.Is(err, syscall.EXDEV),
		errors.Is(err, syscall.EINVAL):
		return false
	}

	return !strings.Contains(err.Error(), "read-only file system")
}
