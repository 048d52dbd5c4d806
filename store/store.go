// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package store implements the RVM backing store: one data file and one
// log file per segment inside a caller-supplied directory.
//
// No file-locking is imposed and no framing beyond the record layout the
// redo package defines is added here; this package only knows how to open,
// create, grow, fsync and delete the two files that belong to a segment
// name.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/coreos/etcd/pkg/fileutil"

	"github.com/dreamsxin/rvm/rvmerr"
)

// Store is bound to a single directory holding every segment's data and
// log files.
type Store struct {
	dir   string
	fsync bool
}

// Open creates dir if it doesn't already exist and returns a Store rooted
// there. An existing directory is reused as-is.
func Open(dir string, fsync bool) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty directory", rvmerr.ErrInvalidArgument)
	}
	if err := fileutil.TouchDirAll(dir); err != nil {
		return nil, fmt.Errorf("%w: create directory %q: %v", rvmerr.ErrIO, dir, err)
	}
	return &Store{dir: dir, fsync: fsync}, nil
}

// DataPath returns the on-disk path of a segment's data file.
func (s *Store) DataPath(name string) string {
	return filepath.Join(s.dir, name+".rvm")
}

// LogPath returns the on-disk path of a segment's redo log file.
func (s *Store) LogPath(name string) string {
	return filepath.Join(s.dir, name+".rvmlog")
}

// Dir returns the directory this store is rooted at.
func (s *Store) Dir() string {
	return s.dir
}

// OpenOrCreateData opens the segment's data file for read/write, creating
// it if absent. It returns the open file positioned at the start along
// with its current length.
func (s *Store) OpenOrCreateData(name string) (*os.File, int64, error) {
	path := s.DataPath(name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: open data file %q: %v", rvmerr.ErrIO, path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("%w: stat data file %q: %v", rvmerr.ErrIO, path, err)
	}
	return f, info.Size(), nil
}

// GrowData extends f to size bytes, zero-filling the new tail, and fsyncs
// it if the store was opened with fsync enabled.
func (s *Store) GrowData(f *os.File, size int64) error {
	if err := fileutil.Preallocate(f, size, true); err != nil {
		return fmt.Errorf("%w: preallocate: %v", rvmerr.ErrIO, err)
	}
	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("%w: truncate: %v", rvmerr.ErrIO, err)
	}
	return s.Sync(f)
}

// ReadAll reads exactly size bytes from the start of f into a fresh buffer.
func (s *Store) ReadAll(f *os.File, size int64) ([]byte, error) {
	buf := make([]byte, size)
	if size == 0 {
		return buf, nil
	}
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("%w: read data file: %v", rvmerr.ErrIO, err)
	}
	return buf, nil
}

// WriteAll overwrites the full contents of f with buf, from offset 0.
func (s *Store) WriteAll(f *os.File, buf []byte) error {
	if _, err := f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("%w: write data file: %v", rvmerr.ErrIO, err)
	}
	if err := f.Truncate(int64(len(buf))); err != nil {
		return fmt.Errorf("%w: truncate data file: %v", rvmerr.ErrIO, err)
	}
	return s.Sync(f)
}

// Sync fsyncs f if the store was opened with fsync enabled. It is a no-op
// otherwise, matching spec's "no explicit fsync is mandated" baseline while
// letting callers opt into the hardened path.
func (s *Store) Sync(f *os.File) error {
	if !s.fsync {
		return nil
	}
	if err := fileutil.Fsync(f); err != nil {
		return fmt.Errorf("%w: fsync: %v", rvmerr.ErrIO, err)
	}
	return nil
}

// OpenLogTruncated truncates (or creates) the segment's log file for
// writing from empty, used at the start of commit.
func (s *Store) OpenLogTruncated(name string) (*os.File, error) {
	path := s.LogPath(name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: open log file %q: %v", rvmerr.ErrIO, path, err)
	}
	return f, nil
}

// OpenLogRead opens the segment's log file for reading. It returns
// (nil, nil) if the log file does not exist.
func (s *Store) OpenLogRead(name string) (*os.File, error) {
	path := s.LogPath(name)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: open log file %q: %v", rvmerr.ErrIO, path, err)
	}
	return f, nil
}

// TruncateLogToEmpty truncates the segment's log file to zero length.
func (s *Store) TruncateLogToEmpty(name string) error {
	path := s.LogPath(name)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: truncate log file %q: %v", rvmerr.ErrIO, path, err)
	}
	return f.Close()
}

// RemoveLog unlinks just the segment's log file. Missing file is not an error.
func (s *Store) RemoveLog(name string) error {
	path := s.LogPath(name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: remove %q: %v", rvmerr.ErrIO, path, err)
	}
	return nil
}

// Remove unlinks both the data and log files for name. Missing files are
// not an error.
func (s *Store) Remove(name string) error {
	for _, path := range []string{s.DataPath(name), s.LogPath(name)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: remove %q: %v", rvmerr.ErrIO, path, err)
		}
	}
	return nil
}

// ListLogs returns the segment names (stems, without the .rvmlog suffix)
// that currently have a log file in the store's directory.
func (s *Store) ListLogs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list directory %q: %v", rvmerr.ErrIO, s.dir, err)
	}
	var names []string
	const suffix = ".rvmlog"
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if len(n) > len(suffix) && n[len(n)-len(suffix):] == suffix {
			names = append(names, n[:len(n)-len(suffix)])
		}
	}
	return names, nil
}
