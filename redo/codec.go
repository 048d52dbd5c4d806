// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package redo

import (
	"fmt"

	"github.com/dreamsxin/rvm/rvmerr"
	"github.com/dreamsxin/rvm/store"
)

// WriteLog writes records, in order, to the segment's truncated log file
// via s. This is the commit-path encode: one call per committing
// transaction, one record per undo declaration, payload taken from the
// segment's current (post-modification) bytes by the caller.
func WriteLog(s *store.Store, name string, records []Record) error {
	f, err := s.OpenLogTruncated(name)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, rec := range records {
		if err := rec.Encode(f); err != nil {
			return fmt.Errorf("%w: write redo record: %v", rvmerr.ErrIO, err)
		}
	}
	return s.Sync(f)
}

// ReplayInto is the routine shared by map-time recovery (spec.md §4.4
// step 5) and checkpoint truncation (spec.md §4.5): it reads name's log
// file sequentially to EOF, overwriting buf[offset:offset+length) for
// every well-formed record found (last writer wins), then — if at least
// one record was applied — rewrites the data file in full from buf and
// truncates the log to zero length.
//
// If the log is absent or empty, ReplayInto is a no-op and returns
// applied=false.
func ReplayInto(s *store.Store, name string, buf []byte) (applied bool, err error) {
	logFile, err := s.OpenLogRead(name)
	if err != nil {
		return false, err
	}
	if logFile == nil {
		return false, nil
	}
	defer logFile.Close()

	for {
		rec, ok, err := readRecord(logFile)
		if err != nil {
			return applied, err
		}
		if !ok {
			break
		}
		if rec.Offset > uint64(len(buf)) || rec.Length > uint64(len(buf))-rec.Offset {
			// A record outside the current buffer bounds can't be applied
			// safely; treat it like a truncated tail and stop replaying,
			// per spec.md §7's "never fail fatally" recovery policy.
			break
		}
		copy(buf[rec.Offset:rec.Offset+rec.Length], rec.Payload)
		applied = true
	}

	if !applied {
		return false, nil
	}

	dataFile, _, err := s.OpenOrCreateData(name)
	if err != nil {
		return true, err
	}
	defer dataFile.Close()

	if err := s.WriteAll(dataFile, buf); err != nil {
		return true, err
	}
	if err := s.TruncateLogToEmpty(name); err != nil {
		return true, err
	}
	return true, nil
}
