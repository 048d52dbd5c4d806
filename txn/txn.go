// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package txn implements the RVM transaction engine: Map/Unmap/Destroy on
// segments, and Begin/AboutToModify/Commit/Abort on transactions spanning
// one or more segments.
//
// This is the core of the library (spec.md rates it ~35% of the engine).
// Everything here is single-threaded by contract (spec.md §5); the mutex
// fields exist to make that single-writer discipline explicit (a second
// caller blocks until the first returns), not to support concurrent
// callers — mirroring the
// writeMu discipline the teacher's wal.go enforces around its own state.
package txn

import (
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/dreamsxin/rvm/redo"
	"github.com/dreamsxin/rvm/rvmerr"
	"github.com/dreamsxin/rvm/store"
	"github.com/dreamsxin/rvm/table"
)

// Engine ties the backing store and segment table together and hosts the
// operations spec.md §4.4 defines.
type Engine struct {
	store  *store.Store
	table  *table.Table
	logger log.Logger

	mu sync.Mutex // single-writer discipline, see package doc
}

// NewEngine builds a transaction engine over an already-open store and an
// empty segment table.
func NewEngine(s *store.Store, tbl *table.Table, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Engine{store: s, table: tbl, logger: logger}
}

// Store returns the engine's backing store, for use by the checkpoint package.
func (e *Engine) Store() *store.Store { return e.store }

// Table returns the engine's segment table, for use by the checkpoint package.
func (e *Engine) Table() *table.Table { return e.table }

// Map implements spec.md §4.4 map(name, requested_size).
func (e *Engine) Map(name string, requestedSize int) (*table.Segment, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty segment name", rvmerr.ErrInvalidArgument)
	}
	if requestedSize < 0 {
		return nil, fmt.Errorf("%w: negative size", rvmerr.ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.table.IsMapped(name) {
		return nil, fmt.Errorf("%w: %s", rvmerr.ErrAlreadyMapped, name)
	}

	f, length, err := e.store.OpenOrCreateData(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	effectiveSize := length
	if int64(requestedSize) > length {
		effectiveSize = int64(requestedSize)
		if err := e.store.GrowData(f, effectiveSize); err != nil {
			return nil, err
		}
	}

	buf, err := e.store.ReadAll(f, effectiveSize)
	if err != nil {
		return nil, err
	}

	if _, err := redo.ReplayInto(e.store, name, buf); err != nil {
		level.Error(e.logger).Log("msg", "recovery replay failed", "segment", name, "err", err)
		return nil, err
	}

	seg, err := e.table.Insert(name, buf)
	if err != nil {
		return nil, err
	}
	return seg, nil
}

// Unmap implements spec.md §4.4 unmap(buffer). Per the Open Question (b)
// resolution in SPEC_FULL.md, it refuses to unmap a segment that is still
// staged by a live transaction rather than attempting recovery.
func (e *Engine) Unmap(seg *table.Segment) error {
	if seg == nil {
		return fmt.Errorf("%w: nil segment", rvmerr.ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.table.IsStaged(seg) {
		return fmt.Errorf("%w: %s is staged by a live transaction", rvmerr.ErrStagingConflict, seg.Name())
	}
	e.table.Remove(seg.Name())
	return nil
}

// Destroy implements spec.md §4.4 destroy(name): refuses (no-op) if the
// segment is currently mapped, otherwise unlinks both its files.
func (e *Engine) Destroy(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty segment name", rvmerr.ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.table.IsMapped(name) {
		return nil
	}
	return e.store.Remove(name)
}

// segLog is the per-segment undo list a live transaction keeps for one
// owned segment.
type segLog struct {
	undo []undoRecord
}

type undoRecord struct {
	offset int
	length int
	snap   []byte
}

// Transaction is created by BeginTrans and lives until exactly one of
// CommitTrans or AbortTrans is called on it.
type Transaction struct {
	engine *Engine

	mu    sync.Mutex
	order []*table.Segment
	logs  map[*table.Segment]*segLog
	done  bool
}

// BeginTrans implements spec.md §4.4 begin_trans(segs[]).
//
// Unlike the original C++ implementation (original_source/rvm.cpp
// rvm_begin_trans), which stages segments one at a time and leaves
// earlier ones staged if a later one in the list fails its checks, this
// validates every segment first and only stages any of them once all
// have passed — avoiding a staging leak on a mid-list conflict without
// changing any documented invariant (spec.md's invariant 5 only
// constrains the single-segment-already-staged case).
func (e *Engine) BeginTrans(segs []*table.Segment) (*Transaction, error) {
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: no segments given", rvmerr.ErrInvalidArgument)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, seg := range segs {
		if seg == nil {
			return nil, fmt.Errorf("%w: nil segment", rvmerr.ErrInvalidArgument)
		}
		if !e.table.IsMapped(seg.Name()) {
			return nil, fmt.Errorf("%w: %s", rvmerr.ErrNotMapped, seg.Name())
		}
		if e.table.IsStaged(seg) {
			return nil, fmt.Errorf("%w: %s", rvmerr.ErrStagingConflict, seg.Name())
		}
	}

	tx := &Transaction{
		engine: e,
		order:  make([]*table.Segment, 0, len(segs)),
		logs:   make(map[*table.Segment]*segLog, len(segs)),
	}
	for _, seg := range segs {
		if err := e.table.Stage(seg); err != nil {
			// Can't happen after the validation pass above, but unwind
			// what we've staged so far rather than leak it.
			for _, staged := range tx.order {
				e.table.Unstage(staged)
			}
			return nil, err
		}
		tx.order = append(tx.order, seg)
		tx.logs[seg] = &segLog{}
	}

	return tx, nil
}

// AboutToModify implements spec.md §4.4 about_to_modify. It is a no-op on
// any invalid input, per spec.md §7's void-function contract:
//   - tx is nil or already terminated
//   - seg isn't owned by tx
//   - offset or length is negative
//   - the range extends past the segment's end (Open Question (a),
//     resolved as "reject" in SPEC_FULL.md)
func (e *Engine) AboutToModify(tx *Transaction, seg *table.Segment, offset, length int) {
	if tx == nil || seg == nil || offset < 0 || length < 0 {
		return
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.done {
		return
	}
	sl, owned := tx.logs[seg]
	if !owned {
		return
	}
	if offset+length > seg.Len() {
		return
	}

	snap := make([]byte, length)
	copy(snap, seg.Bytes()[offset:offset+length])
	sl.undo = append(sl.undo, undoRecord{offset: offset, length: length, snap: snap})
}

// CommitTrans implements spec.md §4.4 commit_trans. It is a void
// operation as far as the public contract goes: I/O failures while
// writing a segment's redo log cannot be reported to the caller (spec.md
// §7), so this logs them and proceeds to the next segment rather than
// aborting the whole commit, matching the teacher's treatment of
// background failures in wal.go's runRotate. It returns the number of
// redo payload bytes written so the façade can feed its metrics; that
// return value is a Go-idiom convenience, not part of the spec's
// contract, and callers that don't need it are free to discard it.
func (e *Engine) CommitTrans(tx *Transaction) int {
	if tx == nil {
		return 0
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.done {
		return 0
	}

	bytesWritten := 0
	for _, seg := range tx.order {
		sl := tx.logs[seg]
		records := make([]redo.Record, 0, len(sl.undo))
		for _, u := range sl.undo {
			payload := make([]byte, u.length)
			copy(payload, seg.Bytes()[u.offset:u.offset+u.length])
			records = append(records, redo.Record{
				Offset:  uint64(u.offset),
				Length:  uint64(u.length),
				Payload: payload,
			})
			bytesWritten += u.length
		}

		if err := redo.WriteLog(tx.engine.store, seg.Name(), records); err != nil {
			level.Error(tx.engine.logger).Log("msg", "commit: failed to write redo log", "segment", seg.Name(), "err", err)
		}
		tx.engine.table.Unstage(seg)
	}

	tx.finish()
	return bytesWritten
}

// AbortTrans implements spec.md §4.4 abort_trans. No disk I/O is
// performed: undo records are replayed from memory only.
func (e *Engine) AbortTrans(tx *Transaction) {
	if tx == nil {
		return
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.done {
		return
	}

	for _, seg := range tx.order {
		sl := tx.logs[seg]
		buf := seg.Bytes()
		for i := len(sl.undo) - 1; i >= 0; i-- {
			u := sl.undo[i]
			copy(buf[u.offset:u.offset+u.length], u.snap)
		}
		tx.engine.table.Unstage(seg)
	}

	tx.finish()
}

func (tx *Transaction) finish() {
	tx.done = true
	tx.order = nil
	tx.logs = nil
}
