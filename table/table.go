// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package table implements the RVm segment table: the per-library-instance
// registry mapping segment names to mapped buffers, plus the staging set of
// segments currently owned by a live transaction.
//
// Per spec.md §9's "Opaque handles" design note, segments are identified to
// callers by a *Segment pointer issued here rather than by a raw buffer
// address recovered through identity comparison — the pointer itself is
// the handle, which keeps the name<->buffer bijection exact without
// resorting to unsafe pointer arithmetic.
package table

import (
	"fmt"
	"sync"

	"github.com/benbjohnson/immutable"

	"github.com/dreamsxin/rvm/rvmerr"
)

// Segment is the opaque handle returned by Map. It owns the in-memory
// buffer for one mapped RVM segment.
type Segment struct {
	name string
	buf  []byte
}

// Name returns the segment's name.
func (s *Segment) Name() string { return s.name }

// Bytes returns the segment's mapped buffer. The caller may read and
// write it freely but must not retain it past Unmap.
func (s *Segment) Bytes() []byte { return s.buf }

// Len returns the segment's fixed mapped size.
func (s *Segment) Len() int { return len(s.buf) }

// Table is the segment registry for one library instance.
type Table struct {
	mu     sync.Mutex
	byName *immutable.SortedMap[string, *Segment]
	staged *immutable.Map[*Segment, struct{}]
}

// New returns an empty segment table.
func New() *Table {
	return &Table{
		byName: &immutable.SortedMap[string, *Segment]{},
		staged: &immutable.Map[*Segment, struct{}]{},
	}
}

// IsMapped reports whether name currently has a registered segment.
func (t *Table) IsMapped(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.byName.Get(name)
	return ok
}

// Lookup returns the segment registered under name, if any.
func (t *Table) Lookup(name string) (*Segment, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.byName.Get(name)
}

// Size returns the mapped length of name, if it is currently mapped.
func (t *Table) Size(name string) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	seg, ok := t.byName.Get(name)
	if !ok {
		return 0, false
	}
	return len(seg.buf), true
}

// Insert registers a new mapped segment. It fails if name is already
// mapped; callers are expected to have already checked IsMapped as part
// of Map's step ordering, so this is a safety net.
func (t *Table) Insert(name string, buf []byte) (*Segment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byName.Get(name); ok {
		return nil, fmt.Errorf("%w: %s", rvmerr.ErrAlreadyMapped, name)
	}
	seg := &Segment{name: name, buf: buf}
	t.byName = t.byName.Set(name, seg)
	return seg, nil
}

// Remove unregisters a segment. It is a no-op if name isn't mapped.
func (t *Table) Remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seg, ok := t.byName.Get(name); ok {
		t.staged = t.staged.Delete(seg)
		t.byName = t.byName.Delete(name)
	}
}

// Stage marks seg as owned by a live transaction. It fails if seg is
// already staged.
func (t *Table) Stage(seg *Segment) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.staged.Get(seg); ok {
		return fmt.Errorf("%w: %s", rvmerr.ErrStagingConflict, seg.name)
	}
	t.staged = t.staged.Set(seg, struct{}{})
	return nil
}

// Unstage releases seg from the staging set. It is a no-op if seg isn't staged.
func (t *Table) Unstage(seg *Segment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.staged = t.staged.Delete(seg)
}

// IsStaged reports whether seg is currently owned by a live transaction.
func (t *Table) IsStaged(seg *Segment) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.staged.Get(seg)
	return ok
}

// StagedCount returns the number of currently staged segments, used for
// the rvm_staged_segments metrics gauge.
func (t *Table) StagedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.staged.Len()
}
