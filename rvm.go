// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package rvm is a Recoverable Virtual Memory library: an embeddable
// persistence engine that lets an application treat named regions of its
// address space as crash-durable, transactionally updated storage.
//
// The package itself contains no persistence logic (spec.md §2 — "a thin
// façade"); it wires together store.Store (the backing files),
// table.Table (the segment registry) and txn.Engine (begin/modify/commit/
// abort) and adds logging and metrics.
package rvm

import (
	"errors"

	"github.com/go-kit/log"

	"github.com/dreamsxin/rvm/checkpoint"
	"github.com/dreamsxin/rvm/rvmerr"
	"github.com/dreamsxin/rvm/store"
	"github.com/dreamsxin/rvm/table"
	"github.com/dreamsxin/rvm/txn"
)

// Segment is the opaque handle returned by Map. See the table package doc
// for why a pointer handle is used instead of exposing a raw buffer
// address (spec.md §9, "Opaque handles").
type Segment = table.Segment

// Transaction is the handle returned by BeginTrans.
type Transaction = txn.Transaction

// Library is bound to one directory for its whole lifetime (spec.md §3 —
// "from init until process exit; no explicit close in the public
// surface").
type Library struct {
	dir     string
	engine  *txn.Engine
	table   *table.Table
	logger  log.Logger
	metrics *libMetrics
}

// Open binds a Library to dir, creating it if absent and reusing it if
// present. There is no explicit Close: segments are released individually
// via Unmap.
func Open(dir string, opts ...Option) (*Library, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	st, err := store.Open(dir, cfg.fsync)
	if err != nil {
		return nil, err
	}

	tbl := table.New()
	engine := txn.NewEngine(st, tbl, cfg.logger)

	return &Library{
		dir:     dir,
		engine:  engine,
		table:   tbl,
		logger:  cfg.logger,
		metrics: newLibMetrics(cfg.registerer),
	}, nil
}

// Map implements spec.md §4.4 map(name, requested_size). On success it
// returns a handle whose Bytes() is the live, crash-recovered segment
// buffer.
func (l *Library) Map(name string, requestedSize int) (*Segment, error) {
	seg, err := l.engine.Map(name, requestedSize)
	if err != nil {
		l.metrics.mapErrors.Inc()
		return nil, err
	}
	l.metrics.maps.Inc()
	return seg, nil
}

// Unmap implements spec.md §4.4 unmap(buffer). It is a void operation per
// spec.md §6: invalid or staged segments are silently ignored rather than
// reported.
func (l *Library) Unmap(seg *Segment) {
	if err := l.engine.Unmap(seg); err != nil {
		return
	}
	l.metrics.unmaps.Inc()
}

// Destroy implements spec.md §4.4 destroy(name). Void per spec.md §6.
func (l *Library) Destroy(name string) {
	mappedBefore := l.table.IsMapped(name)
	if err := l.engine.Destroy(name); err != nil {
		return
	}
	if !mappedBefore {
		l.metrics.destroys.Inc()
	}
}

// BeginTrans implements spec.md §4.4 begin_trans(segs[]).
func (l *Library) BeginTrans(segs []*Segment) (*Transaction, error) {
	tx, err := l.engine.BeginTrans(segs)
	if err != nil {
		if errors.Is(err, rvmerr.ErrStagingConflict) {
			l.metrics.stagingConflicts.Inc()
		}
		return nil, err
	}
	l.metrics.transactionsBegun.Inc()
	l.metrics.stagedSegments.Set(float64(l.table.StagedCount()))
	return tx, nil
}

// AboutToModify implements spec.md §4.4 about_to_modify. Void per spec.md §6.
func (l *Library) AboutToModify(tx *Transaction, seg *Segment, offset, length int) {
	l.engine.AboutToModify(tx, seg, offset, length)
}

// CommitTrans implements spec.md §4.4 commit_trans. Void per spec.md §6.
func (l *Library) CommitTrans(tx *Transaction) {
	n := l.engine.CommitTrans(tx)
	l.metrics.redoBytesWritten.Add(float64(n))
	l.metrics.transactionsCommitted.Inc()
	l.metrics.stagedSegments.Set(float64(l.table.StagedCount()))
}

// AbortTrans implements spec.md §4.4 abort_trans. Void per spec.md §6.
func (l *Library) AbortTrans(tx *Transaction) {
	l.engine.AbortTrans(tx)
	l.metrics.transactionsAborted.Inc()
	l.metrics.stagedSegments.Set(float64(l.table.StagedCount()))
}

// TruncateLog implements spec.md §4.5 truncate_log.
func (l *Library) TruncateLog() error {
	l.metrics.truncations.Inc()
	if err := checkpoint.TruncateLog(l.engine, l.logger); err != nil {
		l.metrics.truncationErrors.Inc()
		return err
	}
	return nil
}

// IsMapped is a read-only diagnostic supplementing the original
// implementation's internal _rvm_context::is_mapped (original_source/rvm.cpp).
func (l *Library) IsMapped(name string) bool {
	return l.table.IsMapped(name)
}

// SegmentSize is a read-only diagnostic supplementing the original
// implementation's internal _rvm_context::get_segment_size.
func (l *Library) SegmentSize(name string) (int, bool) {
	return l.table.Size(name)
}

// SegmentName is a read-only diagnostic supplementing the original
// implementation's internal _rvm_context::get_segment_name.
func (l *Library) SegmentName(seg *Segment) (string, bool) {
	if seg == nil {
		return "", false
	}
	found, ok := l.table.Lookup(seg.Name())
	if !ok || found != seg {
		return "", false
	}
	return seg.Name(), true
}
