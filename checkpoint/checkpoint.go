// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package checkpoint implements spec.md §4.5's truncate_log: sweeping the
// directory for redo logs, applying each into its data file, and deleting
// the log — the sole durability-compacting operation the engine offers
// (spec.md explicitly excludes automatic periodic checkpointing as a
// non-goal; callers invoke TruncateLog themselves).
package checkpoint

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/dreamsxin/rvm/redo"
	"github.com/dreamsxin/rvm/txn"
)

// TruncateLog enumerates the engine's directory for files ending in
// .rvmlog and applies each. Truncation is best-effort and idempotent
// (spec.md §4.5): a failure on one segment is logged and truncation
// continues with the rest.
//
// Per the Open Question (c) resolution recorded in SPEC_FULL.md, a
// segment currently staged by a live transaction is skipped rather than
// truncated — concurrent truncation against a staged segment is refused,
// not undefined.
func TruncateLog(e *txn.Engine, logger log.Logger) error {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	st := e.Store()
	tbl := e.Table()

	names, err := st.ListLogs()
	if err != nil {
		return err
	}

	for _, name := range names {
		if tbl.IsMapped(name) {
			seg, _ := tbl.Lookup(name)
			if tbl.IsStaged(seg) {
				continue
			}
			if _, err := redo.ReplayInto(st, name, seg.Bytes()); err != nil {
				level.Error(logger).Log("msg", "truncate: replay failed", "segment", name, "err", err)
				continue
			}
		} else {
			seg, err := e.Map(name, 0)
			if err != nil {
				level.Error(logger).Log("msg", "truncate: temporary map failed", "segment", name, "err", err)
				continue
			}
			if err := e.Unmap(seg); err != nil {
				level.Error(logger).Log("msg", "truncate: temporary unmap failed", "segment", name, "err", err)
				continue
			}
		}

		if err := st.RemoveLog(name); err != nil {
			level.Error(logger).Log("msg", "truncate: failed to remove log file", "segment", name, "err", err)
		}
	}

	return nil
}
