// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package rvmerr holds the sentinel errors shared by every RVM package.
//
// Functions that return a handle or buffer surface one of these (wrapped
// with fmt.Errorf("...: %w", ...) for context) instead of the sentinel
// pointer values the original C library used. Void-returning operations
// (AboutToModify, Unmap, Destroy) still no-op silently on these conditions;
// they never propagate them to the caller. That silence is a deliberate
// property of the interface, not a bug.
package rvmerr

import "errors"

var (
	// ErrInvalidArgument covers nil/empty/negative/unknown-handle inputs.
	ErrInvalidArgument = errors.New("rvm: invalid argument")

	// ErrAlreadyMapped is returned by Map when the segment is already mapped.
	ErrAlreadyMapped = errors.New("rvm: segment already mapped")

	// ErrNotMapped is returned when an operation names a segment that isn't mapped.
	ErrNotMapped = errors.New("rvm: segment not mapped")

	// ErrIO covers open/read/write/extend failures against the backing store.
	ErrIO = errors.New("rvm: io failure")

	// ErrStagingConflict is returned when a segment is already owned by a live transaction.
	ErrStagingConflict = errors.New("rvm: segment already staged by a live transaction")

	// ErrAllocation covers buffer allocation failures.
	ErrAllocation = errors.New("rvm: allocation failure")

	// ErrUnknownTransaction names the condition of a transaction handle that
	// doesn't belong to the engine, or has already terminated. No operation
	// currently returns it: the transaction operations no-op on such a handle.
	ErrUnknownTransaction = errors.New("rvm: unknown or terminated transaction")
)
