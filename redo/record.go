// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

// Package redo implements the on-disk redo log format and the replay
// routine shared by map-time recovery and checkpoint truncation.
//
// Record layout, repeated with no header/footer/checksum:
//
//	offset  uint64 little-endian
//	length  uint64 little-endian
//	payload [length]byte
//
// The width is fixed at 64 bits little-endian; spec.md §9 leaves the
// choice of width open but requires encoder and decoder to agree, so this
// package pins one width for the whole module.
package redo

import (
	"encoding/binary"
	"io"
	"math"
)

// headerLen is the byte size of the offset+length fields.
const headerLen = 16

// Record is a single redo log entry: the post-commit bytes of one
// modified range of a segment.
type Record struct {
	Offset  uint64
	Length  uint64
	Payload []byte
}

// Encode appends r to w in the wire format described above.
func (r Record) Encode(w io.Writer) error {
	var hdr [headerLen]byte
	binary.LittleEndian.PutUint64(hdr[0:8], r.Offset)
	binary.LittleEndian.PutUint64(hdr[8:16], r.Length)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if r.Length == 0 {
		return nil
	}
	_, err := w.Write(r.Payload)
	return err
}

// readRecord reads a single record from r. ok is false (with a nil error)
// when fewer than headerLen bytes remain, or when the header declares a
// payload longer than what's actually left to read — both cases are a
// truncated tail record per spec.md §4.2/§7, not a corruption error: the
// transaction that wrote it was never durable and replay simply stops.
func readRecord(r io.Reader) (rec Record, ok bool, err error) {
	var hdr [headerLen]byte
	n, err := io.ReadFull(r, hdr[:])
	if err != nil {
		if n == 0 {
			return Record{}, false, nil
		}
		// Short header read: truncated tail, not an error.
		return Record{}, false, nil
	}

	offset := binary.LittleEndian.Uint64(hdr[0:8])
	length := binary.LittleEndian.Uint64(hdr[8:16])

	// The payload is read through a LimitReader instead of being allocated
	// up front, so a damaged length field cannot force a huge allocation.
	if length > math.MaxInt64 {
		return Record{}, false, nil
	}
	payload, err := io.ReadAll(io.LimitReader(r, int64(length)))
	if err != nil || uint64(len(payload)) != length {
		// Short payload read: truncated tail record, absent per spec.
		return Record{}, false, nil
	}

	return Record{Offset: offset, Length: length, Payload: payload}, true, nil
}
