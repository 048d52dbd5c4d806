// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package rvm_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/rvm"
)

func openTestLib(t *testing.T, dir string) *rvm.Library {
	t.Helper()
	lib, err := rvm.Open(dir, rvm.WithFsync(false))
	require.NoError(t, err)
	return lib
}

// S1 persistence.
func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	lib := openTestLib(t, dir)
	seg, err := lib.Map("a", 100)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 100), seg.Bytes())

	tx, err := lib.BeginTrans([]*rvm.Segment{seg})
	require.NoError(t, err)
	lib.AboutToModify(tx, seg, 10, 5)
	copy(seg.Bytes()[10:15], []byte{0x41, 0x42, 0x43, 0x44, 0x45})
	lib.CommitTrans(tx)

	// Simulate a crash: don't Unmap, just reopen a fresh Library over the
	// same directory.
	lib2 := openTestLib(t, dir)
	seg2, err := lib2.Map("a", 100)
	require.NoError(t, err)

	want := make([]byte, 100)
	copy(want[10:15], []byte{0x41, 0x42, 0x43, 0x44, 0x45})
	require.Equal(t, want, seg2.Bytes())
}

// S2 abort.
func TestAbortRestoresOriginalBytes(t *testing.T) {
	dir := t.TempDir()
	lib := openTestLib(t, dir)

	seg, err := lib.Map("a", 100)
	require.NoError(t, err)

	tx, err := lib.BeginTrans([]*rvm.Segment{seg})
	require.NoError(t, err)
	lib.AboutToModify(tx, seg, 0, 5)
	copy(seg.Bytes()[0:5], []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
	lib.AbortTrans(tx)

	require.Equal(t, make([]byte, 5), seg.Bytes()[0:5])
}

// S3 overlapping undo: reverse replay restores the earliest snapshot of each byte.
func TestOverlappingUndoReplaysInReverseDeclarationOrder(t *testing.T) {
	dir := t.TempDir()
	lib := openTestLib(t, dir)

	seg, err := lib.Map("a", 100)
	require.NoError(t, err)
	original := make([]byte, 12)
	copy(seg.Bytes(), original)

	tx, err := lib.BeginTrans([]*rvm.Segment{seg})
	require.NoError(t, err)

	lib.AboutToModify(tx, seg, 0, 8)
	for i := 0; i < 8; i++ {
		seg.Bytes()[i] = byte(0x10 + i)
	}
	lib.AboutToModify(tx, seg, 4, 8)
	for i := 4; i < 12; i++ {
		seg.Bytes()[i] = byte(0x20 + i)
	}

	lib.AbortTrans(tx)

	require.Equal(t, original, seg.Bytes()[0:12])
}

// S4 staging conflict.
func TestStagingConflict(t *testing.T) {
	dir := t.TempDir()
	lib := openTestLib(t, dir)

	seg, err := lib.Map("a", 100)
	require.NoError(t, err)

	tx1, err := lib.BeginTrans([]*rvm.Segment{seg})
	require.NoError(t, err)

	_, err = lib.BeginTrans([]*rvm.Segment{seg})
	require.Error(t, err)

	// First transaction is unaffected.
	lib.AboutToModify(tx1, seg, 0, 1)
	lib.CommitTrans(tx1)
}

// S5 truncate.
func TestTruncateLogAppliesAndEmptiesLog(t *testing.T) {
	dir := t.TempDir()
	lib := openTestLib(t, dir)

	seg, err := lib.Map("a", 100)
	require.NoError(t, err)

	tx, err := lib.BeginTrans([]*rvm.Segment{seg})
	require.NoError(t, err)
	lib.AboutToModify(tx, seg, 10, 5)
	copy(seg.Bytes()[10:15], []byte{0x41, 0x42, 0x43, 0x44, 0x45})
	lib.CommitTrans(tx)

	require.NoError(t, lib.TruncateLog())

	logPath := filepath.Join(dir, "a.rvmlog")
	info, err := os.Stat(logPath)
	if err == nil {
		require.Zero(t, info.Size())
	} else {
		require.True(t, os.IsNotExist(err))
	}

	data, err := os.ReadFile(filepath.Join(dir, "a.rvm"))
	require.NoError(t, err)
	require.Equal(t, []byte{0x41, 0x42, 0x43, 0x44, 0x45}, data[10:15])
}

// S6 grow-on-map.
func TestGrowOnMap(t *testing.T) {
	dir := t.TempDir()
	lib := openTestLib(t, dir)

	seg, err := lib.Map("b", 0)
	require.NoError(t, err)
	require.Equal(t, 0, seg.Len())
	lib.Unmap(seg)

	seg2, err := lib.Map("b", 200)
	require.NoError(t, err)
	require.Equal(t, 200, seg2.Len())
	require.Equal(t, make([]byte, 200), seg2.Bytes())

	info, err := os.Stat(filepath.Join(dir, "b.rvm"))
	require.NoError(t, err)
	require.Equal(t, int64(200), info.Size())
}

func TestMapRejectsInvalidArguments(t *testing.T) {
	dir := t.TempDir()
	lib := openTestLib(t, dir)

	_, err := lib.Map("", 10)
	require.Error(t, err)

	_, err = lib.Map("x", -1)
	require.Error(t, err)

	seg, err := lib.Map("x", 10)
	require.NoError(t, err)
	_, err = lib.Map("x", 10)
	require.Error(t, err)
	lib.Unmap(seg)
}

func TestDestroyIsNoOpWhileMapped(t *testing.T) {
	dir := t.TempDir()
	lib := openTestLib(t, dir)

	seg, err := lib.Map("a", 10)
	require.NoError(t, err)

	lib.Destroy("a")
	require.FileExists(t, filepath.Join(dir, "a.rvm"))

	lib.Unmap(seg)
	lib.Destroy("a")
	require.NoFileExists(t, filepath.Join(dir, "a.rvm"))
}

func TestUnmapRefusedWhileStaged(t *testing.T) {
	dir := t.TempDir()
	lib := openTestLib(t, dir)

	seg, err := lib.Map("a", 10)
	require.NoError(t, err)

	tx, err := lib.BeginTrans([]*rvm.Segment{seg})
	require.NoError(t, err)

	lib.Unmap(seg) // void, silently refused
	require.True(t, lib.IsMapped("a"))

	lib.CommitTrans(tx)
	lib.Unmap(seg)
	require.False(t, lib.IsMapped("a"))
}

func TestAboutToModifyRejectsOutOfRange(t *testing.T) {
	dir := t.TempDir()
	lib := openTestLib(t, dir)

	seg, err := lib.Map("a", 10)
	require.NoError(t, err)
	tx, err := lib.BeginTrans([]*rvm.Segment{seg})
	require.NoError(t, err)

	// Past segment end: rejected per Open Question (a).
	lib.AboutToModify(tx, seg, 8, 5)
	seg.Bytes()[8] = 0xAA // not captured by any undo record

	lib.AbortTrans(tx)
	require.Equal(t, byte(0xAA), seg.Bytes()[8])
}

func TestMapUnmapMapRoundTrip(t *testing.T) {
	dir := t.TempDir()
	lib := openTestLib(t, dir)

	seg, err := lib.Map("a", 50)
	require.NoError(t, err)
	for i := range seg.Bytes() {
		seg.Bytes()[i] = byte(i)
	}

	tx, err := lib.BeginTrans([]*rvm.Segment{seg})
	require.NoError(t, err)
	lib.AboutToModify(tx, seg, 0, 50)
	lib.CommitTrans(tx)

	want := make([]byte, 50)
	copy(want, seg.Bytes())

	lib.Unmap(seg)
	seg2, err := lib.Map("a", 50)
	require.NoError(t, err)
	require.Equal(t, want, seg2.Bytes())
}

func TestSegmentDiagnostics(t *testing.T) {
	dir := t.TempDir()
	lib := openTestLib(t, dir)

	seg, err := lib.Map("a", 32)
	require.NoError(t, err)

	require.True(t, lib.IsMapped("a"))
	size, ok := lib.SegmentSize("a")
	require.True(t, ok)
	require.Equal(t, 32, size)

	name, ok := lib.SegmentName(seg)
	require.True(t, ok)
	require.Equal(t, "a", name)
}
