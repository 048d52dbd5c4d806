// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package redo

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dreamsxin/rvm/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir(), false)
	require.NoError(t, err)
	return st
}

func TestRecordEncodeDecodeRoundTrip(t *testing.T) {
	rec := Record{Offset: 7, Length: 4, Payload: []byte{0xDE, 0xAD, 0xBE, 0xEF}}

	var buf bytes.Buffer
	require.NoError(t, rec.Encode(&buf))

	got, ok, err := readRecord(&buf)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec, got)
}

func TestReadRecordZeroLengthPayload(t *testing.T) {
	rec := Record{Offset: 3, Length: 0, Payload: nil}

	var buf bytes.Buffer
	require.NoError(t, rec.Encode(&buf))

	got, ok, err := readRecord(&buf)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(3), got.Offset)
	require.Equal(t, uint64(0), got.Length)
}

func TestReadRecordEmptyReaderIsAbsent(t *testing.T) {
	_, ok, err := readRecord(bytes.NewReader(nil))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReadRecordTruncatedHeaderIsAbsent(t *testing.T) {
	// Fewer than headerLen bytes.
	_, ok, err := readRecord(bytes.NewReader([]byte{1, 2, 3}))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReadRecordTruncatedPayloadIsAbsent(t *testing.T) {
	var buf bytes.Buffer
	full := Record{Offset: 0, Length: 10, Payload: make([]byte, 10)}
	require.NoError(t, full.Encode(&buf))

	// Drop the last 4 payload bytes to simulate a crash mid-write.
	truncated := buf.Bytes()[:buf.Len()-4]

	_, ok, err := readRecord(bytes.NewReader(truncated))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWriteLogThenReplayIntoAppliesRecords(t *testing.T) {
	st := newTestStore(t)
	name := "seg"

	buf := make([]byte, 16)
	records := []Record{
		{Offset: 0, Length: 4, Payload: []byte{1, 2, 3, 4}},
		{Offset: 8, Length: 4, Payload: []byte{5, 6, 7, 8}},
	}
	require.NoError(t, WriteLog(st, name, records))

	applied, err := ReplayInto(st, name, buf)
	require.NoError(t, err)
	require.True(t, applied)

	want := make([]byte, 16)
	copy(want[0:4], []byte{1, 2, 3, 4})
	copy(want[8:12], []byte{5, 6, 7, 8})
	require.Equal(t, want, buf)

	// The data file on disk now reflects buf, and the log is empty.
	data, err := os.ReadFile(st.DataPath(name))
	require.NoError(t, err)
	require.Equal(t, want, data)

	info, err := os.Stat(st.LogPath(name))
	require.NoError(t, err)
	require.Zero(t, info.Size())
}

func TestReplayIntoNoLogIsNoOp(t *testing.T) {
	st := newTestStore(t)
	buf := make([]byte, 8)
	applied, err := ReplayInto(st, "missing", buf)
	require.NoError(t, err)
	require.False(t, applied)
}

func TestReplayIntoLastWriterWinsOnOverlap(t *testing.T) {
	st := newTestStore(t)
	name := "seg"
	buf := make([]byte, 8)

	records := []Record{
		{Offset: 0, Length: 4, Payload: []byte{1, 1, 1, 1}},
		{Offset: 2, Length: 4, Payload: []byte{2, 2, 2, 2}},
	}
	require.NoError(t, WriteLog(st, name, records))

	applied, err := ReplayInto(st, name, buf)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, []byte{1, 1, 2, 2, 2, 2, 0, 0}, buf)
}

func TestReplayIntoStopsAtOutOfBoundsRecord(t *testing.T) {
	st := newTestStore(t)
	name := "seg"
	buf := make([]byte, 4)

	records := []Record{
		{Offset: 0, Length: 4, Payload: []byte{9, 9, 9, 9}},
		{Offset: 2, Length: 10, Payload: make([]byte, 10)}, // past the 4-byte buffer
	}
	require.NoError(t, WriteLog(st, name, records))

	applied, err := ReplayInto(st, name, buf)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, []byte{9, 9, 9, 9}, buf)
}

func TestReplayIntoTruncatesLogFileOnDisk(t *testing.T) {
	st := newTestStore(t)
	name := "seg"
	require.NoError(t, WriteLog(st, name, []Record{{Offset: 0, Length: 2, Payload: []byte{1, 2}}}))

	path := filepath.Join(st.Dir(), name+".rvmlog")
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NotZero(t, info.Size())

	buf := make([]byte, 2)
	_, err = ReplayInto(st, name, buf)
	require.NoError(t, err)

	info, err = os.Stat(path)
	require.NoError(t, err)
	require.Zero(t, info.Size())
}
