package heap

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(i int) []byte {
	b := make([]byte, 76)
	binary.LittleEndian.PutUint32(b, uint32(i))
	copy(b[12:], fmt.Sprintf("%05d string record", i))
	return b
}

func TestAppendAndScan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relA")
	h, err := Create(path)
	require.NoError(t, err)

	const n = 1000 // spans many pages at 76 bytes per record
	rids := make([]RID, n)
	for i := 0; i < n; i++ {
		rid, err := h.Append(record(i))
		require.NoError(t, err)
		rids[i] = rid
	}
	require.NoError(t, h.Close())

	h, err = Open(path)
	require.NoError(t, err)
	defer h.Close()

	scan := h.Scan()
	for i := 0; i < n; i++ {
		rid, rec, err := scan.Next()
		require.NoError(t, err)
		assert.Equal(t, rids[i], rid, "record %d", i)
		assert.Equal(t, record(i), rec, "record %d", i)
	}
	_, _, err = scan.Next()
	require.ErrorIs(t, err, ErrEndOfFile)
}

func TestScanBuffersUnflushedTailPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relA")
	h, err := Create(path)
	require.NoError(t, err)
	defer h.Close()

	rid, err := h.Append(record(7))
	require.NoError(t, err)

	// The tail page has not been written back yet; the scan must still
	// see the record.
	scan := h.Scan()
	got, rec, err := scan.Next()
	require.NoError(t, err)
	assert.Equal(t, rid, got)
	assert.Equal(t, record(7), rec)
	_, _, err = scan.Next()
	require.ErrorIs(t, err, ErrEndOfFile)
}

func TestScanEmptyRelation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relA")
	h, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	h, err = Open(path)
	require.NoError(t, err)
	defer h.Close()

	_, _, err = h.Scan().Next()
	require.ErrorIs(t, err, ErrEndOfFile)
}

func TestRIDsAdvanceAcrossPages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relA")
	h, err := Create(path)
	require.NoError(t, err)
	defer h.Close()

	first, err := h.Append(record(0))
	require.NoError(t, err)
	assert.Equal(t, RID{Page: 1, Slot: 0}, first)

	var prev RID = first
	sawPageTurn := false
	for i := 1; i < 200; i++ {
		rid, err := h.Append(record(i))
		require.NoError(t, err)
		if rid.Page != prev.Page {
			sawPageTurn = true
			assert.Equal(t, prev.Page+1, rid.Page)
			assert.Equal(t, uint16(0), rid.Slot)
		} else {
			assert.Equal(t, prev.Slot+1, rid.Slot)
		}
		prev = rid
	}
	assert.True(t, sawPageTurn, "200 records must span multiple pages")
}

func TestRecordTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relA")
	h, err := Create(path)
	require.NoError(t, err)
	defer h.Close()

	_, err = h.Append(make([]byte, PageSize))
	require.ErrorIs(t, err, ErrRecordTooLarge)
}
