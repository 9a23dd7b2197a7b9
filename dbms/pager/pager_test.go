package pager

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T, cachePages int) (*Pager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pages.idx")
	p, err := Open(path, cachePages)
	require.NoError(t, err)
	return p, path
}

func TestAllocateFetchRoundTrip(t *testing.T) {
	p, _ := openTemp(t, 8)
	defer p.Close()

	id, pg, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, PageID(1), id, "page 0 is reserved for the header")

	pg[0] = 0xAB
	pg[PageSize-1] = 0xCD
	require.NoError(t, p.Unpin(id, true))

	got, err := p.Fetch(id)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), got[0])
	assert.Equal(t, byte(0xCD), got[PageSize-1])
	require.NoError(t, p.Unpin(id, false))
}

func TestUnpinWithoutPin(t *testing.T) {
	p, _ := openTemp(t, 8)
	defer p.Close()

	id, _, err := p.Allocate()
	require.NoError(t, err)
	require.NoError(t, p.Unpin(id, true))

	err = p.Unpin(id, false)
	require.ErrorIs(t, err, ErrPageNotPinned, "double unpin must be rejected")

	err = p.Unpin(PageID(99), false)
	require.ErrorIs(t, err, ErrPageNotPinned, "unpin of a never-pinned page must be rejected")
}

func TestPinCountNesting(t *testing.T) {
	p, _ := openTemp(t, 8)
	defer p.Close()

	id, _, err := p.Allocate()
	require.NoError(t, err)

	_, err = p.Fetch(id)
	require.NoError(t, err)
	assert.Equal(t, 1, p.PinnedPages())

	require.NoError(t, p.Unpin(id, false))
	assert.Equal(t, 1, p.PinnedPages(), "one pin of two released")
	require.NoError(t, p.Unpin(id, true))
	assert.Equal(t, 0, p.PinnedPages())
}

func TestFlushRequiresNoPins(t *testing.T) {
	p, _ := openTemp(t, 8)

	id, _, err := p.Allocate()
	require.NoError(t, err)

	require.ErrorIs(t, p.FlushAll(), ErrPagePinned)

	require.NoError(t, p.Unpin(id, true))
	require.NoError(t, p.FlushAll())
	require.NoError(t, p.Close())
}

func TestEvictionWritesBackDirtyPages(t *testing.T) {
	p, path := openTemp(t, 4)

	// Fill well past the cache capacity with identifiable content.
	ids := make([]PageID, 16)
	for i := range ids {
		id, pg, err := p.Allocate()
		require.NoError(t, err)
		pg[0] = byte(i)
		require.NoError(t, p.Unpin(id, true))
		ids[i] = id
	}

	// Early pages were evicted; their content must survive the round trip.
	for i, id := range ids {
		pg, err := p.Fetch(id)
		require.NoError(t, err)
		assert.Equal(t, byte(i), pg[0], "page %d", id)
		require.NoError(t, p.Unpin(id, false))
	}
	require.NoError(t, p.Close())

	// Reopen and verify persistence.
	p2, err := Open(path, 4)
	require.NoError(t, err)
	defer p2.Close()
	assert.Equal(t, uint32(17), p2.PageCount())
	for i, id := range ids {
		pg, err := p2.Fetch(id)
		require.NoError(t, err)
		assert.Equal(t, byte(i), pg[0])
		require.NoError(t, p2.Unpin(id, false))
	}
}

func TestEvictionSkipsPinnedFrames(t *testing.T) {
	p, _ := openTemp(t, 2)
	defer func() {
		// Release remaining pins so Close can flush.
		p.Unpin(1, false)
		p.Unpin(2, false)
		p.Close()
	}()

	a, _, err := p.Allocate()
	require.NoError(t, err)
	b, _, err := p.Allocate()
	require.NoError(t, err)
	assert.Equal(t, PageID(1), a)
	assert.Equal(t, PageID(2), b)

	// Both frames pinned: a third page cannot be admitted.
	_, _, err = p.Allocate()
	require.ErrorIs(t, err, ErrCacheFull)
}

func TestExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "probe.idx")
	assert.False(t, Exists(path))

	p, err := Open(path, 2)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	assert.True(t, Exists(path))
}
