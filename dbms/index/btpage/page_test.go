package btpage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btree-heap-index/relidx/dbms/heap"
	"github.com/btree-heap-index/relidx/dbms/pager"
)

func TestCapacitiesFitThePage(t *testing.T) {
	assert.Equal(t, 340, LeafMaxEntries)
	assert.Equal(t, 510, InternalMaxKeys)

	// A full leaf's last entry must end within the page.
	assert.LessOrEqual(t, offEntries+LeafMaxEntries*leafEntrySize, pager.PageSize)
	// A full internal node's last child must end within the page.
	assert.LessOrEqual(t, offChildren+(InternalMaxKeys+1)*4, pager.PageSize)
}

func TestLeafEntriesAtTheBoundaries(t *testing.T) {
	p := new(pager.Page)
	InitLeaf(p)

	require.True(t, IsLeaf(p))
	assert.Equal(t, 0, Count(p))
	assert.Equal(t, pager.InvalidPage, NextLeaf(p))

	first := heap.RID{Page: 9, Slot: 3}
	last := heap.RID{Page: 0xFFFFFFF0, Slot: 0xFFF0}
	SetLeafEntry(p, 0, -2147483648, first)
	SetLeafEntry(p, LeafMaxEntries-1, 2147483647, last)
	SetCount(p, LeafMaxEntries)

	assert.Equal(t, int32(-2147483648), LeafKey(p, 0))
	assert.Equal(t, first, LeafRID(p, 0))
	assert.Equal(t, int32(2147483647), LeafKey(p, LeafMaxEntries-1))
	assert.Equal(t, last, LeafRID(p, LeafMaxEntries-1))
	assert.Equal(t, LeafMaxEntries, Count(p))
}

func TestInternalKeysDoNotOverlapChildren(t *testing.T) {
	p := new(pager.Page)
	InitInternal(p, 1)

	require.False(t, IsLeaf(p))
	assert.Equal(t, 1, Level(p))

	// Stamp every key and child slot, then verify nothing clobbered.
	for i := 0; i < InternalMaxKeys; i++ {
		SetInternalKey(p, i, int32(i-255))
	}
	for i := 0; i <= InternalMaxKeys; i++ {
		SetChild(p, i, pager.PageID(1000+i))
	}
	for i := 0; i < InternalMaxKeys; i++ {
		assert.Equal(t, int32(i-255), InternalKey(p, i), "key %d", i)
	}
	for i := 0; i <= InternalMaxKeys; i++ {
		assert.Equal(t, pager.PageID(1000+i), Child(p, i), "child %d", i)
	}
}

func TestMetaPageRoundTrip(t *testing.T) {
	p := new(pager.Page)
	InitMeta(p, "relA", 12, 1, pager.PageID(2))

	assert.Equal(t, "relA", MetaRelation(p))
	assert.Equal(t, 12, MetaKeyOffset(p))
	assert.Equal(t, int32(1), MetaKeyType(p))
	assert.Equal(t, pager.PageID(2), MetaRoot(p))

	SetMetaRoot(p, pager.PageID(77))
	assert.Equal(t, pager.PageID(77), MetaRoot(p))
	assert.Equal(t, "relA", MetaRelation(p), "root update must not disturb the name")
}

func TestInitLeafClearsStaleContent(t *testing.T) {
	p := new(pager.Page)
	InitInternal(p, 0)
	SetInternalKey(p, 0, 42)
	SetChild(p, 0, 5)
	SetCount(p, 1)

	InitLeaf(p)
	assert.True(t, IsLeaf(p))
	assert.Equal(t, 0, Count(p))
	assert.Equal(t, pager.InvalidPage, NextLeaf(p))
}
