package btindex

import (
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btree-heap-index/relidx/dbms/heap"
	"github.com/btree-heap-index/relidx/dbms/index"
	"github.com/btree-heap-index/relidx/dbms/index/btpage"
	"github.com/btree-heap-index/relidx/dbms/pager"
)

// writeRelation creates a heap relation whose records carry the key int32
// at offset 0, returning each key's rid.
func writeRelation(t *testing.T, dir string, keys []int32) (string, map[int32]heap.RID) {
	t.Helper()
	path := filepath.Join(dir, "relA")
	require.NoError(t, heap.Remove(path))
	h, err := heap.Create(path)
	require.NoError(t, err)

	rids := make(map[int32]heap.RID, len(keys))
	for _, k := range keys {
		rec := make([]byte, 76)
		binary.LittleEndian.PutUint32(rec, uint32(k))
		rid, err := h.Append(rec)
		require.NoError(t, err)
		rids[k] = rid
	}
	require.NoError(t, h.Close())
	return path, rids
}

func buildIndex(t *testing.T, relation string) *Index {
	t.Helper()
	x, err := New(relation, 0, KeyInt32, 64, nil)
	require.NoError(t, err)
	t.Cleanup(func() { x.Close() })
	return x
}

func seq(n int) []int32 {
	keys := make([]int32, n)
	for i := range keys {
		keys[i] = int32(i)
	}
	return keys
}

// checkTree walks the whole tree verifying the structural invariants:
// strictly ascending keys per node, the separator invariant, occupancy
// bounds, and a leftmost-to-rightmost sibling chain covering every leaf.
func checkTree(t *testing.T, x *Index) {
	t.Helper()

	var leaves []pager.PageID
	var walk func(id pager.PageID, root bool) (int32, int32, bool)
	walk = func(id pager.PageID, root bool) (int32, int32, bool) {
		p, err := x.pg.Fetch(id)
		require.NoError(t, err)
		n := btpage.Count(p)

		if btpage.IsLeaf(p) {
			require.LessOrEqual(t, n, btpage.LeafMaxEntries)
			if n == 0 {
				require.True(t, root, "only the initial root leaf may be empty")
				require.NoError(t, x.pg.Unpin(id, false))
				leaves = append(leaves, id)
				return 0, 0, false
			}
			for i := 1; i < n; i++ {
				require.Less(t, btpage.LeafKey(p, i-1), btpage.LeafKey(p, i),
					"leaf %d keys not strictly ascending", id)
			}
			mn, mx := btpage.LeafKey(p, 0), btpage.LeafKey(p, n-1)
			require.NoError(t, x.pg.Unpin(id, false))
			leaves = append(leaves, id)
			return mn, mx, true
		}

		require.LessOrEqual(t, n, btpage.InternalMaxKeys)
		require.GreaterOrEqual(t, n, 1, "internal node %d has no keys", id)
		keys := make([]int32, n)
		children := make([]pager.PageID, n+1)
		for i := 0; i < n; i++ {
			keys[i] = btpage.InternalKey(p, i)
		}
		for i := 0; i <= n; i++ {
			children[i] = btpage.Child(p, i)
		}
		require.NoError(t, x.pg.Unpin(id, false))

		for i := 1; i < n; i++ {
			require.Less(t, keys[i-1], keys[i],
				"internal %d keys not strictly ascending", id)
		}

		var treeMin, treeMax int32
		for i := 0; i <= n; i++ {
			mn, mx, ok := walk(children[i], false)
			require.True(t, ok, "empty subtree under internal %d", id)
			if i == 0 {
				treeMin = mn
			} else {
				require.Equal(t, keys[i-1], mn,
					"internal %d: K[%d] must equal the smallest key via C[%d]", id, i-1, i)
			}
			if i < n {
				require.Less(t, mx, keys[i],
					"internal %d: subtree %d must stay below K[%d]", id, i, i)
			}
			treeMax = mx
		}
		return treeMin, treeMax, true
	}
	walk(x.rootID, true)

	// The sibling chain must list exactly the leaves found by the walk,
	// left to right, ending at InvalidPage.
	cur := leaves[0]
	for i := 0; ; i++ {
		require.Less(t, i, len(leaves), "sibling chain longer than the leaf set (cycle?)")
		require.Equal(t, leaves[i], cur, "sibling chain out of order at hop %d", i)
		p, err := x.pg.Fetch(cur)
		require.NoError(t, err)
		next := btpage.NextLeaf(p)
		require.NoError(t, x.pg.Unpin(cur, false))
		if next == pager.InvalidPage {
			require.Equal(t, len(leaves)-1, i, "chain ended before the rightmost leaf")
			break
		}
		cur = next
	}

	require.Zero(t, x.pg.PinnedPages(), "pages left pinned after tree walk")
}

func TestCreateBuildsFromRelation(t *testing.T) {
	rel, rids := writeRelation(t, t.TempDir(), seq(1000))
	x := buildIndex(t, rel)

	assert.Equal(t, rel+".0", x.Name())
	assert.False(t, x.singleRoot, "1000 keys span multiple leaves")
	checkTree(t, x)

	n, err := countScan(x, 0, index.GTE, 999, index.LTE)
	require.NoError(t, err)
	assert.Equal(t, 1000, n)

	// A point scan must return the record's original rid.
	require.NoError(t, x.StartScan(500, index.GTE, 500, index.LTE))
	rid, err := x.ScanNext()
	require.NoError(t, err)
	assert.Equal(t, rids[500], rid)
	require.NoError(t, x.EndScan())
}

func TestReopenRecoversState(t *testing.T) {
	rel, _ := writeRelation(t, t.TempDir(), seq(1000))
	x := buildIndex(t, rel)
	require.NoError(t, x.Close())

	// A second New must open, not rebuild.
	y, err := New(rel, 0, KeyInt32, 64, nil)
	require.NoError(t, err)
	defer y.Close()

	assert.False(t, y.singleRoot)
	checkTree(t, y)
	n, err := countScan(y, 100, index.GTE, 199, index.LTE)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
}

func TestReopenSingleRootTree(t *testing.T) {
	rel, _ := writeRelation(t, t.TempDir(), seq(10))
	x := buildIndex(t, rel)
	require.True(t, x.singleRoot)
	require.NoError(t, x.Close())

	y, err := New(rel, 0, KeyInt32, 64, nil)
	require.NoError(t, err)
	defer y.Close()
	assert.True(t, y.singleRoot, "singleRoot must be re-derived from the root's node kind")

	n, err := countScan(y, 0, index.GTE, 9, index.LTE)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestOpenRejectsMismatchedMetadata(t *testing.T) {
	rel, _ := writeRelation(t, t.TempDir(), seq(10))
	x := buildIndex(t, rel)
	require.NoError(t, x.Close())

	// Same file name, different key type tag.
	_, err := New(rel, 0, KeyInt32+1, 64, nil)
	require.ErrorIs(t, err, index.ErrBadIndexInfo)
}

func TestIndexName(t *testing.T) {
	assert.Equal(t, "relA.12", IndexName("relA", 12))
}

func TestKeyAt(t *testing.T) {
	rec := make([]byte, 16)
	v := int32(-5)
	binary.LittleEndian.PutUint32(rec[4:], uint32(v))
	assert.Equal(t, int32(-5), KeyAt(rec, 4))
}
