package btindex

import (
	"go.uber.org/zap"

	"github.com/btree-heap-index/relidx/dbms/heap"
	"github.com/btree-heap-index/relidx/dbms/index/btpage"
	"github.com/btree-heap-index/relidx/dbms/pager"
)

// InsertEntry places a key/rid pair into the tree, splitting nodes and
// promoting a new root as needed.
func (x *Index) InsertEntry(key int32, rid heap.RID) error {
	leafID, path, err := x.findLeaf(key)
	if err != nil {
		return err
	}
	return x.insertLeaf(key, rid, leafID, path)
}

// findLeaf descends from the root to the leaf that would contain key and
// returns the internal ancestors visited, ordered root-first. Routing
// follows the separator invariant: a probe equal to K[i] belongs to the
// subtree at C[i+1], so descent takes the child at the strict upper bound.
func (x *Index) findLeaf(key int32) (pager.PageID, []pager.PageID, error) {
	if x.singleRoot {
		return x.rootID, nil, nil
	}

	var path []pager.PageID
	cur := x.rootID
	for {
		p, err := x.pg.Fetch(cur)
		if err != nil {
			return 0, nil, err
		}
		n := btpage.Count(p)
		child := btpage.Child(p, upperBound(p, n, key))
		atLeafParent := btpage.Level(p) == 1
		if err := x.pg.Unpin(cur, false); err != nil {
			return 0, nil, err
		}
		path = append(path, cur)
		if atLeafParent {
			return child, path, nil
		}
		cur = child
	}
}

// upperBound returns the smallest index i with K[i] > key on an internal
// node, i.e. the child slot the probe routes through.
func upperBound(p *pager.Page, n int, key int32) int {
	lo, hi := 0, n
	for lo < hi {
		m := (lo + hi) / 2
		if btpage.InternalKey(p, m) <= key {
			lo = m + 1
		} else {
			hi = m
		}
	}
	return lo
}

// lowerBound returns the smallest index i with K[i] >= key on a leaf.
func lowerBound(p *pager.Page, n int, key int32) int {
	lo, hi := 0, n
	for lo < hi {
		m := (lo + hi) / 2
		if btpage.LeafKey(p, m) < key {
			lo = m + 1
		} else {
			hi = m
		}
	}
	return lo
}

// insertLeaf places the pair into the leaf, splitting when full.
func (x *Index) insertLeaf(key int32, rid heap.RID, leafID pager.PageID, path []pager.PageID) error {
	p, err := x.pg.Fetch(leafID)
	if err != nil {
		return err
	}
	n := btpage.Count(p)

	if n >= btpage.LeafMaxEntries {
		if err := x.pg.Unpin(leafID, false); err != nil {
			return err
		}
		return x.splitLeaf(key, rid, leafID, path)
	}

	// Shift strictly greater entries up one slot and place the pair.
	i := lowerBound(p, n, key)
	for j := n; j > i; j-- {
		btpage.SetLeafEntry(p, j, btpage.LeafKey(p, j-1), btpage.LeafRID(p, j-1))
	}
	btpage.SetLeafEntry(p, i, key, rid)
	btpage.SetCount(p, n+1)
	return x.pg.Unpin(leafID, true)
}

// splitLeaf partitions a full leaf plus the incoming pair across the leaf
// and a new right sibling, then propagates the separator. The separator is
// the right sibling's first key, copied up: leaves keep the full entry.
func (x *Index) splitLeaf(key int32, rid heap.RID, leafID pager.PageID, path []pager.PageID) error {
	p, err := x.pg.Fetch(leafID)
	if err != nil {
		return err
	}
	newID, np, err := x.pg.Allocate()
	if err != nil {
		x.pg.Unpin(leafID, false)
		return err
	}

	n := btpage.Count(p)
	type entry struct {
		key int32
		rid heap.RID
	}
	all := make([]entry, n+1)
	for i := 0; i < n; i++ {
		all[i] = entry{btpage.LeafKey(p, i), btpage.LeafRID(p, i)}
	}
	idx := lowerBound(p, n, key)
	copy(all[idx+1:], all[idx:n])
	all[idx] = entry{key, rid}

	// Right sibling takes the larger half: ceil((Lmax+1)/2) entries.
	mid := (n + 1) / 2
	oldNext := btpage.NextLeaf(p)

	btpage.InitLeaf(p)
	for i := 0; i < mid; i++ {
		btpage.SetLeafEntry(p, i, all[i].key, all[i].rid)
	}
	btpage.SetCount(p, mid)
	btpage.SetNextLeaf(p, newID)

	btpage.InitLeaf(np)
	for i := mid; i <= n; i++ {
		btpage.SetLeafEntry(np, i-mid, all[i].key, all[i].rid)
	}
	btpage.SetCount(np, n+1-mid)
	btpage.SetNextLeaf(np, oldNext)

	sep := all[mid].key

	if err := x.pg.Unpin(leafID, true); err != nil {
		return err
	}
	if err := x.pg.Unpin(newID, true); err != nil {
		return err
	}

	if len(path) > 0 {
		parent := path[len(path)-1]
		return x.insertInternal(sep, newID, parent, path[:len(path)-1])
	}
	return x.promoteRoot(sep, leafID, newID, 1)
}

// insertInternal absorbs a separator and its right child into an internal
// node, splitting when full.
func (x *Index) insertInternal(key int32, rightChild pager.PageID, pageID pager.PageID, path []pager.PageID) error {
	p, err := x.pg.Fetch(pageID)
	if err != nil {
		return err
	}
	n := btpage.Count(p)

	if n >= btpage.InternalMaxKeys {
		if err := x.pg.Unpin(pageID, false); err != nil {
			return err
		}
		return x.splitInternal(key, rightChild, pageID, path)
	}

	// The new child is the right neighbor of the inserted separator:
	// shift keys [i, n) and children (i, n] up one slot.
	i := upperBound(p, n, key)
	for j := n + 1; j > i+1; j-- {
		btpage.SetChild(p, j, btpage.Child(p, j-1))
	}
	for j := n; j > i; j-- {
		btpage.SetInternalKey(p, j, btpage.InternalKey(p, j-1))
	}
	btpage.SetInternalKey(p, i, key)
	btpage.SetChild(p, i+1, rightChild)
	btpage.SetCount(p, n+1)
	return x.pg.Unpin(pageID, true)
}

// splitInternal splits a full internal node around the middle key of the
// virtual sequence including the incoming separator. The middle key moves
// up (internal separators are not kept in descendants).
func (x *Index) splitInternal(key int32, rightChild pager.PageID, pageID pager.PageID, path []pager.PageID) error {
	p, err := x.pg.Fetch(pageID)
	if err != nil {
		return err
	}
	newID, np, err := x.pg.Allocate()
	if err != nil {
		x.pg.Unpin(pageID, false)
		return err
	}

	n := btpage.Count(p)
	keys := make([]int32, n+1)
	children := make([]pager.PageID, n+2)
	for i := 0; i < n; i++ {
		keys[i] = btpage.InternalKey(p, i)
	}
	for i := 0; i <= n; i++ {
		children[i] = btpage.Child(p, i)
	}
	idx := upperBound(p, n, key)
	copy(keys[idx+1:], keys[idx:n])
	keys[idx] = key
	copy(children[idx+2:], children[idx+1:n+1])
	children[idx+1] = rightChild

	// n+1 keys split as: left n/2 | promoted | right ceil(n/2).
	mid := (n + 1) / 2
	promoted := keys[mid]
	level := btpage.Level(p)

	btpage.InitInternal(p, level)
	for i := 0; i < mid; i++ {
		btpage.SetInternalKey(p, i, keys[i])
	}
	for i := 0; i <= mid; i++ {
		btpage.SetChild(p, i, children[i])
	}
	btpage.SetCount(p, mid)

	btpage.InitInternal(np, level)
	for i := mid + 1; i <= n; i++ {
		btpage.SetInternalKey(np, i-mid-1, keys[i])
	}
	for i := mid + 1; i <= n+1; i++ {
		btpage.SetChild(np, i-mid-1, children[i])
	}
	btpage.SetCount(np, n-mid)

	if err := x.pg.Unpin(pageID, true); err != nil {
		return err
	}
	if err := x.pg.Unpin(newID, true); err != nil {
		return err
	}

	if len(path) > 0 {
		parent := path[len(path)-1]
		return x.insertInternal(promoted, newID, parent, path[:len(path)-1])
	}
	return x.promoteRoot(promoted, pageID, newID, 0)
}

// promoteRoot installs a new root above a split: C[0] is the old node,
// C[1] the new right sibling. level is 1 when the children are leaves.
// The meta page's root field is updated under the same operation.
func (x *Index) promoteRoot(sep int32, left, right pager.PageID, level int) error {
	rootID, rp, err := x.pg.Allocate()
	if err != nil {
		return err
	}
	btpage.InitInternal(rp, level)
	btpage.SetInternalKey(rp, 0, sep)
	btpage.SetChild(rp, 0, left)
	btpage.SetChild(rp, 1, right)
	btpage.SetCount(rp, 1)
	if err := x.pg.Unpin(rootID, true); err != nil {
		return err
	}

	mp, err := x.pg.Fetch(metaPageID)
	if err != nil {
		return err
	}
	btpage.SetMetaRoot(mp, rootID)
	if err := x.pg.Unpin(metaPageID, true); err != nil {
		return err
	}

	x.rootID = rootID
	x.singleRoot = false
	x.log.Debug("root promoted",
		zap.Uint32("root", uint32(rootID)),
		zap.Int("level", level))
	return nil
}
