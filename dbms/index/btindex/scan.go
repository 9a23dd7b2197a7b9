package btindex

import (
	"github.com/btree-heap-index/relidx/dbms/heap"
	"github.com/btree-heap-index/relidx/dbms/index"
	"github.com/btree-heap-index/relidx/dbms/index/btpage"
	"github.com/btree-heap-index/relidx/dbms/pager"
)

// scanDone marks an exhausted scan; the next ScanNext reports completion.
const scanDone = -1

type scanState struct {
	active bool
	low    int32
	high   int32
	lowOp  index.Operator
	highOp index.Operator

	pageID    pager.PageID // leaf holding the next entry
	nextEntry int          // slot of the next entry, or scanDone
}

// StartScan positions the scan on the first key satisfying the bounds.
// Any scan already in progress is ended first. The positioning walk may
// cross right-sibling links: the first in-range key can live past the leaf
// the probe lands on when the low bound falls between two leaves.
func (x *Index) StartScan(low int32, lowOp index.Operator, high int32, highOp index.Operator) error {
	if x.scan.active {
		if err := x.EndScan(); err != nil {
			return err
		}
	}

	if low > high {
		return index.ErrBadScanrange
	}
	if lowOp != index.GT && lowOp != index.GTE {
		return index.ErrBadOpcodes
	}
	if highOp != index.LT && highOp != index.LTE {
		return index.ErrBadOpcodes
	}

	leafID, _, err := x.findLeaf(low)
	if err != nil {
		return err
	}

	for cur := leafID; cur != pager.InvalidPage; {
		p, err := x.pg.Fetch(cur)
		if err != nil {
			return err
		}
		n := btpage.Count(p)
		i := lowerBound(p, n, low)
		if i < n && lowOp == index.GT && btpage.LeafKey(p, i) == low {
			i++
		}

		if i < n {
			key := btpage.LeafKey(p, i)
			if err := x.pg.Unpin(cur, false); err != nil {
				return err
			}
			if pastBound(key, high, highOp) {
				return index.ErrNoSuchKeyFound
			}
			x.scan = scanState{
				active:    true,
				low:       low,
				high:      high,
				lowOp:     lowOp,
				highOp:    highOp,
				pageID:    cur,
				nextEntry: i,
			}
			return nil
		}

		next := btpage.NextLeaf(p)
		if err := x.pg.Unpin(cur, false); err != nil {
			return err
		}
		cur = next
	}
	return index.ErrNoSuchKeyFound
}

// ScanNext emits the rid of the current entry and advances to the next
// in-range one, walking to the right sibling when the leaf is exhausted.
// The current leaf is pinned on entry and released before returning.
func (x *Index) ScanNext() (heap.RID, error) {
	if !x.scan.active {
		return heap.RID{}, index.ErrScanNotInitialized
	}
	if x.scan.nextEntry == scanDone {
		return heap.RID{}, index.ErrScanCompleted
	}

	p, err := x.pg.Fetch(x.scan.pageID)
	if err != nil {
		return heap.RID{}, err
	}
	rid := btpage.LeafRID(p, x.scan.nextEntry)
	n := btpage.Count(p)

	if x.scan.nextEntry+1 < n {
		if x.pastHigh(btpage.LeafKey(p, x.scan.nextEntry+1)) {
			x.scan.nextEntry = scanDone
		} else {
			x.scan.nextEntry++
		}
		return rid, x.pg.Unpin(x.scan.pageID, false)
	}

	// Leaf exhausted: move to the right sibling, if any.
	next := btpage.NextLeaf(p)
	if err := x.pg.Unpin(x.scan.pageID, false); err != nil {
		return heap.RID{}, err
	}
	if next == pager.InvalidPage {
		x.scan.nextEntry = scanDone
		return rid, nil
	}

	np, err := x.pg.Fetch(next)
	if err != nil {
		return heap.RID{}, err
	}
	if btpage.Count(np) == 0 || x.pastHigh(btpage.LeafKey(np, 0)) {
		x.scan.nextEntry = scanDone
	} else {
		x.scan.pageID = next
		x.scan.nextEntry = 0
	}
	return rid, x.pg.Unpin(next, false)
}

// EndScan deactivates the scan. All pages were already released at each
// ScanNext boundary, so there is no page work to do.
func (x *Index) EndScan() error {
	if !x.scan.active {
		return index.ErrScanNotInitialized
	}
	x.scan = scanState{}
	return nil
}

// pastHigh reports whether key falls beyond the active scan's upper bound.
func (x *Index) pastHigh(key int32) bool {
	return pastBound(key, x.scan.high, x.scan.highOp)
}

func pastBound(key, high int32, highOp index.Operator) bool {
	if key > high {
		return true
	}
	return key == high && highOp == index.LT
}
