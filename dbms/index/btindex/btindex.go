// Package btindex implements the disk-resident B+ tree secondary index.
//
// The index file is a page file owned by a single buffer manager. Page 1 is
// the meta page (open parameters + current root); page 2 is the initial
// root, created as an empty leaf. Leaves hold key/rid entries and are
// chained left-to-right through right-sibling links; internal nodes hold
// separator keys where K[i] is the smallest key reachable via child C[i+1].
//
// Supported operations are entry insertion and bounded range scans; there
// is no deletion, so nodes never underflow and pages are never freed.
package btindex

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/btree-heap-index/relidx/dbms/heap"
	"github.com/btree-heap-index/relidx/dbms/index"
	"github.com/btree-heap-index/relidx/dbms/index/btpage"
	"github.com/btree-heap-index/relidx/dbms/pager"
)

const (
	metaPageID = pager.PageID(1)

	// KeyInt32 is the only supported key type tag.
	KeyInt32 = int32(1)

	// DefaultCachePages is the buffer manager capacity used when the
	// caller passes 0.
	DefaultCachePages = 128
)

// Index is a B+ tree over one integer attribute of a heap relation.
type Index struct {
	pg        *pager.Pager
	name      string
	relation  string
	keyOffset int
	keyType   int32
	log       *zap.Logger

	rootID     pager.PageID
	singleRoot bool // root is still the initial leaf

	scan scanState
}

var _ index.SecondaryIndex = (*Index)(nil)

// IndexName derives the index file name for a relation and key offset.
func IndexName(relation string, keyOffset int) string {
	return fmt.Sprintf("%s.%d", relation, keyOffset)
}

// KeyAt extracts the indexed key from a relation record.
func KeyAt(record []byte, keyOffset int) int32 {
	return int32(binary.LittleEndian.Uint32(record[keyOffset:]))
}

// New opens the index for relation, creating and bulk-building it from the
// relation's records if the index file does not exist yet. cachePages
// sizes the buffer manager (0 selects DefaultCachePages); logger may be
// nil.
func New(relation string, keyOffset int, keyType int32, cachePages int, logger *zap.Logger) (*Index, error) {
	if cachePages <= 0 {
		cachePages = DefaultCachePages
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	x := &Index{
		name:      IndexName(relation, keyOffset),
		relation:  relation,
		keyOffset: keyOffset,
		keyType:   keyType,
		log:       logger,
	}

	existing := pager.Exists(x.name)
	pg, err := pager.Open(x.name, cachePages)
	if err != nil {
		return nil, err
	}
	x.pg = pg

	if existing {
		if err := x.open(); err != nil {
			pg.Close()
			return nil, err
		}
		return x, nil
	}

	if err := x.create(); err != nil {
		pg.Close()
		return nil, err
	}
	if err := x.build(); err != nil {
		pg.Close()
		return nil, err
	}
	return x, nil
}

// Name returns the index file name.
func (x *Index) Name() string { return x.name }

// Close ends any active scan, flushes all dirty pages, and closes the
// index file.
func (x *Index) Close() error {
	if x.scan.active {
		x.scan = scanState{}
	}
	return x.pg.Close()
}

// open validates the meta page of an existing index file against the open
// parameters and recovers the root.
func (x *Index) open() error {
	mp, err := x.pg.Fetch(metaPageID)
	if err != nil {
		return err
	}

	rel := btpage.MetaRelation(mp)
	off := btpage.MetaKeyOffset(mp)
	typ := btpage.MetaKeyType(mp)
	x.rootID = btpage.MetaRoot(mp)
	if err := x.pg.Unpin(metaPageID, false); err != nil {
		return err
	}

	if rel != truncateName(x.relation) || off != x.keyOffset || typ != x.keyType {
		return errors.Wrapf(index.ErrBadIndexInfo,
			"file %q holds (%s, offset %d, type %d), caller wants (%s, offset %d, type %d)",
			x.name, rel, off, typ, truncateName(x.relation), x.keyOffset, x.keyType)
	}

	// A single-node tree is recognized by its root still being a leaf.
	rp, err := x.pg.Fetch(x.rootID)
	if err != nil {
		return err
	}
	x.singleRoot = btpage.IsLeaf(rp)
	if err := x.pg.Unpin(x.rootID, false); err != nil {
		return err
	}

	x.log.Info("index opened",
		zap.String("file", x.name),
		zap.Uint32("root", uint32(x.rootID)),
		zap.Bool("singleRoot", x.singleRoot))
	return nil
}

// create lays out a fresh index file: meta page plus an empty root leaf.
func (x *Index) create() error {
	metaID, mp, err := x.pg.Allocate()
	if err != nil {
		return err
	}
	rootID, rp, err := x.pg.Allocate()
	if err != nil {
		return err
	}
	if metaID != metaPageID {
		return errors.Errorf("btindex: meta page allocated at %d", metaID)
	}

	btpage.InitMeta(mp, truncateName(x.relation), x.keyOffset, x.keyType, rootID)
	btpage.InitLeaf(rp)

	if err := x.pg.Unpin(metaID, true); err != nil {
		return err
	}
	if err := x.pg.Unpin(rootID, true); err != nil {
		return err
	}

	x.rootID = rootID
	x.singleRoot = true
	x.log.Info("index created", zap.String("file", x.name))
	return nil
}

// build scans the base relation and inserts every record's key.
func (x *Index) build() error {
	h, err := heap.Open(x.relation)
	if err != nil {
		return err
	}
	defer h.Close()

	start := time.Now()
	count := 0
	scan := h.Scan()
	for {
		rid, rec, err := scan.Next()
		if err == heap.ErrEndOfFile {
			break
		}
		if err != nil {
			return err
		}
		if err := x.InsertEntry(KeyAt(rec, x.keyOffset), rid); err != nil {
			return err
		}
		count++
	}

	x.log.Info("index built",
		zap.String("relation", x.relation),
		zap.Int("entries", count),
		zap.Duration("took", time.Since(start)))
	return nil
}

func truncateName(s string) string {
	if len(s) > btpage.MetaRelationLen {
		return s[:btpage.MetaRelationLen]
	}
	return s
}
