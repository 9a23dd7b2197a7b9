// Package lsm wraps Pebble (CockroachDB's LSM storage engine) behind the
// SecondaryIndex interface so the evaluation harness can benchmark the
// B+ tree index against a production engine and cross-check scan results.
package lsm

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"

	"github.com/btree-heap-index/relidx/dbms/heap"
	"github.com/btree-heap-index/relidx/dbms/index"
)

type LSM struct {
	db *pebble.DB

	scanActive bool
	scanDone   bool
	iter       *pebble.Iterator
}

var _ index.SecondaryIndex = (*LSM)(nil)

// Open opens (or creates) a Pebble database at the given directory path.
func Open(dir string) (*LSM, error) {
	opts := &pebble.Options{
		MemTableSize:                16 << 20,
		MemTableStopWritesThreshold: 4,
		L0CompactionThreshold:       4,
		L0StopWritesThreshold:       12,
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, errors.Wrap(err, "lsm: open")
	}
	return &LSM{db: db}, nil
}

// Close ends any active scan and shuts Pebble down, flushing in-memory
// state.
func (l *LSM) Close() error {
	if l.scanActive {
		l.EndScan()
	}
	return errors.Wrap(l.db.Close(), "lsm: close")
}

// InsertEntry stores the rid under the key.
func (l *LSM) InsertEntry(key int32, rid heap.RID) error {
	return errors.Wrap(
		l.db.Set(encodeKey(key), encodeRID(rid), pebble.NoSync), "lsm: set")
}

// StartScan opens a Pebble iterator over the requested bounds.
func (l *LSM) StartScan(low int32, lowOp index.Operator, high int32, highOp index.Operator) error {
	if l.scanActive {
		if err := l.EndScan(); err != nil {
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

	// Pebble bounds are [lower, upper): widen the operators accordingly.
	// A strict bound at the int32 extreme admits nothing / everything.
	opts := &pebble.IterOptions{}
	if lowOp == index.GT {
		if low == math.MaxInt32 {
			return index.ErrNoSuchKeyFound
		}
		low++
	}
	opts.LowerBound = encodeKey(low)
	if highOp == index.LTE {
		if high < math.MaxInt32 {
			opts.UpperBound = encodeKey(high + 1)
		}
	} else {
		opts.UpperBound = encodeKey(high)
	}

	iter, err := l.db.NewIter(opts)
	if err != nil {
		return errors.Wrap(err, "lsm: iter")
	}
	if !iter.First() {
		iter.Close()
		return index.ErrNoSuchKeyFound
	}
	l.iter = iter
	l.scanActive = true
	l.scanDone = false
	return nil
}

// ScanNext emits the rid at the iterator and advances it.
func (l *LSM) ScanNext() (heap.RID, error) {
	if !l.scanActive {
		return heap.RID{}, index.ErrScanNotInitialized
	}
	if l.scanDone {
		return heap.RID{}, index.ErrScanCompleted
	}
	rid := decodeRID(l.iter.Value())
	if !l.iter.Next() {
		l.scanDone = true
	}
	return rid, nil
}

// EndScan releases the iterator.
func (l *LSM) EndScan() error {
	if !l.scanActive {
		return index.ErrScanNotInitialized
	}
	err := l.iter.Close()
	l.iter = nil
	l.scanActive = false
	l.scanDone = false
	return errors.Wrap(err, "lsm: close iter")
}

// --- key and value encoding ---

// encodeKey encodes an int32 big-endian with the sign bit flipped so that
// byte order matches signed order, which Pebble relies on.
func encodeKey(k int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(k)^0x80000000)
	return b
}

func encodeRID(rid heap.RID) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b, rid.Page)
	binary.LittleEndian.PutUint16(b[4:], rid.Slot)
	return b
}

func decodeRID(v []byte) heap.RID {
	return heap.RID{
		Page: binary.LittleEndian.Uint32(v),
		Slot: binary.LittleEndian.Uint16(v[4:]),
	}
}
