// Package index defines the secondary-index contract shared by every
// engine: range-scan operators, the error kinds an engine surfaces, and the
// SecondaryIndex interface the evaluation harness drives.
package index

import (
	"github.com/pkg/errors"

	"github.com/btree-heap-index/relidx/dbms/heap"
)

// Operator selects how a scan bound is compared.
type Operator int

const (
	GT  Operator = iota // strictly greater than the low bound
	GTE                 // greater than or equal to the low bound
	LT                  // strictly less than the high bound
	LTE                 // less than or equal to the high bound
)

func (op Operator) String() string {
	switch op {
	case GT:
		return "GT"
	case GTE:
		return "GTE"
	case LT:
		return "LT"
	case LTE:
		return "LTE"
	}
	return "invalid"
}

var (
	// ErrBadIndexInfo means an existing index file's metadata does not
	// match the open parameters.
	ErrBadIndexInfo = errors.New("index: metadata mismatch")

	// ErrBadOpcodes means the low operator is not GT/GTE or the high
	// operator is not LT/LTE.
	ErrBadOpcodes = errors.New("index: bad scan operators")

	// ErrBadScanrange means the low bound exceeds the high bound.
	ErrBadScanrange = errors.New("index: low bound exceeds high bound")

	// ErrNoSuchKeyFound means no key satisfies the scan range; the scan
	// is left inactive.
	ErrNoSuchKeyFound = errors.New("index: no key in scan range")

	// ErrScanNotInitialized means ScanNext or EndScan was called without
	// an active scan.
	ErrScanNotInitialized = errors.New("index: scan not initialized")

	// ErrScanCompleted means ScanNext was called after the last in-range
	// key; the scan stays active until EndScan.
	ErrScanCompleted = errors.New("index: scan completed")
)

// SecondaryIndex maps int32 keys to record identifiers and streams rids
// back in key order over a bounded range.
type SecondaryIndex interface {
	// InsertEntry adds a key/rid pair. Keys are assumed unique.
	InsertEntry(key int32, rid heap.RID) error

	// StartScan positions a scan on the first key satisfying the bounds.
	StartScan(low int32, lowOp Operator, high int32, highOp Operator) error

	// ScanNext emits the next rid in key order, or ErrScanCompleted.
	ScanNext() (heap.RID, error)

	// EndScan deactivates the current scan.
	EndScan() error

	// Close releases the engine's resources, flushing state to disk.
	Close() error
}
