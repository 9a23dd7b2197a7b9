package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"

	"github.com/btree-heap-index/relidx/dbms/heap"
)

// The relation record mirrors the classic three-attribute tuple: an int32
// key, a float64 payload, and a fixed 64-byte string field.
const (
	recordSize      = 76
	recordKeyOffset = 0
)

func makeRecord(i int32) []byte {
	b := make([]byte, recordSize)
	binary.LittleEndian.PutUint32(b[0:], uint32(i))
	binary.LittleEndian.PutUint64(b[4:], math.Float64bits(float64(i)))
	copy(b[12:], fmt.Sprintf("%05d string record", i))
	return b
}

// createRelationForward writes records keyed 0..size-1 in ascending order
// and returns each key's rid.
func createRelationForward(path string, size int) (map[int32]heap.RID, error) {
	return createRelation(path, orderedKeys(size, false))
}

// createRelationBackward writes the same records in descending key order.
func createRelationBackward(path string, size int) (map[int32]heap.RID, error) {
	return createRelation(path, orderedKeys(size, true))
}

// createRelationRandom writes the records in a shuffled order.
func createRelationRandom(path string, size int) (map[int32]heap.RID, error) {
	keys := make([]int32, size)
	for i, p := range rand.Perm(size) {
		keys[i] = int32(p)
	}
	return createRelation(path, keys)
}

func orderedKeys(size int, backward bool) []int32 {
	keys := make([]int32, size)
	for i := range keys {
		if backward {
			keys[i] = int32(size - 1 - i)
		} else {
			keys[i] = int32(i)
		}
	}
	return keys
}

func createRelation(path string, keys []int32) (map[int32]heap.RID, error) {
	if err := heap.Remove(path); err != nil {
		return nil, err
	}
	h, err := heap.Create(path)
	if err != nil {
		return nil, err
	}
	rids := make(map[int32]heap.RID, len(keys))
	for _, k := range keys {
		rid, err := h.Append(makeRecord(k))
		if err != nil {
			h.Close()
			return nil, err
		}
		rids[k] = rid
	}
	if err := h.Close(); err != nil {
		return nil, err
	}
	return rids, nil
}
