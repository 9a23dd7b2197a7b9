// Package btpage defines the on-disk layout of B+ tree index pages and
// typed accessors over a pinned page buffer. Node kind is carried in a tag
// byte so a view can be checked at runtime before use.
//
// Node page layout:
//
//	[0]     1 byte   node type (TypeInternal / TypeLeaf)
//	[1]     1 byte   level (internal only; 1 = children are leaves)
//	[2-3]   2 bytes  occupancy count N
//	[4-7]   4 bytes  right-sibling page ID (leaf only, InvalidPage = none)
//	[8+]    entry area (see below)
//
// Leaf entries are fixed 12-byte slots: key int32, rid page uint32, rid
// slot uint16, 2 bytes pad. Internal nodes store the key array first and
// the child array after it; N keys always have N+1 children.
//
// The meta page (page 1 of the index file) holds the open parameters and
// the current root:
//
//	[0-63]   64 bytes  relation name, NUL padded
//	[64-67]  int32     key byte offset
//	[68-71]  int32     key type tag
//	[72-75]  uint32    root page ID
package btpage

import (
	"bytes"
	"encoding/binary"

	"github.com/btree-heap-index/relidx/dbms/heap"
	"github.com/btree-heap-index/relidx/dbms/pager"
)

const (
	TypeInternal = byte(0)
	TypeLeaf     = byte(1)

	offType    = 0
	offLevel   = 1
	offCount   = 2
	offNext    = 4
	offEntries = 8

	// LeafMaxEntries is how many key/rid pairs fit in a leaf:
	// (4096 - 8 header) / 12 per entry = 340.
	leafEntrySize  = 12
	LeafMaxEntries = (pager.PageSize - offEntries) / leafEntrySize

	// InternalMaxKeys is how many separator keys fit in an internal node.
	// N int32 keys plus N+1 uint32 children must fit after the header:
	// 8 + 4N + 4(N+1) <= 4096 → N = 510.
	InternalMaxKeys = (pager.PageSize - offEntries - 4) / 8

	offChildren = offEntries + 4*InternalMaxKeys

	// MetaRelationLen is the fixed width of the meta page's name field.
	MetaRelationLen = 64

	offMetaKeyOffset = 64
	offMetaKeyType   = 68
	offMetaRoot      = 72
)

// --- common header ---

func IsLeaf(p *pager.Page) bool { return p[offType] == TypeLeaf }

func Count(p *pager.Page) int {
	return int(binary.LittleEndian.Uint16(p[offCount:]))
}

func SetCount(p *pager.Page, n int) {
	binary.LittleEndian.PutUint16(p[offCount:], uint16(n))
}

// Level reports whether an internal node's children are leaves.
func Level(p *pager.Page) int { return int(p[offLevel]) }

// --- leaf nodes ---

// InitLeaf zeroes the page and stamps it as an empty leaf with no sibling.
func InitLeaf(p *pager.Page) {
	for i := range p {
		p[i] = 0
	}
	p[offType] = TypeLeaf
	SetNextLeaf(p, pager.InvalidPage)
}

func NextLeaf(p *pager.Page) pager.PageID {
	return pager.PageID(binary.LittleEndian.Uint32(p[offNext:]))
}

func SetNextLeaf(p *pager.Page, id pager.PageID) {
	binary.LittleEndian.PutUint32(p[offNext:], uint32(id))
}

func LeafKey(p *pager.Page, i int) int32 {
	o := offEntries + i*leafEntrySize
	return int32(binary.LittleEndian.Uint32(p[o:]))
}

func LeafRID(p *pager.Page, i int) heap.RID {
	o := offEntries + i*leafEntrySize
	return heap.RID{
		Page: binary.LittleEndian.Uint32(p[o+4:]),
		Slot: binary.LittleEndian.Uint16(p[o+8:]),
	}
}

func SetLeafEntry(p *pager.Page, i int, key int32, rid heap.RID) {
	o := offEntries + i*leafEntrySize
	binary.LittleEndian.PutUint32(p[o:], uint32(key))
	binary.LittleEndian.PutUint32(p[o+4:], rid.Page)
	binary.LittleEndian.PutUint16(p[o+8:], rid.Slot)
}

// --- internal nodes ---

// InitInternal zeroes the page and stamps it as an empty internal node.
// level is 1 when the node's children are leaves.
func InitInternal(p *pager.Page, level int) {
	for i := range p {
		p[i] = 0
	}
	p[offType] = TypeInternal
	p[offLevel] = byte(level)
}

func InternalKey(p *pager.Page, i int) int32 {
	return int32(binary.LittleEndian.Uint32(p[offEntries+i*4:]))
}

func SetInternalKey(p *pager.Page, i int, key int32) {
	binary.LittleEndian.PutUint32(p[offEntries+i*4:], uint32(key))
}

func Child(p *pager.Page, i int) pager.PageID {
	return pager.PageID(binary.LittleEndian.Uint32(p[offChildren+i*4:]))
}

func SetChild(p *pager.Page, i int, id pager.PageID) {
	binary.LittleEndian.PutUint32(p[offChildren+i*4:], uint32(id))
}

// --- meta page ---

func InitMeta(p *pager.Page, relation string, keyOffset int, keyType int32, root pager.PageID) {
	for i := range p {
		p[i] = 0
	}
	copy(p[:MetaRelationLen], relation)
	binary.LittleEndian.PutUint32(p[offMetaKeyOffset:], uint32(int32(keyOffset)))
	binary.LittleEndian.PutUint32(p[offMetaKeyType:], uint32(keyType))
	SetMetaRoot(p, root)
}

func MetaRelation(p *pager.Page) string {
	name := p[:MetaRelationLen]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return string(name)
}

func MetaKeyOffset(p *pager.Page) int {
	return int(int32(binary.LittleEndian.Uint32(p[offMetaKeyOffset:])))
}

func MetaKeyType(p *pager.Page) int32 {
	return int32(binary.LittleEndian.Uint32(p[offMetaKeyType:]))
}

func MetaRoot(p *pager.Page) pager.PageID {
	return pager.PageID(binary.LittleEndian.Uint32(p[offMetaRoot:]))
}

func SetMetaRoot(p *pager.Page, id pager.PageID) {
	binary.LittleEndian.PutUint32(p[offMetaRoot:], uint32(id))
}
