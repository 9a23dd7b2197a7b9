// Package heap implements the base relation: an append-only file of slotted
// record pages. Records are addressed by RID (page + slot) and read back in
// file order by FileScan. The heap file does its own page I/O; the index's
// buffer manager never touches relation pages.
//
// Page layout (4096 bytes):
//
//	[0-1]   uint16  record count
//	[2-3]   uint16  free-space top (record bytes grow upward from the end)
//	[4+]    slot directory: (offset uint16, length uint16) per record
//	        ...free space...
//	        record bytes, packed from the bottom of the page
package heap

import (
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
)

const (
	PageSize = 4096

	offCount   = 0
	offFreeTop = 2
	offSlots   = 4
	slotSize   = 4
)

// ErrEndOfFile terminates a FileScan after the last record.
var ErrEndOfFile = errors.New("heap: end of file")

// ErrRecordTooLarge is returned when a record cannot fit in a single page.
var ErrRecordTooLarge = errors.New("heap: record too large")

// RID locates a record in the relation: the data page holding it and the
// record's slot within that page.
type RID struct {
	Page uint32
	Slot uint16
}

type page [PageSize]byte

func (p *page) count() int        { return int(binary.LittleEndian.Uint16(p[offCount:])) }
func (p *page) setCount(n int)    { binary.LittleEndian.PutUint16(p[offCount:], uint16(n)) }
func (p *page) freeTop() int      { return int(binary.LittleEndian.Uint16(p[offFreeTop:])) }
func (p *page) setFreeTop(v int)  { binary.LittleEndian.PutUint16(p[offFreeTop:], uint16(v)) }

func (p *page) slot(i int) (off, length int) {
	o := offSlots + i*slotSize
	return int(binary.LittleEndian.Uint16(p[o:])), int(binary.LittleEndian.Uint16(p[o+2:]))
}

func (p *page) setSlot(i, off, length int) {
	o := offSlots + i*slotSize
	binary.LittleEndian.PutUint16(p[o:], uint16(off))
	binary.LittleEndian.PutUint16(p[o+2:], uint16(length))
}

func (p *page) freeSpace() int {
	return p.freeTop() - (offSlots + p.count()*slotSize)
}

func (p *page) init() {
	for i := range p {
		p[i] = 0
	}
	p.setFreeTop(PageSize)
}

// record returns the bytes of slot i.
func (p *page) record(i int) []byte {
	off, length := p.slot(i)
	out := make([]byte, length)
	copy(out, p[off:off+length])
	return out
}

// insert places a record into the page; the caller checks freeSpace first.
func (p *page) insert(rec []byte) uint16 {
	n := p.count()
	top := p.freeTop() - len(rec)
	copy(p[top:], rec)
	p.setFreeTop(top)
	p.setSlot(n, top, len(rec))
	p.setCount(n + 1)
	return uint16(n)
}

// File is a heap relation on disk. Page 0 holds the page count; data pages
// start at 1. The last data page is buffered in memory and written back
// when it fills or on Close.
type File struct {
	f         *os.File
	path      string
	pageCount uint32 // pages allocated, including page 0

	cur   *page  // buffered last data page, nil until first Append
	curID uint32 // page id of cur
}

// Create creates (truncating) a heap relation at path.
func Create(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "heap: create")
	}
	h := &File{f: f, path: path, pageCount: 1}
	if err := h.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return h, nil
}

// Open opens an existing heap relation at path.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "heap: open")
	}
	h := &File{f: f, path: path}
	var hdr page
	if _, err := f.ReadAt(hdr[:], 0); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "heap: read header")
	}
	h.pageCount = binary.LittleEndian.Uint32(hdr[:4])
	return h, nil
}

// Remove deletes the relation file at path, ignoring a missing file.
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "heap: remove")
	}
	return nil
}

// Append adds a record to the relation and returns its RID.
func (h *File) Append(rec []byte) (RID, error) {
	if len(rec) > PageSize-offSlots-slotSize {
		return RID{}, errors.Wrapf(ErrRecordTooLarge, "%d bytes", len(rec))
	}

	if h.cur == nil {
		if err := h.newDataPage(); err != nil {
			return RID{}, err
		}
	}
	if h.cur.freeSpace() < len(rec)+slotSize {
		if err := h.writePage(h.curID, h.cur); err != nil {
			return RID{}, err
		}
		if err := h.newDataPage(); err != nil {
			return RID{}, err
		}
	}
	slot := h.cur.insert(rec)
	return RID{Page: h.curID, Slot: slot}, nil
}

// Close writes back the buffered page and header, then closes the file.
func (h *File) Close() error {
	if h.cur != nil {
		if err := h.writePage(h.curID, h.cur); err != nil {
			h.f.Close()
			return err
		}
		h.cur = nil
	}
	if err := h.writeHeader(); err != nil {
		h.f.Close()
		return err
	}
	if err := h.f.Sync(); err != nil {
		h.f.Close()
		return errors.Wrap(err, "heap: sync")
	}
	return errors.Wrap(h.f.Close(), "heap: close")
}

// --- internal helpers ---

func (h *File) newDataPage() error {
	h.cur = new(page)
	h.cur.init()
	h.curID = h.pageCount
	h.pageCount++
	return h.writeHeader()
}

func (h *File) writeHeader() error {
	var hdr page
	binary.LittleEndian.PutUint32(hdr[:4], h.pageCount)
	return h.writePage(0, &hdr)
}

func (h *File) writePage(id uint32, p *page) error {
	if _, err := h.f.WriteAt(p[:], int64(id)*PageSize); err != nil {
		return errors.Wrapf(err, "heap: write page %d", id)
	}
	return nil
}

func (h *File) readPage(id uint32) (*page, error) {
	// The buffered tail page may not be on disk yet.
	if h.cur != nil && id == h.curID {
		cp := *h.cur
		return &cp, nil
	}
	p := new(page)
	if _, err := h.f.ReadAt(p[:], int64(id)*PageSize); err != nil {
		return nil, errors.Wrapf(err, "heap: read page %d", id)
	}
	return p, nil
}
