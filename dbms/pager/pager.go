// Package pager provides the buffer manager: a pin-counted cache of fixed
// size pages backed by a single file. Callers pin a page via Fetch or
// Allocate, mutate it in place, and release it with Unpin, flagging whether
// it was written. Unpinned frames are evicted least-recently-used; dirty
// frames are written back on eviction and on FlushAll.
package pager

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/pkg/errors"
)

const (
	PageSize = 4096 // 4 KB — matches OS page size

	// InvalidPage marks the absence of a page reference, e.g. a leaf
	// without a right sibling.
	InvalidPage = PageID(0xFFFFFFFF)
)

// PageID addresses a page within the pager's file.
type PageID uint32

// Page is a raw 4 KB block read from or written to disk.
type Page [PageSize]byte

var (
	// ErrPageNotPinned is returned by Unpin when the caller holds no pin
	// on the page. It indicates a pin-discipline bug in the caller.
	ErrPageNotPinned = errors.New("pager: page not pinned")

	// ErrPagePinned is returned by FlushAll while any pin is still held.
	ErrPagePinned = errors.New("pager: page still pinned")

	// ErrCacheFull is returned when every frame is pinned and a new page
	// cannot be brought in.
	ErrCacheFull = errors.New("pager: all frames pinned")
)

// frame is one cached page together with its bookkeeping state.
type frame struct {
	id    PageID
	page  *Page
	pins  int
	dirty bool

	prev *frame
	next *frame
}

// Pager manages a file of fixed-size pages behind a pin-counted LRU cache.
type Pager struct {
	file      *os.File
	frames    map[PageID]*frame
	capacity  int
	head      *frame // most recently used
	tail      *frame // least recently used
	pageCount uint32 // total number of pages ever allocated
}

// Exists reports whether a page file is already present at path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Open opens (or creates) a pager backed by the given file.
// cachePages is the number of frames to hold in memory.
func Open(path string, cachePages int) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "pager: open")
	}

	p := &Pager{
		file:     f,
		frames:   make(map[PageID]*frame, cachePages),
		capacity: cachePages,
	}

	// Page 0 holds the allocated-page count in its first 8 bytes. A brand
	// new file starts with pageCount 1 so that page 0 is never handed out.
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "pager: stat")
	}
	if info.Size() == 0 {
		p.pageCount = 1
		if err := p.writePageCount(); err != nil {
			f.Close()
			return nil, err
		}
	} else {
		hdr, err := p.readFromDisk(0)
		if err != nil {
			f.Close()
			return nil, errors.Wrap(err, "pager: read header")
		}
		p.pageCount = uint32(binary.LittleEndian.Uint64(hdr[:8]))
	}

	return p, nil
}

// Allocate reserves a new zeroed page and returns it pinned.
func (p *Pager) Allocate() (PageID, *Page, error) {
	id := PageID(p.pageCount)
	p.pageCount++

	// Extend the file now so the id is addressable even before flush.
	var blank Page
	if err := p.writeToDisk(id, &blank); err != nil {
		return 0, nil, err
	}
	if err := p.writePageCount(); err != nil {
		return 0, nil, err
	}

	fr, err := p.admit(id, new(Page))
	if err != nil {
		return 0, nil, err
	}
	fr.pins = 1
	fr.dirty = true
	return id, fr.page, nil
}

// Fetch pins and returns the page with the given id, from cache or disk.
func (p *Pager) Fetch(id PageID) (*Page, error) {
	if fr, ok := p.frames[id]; ok {
		fr.pins++
		p.moveToFront(fr)
		return fr.page, nil
	}

	pg, err := p.readFromDisk(id)
	if err != nil {
		return nil, err
	}
	fr, err := p.admit(id, pg)
	if err != nil {
		return nil, err
	}
	fr.pins = 1
	return fr.page, nil
}

// Unpin releases one pin on the page. dirty must be true iff the caller
// wrote to the page while it was pinned.
func (p *Pager) Unpin(id PageID, dirty bool) error {
	fr, ok := p.frames[id]
	if !ok || fr.pins == 0 {
		return errors.Wrapf(ErrPageNotPinned, "page %d", id)
	}
	fr.pins--
	if dirty {
		fr.dirty = true
	}
	return nil
}

// FlushAll writes every dirty frame and the page-count header back to disk.
// It requires that no pins are held.
func (p *Pager) FlushAll() error {
	if n := p.PinnedPages(); n != 0 {
		return errors.Wrapf(ErrPagePinned, "%d pages pinned at flush", n)
	}
	for id, fr := range p.frames {
		if !fr.dirty {
			continue
		}
		if err := p.writeToDisk(id, fr.page); err != nil {
			return err
		}
		fr.dirty = false
	}
	if err := p.writePageCount(); err != nil {
		return err
	}
	return errors.Wrap(p.file.Sync(), "pager: sync")
}

// Close flushes and closes the underlying file.
func (p *Pager) Close() error {
	if err := p.FlushAll(); err != nil {
		p.file.Close()
		return err
	}
	return errors.Wrap(p.file.Close(), "pager: close")
}

// PageCount returns the total number of allocated pages.
func (p *Pager) PageCount() uint32 {
	return p.pageCount
}

// PinnedPages returns the number of frames with at least one pin held.
func (p *Pager) PinnedPages() int {
	n := 0
	for _, fr := range p.frames {
		if fr.pins > 0 {
			n++
		}
	}
	return n
}

// --- internal helpers ---

// admit places a page in a frame, evicting the LRU unpinned frame if the
// cache is at capacity.
func (p *Pager) admit(id PageID, pg *Page) (*frame, error) {
	for len(p.frames) >= p.capacity {
		if err := p.evict(); err != nil {
			return nil, err
		}
	}
	fr := &frame{id: id, page: pg}
	p.frames[id] = fr
	p.pushFront(fr)
	return fr, nil
}

// evict removes the least recently used unpinned frame, writing it back
// first if dirty.
func (p *Pager) evict() error {
	for fr := p.tail; fr != nil; fr = fr.prev {
		if fr.pins > 0 {
			continue
		}
		if fr.dirty {
			if err := p.writeToDisk(fr.id, fr.page); err != nil {
				return err
			}
		}
		p.unlink(fr)
		delete(p.frames, fr.id)
		return nil
	}
	return ErrCacheFull
}

func (p *Pager) offset(id PageID) int64 {
	return int64(id) * PageSize
}

func (p *Pager) readFromDisk(id PageID) (*Page, error) {
	pg := new(Page)
	if _, err := p.file.ReadAt(pg[:], p.offset(id)); err != nil {
		return nil, errors.Wrapf(err, "pager: read page %d", id)
	}
	return pg, nil
}

func (p *Pager) writeToDisk(id PageID, pg *Page) error {
	if _, err := p.file.WriteAt(pg[:], p.offset(id)); err != nil {
		return errors.Wrapf(err, "pager: write page %d", id)
	}
	return nil
}

func (p *Pager) writePageCount() error {
	var hdr Page
	// Preserve existing header content if the file already has data.
	if p.pageCount > 1 {
		if existing, err := p.readFromDisk(0); err == nil {
			hdr = *existing
		}
	}
	binary.LittleEndian.PutUint64(hdr[:8], uint64(p.pageCount))
	return p.writeToDisk(0, &hdr)
}

// --- LRU list ---

func (p *Pager) pushFront(fr *frame) {
	fr.next = p.head
	fr.prev = nil
	if p.head != nil {
		p.head.prev = fr
	}
	p.head = fr
	if p.tail == nil {
		p.tail = fr
	}
}

func (p *Pager) moveToFront(fr *frame) {
	if p.head == fr {
		return
	}
	p.unlink(fr)
	p.pushFront(fr)
}

func (p *Pager) unlink(fr *frame) {
	if fr.prev != nil {
		fr.prev.next = fr.next
	}
	if fr.next != nil {
		fr.next.prev = fr.prev
	}
	if p.head == fr {
		p.head = fr.next
	}
	if p.tail == fr {
		p.tail = fr.prev
	}
	fr.prev, fr.next = nil, nil
}

// String is a debugging aid describing cache occupancy.
func (p *Pager) String() string {
	return fmt.Sprintf("pager{pages=%d cached=%d pinned=%d}",
		p.pageCount, len(p.frames), p.PinnedPages())
}
