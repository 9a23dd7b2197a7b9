package heap

// FileScan iterates every record of the relation in (page, slot) order.
// Next returns ErrEndOfFile after the last record.
type FileScan struct {
	h      *File
	pageID uint32
	slot   int
	p      *page
}

// Scan returns a scanner positioned before the first record.
func (h *File) Scan() *FileScan {
	return &FileScan{h: h, pageID: 1}
}

// Next returns the RID and raw bytes of the next record.
func (s *FileScan) Next() (RID, []byte, error) {
	for {
		if s.pageID >= s.h.pageCount {
			return RID{}, nil, ErrEndOfFile
		}
		if s.p == nil {
			p, err := s.h.readPage(s.pageID)
			if err != nil {
				return RID{}, nil, err
			}
			s.p = p
			s.slot = 0
		}
		if s.slot < s.p.count() {
			rid := RID{Page: s.pageID, Slot: uint16(s.slot)}
			rec := s.p.record(s.slot)
			s.slot++
			return rid, rec, nil
		}
		s.p = nil
		s.pageID++
	}
}
